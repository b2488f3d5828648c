package api

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/example/chatroom-sync-demo/domain/chat"
	"github.com/example/chatroom-sync-demo/modules/chatview"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 5 * time.Second

var ann = chat.Sender{ID: "user-ann", Name: "Ann", Image: "https://example.com/ann.png"}

// runSession opens a session for user and serves it on a fake connection.
func runSession(t *testing.T, m *Module, user chat.Sender) (*Session, *fakeConn, <-chan error) {
	t.Helper()

	session, err := m.openSession(user)
	require.NoError(t, err)
	t.Cleanup(func() { m.closeSession(session) })

	conn := newFakeConn()
	done := make(chan error, 1)
	go func() {
		done <- session.Run(m.ctx, conn)
	}()

	require.Eventually(t, func() bool {
		return conn.has(func(f ServerFrame) bool {
			return f.Type == FrameConnected && f.SessionID == session.ID && f.UserID == user.ID
		})
	}, waitFor, 10*time.Millisecond)

	return session, conn, done
}

func roomLoaded(conn *fakeConn, roomID string) func() bool {
	return func() bool {
		st := conn.lastState()
		return st != nil && st.Room != nil && st.Room.ID == roomID && !st.Loading
	}
}

func TestSession_SelectRoomAndSubmit(t *testing.T) {
	m, _, _ := newTestModule(t, startStores(t))
	session, conn, _ := runSession(t, m, ann)

	conn.send(t, ClientFrame{Type: FrameSelectRoom, RoomID: lobby.ID})
	require.Eventually(t, roomLoaded(conn, lobby.ID), waitFor, 10*time.Millisecond)
	assert.Equal(t, 1, m.registry.RoomCount(lobby.ID))

	conn.send(t, ClientFrame{Type: FrameType, Text: "hello there"})
	conn.send(t, ClientFrame{Type: FrameSubmit})

	require.Eventually(t, func() bool {
		st := conn.lastState()
		return st != nil && len(st.Visible) == 1 && st.Composer == ""
	}, waitFor, 10*time.Millisecond)

	st := conn.lastState()
	msg := st.Visible[0]
	assert.Equal(t, "hello there", msg.Content)
	assert.Equal(t, ann, msg.User)
	assert.NotEmpty(t, msg.Key)
	assert.NotZero(t, msg.Timestamp)
	assert.False(t, st.Pending)

	got := session.View.State()
	assert.Len(t, got.Messages, 1)
}

func TestSession_InitialRoom(t *testing.T) {
	m, _, _ := newTestModule(t, startStores(t))

	session, err := m.openSession(ann)
	require.NoError(t, err)
	t.Cleanup(func() { m.closeSession(session) })
	session.InitialRoom = garden.ID

	conn := newFakeConn()
	go func() { _ = session.Run(m.ctx, conn) }()

	require.Eventually(t, roomLoaded(conn, garden.ID), waitFor, 10*time.Millisecond)
	assert.Equal(t, FrameConnected, conn.snapshot()[0].Type)
	assert.Equal(t, 1, m.registry.RoomCount(garden.ID))
}

func TestSession_RoomCountedBeforeLoadedStateIsSent(t *testing.T) {
	m, _, _ := newTestModule(t, startStores(t))

	session, err := m.openSession(ann)
	require.NoError(t, err)
	t.Cleanup(func() { m.closeSession(session) })

	var uncounted atomic.Int32
	conn := newFakeConn()
	conn.onWrite = func(f ServerFrame) {
		if f.Type != FrameState || f.State.Room == nil || f.State.Loading {
			return
		}
		if m.registry.RoomCount(f.State.Room.ID) != 1 {
			uncounted.Add(1)
		}
	}
	go func() { _ = session.Run(m.ctx, conn) }()

	conn.send(t, ClientFrame{Type: FrameSelectRoom, RoomID: lobby.ID})
	require.Eventually(t, roomLoaded(conn, lobby.ID), waitFor, 10*time.Millisecond)
	assert.Zero(t, uncounted.Load())
}

func TestSession_SyncRoomFollowsView(t *testing.T) {
	m, _, _ := newTestModule(t, startStores(t))

	session, err := m.openSession(ann)
	require.NoError(t, err)
	t.Cleanup(func() { m.closeSession(session) })

	// No room in the view: a stale membership is dropped.
	m.registry.JoinRoom(session.ID, garden.ID)
	session.syncRoom()
	assert.Equal(t, 0, m.registry.RoomCount(garden.ID))

	require.NoError(t, session.View.SelectRoom(context.Background(), lobby))
	session.syncRoom()
	assert.Equal(t, 1, m.registry.RoomCount(lobby.ID))
}

func TestSession_TwoSessionsShareRoom(t *testing.T) {
	m, _, _ := newTestModule(t, startStores(t))
	_, annConn, _ := runSession(t, m, ann)
	_, bobConn, _ := runSession(t, m, chat.Sender{ID: "user-bob", Name: "Bob"})

	annConn.send(t, ClientFrame{Type: FrameSelectRoom, RoomID: lobby.ID})
	bobConn.send(t, ClientFrame{Type: FrameSelectRoom, RoomID: lobby.ID})
	require.Eventually(t, roomLoaded(annConn, lobby.ID), waitFor, 10*time.Millisecond)
	require.Eventually(t, roomLoaded(bobConn, lobby.ID), waitFor, 10*time.Millisecond)
	assert.Equal(t, 2, m.registry.RoomCount(lobby.ID))

	annConn.send(t, ClientFrame{Type: FrameType, Text: "hi"})
	require.Eventually(t, func() bool {
		st := bobConn.lastState()
		return st != nil && len(st.Typers) == 1 && st.Typers[0] == "Ann"
	}, waitFor, 10*time.Millisecond)

	annConn.send(t, ClientFrame{Type: FrameSubmit})
	require.Eventually(t, func() bool {
		st := bobConn.lastState()
		return st != nil && len(st.Visible) == 1 && len(st.Typers) == 0
	}, waitFor, 10*time.Millisecond)
	assert.Equal(t, "hi", bobConn.lastState().Visible[0].Content)
}

func TestSession_SwitchRoomsKeepsRoomsApart(t *testing.T) {
	m, _, _ := newTestModule(t, startStores(t))
	_, conn, _ := runSession(t, m, ann)

	conn.send(t, ClientFrame{Type: FrameSelectRoom, RoomID: lobby.ID})
	require.Eventually(t, roomLoaded(conn, lobby.ID), waitFor, 10*time.Millisecond)
	conn.send(t, ClientFrame{Type: FrameType, Text: "lobby only"})
	conn.send(t, ClientFrame{Type: FrameSubmit})
	require.Eventually(t, func() bool {
		st := conn.lastState()
		return st != nil && len(st.Visible) == 1
	}, waitFor, 10*time.Millisecond)

	conn.send(t, ClientFrame{Type: FrameSelectRoom, RoomID: garden.ID})
	require.Eventually(t, roomLoaded(conn, garden.ID), waitFor, 10*time.Millisecond)

	st := conn.lastState()
	assert.Empty(t, st.Visible)
	assert.Equal(t, 0, m.registry.RoomCount(lobby.ID))
	assert.Equal(t, 1, m.registry.RoomCount(garden.ID))
}

func TestSession_Search(t *testing.T) {
	m, _, _ := newTestModule(t, startStores(t))
	_, conn, _ := runSession(t, m, ann)

	conn.send(t, ClientFrame{Type: FrameSelectRoom, RoomID: lobby.ID})
	require.Eventually(t, roomLoaded(conn, lobby.ID), waitFor, 10*time.Millisecond)
	for _, text := range []string{"Apples", "bananas", "apple pie"} {
		conn.send(t, ClientFrame{Type: FrameType, Text: text})
		conn.send(t, ClientFrame{Type: FrameSubmit})
	}
	require.Eventually(t, func() bool {
		st := conn.lastState()
		return st != nil && len(st.Visible) == 3
	}, waitFor, 10*time.Millisecond)

	conn.send(t, ClientFrame{Type: FrameSearch, Text: "apple"})
	require.Eventually(t, func() bool {
		st := conn.lastState()
		return st != nil && st.Search == "apple" && len(st.Visible) == 2
	}, waitFor, 10*time.Millisecond)
}

func TestSession_ErrorFrames(t *testing.T) {
	tests := []struct {
		name    string
		raw     []byte
		frame   *ClientFrame
		wantErr string
	}{
		{
			name:    "invalid json",
			raw:     []byte("{not json"),
			wantErr: "Invalid message format",
		},
		{
			name:    "unknown type",
			frame:   &ClientFrame{Type: "dance"},
			wantErr: "Unknown message type: dance",
		},
		{
			name:    "missing room id",
			frame:   &ClientFrame{Type: FrameSelectRoom},
			wantErr: "Room ID is required",
		},
		{
			name:    "unknown room",
			frame:   &ClientFrame{Type: FrameSelectRoom, RoomID: "no-such-room"},
			wantErr: "Room not found",
		},
	}

	m, _, _ := newTestModule(t, startStores(t))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, conn, _ := runSession(t, m, ann)
			if tt.frame != nil {
				conn.send(t, *tt.frame)
			} else {
				conn.in <- tt.raw
			}

			require.Eventually(t, func() bool {
				return conn.has(func(f ServerFrame) bool {
					return f.Type == FrameError && f.Error == tt.wantErr
				})
			}, waitFor, 10*time.Millisecond)
		})
	}
}

func TestSession_SubmitWithoutRoomSendsNotice(t *testing.T) {
	m, _, _ := newTestModule(t, startStores(t))
	_, conn, _ := runSession(t, m, ann)

	conn.send(t, ClientFrame{Type: FrameSubmit})
	require.Eventually(t, func() bool {
		return conn.has(func(f ServerFrame) bool {
			return f.Type == FrameNotice && f.Notice != nil && f.Notice.Kind == chatview.NoticeValidation
		})
	}, waitFor, 10*time.Millisecond)
}

func TestSession_ClientHangUp(t *testing.T) {
	m, _, _ := newTestModule(t, startStores(t))
	_, conn, done := runSession(t, m, ann)

	conn.hangUp()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("session did not stop after the client closed")
	}
}

func TestSession_StopsWithModuleContext(t *testing.T) {
	m, _, _ := newTestModule(t, startStores(t))
	_, _, done := runSession(t, m, ann)

	require.NoError(t, m.Stop(context.Background()))
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("session did not stop on module shutdown")
	}
	assert.Equal(t, 0, m.registry.Count())
}

func TestCloseSession_UnregistersAndClearsPresence(t *testing.T) {
	stores := startStores(t)
	m, _, _ := newTestModule(t, stores)

	session, err := m.openSession(ann)
	require.NoError(t, err)
	require.NoError(t, session.View.SelectRoom(context.Background(), lobby))
	m.registry.JoinRoom(session.ID, lobby.ID)
	require.NoError(t, session.View.Type(context.Background(), "typing..."))

	m.closeSession(session)

	_, ok := m.registry.Get(session.ID)
	assert.False(t, ok)
	assert.Equal(t, 0, m.registry.RoomCount(lobby.ID))

	// A fresh view of the room sees nobody typing.
	observer, err := chatview.New(chatview.Config{User: chat.Sender{ID: "observer", Name: "Obs"}}, chatview.Deps{
		Messages: stores.Messages(),
		Presence: stores.Typing(),
		Logger:   &mockLogger{},
	})
	require.NoError(t, err)
	defer observer.Close(context.Background())
	require.NoError(t, observer.SelectRoom(context.Background(), lobby))
	require.Eventually(t, func() bool {
		return !observer.State().Loading
	}, waitFor, 10*time.Millisecond)
	assert.Empty(t, observer.State().Typers)
}

func TestUserFromQuery(t *testing.T) {
	tests := []struct {
		name    string
		params  map[string]string
		want    chat.Sender
		wantErr bool
	}{
		{
			name:   "all fields",
			params: map[string]string{"user_id": "u-1", "name": " Ann ", "image": "https://example.com/a.png"},
			want:   chat.Sender{ID: "u-1", Name: "Ann", Image: "https://example.com/a.png"},
		},
		{
			name:   "default name",
			params: map[string]string{"user_id": "u-2"},
			want:   chat.Sender{ID: "u-2", Name: defaultUsername},
		},
		{
			name:    "invalid id",
			params:  map[string]string{"user_id": "bad.id"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query := func(key string, defaultValue ...string) string {
				if v, ok := tt.params[key]; ok {
					return v
				}
				if len(defaultValue) > 0 {
					return defaultValue[0]
				}
				return ""
			}

			got, err := userFromQuery(query)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("generated id", func(t *testing.T) {
		got, err := userFromQuery(func(string, ...string) string { return "" })
		require.NoError(t, err)
		assert.NotEmpty(t, got.ID)
		assert.Equal(t, defaultUsername, got.Name)
	})
}
