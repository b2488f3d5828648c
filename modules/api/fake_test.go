package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/example/chatroom-sync-demo/domain/chat"
	"github.com/example/chatroom-sync-demo/modules/activity"
	"github.com/example/chatroom-sync-demo/modules/media"
	"github.com/example/chatroom-sync-demo/modules/realtime"
	"github.com/example/chatroom-sync-demo/modules/rooms"
	fastws "github.com/fasthttp/websocket"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"
)

// mockLogger implements types.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(msg string, args ...any)         {}
func (m *mockLogger) Info(msg string, args ...any)          {}
func (m *mockLogger) Warn(msg string, args ...any)          {}
func (m *mockLogger) Error(msg string, args ...any)         {}
func (m *mockLogger) With(args ...any) types.Logger         { return m }
func (m *mockLogger) WithError(err error) types.Logger      { return m }
func (m *mockLogger) WithModule(module string) types.Logger { return m }

var errBackend = errors.New("backend unavailable")

var (
	lobby = chat.Room{
		ID:        "0b6e3c5e-4d5f-4a39-9d8e-5f0c2b7a1a01",
		Key:       "LobbyKey0001",
		Name:      "lobby",
		CreatedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	garden = chat.Room{
		ID:        "7f1d9a2c-8b3e-4c6d-a5f4-0e9b8c7d6a02",
		Key:       "GardenKey002",
		Name:      "garden",
		CreatedAt: time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC),
	}
)

// fakeRooms is an in-memory RoomsPort.
type fakeRooms struct {
	mu        sync.Mutex
	rooms     []chat.Room
	listErr   error
	createErr error
}

func newFakeRooms(list ...chat.Room) *fakeRooms {
	return &fakeRooms{rooms: list}
}

func (f *fakeRooms) CreateRoom(_ context.Context, name string) (*chat.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	for _, r := range f.rooms {
		if r.Name == name {
			return nil, rooms.ErrDuplicateName
		}
	}
	room := chat.Room{ID: "room-" + name, Key: "key" + name, Name: name, CreatedAt: time.Now()}
	f.rooms = append(f.rooms, room)
	return &room, nil
}

func (f *fakeRooms) GetRoom(_ context.Context, id string) (*chat.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rooms {
		if r.ID == id {
			room := r
			return &room, nil
		}
	}
	return nil, rooms.ErrNotFound
}

func (f *fakeRooms) ListRooms(_ context.Context) ([]chat.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]chat.Room(nil), f.rooms...), nil
}

// fakeActivity returns fixed counters.
type fakeActivity struct {
	stats map[string]activity.RoomActivity
	err   error
}

func (f *fakeActivity) RoomActivity(_ context.Context, roomID string) (activity.RoomActivity, error) {
	if f.err != nil {
		return activity.RoomActivity{}, f.err
	}
	if s, ok := f.stats[roomID]; ok {
		return s, nil
	}
	return activity.RoomActivity{RoomID: roomID}, nil
}

// fakeMedia keeps uploads in memory.
type fakeMedia struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	maxSize int64
	err     error
}

func newFakeMedia(maxSize int64) *fakeMedia {
	return &fakeMedia{
		objects: make(map[string][]byte),
		types:   make(map[string]string),
		maxSize: maxSize,
	}
}

func (f *fakeMedia) Upload(_ context.Context, name string, r io.Reader, size int64, progress media.ProgressFunc) (*media.Object, error) {
	if f.err != nil {
		return nil, f.err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if progress != nil {
		progress(int64(len(data)), size)
	}

	stored := media.StoragePrefix + "fixed-" + name
	contentType := media.DetectContentType(name)
	if !media.IsImage(contentType) {
		return nil, media.ErrNotImage
	}

	f.mu.Lock()
	f.objects[stored] = data
	f.types[stored] = contentType
	f.mu.Unlock()

	return &media.Object{
		Name:         stored,
		OriginalName: name,
		ContentType:  contentType,
		Size:         int64(len(data)),
		URL:          "http://localhost:3000/media/" + stored,
	}, nil
}

func (f *fakeMedia) Stat(ctx context.Context, name string) (*media.ObjectInfo, error) {
	_, info, err := f.Open(ctx, name)
	return info, err
}

func (f *fakeMedia) Discard(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, name)
	delete(f.types, name)
	return nil
}

func (f *fakeMedia) Open(_ context.Context, name string) (io.ReadCloser, *media.ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[name]
	if !ok {
		return nil, nil, media.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), &media.ObjectInfo{
		Name:        name,
		Size:        uint64(len(data)),
		ContentType: f.types[name],
	}, nil
}

func (f *fakeMedia) MaxUploadSize() int64 {
	return f.maxSize
}

// jsStores serves realtime stores backed by an embedded JetStream server.
type jsStores struct {
	messages *realtime.JetStreamStore
	typing   *realtime.JetStreamStore
}

func (s *jsStores) Messages() realtime.Store { return s.messages }
func (s *jsStores) Typing() realtime.Store   { return s.typing }

func startStores(t *testing.T) *jsStores {
	t.Helper()

	ns, err := realtime.StartEmbeddedServer(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() {
		ns.Shutdown()
		ns.WaitForShutdown()
	})

	conn, err := nats.Connect(ns.ClientURL())
	require.NoError(t, err)
	t.Cleanup(conn.Close)

	js, err := jetstream.New(conn)
	require.NoError(t, err)

	open := func(name string) *realtime.JetStreamStore {
		store, err := realtime.NewJetStreamStore(js, realtime.BucketConfig{
			Name:    name,
			Storage: jetstream.MemoryStorage,
		}, &mockLogger{})
		require.NoError(t, err)
		require.NoError(t, store.Init(context.Background()))
		return store
	}

	return &jsStores{
		messages: open("test-messages"),
		typing:   open("test-typing"),
	}
}

// newTestModule wires a gateway module to fakes without starting the server.
func newTestModule(t *testing.T, stores StoreProvider) (*Module, *fakeRooms, *fakeMedia) {
	t.Helper()

	m := NewModule(Config{PresenceTTL: time.Minute}, &mockLogger{})
	t.Cleanup(m.cancel)

	roomsPort := newFakeRooms(lobby, garden)
	mediaSvc := newFakeMedia(1 << 20)
	m.rooms = roomsPort
	m.activity = &fakeActivity{stats: map[string]activity.RoomActivity{
		lobby.ID: {RoomID: lobby.ID, Messages: 3, TextMessages: 2, ImageMessages: 1, Senders: 2},
	}}
	m.SetStores(stores)
	m.SetMedia(mediaSvc)
	return m, roomsPort, mediaSvc
}

// fakeConn is an in-memory websocket connection. Frames written by the
// session are decoded back into ServerFrame values.
type fakeConn struct {
	in     chan []byte
	closed chan struct{}
	once   sync.Once

	mu     sync.Mutex
	frames []ServerFrame

	// onWrite, when set before the session runs, sees every frame as it
	// is written.
	onWrite func(ServerFrame)
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data, ok := <-c.in:
		if !ok {
			return 0, nil, &fastws.CloseError{Code: fastws.CloseNormalClosure}
		}
		return fastws.TextMessage, data, nil
	case <-c.closed:
		return 0, nil, errors.New("use of closed network connection")
	}
}

func (c *fakeConn) WriteJSON(v any) error {
	select {
	case <-c.closed:
		return errors.New("use of closed network connection")
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var frame ServerFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return err
	}

	if c.onWrite != nil {
		c.onWrite(frame)
	}

	c.mu.Lock()
	c.frames = append(c.frames, frame)
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

// send queues a client frame.
func (c *fakeConn) send(t *testing.T, frame ClientFrame) {
	t.Helper()
	data, err := json.Marshal(frame)
	require.NoError(t, err)
	c.in <- data
}

// hangUp makes the next read report a normal close.
func (c *fakeConn) hangUp() {
	close(c.in)
}

func (c *fakeConn) snapshot() []ServerFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ServerFrame(nil), c.frames...)
}

// lastState returns the most recent state frame, if any.
func (c *fakeConn) lastState() *StatePayload {
	frames := c.snapshot()
	for i := len(frames) - 1; i >= 0; i-- {
		if frames[i].Type == FrameState {
			return frames[i].State
		}
	}
	return nil
}

// has reports whether any frame matches.
func (c *fakeConn) has(match func(ServerFrame) bool) bool {
	for _, f := range c.snapshot() {
		if match(f) {
			return true
		}
	}
	return false
}
