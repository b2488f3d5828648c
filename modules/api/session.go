package api

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/example/chatroom-sync-demo/domain/chat"
	"github.com/example/chatroom-sync-demo/modules/chatview"
	"github.com/example/chatroom-sync-demo/modules/rooms"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/contrib/websocket"
	"golang.org/x/sync/errgroup"
)

const (
	maxMessageLength = 4096
	outboxSize       = 16
)

// Conn is the part of a websocket connection a Session uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteJSON(v any) error
	Close() error
}

// Session binds one websocket connection to one chat view.
type Session struct {
	ID   string
	User chat.Sender
	View *chatview.View

	// InitialRoom, when set, is selected as soon as the session runs.
	InitialRoom string

	rooms    rooms.RoomsPort
	registry *Registry
	logger   types.Logger
	outbox   chan ServerFrame
}

// NewSession creates a session for user around view.
func NewSession(id string, user chat.Sender, view *chatview.View, roomsPort rooms.RoomsPort, registry *Registry, logger types.Logger) *Session {
	return &Session{
		ID:       id,
		User:     user,
		View:     view,
		rooms:    roomsPort,
		registry: registry,
		logger:   logger.With("session_id", id),
		outbox:   make(chan ServerFrame, outboxSize),
	}
}

// Run serves the connection until the client goes away or ctx is done.
// A reader goroutine dispatches client frames to the view while a writer
// goroutine owns all writes to the connection.
func (s *Session) Run(ctx context.Context, conn Conn) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := conn.WriteJSON(ServerFrame{Type: FrameConnected, SessionID: s.ID, UserID: s.User.ID}); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		if s.InitialRoom != "" {
			s.selectRoom(gctx, s.InitialRoom)
		}
		return s.readLoop(gctx, conn)
	})
	g.Go(func() error {
		defer cancel()
		err := s.writeLoop(gctx, conn)
		// Unblocks the reader when the writer stops first.
		_ = conn.Close()
		return err
	})

	return g.Wait()
}

func (s *Session) readLoop(ctx context.Context, conn Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Info("Client closed connection")
				return nil
			}
			return err
		}

		var frame ClientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.sendError(ctx, "Invalid message format")
			continue
		}
		s.dispatch(ctx, frame)
	}
}

func (s *Session) dispatch(ctx context.Context, frame ClientFrame) {
	switch frame.Type {
	case FrameSelectRoom:
		s.selectRoom(ctx, frame.RoomID)
	case FrameType:
		if len(frame.Text) > maxMessageLength {
			s.sendError(ctx, "Message too long")
			return
		}
		if err := s.View.Type(ctx, frame.Text); err != nil && !errors.Is(err, chatview.ErrClosed) {
			s.logger.Warn("Typing update failed", "error", err)
		}
	case FrameSubmit:
		// Failures reach the client as notices.
		_ = s.View.SubmitText(ctx)
	case FrameSearch:
		s.View.Search(frame.Text)
	default:
		s.sendError(ctx, "Unknown message type: "+frame.Type)
	}
}

func (s *Session) selectRoom(ctx context.Context, roomID string) {
	if roomID == "" {
		s.sendError(ctx, "Room ID is required")
		return
	}

	room, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, rooms.ErrNotFound) {
			s.sendError(ctx, "Room not found")
		} else {
			s.logger.Error("Room lookup failed", "room_id", roomID, "error", err)
			s.sendError(ctx, "Failed to load room")
		}
		return
	}

	// The registry counts the session before the loaded room reaches the
	// client.
	s.registry.JoinRoom(s.ID, room.ID)
	if err := s.View.SelectRoom(ctx, *room); err != nil {
		// The view has already sent a notice.
		s.logger.Warn("Room selection failed", "room_id", roomID, "error", err)
		s.syncRoom()
	}
}

// syncRoom points the registry at the room the view actually holds.
func (s *Session) syncRoom() {
	if current, ok := s.View.Room(); ok {
		s.registry.JoinRoom(s.ID, current.ID)
		return
	}
	s.registry.LeaveRoom(s.ID)
}

func (s *Session) writeLoop(ctx context.Context, conn Conn) error {
	updates := s.View.Updates()
	notices := s.View.Notices()

	for {
		var frame ServerFrame
		select {
		case <-ctx.Done():
			return nil
		case frame = <-s.outbox:
		case st, ok := <-updates:
			if !ok {
				return nil
			}
			frame = ServerFrame{Type: FrameState, State: newStatePayload(st)}
		case n, ok := <-notices:
			if !ok {
				return nil
			}
			frame = ServerFrame{Type: FrameNotice, Notice: &n}
		}

		if err := conn.WriteJSON(frame); err != nil {
			s.logger.Warn("Failed to write frame", "type", frame.Type, "error", err)
			return err
		}
	}
}

func (s *Session) send(ctx context.Context, frame ServerFrame) {
	select {
	case s.outbox <- frame:
	case <-ctx.Done():
	}
}

func (s *Session) sendError(ctx context.Context, message string) {
	s.send(ctx, ServerFrame{Type: FrameError, Error: message})
}
