package api

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/example/chatroom-sync-demo/domain/chat"
	"github.com/example/chatroom-sync-demo/modules/chatview"
	"github.com/example/chatroom-sync-demo/modules/realtime"
	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
)

const (
	defaultUsername     = "anonymous"
	maxUsernameLength   = 64
	sessionCloseTimeout = 5 * time.Second
)

// handleWebSocket handles WebSocket connections at /ws.
func (m *Module) handleWebSocket(c *websocket.Conn) {
	user, err := userFromQuery(c.Query)
	if err != nil {
		_ = c.WriteJSON(ServerFrame{Type: FrameError, Error: err.Error()})
		return
	}

	session, err := m.openSession(user)
	if err != nil {
		m.logger.Error("Failed to open session", "user_id", user.ID, "error", err)
		_ = c.WriteJSON(ServerFrame{Type: FrameError, Error: "Failed to open session"})
		return
	}
	defer m.closeSession(session)

	m.logger.Info("WebSocket client connected", "session_id", session.ID, "user_id", user.ID, "name", user.Name)

	session.InitialRoom = c.Query("room_id")
	if err := session.Run(m.ctx, c); err != nil {
		m.logger.Warn("WebSocket session ended with error", "session_id", session.ID, "error", err)
	}
}

// openSession creates a view for user and registers its session.
func (m *Module) openSession(user chat.Sender) (*Session, error) {
	if m.stores == nil {
		return nil, fmt.Errorf("realtime stores not set")
	}

	deps := chatview.Deps{
		Messages:  m.stores.Messages(),
		Presence:  m.stores.Typing(),
		Uploader:  m.media,
		Publisher: newEventPublisher(m.eventBus, user, m.logger),
		Logger:    m.logger,
	}

	view, err := chatview.New(chatview.Config{
		User:        user,
		PresenceTTL: m.cfg.PresenceTTL,
	}, deps)
	if err != nil {
		return nil, err
	}

	session := NewSession(uuid.New().String(), user, view, m.rooms, m.registry, m.logger)
	m.registry.Register(session)
	return session, nil
}

// closeSession releases the view, including the user's typing entry, and
// unregisters the session.
func (m *Module) closeSession(s *Session) {
	ctx, cancel := context.WithTimeout(context.Background(), sessionCloseTimeout)
	defer cancel()

	if err := s.View.Close(ctx); err != nil {
		m.logger.Warn("Failed to close view", "session_id", s.ID, "error", err)
	}
	m.registry.Unregister(s)
	m.logger.Info("WebSocket client disconnected", "session_id", s.ID, "user_id", s.User.ID)
}

// userFromQuery reads the connecting user from the upgrade request. A
// missing user_id gets a fresh one.
func userFromQuery(query func(key string, defaultValue ...string) string) (chat.Sender, error) {
	id := strings.TrimSpace(query("user_id"))
	if id == "" {
		id = uuid.New().String()
	}
	if !realtime.ValidToken(id) {
		return chat.Sender{}, fmt.Errorf("invalid user_id %q", id)
	}

	name := strings.TrimSpace(query("name"))
	if name == "" {
		name = defaultUsername
	}
	if len([]rune(name)) > maxUsernameLength {
		name = string([]rune(name)[:maxUsernameLength])
	}

	return chat.Sender{
		ID:    id,
		Name:  name,
		Image: strings.TrimSpace(query("image")),
	}, nil
}
