package api

import (
	"sync"

	"github.com/go-monolith/mono/pkg/types"
)

// Registry tracks connected sessions and the room each one is viewing.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session        // sessionID -> Session
	rooms    map[string]map[string]bool // roomID -> set of sessionIDs
	logger   types.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger types.Logger) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		rooms:    make(map[string]map[string]bool),
		logger:   logger,
	}
}

// Register adds a session.
func (r *Registry) Register(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[s.ID] = s
	r.logger.Debug("Session registered", "session_id", s.ID, "user_id", s.User.ID)
}

// Unregister removes a session and its room membership.
func (r *Registry) Unregister(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[s.ID]; !ok {
		return
	}
	delete(r.sessions, s.ID)
	r.leaveLocked(s.ID)
	r.logger.Debug("Session unregistered", "session_id", s.ID, "user_id", s.User.ID)
}

// JoinRoom records that a session is now viewing roomID.
func (r *Registry) JoinRoom(sessionID, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[sessionID]; !ok {
		return
	}
	r.leaveLocked(sessionID)
	if r.rooms[roomID] == nil {
		r.rooms[roomID] = make(map[string]bool)
	}
	r.rooms[roomID][sessionID] = true
}

// LeaveRoom records that a session is viewing no room.
func (r *Registry) LeaveRoom(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(sessionID)
}

func (r *Registry) leaveLocked(sessionID string) {
	for roomID, members := range r.rooms {
		if members[sessionID] {
			delete(members, sessionID)
			if len(members) == 0 {
				delete(r.rooms, roomID)
			}
		}
	}
}

// Get returns a session by ID.
func (r *Registry) Get(sessionID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	return s, ok
}

// Sessions returns all registered sessions.
func (r *Registry) Sessions() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Count returns the number of connected sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// RoomCount returns the number of sessions viewing roomID.
func (r *Registry) RoomCount(roomID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[roomID])
}
