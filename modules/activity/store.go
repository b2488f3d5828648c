package activity

import (
	"sort"
	"sync"
	"time"
)

// RoomActivity holds counters for one room.
type RoomActivity struct {
	RoomID         string    `json:"room_id"`
	Messages       int64     `json:"messages"`
	TextMessages   int64     `json:"text_messages"`
	ImageMessages  int64     `json:"image_messages"`
	Uploads        int64     `json:"uploads"`
	UploadFailures int64     `json:"upload_failures"`
	BytesUploaded  int64     `json:"bytes_uploaded"`
	Senders        int       `json:"senders"`
	LastActivity   time.Time `json:"last_activity,omitempty"`
}

type roomCounters struct {
	RoomActivity
	senders map[string]struct{}
}

// Store keeps per-room activity counters in memory.
type Store struct {
	mu    sync.RWMutex
	rooms map[string]*roomCounters
}

// NewStore creates an empty activity store.
func NewStore() *Store {
	return &Store{rooms: make(map[string]*roomCounters)}
}

func (s *Store) roomLocked(roomID string) *roomCounters {
	r, ok := s.rooms[roomID]
	if !ok {
		r = &roomCounters{
			RoomActivity: RoomActivity{RoomID: roomID},
			senders:      make(map[string]struct{}),
		}
		s.rooms[roomID] = r
	}
	return r
}

func (r *roomCounters) touch(at time.Time) {
	if at.After(r.LastActivity) {
		r.LastActivity = at
	}
}

// RecordMessage counts a posted message of the given kind.
func (s *Store) RecordMessage(roomID, userID, kind string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.roomLocked(roomID)
	r.Messages++
	switch kind {
	case "text":
		r.TextMessages++
	case "image":
		r.ImageMessages++
	}
	if userID != "" {
		r.senders[userID] = struct{}{}
		r.Senders = len(r.senders)
	}
	r.touch(at)
}

// RecordUpload counts a completed upload.
func (s *Store) RecordUpload(roomID string, size int64, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.roomLocked(roomID)
	r.Uploads++
	r.BytesUploaded += size
	r.touch(at)
}

// RecordUploadFailure counts an abandoned upload.
func (s *Store) RecordUploadFailure(roomID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.roomLocked(roomID)
	r.UploadFailures++
	r.touch(at)
}

// Get returns a copy of the counters of a room.
func (s *Store) Get(roomID string) (RoomActivity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return RoomActivity{RoomID: roomID}, false
	}
	return r.RoomActivity, true
}

// All returns the counters of every room, most recently active first.
func (s *Store) All() []RoomActivity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]RoomActivity, 0, len(s.rooms))
	for _, r := range s.rooms {
		out = append(out, r.RoomActivity)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActivity.After(out[j].LastActivity)
	})
	return out
}

// Totals sums messages and uploads across rooms.
func (s *Store) Totals() (messages, uploads int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.rooms {
		messages += r.Messages
		uploads += r.Uploads
	}
	return messages, uploads
}
