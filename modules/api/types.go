package api

import (
	"time"

	"github.com/example/chatroom-sync-demo/modules/chatview"
)

// Inbound websocket frame types.
const (
	FrameSelectRoom = "select_room"
	FrameType       = "type"
	FrameSubmit     = "submit"
	FrameSearch     = "search"
)

// Outbound websocket frame types.
const (
	FrameConnected = "connected"
	FrameState     = "state"
	FrameNotice    = "notice"
	FrameError     = "error"
)

// ClientFrame is a frame sent by the websocket client.
type ClientFrame struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id,omitempty"`
	Text   string `json:"text,omitempty"`
}

// ServerFrame is a frame sent to the websocket client.
type ServerFrame struct {
	Type      string           `json:"type"`
	SessionID string           `json:"session_id,omitempty"`
	UserID    string           `json:"user_id,omitempty"`
	State     *StatePayload    `json:"state,omitempty"`
	Notice    *chatview.Notice `json:"notice,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// StatePayload is the view state as rendered to the client.
type StatePayload struct {
	chatview.State
	ShowProgress bool `json:"show_progress"`
}

func newStatePayload(s chatview.State) *StatePayload {
	return &StatePayload{State: s, ShowProgress: s.Upload.ShowProgress()}
}

// CreateRoomRequest is the API request to create a room.
type CreateRoomRequest struct {
	Name string `json:"name"`
}

// RoomResponse is the API response for a room.
type RoomResponse struct {
	ID        string    `json:"id"`
	Key       string    `json:"key"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	Viewers   int       `json:"viewers"`
}

// RoomListResponse is the API response for listing rooms.
type RoomListResponse struct {
	Rooms []RoomResponse `json:"rooms"`
}

// UploadResponse is the API response for an image upload.
type UploadResponse struct {
	SessionID string               `json:"session_id"`
	Upload    chatview.UploadState `json:"upload"`
}

// ErrorResponse is the API error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HealthResponse is the API health check response.
type HealthResponse struct {
	Status  string         `json:"status"`
	Details map[string]any `json:"details,omitempty"`
}
