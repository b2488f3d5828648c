package rooms

import "time"

// CreateRoomRequest is the request for the create-room service.
type CreateRoomRequest struct {
	Name string `json:"name"`
}

// GetRoomRequest is the request for the get-room service.
type GetRoomRequest struct {
	ID string `json:"id"`
}

// ListRoomsRequest is the request for the list-rooms service.
type ListRoomsRequest struct{}

// RoomResponse is a room as returned by the services.
type RoomResponse struct {
	ID        string    `json:"id"`
	Key       string    `json:"key"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// ListRoomsResponse is the response for the list-rooms service.
type ListRoomsResponse struct {
	Rooms []RoomResponse `json:"rooms"`
	Total int            `json:"total"`
}
