package activity

// RoomActivityRequest is the request for the room-activity service.
// An empty RoomID returns every room.
type RoomActivityRequest struct {
	RoomID string `json:"room_id"`
}

// RoomActivityResponse is the response for the room-activity service.
type RoomActivityResponse struct {
	Rooms []RoomActivity `json:"rooms"`
}
