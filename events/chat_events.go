package events

import (
	"time"

	"github.com/go-monolith/mono/pkg/helper"
)

// MessagePostedEvent is emitted after a text or image message is written to a room.
type MessagePostedEvent struct {
	RoomID     string    `json:"room_id"`
	MessageKey string    `json:"message_key"`
	Kind       string    `json:"kind"`
	UserID     string    `json:"user_id"`
	Username   string    `json:"username"`
	Timestamp  time.Time `json:"timestamp"`
}

// ImageUploadedEvent is emitted when an image finished uploading to object storage.
type ImageUploadedEvent struct {
	RoomID      string    `json:"room_id"`
	UserID      string    `json:"user_id"`
	ObjectName  string    `json:"object_name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	URL         string    `json:"url"`
	Timestamp   time.Time `json:"timestamp"`
}

// UploadFailedEvent is emitted when an image upload is abandoned.
type UploadFailedEvent struct {
	RoomID    string    `json:"room_id"`
	UserID    string    `json:"user_id"`
	FileName  string    `json:"file_name"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// Event definitions for the chat gateway.
var (
	MessagePostedV1 = helper.EventDefinition[MessagePostedEvent](
		"api",
		"MessagePosted",
		"v1",
	)

	ImageUploadedV1 = helper.EventDefinition[ImageUploadedEvent](
		"api",
		"ImageUploaded",
		"v1",
	)

	UploadFailedV1 = helper.EventDefinition[UploadFailedEvent](
		"api",
		"UploadFailed",
		"v1",
	)
)
