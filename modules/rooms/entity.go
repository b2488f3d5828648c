package rooms

import (
	"time"

	"github.com/example/chatroom-sync-demo/domain/chat"
)

// Room is the persisted form of a chat room.
type Room struct {
	ID        string    `gorm:"primarykey;size:36" json:"id"`
	Key       string    `gorm:"uniqueIndex;size:32;not null" json:"key"`
	Name      string    `gorm:"uniqueIndex;size:64;not null" json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the table name for Room model.
func (Room) TableName() string {
	return "rooms"
}

// ToDomain converts the model to the domain room.
func (r *Room) ToDomain() chat.Room {
	return chat.Room{
		ID:        r.ID,
		Key:       r.Key,
		Name:      r.Name,
		CreatedAt: r.CreatedAt,
	}
}
