package api

import (
	"context"
	"time"

	"github.com/example/chatroom-sync-demo/domain/chat"
	"github.com/example/chatroom-sync-demo/events"
	"github.com/example/chatroom-sync-demo/modules/media"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
)

// eventPublisher turns view callbacks into event bus events for one user.
type eventPublisher struct {
	bus    mono.EventBus
	user   chat.Sender
	logger types.Logger
}

func newEventPublisher(bus mono.EventBus, user chat.Sender, logger types.Logger) *eventPublisher {
	return &eventPublisher{bus: bus, user: user, logger: logger}
}

func (p *eventPublisher) MessagePosted(_ context.Context, room chat.Room, key string, msg chat.Message) {
	if p.bus == nil {
		return
	}
	ev := events.MessagePostedEvent{
		RoomID:     room.ID,
		MessageKey: key,
		Kind:       string(msg.Kind()),
		UserID:     p.user.ID,
		Username:   p.user.Name,
		Timestamp:  time.Now(),
	}
	if err := events.MessagePostedV1.Publish(p.bus, ev, nil); err != nil {
		p.logger.Warn("Failed to publish MessagePosted event", "room_id", room.ID, "error", err)
	}
}

func (p *eventPublisher) ImageUploaded(_ context.Context, room chat.Room, obj *media.Object) {
	if p.bus == nil || obj == nil {
		return
	}
	ev := events.ImageUploadedEvent{
		RoomID:      room.ID,
		UserID:      p.user.ID,
		ObjectName:  obj.Name,
		ContentType: obj.ContentType,
		Size:        obj.Size,
		URL:         obj.URL,
		Timestamp:   time.Now(),
	}
	if err := events.ImageUploadedV1.Publish(p.bus, ev, nil); err != nil {
		p.logger.Warn("Failed to publish ImageUploaded event", "room_id", room.ID, "error", err)
	}
}

func (p *eventPublisher) UploadFailed(_ context.Context, room chat.Room, fileName string, cause error) {
	if p.bus == nil {
		return
	}
	reason := ""
	if cause != nil {
		reason = cause.Error()
	}
	ev := events.UploadFailedEvent{
		RoomID:    room.ID,
		UserID:    p.user.ID,
		FileName:  fileName,
		Reason:    reason,
		Timestamp: time.Now(),
	}
	if err := events.UploadFailedV1.Publish(p.bus, ev, nil); err != nil {
		p.logger.Warn("Failed to publish UploadFailed event", "room_id", room.ID, "error", err)
	}
}
