package activity

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/example/chatroom-sync-demo/events"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
)

// Module consumes chat events and keeps per-room activity counters.
type Module struct {
	store  *Store
	logger types.Logger
}

// Compile-time interface checks
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.EventConsumerModule   = (*Module)(nil)
	_ mono.ServiceProviderModule = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates a new activity module.
func NewModule(logger types.Logger) *Module {
	return &Module{
		store:  NewStore(),
		logger: logger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "activity"
}

// RegisterEventConsumers registers handlers for chat events.
func (m *Module) RegisterEventConsumers(registry mono.EventRegistry) error {
	if err := helper.RegisterTypedEventConsumer(registry, events.MessagePostedV1, m.handleMessagePosted, m); err != nil {
		return fmt.Errorf("failed to register MessagePosted consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(registry, events.ImageUploadedV1, m.handleImageUploaded, m); err != nil {
		return fmt.Errorf("failed to register ImageUploaded consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(registry, events.UploadFailedV1, m.handleUploadFailed, m); err != nil {
		return fmt.Errorf("failed to register UploadFailed consumer: %w", err)
	}

	m.logger.Info("Registered event consumers", "events", []string{"MessagePosted.v1", "ImageUploaded.v1", "UploadFailed.v1"})
	return nil
}

// RegisterServices registers the room-activity service.
func (m *Module) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container, "room-activity", json.Unmarshal, json.Marshal, m.roomActivity,
	); err != nil {
		return fmt.Errorf("failed to register room-activity service: %w", err)
	}

	m.logger.Info("Registered services", "services", []string{"room-activity"})
	return nil
}

func (m *Module) handleMessagePosted(_ context.Context, event events.MessagePostedEvent, _ *mono.Msg) error {
	m.store.RecordMessage(event.RoomID, event.UserID, event.Kind, event.Timestamp)
	m.logger.Debug("Recorded message", "room_id", event.RoomID, "kind", event.Kind, "key", event.MessageKey)
	return nil
}

func (m *Module) handleImageUploaded(_ context.Context, event events.ImageUploadedEvent, _ *mono.Msg) error {
	m.store.RecordUpload(event.RoomID, event.Size, event.Timestamp)
	m.logger.Debug("Recorded upload", "room_id", event.RoomID, "object", event.ObjectName, "size", event.Size)
	return nil
}

func (m *Module) handleUploadFailed(_ context.Context, event events.UploadFailedEvent, _ *mono.Msg) error {
	m.store.RecordUploadFailure(event.RoomID, event.Timestamp)
	m.logger.Info("Recorded upload failure", "room_id", event.RoomID, "file", event.FileName, "reason", event.Reason)
	return nil
}

// roomActivity handles the room-activity service request.
func (m *Module) roomActivity(_ context.Context, req RoomActivityRequest, _ *mono.Msg) (RoomActivityResponse, error) {
	if req.RoomID == "" {
		return RoomActivityResponse{Rooms: m.store.All()}, nil
	}
	room, _ := m.store.Get(req.RoomID)
	return RoomActivityResponse{Rooms: []RoomActivity{room}}, nil
}

// Start initializes the activity module.
func (m *Module) Start(_ context.Context) error {
	m.logger.Info("Activity module started")
	return nil
}

// Stop shuts down the module.
func (m *Module) Stop(_ context.Context) error {
	m.logger.Info("Activity module stopped")
	return nil
}

// Health reports the activity totals.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	messages, uploads := m.store.Totals()
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"messages": messages,
			"uploads":  uploads,
		},
	}
}

// Store returns the activity store.
func (m *Module) Store() *Store {
	return m.store
}
