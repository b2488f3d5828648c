package rooms

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/example/chatroom-sync-demo/domain/chat"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"golang.org/x/sync/singleflight"
)

// RoomsPort is the room catalog as seen by other modules.
type RoomsPort interface {
	CreateRoom(ctx context.Context, name string) (*chat.Room, error)
	GetRoom(ctx context.Context, id string) (*chat.Room, error)
	ListRooms(ctx context.Context) ([]chat.Room, error)
}

// RoomsAdapter implements RoomsPort using the service container.
type RoomsAdapter struct {
	container mono.ServiceContainer
	lookups   singleflight.Group
}

// NewRoomsAdapter creates a new RoomsAdapter.
func NewRoomsAdapter(container mono.ServiceContainer) *RoomsAdapter {
	return &RoomsAdapter{container: container}
}

// CreateRoom creates a room.
func (a *RoomsAdapter) CreateRoom(ctx context.Context, name string) (*chat.Room, error) {
	req := CreateRoomRequest{Name: name}
	var resp RoomResponse

	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		"create-room",
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, fmt.Errorf("create-room request failed: %w", mapServiceError(err))
	}

	room := toDomainRoom(resp)
	return &room, nil
}

// GetRoom retrieves a room by id. Concurrent lookups of the same id share
// one request.
func (a *RoomsAdapter) GetRoom(ctx context.Context, id string) (*chat.Room, error) {
	v, err, _ := a.lookups.Do(id, func() (any, error) {
		req := GetRoomRequest{ID: id}
		var resp RoomResponse

		if err := helper.CallRequestReplyService(
			ctx,
			a.container,
			"get-room",
			json.Marshal,
			json.Unmarshal,
			&req,
			&resp,
		); err != nil {
			return nil, fmt.Errorf("get-room request failed: %w", mapServiceError(err))
		}
		return toDomainRoom(resp), nil
	})
	if err != nil {
		return nil, err
	}

	room := v.(chat.Room)
	return &room, nil
}

// ListRooms lists all rooms.
func (a *RoomsAdapter) ListRooms(ctx context.Context) ([]chat.Room, error) {
	req := ListRoomsRequest{}
	var resp ListRoomsResponse

	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		"list-rooms",
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, fmt.Errorf("list-rooms request failed: %w", mapServiceError(err))
	}

	rooms := make([]chat.Room, 0, len(resp.Rooms))
	for _, r := range resp.Rooms {
		rooms = append(rooms, toDomainRoom(r))
	}
	return rooms, nil
}

func toDomainRoom(r RoomResponse) chat.Room {
	return chat.Room{
		ID:        r.ID,
		Key:       r.Key,
		Name:      r.Name,
		CreatedAt: r.CreatedAt,
	}
}

// mapServiceError restores sentinel errors from their message, which is all
// that survives the trip over NATS.
func mapServiceError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, ErrNotFound.Error()):
		return ErrNotFound
	case strings.Contains(msg, ErrDuplicateName.Error()):
		return ErrDuplicateName
	case strings.Contains(msg, ErrInvalidName.Error()):
		return fmt.Errorf("%w: %s", ErrInvalidName, msg)
	}
	return err
}
