package activity

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// ActivityPort reads room activity counters.
type ActivityPort interface {
	RoomActivity(ctx context.Context, roomID string) (RoomActivity, error)
}

// ActivityAdapter implements ActivityPort using the service container.
type ActivityAdapter struct {
	container mono.ServiceContainer
}

// NewActivityAdapter creates a new ActivityAdapter.
func NewActivityAdapter(container mono.ServiceContainer) *ActivityAdapter {
	return &ActivityAdapter{container: container}
}

// RoomActivity returns the counters of one room. Rooms without activity
// yield zero counters.
func (a *ActivityAdapter) RoomActivity(ctx context.Context, roomID string) (RoomActivity, error) {
	req := RoomActivityRequest{RoomID: roomID}
	var resp RoomActivityResponse

	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		"room-activity",
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return RoomActivity{}, fmt.Errorf("room-activity request failed: %w", err)
	}

	if len(resp.Rooms) == 0 {
		return RoomActivity{RoomID: roomID}, nil
	}
	return resp.Rooms[0], nil
}
