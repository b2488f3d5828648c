package chatview

import (
	"errors"
	"testing"

	"github.com/example/chatroom-sync-demo/modules/media"
	"github.com/stretchr/testify/assert"
)

func TestUploadState_ShowProgress(t *testing.T) {
	tests := []struct {
		transferred int64
		total       int64
		want        bool
	}{
		{0, 100, false},
		{1, 1000, false}, // rounds to 0
		{1, 100, true},
		{50, 100, true},
		{99, 100, true},
		{995, 1000, false}, // rounds to 100
		{100, 100, false},
	}

	for _, tt := range tests {
		u := UploadState{Phase: UploadUploading, Percent: media.Percent(tt.transferred, tt.total)}
		assert.Equal(t, tt.want, u.ShowProgress(), "%d/%d", tt.transferred, tt.total)
	}
}

func TestNotice_Error(t *testing.T) {
	assert.Equal(t, "Please enter a message", Notice{Message: "Please enter a message"}.Error())
	assert.Equal(t, "Failed to send message: boom", Notice{Message: "Failed to send message", Err: errors.New("boom")}.Error())
}
