package chatview

import "github.com/example/chatroom-sync-demo/domain/chat"

// UploadPhase is the lifecycle stage of an image upload.
type UploadPhase string

const (
	UploadIdle      UploadPhase = "idle"
	UploadUploading UploadPhase = "uploading"
	UploadComplete  UploadPhase = "complete"
	UploadFailed    UploadPhase = "failed"
)

// UploadState tracks the most recent image upload.
type UploadState struct {
	Phase   UploadPhase `json:"phase"`
	Percent int         `json:"percent"`
	Name    string      `json:"name,omitempty"`
	URL     string      `json:"url,omitempty"`
}

// ShowProgress reports whether a progress indicator should be displayed.
func (u UploadState) ShowProgress() bool {
	return u.Percent > 0 && u.Percent < 100
}

// State is the view's local snapshot of a room.
//
// Messages is the full cached list, Visible the list after the search
// filter. Slices are never modified after a State is published, so a State
// can be shared freely.
type State struct {
	Room       *chat.Room     `json:"room,omitempty"`
	Messages   []chat.Message `json:"-"`
	Visible    []chat.Message `json:"messages"`
	Typers     []string       `json:"typers"`
	Composer   string         `json:"composer"`
	Search     string         `json:"search"`
	Pending    bool           `json:"pending"`
	Upload     UploadState    `json:"upload"`
	FocusToken uint64         `json:"focus_token"`
	Loading    bool           `json:"loading"`
}

func initialState() State {
	return State{
		Messages: []chat.Message{},
		Visible:  []chat.Message{},
		Typers:   []string{},
		Upload:   UploadState{Phase: UploadIdle},
	}
}
