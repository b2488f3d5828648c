// Package chatview keeps one client's view of a chat room in sync with the
// realtime store: live message and typing-presence subscriptions, the
// composer with text and image sends, and the search filter.
package chatview

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/example/chatroom-sync-demo/domain/chat"
	"github.com/example/chatroom-sync-demo/modules/media"
	"github.com/example/chatroom-sync-demo/modules/realtime"
	"github.com/go-monolith/mono/pkg/types"
)

// Defaults applied by New.
const (
	DefaultPresenceTTL  = 30 * time.Second
	DefaultNoticeBuffer = 16
)

// Uploader stores an image and returns where it can be downloaded.
type Uploader interface {
	Upload(ctx context.Context, name string, r io.Reader, size int64, progress media.ProgressFunc) (*media.Object, error)
	Discard(ctx context.Context, name string) error
}

// Publisher is told about completed sends and uploads.
type Publisher interface {
	MessagePosted(ctx context.Context, room chat.Room, key string, msg chat.Message)
	ImageUploaded(ctx context.Context, room chat.Room, obj *media.Object)
	UploadFailed(ctx context.Context, room chat.Room, fileName string, err error)
}

type nopPublisher struct{}

func (nopPublisher) MessagePosted(context.Context, chat.Room, string, chat.Message) {}
func (nopPublisher) ImageUploaded(context.Context, chat.Room, *media.Object)         {}
func (nopPublisher) UploadFailed(context.Context, chat.Room, string, error)          {}

// File is an image picked for upload.
type File struct {
	Name string
	Size int64
	Body io.Reader
}

// Config holds per-view settings.
type Config struct {
	User          chat.Sender
	PresenceTTL   time.Duration // 0 uses DefaultPresenceTTL, negative disables expiry
	PruneInterval time.Duration // 0 uses PresenceTTL / 2
	NoticeBuffer  int
}

// Deps are the collaborators of a View.
type Deps struct {
	Messages  realtime.Store
	Presence  realtime.Store
	Uploader  Uploader
	Publisher Publisher
	Logger    types.Logger
	Now       func() time.Time
}

// View is one client's synchronized view of a chat room.
type View struct {
	user      chat.Sender
	ttl       time.Duration
	messages  realtime.Store
	presence  realtime.Store
	uploader  Uploader
	publisher Publisher
	logger    types.Logger
	now       func() time.Time

	mu          sync.Mutex
	state       State
	room        *chat.Room
	gen         uint64
	msgSub      realtime.Subscription
	presenceSub realtime.Subscription
	cache       *messageCache
	typing      presenceSet
	closed      bool

	updates chan State
	notices chan Notice
	stop    chan struct{}
	done    chan struct{}
}

// New creates a view for cfg.User and starts its presence expiry loop.
func New(cfg Config, deps Deps) (*View, error) {
	if !realtime.ValidToken(cfg.User.ID) {
		return nil, fmt.Errorf("%w: id %q", ErrInvalidUser, cfg.User.ID)
	}
	if deps.Messages == nil || deps.Presence == nil {
		return nil, fmt.Errorf("chatview: message and presence stores are required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("chatview: logger is required")
	}

	ttl := cfg.PresenceTTL
	if ttl == 0 {
		ttl = DefaultPresenceTTL
	}
	if ttl < 0 {
		ttl = 0
	}
	interval := cfg.PruneInterval
	if interval <= 0 {
		interval = ttl / 2
	}
	if cfg.NoticeBuffer <= 0 {
		cfg.NoticeBuffer = DefaultNoticeBuffer
	}
	if deps.Publisher == nil {
		deps.Publisher = nopPublisher{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	v := &View{
		user:      cfg.User,
		ttl:       ttl,
		messages:  deps.Messages,
		presence:  deps.Presence,
		uploader:  deps.Uploader,
		publisher: deps.Publisher,
		logger:    deps.Logger.With("user_id", cfg.User.ID),
		now:       deps.Now,
		state:     initialState(),
		cache:     newMessageCache(),
		updates:   make(chan State, 1),
		notices:   make(chan Notice, cfg.NoticeBuffer),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}

	if interval > 0 {
		go v.pruneLoop(interval)
	} else {
		close(v.done)
	}
	return v, nil
}

// Updates delivers the latest state after every change. Intermediate states
// are dropped when the reader falls behind. The channel is closed by Close.
func (v *View) Updates() <-chan State {
	return v.updates
}

// Notices delivers validation and failure notices. The channel is closed by
// Close.
func (v *View) Notices() <-chan Notice {
	return v.notices
}

// State returns the current state.
func (v *View) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Room returns the active room, if any.
func (v *View) Room() (chat.Room, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.room == nil {
		return chat.Room{}, false
	}
	return *v.room, true
}

// SelectRoom makes room the active room. Subscriptions of the previous room
// are released before the new ones are opened, and snapshots still in flight
// from them are discarded.
func (v *View) SelectRoom(ctx context.Context, room chat.Room) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrClosed
	}
	oldMsgSub, oldPresenceSub := v.msgSub, v.presenceSub
	prev := v.room
	wasTyping := v.state.Composer != ""

	v.msgSub, v.presenceSub = nil, nil
	v.gen++
	gen := v.gen
	v.room = &room
	v.cache = newMessageCache()
	v.typing.reset()
	v.state.Room = v.room
	v.state.Messages = []chat.Message{}
	v.state.Composer = ""
	v.state.Upload = UploadState{Phase: UploadIdle}
	v.state.Loading = true
	v.state.FocusToken++
	v.deriveLocked()
	v.publishLocked()
	v.mu.Unlock()

	v.stopSub(oldMsgSub)
	v.stopSub(oldPresenceSub)
	if prev != nil && wasTyping {
		v.clearPresence(ctx, *prev)
	}

	msgSub, err := v.messages.Subscribe(ctx, room.ID, func(s realtime.Snapshot) {
		v.onMessages(gen, s)
	})
	if err != nil {
		v.subscribeFailed(gen, room, err)
		return fmt.Errorf("failed to subscribe to messages of room %s: %w", room.ID, err)
	}

	presenceSub, err := v.presence.Subscribe(ctx, room.Key, func(s realtime.Snapshot) {
		v.onPresence(gen, s)
	})
	if err != nil {
		v.subscribeFailed(gen, room, err)
		// Messages still work without presence.
		presenceSub = nil
	}

	v.mu.Lock()
	if v.closed || v.gen != gen {
		v.mu.Unlock()
		v.stopSub(msgSub)
		v.stopSub(presenceSub)
		return nil
	}
	v.msgSub, v.presenceSub = msgSub, presenceSub
	v.mu.Unlock()

	v.logger.Info("Room selected", "room_id", room.ID, "room_key", room.Key)
	return nil
}

func (v *View) onMessages(gen uint64, snap realtime.Snapshot) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed || gen != v.gen {
		return
	}

	replaced, err := v.cache.apply(snap)
	if err != nil {
		v.logger.Warn("Skipping undecodable message", "room_id", snap.Collection, "error", err)
	}
	if replaced && snap.Change != nil {
		v.logger.Debug("Message cache replaced", "room_id", snap.Collection, "entries", len(snap.Entries))
	}

	v.state.Messages = v.cache.messages()
	v.state.Loading = false
	v.deriveLocked()
	v.publishLocked()
}

func (v *View) onPresence(gen uint64, snap realtime.Snapshot) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed || gen != v.gen {
		return
	}

	v.typing.replace(snap.Entries, v.now())
	v.deriveLocked()
	v.publishLocked()
}

func (v *View) subscribeFailed(gen uint64, room chat.Room, err error) {
	v.logger.Error("Subscription failed", "room_id", room.ID, "error", err)

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed || gen != v.gen {
		return
	}
	v.state.Loading = false
	v.publishLocked()
	v.noticeLocked(Notice{
		Kind:    NoticeSubscribeFailed,
		Message: fmt.Sprintf("could not load room %s", room.Name),
		Err:     err,
	})
}

// Type sets the composer text and refreshes this user's presence entry:
// non-empty text marks the user as typing, empty text clears the mark.
func (v *View) Type(ctx context.Context, text string) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrClosed
	}
	v.state.Composer = text
	room := v.room
	v.publishLocked()
	v.mu.Unlock()

	if room == nil {
		return nil
	}

	var err error
	if text != "" {
		err = v.presence.Set(ctx, room.Key, v.user.ID, []byte(v.user.Name))
	} else {
		err = v.presence.Remove(ctx, room.Key, v.user.ID)
	}
	if err != nil {
		v.logger.Warn("Presence update failed", "room_key", room.Key, "error", err)
		return fmt.Errorf("failed to update presence: %w", err)
	}
	return nil
}

// Search sets the filter applied to the visible message list.
func (v *View) Search(query string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.state.Search = query
	v.deriveLocked()
	v.publishLocked()
}

// SubmitText sends the composer text as a text message. Whitespace-only
// text is rejected with ErrEmptyMessage and nothing is written. Otherwise
// the composer and the user's presence entry are cleared and focus returned
// whether or not the write succeeds.
func (v *View) SubmitText(ctx context.Context) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrClosed
	}
	text := v.state.Composer
	if strings.TrimSpace(text) == "" {
		v.noticeLocked(Notice{Kind: NoticeValidation, Message: "Please enter a message"})
		v.mu.Unlock()
		return ErrEmptyMessage
	}
	if v.room == nil {
		v.noticeLocked(Notice{Kind: NoticeValidation, Message: "Please select a room"})
		v.mu.Unlock()
		return ErrNoRoom
	}
	room := *v.room
	v.state.Pending = true
	v.publishLocked()
	v.mu.Unlock()

	msg := chat.NewTextMessage(v.user, text)
	key, err := v.pushMessage(ctx, room, msg)
	// The composer is emptied on both paths.
	v.clearPresence(ctx, room)
	if err == nil {
		v.publisher.MessagePosted(ctx, room, key, msg)
	}

	v.mu.Lock()
	v.state.Pending = false
	v.state.Composer = ""
	v.state.FocusToken++
	if err != nil {
		v.noticeLocked(Notice{Kind: NoticeWriteFailed, Message: "Failed to send message", Err: err})
	}
	v.publishLocked()
	v.mu.Unlock()

	return err
}

// SubmitImage uploads file and sends it as an image message. A nil file is
// a no-op. Upload progress is published as it happens; the upload is not
// retried on failure.
func (v *View) SubmitImage(ctx context.Context, file *File) error {
	if file == nil || file.Body == nil {
		return nil
	}

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrClosed
	}
	if v.room == nil {
		v.noticeLocked(Notice{Kind: NoticeValidation, Message: "Please select a room"})
		v.mu.Unlock()
		return ErrNoRoom
	}
	if v.uploader == nil {
		v.noticeLocked(Notice{Kind: NoticeUploadFailed, Message: "Image upload is not available"})
		v.mu.Unlock()
		return fmt.Errorf("chatview: no uploader configured")
	}
	room := *v.room
	gen := v.gen
	v.state.Pending = true
	v.state.Upload = UploadState{Phase: UploadUploading, Name: file.Name}
	v.publishLocked()
	v.mu.Unlock()

	obj, err := v.uploader.Upload(ctx, file.Name, file.Body, file.Size, func(transferred, total int64) {
		v.onProgress(gen, media.Percent(transferred, total))
	})
	if err != nil {
		v.logger.Warn("Image upload failed", "room_id", room.ID, "file", file.Name, "error", err)
		v.publisher.UploadFailed(ctx, room, file.Name, err)

		v.mu.Lock()
		v.state.Pending = false
		if gen == v.gen {
			v.state.Upload.Phase = UploadFailed
		}
		v.noticeLocked(Notice{
			Kind:    NoticeUploadFailed,
			Message: fmt.Sprintf("Failed to upload %s", file.Name),
			Err:     err,
		})
		v.publishLocked()
		v.mu.Unlock()
		return fmt.Errorf("failed to upload image: %w", err)
	}
	v.publisher.ImageUploaded(ctx, room, obj)

	msg := chat.NewImageMessage(v.user, obj.URL)
	key, err := v.pushMessage(ctx, room, msg)
	if err == nil {
		v.publisher.MessagePosted(ctx, room, key, msg)
	} else if derr := v.uploader.Discard(ctx, obj.Name); derr != nil {
		v.logger.Warn("Failed to discard unsent image", "object", obj.Name, "error", derr)
	}

	v.mu.Lock()
	v.state.Pending = false
	if gen == v.gen {
		v.state.Upload = UploadState{Phase: UploadComplete, Percent: 100, Name: file.Name, URL: obj.URL}
		v.state.FocusToken++
	}
	if err != nil {
		v.noticeLocked(Notice{Kind: NoticeWriteFailed, Message: "Failed to send image", Err: err})
	}
	v.publishLocked()
	v.mu.Unlock()

	return err
}

func (v *View) onProgress(gen uint64, percent int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed || gen != v.gen || v.state.Upload.Percent == percent {
		return
	}
	v.state.Upload.Percent = percent
	v.publishLocked()
}

func (v *View) pushMessage(ctx context.Context, room chat.Room, msg chat.Message) (string, error) {
	payload, err := encodeMessage(msg)
	if err != nil {
		return "", fmt.Errorf("failed to encode message: %w", err)
	}
	key, err := v.messages.Push(ctx, room.ID, payload)
	if err != nil {
		v.logger.Warn("Message write failed", "room_id", room.ID, "error", err)
		return "", fmt.Errorf("failed to send message: %w", err)
	}
	v.logger.Debug("Message sent", "room_id", room.ID, "key", key, "kind", msg.Kind())
	return key, nil
}

func (v *View) clearPresence(ctx context.Context, room chat.Room) {
	if err := v.presence.Remove(ctx, room.Key, v.user.ID); err != nil {
		v.logger.Warn("Failed to clear presence", "room_key", room.Key, "error", err)
	}
}

// Close releases the subscriptions, clears this user's presence entry and
// stops the expiry loop. The Updates and Notices channels are closed.
func (v *View) Close(ctx context.Context) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil
	}
	v.closed = true
	v.gen++
	msgSub, presenceSub := v.msgSub, v.presenceSub
	v.msgSub, v.presenceSub = nil, nil
	room := v.room
	close(v.updates)
	close(v.notices)
	v.mu.Unlock()

	close(v.stop)
	<-v.done

	v.stopSub(msgSub)
	v.stopSub(presenceSub)
	if room != nil {
		v.clearPresence(ctx, *room)
	}
	return nil
}

func (v *View) stopSub(sub realtime.Subscription) {
	if sub == nil {
		return
	}
	if err := sub.Stop(); err != nil {
		v.logger.Warn("Failed to stop subscription", "error", err)
	}
}

func (v *View) pruneLoop(interval time.Duration) {
	defer close(v.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-v.stop:
			return
		case <-ticker.C:
			v.prune()
		}
	}
}

// prune hides presence entries whose heartbeat is older than the TTL.
func (v *View) prune() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	typers := v.typing.typers(v.now(), v.ttl)
	if slices.Equal(typers, v.state.Typers) {
		return
	}
	v.state.Typers = typers
	v.publishLocked()
}

// deriveLocked recomputes the derived fields of the state.
func (v *View) deriveLocked() {
	v.state.Visible = FilterMessages(v.state.Messages, v.state.Search)
	v.state.Typers = v.typing.typers(v.now(), v.ttl)
}

// publishLocked offers the current state to Updates, replacing any state
// the reader has not taken yet.
func (v *View) publishLocked() {
	if v.closed {
		return
	}
	s := v.state
	select {
	case v.updates <- s:
		return
	default:
	}
	select {
	case <-v.updates:
	default:
	}
	select {
	case v.updates <- s:
	default:
	}
}

func (v *View) noticeLocked(n Notice) {
	if v.closed {
		return
	}
	select {
	case v.notices <- n:
	default:
		v.logger.Warn("Notice dropped", "kind", n.Kind, "message", n.Message)
	}
}
