package chatview

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/example/chatroom-sync-demo/domain/chat"
	"github.com/example/chatroom-sync-demo/modules/media"
	"github.com/example/chatroom-sync-demo/modules/realtime"
	"github.com/go-monolith/mono/pkg/types"
)

// mockLogger implements types.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(msg string, args ...any)         {}
func (m *mockLogger) Info(msg string, args ...any)          {}
func (m *mockLogger) Warn(msg string, args ...any)          {}
func (m *mockLogger) Error(msg string, args ...any)         {}
func (m *mockLogger) With(args ...any) types.Logger         { return m }
func (m *mockLogger) WithError(err error) types.Logger      { return m }
func (m *mockLogger) WithModule(module string) types.Logger { return m }

var errStoreDown = errors.New("store down")

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeStore is an in-memory realtime.Store delivering snapshots
// synchronously from the writing goroutine.
type fakeStore struct {
	now func() time.Time

	mu           sync.Mutex
	rev          uint64
	seq          int
	data         map[string]map[string]realtime.Entry
	subs         []*fakeSub
	pushes       int
	sets         int
	removes      int
	pushErr      error
	setErr       error
	subscribeErr map[string]error
}

type fakeSub struct {
	store      *fakeStore
	collection string
	fn         realtime.Handler

	deliver sync.Mutex
	mu      sync.Mutex
	stopped bool
}

func newFakeStore(now func() time.Time) *fakeStore {
	return &fakeStore{
		now:          now,
		data:         make(map[string]map[string]realtime.Entry),
		subscribeErr: make(map[string]error),
	}
}

func (s *fakeStore) Subscribe(_ context.Context, collection string, fn realtime.Handler) (realtime.Subscription, error) {
	s.mu.Lock()
	if err := s.subscribeErr[collection]; err != nil {
		s.mu.Unlock()
		return nil, err
	}
	sub := &fakeSub{store: s, collection: collection, fn: fn}
	s.subs = append(s.subs, sub)
	snap := s.snapshotLocked(collection, nil)
	s.mu.Unlock()

	sub.emit(snap)
	return sub, nil
}

func (s *fakeStore) Push(_ context.Context, collection string, value []byte) (string, error) {
	s.mu.Lock()
	if s.pushErr != nil {
		s.mu.Unlock()
		return "", s.pushErr
	}
	s.pushes++
	s.seq++
	key := fmt.Sprintf("k%04d", s.seq)
	s.mu.Unlock()

	s.write(collection, key, value, realtime.OpPut)
	return key, nil
}

func (s *fakeStore) Set(_ context.Context, collection, key string, value []byte) error {
	s.mu.Lock()
	if s.setErr != nil {
		s.mu.Unlock()
		return s.setErr
	}
	s.sets++
	s.mu.Unlock()

	s.write(collection, key, value, realtime.OpPut)
	return nil
}

func (s *fakeStore) Remove(_ context.Context, collection, key string) error {
	s.mu.Lock()
	s.removes++
	_, ok := s.data[collection][key]
	s.mu.Unlock()

	if ok {
		s.write(collection, key, nil, realtime.OpDelete)
	}
	return nil
}

func (s *fakeStore) write(collection, key string, value []byte, op realtime.Op) {
	s.mu.Lock()
	s.rev++
	entry := realtime.Entry{Key: key, Value: value, Revision: s.rev, Created: s.now()}
	if s.data[collection] == nil {
		s.data[collection] = make(map[string]realtime.Entry)
	}
	if op == realtime.OpDelete {
		delete(s.data[collection], key)
	} else {
		s.data[collection][key] = entry
	}
	snap := s.snapshotLocked(collection, &realtime.Change{Op: op, Entry: entry})
	var targets []*fakeSub
	for _, sub := range s.subs {
		if sub.collection == collection {
			targets = append(targets, sub)
		}
	}
	s.mu.Unlock()

	for _, sub := range targets {
		sub.emit(snap)
	}
}

func (s *fakeStore) snapshotLocked(collection string, change *realtime.Change) realtime.Snapshot {
	entries := make([]realtime.Entry, 0, len(s.data[collection]))
	for _, e := range s.data[collection] {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Revision < entries[j].Revision })
	return realtime.Snapshot{Collection: collection, Entries: entries, Change: change}
}

// entries returns the current content of a collection.
func (s *fakeStore) entries(collection string) []realtime.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(collection, nil).Entries
}

func (s *fakeStore) pushCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pushes
}

// subsFor returns every subscription ever opened on collection.
func (s *fakeStore) subsFor(collection string) []*fakeSub {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*fakeSub
	for _, sub := range s.subs {
		if sub.collection == collection {
			out = append(out, sub)
		}
	}
	return out
}

func (sub *fakeSub) emit(snap realtime.Snapshot) {
	sub.deliver.Lock()
	defer sub.deliver.Unlock()
	if sub.isStopped() {
		return
	}
	sub.fn(snap)
}

// deliverStale calls the handler even after Stop, as a callback already in
// flight when the subscription was released would.
func (sub *fakeSub) deliverStale(snap realtime.Snapshot) {
	sub.fn(snap)
}

func (sub *fakeSub) isStopped() bool {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	return sub.stopped
}

func (sub *fakeSub) Stop() error {
	sub.deliver.Lock()
	defer sub.deliver.Unlock()
	sub.mu.Lock()
	sub.stopped = true
	sub.mu.Unlock()
	return nil
}

// fakeUploader reads the body in fixed chunks and reports progress.
type fakeUploader struct {
	chunk int
	err   error

	mu        sync.Mutex
	uploads   []string
	discarded []string
}

func (u *fakeUploader) Discard(_ context.Context, name string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.discarded = append(u.discarded, name)
	return nil
}

func (u *fakeUploader) Upload(_ context.Context, name string, r io.Reader, size int64, progress media.ProgressFunc) (*media.Object, error) {
	buf := make([]byte, u.chunk)
	var read int64
	for {
		n, err := r.Read(buf)
		read += int64(n)
		if n > 0 && progress != nil {
			progress(read, size)
		}
		if u.err != nil && read*2 >= size {
			return nil, u.err
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}

	u.mu.Lock()
	u.uploads = append(u.uploads, name)
	u.mu.Unlock()

	objName := "message/fixed-" + name
	return &media.Object{
		Name:         objName,
		OriginalName: name,
		ContentType:  media.DetectContentType(name),
		Size:         read,
		URL:          "http://media.test/media/" + objName,
	}, nil
}

// recordingPublisher records publisher callbacks.
type recordingPublisher struct {
	mu       sync.Mutex
	posted   []chat.Message
	uploaded []*media.Object
	failed   []string
}

func (p *recordingPublisher) MessagePosted(_ context.Context, _ chat.Room, _ string, msg chat.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.posted = append(p.posted, msg)
}

func (p *recordingPublisher) ImageUploaded(_ context.Context, _ chat.Room, obj *media.Object) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.uploaded = append(p.uploaded, obj)
}

func (p *recordingPublisher) UploadFailed(_ context.Context, _ chat.Room, fileName string, _ error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failed = append(p.failed, fileName)
}
