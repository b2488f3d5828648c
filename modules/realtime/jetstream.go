package realtime

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-monolith/mono/pkg/types"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// BucketConfig describes the Key-Value bucket backing one Store.
type BucketConfig struct {
	Name        string
	Description string
	TTL         time.Duration // zero keeps entries forever
	Storage     jetstream.StorageType
}

// JetStreamStore implements Store on a NATS JetStream Key-Value bucket.
// Collections map to the first key token, children to the second.
type JetStreamStore struct {
	js     jetstream.JetStream
	kv     jetstream.KeyValue
	cfg    BucketConfig
	keys   *KeyGenerator
	logger types.Logger
}

var _ Store = (*JetStreamStore)(nil)

// NewJetStreamStore creates a store for the given bucket. Init must be called
// before use.
func NewJetStreamStore(js jetstream.JetStream, cfg BucketConfig, logger types.Logger) (*JetStreamStore, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	keys, err := NewKeyGenerator()
	if err != nil {
		return nil, err
	}
	return &JetStreamStore{
		js:     js,
		cfg:    cfg,
		keys:   keys,
		logger: logger,
	}, nil
}

// Init opens the bucket, creating it when it does not exist yet.
func (s *JetStreamStore) Init(ctx context.Context) error {
	kv, err := s.js.KeyValue(ctx, s.cfg.Name)
	if err == nil {
		s.kv = kv
		return nil
	}
	if !errors.Is(err, jetstream.ErrBucketNotFound) {
		return fmt.Errorf("failed to open bucket %s: %w", s.cfg.Name, err)
	}

	kv, err = s.js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      s.cfg.Name,
		Description: s.cfg.Description,
		TTL:         s.cfg.TTL,
		Storage:     s.cfg.Storage,
		History:     1,
	})
	if err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", s.cfg.Name, err)
	}
	s.kv = kv
	return nil
}

// Bucket returns the bucket name.
func (s *JetStreamStore) Bucket() string {
	return s.cfg.Name
}

// Push writes value under a freshly generated key and returns that key.
func (s *JetStreamStore) Push(ctx context.Context, collection string, value []byte) (string, error) {
	if s.kv == nil {
		return "", ErrStoreUnavailable
	}
	key := s.keys.Next()
	full, err := entryKey(collection, key)
	if err != nil {
		return "", err
	}
	if _, err := s.kv.Create(ctx, full, value); err != nil {
		return "", fmt.Errorf("failed to push to %s: %w", collection, err)
	}
	return key, nil
}

// Set writes value under an exact key, replacing any previous value.
func (s *JetStreamStore) Set(ctx context.Context, collection, key string, value []byte) error {
	if s.kv == nil {
		return ErrStoreUnavailable
	}
	full, err := entryKey(collection, key)
	if err != nil {
		return err
	}
	if _, err := s.kv.Put(ctx, full, value); err != nil {
		return fmt.Errorf("failed to set %s: %w", full, err)
	}
	return nil
}

// Remove deletes an exact key. Removing a missing key is not an error.
func (s *JetStreamStore) Remove(ctx context.Context, collection, key string) error {
	if s.kv == nil {
		return ErrStoreUnavailable
	}
	full, err := entryKey(collection, key)
	if err != nil {
		return err
	}
	if err := s.kv.Delete(ctx, full); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("failed to remove %s: %w", full, err)
	}
	return nil
}

// Subscribe opens a live query on collection. fn first receives the current
// content once the watcher has replayed it, then one snapshot per change.
func (s *JetStreamStore) Subscribe(ctx context.Context, collection string, fn Handler) (Subscription, error) {
	if s.kv == nil {
		return nil, ErrStoreUnavailable
	}
	if !ValidToken(collection) {
		return nil, fmt.Errorf("%w: collection %q", ErrInvalidPath, collection)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	watcher, err := s.kv.Watch(watchCtx, collection+".*")
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to watch %s: %w", collection, err)
	}

	sub := &watchSubscription{
		collection: collection,
		watcher:    watcher,
		ctx:        watchCtx,
		cancel:     cancel,
		done:       make(chan struct{}),
		handler:    fn,
		entries:    make(map[string]Entry),
	}
	go sub.run()

	s.logger.Debug("Opened realtime subscription", "bucket", s.cfg.Name, "collection", collection)
	return sub, nil
}

// watchSubscription folds watcher updates into a keyed view of the collection.
type watchSubscription struct {
	collection string
	watcher    jetstream.KeyWatcher
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	handler    Handler
	entries    map[string]Entry
	stopOnce   sync.Once
}

func (w *watchSubscription) run() {
	defer close(w.done)

	initialized := false
	updates := w.watcher.Updates()
	for {
		select {
		case <-w.ctx.Done():
			return
		case kve, ok := <-updates:
			if !ok {
				return
			}
			if kve == nil {
				// End of the replayed initial values.
				initialized = true
				w.emit(nil)
				continue
			}

			change := w.apply(kve)
			if initialized && change != nil {
				w.emit(change)
			}
		}
	}
}

func (w *watchSubscription) apply(kve jetstream.KeyValueEntry) *Change {
	key := childKey(w.collection, kve.Key())
	entry := Entry{
		Key:      key,
		Value:    kve.Value(),
		Revision: kve.Revision(),
		Created:  kve.Created(),
	}

	switch kve.Operation() {
	case jetstream.KeyValueDelete, jetstream.KeyValuePurge:
		if _, ok := w.entries[key]; !ok {
			return nil
		}
		delete(w.entries, key)
		return &Change{Op: OpDelete, Entry: entry}
	default:
		w.entries[key] = entry
		return &Change{Op: OpPut, Entry: entry}
	}
}

func (w *watchSubscription) emit(change *Change) {
	entries := make([]Entry, 0, len(w.entries))
	for _, e := range w.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Revision < entries[j].Revision
	})

	w.handler(Snapshot{
		Collection: w.collection,
		Entries:    entries,
		Change:     change,
	})
}

// Stop releases the watcher and waits for the delivery goroutine to exit.
func (w *watchSubscription) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		err = w.watcher.Stop()
		if errors.Is(err, nats.ErrBadSubscription) {
			// Already released through context cancellation.
			err = nil
		}
		w.cancel()
		<-w.done
	})
	return err
}
