// Package realtime wraps NATS JetStream Key-Value buckets as a push-based
// realtime store: live collection snapshots, generated-key pushes and
// exact-key set/remove.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"
)

// Sentinel errors for realtime store operations.
var (
	// ErrInvalidPath is returned when a collection or child key contains
	// characters the underlying key space cannot hold.
	ErrInvalidPath = errors.New("invalid realtime path")

	// ErrStoreUnavailable is returned when the store has no open bucket.
	ErrStoreUnavailable = errors.New("realtime store unavailable")
)

// Op is the kind of change carried by a Snapshot.
type Op int

const (
	// OpPut is an insert or overwrite of one entry.
	OpPut Op = iota + 1
	// OpDelete is a removal of one entry.
	OpDelete
)

// Entry is one child of a collection.
type Entry struct {
	Key      string
	Value    []byte
	Revision uint64
	Created  time.Time // server-assigned write time
}

// Change is the single-entry delta that produced a Snapshot.
type Change struct {
	Op    Op
	Entry Entry
}

// Snapshot is the full current content of a collection, ordered by revision.
// Change is nil for the initial snapshot of a subscription.
type Snapshot struct {
	Collection string
	Entries    []Entry
	Change     *Change
}

// Handler receives snapshots. Calls for one subscription are serialized.
type Handler func(Snapshot)

// Subscription is a standing live query. Stop releases it and returns once
// no further Handler call can happen.
type Subscription interface {
	Stop() error
}

// Store is a realtime push-query store.
type Store interface {
	Subscribe(ctx context.Context, collection string, fn Handler) (Subscription, error)
	Push(ctx context.Context, collection string, value []byte) (string, error)
	Set(ctx context.Context, collection, key string, value []byte) error
	Remove(ctx context.Context, collection, key string) error
}

var tokenPattern = regexp.MustCompile(`^[-_=A-Za-z0-9]+$`)

// ValidToken reports whether s can be used as a collection name or child key.
func ValidToken(s string) bool {
	return tokenPattern.MatchString(s)
}

func entryKey(collection, key string) (string, error) {
	if !ValidToken(collection) {
		return "", fmt.Errorf("%w: collection %q", ErrInvalidPath, collection)
	}
	if !ValidToken(key) {
		return "", fmt.Errorf("%w: key %q", ErrInvalidPath, key)
	}
	return collection + "." + key, nil
}

func childKey(collection, fullKey string) string {
	return fullKey[len(collection)+1:]
}
