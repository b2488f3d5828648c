package chatview

import (
	"time"

	"github.com/example/chatroom-sync-demo/domain/chat"
	"github.com/example/chatroom-sync-demo/modules/realtime"
)

// presenceSet holds the last presence snapshot of a room.
type presenceSet struct {
	entries []chat.TypingEntry // store order
	revs    map[string]uint64
	primed  bool
}

// replace takes the entries of a presence snapshot. The entry key is the
// user id and the value the display name.
//
// Heartbeats are timed on the local clock: an entry whose revision changed
// since the last snapshot was seen at now, an unchanged one keeps its time.
// Entries of the first snapshot after a reset carry the store write time,
// capped at now, since no local observation exists for them.
func (p *presenceSet) replace(entries []realtime.Entry, now time.Time) {
	seen := make(map[string]time.Time, len(p.entries))
	for _, e := range p.entries {
		seen[e.UserID] = e.SeenAt
	}

	out := make([]chat.TypingEntry, 0, len(entries))
	revs := make(map[string]uint64, len(entries))
	for _, e := range entries {
		seenAt := now
		switch {
		case !p.primed:
			if e.Created.Before(now) {
				seenAt = e.Created
			}
		case p.revs[e.Key] == e.Revision:
			if t, ok := seen[e.Key]; ok {
				seenAt = t
			}
		}
		out = append(out, chat.TypingEntry{
			UserID: e.Key,
			Name:   string(e.Value),
			SeenAt: seenAt,
		})
		revs[e.Key] = e.Revision
	}
	p.entries = out
	p.revs = revs
	p.primed = true
}

func (p *presenceSet) reset() {
	p.entries = nil
	p.revs = nil
	p.primed = false
}

// typers returns the display names of entries seen within ttl of now.
// A zero ttl disables expiry.
func (p *presenceSet) typers(now time.Time, ttl time.Duration) []string {
	names := make([]string, 0, len(p.entries))
	for _, e := range p.entries {
		if ttl > 0 && now.Sub(e.SeenAt) >= ttl {
			continue
		}
		names = append(names, e.Name)
	}
	return names
}
