package chatview

import (
	"encoding/json"
	"fmt"

	"github.com/example/chatroom-sync-demo/domain/chat"
	"github.com/example/chatroom-sync-demo/modules/realtime"
)

// messageCache is the reconciled content of one room's message collection,
// keyed by store entry key.
type messageCache struct {
	order []string
	byKey map[string]*chat.Message // nil for entries that did not decode
	list  []chat.Message
}

func newMessageCache() *messageCache {
	return &messageCache{
		byKey: make(map[string]*chat.Message),
		list:  []chat.Message{},
	}
}

// apply folds a snapshot into the cache. Single-entry changes are applied
// incrementally; anything else replaces the cache. It reports whether a full
// replace happened, and the first entry that failed to decode.
func (c *messageCache) apply(snap realtime.Snapshot) (replaced bool, err error) {
	if snap.Change != nil {
		err = c.applyChange(*snap.Change)
		if len(c.order) == len(snap.Entries) {
			return false, err
		}
	}
	return true, c.replace(snap.Entries)
}

func (c *messageCache) applyChange(ch realtime.Change) error {
	key := ch.Entry.Key
	_, exists := c.byKey[key]

	switch ch.Op {
	case realtime.OpPut:
		msg, err := decodeMessage(ch.Entry)
		c.byKey[key] = msg
		if exists {
			c.rebuild()
			return err
		}
		c.order = append(c.order, key)
		if msg != nil {
			// Published slices keep their own length, so appending into
			// spare capacity is invisible to them.
			c.list = append(c.list, *msg)
		}
		return err
	case realtime.OpDelete:
		if !exists {
			return nil
		}
		delete(c.byKey, key)
		for i, k := range c.order {
			if k == key {
				c.order = append(c.order[:i:i], c.order[i+1:]...)
				break
			}
		}
		c.rebuild()
	}
	return nil
}

func (c *messageCache) replace(entries []realtime.Entry) error {
	c.order = make([]string, 0, len(entries))
	c.byKey = make(map[string]*chat.Message, len(entries))

	var firstErr error
	for _, e := range entries {
		msg, err := decodeMessage(e)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		c.order = append(c.order, e.Key)
		c.byKey[e.Key] = msg
	}
	c.rebuild()
	return firstErr
}

func (c *messageCache) rebuild() {
	list := make([]chat.Message, 0, len(c.order))
	for _, k := range c.order {
		if m := c.byKey[k]; m != nil {
			list = append(list, *m)
		}
	}
	c.list = list
}

// messages returns the decoded messages in store order. The returned slice
// is never modified by later calls.
func (c *messageCache) messages() []chat.Message {
	return c.list
}

// decodeMessage turns a store entry into a Message annotated with its entry
// key and server write time.
func decodeMessage(e realtime.Entry) (*chat.Message, error) {
	var msg chat.Message
	if err := json.Unmarshal(e.Value, &msg); err != nil {
		return nil, fmt.Errorf("entry %s: %w", e.Key, err)
	}
	if err := msg.Validate(); err != nil {
		return nil, fmt.Errorf("entry %s: %w", e.Key, err)
	}
	msg.Key = e.Key
	msg.Timestamp = e.Created.UnixMilli()
	return &msg, nil
}

// encodeMessage is the stored form of a message. Key and timestamp are left
// for the store to assign.
func encodeMessage(msg chat.Message) ([]byte, error) {
	msg.Key = ""
	msg.Timestamp = 0
	return json.Marshal(msg)
}
