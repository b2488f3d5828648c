package realtime

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	nanoid "github.com/jaevor/go-nanoid"
)

const (
	pushKeyTimeWidth   = 9
	pushKeySeqWidth    = 3
	pushKeySeqLimit    = 36 * 36 * 36
	pushKeyRandomChars = 12
)

// KeyGenerator produces push keys that sort by creation time. Keys created
// within the same millisecond by one generator still sort in call order.
type KeyGenerator struct {
	mu     sync.Mutex
	last   int64
	seq    int
	random func() string
	now    func() time.Time
}

// NewKeyGenerator creates a push key generator.
func NewKeyGenerator() (*KeyGenerator, error) {
	random, err := nanoid.Standard(pushKeyRandomChars)
	if err != nil {
		return nil, fmt.Errorf("failed to create nanoid generator: %w", err)
	}
	return &KeyGenerator{random: random, now: time.Now}, nil
}

// Next returns a new push key.
func (g *KeyGenerator) Next() string {
	g.mu.Lock()
	ms := g.now().UnixMilli()
	if ms <= g.last {
		ms = g.last
		g.seq++
	} else {
		g.last = ms
		g.seq = 0
	}
	seq := g.seq
	g.mu.Unlock()

	ts := padBase36(ms, pushKeyTimeWidth)
	return ts + padBase36(int64(seq%pushKeySeqLimit), pushKeySeqWidth) + g.random()
}

func padBase36(n int64, width int) string {
	s := strconv.FormatInt(n, 36)
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}
