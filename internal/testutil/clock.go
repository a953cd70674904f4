package testutil

import (
	"sync"
	"time"
)

// FakeClock is a deterministic clock for metrics in tests. Every call to
// Now advances it by Step, so each measured phase has a known duration.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FakeClock struct {
	mu   sync.Mutex
	now  time.Time
	Step time.Duration
}

// NewFakeClock returns a clock at start advancing by step per reading.
func NewFakeClock(start time.Time, step time.Duration) *FakeClock {
	return &FakeClock{now: start, Step: step}
}

// Now returns the current time and advances the clock by Step.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.Step)
	return t
}

// Peek returns the current time without advancing.
func (c *FakeClock) Peek() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// FixedIDGenerator returns IDs from a fixed list, then repeats the last
// one. It stands in for random run identifiers in golden tests.
type FixedIDGenerator struct {
	mu  sync.Mutex
	ids []string
	n   int
}

// NewFixedIDGenerator returns a generator over ids. With no ids it always
// returns "00000000-0000-0000-0000-000000000001".
func NewFixedIDGenerator(ids ...string) *FixedIDGenerator {
	if len(ids) == 0 {
		ids = []string{"00000000-0000-0000-0000-000000000001"}
	}
	return &FixedIDGenerator{ids: ids}
}

// NewID returns the next ID.
func (g *FixedIDGenerator) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.ids[min(g.n, len(g.ids)-1)]
	g.n++
	return id
}
