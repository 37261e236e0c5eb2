package testutil

import (
	"sync"
	"time"
)

// Epoch is the wall time a DeterministicClock reports at tick 0.
var Epoch = time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)

// DeterministicClock is a logical clock whose Now advances by exactly one
// millisecond per call, so run logs written in tests are byte-stable.
//
// Thread-safety: all methods are safe for concurrent use.
type DeterministicClock struct {
	mu  sync.Mutex
	seq int64
}

// NewDeterministicClock returns a clock at tick 0.
// The first call to Next returns 1.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{}
}

// Next increments and returns the tick.
func (c *DeterministicClock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

// Current returns the tick without incrementing.
func (c *DeterministicClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Now advances the clock and returns Epoch plus that many milliseconds.
// It has the signature of time.Now so it can be injected directly.
func (c *DeterministicClock) Now() time.Time {
	return Epoch.Add(time.Duration(c.Next()) * time.Millisecond)
}

// Reset returns the clock to tick 0.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = 0
}

// FixedIDGenerator hands out the same run ID every time.
// If id is empty, "test-run-default" is used.
type FixedIDGenerator struct {
	id string
}

// NewFixedIDGenerator returns a generator for id.
func NewFixedIDGenerator(id string) *FixedIDGenerator {
	if id == "" {
		id = "test-run-default"
	}
	return &FixedIDGenerator{id: id}
}

// Generate returns the fixed ID.
func (g *FixedIDGenerator) Generate() string {
	return g.id
}
