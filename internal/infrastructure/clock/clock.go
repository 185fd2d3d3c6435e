package clock

import (
	"sync"
	"time"

	"github.com/zyfty/zyftyd/internal/core/ports"
)

type realClock struct{}

// New returns a clock reading the system time.
func New() ports.Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

// Fake returns a FakeClock initialized to the given time. Time stands still until Advance or
// Set is called.
func Fake(initial time.Time) *FakeClock {
	return &FakeClock{current: initial}
}

// FakeClock is a deterministic clock for tests and simulations.
// It is safe for concurrent use.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Advance moves the clock forward by d. Negative durations are ignored.
func (c *FakeClock) Advance(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
}

func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = t
}
