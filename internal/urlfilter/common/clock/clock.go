package clock

import "time"

// Clock supplies the current time. Injected so freshness metadata and
// staleness sweeps are testable.
type Clock interface {
	Now() time.Time
}

// RealClock delegates to time.Now.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// MockClock is a manually advanced clock for tests.
type MockClock struct {
	currentTime time.Time
}

// NewMockClock returns a MockClock pinned to t.
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{currentTime: t}
}

func (c *MockClock) Now() time.Time { return c.currentTime }

// Advance moves the mock clock forward by d.
func (c *MockClock) Advance(d time.Duration) {
	c.currentTime = c.currentTime.Add(d)
}
