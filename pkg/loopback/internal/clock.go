// Package internal provides internal utilities for the loopback package.
package internal

import "time"

// Clock abstracts the wall clock used by the scenario runner.
// Sleep is the only blocking call; it is never cancelled so that the
// elapsed play time stays observable afterwards.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Sleep blocks for d.
	Sleep(d time.Duration)
}

// MonotonicClock is a Clock backed by the system's monotonic clock.
type MonotonicClock struct{}

// Now returns the current system time with monotonic clock reading.
func (MonotonicClock) Now() time.Time {
	return time.Now()
}

// Sleep pauses the calling goroutine for d.
func (MonotonicClock) Sleep(d time.Duration) {
	time.Sleep(d)
}

// MockClock is a Clock implementation for testing that advances instantly
// on Sleep. It is not safe for concurrent use.
type MockClock struct {
	current time.Time
	slept   []time.Duration
}

// NewMockClock creates a new MockClock initialized to the given time.
// If t is zero, it initializes to a reasonable default start time.
func NewMockClock(t time.Time) *MockClock {
	if t.IsZero() {
		t = time.Unix(1000000000, 0) // 2001-09-09
	}
	return &MockClock{current: t}
}

// Now returns the mock clock's current time.
func (m *MockClock) Now() time.Time {
	return m.current
}

// Sleep records d and advances the clock by it without blocking.
func (m *MockClock) Sleep(d time.Duration) {
	m.slept = append(m.slept, d)
	m.Advance(d)
}

// Slept returns every duration passed to Sleep, in call order.
func (m *MockClock) Slept() []time.Duration {
	return append([]time.Duration(nil), m.slept...)
}

// Advance moves the clock forward by the given duration.
// Panics if d is negative to maintain monotonicity.
func (m *MockClock) Advance(d time.Duration) {
	if d < 0 {
		panic("MockClock.Advance: duration must be non-negative")
	}
	m.current = m.current.Add(d)
}
