package clock

import (
	"sync"
	"time"
)

// Clock is an interface for time operations to enable testability.
type Clock interface {
	Now() time.Time
}

// RealClock returns the system time in UTC.
type RealClock struct{}

// NewRealClock creates a new RealClock.
func NewRealClock() Clock {
	return RealClock{}
}

func (RealClock) Now() time.Time {
	return time.Now().UTC()
}

// MockClock is a test clock that only moves when told to.
type MockClock struct {
	mu      sync.Mutex
	current time.Time
}

// NewMockClock creates a new MockClock starting at the given time.
func NewMockClock(start time.Time) *MockClock {
	return &MockClock{current: start}
}

func (m *MockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Set sets the mock current time.
func (m *MockClock) Set(t time.Time) {
	m.mu.Lock()
	m.current = t
	m.mu.Unlock()
}

// Advance advances the mock clock by d.
func (m *MockClock) Advance(d time.Duration) {
	m.mu.Lock()
	m.current = m.current.Add(d)
	m.mu.Unlock()
}
