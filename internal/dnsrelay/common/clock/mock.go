package clock

import (
	"sort"
	"sync"
	"time"
)

// MockClock is a deterministic Clock for tests. It extends the teacher's
// plain Now()/Advance() mock with fireable, cancellable timers, since the
// forwarding core's idle-disconnect and fan-out-timeout logic both need to
// be driven without real sleeps.
type MockClock struct {
	mu      sync.Mutex
	current time.Time
	timers  []*mockTimer
}

// NewMockClock returns a MockClock starting at the given time.
func NewMockClock(start time.Time) *MockClock {
	return &MockClock{current: start}
}

func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Advance moves the clock forward by d, firing (in deadline order) any
// active timer whose deadline is now at or before the new time. Like
// time.Timer, a fired timer goes inactive until Reset.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.current = c.current.Add(d)
	now := c.current
	var due []*mockTimer
	for _, t := range c.timers {
		if t.active && !t.deadline.After(now) {
			due = append(due, t)
			t.active = false
		}
	}
	c.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].deadline.Before(due[j].deadline) })
	for _, t := range due {
		select {
		case t.ch <- now:
		default:
		}
	}
}

func (c *MockClock) NewTimer(d time.Duration) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &mockTimer{
		clock:    c,
		deadline: c.current.Add(d),
		ch:       make(chan time.Time, 1),
		active:   true,
	}
	c.timers = append(c.timers, t)
	return t
}

type mockTimer struct {
	clock    *MockClock
	deadline time.Time
	ch       chan time.Time
	active   bool
}

func (t *mockTimer) C() <-chan time.Time { return t.ch }

func (t *mockTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	was := t.active
	t.active = false
	return was
}

func (t *mockTimer) Reset(d time.Duration) bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	was := t.active
	t.active = true
	t.deadline = t.clock.current.Add(d)
	return was
}
