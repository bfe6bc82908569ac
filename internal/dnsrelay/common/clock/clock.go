// Package clock provides an injectable time source so that the idle-timer
// and timeout-race logic in the forwarding core can be driven
// deterministically in tests instead of depending on wall-clock sleeps.
package clock

import "time"

// Clock abstracts the passage of time.
type Clock interface {
	Now() time.Time
	// NewTimer returns a Timer that fires after d.
	NewTimer(d time.Duration) Timer
}

// Timer is a cancellable, resettable delayed notification, mirroring the
// subset of time.Timer the core needs: the idle-disconnect timer and the
// engine's fan-out race timeout.
type Timer interface {
	// C returns the channel on which the fire time is delivered.
	C() <-chan time.Time
	// Stop prevents the Timer from firing, returning false if it already
	// fired or was already stopped.
	Stop() bool
	// Reset reschedules the Timer to fire after d, returning false if it
	// had already fired or been stopped.
	Reset(d time.Duration) bool
}

// RealClock is the production Clock, backed by the time package.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) NewTimer(d time.Duration) Timer {
	t := time.NewTimer(d)
	return &realTimer{t: t}
}

type realTimer struct {
	t *time.Timer
}

func (r *realTimer) C() <-chan time.Time   { return r.t.C }
func (r *realTimer) Stop() bool            { return r.t.Stop() }
func (r *realTimer) Reset(d time.Duration) bool {
	return r.t.Reset(d)
}
