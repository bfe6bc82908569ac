package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRealClockNowAdvances(t *testing.T) {
	c := RealClock{}
	a := c.Now()
	time.Sleep(time.Millisecond)
	b := c.Now()
	assert.True(t, b.After(a) || b.Equal(a))
}

func TestRealTimerFires(t *testing.T) {
	c := RealClock{}
	timer := c.NewTimer(time.Millisecond)
	select {
	case <-timer.C():
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
}

func TestMockClockAdvanceFiresDueTimers(t *testing.T) {
	start := time.Unix(0, 0)
	c := NewMockClock(start)
	timer := c.NewTimer(30 * time.Second)

	c.Advance(10 * time.Second)
	select {
	case <-timer.C():
		t.Fatal("timer fired early")
	default:
	}

	c.Advance(25 * time.Second)
	select {
	case got := <-timer.C():
		assert.Equal(t, start.Add(35*time.Second), got)
	default:
		t.Fatal("timer did not fire")
	}
}

func TestMockClockStopPreventsFire(t *testing.T) {
	c := NewMockClock(time.Unix(0, 0))
	timer := c.NewTimer(time.Second)
	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop(), "second stop reports already stopped")

	c.Advance(10 * time.Second)
	select {
	case <-timer.C():
		t.Fatal("stopped timer fired")
	default:
	}
}

func TestMockClockResetReschedules(t *testing.T) {
	c := NewMockClock(time.Unix(0, 0))
	timer := c.NewTimer(time.Second)
	c.Advance(2 * time.Second)
	<-timer.C()

	timer.Reset(5 * time.Second)
	c.Advance(3 * time.Second)
	select {
	case <-timer.C():
		t.Fatal("fired before new deadline")
	default:
	}
	c.Advance(3 * time.Second)
	select {
	case <-timer.C():
	default:
		t.Fatal("did not fire after reset deadline")
	}
}
