package aloop

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTicksToDuration(t *testing.T) {
	testCases := []struct {
		name  string
		tps   uint64
		ticks uint64
		want  time.Duration
	}{
		{"Millis", 1000, 10, 10 * time.Millisecond},
		{"Micros", 1_000_000, 750, 750 * time.Microsecond},
		{"RoundUp", 3, 1, 333333334},
		{"Jiffies", 250, 1, 4 * time.Millisecond},
		{"Overflow", 1, 1 << 62, time.Duration(1<<63 - 1)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewTimerScheduler(tc.tps)
			assert.Equal(t, tc.want, s.ticksToDuration(tc.ticks))
		})
	}
}

func TestTimerSchedulerNow(t *testing.T) {
	s := NewTimerScheduler(1000)

	a := s.Now()
	time.Sleep(5 * time.Millisecond)
	b := s.Now()

	assert.GreaterOrEqual(t, b-a, uint64(5))
}

func TestTimerSchedulerFires(t *testing.T) {
	s := NewTimerScheduler(1000)

	fired := make(chan struct{}, 1)
	s.Arm(2, func() { fired <- struct{}{} })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("callback did not fire")
	}

	s.Disarm()
}

func TestTimerSchedulerDisarmJoins(t *testing.T) {
	s := NewTimerScheduler(1000)

	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32

	var fn func()
	fn = func() {
		if calls.Add(1) == 1 {
			close(started)
			<-release
		}
		s.Rearm(1, fn)
	}
	s.Arm(1, fn)

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("callback did not fire")
	}

	done := make(chan struct{})
	go func() {
		s.Disarm()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Disarm returned while the callback was running")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Disarm did not return")
	}

	n := calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, n, calls.Load(), "a rearm from the joined callback is ignored")

	s.Disarm()
}

func TestTimerSchedulerCancelFromCallback(t *testing.T) {
	s := NewTimerScheduler(1000)

	var calls atomic.Int32
	done := make(chan struct{})

	var fn func()
	fn = func() {
		s.Rearm(1, fn)
		if calls.Add(1) == 2 {
			s.Cancel()
			close(done)
		}
	}
	s.Arm(1, fn)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Cancel from the callback did not return")
	}

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(2), calls.Load(), "the rearm issued before Cancel is dropped")

	s.Disarm()
}

func TestManualClock(t *testing.T) {
	c := NewManualClock(1000)

	var fired []uint64
	var fn func()
	fn = func() {
		fired = append(fired, c.Now())
		c.Rearm(10, fn)
	}

	c.Arm(10, fn)
	require.True(t, c.Armed())

	c.Advance(5)
	assert.Empty(t, fired)

	c.Advance(5)
	assert.Equal(t, []uint64{10}, fired)

	c.Advance(35)
	assert.Equal(t, []uint64{10, 20, 30, 40}, fired)
	assert.Equal(t, uint64(45), c.Now())
	assert.Equal(t, uint64(50), c.Due())

	c.Disarm()
	c.Disarm()
	c.Advance(100)
	assert.Len(t, fired, 4)

	armed, disarmed := c.Counts()
	assert.Equal(t, 1, armed)
	assert.Equal(t, 1, disarmed)
}
