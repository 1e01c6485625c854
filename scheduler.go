package aloop

import (
	"math/bits"
	"sync"
	"time"
)

// DefaultTicksPerSecond is the tick rate of a TimerScheduler created without an explicit rate.
const DefaultTicksPerSecond = 1000

// Scheduler drives the periodic position update of a Device.
//
// Arm is called from the control path when the first direction starts, Rearm from inside the
// callback to schedule the next update, and Disarm or Cancel when the last direction stops.
// Both must drop a pending callback and make any later Rearm a no-op. Disarm also waits for a
// callback that is already running; Cancel does not wait and is the one used from inside the callback.
type Scheduler interface {
	Now() uint64
	TicksPerSecond() uint64
	Arm(ticks uint64, fn func())
	Rearm(ticks uint64, fn func())
	Cancel()
	Disarm()
}

// TimerScheduler is a Scheduler backed by time.AfterFunc and the monotonic clock.
type TimerScheduler struct {
	ticksPerSecond uint64
	epoch          uint64

	mu    sync.Mutex
	timer *time.Timer
	armed bool
	wg    sync.WaitGroup
}

// NewTimerScheduler returns a scheduler counting ticksPerSecond ticks per second.
// A zero rate selects DefaultTicksPerSecond.
func NewTimerScheduler(ticksPerSecond uint64) *TimerScheduler {
	if ticksPerSecond == 0 {
		ticksPerSecond = DefaultTicksPerSecond
	}

	return &TimerScheduler{
		ticksPerSecond: ticksPerSecond,
		epoch:          monotonicNanos(),
	}
}

// Now returns the ticks elapsed since the scheduler was created.
func (s *TimerScheduler) Now() uint64 {
	ns := monotonicNanos() - s.epoch
	hi, lo := bits.Mul64(ns, s.ticksPerSecond)
	q, _ := bits.Div64(hi, lo, uint64(time.Second))

	return q
}

// TicksPerSecond returns the tick rate.
func (s *TimerScheduler) TicksPerSecond() uint64 {
	return s.ticksPerSecond
}

// Arm schedules fn after the given number of ticks, replacing any pending callback.
func (s *TimerScheduler) Arm(ticks uint64, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.armed = true
	s.schedule(ticks, fn)
}

// Rearm schedules fn unless the scheduler was disarmed.
func (s *TimerScheduler) Rearm(ticks uint64, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.armed {
		return
	}

	s.schedule(ticks, fn)
}

// Cancel drops the pending callback without waiting for a running one.
func (s *TimerScheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.armed = false
	if s.timer != nil && s.timer.Stop() {
		s.wg.Done()
	}
	s.timer = nil
}

// Disarm cancels the pending callback and waits for a running one to return.
// Calling it from inside the callback never returns.
func (s *TimerScheduler) Disarm() {
	s.Cancel()
	s.wg.Wait()
}

// schedule must be called with s.mu held.
func (s *TimerScheduler) schedule(ticks uint64, fn func()) {
	if s.timer != nil && s.timer.Stop() {
		s.wg.Done()
	}

	s.wg.Add(1)
	s.timer = time.AfterFunc(s.ticksToDuration(ticks), func() {
		defer s.wg.Done()
		fn()
	})
}

// ticksToDuration converts ticks to a duration, rounded up to the next nanosecond.
func (s *TimerScheduler) ticksToDuration(ticks uint64) time.Duration {
	hi, lo := bits.Mul64(ticks, uint64(time.Second))
	lo, carry := bits.Add64(lo, s.ticksPerSecond-1, 0)
	hi += carry

	if hi >= s.ticksPerSecond {
		return time.Duration(1<<63 - 1)
	}

	q, _ := bits.Div64(hi, lo, s.ticksPerSecond)
	if q > 1<<63-1 {
		return time.Duration(1<<63 - 1)
	}

	return time.Duration(q)
}

// ManualClock is a Scheduler whose time only moves when Advance is called.
// Callbacks run synchronously on the goroutine calling Advance.
type ManualClock struct {
	ticksPerSecond uint64

	mu     sync.Mutex
	now    uint64
	due    uint64
	fn     func()
	armed  bool
	armCnt int
	disCnt int
}

// NewManualClock returns a stopped clock at tick zero.
func NewManualClock(ticksPerSecond uint64) *ManualClock {
	if ticksPerSecond == 0 {
		ticksPerSecond = DefaultTicksPerSecond
	}

	return &ManualClock{ticksPerSecond: ticksPerSecond}
}

// Now returns the current tick.
func (c *ManualClock) Now() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

// TicksPerSecond returns the tick rate.
func (c *ManualClock) TicksPerSecond() uint64 {
	return c.ticksPerSecond
}

// Arm schedules fn at now+ticks.
func (c *ManualClock) Arm(ticks uint64, fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.armed = true
	c.armCnt++
	c.due = c.now + ticks
	c.fn = fn
}

// Rearm schedules fn at now+ticks unless the clock was disarmed.
func (c *ManualClock) Rearm(ticks uint64, fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.armed {
		return
	}

	c.due = c.now + ticks
	c.fn = fn
}

// Disarm drops the pending callback. Callbacks run on the Advance goroutine, so there is nothing to wait for.
func (c *ManualClock) Disarm() {
	c.Cancel()
}

// Cancel drops the pending callback.
func (c *ManualClock) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.armed {
		return
	}

	c.armed = false
	c.disCnt++
	c.fn = nil
}

// Armed reports whether a callback is scheduled.
func (c *ManualClock) Armed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.armed && c.fn != nil
}

// Due returns the tick of the pending callback.
func (c *ManualClock) Due() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.due
}

// Counts returns how many times the clock was armed and disarmed.
func (c *ManualClock) Counts() (armed, disarmed int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.armCnt, c.disCnt
}

// Advance moves time forward by ticks, firing every callback that falls due on the way at its
// scheduled tick.
func (c *ManualClock) Advance(ticks uint64) {
	c.mu.Lock()
	target := c.now + ticks

	for c.armed && c.fn != nil && c.due <= target {
		if c.due > c.now {
			c.now = c.due
		}

		fn := c.fn
		c.fn = nil
		c.mu.Unlock()

		fn()

		c.mu.Lock()
	}

	c.now = target
	c.mu.Unlock()
}
