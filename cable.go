package aloop

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Notifier receives period-elapsed notifications. It is called from the scheduler callback,
// never with an internal lock held, once per period boundary crossed by each running stream.
// It may call back into the stream, Stop and Start included. A Stop issued from the callback does
// not wait for the callback to return.
type Notifier interface {
	PeriodElapsed(s *Stream)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(s *Stream)

// PeriodElapsed calls f(s).
func (f NotifierFunc) PeriodElapsed(s *Stream) { f(s) }

// StateNotifier is implemented by notifiers that also want stream state transitions.
// It is called after the transition, with no internal lock held.
type StateNotifier interface {
	StateChanged(s *Stream, state StreamState)
}

// Option configures a Device.
type Option func(*Device)

// WithName sets the device name used in logs, metrics and events.
func WithName(name string) Option {
	return func(d *Device) { d.name = name }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(d *Device) { d.log = log }
}

// WithScheduler sets the scheduler driving the device. A scheduler must not be shared between devices.
func WithScheduler(s Scheduler) Option {
	return func(d *Device) { d.sched = s }
}

// WithNotifier sets the receiver of period-elapsed notifications.
func WithNotifier(n Notifier) Option {
	return func(d *Device) { d.notifier = n }
}

// WithSink sets where a playback stream running without a capture peer is drained to.
func WithSink(w io.Writer) Option {
	return func(d *Device) { d.sink = w }
}

// WithHardware sets the accepted parameter limits.
func WithHardware(hw Hardware) Option {
	return func(d *Device) { d.hw = hw }
}

// Device is one simulated PCM device: a playback and a capture stream joined by a cable that
// owns the shared timing.
//
// Two locks protect it. cfgMu serializes Open, Prepare and Close and guards the frozen timing
// and the valid mask. mu is the short lock shared with the scheduler callback and guards the
// position clock, the running mask and every stream's position; nothing that can block, log or
// call back out runs under it. Lock order is cfgMu, then mu. Neither lock is held while the
// scheduler is armed or disarmed; the switching flag under mu orders those calls instead.
type Device struct {
	name     string
	log      zerolog.Logger
	sched    Scheduler
	notifier Notifier
	sink     io.Writer
	hw       Hardware

	cfgMu       sync.Mutex
	valid       uint8
	pcmBps      uint64
	periodBytes uint32

	mu        sync.Mutex
	streams   [2]*Stream // written under both locks
	clock     PositionClock
	running   uint8
	armed     bool
	switching bool      // an Arm, Cancel or Disarm is in progress
	switched  sync.Cond // signaled when switching clears
	callbacks int       // callbacks past their position update
	sinkQueue []byte

	sinkMu sync.Mutex

	bytesTotal   atomic.Uint64
	periodsTotal [2]atomic.Uint64
	xrunsTotal   [2]atomic.Uint64
}

// NewDevice creates an idle device. Without WithScheduler it runs on a TimerScheduler at
// DefaultTicksPerSecond.
func NewDevice(opts ...Option) *Device {
	d := &Device{
		name: "aloop",
		log:  zerolog.Nop(),
		hw:   DefaultHardware,
	}

	for _, opt := range opts {
		opt(d)
	}

	if d.sched == nil {
		d.sched = NewTimerScheduler(DefaultTicksPerSecond)
	}

	d.log = d.log.With().Str("device", d.name).Logger()
	d.switched.L = &d.mu

	return d
}

// Name returns the device name.
func (d *Device) Name() string {
	return d.name
}

// Open attaches buf as the ring buffer of the given direction. The stream owns buf until Close.
func (d *Device) Open(dir Direction, buf []byte, periodBytes uint32) (*Stream, error) {
	if dir != SNDRV_PCM_STREAM_PLAYBACK && dir != SNDRV_PCM_STREAM_CAPTURE {
		return nil, fmt.Errorf("direction %d: %w", dir, ErrInvalidParameter)
	}

	if err := d.hw.checkGeometry(uint32(len(buf)), periodBytes); err != nil {
		return nil, fmt.Errorf("open %s: %w", dir, err)
	}

	d.cfgMu.Lock()
	if d.streams[dir] != nil {
		d.cfgMu.Unlock()

		return nil, fmt.Errorf("open %s: %w", dir, ErrAlreadyOpen)
	}

	s := &Stream{
		dev:         d,
		dir:         dir,
		ring:        NewRingBuffer(buf),
		periodBytes: periodBytes,
		state:       StateOpened,
	}

	d.mu.Lock()
	d.streams[dir] = s
	d.mu.Unlock()
	d.cfgMu.Unlock()

	d.log.Debug().Str("stream", dir.String()).Int("buffer", len(buf)).Uint32("period", periodBytes).Msg("[aloop] open")
	d.stateChanged(s, StateOpened)

	return s, nil
}

// OpenSize allocates a buffer of bufferBytes and opens the direction with it.
func (d *Device) OpenSize(dir Direction, bufferBytes, periodBytes uint32) (*Stream, error) {
	if bufferBytes > d.hw.BufferBytesMax {
		return nil, fmt.Errorf("open %s: buffer size %d above %d: %w", dir, bufferBytes, d.hw.BufferBytesMax, ErrInvalidParameter)
	}

	return d.Open(dir, make([]byte, bufferBytes), periodBytes)
}

// Stream returns the open stream of a direction, or nil.
func (d *Device) Stream(dir Direction) *Stream {
	d.mu.Lock()
	defer d.mu.Unlock()

	if int(dir) >= len(d.streams) {
		return nil
	}

	return d.streams[dir]
}

// Running reports whether any direction is running.
func (d *Device) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.running != 0
}

// Close stops and closes every open stream and reaps the scheduler.
func (d *Device) Close() error {
	var errs []error

	for _, dir := range [...]Direction{SNDRV_PCM_STREAM_PLAYBACK, SNDRV_PCM_STREAM_CAPTURE} {
		s := d.Stream(dir)
		if s == nil {
			continue
		}

		if s.State() == StateRunning {
			if err := s.Stop(); err != nil && !errors.Is(err, ErrInvalidState) {
				errs = append(errs, err)
			}
		}

		if err := s.Close(); err != nil && !errors.Is(err, ErrNotOpen) {
			errs = append(errs, err)
		}
	}

	d.reap()

	return errors.Join(errs...)
}

// reap disarms a scheduler left armed by a run that ended on its own, after a drain.
func (d *Device) reap() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.waitSwitch()
	if d.running != 0 || !d.armed {
		return false
	}

	d.disarm()

	return true
}

// waitSwitch waits for an Arm, Cancel or Disarm in progress. It must be called with d.mu held.
func (d *Device) waitSwitch() {
	for d.switching {
		d.switched.Wait()
	}
}

// disarm stops the scheduler. It must be called with d.mu held and no direction running; the
// lock is dropped while the scheduler is called. A callback that is past its position update,
// possibly the caller itself, is cancelled rather than joined.
func (d *Device) disarm() {
	join := d.callbacks == 0
	d.armed = false
	d.switching = true
	d.mu.Unlock()

	if join {
		d.sched.Disarm()
	} else {
		d.sched.Cancel()
	}

	d.mu.Lock()
	d.switching = false
	d.switched.Broadcast()
}

// arm starts the scheduler. It must be called with d.mu held; the lock is dropped while the
// scheduler is called.
func (d *Device) arm(ticks uint64) {
	d.armed = true
	d.switching = true
	d.mu.Unlock()

	d.sched.Arm(ticks, d.tick)

	d.mu.Lock()
	d.switching = false
	d.switched.Broadcast()
}

// Stats returns the bytes moved and, per direction, the periods elapsed and xruns counted.
func (d *Device) Stats() (bytes uint64, periods, xruns [2]uint64) {
	bytes = d.bytesTotal.Load()
	for i := range periods {
		periods[i] = d.periodsTotal[i].Load()
		xruns[i] = d.xrunsTotal[i].Load()
	}

	return bytes, periods, xruns
}

// String returns a human-readable representation of the device.
func (d *Device) String() string {
	var sb strings.Builder

	sb.WriteString(d.name)
	for _, dir := range [...]Direction{SNDRV_PCM_STREAM_PLAYBACK, SNDRV_PCM_STREAM_CAPTURE} {
		state := StateClosed
		if s := d.Stream(dir); s != nil {
			state = s.State()
		}
		sb.WriteString(fmt.Sprintf(" [%s: %s]", dir, state))
	}

	return sb.String()
}

// update advances the clock to now and transfers the elapsed bytes. It must be called with d.mu held.
func (d *Device) update(now uint64) transferResult {
	if d.running == 0 {
		return transferResult{}
	}

	count := d.clock.Advance(now)
	if count == 0 {
		return transferResult{}
	}

	return d.transfer(count)
}

// tick is the scheduler callback.
func (d *Device) tick() {
	now := d.sched.Now()

	d.mu.Lock()
	if d.running == 0 {
		d.mu.Unlock()

		return
	}

	var targets []*Stream
	for dir, s := range d.streams {
		if s != nil && d.running&Direction(dir).bit() != 0 {
			targets = append(targets, s)
		}
	}

	res := d.update(now)
	periods := d.clock.TakePending()
	rearm := d.running != 0
	next := d.clock.TicksUntilPeriod()
	d.callbacks++
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.callbacks--
		d.mu.Unlock()
	}()

	d.finish(res)

	if rearm {
		d.sched.Rearm(next, d.tick)
	}

	if periods == 0 {
		return
	}

	for _, s := range targets {
		d.periodsTotal[s.dir].Add(uint64(periods))
	}

	if d.notifier == nil {
		return
	}

	for i := uint32(0); i < periods; i++ {
		for _, s := range targets {
			d.notifier.PeriodElapsed(s)
		}
	}
}

// finish does the work of a position update that must not run under the short lock.
func (d *Device) finish(res transferResult) {
	if res.bytes > 0 {
		d.bytesTotal.Add(res.bytes)
	}

	for dir, n := range res.xruns {
		if n == 0 {
			continue
		}

		d.xrunsTotal[dir].Add(uint64(n))
		d.log.Warn().Str("stream", Direction(dir).String()).Uint32("count", n).Msg("[aloop] xrun")
	}

	if d.sink != nil {
		d.flushSink()
	}

	for _, s := range res.drained {
		d.log.Debug().Str("stream", s.dir.String()).Msg("[aloop] drained")
		d.stateChanged(s, StatePrepared)
	}
}

// flushSink writes queued playback bytes to the sink in the order they were consumed.
func (d *Device) flushSink() {
	d.sinkMu.Lock()
	defer d.sinkMu.Unlock()

	d.mu.Lock()
	data := d.sinkQueue
	d.sinkQueue = nil
	d.mu.Unlock()

	if len(data) == 0 {
		return
	}

	if _, err := d.sink.Write(data); err != nil {
		d.log.Warn().Err(err).Int("bytes", len(data)).Msg("[aloop] sink write")
	}
}

func (d *Device) stateChanged(s *Stream, state StreamState) {
	if n, ok := d.notifier.(StateNotifier); ok {
		n.StateChanged(s, state)
	}
}
