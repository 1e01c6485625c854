package aloop

import (
	"context"
	"fmt"
)

// Stream is one direction of a Device, from Open to Close.
type Stream struct {
	dev *Device
	dir Direction

	// Guarded by dev.cfgMu.
	config StreamConfig

	// Guarded by dev.mu.
	state       StreamState
	ring        *RingBuffer
	periodBytes uint32
	frameSize   uint32
	silence     uint32 // capture: bytes still holding the silence written at prepare
	silenceByte byte
	hwPos       uint64
	applPos     uint64
	appIO       bool
	xruns       int
	draining    bool
	drained     chan struct{}
}

// Direction returns the stream direction.
func (s *Stream) Direction() Direction {
	return s.dir
}

// Device returns the device the stream belongs to.
func (s *Stream) Device() *Device {
	return s.dev
}

// State returns the current state of the stream.
func (s *Stream) State() StreamState {
	s.dev.mu.Lock()
	defer s.dev.mu.Unlock()

	return s.state
}

// Config returns the configuration computed by the last successful Prepare.
func (s *Stream) Config() StreamConfig {
	s.dev.cfgMu.Lock()
	defer s.dev.cfgMu.Unlock()

	return s.config
}

// BufferBytes returns the ring buffer capacity, or 0 after Close.
func (s *Stream) BufferBytes() uint32 {
	s.dev.mu.Lock()
	defer s.dev.mu.Unlock()

	if s.ring == nil {
		return 0
	}

	return s.ring.Cap()
}

// PeriodBytes returns the period size in bytes.
func (s *Stream) PeriodBytes() uint32 {
	return s.periodBytes
}

// FrameSize returns the size of a single frame in bytes, or 0 before Prepare.
func (s *Stream) FrameSize() uint32 {
	s.dev.mu.Lock()
	defer s.dev.mu.Unlock()

	return s.frameSize
}

// Xruns returns the number of underruns (playback) or overruns (capture) seen by Write and Read users.
func (s *Stream) Xruns() int {
	s.dev.mu.Lock()
	defer s.dev.mu.Unlock()

	return s.xruns
}

// Draining reports whether a Drain is waiting for the stream to empty.
func (s *Stream) Draining() bool {
	s.dev.mu.Lock()
	defer s.dev.mu.Unlock()

	return s.draining
}

// Silence returns how many capture bytes still hold the silence written at prepare time.
func (s *Stream) Silence() uint32 {
	s.dev.mu.Lock()
	defer s.dev.mu.Unlock()

	return s.silence
}

// Prepare computes the stream configuration and resets the buffer position.
// The first direction to prepare fixes the cable timing; a direction prepared while the other one
// is already valid keeps the existing timing.
func (s *Stream) Prepare(params Params) error {
	d := s.dev

	d.cfgMu.Lock()
	locked := true
	defer func() {
		if locked {
			d.cfgMu.Unlock()
		}
	}()

	d.mu.Lock()
	state := s.state
	capacity := uint32(0)
	if s.ring != nil {
		capacity = s.ring.Cap()
	}
	d.mu.Unlock()

	switch state {
	case StateClosed:
		return fmt.Errorf("prepare %s: %w", s.dir, ErrNotOpen)
	case StateRunning:
		return fmt.Errorf("prepare %s: %w", s.dir, ErrInvalidState)
	}

	if err := d.hw.checkParams(params); err != nil {
		return fmt.Errorf("prepare %s: %w", s.dir, err)
	}

	tps := d.sched.TicksPerSecond()
	config, err := NewStreamConfig(params, capacity, s.periodBytes, tps)
	if err != nil {
		return fmt.Errorf("prepare %s: %w", s.dir, err)
	}

	d.mu.Lock()
	if s.state != state {
		// Started by another goroutine since the check above.
		err := fmt.Errorf("prepare %s in state %s: %w", s.dir, s.state, ErrInvalidState)
		d.mu.Unlock()

		return err
	}

	freeze := d.valid&^s.dir.bit() == 0
	mismatch := !freeze && (config.BytesPerSecond != d.pcmBps || config.PeriodBytes != d.periodBytes)

	d.valid |= s.dir.bit()
	s.config = config
	if freeze {
		d.pcmBps = config.BytesPerSecond
		d.periodBytes = config.PeriodBytes
	}

	s.ring.Reset()
	s.hwPos = 0
	s.applPos = 0
	s.draining = false
	s.frameSize = config.FrameSize
	s.silenceByte = silenceByte(params.Format)
	s.silence = 0
	if s.dir == SNDRV_PCM_STREAM_CAPTURE {
		s.ring.Fill(0, uint64(capacity), s.silenceByte)
		s.silence = capacity
	}

	if d.running == 0 {
		d.clock.Reset()
	}
	if freeze {
		d.clock.Configure(d.pcmBps, d.periodBytes, tps)
	}
	s.state = StatePrepared
	d.mu.Unlock()

	cableBps, cablePeriod := d.pcmBps, d.periodBytes
	locked = false
	d.cfgMu.Unlock()

	if mismatch {
		d.log.Warn().Str("stream", s.dir.String()).
			Uint64("bps", config.BytesPerSecond).Uint64("cable_bps", cableBps).
			Uint32("period", config.PeriodBytes).Uint32("cable_period", cablePeriod).
			Msg("[aloop] timing differs from the other direction, keeping cable timing")
	}

	d.log.Debug().Str("stream", s.dir.String()).Uint32("rate", params.Rate).Uint32("channels", params.Channels).
		Stringer("format", params.Format).Uint64("bps", config.BytesPerSecond).Msg("[aloop] prepare")
	d.stateChanged(s, StatePrepared)

	return nil
}

// Trigger starts or stops the stream.
func (s *Stream) Trigger(cmd TriggerCmd) error {
	switch cmd {
	case SNDRV_PCM_TRIGGER_START:
		return s.Start()
	case SNDRV_PCM_TRIGGER_STOP:
		return s.Stop()
	default:
		return fmt.Errorf("trigger %d: %w", cmd, ErrInvalidParameter)
	}
}

// Start sets the running bit of the stream. The first running direction arms the scheduler.
func (s *Stream) Start() error {
	d := s.dev

	d.mu.Lock()
	for {
		d.waitSwitch()
		if err := s.checkState("start", StatePrepared); err != nil {
			d.mu.Unlock()

			return err
		}

		// A callback that ended the run on its own, after a drain, has not been reaped yet.
		if d.running == 0 && d.armed {
			d.disarm()

			continue
		}

		break
	}

	arm := d.running == 0
	if arm {
		d.clock.Start(d.sched.Now())
	}

	d.running |= s.dir.bit()
	s.state = StateRunning
	if arm {
		d.arm(d.clock.TicksUntilPeriod())
	}
	d.mu.Unlock()

	d.log.Debug().Str("stream", s.dir.String()).Bool("armed", arm).Msg("[aloop] start")
	d.stateChanged(s, StateRunning)

	return nil
}

// Stop clears the running bit of the stream. When no direction is left running the scheduler is
// disarmed and period crossings not yet reported are dropped. Stop returns only after an
// in-flight callback has finished, unless that callback already moved the position, in which
// case it is cancelled without waiting. Stopping a stream that is not running returns ErrInvalidState.
func (s *Stream) Stop() error {
	d := s.dev

	d.mu.Lock()
	d.waitSwitch()
	if err := s.checkState("stop", StateRunning); err != nil {
		d.mu.Unlock()

		return err
	}

	d.running &^= s.dir.bit()
	s.state = StatePrepared
	s.draining = false
	if s.drained != nil {
		close(s.drained)
		s.drained = nil
	}

	disarm := false
	if d.running == 0 {
		d.clock.TakePending()
		if d.armed {
			d.disarm()
			disarm = true
		}
	}
	d.mu.Unlock()

	d.log.Debug().Str("stream", s.dir.String()).Bool("disarmed", disarm).Msg("[aloop] stop")
	d.stateChanged(s, StatePrepared)

	return nil
}

// Pointer updates the position and returns the buffer position of the stream in frames.
// It returns 0 before the stream is prepared.
func (s *Stream) Pointer() uint32 {
	d := s.dev
	now := d.sched.Now()

	d.mu.Lock()
	if s.state < StatePrepared || s.frameSize == 0 {
		d.mu.Unlock()

		return 0
	}

	res := d.update(now)
	pos := s.ring.Pos()
	frameSize := s.frameSize
	d.mu.Unlock()

	d.finish(res)

	return pos / frameSize
}

// BufPos returns the buffer position in bytes without updating it.
func (s *Stream) BufPos() uint32 {
	s.dev.mu.Lock()
	defer s.dev.mu.Unlock()

	if s.ring == nil {
		return 0
	}

	return s.ring.Pos()
}

// Drain waits until every byte written to a running playback stream has been consumed, then
// leaves the stream prepared. It returns early with the context error if ctx is done first.
func (s *Stream) Drain(ctx context.Context) error {
	d := s.dev

	if s.dir != SNDRV_PCM_STREAM_PLAYBACK {
		return fmt.Errorf("drain %s: %w", s.dir, ErrInvalidState)
	}

	d.mu.Lock()

	switch s.state {
	case StatePrepared:
		d.mu.Unlock()

		return nil
	case StateRunning:
	default:
		d.mu.Unlock()

		return fmt.Errorf("drain %s: %w", s.dir, ErrInvalidState)
	}

	if s.queued() == 0 {
		d.mu.Unlock()

		return s.Stop()
	}

	if s.drained == nil {
		s.drained = make(chan struct{})
	}
	s.draining = true
	done := s.drained
	d.mu.Unlock()

	d.log.Debug().Str("stream", s.dir.String()).Msg("[aloop] drain")

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		d.mu.Lock()
		if s.drained == done {
			s.draining = false
		}
		d.mu.Unlock()

		return ctx.Err()
	}
}

// Close detaches the buffer. A running stream must be stopped first.
func (s *Stream) Close() error {
	d := s.dev

	d.cfgMu.Lock()
	d.mu.Lock()
	switch s.state {
	case StateClosed:
		d.mu.Unlock()
		d.cfgMu.Unlock()

		return fmt.Errorf("close %s: %w", s.dir, ErrNotOpen)
	case StateRunning:
		d.mu.Unlock()
		d.cfgMu.Unlock()

		return fmt.Errorf("close %s: stream is running: %w", s.dir, ErrInvalidState)
	}

	s.state = StateClosed
	s.ring = nil
	s.frameSize = 0
	if d.streams[s.dir] == s {
		d.streams[s.dir] = nil
	}

	d.mu.Unlock()

	d.valid &^= s.dir.bit()
	d.cfgMu.Unlock()

	reaped := d.reap()

	d.log.Debug().Str("stream", s.dir.String()).Bool("reaped", reaped).Msg("[aloop] close")
	d.stateChanged(s, StateClosed)

	return nil
}

// checkState must be called with dev.mu held.
func (s *Stream) checkState(op string, want StreamState) error {
	if s.state == StateClosed {
		return fmt.Errorf("%s %s: %w", op, s.dir, ErrNotOpen)
	}

	if s.state != want {
		return fmt.Errorf("%s %s in state %s: %w", op, s.dir, s.state, ErrInvalidState)
	}

	return nil
}

// queued returns the written bytes not yet consumed by a playback stream. Must be called with dev.mu held.
func (s *Stream) queued() uint64 {
	if s.applPos <= s.hwPos {
		return 0
	}

	return s.applPos - s.hwPos
}

// checkXrun resynchronizes the application pointer after an underrun or overrun and returns 1 if
// one happened. Streams that never used Write or Read are not tracked. Must be called with dev.mu held.
func (s *Stream) checkXrun() uint32 {
	if !s.appIO {
		return 0
	}

	if s.dir == SNDRV_PCM_STREAM_PLAYBACK {
		if s.hwPos > s.applPos {
			s.applPos = s.hwPos
			s.xruns++

			return 1
		}

		return 0
	}

	if capacity := uint64(s.ring.Cap()); s.hwPos-s.applPos > capacity {
		s.applPos = s.hwPos - capacity
		s.xruns++

		return 1
	}

	return 0
}
