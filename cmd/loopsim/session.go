package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/rs/zerolog"

	"github.com/gen2brain/aloop"
)

// session moves decoded audio through one simulated device.
type session struct {
	log  zerolog.Logger
	card *aloop.Card
	dev  *aloop.Device
	bus  *aloop.EventBus

	clock   *aloop.ManualClock // nil when running in real time
	periods chan struct{}
	unsub   func()

	play *aloop.Stream
	capt *aloop.Stream

	params    aloop.Params
	frameSize uint32
	period    uint64 // ticks per period

	enc      *wav.Encoder
	readBuf  []byte
	captured uint64 // frames
	started  bool
}

type sessionOptions struct {
	params  aloop.Params
	capture bool
	manual  bool
	sink    io.Writer
}

func (a *app) newSession(opts sessionOptions) (*session, error) {
	frameSize := opts.params.Channels * aloop.PcmFormatToBits(opts.params.Format) / 8
	if frameSize == 0 {
		return nil, fmt.Errorf("frame size of %d channels of %s: %w", opts.params.Channels, opts.params.Format, aloop.ErrInvalidParameter)
	}

	periodBytes := a.cfg.PeriodBytes - a.cfg.PeriodBytes%frameSize
	if periodBytes == 0 {
		periodBytes = frameSize
	}
	bufferBytes := periodBytes * a.cfg.Periods

	s := &session{
		log:       a.log,
		bus:       aloop.NewEventBus(),
		periods:   make(chan struct{}, 1),
		params:    opts.params,
		frameSize: frameSize,
	}

	var sched aloop.Scheduler
	if opts.manual {
		s.clock = aloop.NewManualClock(a.cfg.TicksPerSecond)
		sched = s.clock
	} else {
		sched = aloop.NewTimerScheduler(a.cfg.TicksPerSecond)
	}

	devOpts := []aloop.Option{aloop.WithLogger(a.log), aloop.WithNotifier(s.bus)}
	if opts.sink != nil {
		devOpts = append(devOpts, aloop.WithSink(opts.sink))
	}

	s.card = aloop.NewCard(0, "Loopback", []aloop.Scheduler{sched}, devOpts...)
	s.dev = s.card.Device(0)

	paced := aloop.SNDRV_PCM_STREAM_PLAYBACK
	if opts.capture {
		paced = aloop.SNDRV_PCM_STREAM_CAPTURE
	}

	s.unsub = s.bus.OnPeriodElapsed(func(ev aloop.PeriodElapsedEvent) {
		if ev.Direction != paced {
			return
		}

		select {
		case s.periods <- struct{}{}:
		default:
		}
	})

	var err error
	if s.play, err = s.open(aloop.SNDRV_PCM_STREAM_PLAYBACK, bufferBytes, periodBytes); err != nil {
		s.close()

		return nil, err
	}

	if opts.capture {
		if s.capt, err = s.open(aloop.SNDRV_PCM_STREAM_CAPTURE, bufferBytes, periodBytes); err != nil {
			s.close()

			return nil, err
		}

		s.readBuf = make([]byte, bufferBytes)
	}

	s.period = s.play.Config().PeriodTicks()

	return s, nil
}

func (s *session) open(dir aloop.Direction, bufferBytes, periodBytes uint32) (*aloop.Stream, error) {
	st, err := s.dev.OpenSize(dir, bufferBytes, periodBytes)
	if err != nil {
		return nil, err
	}

	if err := st.Prepare(s.params); err != nil {
		return nil, err
	}

	return st, nil
}

func (s *session) close() {
	if err := s.card.Close(); err != nil {
		s.log.Warn().Err(err).Msg("[loopsim] close")
	}

	s.unsub()
}

// feed writes every sample of dec to the playback stream, then drains it.
func (s *session) feed(ctx context.Context, dec AudioDecoder) error {
	periodFrames := int(s.play.PeriodBytes() / s.frameSize)

	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: int(dec.NumChans()),
			SampleRate:  int(dec.SampleRate()),
		},
		Data: make([]int, periodFrames*int(dec.NumChans())),
	}

	var pending []byte
	for {
		n, err := dec.PCMBuffer(buf)
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("decode: %w", err)
		}

		if n == 0 {
			break
		}

		if pending, err = encodeSamples(pending[:0], buf.Data[:n], s.params.Format); err != nil {
			return err
		}

		if err := s.write(ctx, pending); err != nil {
			return err
		}
	}

	return s.drain(ctx)
}

// write queues data on the playback stream, waiting a period whenever the buffer is full.
func (s *session) write(ctx context.Context, data []byte) error {
	data = data[:len(data)-len(data)%int(s.frameSize)]

	for len(data) > 0 {
		n, err := s.play.Write(data)
		if err != nil {
			return err
		}

		data = data[n*int(s.frameSize):]
		if len(data) == 0 {
			return nil
		}

		if err := s.start(); err != nil {
			return err
		}

		if err := s.wait(ctx); err != nil {
			return err
		}

		if err := s.collect(); err != nil {
			return err
		}
	}

	return nil
}

// start starts capture, then playback, once the playback buffer has been filled.
func (s *session) start() error {
	if s.started {
		return nil
	}

	if s.capt != nil {
		if err := s.capt.Start(); err != nil {
			return err
		}
	}

	if err := s.play.Start(); err != nil {
		return err
	}

	s.started = true

	return nil
}

func (s *session) wait(ctx context.Context) error {
	if s.clock != nil {
		s.clock.Advance(s.period)

		return nil
	}

	select {
	case <-s.periods:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// drain waits for the playback stream to play out, collecting capture on the way.
func (s *session) drain(ctx context.Context) error {
	if err := s.start(); err != nil {
		return err
	}

	drainErr := make(chan error, 1)
	go func() {
		drainErr <- s.play.Drain(ctx)
	}()

	for {
		if s.clock == nil {
			select {
			case err := <-drainErr:
				return s.drained(err)
			case <-s.periods:
			case <-ctx.Done():
				return s.drained(<-drainErr)
			}
		} else {
			// Time only moves once Drain is waiting, so the last period is never played twice.
			if !s.play.Draining() {
				if s.play.State() == aloop.StateRunning {
					runtime.Gosched()

					continue
				}

				return s.drained(<-drainErr)
			}

			s.clock.Advance(s.period)
		}

		if err := s.collect(); err != nil {
			return err
		}
	}
}

func (s *session) drained(err error) error {
	if s.capt != nil && s.capt.State() == aloop.StateRunning {
		if stopErr := s.capt.Stop(); stopErr != nil {
			return stopErr
		}
	}

	if collectErr := s.collect(); collectErr != nil {
		return collectErr
	}

	return err
}

// collect reads everything captured so far into the WAV encoder.
func (s *session) collect() error {
	if s.capt == nil || s.enc == nil {
		return nil
	}

	for {
		n, err := s.capt.Read(s.readBuf)
		if err != nil {
			return err
		}

		if n == 0 {
			return nil
		}

		intBuffer, err := bytesToIntBuffer(s.readBuf[:n*int(s.frameSize)], s.params.Format, int(s.params.Channels))
		if err != nil {
			return err
		}
		intBuffer.Format.SampleRate = int(s.params.Rate)

		if err := s.enc.Write(intBuffer); err != nil {
			return fmt.Errorf("write WAV: %w", err)
		}

		s.captured += uint64(n)
	}
}

func (s *session) report(w io.Writer, elapsed time.Duration) {
	bytes, periods, xruns := s.dev.Stats()

	fmt.Fprintf(w, "Finished in %v. %d bytes moved\n", elapsed, bytes)
	fmt.Fprintf(w, "Playback: %d periods, %d xruns\n", periods[aloop.SNDRV_PCM_STREAM_PLAYBACK], xruns[aloop.SNDRV_PCM_STREAM_PLAYBACK])
	if s.capt != nil {
		fmt.Fprintf(w, "Capture:  %d periods, %d xruns, %d frames written\n",
			periods[aloop.SNDRV_PCM_STREAM_CAPTURE], xruns[aloop.SNDRV_PCM_STREAM_CAPTURE], s.captured)
	}
}
