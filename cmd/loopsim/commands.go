package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/go-audio/wav"
	"github.com/spf13/cobra"

	"github.com/gen2brain/aloop"
)

func (a *app) infoCmd() *cobra.Command {
	var (
		rate      uint32
		channels  uint32
		formatStr string
	)

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Print the card and the stream configuration for the given parameters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := parseFormat(formatStr)
			if err != nil {
				return err
			}

			return a.info(cmd.OutOrStdout(), aloop.Params{Rate: rate, Channels: channels, Format: format})
		},
	}

	cmd.Flags().Uint32Var(&rate, "rate", 48000, "The sample rate in Hz")
	cmd.Flags().Uint32Var(&channels, "channels", 2, "The number of channels")
	cmd.Flags().StringVar(&formatStr, "format", "s16", "The sample format (u8, s16, s24, s32)")

	return cmd
}

func (a *app) info(w io.Writer, params aloop.Params) error {
	scheds := make([]aloop.Scheduler, a.cfg.Devices)
	for i := range scheds {
		scheds[i] = aloop.NewManualClock(a.cfg.TicksPerSecond)
	}

	card := aloop.NewCard(0, "Loopback", scheds, aloop.WithLogger(a.log))
	defer card.Close()

	fmt.Fprint(w, card)

	frameSize := params.Channels * aloop.PcmFormatToBits(params.Format) / 8
	periodBytes := a.cfg.PeriodBytes
	if frameSize > 0 {
		periodBytes -= periodBytes % frameSize
	}

	config, err := aloop.NewStreamConfig(params, periodBytes*a.cfg.Periods, periodBytes, a.cfg.TicksPerSecond)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "\n%s", config)

	return nil
}

func (a *app) loopCmd() *cobra.Command {
	var manual bool

	cmd := &cobra.Command{
		Use:   "loop <input.wav|input.mp3> <output.wav>",
		Short: "Play a file into the playback side and record the capture side to a WAV file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.loop(cmd.Context(), cmd.OutOrStdout(), args[0], args[1], manual)
		},
	}

	cmd.Flags().BoolVar(&manual, "manual", false, "Drive the device with a manual clock, as fast as possible")

	return cmd
}

func (a *app) loop(ctx context.Context, w io.Writer, input, output string, manual bool) error {
	dec, closer, err := openDecoder(a.fs, input)
	if err != nil {
		return err
	}
	defer closer.Close()

	format, err := decoderFormat(dec)
	if err != nil {
		return err
	}

	params := aloop.Params{Rate: dec.SampleRate(), Channels: uint32(dec.NumChans()), Format: format}

	s, err := a.newSession(sessionOptions{params: params, capture: true, manual: manual})
	if err != nil {
		return err
	}
	defer s.close()

	out, err := a.fs.Create(output)
	if err != nil {
		return err
	}
	defer out.Close()

	s.enc = wav.NewEncoder(out, int(params.Rate), wavBitDepth(format), int(params.Channels), 1)

	fmt.Fprintf(w, "Looping %s into %s\n", input, output)
	fmt.Fprintf(w, "Configuration: %d channels, %d Hz, %s\n", params.Channels, params.Rate, params.Format)
	fmt.Fprintf(w, "Period: %d bytes, Buffer: %d bytes, %d ticks/s\n", s.play.PeriodBytes(), s.play.BufferBytes(), a.cfg.TicksPerSecond)

	startTime := time.Now()

	err = a.run(ctx, []*aloop.Device{s.dev}, func(ctx context.Context) error {
		return s.feed(ctx, dec)
	})

	if encErr := s.enc.Close(); err == nil && encErr != nil {
		err = fmt.Errorf("close WAV: %w", encErr)
	}

	s.report(w, time.Since(startTime))

	return err
}

func (a *app) playCmd() *cobra.Command {
	var (
		manual bool
		output string
	)

	cmd := &cobra.Command{
		Use:   "play <input.wav|input.mp3>",
		Short: "Play a file on a device without a capture side, draining to a raw PCM file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.play(cmd.Context(), cmd.OutOrStdout(), args[0], output, manual)
		},
	}

	cmd.Flags().BoolVar(&manual, "manual", false, "Drive the device with a manual clock, as fast as possible")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Raw PCM output file (discarded when empty)")

	return cmd
}

func (a *app) play(ctx context.Context, w io.Writer, input, output string, manual bool) error {
	dec, closer, err := openDecoder(a.fs, input)
	if err != nil {
		return err
	}
	defer closer.Close()

	format, err := decoderFormat(dec)
	if err != nil {
		return err
	}

	sink := io.Discard
	if output != "" {
		out, err := a.fs.Create(output)
		if err != nil {
			return err
		}
		defer out.Close()

		sink = out
	}

	params := aloop.Params{Rate: dec.SampleRate(), Channels: uint32(dec.NumChans()), Format: format}

	s, err := a.newSession(sessionOptions{params: params, manual: manual, sink: sink})
	if err != nil {
		return err
	}
	defer s.close()

	if d, err := dec.Duration(); err == nil {
		fmt.Fprintf(w, "Playing %s (%v)\n", input, d.Round(time.Millisecond))
	}
	fmt.Fprintf(w, "Configuration: %d channels, %d Hz, %s\n", params.Channels, params.Rate, params.Format)

	startTime := time.Now()

	err = a.run(ctx, []*aloop.Device{s.dev}, func(ctx context.Context) error {
		return s.feed(ctx, dec)
	})

	s.report(w, time.Since(startTime))

	return err
}
