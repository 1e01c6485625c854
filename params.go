package aloop

import (
	"fmt"
	"strings"
	"time"
)

// Params are the negotiated stream parameters passed to Prepare.
type Params struct {
	Rate     uint32
	Channels uint32
	Format   PcmFormat
}

// StreamConfig is the byte-level timing derived from Params for one stream.
type StreamConfig struct {
	Params
	BytesPerSecond uint64
	FrameSize      uint32
	PeriodBytes    uint32
	BufferBytes    uint32
	TicksPerSecond uint64
	PeriodFrac     uint64 // PeriodBytes * TicksPerSecond
}

// NewStreamConfig computes the byte rate and fractional period size for the given parameters.
func NewStreamConfig(params Params, bufferBytes, periodBytes uint32, ticksPerSecond uint64) (StreamConfig, error) {
	bits := PcmFormatToBits(params.Format)

	bps := uint64(params.Rate) * uint64(params.Channels) * uint64(bits) / 8
	if bps == 0 {
		return StreamConfig{}, fmt.Errorf("byte rate %d (rate=%d, channels=%d, format=%s): %w",
			bps, params.Rate, params.Channels, params.Format, ErrInvalidParameter)
	}

	if bufferBytes == 0 || periodBytes == 0 || periodBytes > bufferBytes {
		return StreamConfig{}, fmt.Errorf("buffer %d bytes, period %d bytes: %w", bufferBytes, periodBytes, ErrInvalidParameter)
	}

	if ticksPerSecond == 0 {
		return StreamConfig{}, fmt.Errorf("zero tick rate: %w", ErrInvalidParameter)
	}

	return StreamConfig{
		Params:         params,
		BytesPerSecond: bps,
		FrameSize:      params.Channels * (bits / 8),
		PeriodBytes:    periodBytes,
		BufferBytes:    bufferBytes,
		TicksPerSecond: ticksPerSecond,
		PeriodFrac:     uint64(periodBytes) * ticksPerSecond,
	}, nil
}

// PeriodTime returns the duration of a single period.
func (c StreamConfig) PeriodTime() time.Duration {
	if c.BytesPerSecond == 0 {
		return 0
	}

	return time.Duration(uint64(c.PeriodBytes) * uint64(time.Second) / c.BytesPerSecond)
}

// PeriodTicks returns the scheduler interval for one full period, rounded up.
func (c StreamConfig) PeriodTicks() uint64 {
	if c.BytesPerSecond == 0 {
		return 0
	}

	return (c.PeriodFrac + c.BytesPerSecond - 1) / c.BytesPerSecond
}

// String returns a human-readable summary of the configuration.
func (c StreamConfig) String() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Format:      %s\n", c.Format))
	sb.WriteString(fmt.Sprintf("Rate:        %d Hz\n", c.Rate))
	sb.WriteString(fmt.Sprintf("Channels:    %d\n", c.Channels))
	sb.WriteString(fmt.Sprintf("Frame size:  %d bytes\n", c.FrameSize))
	sb.WriteString(fmt.Sprintf("Byte rate:   %d bytes/s\n", c.BytesPerSecond))
	sb.WriteString(fmt.Sprintf("Buffer:      %d bytes\n", c.BufferBytes))
	sb.WriteString(fmt.Sprintf("Period:      %d bytes (%v, %d ticks)\n", c.PeriodBytes, c.PeriodTime(), c.PeriodTicks()))
	sb.WriteString(fmt.Sprintf("Period frac: %d (%d ticks/s)\n", c.PeriodFrac, c.TicksPerSecond))

	return sb.String()
}

// Hardware describes the limits a simulated device accepts, like snd_pcm_hardware.
type Hardware struct {
	Formats        PcmFormatBit
	RateMin        uint32
	RateMax        uint32
	ChannelsMin    uint32
	ChannelsMax    uint32
	BufferBytesMax uint32
	PeriodBytesMin uint32
	PeriodBytesMax uint32
	PeriodsMin     uint32
	PeriodsMax     uint32
}

// DefaultHardware accepts every format this package knows the width of and any sane geometry.
var DefaultHardware = Hardware{
	Formats:        ^PcmFormatBit(0),
	RateMin:        5500,
	RateMax:        768000,
	ChannelsMin:    1,
	ChannelsMax:    32,
	BufferBytesMax: 2 * 1024 * 1024,
	PeriodBytesMin: 1,
	PeriodBytesMax: 2 * 1024 * 1024,
	PeriodsMin:     1,
	PeriodsMax:     1024,
}

// FifoHardware is the single-format fifo device: U8 mono at 8 kHz, 48-byte periods, up to 32 of them.
var FifoHardware = Hardware{
	Formats:        FormatBit(SNDRV_PCM_FORMAT_U8),
	RateMin:        8000,
	RateMax:        8000,
	ChannelsMin:    1,
	ChannelsMax:    1,
	BufferBytesMax: 32 * 48,
	PeriodBytesMin: 48,
	PeriodBytesMax: 48,
	PeriodsMin:     1,
	PeriodsMax:     32,
}

// checkGeometry validates the buffer and period sizes given at open time.
func (h Hardware) checkGeometry(bufferBytes, periodBytes uint32) error {
	if bufferBytes == 0 || bufferBytes > h.BufferBytesMax {
		return fmt.Errorf("buffer size %d outside 1..%d: %w", bufferBytes, h.BufferBytesMax, ErrInvalidParameter)
	}

	if periodBytes < h.PeriodBytesMin || periodBytes > h.PeriodBytesMax || periodBytes == 0 {
		return fmt.Errorf("period size %d outside %d..%d: %w", periodBytes, h.PeriodBytesMin, h.PeriodBytesMax, ErrInvalidParameter)
	}

	if periodBytes > bufferBytes {
		return fmt.Errorf("period size %d larger than buffer %d: %w", periodBytes, bufferBytes, ErrInvalidParameter)
	}

	periods := bufferBytes / periodBytes
	if periods < h.PeriodsMin || periods > h.PeriodsMax {
		return fmt.Errorf("period count %d outside %d..%d: %w", periods, h.PeriodsMin, h.PeriodsMax, ErrInvalidParameter)
	}

	return nil
}

// checkParams validates negotiated parameters at prepare time.
func (h Hardware) checkParams(params Params) error {
	if h.Formats&FormatBit(params.Format) == 0 || PcmFormatToBits(params.Format) == 0 {
		return fmt.Errorf("format %s not supported: %w", params.Format, ErrInvalidParameter)
	}

	if params.Rate < h.RateMin || params.Rate > h.RateMax {
		return fmt.Errorf("rate %d outside %d..%d: %w", params.Rate, h.RateMin, h.RateMax, ErrInvalidParameter)
	}

	if params.Channels < h.ChannelsMin || params.Channels > h.ChannelsMax {
		return fmt.Errorf("channels %d outside %d..%d: %w", params.Channels, h.ChannelsMin, h.ChannelsMax, ErrInvalidParameter)
	}

	return nil
}

// PcmFormatToBits returns the number of bits per sample for a given format.
// This reflects the space occupied in memory, so 24-bit formats in 32-bit containers return 32.
func PcmFormatToBits(f PcmFormat) uint32 {
	switch f {
	case SNDRV_PCM_FORMAT_FLOAT64_LE, SNDRV_PCM_FORMAT_FLOAT64_BE:
		return 64
	case SNDRV_PCM_FORMAT_S32_LE, SNDRV_PCM_FORMAT_S32_BE, SNDRV_PCM_FORMAT_U32_LE, SNDRV_PCM_FORMAT_U32_BE,
		SNDRV_PCM_FORMAT_FLOAT_LE, SNDRV_PCM_FORMAT_FLOAT_BE,
		SNDRV_PCM_FORMAT_S24_LE, SNDRV_PCM_FORMAT_S24_BE, SNDRV_PCM_FORMAT_U24_LE, SNDRV_PCM_FORMAT_U24_BE:
		return 32
	case SNDRV_PCM_FORMAT_S24_3LE, SNDRV_PCM_FORMAT_S24_3BE, SNDRV_PCM_FORMAT_U24_3LE, SNDRV_PCM_FORMAT_U24_3BE:
		return 24
	case SNDRV_PCM_FORMAT_S16_LE, SNDRV_PCM_FORMAT_S16_BE, SNDRV_PCM_FORMAT_U16_LE, SNDRV_PCM_FORMAT_U16_BE:
		return 16
	case SNDRV_PCM_FORMAT_S8, SNDRV_PCM_FORMAT_U8:
		return 8
	default:
		return 0
	}
}

// silenceByte returns the byte that fills a buffer with silence.
// Unsigned formats are only handled for 8-bit samples, where every byte is the midpoint.
func silenceByte(f PcmFormat) byte {
	if f == SNDRV_PCM_FORMAT_U8 {
		return 0x80
	}

	return 0
}
