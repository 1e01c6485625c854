// Package aloop provides a simulated PCM loopback device: a software model of a DMA/IRQ driven
// sound card built from a periodic timer, a fractional position clock and a wraparound byte copy,
// modeled after the snd-aloop and snd-dummy kernel drivers.
package aloop

import "fmt"

// PcmFormat defines the sample format for a PCM stream.
// These values correspond to the SNDRV_PCM_FORMAT_* constants in the ALSA kernel headers.
type PcmFormat int32

const (
	SNDRV_PCM_FORMAT_INVALID    PcmFormat = -1
	SNDRV_PCM_FORMAT_S8         PcmFormat = 0
	SNDRV_PCM_FORMAT_U8         PcmFormat = 1
	SNDRV_PCM_FORMAT_S16_LE     PcmFormat = 2
	SNDRV_PCM_FORMAT_S16_BE     PcmFormat = 3
	SNDRV_PCM_FORMAT_U16_LE     PcmFormat = 4
	SNDRV_PCM_FORMAT_U16_BE     PcmFormat = 5
	SNDRV_PCM_FORMAT_S24_LE     PcmFormat = 6
	SNDRV_PCM_FORMAT_S24_BE     PcmFormat = 7
	SNDRV_PCM_FORMAT_U24_LE     PcmFormat = 8
	SNDRV_PCM_FORMAT_U24_BE     PcmFormat = 9
	SNDRV_PCM_FORMAT_S32_LE     PcmFormat = 10
	SNDRV_PCM_FORMAT_S32_BE     PcmFormat = 11
	SNDRV_PCM_FORMAT_U32_LE     PcmFormat = 12
	SNDRV_PCM_FORMAT_U32_BE     PcmFormat = 13
	SNDRV_PCM_FORMAT_FLOAT_LE   PcmFormat = 14
	SNDRV_PCM_FORMAT_FLOAT_BE   PcmFormat = 15
	SNDRV_PCM_FORMAT_FLOAT64_LE PcmFormat = 16
	SNDRV_PCM_FORMAT_FLOAT64_BE PcmFormat = 17
	SNDRV_PCM_FORMAT_S24_3LE    PcmFormat = 32
	SNDRV_PCM_FORMAT_S24_3BE    PcmFormat = 33
	SNDRV_PCM_FORMAT_U24_3LE    PcmFormat = 34
	SNDRV_PCM_FORMAT_U24_3BE    PcmFormat = 35
)

// PcmFormatBit is a bitmask of supported formats, as in snd_pcm_hardware.formats.
type PcmFormatBit uint64

// FormatBit returns the mask bit for a single format.
func FormatBit(f PcmFormat) PcmFormatBit {
	if f < 0 {
		return 0
	}

	return 1 << uint(f)
}

// PcmParamFormatNames provides human-readable names for PCM formats.
var PcmParamFormatNames = map[PcmFormat]string{
	SNDRV_PCM_FORMAT_S8:         "S8",
	SNDRV_PCM_FORMAT_U8:         "U8",
	SNDRV_PCM_FORMAT_S16_LE:     "S16_LE",
	SNDRV_PCM_FORMAT_S16_BE:     "S16_BE",
	SNDRV_PCM_FORMAT_U16_LE:     "U16_LE",
	SNDRV_PCM_FORMAT_U16_BE:     "U16_BE",
	SNDRV_PCM_FORMAT_S24_LE:     "S24_LE",
	SNDRV_PCM_FORMAT_S24_BE:     "S24_BE",
	SNDRV_PCM_FORMAT_U24_LE:     "U24_LE",
	SNDRV_PCM_FORMAT_U24_BE:     "U24_BE",
	SNDRV_PCM_FORMAT_S32_LE:     "S32_LE",
	SNDRV_PCM_FORMAT_S32_BE:     "S32_BE",
	SNDRV_PCM_FORMAT_U32_LE:     "U32_LE",
	SNDRV_PCM_FORMAT_U32_BE:     "U32_BE",
	SNDRV_PCM_FORMAT_FLOAT_LE:   "FLOAT_LE",
	SNDRV_PCM_FORMAT_FLOAT_BE:   "FLOAT_BE",
	SNDRV_PCM_FORMAT_FLOAT64_LE: "FLOAT64_LE",
	SNDRV_PCM_FORMAT_FLOAT64_BE: "FLOAT64_BE",
	SNDRV_PCM_FORMAT_S24_3LE:    "S24_3LE",
	SNDRV_PCM_FORMAT_S24_3BE:    "S24_3BE",
	SNDRV_PCM_FORMAT_U24_3LE:    "U24_3LE",
	SNDRV_PCM_FORMAT_U24_3BE:    "U24_3BE",
}

// String returns the ALSA name of the format.
func (f PcmFormat) String() string {
	if name, ok := PcmParamFormatNames[f]; ok {
		return name
	}

	return fmt.Sprintf("PcmFormat(%d)", int32(f))
}

// Direction identifies one side of a cable.
// These values correspond to the SNDRV_PCM_STREAM_* constants.
type Direction uint8

const (
	SNDRV_PCM_STREAM_PLAYBACK Direction = 0
	SNDRV_PCM_STREAM_CAPTURE  Direction = 1
)

// bit returns the direction's bit in the running and valid masks.
func (d Direction) bit() uint8 {
	return 1 << d
}

func (d Direction) String() string {
	if d == SNDRV_PCM_STREAM_CAPTURE {
		return "capture"
	}

	return "playback"
}

// StreamState defines the lifecycle state of a simulated stream.
type StreamState int32

const (
	StateClosed   StreamState = 0 // No buffer attached.
	StateOpened   StreamState = 1 // Buffer attached, not yet prepared.
	StatePrepared StreamState = 2 // Ready to start, also the stopped state.
	StateRunning  StreamState = 3 // Timer armed, position advancing.
)

func (s StreamState) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpened:
		return "OPEN"
	case StatePrepared:
		return "PREPARED"
	case StateRunning:
		return "RUNNING"
	default:
		return fmt.Sprintf("StreamState(%d)", int32(s))
	}
}

// TriggerCmd is a trigger request, as passed to a driver's trigger callback.
type TriggerCmd int

const (
	SNDRV_PCM_TRIGGER_STOP  TriggerCmd = 0
	SNDRV_PCM_TRIGGER_START TriggerCmd = 1
)
