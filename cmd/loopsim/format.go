package main

import (
	"encoding/binary"
	"fmt"

	"github.com/go-audio/audio"

	"github.com/gen2brain/aloop"
)

// parseFormat maps a string identifier to a PCM format.
func parseFormat(s string) (aloop.PcmFormat, error) {
	switch s {
	case "u8":
		return aloop.SNDRV_PCM_FORMAT_U8, nil
	case "s16":
		return aloop.SNDRV_PCM_FORMAT_S16_LE, nil
	case "s24":
		return aloop.SNDRV_PCM_FORMAT_S24_LE, nil
	case "s32":
		return aloop.SNDRV_PCM_FORMAT_S32_LE, nil
	default:
		return aloop.SNDRV_PCM_FORMAT_INVALID, fmt.Errorf("unsupported format: '%s'. Supported formats are u8, s16, s24, s32", s)
	}
}

// decoderFormat selects the PCM format matching the decoded samples.
func decoderFormat(dec AudioDecoder) (aloop.PcmFormat, error) {
	if dec.IsFloat() {
		return aloop.SNDRV_PCM_FORMAT_INVALID, fmt.Errorf("floating point input is not supported")
	}

	switch dec.BitDepth() {
	case 8:
		return aloop.SNDRV_PCM_FORMAT_U8, nil
	case 16:
		return aloop.SNDRV_PCM_FORMAT_S16_LE, nil
	case 24:
		return aloop.SNDRV_PCM_FORMAT_S24_LE, nil
	case 32:
		return aloop.SNDRV_PCM_FORMAT_S32_LE, nil
	default:
		return aloop.SNDRV_PCM_FORMAT_INVALID, fmt.Errorf("unsupported integer bit depth: %d", dec.BitDepth())
	}
}

// wavBitDepth returns the bit depth the WAV encoder is given for a format.
func wavBitDepth(format aloop.PcmFormat) int {
	switch format {
	case aloop.SNDRV_PCM_FORMAT_U8:
		return 8
	case aloop.SNDRV_PCM_FORMAT_S16_LE:
		return 16
	case aloop.SNDRV_PCM_FORMAT_S24_LE:
		return 24
	case aloop.SNDRV_PCM_FORMAT_S32_LE:
		return 32
	default:
		return 0
	}
}

// encodeSamples packs decoded samples into interleaved little-endian PCM bytes, appending to dst.
func encodeSamples(dst []byte, samples []int, format aloop.PcmFormat) ([]byte, error) {
	for _, s := range samples {
		switch format {
		case aloop.SNDRV_PCM_FORMAT_U8:
			dst = append(dst, uint8(clamp(s, 0, 255)))
		case aloop.SNDRV_PCM_FORMAT_S16_LE:
			dst = binary.LittleEndian.AppendUint16(dst, uint16(int16(clamp(s, -1<<15, 1<<15-1))))
		case aloop.SNDRV_PCM_FORMAT_S24_LE:
			// 24 bits of data in a 32-bit container, sign extended into the top byte.
			dst = binary.LittleEndian.AppendUint32(dst, uint32(int32(clamp(s, -1<<23, 1<<23-1))))
		case aloop.SNDRV_PCM_FORMAT_S32_LE:
			dst = binary.LittleEndian.AppendUint32(dst, uint32(int32(clamp(s, -1<<31, 1<<31-1))))
		default:
			return dst, fmt.Errorf("unhandled format in conversion: %v", format)
		}
	}

	return dst, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}

	return v
}

// bytesToIntBuffer converts captured PCM bytes into an audio.IntBuffer for the WAV encoder.
func bytesToIntBuffer(data []byte, format aloop.PcmFormat, channels int) (*audio.IntBuffer, error) {
	bytesPerSample := int(aloop.PcmFormatToBits(format) / 8)
	if bytesPerSample == 0 {
		return nil, fmt.Errorf("unsupported format for conversion: %v", format)
	}

	numSamples := len(data) / bytesPerSample
	intData := make([]int, numSamples)

	offset := 0
	for i := 0; i < numSamples; i++ {
		switch format {
		case aloop.SNDRV_PCM_FORMAT_U8:
			intData[i] = int(data[offset])
		case aloop.SNDRV_PCM_FORMAT_S16_LE:
			intData[i] = int(int16(binary.LittleEndian.Uint16(data[offset:])))
		case aloop.SNDRV_PCM_FORMAT_S24_LE:
			// Read the low 3 bytes and sign-extend.
			val := uint32(data[offset]) | uint32(data[offset+1])<<8 | uint32(data[offset+2])<<16
			if val&0x800000 != 0 {
				val |= 0xFF000000
			}
			intData[i] = int(int32(val))
		case aloop.SNDRV_PCM_FORMAT_S32_LE:
			intData[i] = int(int32(binary.LittleEndian.Uint32(data[offset:])))
		default:
			return nil, fmt.Errorf("unhandled format in conversion: %v", format)
		}
		offset += bytesPerSample
	}

	return &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: channels,
		},
		Data:           intData,
		SourceBitDepth: wavBitDepth(format),
	}, nil
}
