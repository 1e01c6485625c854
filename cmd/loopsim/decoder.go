package main

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/spf13/afero"
)

// AudioDecoder lets the simulator feed WAV and MP3 input the same way.
type AudioDecoder interface {
	// PCMBuffer reads decoded samples into buf and returns how many samples (not frames) were read.
	PCMBuffer(buf *audio.IntBuffer) (n int, err error)
	Duration() (time.Duration, error)
	NumChans() uint16
	SampleRate() uint32
	BitDepth() uint16
	IsFloat() bool
}

// openDecoder opens path on fsys and picks the decoder by extension.
func openDecoder(fsys afero.Fs, path string) (AudioDecoder, io.Closer, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, nil, err
	}

	var dec AudioDecoder
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".wav":
		dec, err = newWavDecoder(f)
	case ".mp3":
		dec, err = newMp3Decoder(f)
	default:
		err = fmt.Errorf("unsupported input extension %q", ext)
	}

	if err != nil {
		_ = f.Close()

		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}

	return dec, f, nil
}

type wavDecoderWrapper struct {
	*wav.Decoder
}

func newWavDecoder(r io.ReadSeeker) (AudioDecoder, error) {
	decoder := wav.NewDecoder(r)
	if !decoder.IsValidFile() {
		return nil, errors.New("invalid WAV file")
	}

	return &wavDecoderWrapper{Decoder: decoder}, nil
}

func (w *wavDecoderWrapper) SampleRate() uint32 { return w.Decoder.SampleRate }
func (w *wavDecoderWrapper) NumChans() uint16   { return w.Decoder.NumChans }
func (w *wavDecoderWrapper) BitDepth() uint16   { return uint16(w.Decoder.BitDepth) }
func (w *wavDecoderWrapper) IsFloat() bool      { return w.Decoder.WavAudioFormat == 3 } // 3 == IEEE float

type mp3DecoderWrapper struct {
	decoder    *mp3.Decoder
	sampleRate uint32
	length     int64 // decoded size in bytes
	byteBuf    []byte
}

func newMp3Decoder(r io.Reader) (AudioDecoder, error) {
	decoder, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, err
	}

	return &mp3DecoderWrapper{
		decoder:    decoder,
		sampleRate: uint32(decoder.SampleRate()),
		length:     decoder.Length(),
	}, nil
}

// PCMBuffer reads 16-bit little-endian stereo PCM from the MP3 decoder.
func (m *mp3DecoderWrapper) PCMBuffer(buf *audio.IntBuffer) (int, error) {
	bytesToRead := len(buf.Data) * 2
	if cap(m.byteBuf) < bytesToRead {
		m.byteBuf = make([]byte, bytesToRead)
	}
	byteBuf := m.byteBuf[:bytesToRead]

	bytesRead, err := io.ReadFull(m.decoder, byteBuf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return 0, err
	}

	samplesRead := bytesRead / 2
	for i := 0; i < samplesRead; i++ {
		buf.Data[i] = int(int16(binary.LittleEndian.Uint16(byteBuf[i*2:])))
	}

	if samplesRead == 0 {
		return 0, io.EOF
	}

	return samplesRead, nil
}

func (m *mp3DecoderWrapper) Duration() (time.Duration, error) {
	totalFrames := m.length / 4
	seconds := float64(totalFrames) / float64(m.sampleRate)

	return time.Duration(seconds * float64(time.Second)), nil
}

func (m *mp3DecoderWrapper) SampleRate() uint32 { return m.sampleRate }
func (m *mp3DecoderWrapper) NumChans() uint16   { return 2 }  // always decodes to stereo
func (m *mp3DecoderWrapper) BitDepth() uint16   { return 16 } // always decodes to 16-bit
func (m *mp3DecoderWrapper) IsFloat() bool      { return false }
