package aloop

import (
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"unsafe"
)

// Write copies interleaved samples into a playback stream at the application pointer.
// The provided `data` argument must be a slice of a supported numeric type (e.g., []int16, []float32).
// It never blocks: only as many whole frames as fit in the free space are copied.
// Returns the number of frames actually written.
func (s *Stream) Write(data any) (int, error) {
	if s.dir != SNDRV_PCM_STREAM_PLAYBACK {
		return 0, fmt.Errorf("cannot write to a capture stream: %w", ErrInvalidState)
	}

	ptr, byteLen, err := checkSliceAndGetData(data)
	if err != nil {
		return 0, fmt.Errorf("invalid data type for Write: %w", err)
	}

	defer runtime.KeepAlive(data)

	s.dev.mu.Lock()
	defer s.dev.mu.Unlock()

	if s.state < StatePrepared {
		return 0, fmt.Errorf("write in state %s: %w", s.state, ErrInvalidState)
	}

	if byteLen == 0 {
		return 0, nil
	}

	s.appIO = true

	capacity := uint64(s.ring.Cap())
	if s.applPos < s.hwPos {
		s.applPos = s.hwPos
	}

	n := min(uint64(byteLen), capacity-s.queued())
	n -= n % uint64(s.frameSize)
	if n == 0 {
		return 0, nil
	}

	src := unsafe.Slice((*byte)(ptr), byteLen)
	s.ring.WriteAt(uint32(s.applPos%capacity), src[:n])
	s.applPos += n

	return int(n / uint64(s.frameSize)), nil
}

// Read copies captured interleaved samples from the application pointer into `data`.
// The provided `data` must be a slice of a supported numeric type (e.g., []int16, []float32).
// It never blocks. Returns the number of frames actually read.
func (s *Stream) Read(data any) (int, error) {
	if s.dir != SNDRV_PCM_STREAM_CAPTURE {
		return 0, fmt.Errorf("cannot read from a playback stream: %w", ErrInvalidState)
	}

	ptr, byteLen, err := checkSliceAndGetData(data)
	if err != nil {
		return 0, fmt.Errorf("invalid buffer type for Read: %w", err)
	}

	defer runtime.KeepAlive(data)

	s.dev.mu.Lock()
	defer s.dev.mu.Unlock()

	if s.state < StatePrepared {
		return 0, fmt.Errorf("read in state %s: %w", s.state, ErrInvalidState)
	}

	if byteLen == 0 {
		return 0, nil
	}

	s.appIO = true

	capacity := uint64(s.ring.Cap())
	if s.hwPos-s.applPos > capacity {
		s.applPos = s.hwPos - capacity
	}

	n := min(uint64(byteLen), s.hwPos-s.applPos)
	n -= n % uint64(s.frameSize)
	if n == 0 {
		return 0, nil
	}

	dst := unsafe.Slice((*byte)(ptr), byteLen)
	s.ring.ReadAt(uint32(s.applPos%capacity), dst[:n])
	s.applPos += n

	return int(n / uint64(s.frameSize)), nil
}

// Avail returns the bytes that can be written to a playback stream or read from a capture stream.
func (s *Stream) Avail() uint32 {
	s.dev.mu.Lock()
	defer s.dev.mu.Unlock()

	if s.state < StatePrepared {
		return 0
	}

	if s.dir == SNDRV_PCM_STREAM_PLAYBACK {
		return s.ring.Cap() - uint32(s.queued())
	}

	return uint32(min(s.hwPos-s.applPos, uint64(s.ring.Cap())))
}

// PcmFramesToBytes converts a number of frames to the corresponding number of bytes.
func PcmFramesToBytes(s *Stream, frames uint32) uint32 {
	if s == nil {
		return 0
	}

	return frames * s.FrameSize()
}

// PcmBytesToFrames converts a number of bytes to the corresponding number of frames.
func PcmBytesToFrames(s *Stream, bytes uint32) uint32 {
	if s == nil {
		return 0
	}

	frameSize := s.FrameSize()
	if frameSize == 0 {
		return 0
	}

	return bytes / frameSize
}

// checkSlice validates that the input is a slice of a supported numeric type.
// It returns the total length of the slice data in bytes.
func checkSlice(data any) (byteLen uint32, err error) {
	if data == nil {
		return 0, errors.New("data cannot be nil")
	}

	rv := reflect.ValueOf(data)
	if rv.Kind() != reflect.Slice {
		return 0, fmt.Errorf("expected a slice, got %T", data)
	}

	switch rv.Type().Elem().Kind() {
	case reflect.Int8, reflect.Uint8,
		reflect.Int16, reflect.Uint16,
		reflect.Int32, reflect.Uint32,
		reflect.Float32, reflect.Float64:
	default:
		return 0, fmt.Errorf("unsupported slice element type: %s", rv.Type().Elem().Kind())
	}

	return uint32(rv.Len()) * uint32(rv.Type().Elem().Size()), nil
}

// checkSliceAndGetData is a helper that combines slice validation and getting the data pointer.
func checkSliceAndGetData(data any) (ptr unsafe.Pointer, byteLen uint32, err error) {
	byteLen, err = checkSlice(data)
	if err != nil {
		return nil, 0, err
	}

	if byteLen > 0 {
		ptr = unsafe.Pointer(reflect.ValueOf(data).Index(0).Addr().Pointer())
	}

	return ptr, byteLen, nil
}
