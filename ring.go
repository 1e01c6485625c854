package aloop

// RingBuffer is a fixed-capacity byte buffer with a cursor that only moves forward, wrapping at
// the capacity. It never reallocates the slice it was created with.
type RingBuffer struct {
	data []byte
	pos  uint32
}

// NewRingBuffer wraps buf. The capacity is len(buf).
func NewRingBuffer(buf []byte) *RingBuffer {
	return &RingBuffer{data: buf}
}

// Cap returns the capacity in bytes.
func (r *RingBuffer) Cap() uint32 {
	return uint32(len(r.data))
}

// Pos returns the cursor, always less than Cap for a non-empty buffer.
func (r *RingBuffer) Pos() uint32 {
	return r.pos
}

// Reset moves the cursor back to the start.
func (r *RingBuffer) Reset() {
	r.pos = 0
}

// Advance moves the cursor forward by n bytes modulo the capacity.
func (r *RingBuffer) Advance(n uint64) {
	capacity := uint64(len(r.data))
	if capacity == 0 {
		return
	}

	r.pos = uint32((uint64(r.pos) + n%capacity) % capacity)
}

// Bytes returns the underlying storage.
func (r *RingBuffer) Bytes() []byte {
	return r.data
}

// Segments calls fn for each contiguous region covering n bytes starting at off, wrapping at the
// capacity. Each region is at most capacity-off bytes long.
func (r *RingBuffer) Segments(off uint32, n uint64, fn func(seg []byte)) {
	capacity := uint32(len(r.data))
	if capacity == 0 {
		return
	}

	off %= capacity
	for n > 0 {
		chunk := capacity - off
		if uint64(chunk) > n {
			chunk = uint32(n)
		}

		fn(r.data[off : off+chunk])

		off = (off + chunk) % capacity
		n -= uint64(chunk)
	}
}

// WriteAt copies src into the buffer starting at off, wrapping at the capacity.
func (r *RingBuffer) WriteAt(off uint32, src []byte) {
	r.Segments(off, uint64(len(src)), func(seg []byte) {
		n := copy(seg, src)
		src = src[n:]
	})
}

// ReadAt copies len(dst) bytes starting at off into dst, wrapping at the capacity.
func (r *RingBuffer) ReadAt(off uint32, dst []byte) {
	r.Segments(off, uint64(len(dst)), func(seg []byte) {
		n := copy(dst, seg)
		dst = dst[n:]
	})
}

// Fill sets n bytes starting at off to b.
func (r *RingBuffer) Fill(off uint32, n uint64, b byte) {
	r.Segments(off, n, func(seg []byte) {
		for i := range seg {
			seg[i] = b
		}
	})
}
