package aloop_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gen2brain/aloop"
)

func TestRingBufferWraparoundSegments(t *testing.T) {
	const capacity = 1536

	for _, k := range []uint64{0, 3, 5} {
		r := aloop.NewRingBuffer(make([]byte, capacity))
		r.Advance(capacity - 5)
		require.Equal(t, uint32(capacity-5), r.Pos())

		var lengths []int
		var sum uint64
		r.Segments(r.Pos(), capacity+k, func(seg []byte) {
			lengths = append(lengths, len(seg))
			sum += uint64(len(seg))
		})

		assert.Len(t, lengths, 2, "k=%d", k)
		assert.Equal(t, uint64(capacity)+k, sum, "k=%d", k)

		r.Advance(capacity + k)
		assert.Equal(t, uint32((capacity-5+capacity+k)%capacity), r.Pos(), "k=%d", k)
	}
}

func TestRingBufferSegmentsSplitAtCapacity(t *testing.T) {
	r := aloop.NewRingBuffer(make([]byte, 100))

	var lengths []int
	r.Segments(95, 120, func(seg []byte) {
		lengths = append(lengths, len(seg))
	})

	assert.Equal(t, []int{5, 100, 15}, lengths)
}

func TestRingBufferWriteReadAt(t *testing.T) {
	r := aloop.NewRingBuffer(make([]byte, 16))

	src := []byte("abcdefghij")
	r.WriteAt(12, src)

	assert.Equal(t, []byte("efghij"), r.Bytes()[:6])
	assert.Equal(t, []byte("abcd"), r.Bytes()[12:])

	dst := make([]byte, len(src))
	r.ReadAt(12, dst)
	assert.Equal(t, src, dst)
}

func TestRingBufferFill(t *testing.T) {
	r := aloop.NewRingBuffer(make([]byte, 8))
	r.Fill(6, 4, 0x80)

	assert.Equal(t, []byte{0x80, 0x80, 0, 0, 0, 0, 0x80, 0x80}, r.Bytes())
}

func TestRingBufferPosBound(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for _, capacity := range []int{1, 48, 1536, 4099} {
		r := aloop.NewRingBuffer(make([]byte, capacity))
		for i := 0; i < 1000; i++ {
			r.Advance(uint64(rng.Int63n(int64(capacity) * 3)))
			require.Less(t, r.Pos(), uint32(capacity))
		}
	}
}
