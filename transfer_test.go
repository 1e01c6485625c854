package aloop

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var monoS16 = Params{Rate: 8000, Channels: 1, Format: SNDRV_PCM_FORMAT_S16_LE}

func newTransferDevice(t *testing.T, opts ...Option) *Device {
	t.Helper()

	d := NewDevice(append([]Option{WithScheduler(NewManualClock(1_000_000))}, opts...)...)
	t.Cleanup(func() { _ = d.Close() })

	return d
}

func openPrepared(t *testing.T, d *Device, dir Direction, bufferBytes, periodBytes uint32) *Stream {
	t.Helper()

	s, err := d.OpenSize(dir, bufferBytes, periodBytes)
	require.NoError(t, err)
	require.NoError(t, s.Prepare(monoS16))

	return s
}

func TestTransferLoopbackWraps(t *testing.T) {
	d := newTransferDevice(t)
	play := openPrepared(t, d, SNDRV_PCM_STREAM_PLAYBACK, 100, 10)
	capt := openPrepared(t, d, SNDRV_PCM_STREAM_CAPTURE, 64, 8)

	require.NoError(t, play.Start())
	require.NoError(t, capt.Start())

	d.mu.Lock()
	for i := range play.ring.Bytes() {
		play.ring.Bytes()[i] = byte(i)
	}
	play.ring.pos = 90
	capt.ring.pos = 60
	res := d.transfer(30)
	d.mu.Unlock()

	assert.Equal(t, uint64(30), res.bytes)
	assert.Equal(t, uint32(20), play.BufPos())
	assert.Equal(t, uint32(26), capt.BufPos())

	got := capt.ring.Bytes()
	want := make([]byte, 0, 30)
	for i := 90; i < 120; i++ {
		want = append(want, byte(i%100))
	}
	assert.Equal(t, want[:4], got[60:64])
	assert.Equal(t, want[4:], got[:26])
	assert.Equal(t, uint32(34), capt.Silence(), "copied bytes are no longer silent")
}

func TestTransferCaptureSilence(t *testing.T) {
	d := newTransferDevice(t)

	s, err := d.OpenSize(SNDRV_PCM_STREAM_CAPTURE, 96, 48)
	require.NoError(t, err)
	require.NoError(t, s.Prepare(Params{Rate: 8000, Channels: 1, Format: SNDRV_PCM_FORMAT_U8}))

	assert.Equal(t, bytes.Repeat([]byte{0x80}, 96), s.ring.Bytes(), "prepare fills the capture area")
	assert.Equal(t, uint32(96), s.Silence())

	require.NoError(t, s.Start())

	d.mu.Lock()
	s.ring.Fill(0, 96, 0x11)
	s.silence = 0
	d.transfer(10)
	d.mu.Unlock()

	assert.Equal(t, bytes.Repeat([]byte{0x80}, 10), s.ring.Bytes()[:10])
	assert.Equal(t, byte(0x11), s.ring.Bytes()[10])
	assert.Equal(t, uint32(10), s.Silence())

	d.mu.Lock()
	d.transfer(200)
	d.mu.Unlock()

	assert.Equal(t, uint32(96), s.Silence(), "silence is capped at the capacity")
	assert.Equal(t, bytes.Repeat([]byte{0x80}, 96), s.ring.Bytes())
}

func TestTransferDrainingClamp(t *testing.T) {
	var sink bytes.Buffer
	d := newTransferDevice(t, WithSink(&sink))
	play := openPrepared(t, d, SNDRV_PCM_STREAM_PLAYBACK, 96, 48)

	data := []byte("0123456789abcdefghij")
	n, err := play.Write(data)
	require.NoError(t, err)
	require.Equal(t, 10, n, "frames of two bytes")
	require.NoError(t, play.Start())

	d.mu.Lock()
	play.draining = true
	res := d.transfer(48)
	d.mu.Unlock()

	d.finish(res)

	assert.Equal(t, uint64(20), res.bytes, "a draining stream never consumes past what was written")
	assert.Equal(t, []*Stream{play}, res.drained)
	assert.Equal(t, StatePrepared, play.State())
	assert.False(t, d.Running())
	assert.Equal(t, uint32(20), play.BufPos())
	assert.Equal(t, data, sink.Bytes())
	assert.Zero(t, play.Xruns())
}

func TestTransferPlaybackUnderrun(t *testing.T) {
	d := newTransferDevice(t)
	play := openPrepared(t, d, SNDRV_PCM_STREAM_PLAYBACK, 96, 48)

	_, err := play.Write(make([]int16, 8))
	require.NoError(t, err)
	require.NoError(t, play.Start())

	d.mu.Lock()
	res := d.transfer(48)
	d.mu.Unlock()

	assert.Equal(t, uint32(1), res.xruns[SNDRV_PCM_STREAM_PLAYBACK])
	assert.Equal(t, 1, play.Xruns())
	assert.Equal(t, uint32(96), play.Avail(), "the application pointer is resynchronized")
}

func TestTransferBufPosBound(t *testing.T) {
	d := newTransferDevice(t)
	play := openPrepared(t, d, SNDRV_PCM_STREAM_PLAYBACK, 4800, 480)
	capt := openPrepared(t, d, SNDRV_PCM_STREAM_CAPTURE, 1536, 48)

	require.NoError(t, play.Start())
	require.NoError(t, capt.Start())

	rng := rand.New(rand.NewSource(3))

	d.mu.Lock()
	defer d.mu.Unlock()

	for i := 0; i < 2000; i++ {
		d.transfer(uint64(rng.Intn(10000)))

		require.Less(t, play.ring.Pos(), play.ring.Cap())
		require.Less(t, capt.ring.Pos(), capt.ring.Cap())
		require.Equal(t, play.hwPos, capt.hwPos, "both cursors move by the same count")
	}
}
