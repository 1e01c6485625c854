package aloop_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gen2brain/aloop"
)

func TestEventBus(t *testing.T) {
	bus := aloop.NewEventBus()
	clk := aloop.NewManualClock(1_000_000)

	dev := aloop.NewDevice(aloop.WithName("bus"), aloop.WithScheduler(clk), aloop.WithNotifier(bus))
	defer dev.Close()

	periods := make(chan aloop.PeriodElapsedEvent, 16)
	states := make(chan aloop.StateChangedEvent, 16)

	unsubPeriods := bus.OnPeriodElapsed(func(ev aloop.PeriodElapsedEvent) { periods <- ev })
	defer unsubPeriods()
	unsubStates := bus.OnStateChanged(func(ev aloop.StateChangedEvent) { states <- ev })
	defer unsubStates()

	s, err := dev.OpenSize(aloop.SNDRV_PCM_STREAM_PLAYBACK, 1536, 48)
	require.NoError(t, err)
	require.NoError(t, s.Prepare(stereo16k))
	require.NoError(t, s.Start())

	clk.Advance(750)

	select {
	case ev := <-periods:
		assert.Equal(t, aloop.PeriodElapsedEvent{Device: "bus", Direction: aloop.SNDRV_PCM_STREAM_PLAYBACK, Position: 48}, ev)
	case <-time.After(time.Second):
		t.Fatal("no period event")
	}

	var got []aloop.StreamState
	for len(got) < 3 {
		select {
		case ev := <-states:
			assert.Equal(t, "bus", ev.Device)
			got = append(got, ev.State)
		case <-time.After(time.Second):
			t.Fatalf("state events: got %v", got)
		}
	}

	assert.Equal(t, []aloop.StreamState{aloop.StateOpened, aloop.StatePrepared, aloop.StateRunning}, got)
}
