package aloop

import (
	"github.com/kelindar/event"
)

// Event type constants for kelindar/event.
const (
	TypePeriodElapsed uint32 = iota + 1
	TypeStateChanged
)

// PeriodElapsedEvent is published once per period boundary crossed by a running stream.
type PeriodElapsedEvent struct {
	Device    string
	Direction Direction
	Position  uint32 // buffer position in bytes when the event was published
}

// Type returns the event type identifier for PeriodElapsedEvent.
func (e PeriodElapsedEvent) Type() uint32 { return TypePeriodElapsed }

// StateChangedEvent is published when a stream moves to a new state.
type StateChangedEvent struct {
	Device    string
	Direction Direction
	State     StreamState
}

// Type returns the event type identifier for StateChangedEvent.
func (e StateChangedEvent) Type() uint32 { return TypeStateChanged }

// EventBus is a Notifier that fans notifications out to subscribers through a kelindar/event
// dispatcher. Subscribers run on the dispatcher's goroutines, so a slow subscriber never holds
// up the scheduler callback.
type EventBus struct {
	dispatcher *event.Dispatcher
}

// NewEventBus creates an event bus with its own dispatcher.
func NewEventBus() *EventBus {
	return &EventBus{
		dispatcher: event.NewDispatcher(),
	}
}

// PeriodElapsed implements Notifier.
func (b *EventBus) PeriodElapsed(s *Stream) {
	event.Publish(b.dispatcher, PeriodElapsedEvent{
		Device:    s.dev.name,
		Direction: s.dir,
		Position:  s.BufPos(),
	})
}

// StateChanged implements StateNotifier.
func (b *EventBus) StateChanged(s *Stream, state StreamState) {
	event.Publish(b.dispatcher, StateChangedEvent{
		Device:    s.dev.name,
		Direction: s.dir,
		State:     state,
	})
}

// OnPeriodElapsed subscribes to period-elapsed events and returns the unsubscribe function.
func (b *EventBus) OnPeriodElapsed(handler func(PeriodElapsedEvent)) func() {
	return event.Subscribe(b.dispatcher, handler)
}

// OnStateChanged subscribes to state changes and returns the unsubscribe function.
func (b *EventBus) OnStateChanged(handler func(StateChangedEvent)) func() {
	return event.Subscribe(b.dispatcher, handler)
}
