package events

import (
	"github.com/kelindar/event"
)

// Bus wraps kelindar/event dispatcher for event broadcasting.
// Publishers never know how many subscribers exist, including none.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers.
// Usage: bus.Publish(StepOutputEvent{...})
func (b *Bus) Publish(ev Event) {
	switch e := ev.(type) {
	case StepOutputEvent:
		event.Publish(b.dispatcher, e)
	case ServerOutputEvent:
		event.Publish(b.dispatcher, e)
	case StepStatusEvent:
		event.Publish(b.dispatcher, e)
	case PipelineStateEvent:
		event.Publish(b.dispatcher, e)
	case ServerReadyEvent:
		event.Publish(b.dispatcher, e)
	case ServerExitedEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe subscribes to events with a handler function.
// The handler's parameter type selects which events it receives.
// Returns an unsubscribe function; unknown handler types get a no-op.
// Usage: unsub := bus.Subscribe(func(e StepStatusEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(StepOutputEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ServerOutputEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(StepStatusEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(PipelineStateEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ServerReadyEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ServerExitedEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}

// SubscribeToChannel bridges callback subscriptions to a channel for
// select-loop consumers such as SSE handlers. Events are dropped when the
// channel is full.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- any) func() {
	return event.Subscribe(bus.dispatcher, func(e T) {
		select {
		case ch <- e:
		default:
		}
	})
}

// SubscribeOutput subscribes one observer to the three output streams of the
// pipeline contract: step output, server output and step status.
func (b *Bus) SubscribeOutput(onStep func(StepOutputEvent), onServer func(ServerOutputEvent), onStatus func(StepStatusEvent)) func() {
	var unsubs []func()
	if onStep != nil {
		unsubs = append(unsubs, b.Subscribe(onStep))
	}
	if onServer != nil {
		unsubs = append(unsubs, b.Subscribe(onServer))
	}
	if onStatus != nil {
		unsubs = append(unsubs, b.Subscribe(onStatus))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}
