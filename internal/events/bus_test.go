package events

import (
	"sync"
	"testing"
	"time"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := New()
	received := make(chan StepStatusEvent, 1)

	unsub := bus.Subscribe(func(e StepStatusEvent) {
		received <- e
	})
	defer unsub()

	bus.Publish(StepStatusEvent{ProjectID: "web", Step: "Build", Status: StatusSuccess})

	select {
	case got := <-received:
		if got.ProjectID != "web" || got.Status != StatusSuccess {
			t.Errorf("unexpected event %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestBus_NoSubscribers(_ *testing.T) {
	bus := New()
	bus.Publish(StepOutputEvent{ProjectID: "web", Text: "nobody listens"})
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := New()
	received := make(chan ServerOutputEvent, 1)

	unsub := bus.Subscribe(func(e ServerOutputEvent) {
		received <- e
	})

	bus.Publish(ServerOutputEvent{ProjectID: "a"})
	<-received

	unsub()

	bus.Publish(ServerOutputEvent{ProjectID: "b"})
	select {
	case <-received:
		t.Fatal("should not receive event after unsubscribe")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestBus_TypeSafety(t *testing.T) {
	bus := New()

	readyReceived := make(chan bool, 1)
	exitReceived := make(chan bool, 1)

	defer bus.Subscribe(func(_ ServerReadyEvent) { readyReceived <- true })()
	defer bus.Subscribe(func(_ ServerExitedEvent) { exitReceived <- true })()

	bus.Publish(ServerReadyEvent{ProjectID: "web"})
	<-readyReceived

	select {
	case <-exitReceived:
		t.Fatal("exit subscriber received a ready event")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestBus_UnknownHandlerIsNoop(_ *testing.T) {
	bus := New()
	unsub := bus.Subscribe(func(string) {})
	unsub()
}

func TestBus_SubscribeOutput(t *testing.T) {
	bus := New()

	var mu sync.Mutex
	var got []string
	done := make(chan struct{}, 3)
	record := func(s string) {
		mu.Lock()
		got = append(got, s)
		mu.Unlock()
		done <- struct{}{}
	}

	unsub := bus.SubscribeOutput(
		func(StepOutputEvent) { record("step") },
		func(ServerOutputEvent) { record("server") },
		func(StepStatusEvent) { record("status") },
	)
	defer unsub()

	bus.Publish(StepOutputEvent{})
	bus.Publish(ServerOutputEvent{})
	bus.Publish(StepStatusEvent{})

	for range 3 {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for output events")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 3 {
		t.Errorf("expected 3 events, got %v", got)
	}
}

func TestSubscribeToChannel_DropsWhenFull(t *testing.T) {
	bus := New()
	ch := make(chan any, 1)

	unsub := SubscribeToChannel[PipelineStateEvent](bus, ch)
	defer unsub()

	bus.Publish(PipelineStateEvent{State: "Build"})
	bus.Publish(PipelineStateEvent{State: "ServerStarting"})

	select {
	case ev := <-ch:
		if _, ok := ev.(PipelineStateEvent); !ok {
			t.Fatalf("unexpected event type %T", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel event")
	}
}

func TestBus_ConcurrentPublish(_ *testing.T) {
	bus := New()
	const publishers, perPublisher = 8, 50
	received := make(chan struct{}, publishers*perPublisher)

	defer bus.Subscribe(func(StepOutputEvent) { received <- struct{}{} })()

	var wg sync.WaitGroup
	for range publishers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perPublisher {
				bus.Publish(StepOutputEvent{Text: "x"})
			}
		}()
	}
	wg.Wait()

	for range publishers * perPublisher {
		<-received
	}
}
