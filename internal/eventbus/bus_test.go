package eventbus

import (
	"testing"
	"time"

	"pkt.systems/simlink/schema"
)

func TestSubscribeAndPublish(t *testing.T) {
	bus := New(nil)
	ch, cancel := bus.Subscribe("s1")
	defer cancel()

	bus.OnText("s1", schema.SimSetTitle, "E1M1")

	select {
	case got := <-ch:
		if got.Type != EventText {
			t.Fatalf("expected text event, got %v", got.Type)
		}
		if got.Session != "s1" || got.Kind != schema.SimSetTitle || got.Text != "E1M1" {
			t.Fatalf("unexpected payload: %+v", got)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timed out waiting for event")
	}
}

func TestAllSessionsReceivesEverySession(t *testing.T) {
	bus := New(nil)
	all, cancelAll := bus.Subscribe(AllSessions)
	defer cancelAll()
	other, cancelOther := bus.Subscribe("s2")
	defer cancelOther()

	bus.OnStatus("s1", schema.PlayerStatus{Health: 42})
	select {
	case got := <-all:
		if got.Type != EventStatus || got.Status.Health != 42 || got.Session != "s1" {
			t.Fatalf("unexpected payload: %+v", got)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timed out waiting for event")
	}
	select {
	case got := <-other:
		t.Fatalf("unexpected event for other session: %+v", got)
	default:
	}
	if !bus.HasSubscribers("s9") {
		t.Fatalf("expected wildcard subscriber to count")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := New(nil)
	ch, cancel := bus.Subscribe("s1")
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatalf("expected channel to be closed")
	}
	if bus.HasSubscribers("s1") {
		t.Fatalf("expected no subscribers")
	}
}

func TestPublishDoesNotBlockWhenFull(t *testing.T) {
	bus := New(nil)
	bus.depth = 1
	_, cancel := bus.Subscribe("s1")
	defer cancel()

	var sendCh chan Event
	bus.mu.Lock()
	for ch := range bus.subs["s1"] {
		sendCh = ch
		break
	}
	bus.mu.Unlock()
	if sendCh == nil {
		t.Fatalf("expected subscriber channel")
	}
	sendCh <- Event{Type: EventFrame}
	done := make(chan struct{})
	go func() {
		bus.OnLink("s1", true)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("publish blocked on full channel")
	}
}

func TestNilBus(t *testing.T) {
	var bus *Bus
	ch, cancel := bus.Subscribe("s1")
	cancel()
	if ch != nil || bus.HasSubscribers("s1") {
		t.Fatalf("expected nil bus to be inert")
	}
	bus.OnFrame("s1", schema.Frame{})
}
