package events

import (
	"testing"
	"time"
)

func TestBusPublishSubscribe(t *testing.T) {
	b := NewBus()
	ch, unsub := b.Subscribe(EventSignal, 10)
	defer unsub()

	b.Publish(EventSignal, "hello")

	select {
	case got := <-ch:
		if got != "hello" {
			t.Errorf("received %v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("no message received")
	}
}

func TestBusTopicsAreIsolated(t *testing.T) {
	b := NewBus()
	ch, unsub := b.Subscribe(EventBar, 10)
	defer unsub()

	b.Publish(EventSignal, "wrong topic")

	select {
	case got := <-ch:
		t.Fatalf("received message from another topic: %v", got)
	default:
	}
}

func TestBusDropsWhenSubscriberFull(t *testing.T) {
	b := NewBus()
	ch, unsub := b.Subscribe(EventBar, 1)
	defer unsub()

	b.Publish(EventBar, 1)
	b.Publish(EventBar, 2) // dropped: buffer full, publisher must not block

	if got := <-ch; got != 1 {
		t.Errorf("first message = %v", got)
	}
	select {
	case got := <-ch:
		t.Fatalf("second message delivered despite full buffer: %v", got)
	default:
	}
}

func TestBusUnsubscribeClosesChannel(t *testing.T) {
	b := NewBus()
	ch, unsub := b.Subscribe(EventBar, 1)

	unsub()
	if _, ok := <-ch; ok {
		t.Fatal("channel not closed by unsubscribe")
	}

	// Publishing after unsubscribe must not panic.
	b.Publish(EventBar, 1)
}

func TestBusClose(t *testing.T) {
	b := NewBus()
	ch, _ := b.Subscribe(EventBar, 1)

	b.Close()
	if _, ok := <-ch; ok {
		t.Fatal("channel not closed by Close")
	}

	// Publish and a second Close after shutdown are no-ops.
	b.Publish(EventBar, 1)
	b.Close()
}
