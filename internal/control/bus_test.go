package control

import (
	"testing"
	"time"

	"github.com/pinguard/pinguard/internal/pin"
)

func TestBusFanout(t *testing.T) {
	b := newBus()
	s1 := b.subscribe(4)
	s2 := b.subscribe(4)

	b.publish(pin.ChangeEvent{Pin: 17, Cause: pin.CauseManual})

	for i, s := range []*Subscription{s1, s2} {
		select {
		case ev := <-s.Events():
			if ev.Pin != 17 {
				t.Errorf("subscriber %d: unexpected event %+v", i, ev)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d: no event", i)
		}
	}
}

func TestBusDropsWhenSubscriberIsFull(t *testing.T) {
	b := newBus()
	s := b.subscribe(2)

	for i := 0; i < 5; i++ {
		b.publish(pin.ChangeEvent{Pin: i})
	}

	if got := s.Dropped(); got != 3 {
		t.Errorf("expected 3 dropped events, got %d", got)
	}

	// The first two events are still delivered in order.
	ev := <-s.Events()
	if ev.Pin != 0 {
		t.Errorf("expected pin 0 first, got %d", ev.Pin)
	}
	ev = <-s.Events()
	if ev.Pin != 1 {
		t.Errorf("expected pin 1 second, got %d", ev.Pin)
	}
}

func TestBusPublishNeverBlocks(t *testing.T) {
	b := newBus()
	b.subscribe(1) // never drained

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			b.publish(pin.ChangeEvent{Pin: i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestSubscriptionClose(t *testing.T) {
	b := newBus()
	s := b.subscribe(4)
	s.Close()

	if _, ok := <-s.Events(); ok {
		t.Error("channel should be closed")
	}

	// Publishing after close must not panic.
	b.publish(pin.ChangeEvent{Pin: 1})

	// Double close is safe.
	s.Close()
}

func TestBusClose(t *testing.T) {
	b := newBus()
	s := b.subscribe(4)
	b.close()

	if _, ok := <-s.Events(); ok {
		t.Error("channel should be closed after bus close")
	}

	// Subscribing after close yields a closed channel, not a hang.
	late := b.subscribe(4)
	if _, ok := <-late.Events(); ok {
		t.Error("late subscription should be closed immediately")
	}
}
