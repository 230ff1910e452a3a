package control

import (
	"sync"
	"sync/atomic"

	"github.com/pinguard/pinguard/internal/pin"
)

// defaultSubscriberBuffer is the per-subscriber event buffer. A subscriber
// that falls this far behind starts losing events rather than stalling
// writers, the same drop-oldest-rather-than-block policy the telemetry
// buffer uses.
const defaultSubscriberBuffer = 64

// Bus fans change events out to subscribers. Publishing never blocks: a
// full subscriber buffer drops the event and counts the loss.
type Bus struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
}

// Subscription is one subscriber's independent cursor into the event
// stream. Events published before Subscribe are never replayed.
type Subscription struct {
	bus     *Bus
	ch      chan pin.ChangeEvent
	dropped atomic.Uint64
}

func newBus() *Bus {
	return &Bus{subs: make(map[*Subscription]struct{})}
}

func (b *Bus) subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	s := &Subscription{
		bus: b,
		ch:  make(chan pin.ChangeEvent, buffer),
	}

	b.mu.Lock()
	if b.closed {
		close(s.ch)
	} else {
		b.subs[s] = struct{}{}
	}
	b.mu.Unlock()
	return s
}

// publish delivers ev to every subscriber that has room.
func (b *Bus) publish(ev pin.ChangeEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for s := range b.subs {
		select {
		case s.ch <- ev:
		default:
			s.dropped.Add(1)
		}
	}
}

func (b *Bus) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for s := range b.subs {
		close(s.ch)
		delete(b.subs, s)
	}
}

// Events returns the subscriber's channel. It is closed when the
// subscription or the bus is closed.
func (s *Subscription) Events() <-chan pin.ChangeEvent {
	return s.ch
}

// Dropped returns how many events this subscriber has lost to a full
// buffer.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close detaches the subscriber and closes its channel.
func (s *Subscription) Close() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if _, ok := s.bus.subs[s]; !ok {
		return
	}
	delete(s.bus.subs, s)
	close(s.ch)
}
