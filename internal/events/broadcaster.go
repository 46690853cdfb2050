// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package events implements the Event Broadcaster: a single
// in-process publisher feeding many subscribers (SSE/WebSocket clients,
// the CLI, test harnesses) with every StromEvent the system produces.
// Delivery is lossy by design: a subscriber that falls behind loses its
// oldest unread events rather than stalling the publisher, and is told
// exactly how many it lost.
package events

import (
	"sync"

	"github.com/eyevinn-osaas/strom-go/internal/metrics"
	"github.com/eyevinn-osaas/strom-go/internal/pipeline/model"
)

// DefaultRingCapacity bounds how many events a slow subscriber can lag
// behind before the broadcaster starts overwriting its oldest unread
// entries.
const DefaultRingCapacity = 100

// Broadcaster fans a stream of StromEvents out to any number of
// subscribers. It satisfies manager.EventSink.
type Broadcaster struct {
	capacity int

	mu   sync.Mutex
	subs map[uint64]*subscription
	next uint64
}

// New returns an empty Broadcaster with the default per-subscriber ring
// capacity, ready to accept subscribers and publishes.
func New() *Broadcaster {
	return NewWithCapacity(DefaultRingCapacity)
}

// NewWithCapacity returns a Broadcaster whose subscribers each buffer up
// to capacity undelivered events (DefaultRingCapacity if <= 0).
func NewWithCapacity(capacity int) *Broadcaster {
	if capacity <= 0 {
		capacity = DefaultRingCapacity
	}
	return &Broadcaster{capacity: capacity, subs: make(map[uint64]*subscription)}
}

// subscription is a fixed-capacity ring buffer of undelivered events plus
// a condition variable waking Subscription.Next when new data lands.
type subscription struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []model.StromEvent
	head   int // index of the oldest unread event
	count  int // number of unread events currently buffered
	lagged uint64
	closed bool
}

// Subscription is the subscriber-facing handle returned by Subscribe.
type Subscription struct {
	id  uint64
	b   *Broadcaster
	sub *subscription
}

// Subscribe registers a new subscriber and returns its handle. Call Close
// when done to free the broadcaster's reference.
func (b *Broadcaster) Subscribe() *Subscription {
	sub := &subscription{buf: make([]model.StromEvent, b.capacity)}
	sub.cond = sync.NewCond(&sub.mu)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = sub
	b.mu.Unlock()

	return &Subscription{id: id, b: b, sub: sub}
}

// Publish fans evt out to every current subscriber. Publish never blocks:
// a subscriber whose ring buffer is full has its oldest unread event
// overwritten, and its lag counter is incremented.
func (b *Broadcaster) Publish(evt model.StromEvent) {
	b.mu.Lock()
	subs := make([]*subscription, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	flowID := flowIDOf(evt)
	for _, s := range subs {
		s.push(evt, flowID)
	}
}

func (s *subscription) push(evt model.StromEvent, flowID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.count == len(s.buf) {
		// Buffer full: drop the oldest entry to make room, and record the
		// loss so the subscriber can report "lagged by N" to its client.
		s.head = (s.head + 1) % len(s.buf)
		s.count--
		s.lagged++
		metrics.IncBusDropReason(flowID, "subscriber_lag")
	}
	writeIdx := (s.head + s.count) % len(s.buf)
	s.buf[writeIdx] = evt
	s.count++
	s.cond.Signal()
}

// Next blocks until an event is available, returning it along with the
// number of events this subscriber has lost since the previous call to
// Next (0 if none). It returns ok=false once Close has been called and
// every buffered event has been drained.
func (s *Subscription) Next() (evt model.StromEvent, laggedBy uint64, ok bool) {
	sub := s.sub
	sub.mu.Lock()
	defer sub.mu.Unlock()
	for sub.count == 0 && !sub.closed {
		sub.cond.Wait()
	}
	if sub.count == 0 && sub.closed {
		return model.StromEvent{}, 0, false
	}
	evt = sub.buf[sub.head]
	sub.head = (sub.head + 1) % len(sub.buf)
	sub.count--
	laggedBy, sub.lagged = sub.lagged, 0
	return evt, laggedBy, true
}

// Close unregisters the subscription and wakes any blocked Next call.
func (s *Subscription) Close() {
	s.b.mu.Lock()
	delete(s.b.subs, s.id)
	s.b.mu.Unlock()

	s.sub.mu.Lock()
	s.sub.closed = true
	s.sub.cond.Broadcast()
	s.sub.mu.Unlock()
}

// SubscriberCount reports how many subscribers are currently attached,
// for diagnostics and tests.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func flowIDOf(evt model.StromEvent) string {
	switch d := evt.Data.(type) {
	case model.FlowIDData:
		return d.FlowID
	case model.FlowStateChangedData:
		return d.FlowID
	case model.PipelineDiagnosticData:
		return d.FlowID
	case model.PropertyChangedData:
		return d.FlowID
	case model.PadPropertyChangedData:
		return d.FlowID
	case model.MeterData:
		return d.FlowID
	case model.LatencyData:
		return d.FlowID
	case model.PtpStatsData:
		return d.FlowID
	default:
		return ""
	}
}
