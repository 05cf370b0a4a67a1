// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package bus fans frames out to subscribers keyed by subscriber ID.
package bus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/ManuGH/capsync/internal/domain/session/model"
	"github.com/ManuGH/capsync/internal/domain/session/ports"
	"github.com/ManuGH/capsync/internal/log"
	"github.com/ManuGH/capsync/internal/metrics"
)

// DefaultBuffer is the per-subscription queue depth.
const DefaultBuffer = 8

const dropLogEvery = 100

var (
	ErrClosed            = errors.New("bus closed")
	ErrInvalidSubscriber = errors.New("invalid subscriber id")
)

// FrameBus is an in-memory fan-out. Delivery never blocks: a full queue drops
// the frame, so a slow consumer cannot stall a session's tick.
//
// The bus also tracks which session keys hold each subscriber ID. Queues for
// an ID are closed only once the last session holding it lets go.
type FrameBus struct {
	buffer int

	mu      sync.RWMutex
	subs    map[model.SubscriberID][]*Subscription
	members map[model.SubscriberID]map[string]struct{}
	closed  bool

	dropped atomic.Uint64
}

// NewFrameBus returns a bus whose subscriptions buffer up to buffer frames.
func NewFrameBus(buffer int) *FrameBus {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &FrameBus{
		buffer:  buffer,
		subs:    make(map[model.SubscriberID][]*Subscription),
		members: make(map[model.SubscriberID]map[string]struct{}),
	}
}

// Deliver implements ports.Deliverer.
func (b *FrameBus) Deliver(_ context.Context, id model.SubscriberID, frame model.Frame) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.drop(id, "closed")
		return
	}
	lst := b.subs[id]
	if len(lst) == 0 {
		b.drop(id, "no_subscriber")
		return
	}
	for _, s := range lst {
		select {
		case s.ch <- frame:
			metrics.IncBusPublished()
		default:
			b.drop(id, "full")
		}
	}
}

func (b *FrameBus) drop(id model.SubscriberID, reason string) {
	metrics.IncBusDrop(reason)
	count := b.dropped.Add(1)
	if count%dropLogEvery == 0 {
		log.L().Warn().
			Str(log.FieldSubscriber, string(id)).
			Str("reason", reason).
			Uint64("dropped", count).
			Msg("frame bus dropping frames")
	}
}

// Subscribe opens a new queue for id. Several queues may share one id.
func (b *FrameBus) Subscribe(id model.SubscriberID) (*Subscription, error) {
	if !model.IsValidSubscriberID(id) {
		return nil, ErrInvalidSubscriber
	}
	s := &Subscription{b: b, id: id, ch: make(chan model.Frame, b.buffer)}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	b.subs[id] = append(b.subs[id], s)
	return s, nil
}

// Attach records that the session for key holds ids. It matches the
// manager's OnAttach hook.
func (b *FrameBus) Attach(key string, ids []model.SubscriberID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, id := range ids {
		set, ok := b.members[id]
		if !ok {
			set = make(map[string]struct{})
			b.members[id] = set
		}
		set[key] = struct{}{}
	}
}

// Detach releases ids from the session for key. Queues of an ID are closed
// when no other session still holds it; IDs the session never held are
// ignored. It matches the manager's OnDetach hook.
func (b *FrameBus) Detach(key string, ids []model.SubscriberID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, id := range ids {
		set := b.members[id]
		if _, ok := set[key]; !ok {
			continue
		}
		delete(set, key)
		if len(set) > 0 {
			continue
		}
		delete(b.members, id)
		for _, s := range b.subs[id] {
			s.closeLocked()
		}
		delete(b.subs, id)
	}
}

// Holders returns the session keys currently holding id, in no order.
func (b *FrameBus) Holders(id model.SubscriberID) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.members[id]))
	for key := range b.members[id] {
		out = append(out, key)
	}
	return out
}

// Subscribers returns how many queues are open for id.
func (b *FrameBus) Subscribers(id model.SubscriberID) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[id])
}

// Dropped returns the number of frames dropped since creation.
func (b *FrameBus) Dropped() uint64 { return b.dropped.Load() }

// Close closes every queue and rejects further subscriptions.
func (b *FrameBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for id, lst := range b.subs {
		for _, s := range lst {
			s.closeLocked()
		}
		delete(b.subs, id)
	}
	clear(b.members)
	return nil
}

// Subscription is one consumer queue.
type Subscription struct {
	b      *FrameBus
	id     model.SubscriberID
	ch     chan model.Frame
	closed bool
}

// C returns the frame channel; it is closed when the subscription ends.
func (s *Subscription) C() <-chan model.Frame { return s.ch }

// ID returns the subscriber ID the queue belongs to.
func (s *Subscription) ID() model.SubscriberID { return s.id }

// Close removes the queue from the bus. It is safe to call more than once.
func (s *Subscription) Close() error {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	if s.closed {
		return nil
	}
	lst := s.b.subs[s.id]
	out := lst[:0]
	for _, c := range lst {
		if c != s {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		delete(s.b.subs, s.id)
	} else {
		s.b.subs[s.id] = out
	}
	s.closeLocked()
	return nil
}

func (s *Subscription) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// Ensure compliance
var _ ports.Deliverer = (*FrameBus)(nil)
