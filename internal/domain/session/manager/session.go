// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package manager

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ManuGH/capsync/internal/domain/session/lifecycle"
	"github.com/ManuGH/capsync/internal/domain/session/model"
)

// Session is a tracked lifecycle bound to one physical device key.
type Session struct {
	id        string
	entry     model.Entry
	state     *lifecycle.Wrapper[*Handle]
	createdAt time.Time

	subMu       sync.RWMutex
	subscribers map[model.SubscriberID]struct{}

	frames    atomic.Uint64
	updatedAt atomic.Int64
	lastErr   atomic.Pointer[string]
}

// NewSession creates a session in NONE for entry with the given subscribers.
func NewSession(entry model.Entry, subscribers []model.SubscriberID, now time.Time) *Session {
	s := &Session{
		id:          uuid.NewString(),
		entry:       entry,
		state:       lifecycle.NewWrapper(lifecycle.State[*Handle]{}),
		createdAt:   now,
		subscribers: make(map[model.SubscriberID]struct{}, len(subscribers)),
	}
	for _, id := range subscribers {
		s.subscribers[id] = struct{}{}
	}
	s.touch(now)
	return s
}

func (s *Session) ID() string          { return s.id }
func (s *Session) Key() string         { return s.entry.Key }
func (s *Session) Entry() model.Entry  { return s.entry }
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Stage returns the current lifecycle stage.
func (s *Session) Stage() lifecycle.Stage { return s.state.Stage() }

// IsDone reports whether the session has settled.
func (s *Session) IsDone() bool { return s.state.IsDone() }

// Outcome returns the outcome carried by the session's state.
func (s *Session) Outcome() (lifecycle.Outcome[*Handle], bool) { return s.state.PeekOutcome() }

// FramesDelivered returns how many frames were pulled and fanned out.
func (s *Session) FramesDelivered() uint64 { return s.frames.Load() }

// LastError returns the last error reported at STOP, if any.
func (s *Session) LastError() string {
	if p := s.lastErr.Load(); p != nil {
		return *p
	}
	return ""
}

// LastFrame returns the most recent frame while the session holds a capture.
func (s *Session) LastFrame() (model.Frame, bool) {
	out, ok := s.state.PeekOutcome()
	if !ok || out.IsErr() || out.Value == nil {
		return model.Frame{}, false
	}
	return out.Value.LastFrame()
}

// Subscribe adds id to the subscriber set and reports whether it was new.
func (s *Session) Subscribe(id model.SubscriberID) bool {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if _, ok := s.subscribers[id]; ok {
		return false
	}
	s.subscribers[id] = struct{}{}
	return true
}

// Unsubscribe removes id and reports whether it was present.
func (s *Session) Unsubscribe(id model.SubscriberID) bool {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if _, ok := s.subscribers[id]; !ok {
		return false
	}
	delete(s.subscribers, id)
	return true
}

// Subscribers returns the subscriber IDs in sorted order.
func (s *Session) Subscribers() []model.SubscriberID {
	s.subMu.RLock()
	defer s.subMu.RUnlock()
	return sortedSubscribers(s.subscribers)
}

// detachSubscribers empties the subscriber set and returns what it held.
func (s *Session) detachSubscribers() []model.SubscriberID {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	out := sortedSubscribers(s.subscribers)
	s.subscribers = make(map[model.SubscriberID]struct{})
	return out
}

// demote pushes a session whose device vanished toward STOP. Only START and
// RUN can be force-stopped. A NONE session is seeded into START by the next
// step and demoted on the following cycle; STOP settles on its own and DONE
// waits for collection.
func (s *Session) demote() bool {
	return s.state.ForceStop()
}

// Info returns a snapshot for external surfaces.
func (s *Session) Info() model.SessionInfo {
	return model.SessionInfo{
		Key:             s.entry.Key,
		SessionID:       s.id,
		Path:            s.entry.Path,
		Name:            s.entry.Name,
		Stage:           s.state.Stage().String(),
		LastError:       s.LastError(),
		Subscribers:     s.Subscribers(),
		FramesDelivered: s.frames.Load(),
		CreatedAt:       s.createdAt,
		UpdatedAt:       time.Unix(0, s.updatedAt.Load()),
	}
}

func (s *Session) retirement(now time.Time) model.Retirement {
	return model.Retirement{
		Key:             s.entry.Key,
		SessionID:       s.id,
		Path:            s.entry.Path,
		FinalError:      s.LastError(),
		FramesDelivered: s.frames.Load(),
		CreatedAt:       s.createdAt,
		RetiredAt:       now,
	}
}

func (s *Session) touch(now time.Time) {
	s.updatedAt.Store(now.UnixNano())
}

func (s *Session) setLastError(err error) {
	msg := err.Error()
	s.lastErr.Store(&msg)
}

func sortedSubscribers(set map[model.SubscriberID]struct{}) []model.SubscriberID {
	out := make([]model.SubscriberID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
