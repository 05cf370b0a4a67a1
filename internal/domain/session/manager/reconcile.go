// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package manager

import (
	"github.com/ManuGH/capsync/internal/domain/session/model"
)

// SessionFactory builds a fresh session for a newly discovered device.
type SessionFactory func(entry model.Entry) *Session

// ReconcileResult lists the keys touched by one reconciliation pass.
type ReconcileResult struct {
	Claimed   []string
	Demoted   []string
	Created   []string
	Collected []string

	// Detached maps each collected key to the subscribers released from it.
	Detached map[string][]model.SubscriberID

	retired []*Session
}

// Reconcile diffs inventory against the tracked sessions and returns the new
// tracked list.
//
// Sessions whose device vanished are only demoted; a session is removed from
// tracking solely once it has settled in DONE, so a disappearance is never
// detected and collected in the same pass.
func Reconcile(sessions []*Session, inventory []model.Entry, factory SessionFactory) ([]*Session, ReconcileResult) {
	res := ReconcileResult{Detached: map[string][]model.SubscriberID{}}

	entries := model.Dedupe(inventory)
	unclaimed := model.Index(entries)

	for _, s := range sessions {
		if _, ok := unclaimed[s.Key()]; ok {
			delete(unclaimed, s.Key())
			res.Claimed = append(res.Claimed, s.Key())
			continue
		}
		if s.IsDone() {
			continue
		}
		if s.demote() {
			res.Demoted = append(res.Demoted, s.Key())
		}
	}

	next := make([]*Session, 0, len(sessions)+len(unclaimed))
	next = append(next, sessions...)
	for _, e := range entries {
		if _, ok := unclaimed[e.Key]; !ok {
			continue
		}
		next = append(next, factory(e))
		res.Created = append(res.Created, e.Key)
	}

	kept := next[:0]
	for _, s := range next {
		if !s.IsDone() {
			kept = append(kept, s)
			continue
		}
		res.Collected = append(res.Collected, s.Key())
		res.Detached[s.Key()] = s.detachSubscribers()
		res.retired = append(res.retired, s)
	}
	// Clear the tail so collected sessions can be released.
	for i := len(kept); i < len(next); i++ {
		next[i] = nil
	}
	return kept, res
}
