// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package manager

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/capsync/internal/domain/session/lifecycle"
	"github.com/ManuGH/capsync/internal/domain/session/model"
)

func keysOf(sessions []*Session) []string {
	out := make([]string, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Key())
	}
	return out
}

func factoryWith(subs ...model.SubscriberID) SessionFactory {
	return func(e model.Entry) *Session { return NewSession(e, subs, testNow) }
}

func TestReconcile_MarkThenCollect(t *testing.T) {
	a := sessionAt(t, "A", lifecycle.StageRun)
	b := sessionAt(t, "B", lifecycle.StageRun)
	c := sessionAt(t, "C", lifecycle.StageRun)
	b.Subscribe("viewer")

	tracked, res := Reconcile([]*Session{a, b, c}, entries("A", "D"), factoryWith("default"))

	if diff := cmp.Diff([]string{"A", "B", "C", "D"}, keysOf(tracked)); diff != "" {
		t.Fatalf("tracked set mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"A"}, res.Claimed)
	assert.Equal(t, []string{"B", "C"}, res.Demoted)
	assert.Equal(t, []string{"D"}, res.Created)
	assert.Empty(t, res.Collected, "a disappearance is never collected in the same pass")

	assert.Equal(t, lifecycle.StageRun, a.Stage(), "claimed sessions are untouched")
	assert.Equal(t, lifecycle.StageStop, b.Stage())
	assert.Equal(t, lifecycle.StageStop, c.Stage())
	assert.Equal(t, lifecycle.StageNone, tracked[3].Stage())
	assert.Equal(t, []model.SubscriberID{"default"}, tracked[3].Subscribers())

	// B and C settle during the advance phase.
	for _, s := range []*Session{b, c} {
		require.NoError(t, s.state.Apply(lifecycle.HandlerFunc[*Handle](func(st *lifecycle.State[*Handle]) { st.AdvanceAuto() })))
	}
	require.NoError(t, tracked[3].state.Apply(lifecycle.HandlerFunc[*Handle](func(st *lifecycle.State[*Handle]) {
		st.RestartWith(lifecycle.Ok[*Handle](nil))
	})))

	tracked, res = Reconcile(tracked, nil, factoryWith())
	assert.Equal(t, []string{"A", "D"}, keysOf(tracked))
	assert.Equal(t, []string{"A", "D"}, res.Demoted)
	assert.Equal(t, []string{"B", "C"}, res.Collected)
	assert.Equal(t, []model.SubscriberID{"viewer"}, res.Detached["B"])
	assert.Empty(t, res.Detached["C"])
	assert.Empty(t, b.Subscribers(), "detached, not destroyed")
	assert.Equal(t, lifecycle.StageStop, tracked[1].Stage())
}

func TestReconcile_DemotionLeavesStopAndNoneAlone(t *testing.T) {
	none := sessionAt(t, "N", lifecycle.StageNone)
	stop := sessionAt(t, "S", lifecycle.StageStop)
	done := sessionAt(t, "X", lifecycle.StageDone)

	tracked, res := Reconcile([]*Session{none, stop, done}, nil, factoryWith())
	assert.Empty(t, res.Demoted)
	assert.Equal(t, lifecycle.StageNone, none.Stage())
	assert.Equal(t, lifecycle.StageStop, stop.Stage())
	assert.Equal(t, []string{"X"}, res.Collected)
	assert.Equal(t, []string{"N", "S"}, keysOf(tracked))
}

func TestReconcile_VanishedNoneIsSeededThenDemoted(t *testing.T) {
	none := sessionAt(t, "N", lifecycle.StageNone)
	st := &Stepper{Acquirer: newFakeAcquirer(), Logger: zerolog.Nop(), Now: fixedNow}

	tracked, res := Reconcile([]*Session{none}, nil, factoryWith())
	assert.Empty(t, res.Demoted)
	require.NoError(t, st.Step(context.Background(), none))
	assert.Equal(t, lifecycle.StageStart, none.Stage(), "the driver seeds rather than settles NONE")

	tracked, res = Reconcile(tracked, nil, factoryWith())
	assert.Equal(t, []string{"N"}, res.Demoted)
	assert.Equal(t, lifecycle.StageStop, none.Stage())
	require.NoError(t, st.Step(context.Background(), none))
	assert.Equal(t, lifecycle.StageDone, none.Stage())

	_, res = Reconcile(tracked, nil, factoryWith())
	assert.Equal(t, []string{"N"}, res.Collected)
}

func TestReconcile_DoneStillPresentIsCollectedThenRecreated(t *testing.T) {
	done := sessionAt(t, "A", lifecycle.StageDone)

	tracked, res := Reconcile([]*Session{done}, entries("A"), factoryWith())
	assert.Equal(t, []string{"A"}, res.Claimed)
	assert.Equal(t, []string{"A"}, res.Collected)
	assert.Empty(t, tracked)

	tracked, res = Reconcile(tracked, entries("A"), factoryWith())
	assert.Equal(t, []string{"A"}, res.Created)
	require.Len(t, tracked, 1)
	assert.NotEqual(t, done.ID(), tracked[0].ID())
}

func TestReconcile_DeduplicatesInventory(t *testing.T) {
	inv := []model.Entry{
		{Key: "usb-1", Path: "/dev/video0"},
		{Key: "usb-1", Path: "/dev/video2"},
		{Key: "", Path: "/dev/video9"},
	}
	tracked, res := Reconcile(nil, inv, factoryWith())
	require.Len(t, tracked, 1)
	assert.Equal(t, []string{"usb-1"}, res.Created)
	assert.Equal(t, "/dev/video2", tracked[0].Entry().Path)
}
