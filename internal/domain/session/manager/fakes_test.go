// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package manager

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ManuGH/capsync/internal/domain/session/lifecycle"
	"github.com/ManuGH/capsync/internal/domain/session/model"
	"github.com/ManuGH/capsync/internal/domain/session/ports"
)

var (
	errBusy     = errors.New("device busy")
	errUnplug   = errors.New("device unplugged")
	errScanFail = errors.New("sysfs unreadable")
)

type fakeCapture struct {
	mu      sync.Mutex
	key     string
	reads   int
	closed  int
	readErr error
}

func (c *fakeCapture) Read(context.Context) (model.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr != nil {
		return model.Frame{}, c.readErr
	}
	c.reads++
	return model.Frame{Data: []byte{0xff, 0xd8, byte(c.reads)}, ContentType: "image/jpeg"}, nil
}

func (c *fakeCapture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

func (c *fakeCapture) Closed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeCapture) failReads(err error) {
	c.mu.Lock()
	c.readErr = err
	c.mu.Unlock()
}

// fakeAcquirer hands out one fakeCapture per acquisition and can be told to
// fail for specific keys.
type fakeAcquirer struct {
	mu       sync.Mutex
	fail     map[string]error
	captures map[string][]*fakeCapture
	calls    map[string]int
	hook     func(entry model.Entry)
}

func newFakeAcquirer() *fakeAcquirer {
	return &fakeAcquirer{
		fail:     map[string]error{},
		captures: map[string][]*fakeCapture{},
		calls:    map[string]int{},
	}
}

func (a *fakeAcquirer) Acquire(_ context.Context, entry model.Entry) (ports.Capture, error) {
	a.mu.Lock()
	a.calls[entry.Key]++
	hook := a.hook
	err := a.fail[entry.Key]
	var c *fakeCapture
	if err == nil {
		c = &fakeCapture{key: entry.Key}
		a.captures[entry.Key] = append(a.captures[entry.Key], c)
	}
	a.mu.Unlock()

	if hook != nil {
		hook(entry)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (a *fakeAcquirer) latest(key string) *fakeCapture {
	a.mu.Lock()
	defer a.mu.Unlock()
	cs := a.captures[key]
	if len(cs) == 0 {
		return nil
	}
	return cs[len(cs)-1]
}

func (a *fakeAcquirer) Calls(key string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[key]
}

type delivery struct {
	id    model.SubscriberID
	frame model.Frame
}

type fakeDeliverer struct {
	mu  sync.Mutex
	got []delivery
}

func (d *fakeDeliverer) Deliver(_ context.Context, id model.SubscriberID, frame model.Frame) {
	d.mu.Lock()
	d.got = append(d.got, delivery{id: id, frame: frame})
	d.mu.Unlock()
}

func (d *fakeDeliverer) Deliveries() []delivery {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]delivery(nil), d.got...)
}

type report struct {
	key string
	err error
}

type fakeSink struct {
	mu      sync.Mutex
	reports []report
}

func (s *fakeSink) Report(_ context.Context, key string, err error) {
	s.mu.Lock()
	s.reports = append(s.reports, report{key: key, err: err})
	s.mu.Unlock()
}

func (s *fakeSink) Reports() []report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]report(nil), s.reports...)
}

type fakeHistory struct {
	mu      sync.Mutex
	retired []model.Retirement
}

func (h *fakeHistory) RecordRetirement(_ context.Context, r model.Retirement) error {
	h.mu.Lock()
	h.retired = append(h.retired, r)
	h.mu.Unlock()
	return nil
}

func (h *fakeHistory) Keys() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.retired))
	for _, r := range h.retired {
		out = append(out, r.Key)
	}
	return out
}

// fakeInventory returns whatever was last set.
type fakeInventory struct {
	mu      sync.Mutex
	entries []model.Entry
	err     error
}

func (i *fakeInventory) Scan(context.Context) ([]model.Entry, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.err != nil {
		return nil, i.err
	}
	return append([]model.Entry(nil), i.entries...), nil
}

func (i *fakeInventory) Set(keys ...string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.err = nil
	i.entries = entries(keys...)
}

func (i *fakeInventory) Fail(err error) {
	i.mu.Lock()
	i.err = err
	i.mu.Unlock()
}

func entries(keys ...string) []model.Entry {
	out := make([]model.Entry, 0, len(keys))
	for _, k := range keys {
		out = append(out, entry(k))
	}
	return out
}

func entry(key string) model.Entry {
	return model.Entry{Key: key, Path: "/dev/video-" + key, Name: "cam " + key}
}

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return testNow }

// sessionAt builds a session and drives it into stage with public transitions.
func sessionAt(t *testing.T, key string, stage lifecycle.Stage) *Session {
	t.Helper()
	s := NewSession(entry(key), nil, testNow)
	apply := func(fn func(*lifecycle.State[*Handle])) {
		require.NoError(t, s.state.Apply(lifecycle.HandlerFunc[*Handle](fn)))
	}
	if stage == lifecycle.StageNone {
		return s
	}
	apply(func(st *lifecycle.State[*Handle]) { st.RestartWith(lifecycle.Ok[*Handle](nil)) })
	if stage == lifecycle.StageStart {
		return s
	}
	apply(func(st *lifecycle.State[*Handle]) { st.AdvanceSuccess(newHandle(&fakeCapture{key: key})) })
	if stage == lifecycle.StageRun {
		return s
	}
	require.True(t, s.state.ForceStop())
	if stage == lifecycle.StageStop {
		return s
	}
	apply(func(st *lifecycle.State[*Handle]) { st.AdvanceAuto() })
	require.Equal(t, stage, s.Stage())
	return s
}
