// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package status

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/capsync/internal/bus"
	"github.com/ManuGH/capsync/internal/diagnostics"
	"github.com/ManuGH/capsync/internal/domain/session/manager"
	"github.com/ManuGH/capsync/internal/domain/session/model"
	"github.com/ManuGH/capsync/internal/history"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeSessions struct {
	mu     sync.Mutex
	infos  map[string]model.SessionInfo
	frames map[string]model.Frame
}

func newFakeSessions(keys ...string) *fakeSessions {
	f := &fakeSessions{infos: map[string]model.SessionInfo{}, frames: map[string]model.Frame{}}
	for _, k := range keys {
		f.infos[k] = model.SessionInfo{Key: k, SessionID: "id-" + k, Stage: "RUN", Subscribers: []model.SubscriberID{}}
	}
	return f
}

func (f *fakeSessions) Sessions() []model.SessionInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.SessionInfo, 0, len(f.infos))
	for _, k := range []string{"usb-1", "usb-2"} {
		if i, ok := f.infos[k]; ok {
			out = append(out, i)
		}
	}
	return out
}

func (f *fakeSessions) Session(key string) (model.SessionInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i, ok := f.infos[key]
	if !ok {
		return model.SessionInfo{}, fmt.Errorf("%w: %s", manager.ErrSessionNotFound, key)
	}
	return i, nil
}

func (f *fakeSessions) Subscribe(key string, id model.SubscriberID) (bool, error) {
	if !model.IsValidSubscriberID(id) {
		return false, manager.ErrInvalidSubscriber
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	i, ok := f.infos[key]
	if !ok {
		return false, manager.ErrSessionNotFound
	}
	for _, s := range i.Subscribers {
		if s == id {
			return false, nil
		}
	}
	i.Subscribers = append(i.Subscribers, id)
	f.infos[key] = i
	return true, nil
}

func (f *fakeSessions) Unsubscribe(key string, id model.SubscriberID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i, ok := f.infos[key]
	if !ok {
		return false, manager.ErrSessionNotFound
	}
	for n, s := range i.Subscribers {
		if s == id {
			i.Subscribers = append(i.Subscribers[:n:n], i.Subscribers[n+1:]...)
			f.infos[key] = i
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeSessions) subscribers(key string) []model.SubscriberID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.SubscriberID(nil), f.infos[key].Subscribers...)
}

func (f *fakeSessions) LastFrame(key string) (model.Frame, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.infos[key]; !ok {
		return model.Frame{}, false, manager.ErrSessionNotFound
	}
	fr, ok := f.frames[key]
	return fr, ok, nil
}

func (f *fakeSessions) Cycles() uint64       { return 7 }
func (f *fakeSessions) LastCycle() time.Time { return testNow }

type fakeFaults []diagnostics.Fault

func (f fakeFaults) Faults() []diagnostics.Fault { return f }

func newTestServer(t *testing.T, sessions *fakeSessions, deps Deps) *httptest.Server {
	t.Helper()
	deps.Sessions = sessions
	deps.Logger = zerolog.Nop()
	srv := httptest.NewServer(NewServer(Config{RateLimitRPS: 1000}, deps).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func do(t *testing.T, method, url string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	return resp
}

func TestServer_SessionsAndStatus(t *testing.T) {
	sessions := newFakeSessions("usb-1", "usb-2")
	srv := newTestServer(t, sessions, Deps{Faults: fakeFaults{{Key: "usb-2", Error: "busy"}}})

	resp, body := get(t, srv.URL+"/api/sessions")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var infos []model.SessionInfo
	require.NoError(t, json.Unmarshal(body, &infos))
	require.Len(t, infos, 2)
	assert.Equal(t, "usb-1", infos[0].Key)

	resp, body = get(t, srv.URL+"/api/sessions/usb-2")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"session_id":"id-usb-2"`)

	resp, body = get(t, srv.URL+"/api/sessions/missing")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(body), `"error":"not_found"`)

	resp, body = get(t, srv.URL+"/api/status")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var st statusResponse
	require.NoError(t, json.Unmarshal(body, &st))
	assert.Equal(t, uint64(7), st.Cycles)
	assert.Equal(t, map[string]int{"RUN": 2}, st.ByStage)
	assert.Equal(t, 1, st.Faults)

	resp, body = get(t, srv.URL+"/api/faults")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"key":"usb-2"`)
}

func TestServer_Frame(t *testing.T) {
	sessions := newFakeSessions("usb-1")
	srv := newTestServer(t, sessions, Deps{})

	resp, _ := get(t, srv.URL+"/api/sessions/usb-1/frame")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	sessions.mu.Lock()
	sessions.frames["usb-1"] = model.Frame{Key: "usb-1", Seq: 3, Data: []byte{0xff, 0xd8, 0xff, 0xd9}, ContentType: "image/jpeg"}
	sessions.mu.Unlock()

	resp, body := get(t, srv.URL+"/api/sessions/usb-1/frame")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/jpeg", resp.Header.Get("Content-Type"))
	assert.Equal(t, "3", resp.Header.Get("X-Frame-Seq"))
	assert.Equal(t, []byte{0xff, 0xd8, 0xff, 0xd9}, body)
}

func TestServer_Subscribers(t *testing.T) {
	sessions := newFakeSessions("usb-1")
	srv := newTestServer(t, sessions, Deps{})
	base := srv.URL + "/api/sessions/usb-1/subscribers/"

	assert.Equal(t, http.StatusCreated, do(t, http.MethodPut, base+"recorder").StatusCode)
	assert.Equal(t, http.StatusOK, do(t, http.MethodPut, base+"recorder").StatusCode)
	assert.Equal(t, []model.SubscriberID{"recorder"}, sessions.subscribers("usb-1"))

	assert.Equal(t, http.StatusBadRequest, do(t, http.MethodPut, base+"bad%20id").StatusCode)
	assert.Equal(t, http.StatusNotFound, do(t, http.MethodPut, srv.URL+"/api/sessions/nope/subscribers/x").StatusCode)

	assert.Equal(t, http.StatusOK, do(t, http.MethodDelete, base+"recorder").StatusCode)
	assert.Equal(t, http.StatusNotFound, do(t, http.MethodDelete, base+"recorder").StatusCode)
	assert.Empty(t, sessions.subscribers("usb-1"))
}

func TestServer_History(t *testing.T) {
	store, err := history.Open(filepath.Join(t.TempDir(), "h.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.RecordRetirement(context.Background(), model.Retirement{
		Key: "usb-1", SessionID: "s1", Path: "/dev/video0", CreatedAt: testNow, RetiredAt: testNow,
	}))

	srv := newTestServer(t, newFakeSessions(), Deps{History: store})
	resp, body := get(t, srv.URL+"/api/history?key=usb-1&limit=5")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var items []model.Retirement
	require.NoError(t, json.Unmarshal(body, &items))
	require.Len(t, items, 1)
	assert.Equal(t, "s1", items[0].SessionID)

	resp, _ = get(t, srv.URL+"/api/history?limit=0")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	noHistory := newTestServer(t, newFakeSessions(), Deps{})
	resp, _ = get(t, noHistory.URL+"/api/history")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_MetricsAndLogs(t *testing.T) {
	srv := newTestServer(t, newFakeSessions(), Deps{})
	get(t, srv.URL+"/api/sessions")

	resp, body := get(t, srv.URL+"/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `capsync_http_requests_total{code="2xx",route="/api/sessions"}`)

	resp, body = get(t, srv.URL+"/api/logs")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(strings.TrimSpace(string(body)), "["))
}

func TestServer_RateLimit(t *testing.T) {
	s := NewServer(Config{RateLimitRPS: 2}, Deps{Sessions: newFakeSessions(), Logger: zerolog.Nop()})
	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
		req.RemoteAddr = "192.0.2.1:1234"
		s.Handler().ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{200, 200, 429}, codes)
}

func TestServer_StreamRelaysBusFrames(t *testing.T) {
	sessions := newFakeSessions("usb-1")
	fb := bus.NewFrameBus(4)
	t.Cleanup(func() { _ = fb.Close() })
	srv := newTestServer(t, sessions, Deps{Bus: fb})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/sessions/usb-1/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	require.NoError(t, err)

	var subs []model.SubscriberID
	require.Eventually(t, func() bool {
		subs = sessions.subscribers("usb-1")
		return len(subs) == 1
	}, time.Second, 5*time.Millisecond)
	fb.Deliver(context.Background(), subs[0], model.Frame{Key: "usb-1", Data: []byte("jpeg"), ContentType: "image/jpeg"})

	mr := multipart.NewReader(bufio.NewReader(resp.Body), params["boundary"])
	part, err := mr.NextPart()
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", part.Header.Get("Content-Type"))
	data, err := io.ReadAll(io.LimitReader(part, 4))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", string(data))

	cancel()
	require.Eventually(t, func() bool { return len(sessions.subscribers("usb-1")) == 0 }, time.Second, 5*time.Millisecond)
}

func TestSnapshotWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	sw := &SnapshotWriter{
		Path:     path,
		Sessions: newFakeSessions("usb-1"),
		Logger:   zerolog.Nop(),
		Now:      func() time.Time { return testNow },
	}
	require.NoError(t, sw.Write())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var snap Snapshot
	require.NoError(t, json.Unmarshal(raw, &snap))
	assert.True(t, testNow.Equal(snap.GeneratedAt))
	assert.Equal(t, uint64(7), snap.Cycles)
	require.Len(t, snap.Sessions, 1)

	bad := &SnapshotWriter{Path: filepath.Join(t.TempDir(), "missing", "s.json"), Sessions: sw.Sessions}
	assert.Error(t, bad.Write())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, os.Remove(path))
	require.NoError(t, sw.Run(ctx))
	_, err = os.Stat(path)
	assert.NoError(t, err, "a final snapshot is written on shutdown")
}
