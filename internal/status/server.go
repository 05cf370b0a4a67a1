// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package status serves the read-mostly HTTP API over the session manager:
// session listings, the latest frame per device, live MJPEG streams,
// subscriber management, faults, retirement history and recent logs.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ManuGH/capsync/internal/bus"
	"github.com/ManuGH/capsync/internal/diagnostics"
	"github.com/ManuGH/capsync/internal/domain/session/manager"
	"github.com/ManuGH/capsync/internal/domain/session/model"
	"github.com/ManuGH/capsync/internal/history"
	"github.com/ManuGH/capsync/internal/log"
)

const (
	DefaultRateLimitRPS = 50
	mjpegBoundary       = "capsyncframe"
	shutdownGrace       = 5 * time.Second
)

// Sessions is the manager surface the API reads and mutates.
type Sessions interface {
	Sessions() []model.SessionInfo
	Session(key string) (model.SessionInfo, error)
	Subscribe(key string, id model.SubscriberID) (bool, error)
	Unsubscribe(key string, id model.SubscriberID) (bool, error)
	LastFrame(key string) (model.Frame, bool, error)
	Cycles() uint64
	LastCycle() time.Time
}

// Faults lists devices with a recent failure.
type Faults interface {
	Faults() []diagnostics.Fault
}

// History lists retired sessions.
type History interface {
	List(ctx context.Context, q history.Query) ([]model.Retirement, error)
}

// Health serves the liveness and readiness probes.
type Health interface {
	ServeHealth(w http.ResponseWriter, r *http.Request)
	ServeReady(w http.ResponseWriter, r *http.Request)
}

type Config struct {
	Listen       string
	RateLimitRPS int
	// TracingService enables otelhttp spans under this name when set.
	TracingService string
}

// Deps wires the server. Sessions is required; the rest are optional and
// their endpoints answer 404 when absent.
type Deps struct {
	Sessions Sessions
	Bus      *bus.FrameBus
	Faults   Faults
	History  History
	Health   Health
	Logger   zerolog.Logger
}

type Server struct {
	cfg     Config
	deps    Deps
	logger  zerolog.Logger
	handler http.Handler
}

func NewServer(cfg Config, deps Deps) *Server {
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = DefaultRateLimitRPS
	}
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: deps.Logger.With().Str(log.FieldComponent, "status").Logger(),
	}
	s.handler = s.routes()
	return s
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(recoverer(s.logger))
	r.Use(observe(s.logger))

	if s.deps.Health != nil {
		r.Get("/healthz", s.deps.Health.ServeHealth)
		r.Get("/readyz", s.deps.Health.ServeReady)
	}
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(rateLimit(s.cfg.RateLimitRPS))
		r.Get("/status", s.handleStatus)
		r.Get("/sessions", s.handleSessions)
		r.Route("/sessions/{key}", func(r chi.Router) {
			r.Get("/", s.handleSession)
			r.Get("/frame", s.handleFrame)
			r.Get("/stream", s.handleStream)
			r.Put("/subscribers/{id}", s.handleSubscribe)
			r.Delete("/subscribers/{id}", s.handleUnsubscribe)
		})
		r.Get("/faults", s.handleFaults)
		r.Get("/history", s.handleHistory)
		r.Get("/logs", s.handleLogs)
	})

	if s.cfg.TracingService != "" {
		return tracing(s.cfg.TracingService, r)
	}
	return r
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	if s.cfg.Listen == "" {
		<-ctx.Done()
		return nil
	}
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("event", "status.listening").Str("addr", s.cfg.Listen).Msg("status API listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("status server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("status server shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type statusResponse struct {
	Cycles    uint64         `json:"cycles"`
	LastCycle *time.Time     `json:"last_cycle,omitempty"`
	Sessions  int            `json:"sessions"`
	ByStage   map[string]int `json:"by_stage"`
	Faults    int            `json:"faults"`
	Dropped   uint64         `json:"frames_dropped"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.summary())
}

func (s *Server) summary() statusResponse {
	infos := s.deps.Sessions.Sessions()
	resp := statusResponse{
		Cycles:   s.deps.Sessions.Cycles(),
		Sessions: len(infos),
		ByStage:  map[string]int{},
	}
	if last := s.deps.Sessions.LastCycle(); !last.IsZero() {
		resp.LastCycle = &last
	}
	for _, info := range infos {
		resp.ByStage[info.Stage]++
	}
	if s.deps.Faults != nil {
		resp.Faults = len(s.deps.Faults.Faults())
	}
	if s.deps.Bus != nil {
		resp.Dropped = s.deps.Bus.Dropped()
	}
	return resp
}

func (s *Server) handleSessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Sessions.Sessions())
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	info, err := s.deps.Sessions.Session(chi.URLParam(r, "key"))
	if err != nil {
		s.writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	frame, ok, err := s.deps.Sessions.LastFrame(chi.URLParam(r, "key"))
	if err != nil {
		s.writeLookupError(w, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "no_frame", "no frame captured yet")
		return
	}
	w.Header().Set("Content-Type", frame.ContentType)
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Frame-Seq", strconv.FormatUint(frame.Seq, 10))
	w.Header().Set("Content-Length", strconv.Itoa(len(frame.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(frame.Data)
}

// handleStream subscribes an ephemeral subscriber to the session and relays
// its frames as multipart/x-mixed-replace until the client goes away.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.deps.Bus == nil {
		writeError(w, http.StatusNotFound, "not_available", "streaming disabled")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal_error", "streaming unsupported")
		return
	}

	key := chi.URLParam(r, "key")
	id := model.SubscriberID("http-" + uuid.NewString())
	sub, err := s.deps.Bus.Subscribe(id)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", err.Error())
		return
	}
	defer func() { _ = sub.Close() }()
	if _, err := s.deps.Sessions.Subscribe(key, id); err != nil {
		s.writeLookupError(w, err)
		return
	}
	defer func() { _, _ = s.deps.Sessions.Unsubscribe(key, id) }()

	logger := s.logger.With().Str(log.FieldKey, key).Str(log.FieldSubscriber, string(id)).Logger()
	logger.Info().Str("event", "stream.opened").Msg("stream client attached")
	defer logger.Info().Str("event", "stream.closed").Msg("stream client detached")

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+mjpegBoundary)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case frame, ok := <-sub.C():
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: %s\r\nContent-Length: %d\r\n\r\n",
				mjpegBoundary, frame.ContentType, len(frame.Data)); err != nil {
				return
			}
			if _, err := w.Write(frame.Data); err != nil {
				return
			}
			if _, err := w.Write([]byte("\r\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

type subscribeResponse struct {
	Key        string `json:"key"`
	Subscriber string `json:"subscriber"`
	Changed    bool   `json:"changed"`
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	key, id := chi.URLParam(r, "key"), model.SubscriberID(chi.URLParam(r, "id"))
	added, err := s.deps.Sessions.Subscribe(key, id)
	if err != nil {
		s.writeLookupError(w, err)
		return
	}
	code := http.StatusOK
	if added {
		code = http.StatusCreated
	}
	writeJSON(w, code, subscribeResponse{Key: key, Subscriber: string(id), Changed: added})
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	key, id := chi.URLParam(r, "key"), model.SubscriberID(chi.URLParam(r, "id"))
	removed, err := s.deps.Sessions.Unsubscribe(key, id)
	if err != nil {
		s.writeLookupError(w, err)
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "not_subscribed", "subscriber not attached")
		return
	}
	writeJSON(w, http.StatusOK, subscribeResponse{Key: key, Subscriber: string(id), Changed: true})
}

func (s *Server) handleFaults(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Faults == nil {
		writeJSON(w, http.StatusOK, []diagnostics.Fault{})
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Faults.Faults())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		writeError(w, http.StatusNotFound, "not_available", "history disabled")
		return
	}
	q := history.Query{Key: r.URL.Query().Get("key")}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 1000 {
			writeError(w, http.StatusBadRequest, "bad_request", "limit must be between 1 and 1000")
			return
		}
		q.Limit = n
	}
	items, err := s.deps.History.List(r.Context(), q)
	if err != nil {
		s.logger.Error().Err(err).Str("event", "history.list_failed").Msg("history query failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "history query failed")
		return
	}
	if items == nil {
		items = []model.Retirement{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleLogs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, log.GetRecentLogs())
}

func (s *Server) writeLookupError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, manager.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, manager.ErrInvalidSubscriber):
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
	default:
		s.logger.Error().Err(err).Str("event", "status.lookup_failed").Msg("lookup failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, kind, detail string) {
	writeJSON(w, code, errorResponse{Error: kind, Detail: detail})
}
