// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package manager

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/capsync/internal/domain/session/lifecycle"
	"github.com/ManuGH/capsync/internal/domain/session/model"
	"github.com/ManuGH/capsync/internal/domain/session/ports"
	xglog "github.com/ManuGH/capsync/internal/log"
	"github.com/ManuGH/capsync/internal/metrics"
	"github.com/ManuGH/capsync/internal/telemetry"
)

const (
	DefaultInterval        = time.Second
	DefaultShutdownTimeout = 10 * time.Second
)

// Config tunes the reconcile loop.
type Config struct {
	Interval           time.Duration
	ShutdownTimeout    time.Duration
	Concurrency        int
	DefaultSubscribers []model.SubscriberID
}

// Deps are the collaborators the manager drives. Inventory and Acquirer are
// required; everything else is optional.
type Deps struct {
	Inventory   ports.Inventory
	Acquirer    ports.Acquirer
	Deliverer   ports.Deliverer
	Diagnostics ports.DiagnosticSink
	History     ports.HistoryRecorder

	// OnAttach receives the subscribers a session for key gains, either at
	// creation or through Subscribe.
	OnAttach func(key string, subscribers []model.SubscriberID)
	// OnDetach receives the subscribers a session for key releases, either
	// through Unsubscribe or when the session is collected.
	OnDetach func(key string, subscribers []model.SubscriberID)
	// OnAcquired runs each time a session for key acquires its device.
	OnAcquired func(key string)

	// Wake, when signalled, triggers a cycle before the next tick.
	Wake <-chan struct{}

	Logger zerolog.Logger
	Now    func() time.Time
}

// CycleReport summarizes one Cycle call.
type CycleReport struct {
	CycleID   string
	Inventory int
	ScanErr   error
	Reconcile ReconcileResult
	Advance   AdvanceResult
}

// Manager owns the tracked session list and runs reconcile then advance once
// per cycle. Cycle and Shutdown are serialized; readers use snapshots.
type Manager struct {
	cfg    Config
	deps   Deps
	driver *Driver
	tracer trace.Tracer
	logger zerolog.Logger

	cycleMu sync.Mutex

	mu       sync.RWMutex
	sessions []*Session

	cycles    atomic.Uint64
	lastCycle atomic.Int64
}

// New validates deps and returns a manager with no tracked sessions.
func New(cfg Config, deps Deps) (*Manager, error) {
	if deps.Inventory == nil {
		return nil, ErrMissingInventory
	}
	if deps.Acquirer == nil {
		return nil, ErrMissingAcquirer
	}
	if deps.Deliverer == nil {
		deps.Deliverer = ports.DeliverFunc(func(context.Context, model.SubscriberID, model.Frame) {})
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	for _, id := range cfg.DefaultSubscribers {
		if !model.IsValidSubscriberID(id) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidSubscriber, id)
		}
	}

	logger := deps.Logger.With().Str(xglog.FieldComponent, "manager").Logger()
	m := &Manager{
		cfg:    cfg,
		deps:   deps,
		tracer: telemetry.Tracer("github.com/ManuGH/capsync/manager"),
		logger: logger,
	}
	m.driver = &Driver{
		Concurrency: cfg.Concurrency,
		Stepper: &Stepper{
			Acquirer:    deps.Acquirer,
			Deliverer:   deps.Deliverer,
			Diagnostics: deps.Diagnostics,
			Logger:      logger,
			Now:         deps.Now,
			OnAcquired:  deps.OnAcquired,
		},
	}
	return m, nil
}

// Cycle runs one scan, one reconciliation pass and one advance of every
// session, strictly in that order. A scan failure is treated as an empty
// inventory.
func (m *Manager) Cycle(ctx context.Context) (CycleReport, error) {
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()

	start := m.deps.Now()
	report := CycleReport{CycleID: uuid.NewString()}
	ctx = xglog.ContextWithCycleID(ctx, report.CycleID)
	ctx, span := m.tracer.Start(ctx, "capsync.cycle")
	defer span.End()
	logger := xglog.WithContext(ctx, m.logger)

	entries, err := m.deps.Inventory.Scan(ctx)
	if err != nil {
		report.ScanErr = err
		entries = nil
		metrics.IncInventoryScanFailure()
		span.RecordError(err)
		logger.Warn().Err(err).Str(xglog.FieldEvent, "inventory.scan_failed").Msg("inventory scan failed, treating as empty")
	}
	report.Inventory = len(model.Dedupe(entries))
	metrics.SetInventoryDevices(report.Inventory)

	tracked := m.reconcile(ctx, entries, &report)
	report.Advance, err = m.advance(ctx, tracked)

	span.SetAttributes(telemetry.CycleAttributes(report.CycleID, report.Inventory, len(tracked),
		len(report.Reconcile.Created), len(report.Reconcile.Demoted), len(report.Reconcile.Collected))...)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}

	m.publishStages()
	m.cycles.Add(1)
	m.lastCycle.Store(m.deps.Now().UnixNano())
	metrics.ObserveCycleDuration(m.deps.Now().Sub(start))
	return report, err
}

func (m *Manager) reconcile(ctx context.Context, entries []model.Entry, report *CycleReport) []*Session {
	_, span := m.tracer.Start(ctx, "reconcile")
	defer span.End()

	m.mu.Lock()
	next, res := Reconcile(m.sessions, entries, m.newSession)
	m.sessions = next
	tracked := append([]*Session(nil), next...)
	m.mu.Unlock()

	report.Reconcile = res
	m.afterReconcile(ctx, res)
	return tracked
}

func (m *Manager) advance(ctx context.Context, sessions []*Session) (AdvanceResult, error) {
	ctx, span := m.tracer.Start(ctx, "advance")
	defer span.End()
	return m.driver.AdvanceAll(ctx, sessions)
}

func (m *Manager) newSession(entry model.Entry) *Session {
	return NewSession(entry, m.cfg.DefaultSubscribers, m.deps.Now())
}

func (m *Manager) afterReconcile(ctx context.Context, res ReconcileResult) {
	logger := xglog.WithContext(ctx, m.logger)

	metrics.IncSessionsCreated(len(res.Created))
	metrics.IncSessionsDemoted(len(res.Demoted))
	metrics.IncSessionsCollected(len(res.Collected))

	for _, key := range res.Created {
		logger.Info().Str(xglog.FieldKey, key).Str(xglog.FieldEvent, "session.created").Msg("device discovered")
	}
	for _, key := range res.Demoted {
		logger.Info().Str(xglog.FieldKey, key).Str(xglog.FieldEvent, "session.demoted").Msg("device vanished, stopping session")
	}

	now := m.deps.Now()
	for _, s := range res.retired {
		subs := res.Detached[s.Key()]
		logger.Info().
			Str(xglog.FieldKey, s.Key()).
			Str(xglog.FieldSessionID, s.ID()).
			Int(xglog.FieldSubscribers, len(subs)).
			Str(xglog.FieldEvent, "session.collected").
			Msg("session collected")

		if m.deps.OnDetach != nil && len(subs) > 0 {
			m.deps.OnDetach(s.Key(), subs)
		}
		if m.deps.History != nil {
			if err := m.deps.History.RecordRetirement(ctx, s.retirement(now)); err != nil {
				metrics.IncHistoryWriteError()
				logger.Warn().Err(err).Str(xglog.FieldKey, s.Key()).Msg("recording retirement failed")
			}
		}
	}

	// Collected keys are released before recreated ones attach again.
	if m.deps.OnAttach != nil && len(m.cfg.DefaultSubscribers) > 0 {
		for _, key := range res.Created {
			m.deps.OnAttach(key, m.cfg.DefaultSubscribers)
		}
	}
}

func (m *Manager) publishStages() {
	counts := map[string]int{}
	m.mu.RLock()
	for _, s := range m.sessions {
		counts[s.Stage().String()]++
	}
	m.mu.RUnlock()

	stages := lifecycle.Stages()
	names := make([]string, len(stages))
	for i, st := range stages {
		names[i] = st.String()
	}
	metrics.SetSessionsByStage(names, counts)
}

// Run cycles every Interval, or earlier when Wake fires, until ctx ends. It
// then shuts down with a fresh ShutdownTimeout budget.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	m.logger.Info().
		Dur("interval", m.cfg.Interval).
		Str(xglog.FieldEvent, "manager.started").
		Msg("session manager started")

	for {
		if _, err := m.Cycle(ctx); err != nil && ctx.Err() == nil {
			m.logger.Warn().Err(err).Msg("cycle ended with error")
		}
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.ShutdownTimeout)
			defer cancel()
			return m.Shutdown(shutdownCtx)
		case <-ticker.C:
		case <-m.deps.Wake:
		}
	}
}

// Shutdown demotes every session and keeps advancing them, without admitting
// new devices, until none are tracked or ctx ends.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()

	m.logger.Info().Str(xglog.FieldEvent, "manager.shutdown").Msg("shutting down sessions")
	for {
		var report CycleReport
		tracked := m.reconcile(ctx, nil, &report)
		if len(tracked) == 0 {
			m.publishStages()
			m.logger.Info().Str(xglog.FieldEvent, "manager.stopped").Msg("all sessions settled")
			return nil
		}
		if err := ctx.Err(); err != nil {
			m.logger.Error().Int("remaining", len(tracked)).Msg("shutdown deadline reached")
			return errors.Join(ErrShutdownIncomplete, err)
		}
		_, _ = m.advance(ctx, tracked)
	}
}

// Sessions returns a snapshot of every tracked session ordered by key.
func (m *Manager) Sessions() []model.SessionInfo {
	m.mu.RLock()
	out := make([]model.SessionInfo, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Info())
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Session returns the snapshot of the session tracking key.
func (m *Manager) Session(key string) (model.SessionInfo, error) {
	s, err := m.lookup(key)
	if err != nil {
		return model.SessionInfo{}, err
	}
	return s.Info(), nil
}

// Subscribe adds id to the live session for key.
func (m *Manager) Subscribe(key string, id model.SubscriberID) (bool, error) {
	if !model.IsValidSubscriberID(id) {
		return false, ErrInvalidSubscriber
	}
	s, err := m.lookup(key)
	if err != nil {
		return false, err
	}
	added := s.Subscribe(id)
	if added && m.deps.OnAttach != nil {
		m.deps.OnAttach(key, []model.SubscriberID{id})
	}
	return added, nil
}

// Unsubscribe removes id from the live session for key.
func (m *Manager) Unsubscribe(key string, id model.SubscriberID) (bool, error) {
	s, err := m.lookup(key)
	if err != nil {
		return false, err
	}
	removed := s.Unsubscribe(id)
	if removed && m.deps.OnDetach != nil {
		m.deps.OnDetach(key, []model.SubscriberID{id})
	}
	return removed, nil
}

// LastFrame returns the latest frame pulled for key.
func (m *Manager) LastFrame(key string) (model.Frame, bool, error) {
	s, err := m.lookup(key)
	if err != nil {
		return model.Frame{}, false, err
	}
	f, ok := s.LastFrame()
	return f, ok, nil
}

// Cycles returns how many cycles have completed.
func (m *Manager) Cycles() uint64 { return m.cycles.Load() }

// LastCycle returns when the last cycle completed, or the zero time.
func (m *Manager) LastCycle() time.Time {
	ns := m.lastCycle.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Interval returns the configured cycle interval.
func (m *Manager) Interval() time.Duration { return m.cfg.Interval }

func (m *Manager) lookup(key string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sessions {
		if s.Key() == key {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, key)
}
