// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package daemon

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/capsync/internal/domain/session/lifecycle"
)

// App runs the components as one unit and tracks its own lifecycle:
// NONE, START while components start, RUN until a stop is requested or a
// component fails, STOP while shutting down, DONE with the final outcome.
type App struct {
	components *Components
	logger     zerolog.Logger

	state    *lifecycle.Wrapper[string]
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewApp returns an app in NONE.
func NewApp(c *Components, logger zerolog.Logger) *App {
	return &App{
		components: c,
		logger:     logger.With().Str("component", "app").Logger(),
		state:      lifecycle.NewWrapper(lifecycle.State[string]{}),
		stopCh:     make(chan struct{}),
	}
}

// Stage reports the app stage.
func (a *App) Stage() lifecycle.Stage { return a.state.Stage() }

// Outcome returns the outcome carried by the app state.
func (a *App) Outcome() (lifecycle.Outcome[string], bool) { return a.state.PeekOutcome() }

// RequestStop asks a running app to shut down with cause as the final
// outcome; a nil cause is a clean stop. It returns false when the app is not
// in START or RUN.
func (a *App) RequestStop(cause error) bool {
	out := lifecycle.Ok("stop requested")
	if cause != nil {
		out = lifecycle.Fail[string](cause)
	}
	for !a.state.ForceStopWith(out) {
		if st := a.state.Stage(); st != lifecycle.StageStart && st != lifecycle.StageRun {
			a.logger.Debug().
				Str("stage", st.String()).
				Str("reason", lifecycle.ForbiddenReason(st, lifecycle.OpForceStop)).
				Msg("stop request rejected")
			return false
		}
		runtime.Gosched()
	}
	a.signalStop()
	a.logger.Info().Str("event", "app.stop_requested").AnErr("cause", cause).Msg("stop requested")
	return true
}

func (a *App) signalStop() {
	a.stopOnce.Do(func() { close(a.stopCh) })
}

// apply retries while a concurrent RequestStop holds the wrapper; Run is the
// only other owner and the stop request never blocks.
func (a *App) apply(fn func(*lifecycle.State[string])) {
	trace := lifecycle.LogHandler[string]{Logger: a.logger, Msg: "app state"}
	h := lifecycle.HandlerFunc[string](func(st *lifecycle.State[string]) {
		fn(st)
		trace.Handle(st)
	})
	for {
		err := a.state.Apply(h)
		if !errors.Is(err, lifecycle.ErrApplyInFlight) {
			return
		}
		runtime.Gosched()
	}
}

// Run starts every component and blocks until ctx is done, RequestStop is
// called or a component fails. It then stops the components, releases the
// shared resources and returns the final outcome's error.
func (a *App) Run(ctx context.Context) error {
	started := false
	a.apply(func(st *lifecycle.State[string]) {
		if st.Stage() == lifecycle.StageNone {
			started = st.RestartWith(lifecycle.Ok("starting"))
		}
	})
	if !started {
		return ErrAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	c := a.components
	g.Go(func() error { return named("manager", c.Manager.Run(gctx)) })
	if c.Watcher != nil {
		g.Go(func() error { return named("watcher", c.Watcher.Run(gctx)) })
	}
	if c.Server != nil {
		g.Go(func() error { return named("status server", c.Server.Run(gctx)) })
	}
	if c.Snapshot != nil {
		g.Go(func() error { return named("snapshot", c.Snapshot.Run(gctx)) })
	}

	a.apply(func(st *lifecycle.State[string]) {
		if st.Stage() == lifecycle.StageStart {
			st.AdvanceSuccess("running")
		}
	})
	a.logger.Info().Str("event", "app.running").Str("stage", a.state.Stage().String()).Msg("capsync running")

	select {
	case <-ctx.Done():
		a.RequestStop(nil)
	case <-a.stopCh:
	case <-gctx.Done():
		// A component failed; its error surfaces from Wait below.
	}

	cancel()
	runErr := g.Wait()
	if runErr != nil {
		a.RequestStop(runErr)
	}

	// A component error that arrives after a clean stop request still wins.
	a.apply(func(st *lifecycle.State[string]) {
		for st.Stage() == lifecycle.StageStart || st.Stage() == lifecycle.StageRun {
			st.AdvanceWith(lifecycle.From("stopping", runErr))
		}
		if runErr != nil {
			if out, ok := st.PeekOutcome(); ok && out.IsOk() {
				st.SwapOutcome(lifecycle.Fail[string](runErr))
			}
		}
	})

	closeErr := c.Close(context.WithoutCancel(ctx))

	var final error
	a.apply(func(st *lifecycle.State[string]) {
		if closeErr != nil {
			if out, ok := st.PeekOutcome(); ok && out.IsOk() {
				st.SwapOutcome(lifecycle.Fail[string](fmt.Errorf("close: %w", closeErr)))
			}
		}
		if st.PropagateError() {
			st.AdvanceAuto()
		}
		if out, ok := st.PeekOutcome(); ok {
			final = out.Err
		}
	})
	a.signalStop()

	ev := a.logger.Info()
	if final != nil {
		ev = a.logger.Error().Err(final)
	}
	ev.Str("event", "app.done").Str("stage", a.state.Stage().String()).Msg("capsync stopped")
	return final
}

// Done is closed once Run has finished or a stop was requested.
func (a *App) Done() <-chan struct{} { return a.stopCh }

func named(component string, err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrComponentFailed, component, err)
}
