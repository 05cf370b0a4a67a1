// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package manager

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/capsync/internal/domain/session/lifecycle"
	"github.com/ManuGH/capsync/internal/domain/session/ports"
	xglog "github.com/ManuGH/capsync/internal/log"
	"github.com/ManuGH/capsync/internal/metrics"
)

// Stepper performs exactly one state-machine step per session per tick.
//
// Blocking calls (Acquire, Read) are issued without holding the session's
// wrapper; their result is applied afterwards by a handler that re-checks the
// stage, so a result arriving after a force-stop is discarded.
type Stepper struct {
	Acquirer    ports.Acquirer
	Deliverer   ports.Deliverer
	Diagnostics ports.DiagnosticSink
	Logger      zerolog.Logger
	Now         func() time.Time

	// OnAcquired, if set, runs after a session for key reaches RUN.
	OnAcquired func(key string)
}

// Step advances s by one stage-local action. The returned error is non-nil
// only when another owner was mutating the session; device failures are
// captured in the session's outcome instead.
func (st *Stepper) Step(ctx context.Context, s *Session) error {
	logger := xglog.WithContext(xglog.ContextWithSessionID(ctx, s.ID()), st.Logger).With().
		Str(xglog.FieldKey, s.Key()).
		Str(xglog.FieldDevice, s.Entry().Path).
		Logger()

	var err error
	switch stage := s.Stage(); stage {
	case lifecycle.StageNone:
		err = st.seed(s)
	case lifecycle.StageStart:
		err = st.start(ctx, s, logger)
	case lifecycle.StageRun:
		err = st.run(ctx, s, logger)
	case lifecycle.StageStop:
		err = st.stop(ctx, s, logger)
	case lifecycle.StageDone:
		return nil
	default:
		logger.Error().Str(xglog.FieldStage, stage.String()).Msg("session in unknown stage")
		return lifecycle.ErrInvalidStage
	}
	s.touch(st.now())
	return err
}

func (st *Stepper) seed(s *Session) error {
	return s.state.Apply(lifecycle.HandlerFunc[*Handle](func(state *lifecycle.State[*Handle]) {
		state.RestartWith(lifecycle.Ok[*Handle](nil))
	}))
}

func (st *Stepper) start(ctx context.Context, s *Session, logger zerolog.Logger) error {
	var out lifecycle.Outcome[*Handle]
	capture, err := st.Acquirer.Acquire(ctx, s.Entry())
	switch {
	case err != nil:
		out = lifecycle.Fail[*Handle](&StageError{Stage: lifecycle.StageStart, Key: s.Key(), Kind: ErrAcquire, Err: err})
	case capture == nil:
		out = lifecycle.Fail[*Handle](&StageError{Stage: lifecycle.StageStart, Key: s.Key(), Kind: ErrAcquire, Err: ErrNoCapture})
	default:
		out = lifecycle.Ok(newHandle(capture))
	}

	applied := false
	applyErr := s.state.Apply(lifecycle.HandlerFunc[*Handle](func(state *lifecycle.State[*Handle]) {
		if state.Stage() != lifecycle.StageStart {
			return
		}
		state.AdvanceWith(out)
		applied = true
	}))

	if !applied {
		if out.IsOk() {
			_ = out.Value.Close()
		}
		logger.Debug().Str(xglog.FieldEvent, "session.acquire_discarded").Msg("acquisition result discarded")
		return applyErr
	}
	if out.IsErr() {
		logger.Warn().Err(out.Err).Str(xglog.FieldEvent, "session.acquire_failed").Msg("device acquisition failed")
		return nil
	}
	logger.Info().Str(xglog.FieldEvent, "session.acquired").Msg("device acquired")
	if st.OnAcquired != nil {
		st.OnAcquired(s.Key())
	}
	return nil
}

func (st *Stepper) run(ctx context.Context, s *Session, logger zerolog.Logger) error {
	cur, _ := s.state.PeekOutcome()
	h := cur.Value

	var err error
	if h == nil {
		err = ErrNoCapture
	}
	if err == nil {
		frame, readErr := h.Read(ctx)
		if readErr == nil {
			frame.Key = s.Key()
			for _, id := range s.Subscribers() {
				st.Deliverer.Deliver(ctx, id, frame)
			}
			s.frames.Add(1)
			metrics.IncFramesDelivered()
			return nil
		}
		err = readErr
	}

	// The failure outcome drops the handle, so release it first.
	if h != nil {
		_ = h.Close()
	}
	failure := &StageError{Stage: lifecycle.StageRun, Key: s.Key(), Kind: ErrPull, Err: err}
	applied := false
	applyErr := s.state.Apply(lifecycle.HandlerFunc[*Handle](func(state *lifecycle.State[*Handle]) {
		if state.Stage() != lifecycle.StageRun {
			return
		}
		state.AdvanceFailure(failure)
		applied = true
	}))
	if applied {
		logger.Warn().Err(err).Str(xglog.FieldEvent, "session.pull_failed").Msg("frame pull failed")
	}
	return applyErr
}

func (st *Stepper) stop(ctx context.Context, s *Session, logger zerolog.Logger) error {
	var (
		final   lifecycle.Outcome[*Handle]
		settled bool
	)
	applyErr := s.state.Apply(lifecycle.HandlerFunc[*Handle](func(state *lifecycle.State[*Handle]) {
		if state.Stage() != lifecycle.StageStop {
			return
		}
		final, _ = state.PeekOutcome()
		if state.PropagateError() {
			state.AdvanceAuto()
		}
		settled = true
	}))
	if !settled {
		return applyErr
	}

	if final.IsErr() {
		s.setLastError(final.Err)
		metrics.IncSessionFailure(ErrorClass(final.Err))
		if st.Diagnostics != nil {
			st.Diagnostics.Report(ctx, s.Key(), final.Err)
		}
	} else if final.Value != nil {
		if err := final.Value.Close(); err != nil {
			logger.Warn().Err(err).Str(xglog.FieldEvent, "session.close_failed").Msg("closing capture failed")
		}
	}
	logger.Info().
		Str(xglog.FieldEvent, "session.settled").
		Bool("failed", final.IsErr()).
		Uint64("frames", s.FramesDelivered()).
		Msg("session settled")
	return nil
}

func (st *Stepper) now() time.Time {
	if st.Now != nil {
		return st.Now()
	}
	return time.Now()
}
