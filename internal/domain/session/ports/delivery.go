// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package ports

import (
	"context"

	"github.com/ManuGH/capsync/internal/domain/session/model"
)

// Deliverer pushes a frame to one subscriber. Delivery is fire-and-forget:
// failures belong to the subscriber and never reach the session state.
type Deliverer interface {
	Deliver(ctx context.Context, id model.SubscriberID, frame model.Frame)
}

// DeliverFunc adapts a function to Deliverer.
type DeliverFunc func(ctx context.Context, id model.SubscriberID, frame model.Frame)

func (f DeliverFunc) Deliver(ctx context.Context, id model.SubscriberID, frame model.Frame) {
	f(ctx, id, frame)
}

// DiagnosticSink receives the error a session carried into STOP.
type DiagnosticSink interface {
	Report(ctx context.Context, key string, err error)
}

// HistoryRecorder persists sessions removed by garbage collection.
type HistoryRecorder interface {
	RecordRetirement(ctx context.Context, r model.Retirement) error
}
