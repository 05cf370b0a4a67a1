// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package ports

import (
	"context"

	"github.com/ManuGH/capsync/internal/domain/session/model"
)

// Inventory lists the capture devices currently present.
// A scan error is treated by the manager as an empty inventory for that cycle.
type Inventory interface {
	Scan(ctx context.Context) ([]model.Entry, error)
}

// InventoryFunc adapts a function to Inventory.
type InventoryFunc func(ctx context.Context) ([]model.Entry, error)

func (f InventoryFunc) Scan(ctx context.Context) ([]model.Entry, error) { return f(ctx) }

// Acquirer opens a capture device. It may block.
type Acquirer interface {
	Acquire(ctx context.Context, entry model.Entry) (Capture, error)
}

// AcquirerFunc adapts a function to Acquirer.
type AcquirerFunc func(ctx context.Context, entry model.Entry) (Capture, error)

func (f AcquirerFunc) Acquire(ctx context.Context, entry model.Entry) (Capture, error) {
	return f(ctx, entry)
}

// Capture is an acquired device. Read pulls exactly one frame and may block.
type Capture interface {
	Read(ctx context.Context) (model.Frame, error)
	Close() error
}
