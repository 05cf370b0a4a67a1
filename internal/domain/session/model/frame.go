// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package model

import "time"

// Frame is one data unit pulled from an acquired capture device.
// The core never interprets Data.
type Frame struct {
	Key         string
	Seq         uint64
	Data        []byte
	ContentType string
	CapturedAt  time.Time
}

// SubscriberID identifies a frame consumer owned by the surrounding application.
// Sessions hold subscriber IDs, never the subscribers themselves.
type SubscriberID string
