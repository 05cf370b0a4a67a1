// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package model

import "time"

// SessionInfo is a read-only snapshot of a tracked session for external surfaces.
type SessionInfo struct {
	Key             string         `json:"key"`
	SessionID       string         `json:"session_id"`
	Path            string         `json:"path"`
	Name            string         `json:"name,omitempty"`
	Stage           string         `json:"stage"`
	LastError       string         `json:"last_error,omitempty"`
	Subscribers     []SubscriberID `json:"subscribers"`
	FramesDelivered uint64         `json:"frames_delivered"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// Retirement records a session removed by garbage collection.
type Retirement struct {
	Key             string    `json:"key"`
	SessionID       string    `json:"session_id"`
	Path            string    `json:"path"`
	FinalError      string    `json:"final_error,omitempty"`
	FramesDelivered uint64    `json:"frames_delivered"`
	CreatedAt       time.Time `json:"created_at"`
	RetiredAt       time.Time `json:"retired_at"`
}
