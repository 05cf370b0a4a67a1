// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID = "session_id"
	FieldCycleID   = "cycle_id"
	FieldKey       = "key"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// Device fields
	FieldDevice     = "device"
	FieldDeviceName = "device_name"
	FieldFPS        = "fps"
	FieldResolution = "resolution"

	// State fields
	FieldStage    = "stage"
	FieldOldStage = "old_stage"
	FieldNewStage = "new_stage"

	// Subscriber fields
	FieldSubscriber  = "subscriber"
	FieldSubscribers = "subscribers"
)
