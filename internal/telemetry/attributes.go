// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the application.
const (
	// HTTP attributes
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"

	// Cycle attributes
	CycleIDKey        = "cycle.id"
	CycleInventoryKey = "cycle.inventory"
	CycleTrackedKey   = "cycle.tracked"
	CycleCreatedKey   = "cycle.created"
	CycleDemotedKey   = "cycle.demoted"
	CycleCollectedKey = "cycle.collected"

	// Session attributes
	SessionKeyKey   = "session.key"
	SessionIDKey    = "session.id"
	SessionStageKey = "session.stage"
	DevicePathKey   = "device.path"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// CycleAttributes describes one reconcile pass.
func CycleAttributes(cycleID string, inventory, tracked, created, demoted, collected int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(CycleIDKey, cycleID),
		attribute.Int(CycleInventoryKey, inventory),
		attribute.Int(CycleTrackedKey, tracked),
		attribute.Int(CycleCreatedKey, created),
		attribute.Int(CycleDemotedKey, demoted),
		attribute.Int(CycleCollectedKey, collected),
	}
}

// SessionAttributes identifies a session on a span.
func SessionAttributes(key, sessionID, devicePath, stage string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(SessionKeyKey, key),
		attribute.String(SessionIDKey, sessionID),
		attribute.String(DevicePathKey, devicePath),
		attribute.String(SessionStageKey, stage),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(_ error, errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
