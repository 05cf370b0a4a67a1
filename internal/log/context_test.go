// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestContextWithCycleID(t *testing.T) {
	tests := []struct {
		name string
		ctx  context.Context
		id   string
		want string
	}{
		{name: "nil context", ctx: nil, id: "c-1", want: "c-1"},
		{name: "background context", ctx: context.Background(), id: "c-2", want: "c-2"},
		{name: "empty id", ctx: context.Background(), id: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := ContextWithCycleID(tt.ctx, tt.id)
			if got := CycleIDFromContext(ctx); got != tt.want {
				t.Errorf("CycleIDFromContext() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIDFromContextEmpty(t *testing.T) {
	if got := CycleIDFromContext(nil); got != "" {
		t.Errorf("expected empty cycle id, got %q", got)
	}
	if got := SessionIDFromContext(context.Background()); got != "" {
		t.Errorf("expected empty session id, got %q", got)
	}
}

func TestWithContext(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	ctx := ContextWithCycleID(context.Background(), "cycle-7")
	ctx = ContextWithSessionID(ctx, "sess-9")
	l := WithContext(ctx, base)
	l.Info().Msg("x")

	var fields map[string]any
	if err := json.Unmarshal(buf.Bytes(), &fields); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if fields[FieldCycleID] != "cycle-7" || fields[FieldSessionID] != "sess-9" {
		t.Errorf("missing correlation fields: %v", fields)
	}
}

func TestWithContext_NoFieldsReturnsSameLogger(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)
	l := WithContext(context.Background(), base)
	l.Info().Msg("x")
	if bytes.Contains(buf.Bytes(), []byte(FieldCycleID)) {
		t.Errorf("unexpected cycle field: %s", buf.String())
	}
}
