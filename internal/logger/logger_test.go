package logger

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestTraceIDRoundTrip(t *testing.T) {
	ctx := WithTraceID(context.Background(), "dep-42-123")
	if got := TraceID(ctx); got != "dep-42-123" {
		t.Fatalf("TraceID: got %q", got)
	}
}

func TestTraceIDMissing(t *testing.T) {
	if got := TraceID(context.Background()); got != "" {
		t.Fatalf("TraceID on empty context: got %q, want empty", got)
	}
}

func TestGenerateTraceID(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	id := GenerateTraceID("dep-42", ts)
	if !strings.HasPrefix(id, "dep-42-") {
		t.Fatalf("trace id %q missing deployment prefix", id)
	}
}

func TestLogWithTrace(t *testing.T) {
	ctx := WithTraceID(context.Background(), "dep-1-9")
	attrs := LogWithTrace(ctx)
	if len(attrs) != 1 {
		t.Fatalf("attrs: got %d, want 1", len(attrs))
	}
	if attrs := LogWithTrace(context.Background()); attrs != nil {
		t.Fatalf("attrs without trace id: got %v, want nil", attrs)
	}
}
