package otel

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/i2y/vistore/hooks"
)

// setupTest creates a test tracer provider and returns the hooks and span recorder.
func setupTest() (*OTelHooks, *tracetest.SpanRecorder) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	h := NewOTelHooks(tp)
	return h, sr
}

func TestNewOTelHooks(t *testing.T) {
	// Test with nil tracer provider (uses global)
	h := NewOTelHooks(nil)
	if h == nil || h.tracer == nil {
		t.Fatal("expected non-nil hooks with tracer")
	}
}

func TestOperationLifecycle(t *testing.T) {
	h, sr := setupTest()

	ctx := h.OnOperationStart(context.Background(), hooks.OperationStartInfo{
		Operation:  "update",
		Definition: "orders@1.0",
		InstanceID: "abc-123",
		StartTime:  time.Now(),
	})
	h.OnConflict(ctx, hooks.ConflictInfo{
		Definition:      "orders@1.0",
		InstanceID:      "abc-123",
		ExpectedVersion: 0,
	})
	h.OnOperationComplete(ctx, hooks.OperationCompleteInfo{
		Operation:  "update",
		Definition: "orders@1.0",
		InstanceID: "abc-123",
		Duration:   5 * time.Millisecond,
	})

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}

	span := spans[0]
	if span.Name() != "vistore/update" {
		t.Errorf("expected span name 'vistore/update', got %s", span.Name())
	}
	if span.Status().Code != codes.Ok {
		t.Errorf("expected status OK, got %v", span.Status().Code)
	}
	checkAttribute(t, span.Attributes(), "vistore.instance_id", "abc-123")
	checkAttribute(t, span.Attributes(), "vistore.definition", "orders@1.0")

	events := span.Events()
	if len(events) != 1 || events[0].Name != "optimistic_lock_conflict" {
		t.Errorf("expected one conflict event, got %v", events)
	}
}

func TestOperationFailed(t *testing.T) {
	h, sr := setupTest()

	ctx := h.OnOperationStart(context.Background(), hooks.OperationStartInfo{
		Operation:  "find",
		Definition: "orders",
		StartTime:  time.Now(),
	})
	h.OnOperationComplete(ctx, hooks.OperationCompleteInfo{
		Operation: "find",
		Error:     errors.New("connection refused"),
	})

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Status().Code != codes.Error {
		t.Errorf("expected status Error, got %v", spans[0].Status().Code)
	}
	for _, attr := range spans[0].Attributes() {
		if attr.Key == "vistore.instance_id" {
			t.Error("expected no instance_id attribute for definition-wide operation")
		}
	}
}

func TestMigrateEvent(t *testing.T) {
	h, sr := setupTest()

	ctx := h.OnOperationStart(context.Background(), hooks.OperationStartInfo{
		Operation:  "migrate_all",
		Definition: "orders@1.0",
		StartTime:  time.Now(),
	})
	h.OnMigrate(ctx, hooks.MigrateInfo{From: "orders@1.0", To: "orders-v2@2.0", Affected: 3})
	h.OnOperationComplete(ctx, hooks.OperationCompleteInfo{Operation: "migrate_all"})

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	events := spans[0].Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	checkAttribute(t, events[0].Attributes, "vistore.migrate.to", "orders-v2@2.0")
}

func TestCompleteWithoutStart(t *testing.T) {
	h, sr := setupTest()

	// No span in context: must not panic or record anything.
	h.OnOperationComplete(context.Background(), hooks.OperationCompleteInfo{Operation: "remove"})
	h.OnConflict(context.Background(), hooks.ConflictInfo{InstanceID: "x"})

	if len(sr.Ended()) != 0 {
		t.Errorf("expected no spans, got %d", len(sr.Ended()))
	}
}

func checkAttribute(t *testing.T, attrs []attribute.KeyValue, key, expected string) {
	t.Helper()
	for _, attr := range attrs {
		if string(attr.Key) == key {
			if attr.Value.AsString() != expected {
				t.Errorf("attribute %s: expected %q, got %q", key, expected, attr.Value.AsString())
			}
			return
		}
	}
	t.Errorf("attribute %s not found", key)
}
