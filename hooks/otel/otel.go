// Package otel provides OpenTelemetry integration for store hooks.
package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/i2y/vistore/hooks"
)

const (
	tracerName = "vistore"
)

// OTelHooks implements StoreHooks with OpenTelemetry tracing.
// Each store operation becomes one span; conflicts and migrations are
// recorded as span events.
type OTelHooks struct {
	hooks.NoOpHooks
	tracer trace.Tracer
}

// NewOTelHooks creates a new OpenTelemetry hooks instance.
// If tracerProvider is nil, the global tracer provider is used.
func NewOTelHooks(tracerProvider trace.TracerProvider) *OTelHooks {
	var tracer trace.Tracer
	if tracerProvider != nil {
		tracer = tracerProvider.Tracer(tracerName)
	} else {
		tracer = otel.Tracer(tracerName)
	}

	return &OTelHooks{tracer: tracer}
}

// OnOperationStart starts a span for the operation and returns a context
// carrying it.
func (h *OTelHooks) OnOperationStart(ctx context.Context, info hooks.OperationStartInfo) context.Context {
	attrs := []attribute.KeyValue{
		attribute.String("vistore.operation", info.Operation),
		attribute.String("vistore.definition", info.Definition),
	}
	if info.InstanceID != "" {
		attrs = append(attrs, attribute.String("vistore.instance_id", info.InstanceID))
	}

	spanCtx, _ := h.tracer.Start(ctx, "vistore/"+info.Operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithTimestamp(info.StartTime),
		trace.WithAttributes(attrs...),
	)
	return spanCtx
}

// OnOperationComplete ends the span started by OnOperationStart.
func (h *OTelHooks) OnOperationComplete(ctx context.Context, info hooks.OperationCompleteInfo) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.SetAttributes(attribute.Int64("vistore.duration_ms", info.Duration.Milliseconds()))
	if info.Error != nil {
		span.RecordError(info.Error)
		span.SetStatus(codes.Error, info.Error.Error())
	} else {
		span.SetStatus(codes.Ok, info.Operation+" completed")
	}
	span.End()
}

// OnConflict records a conflict event on the current span.
func (h *OTelHooks) OnConflict(ctx context.Context, info hooks.ConflictInfo) {
	trace.SpanFromContext(ctx).AddEvent("optimistic_lock_conflict",
		trace.WithAttributes(
			attribute.String("vistore.instance_id", info.InstanceID),
			attribute.Int64("vistore.expected_version", info.ExpectedVersion),
		),
	)
}

// OnMigrate records a migration event on the current span.
func (h *OTelHooks) OnMigrate(ctx context.Context, info hooks.MigrateInfo) {
	trace.SpanFromContext(ctx).AddEvent("definition_migrated",
		trace.WithAttributes(
			attribute.String("vistore.migrate.from", info.From),
			attribute.String("vistore.migrate.to", info.To),
			attribute.Int("vistore.migrate.requested", info.Requested),
			attribute.Int64("vistore.migrate.affected", info.Affected),
		),
	)
}
