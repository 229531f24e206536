package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StartCommandSpan creates a span for a CLI command execution.
//
// Usage:
//
//	ctx, span := telemetry.StartCommandSpan(ctx, "advance")
//	defer span.End()
func StartCommandSpan(ctx context.Context, cmdName string) (context.Context, trace.Span) {
	tracer := GetTracerProvider().Tracer("commands")
	ctx, span := tracer.Start(ctx, "command."+cmdName)

	span.SetAttributes(
		attribute.String("command", cmdName),
		attribute.String("component", "cli"),
	)

	return ctx, span
}

// StartSetupSpan creates a span around classification, dependency
// resolution and template selection for a change.
func StartSetupSpan(ctx context.Context, changeID string, tasks int) (context.Context, trace.Span) {
	tracer := GetTracerProvider().Tracer("workflow")
	ctx, span := tracer.Start(ctx, "workflow.setup")

	span.SetAttributes(
		attribute.String("change_id", changeID),
		attribute.Int("tasks", tasks),
	)

	return ctx, span
}

// StartPhaseSpan creates a span covering every attempt of one phase.
func StartPhaseSpan(ctx context.Context, changeID, phase, role string) (context.Context, trace.Span) {
	tracer := GetTracerProvider().Tracer("engine")
	ctx, span := tracer.Start(ctx, "phase."+phase)

	span.SetAttributes(
		attribute.String("change_id", changeID),
		attribute.String("phase", phase),
		attribute.String("role", role),
	)

	return ctx, span
}

// StartDispatchSpan creates a span for one worker invocation.
func StartDispatchSpan(ctx context.Context, role string, attempt int) (context.Context, trace.Span) {
	tracer := GetTracerProvider().Tracer("workers")
	ctx, span := tracer.Start(ctx, "worker.invoke", trace.WithSpanKind(trace.SpanKindClient))

	span.SetAttributes(
		attribute.String("role", role),
		attribute.Int("attempt", attempt),
	)

	return ctx, span
}

// RecordSuccess marks a span as successful with optional result attributes.
func RecordSuccess(span trace.Span, attrs ...attribute.KeyValue) {
	span.SetAttributes(attrs...)
	span.SetStatus(codes.Ok, "")
}

// RecordError records an error in a span and sets error status.
// This should be called when an operation fails.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(
		attribute.Bool("error", true),
	)
}
