package engine

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/amrita-ai/amritacore/internal/engine")

// startTurnSpan opens the top-level span for one chat turn.
func startTurnSpan(ctx context.Context, sessionID, streamID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "chat_turn",
		trace.WithAttributes(
			attribute.String("amritacore.session_id", sessionID),
			attribute.String("amritacore.stream_id", streamID),
		),
	)
}

// startIterationSpan opens a span around one agent-loop iteration.
func startIterationSpan(ctx context.Context, term int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "loop_iteration", trace.WithAttributes(attribute.Int("amritacore.term", term)))
}

// startAdapterSpan opens a span around one adapter.CallAPI invocation.
func startAdapterSpan(ctx context.Context, protocol, model string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "adapter_call", trace.WithAttributes(
		attribute.String("amritacore.protocol", protocol),
		attribute.String("amritacore.model", model),
	))
}
