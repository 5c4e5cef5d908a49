package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "riskgate"

// StartDecisionSpan starts a span for a full decision pipeline run.
func StartDecisionSpan(ctx context.Context, applicantID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "decision",
		trace.WithAttributes(
			attribute.String("applicant.id", applicantID),
		),
	)
}

// StartScoreSpan starts a span for the model scoring step.
func StartScoreSpan(ctx context.Context, model string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "score",
		trace.WithAttributes(
			attribute.String("model.name", model),
		),
	)
}

// StartPanelSpan starts a span for a reasoning panel run.
func StartPanelSpan(ctx context.Context, applicantID string, size int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "panel",
		trace.WithAttributes(
			attribute.String("applicant.id", applicantID),
			attribute.Int("panel.size", size),
		),
	)
}

// StartAgentSpan starts a span for a single panel agent call.
func StartAgentSpan(ctx context.Context, agent string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "panel.agent",
		trace.WithAttributes(
			attribute.String("agent.name", agent),
		),
	)
}
