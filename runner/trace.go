package runner

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bcap/stepper/chain"
)

const tracerName = "github.com/bcap/stepper/runner"

func (r *Runner) startRunSpan(ctx context.Context, tag string, runID string, steps int) (context.Context, trace.Span) {
	return r.tracer.Start(ctx, "chain.run",
		trace.WithAttributes(
			attribute.String("chain.tag", tag),
			attribute.String("chain.run_id", runID),
			attribute.Int("chain.steps", steps),
		),
	)
}

func (r *Runner) startStepSpan(ctx context.Context, step chain.Step) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("step.key", step.StepKey()),
		attribute.String("step.type", string(step.StepType())),
	}
	switch v := step.(type) {
	case *chain.Effect:
		attrs = append(attrs, attribute.String("step.capability", v.Capability))
	case chain.Effect:
		attrs = append(attrs, attribute.String("step.capability", v.Capability))
	}
	return r.tracer.Start(ctx, "chain.step", trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
