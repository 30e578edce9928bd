package mcmc

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("bayesgraph.mcmc")

func startRunSpan(ctx context.Context, c *Chain, generations int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "mcmc.Chain.Run",
		trace.WithAttributes(
			attribute.String("chain.id", c.id),
			attribute.Float64("chain.heat", c.heat),
			attribute.Int("chain.start_generation", c.generation),
			attribute.Int("chain.generations", generations),
		),
	)
}

func startSwapSpan(ctx context.Context, round, chains int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "mcmc.MC3.Round",
		trace.WithAttributes(
			attribute.Int("mc3.round", round),
			attribute.Int("mc3.chains", chains),
		),
	)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
