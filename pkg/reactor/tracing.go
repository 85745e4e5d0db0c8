package reactor

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope every reactor span is recorded
// under.
const tracerName = "github.com/fluxorio/reactor"

// dispatchTracer wraps one dispatch-loop iteration in a span, tagging it
// with the token and callback being invoked. Kept as a thin helper rather
// than threading a context.Context through the hot path: spans are started
// and ended within a single synchronous call, so a fresh background
// context per call is enough to satisfy the otel API without changing
// Protocol's signature.
type dispatchTracer struct {
	tracer trace.Tracer
}

func newDispatchTracer() dispatchTracer {
	return dispatchTracer{tracer: otel.Tracer(tracerName)}
}

func (d dispatchTracer) span(callback string, tok Token) (context.Context, trace.Span) {
	return d.tracer.Start(context.Background(), "reactor."+callback,
		trace.WithAttributes(
			attribute.String("reactor.callback", callback),
			attribute.Int64("reactor.token", int64(tok)),
		),
	)
}
