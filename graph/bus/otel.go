package bus

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// OTelSink turns each Event into an OpenTelemetry span, so a node's
// lifetime shows up in a trace viewer alongside whatever spans the node's
// own body (an HTTP call, a DB query) creates.
//
// Events represent a point in time rather than a duration, so the span is
// started and ended immediately; node_failed events mark the span as an
// error and attach the error kind and message.
type OTelSink struct {
	tracer trace.Tracer
}

// NewOTelSink returns a sink using tracer, e.g. otel.Tracer("graphengine").
func NewOTelSink(tracer trace.Tracer) *OTelSink {
	return &OTelSink{tracer: tracer}
}

func (o *OTelSink) Emit(e Event) {
	_, span := o.tracer.Start(context.Background(), string(e.Kind))
	defer span.End()

	span.SetAttributes(
		attribute.String("run_id", e.RunID),
		attribute.String("node_id", e.NodeID),
		attribute.String("node_name", e.NodeName),
	)
	if e.EventID != "" {
		span.SetAttributes(attribute.String("event_id", e.EventID))
	}
	if e.Kind == KindNodeFailed {
		span.SetStatus(codes.Error, e.Message)
		span.RecordError(fmt.Errorf("%s: %s", e.ErrorKind, e.Message))
	}
}

// Flush is a no-op: span export is owned by the TracerProvider's batcher,
// configured by whoever constructed the tracer passed to NewOTelSink.
func (o *OTelSink) Flush(context.Context) error { return nil }
