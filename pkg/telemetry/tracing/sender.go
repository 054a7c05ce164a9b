package tracing

import (
	"context"
	"errors"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/pacer/pkg/route"
	"mercator-hq/pacer/pkg/transport"
)

// Span and event names recorded by Sender.
const (
	SpanCall     = "pacer.call"
	EventWritten = "written"
)

// Attribute keys recorded by Sender.
const (
	AttrMethod     = attribute.Key("http.request.method")
	AttrStatus     = attribute.Key("http.response.status_code")
	AttrRoute      = attribute.Key("pacer.route")
	AttrRouteKey   = attribute.Key("pacer.route_key")
	AttrBucket     = attribute.Key("pacer.bucket")
	AttrLimit      = attribute.Key("pacer.limit")
	AttrRemaining  = attribute.Key("pacer.remaining")
	AttrResetAfter = attribute.Key("pacer.reset_after_ms")
)

// Sender wraps a transport.Sender with one span per call. The span starts
// when the call is submitted, records an event when it is written and ends
// when the reply is read, so it covers both queueing and the round trip.
type Sender struct {
	next       transport.Sender
	tracer     *Tracer
	classifier *route.Classifier
}

// NewSender wraps next. The classifier provides the route attributes;
// only the elided route is recorded, never the raw target.
func NewSender(next transport.Sender, tracer *Tracer, classifier *route.Classifier) *Sender {
	if classifier == nil {
		classifier = route.NewClassifier(nil)
	}
	return &Sender{next: next, tracer: tracer, classifier: classifier}
}

// Send implements transport.Sender.
func (s *Sender) Send(req *transport.Request, onWrite transport.WriteHook, onRead transport.ReadHook) {
	_, span := s.tracer.Start(context.Background(), SpanCall,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			AttrMethod.String(req.Method),
			AttrRoute.String(s.classifier.Canonical(req.Target)),
			AttrRouteKey.String(s.classifier.Classify(req.Target).String()),
		),
	)

	s.next.Send(req,
		func() {
			span.AddEvent(EventWritten)
			if onWrite != nil {
				onWrite()
			}
		},
		func(reply *transport.Reply) error {
			var err error
			if onRead != nil {
				err = onRead(reply)
			}
			endSpan(span, reply, err)
			return err
		},
	)
}

func endSpan(span trace.Span, reply *transport.Reply, hookErr error) {
	defer span.End()

	if reply == nil {
		span.SetStatus(codes.Error, "no reply")
		return
	}
	if reply.Err != nil {
		span.RecordError(reply.Err)
		span.SetStatus(codes.Error, reply.Err.Error())
		return
	}

	span.SetAttributes(AttrStatus.Int(reply.Status))
	if rl, ok, _ := transport.ParseRateLimit(reply.Header); ok {
		span.SetAttributes(
			AttrBucket.String(rl.Bucket),
			AttrLimit.Int(rl.Limit),
			AttrRemaining.Int(rl.Remaining),
			AttrResetAfter.Int64(rl.ResetAfter.Milliseconds()),
		)
	}

	var headerErr *transport.HeaderError
	switch {
	case errors.As(hookErr, &headerErr):
		span.RecordError(hookErr)
		span.SetStatus(codes.Error, "malformed rate limit headers")
	case reply.Status >= http.StatusBadRequest:
		span.SetStatus(codes.Error, http.StatusText(reply.Status))
	default:
		span.SetStatus(codes.Ok, "")
	}
}
