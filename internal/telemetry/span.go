package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"clusterlink"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "clusterlink"

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// Emitter publishes events to a Sink and mirrors them onto otel spans.
// A nil Emitter, or one with nil fields, falls back to a no-op sink, the
// global tracer and the wall clock.
type Emitter struct {
	Sink   Sink
	Tracer trace.Tracer
	Clock  Clock
}

func (e *Emitter) getSink() Sink {
	if e == nil || e.Sink == nil {
		return NopSink{}
	}
	return e.Sink
}

func (e *Emitter) getTracer() trace.Tracer {
	if e == nil || e.Tracer == nil {
		return otel.Tracer(tracerName)
	}
	return e.Tracer
}

// Now returns the emitter's current time.
func (e *Emitter) Now() time.Time {
	if e == nil || e.Clock == nil {
		return time.Now()
	}
	return e.Clock.Now()
}

// Since returns the time elapsed from start on the emitter's clock.
func (e *Emitter) Since(start time.Time) time.Duration {
	return e.Now().Sub(start)
}

// Emit delivers ev to the sink and records it on the span active in ctx.
func (e *Emitter) Emit(ctx context.Context, ev Event) {
	e.getSink().Handle(ev)

	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.AddEvent(ev.Name, trace.WithAttributes(attributes(ev.Metadata)...))
	}
}

// Span runs fn between a <prefix>.start and either a <prefix>.stop or a
// <prefix>.exception event. The stop event carries md merged with the
// metadata fn returns. fn's result and error are returned unchanged; a panic
// in fn emits the exception event and keeps unwinding.
func Span[T any](
	ctx context.Context,
	e *Emitter,
	prefix string,
	md Metadata,
	fn func(context.Context) (T, Metadata, error),
) (T, error) {
	ctx, span := e.getTracer().Start(ctx, prefix, trace.WithAttributes(attributes(md)...))
	defer span.End()

	start := e.Now()
	e.Emit(ctx, Event{
		Name:         prefix + SuffixStart,
		Measurements: Measurements{SystemTime: start},
		Metadata:     md.Merge(nil),
	})

	defer func() {
		if r := recover(); r != nil {
			e.exception(ctx, span, prefix, md, start, fmt.Errorf("panic: %v", r))
			panic(r)
		}
	}()

	result, stopMD, err := fn(ctx)
	if err != nil {
		e.exception(ctx, span, prefix, md, start, err)
		return result, err
	}

	e.Emit(ctx, Event{
		Name:         prefix + SuffixStop,
		Measurements: Measurements{Duration: e.Since(start)},
		Metadata:     md.Merge(stopMD),
	})
	return result, nil
}

func (e *Emitter) exception(ctx context.Context, span trace.Span, prefix string, md Metadata, start time.Time, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, strings.TrimSpace(err.Error()))
	e.Emit(ctx, Event{
		Name:         prefix + SuffixException,
		Measurements: Measurements{Duration: e.Since(start)},
		Metadata:     md.Merge(Metadata{KeyError: err.Error()}),
	})
}

// PollSpan wraps one discovery call in a poll span. The stop event reports
// how many peers were discovered; the peers are returned as-is.
func PollSpan(
	ctx context.Context,
	e *Emitter,
	topology, strategy string,
	discover func(context.Context) ([]clusterlink.PeerID, error),
) ([]clusterlink.PeerID, error) {
	md := Metadata{KeyTopology: topology, KeyStrategy: strategy}
	return Span(ctx, e, PrefixPoll, md, func(ctx context.Context) ([]clusterlink.PeerID, Metadata, error) {
		peers, err := discover(ctx)
		return peers, Metadata{KeyNodesDiscovered: len(peers)}, err
	})
}

// Request performs req inside a request span. The stop event carries the
// response status code. The caller owns the response body.
func Request(ctx context.Context, e *Emitter, topology string, client *http.Client, req *http.Request) (*http.Response, error) {
	if client == nil {
		client = http.DefaultClient
	}
	md := Metadata{KeyTopology: topology, KeyURL: req.URL.Redacted()}
	return Span(ctx, e, PrefixRequest, md, func(ctx context.Context) (*http.Response, Metadata, error) {
		resp, err := client.Do(req.WithContext(ctx))
		if err != nil {
			return nil, nil, err
		}
		return resp, Metadata{KeyStatus: resp.StatusCode}, nil
	})
}

func attributes(md Metadata) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(md))
	for k, v := range md {
		switch val := v.(type) {
		case string:
			out = append(out, attribute.String(k, val))
		case int:
			out = append(out, attribute.Int(k, val))
		case bool:
			out = append(out, attribute.Bool(k, val))
		default:
			out = append(out, attribute.String(k, fmt.Sprint(val)))
		}
	}
	return out
}
