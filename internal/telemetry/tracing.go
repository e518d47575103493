package telemetry

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// NewTracerProvider returns a provider that reports finished spans to the
// default slog logger at debug level. Failed spans are logged at warn.
func NewTracerProvider() *sdktrace.TracerProvider {
	return sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(&logSpanProcessor{}))
}

type logSpanProcessor struct{}

func (p *logSpanProcessor) OnStart(context.Context, sdktrace.ReadWriteSpan) {}

func (p *logSpanProcessor) OnEnd(span sdktrace.ReadOnlySpan) {
	attrs := make([]any, 0, 2*len(span.Attributes())+4)
	attrs = append(attrs, "span", span.Name(), "duration", span.EndTime().Sub(span.StartTime()))
	for _, kv := range span.Attributes() {
		attrs = append(attrs, string(kv.Key), kv.Value.Emit())
	}

	status := span.Status()
	if status.Code == codes.Error {
		slog.Warn("span failed", append(attrs, "err", status.Description)...)
		return
	}
	slog.Debug("span finished", attrs...)
}

func (p *logSpanProcessor) Shutdown(context.Context) error {
	return nil
}

func (p *logSpanProcessor) ForceFlush(context.Context) error {
	return nil
}
