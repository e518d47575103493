package telemetry

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestTracerProviderLogsSpans(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })

	tp := NewTracerProvider()
	defer tp.Shutdown(context.Background())
	e := &Emitter{Tracer: tp.Tracer("test")}

	_, _ = Span(context.Background(), e, PrefixPoll, Metadata{KeyTopology: "k8s"}, func(context.Context) (int, Metadata, error) {
		return 1, nil, nil
	})
	_, _ = Span(context.Background(), e, PrefixPoll, Metadata{KeyTopology: "dns"}, func(context.Context) (int, Metadata, error) {
		return 0, nil, errors.New("nxdomain")
	})

	out := buf.String()
	if !strings.Contains(out, `msg="span finished" span=poll`) || !strings.Contains(out, "topology=k8s") {
		t.Errorf("missing finished span in log:\n%s", out)
	}
	if !strings.Contains(out, `msg="span failed"`) || !strings.Contains(out, "err=nxdomain") {
		t.Errorf("missing failed span in log:\n%s", out)
	}
}
