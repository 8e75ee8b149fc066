package tracing

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestConfigFrom(t *testing.T) {
	env := map[string]string{}
	getenv := func(k string) string { return env[k] }

	cfg := configFrom(getenv)
	if cfg.Enabled || cfg.Exporter != "stdout" || cfg.ServiceName != "orbitview" || cfg.SampleRatio != 1 {
		t.Errorf("defaults = %+v", cfg)
	}

	env["ORBITVIEW_TRACING_ENABLED"] = "TRUE"
	env["ORBITVIEW_TRACING_EXPORTER"] = "OTLP"
	env["ORBITVIEW_OTLP_ENDPOINT"] = "collector:4317"
	env["ORBITVIEW_TRACING_SAMPLE_RATIO"] = "0.25"
	cfg = configFrom(getenv)
	if !cfg.Enabled || cfg.Exporter != "otlp" || cfg.Endpoint != "collector:4317" || cfg.SampleRatio != 0.25 {
		t.Errorf("configured = %+v", cfg)
	}

	for _, bad := range []string{"1.5", "-0.1", "half"} {
		env["ORBITVIEW_TRACING_SAMPLE_RATIO"] = bad
		if got := configFrom(getenv).SampleRatio; got != 1 {
			t.Errorf("ratio %q: got %v, want default 1", bad, got)
		}
	}
}

func TestInitDisabledIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{}, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	_, span := otel.Tracer("test").Start(context.Background(), "catalog.fetch")
	if span.SpanContext().IsValid() {
		t.Error("disabled tracing produced a recording span")
	}
	span.End()
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestInitStdoutExportsSpans(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := Init(context.Background(), Config{
		Enabled:     true,
		ServiceName: "orbitview-test",
		Exporter:    "stdout",
		SampleRatio: 1,
		Writer:      &buf,
	}, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { Init(context.Background(), Config{}, testLogger()) })

	_, span := otel.Tracer("test").Start(context.Background(), "trajectory.sample")
	span.End()
	ShutdownWithTimeout(context.Background(), shutdown, testLogger())

	if !strings.Contains(buf.String(), "trajectory.sample") {
		t.Errorf("exported output missing span name: %q", buf.String())
	}
}

func TestInitRejectsUnknownExporter(t *testing.T) {
	if _, err := Init(context.Background(), Config{Enabled: true, Exporter: "zipkin"}, testLogger()); err == nil {
		t.Error("expected error for unsupported exporter")
	}
}
