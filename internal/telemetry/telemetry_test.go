package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestDisabledProviderIsNoop(t *testing.T) {
	for _, cfg := range []Config{
		{Enabled: false, Exporter: ExporterHTTP},
		{Enabled: true, Exporter: ExporterNone},
	} {
		p, err := NewProvider(context.Background(), cfg)
		require.NoError(t, err)

		_, span := p.Tracer().Start(context.Background(), "noop")
		require.False(t, span.SpanContext().IsValid())
		span.End()
		require.NoError(t, p.Shutdown(context.Background()))
	}
}

func TestUnsupportedExporter(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{Enabled: true, Exporter: "zipkin"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "zipkin")
}

func TestSDKProviderRecordsSampledSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	p := newSDKProvider(Config{ServiceName: "boltd", SamplingRate: 1}, sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	_, span := p.Tracer().Start(context.Background(), "bolt.RUN")
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	require.Equal(t, "bolt.RUN", ended[0].Name())
}

func TestSamplerFor(t *testing.T) {
	require.Equal(t, sdktrace.AlwaysSample().Description(), samplerFor(1).Description())
	require.Equal(t, sdktrace.NeverSample().Description(), samplerFor(0).Description())
	require.Contains(t, samplerFor(0.5).Description(), "TraceIDRatioBased")
}
