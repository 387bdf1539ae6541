package obs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

func TestNewLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "json", "warn")
	logger.Info().Msg("hidden")
	logger.Warn().Str("cart_id", "c1").Msg("shown")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "shown", entry["message"])
	require.Equal(t, "c1", entry["cart_id"])
	require.Contains(t, entry, "time")

	require.Equal(t, zerolog.InfoLevel, NewLogger(&buf, "json", "bogus").GetLevel())
	require.Equal(t, zerolog.DebugLevel, NewLogger(&buf, "console", " DEBUG ").GetLevel())
}

func TestPricingMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPricingMetrics("test", reg)
	m.ObservePass("quote", nil, 3*time.Millisecond)
	m.ObservePass("quote", errors.New("boom"), time.Millisecond)
	m.ObserveRule("percent", "global", true)
	m.ObserveConsumption("ok")

	require.Equal(t, 1.0, testutil.ToFloat64(m.Passes.WithLabelValues("quote", "ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Passes.WithLabelValues("quote", "error")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.RuleOutcomes.WithLabelValues("percent", "global", "true")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Consumed.WithLabelValues("ok")))

	again := NewPricingMetrics("test", reg)
	require.Same(t, m.Passes, again.Passes, "collectors are reused")

	var nilMetrics *PricingMetrics
	require.NotPanics(t, func() {
		nilMetrics.ObservePass("quote", nil, time.Millisecond)
		nilMetrics.ObserveRule("amount", "product", false)
		nilMetrics.ObserveConsumption("ok")
	})
}

func TestDurationMillis(t *testing.T) {
	require.Equal(t, 1.5, DurationMillis(1500*time.Microsecond))
}

func TestPGXTracerRecordsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	tracer := PGXTracer{}
	ctx := tracer.TraceQueryStart(context.Background(), nil, pgx.TraceQueryStartData{SQL: "SELECT id\n  FROM cart_rules WHERE id = $1"})
	tracer.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{Err: fmt.Errorf("scan rule: %w", pgx.ErrNoRows)})
	ctx = tracer.TraceQueryStart(context.Background(), nil, pgx.TraceQueryStartData{SQL: "update cart_rules set quantity = quantity - 1"})
	tracer.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{Err: errors.New("deadlock")})
	tracer.TraceQueryEnd(context.Background(), nil, pgx.TraceQueryEndData{})

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	require.Equal(t, "store.query", spans[0].Name())
	require.Equal(t, codes.Unset, spans[0].Status().Code, "no rows is not an error")
	attrs := map[string]string{}
	for _, kv := range spans[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	require.Equal(t, "SELECT id FROM cart_rules WHERE id = $1", attrs["db.statement"])
	require.Equal(t, "SELECT", attrs["db.operation"])
	require.Equal(t, codes.Error, spans[1].Status().Code)
}

func TestTracerProviderDefaults(t *testing.T) {
	ctx := context.Background()
	exporter := tracetest.NewInMemoryExporter()
	tp, err := newTracerProvider(ctx, TracingConfig{Environment: "test", SamplingRatio: 7}, exporter)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tp.Shutdown(ctx) })

	_, span := tp.Tracer(PricingTracerName).Start(ctx, "Service.quote")
	span.End()
	require.NoError(t, tp.ForceFlush(ctx))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1, "out of range ratios sample everything")
	require.Equal(t, PricingTracerName, spans[0].InstrumentationScope.Name)
	name, ok := spans[0].Resource.Set().Value(semconv.ServiceNameKey)
	require.True(t, ok)
	require.Equal(t, ServiceName, name.AsString())
	env, ok := spans[0].Resource.Set().Value(semconv.DeploymentEnvironmentKey)
	require.True(t, ok)
	require.Equal(t, "test", env.AsString())
}
