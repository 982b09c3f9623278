package observability

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func initMeter(t *testing.T) *MeterProvider {
	t.Helper()
	mp, err := InitMeterProvider(Config{ServiceName: "test-service", ServiceVersion: "1.0.0", Environment: "test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = mp.Shutdown(context.Background(), discardLogger()) })
	return mp
}

func metricNames(t *testing.T, mp *MeterProvider) []string {
	t.Helper()
	families, err := mp.Registry().Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	return names
}

func containsPrefix(names []string, prefix string) bool {
	for _, n := range names {
		if strings.HasPrefix(n, prefix) {
			return true
		}
	}
	return false
}

func TestOperationMetrics_RecordedOnPrivateRegistry(t *testing.T) {
	mp := initMeter(t)
	metrics, err := InitOperationMetrics()
	require.NoError(t, err)

	ctx := context.Background()
	metrics.RecordOperation(ctx, "list", "posts", "ok", 3*time.Millisecond)
	metrics.RecordRows(ctx, "posts", 10, 10)
	metrics.RecordSerializationFailures(ctx, "posts", 2)
	metrics.RecordWrite(ctx, "create", "posts", false)

	names := metricNames(t, mp)
	for _, prefix := range []string{
		"resource_operations",
		"resource_operation_duration",
		"resource_rows_returned",
		"resource_page_size",
		"resource_serialization_failures",
		"resource_writes",
	} {
		assert.True(t, containsPrefix(names, prefix), "missing %s in %v", prefix, names)
	}
}

func TestOperationMetrics_NilIsNoop(t *testing.T) {
	var m *OperationMetrics
	assert.NotPanics(t, func() {
		m.RecordOperation(context.Background(), "get", "users", "ok", time.Second)
		m.RecordRows(context.Background(), "users", 1, 0)
		m.RecordWrite(context.Background(), "delete", "users", true)
	})
}

func TestMeterProvider_Push(t *testing.T) {
	mp := initMeter(t)
	metrics, err := InitOperationMetrics()
	require.NoError(t, err)
	metrics.RecordOperation(context.Background(), "get", "users", "ok", time.Millisecond)

	var gotPath, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotMethod = r.URL.Path, r.Method
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	require.NoError(t, mp.Push(context.Background(), srv.URL, "resourcectl"))
	assert.Equal(t, "/metrics/job/resourcectl", gotPath)
	assert.Equal(t, http.MethodPut, gotMethod)
}

func TestStartSpan_RecordsErrors(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	_, span := StartSpan(context.Background(), "create", "posts")
	EndSpan(span, errors.New("boom"))

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "resource.create", ended[0].Name())
	assert.Equal(t, codes.Error, ended[0].Status().Code)
}

func TestParseOTLPProtocol(t *testing.T) {
	p, err := parseOTLPProtocol("")
	require.NoError(t, err)
	assert.Equal(t, otlpProtocolGRPC, p)
	p, err = parseOTLPProtocol("HTTP")
	require.NoError(t, err)
	assert.Equal(t, otlpProtocolHTTP, p)
	_, err = parseOTLPProtocol("thrift")
	assert.Error(t, err)
}

func TestBuildTLSConfig_FileNotFound(t *testing.T) {
	// Missing CA file should surface a clear error.
	_, err := buildTLSConfig(OTLPExporterConfig{
		TLSCertFile: "/nonexistent/ca.pem",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read OTLP TLS CA file")
}

func TestBuildTLSConfig_InvalidCertFormat(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/ca.pem"

	// Write a non-PEM payload to trigger parse failure.
	require.NoError(t, os.WriteFile(path, []byte("not-a-cert"), 0600))

	_, err := buildTLSConfig(OTLPExporterConfig{
		TLSCertFile: path,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse OTLP TLS CA file")
}

func TestBuildTLSConfig_MissingClientKeyPair(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/client.crt"

	// Only set the cert path to ensure missing key is rejected.
	require.NoError(t, os.WriteFile(path, []byte("not-a-cert"), 0600))

	_, err := buildTLSConfig(OTLPExporterConfig{
		TLSClientCertFile: path,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OTLP TLS client cert and key must both be set")
}

func TestTraceSamplerForRatio_Boundaries(t *testing.T) {
	never := traceSamplerForRatio(0)
	always := traceSamplerForRatio(1)

	decisionNever := never.ShouldSample(sdktrace.SamplingParameters{
		ParentContext: context.Background(),
		TraceID:       trace.TraceID{1},
		Name:          "test",
	}).Decision
	assert.Equal(t, sdktrace.Drop, decisionNever)

	decisionAlways := always.ShouldSample(sdktrace.SamplingParameters{
		ParentContext: context.Background(),
		TraceID:       trace.TraceID{2},
		Name:          "test",
	}).Decision
	assert.Equal(t, sdktrace.RecordAndSample, decisionAlways)
}

func TestTraceSamplerForRatio_ParentAwareMidRange(t *testing.T) {
	sampler := traceSamplerForRatio(0.5)

	parentSampled := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{3},
		SpanID:     trace.SpanID{1},
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	}))
	decisionSampledParent := sampler.ShouldSample(sdktrace.SamplingParameters{
		ParentContext: parentSampled,
		TraceID:       trace.TraceID{4},
		Name:          "child",
	}).Decision
	assert.Equal(t, sdktrace.RecordAndSample, decisionSampledParent)

	parentNotSampled := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: trace.TraceID{5},
		SpanID:  trace.SpanID{2},
		Remote:  true,
	}))
	decisionUnsampledParent := sampler.ShouldSample(sdktrace.SamplingParameters{
		ParentContext: parentNotSampled,
		TraceID:       trace.TraceID{6},
		Name:          "child",
	}).Decision
	assert.Equal(t, sdktrace.Drop, decisionUnsampledParent)
}
