package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "resourcegraph"

// OperationMetrics holds the instruments recorded by resource operations.
type OperationMetrics struct {
	operationDuration     metric.Float64Histogram
	operationCounter      metric.Int64Counter
	rowsReturned          metric.Int64Histogram
	pageSize              metric.Int64Histogram
	serializationFailures metric.Int64Counter
	writes                metric.Int64Counter
}

// InitOperationMetrics creates the instruments on the global meter provider.
// Without an installed provider the instruments are no-ops.
func InitOperationMetrics() (*OperationMetrics, error) {
	meter := otel.Meter(instrumentationName)

	operationDuration, err := meter.Float64Histogram(
		"resource.operation.duration",
		metric.WithDescription("Duration of resource operations in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create operation duration histogram: %w", err)
	}

	operationCounter, err := meter.Int64Counter(
		"resource.operations.total",
		metric.WithDescription("Total number of resource operations"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create operation counter: %w", err)
	}

	rowsReturned, err := meter.Int64Histogram(
		"resource.rows.returned",
		metric.WithDescription("Number of resources returned by read operations"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rows returned histogram: %w", err)
	}

	pageSize, err := meter.Int64Histogram(
		"resource.page.size",
		metric.WithDescription("Requested page size of paginated reads"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create page size histogram: %w", err)
	}

	serializationFailures, err := meter.Int64Counter(
		"resource.serialization.failures",
		metric.WithDescription("Number of instances that failed to serialize"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create serialization failure counter: %w", err)
	}

	writes, err := meter.Int64Counter(
		"resource.writes.total",
		metric.WithDescription("Write operations by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create write counter: %w", err)
	}

	return &OperationMetrics{
		operationDuration:     operationDuration,
		operationCounter:      operationCounter,
		rowsReturned:          rowsReturned,
		pageSize:              pageSize,
		serializationFailures: serializationFailures,
		writes:                writes,
	}, nil
}

// RecordOperation records one operation with its duration and outcome.
// outcome is "ok" or the error kind.
func (m *OperationMetrics) RecordOperation(ctx context.Context, operation, collection, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("collection", collection),
		attribute.String("outcome", outcome),
	)
	m.operationDuration.Record(ctx, float64(duration.Microseconds())/1000, attrs)
	m.operationCounter.Add(ctx, 1, attrs)
}

// RecordRows records how many resources a read returned and the page size it
// asked for.
func (m *OperationMetrics) RecordRows(ctx context.Context, collection string, rows, pageSize int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("collection", collection))
	m.rowsReturned.Record(ctx, int64(rows), attrs)
	if pageSize > 0 {
		m.pageSize.Record(ctx, int64(pageSize), attrs)
	}
}

// RecordSerializationFailures counts instances that failed to serialize.
func (m *OperationMetrics) RecordSerializationFailures(ctx context.Context, collection string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.serializationFailures.Add(ctx, int64(n), metric.WithAttributes(attribute.String("collection", collection)))
}

// RecordWrite counts a create, update or delete by whether it committed.
func (m *OperationMetrics) RecordWrite(ctx context.Context, operation, collection string, committed bool) {
	if m == nil {
		return
	}
	outcome := "rolled_back"
	if committed {
		outcome = "committed"
	}
	m.writes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("collection", collection),
		attribute.String("outcome", outcome),
	))
}

// StartSpan starts a span for a resource operation on the global tracer.
func StartSpan(ctx context.Context, operation, collection string) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, "resource."+operation,
		trace.WithAttributes(
			attribute.String("resource.operation", operation),
			attribute.String("resource.collection", collection),
		))
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
