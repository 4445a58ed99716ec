package observability

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Operation tracks a document operation with a span, metrics and logging.
type Operation struct {
	ctx     context.Context
	span    trace.Span
	metrics *Metrics
	name    string
	start   time.Time
	logger  *slog.Logger
}

// StartOperation begins tracking an operation. m may be nil.
func StartOperation(ctx context.Context, m *Metrics, name string, attrs ...attribute.KeyValue) (*Operation, context.Context) {
	ctx, span := StartSpan(ctx, name, attrs...)
	logger := slog.Default().With("operation", name)
	logger.DebugContext(ctx, "operation started")

	return &Operation{
		ctx:     ctx,
		span:    span,
		metrics: m,
		name:    name,
		start:   time.Now(),
		logger:  logger,
	}, ctx
}

// Logger returns the operation-scoped logger.
func (o *Operation) Logger() *slog.Logger { return o.logger }

// SetAttributes adds attributes to the operation span.
func (o *Operation) SetAttributes(attrs ...attribute.KeyValue) {
	o.span.SetAttributes(attrs...)
}

// End finishes the operation, recording duration and status. Not-found
// results are logged at debug level since callers probe for documents.
func (o *Operation) End(err error) {
	duration := time.Since(o.start).Seconds()
	status := "ok"
	if err != nil {
		status = "error"
		class := ErrorClass(err)
		if class == "not_found" {
			o.logger.DebugContext(o.ctx, "operation failed", "error", err, "duration", duration)
		} else {
			o.logger.ErrorContext(o.ctx, "operation failed", "error", err, "class", class, "duration", duration)
		}
		o.metrics.RecordError(o.name, err)
	} else {
		o.logger.DebugContext(o.ctx, "operation completed", "duration", duration)
	}

	EndSpan(o.span, err)
	if o.metrics != nil {
		o.metrics.OperationDuration.WithLabelValues(o.name, status).Observe(duration)
		o.metrics.OperationTotal.WithLabelValues(o.name, status).Inc()
	}
}
