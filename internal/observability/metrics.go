package observability

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	docerrors "github.com/gezibash/docio/pkg/errors"
)

// Metrics holds the Prometheus registry and the meters docio records.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry          *prometheus.Registry
	OperationDuration *prometheus.HistogramVec
	OperationTotal    *prometheus.CounterVec
	BytesProcessed    *prometheus.CounterVec
	ErrorsTotal       *prometheus.CounterVec
	Transactions      *prometheus.CounterVec
}

// NewMetrics creates a registry with the standard docio metrics.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	opDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "docio_operation_duration_seconds",
		Help:    "Duration of document operations in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "status"})

	opTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "docio_operation_total",
		Help: "Total number of document operations.",
	}, []string{"operation", "status"})

	bytesProcessed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "docio_bytes_processed_total",
		Help: "Total document bytes moved, by direction.",
	}, []string{"direction"})

	errorsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "docio_errors_total",
		Help: "Total number of failed operations, by error class.",
	}, []string{"operation", "type"})

	txns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "docio_transactions_total",
		Help: "Transactions opened and resolved, by outcome.",
	}, []string{"outcome"})

	reg.MustRegister(opDuration, opTotal, bytesProcessed, errorsTotal, txns)

	return &Metrics{
		Registry:          reg,
		OperationDuration: opDuration,
		OperationTotal:    opTotal,
		BytesProcessed:    bytesProcessed,
		ErrorsTotal:       errorsTotal,
		Transactions:      txns,
	}
}

// AddBytes counts n bytes moved in direction ("in" or "out").
func (m *Metrics) AddBytes(direction string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.BytesProcessed.WithLabelValues(direction).Add(float64(n))
}

// RecordError counts a failure of operation under its error class.
func (m *Metrics) RecordError(operation string, err error) {
	if m == nil || err == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(operation, ErrorClass(err)).Inc()
}

// RecordTransaction counts a transaction outcome (open, commit, rollback).
func (m *Metrics) RecordTransaction(outcome string) {
	if m == nil {
		return
	}
	m.Transactions.WithLabelValues(outcome).Inc()
}

// ErrorClass maps err onto a small fixed label set.
func ErrorClass(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, docerrors.ErrNotFound):
		return "not_found"
	case errors.Is(err, docerrors.ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, docerrors.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, docerrors.ErrConflict):
		return "conflict"
	case errors.Is(err, docerrors.ErrClosed):
		return "closed"
	case errors.Is(err, docerrors.ErrUnsupported):
		return "unsupported"
	case docerrors.IsIOError(err):
		return "io"
	default:
		return "internal"
	}
}
