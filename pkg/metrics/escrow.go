package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EscrowMetrics records outcomes of escrow engine operations.
type EscrowMetrics struct {
	duration          *prometheus.HistogramVec
	success           *prometheus.CounterVec
	failure           *prometheus.CounterVec
	insufficientFunds prometheus.Counter
}

// NewEscrowMetrics registers the escrow metrics on the provided registerer.
func NewEscrowMetrics(reg prometheus.Registerer) *EscrowMetrics {
	if reg == nil {
		return &EscrowMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "escrow_operation_duration_seconds",
		Help:    "Duration of escrow engine operations in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	success := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "escrow_operation_success",
		Help: "Successful escrow engine operations.",
	}, []string{"operation"})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "escrow_operation_failure",
		Help: "Failed escrow engine operations.",
	}, []string{"operation"})
	insufficientFunds := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "escrow_insufficient_funds_total",
		Help: "Holds and top-ups rejected for lack of wallet balance.",
	})
	reg.MustRegister(duration, success, failure, insufficientFunds)
	return &EscrowMetrics{
		duration:          duration,
		success:           success,
		failure:           failure,
		insufficientFunds: insufficientFunds,
	}
}

// ObserveDuration records the duration for the named operation.
func (e *EscrowMetrics) ObserveDuration(operation string, duration time.Duration) {
	if e == nil || e.duration == nil {
		return
	}
	e.duration.WithLabelValues(normalizeLabel(operation)).Observe(duration.Seconds())
}

// IncSuccess increments the success counter for the named operation.
func (e *EscrowMetrics) IncSuccess(operation string) {
	if e == nil || e.success == nil {
		return
	}
	e.success.WithLabelValues(normalizeLabel(operation)).Inc()
}

// IncFailure increments the failure counter for the named operation.
func (e *EscrowMetrics) IncFailure(operation string) {
	if e == nil || e.failure == nil {
		return
	}
	e.failure.WithLabelValues(normalizeLabel(operation)).Inc()
}

// IncInsufficientFunds counts a balance-check rejection.
func (e *EscrowMetrics) IncInsufficientFunds() {
	if e == nil || e.insufficientFunds == nil {
		return
	}
	e.insufficientFunds.Inc()
}

func normalizeLabel(operation string) string {
	if operation == "" {
		return "unknown"
	}
	return operation
}
