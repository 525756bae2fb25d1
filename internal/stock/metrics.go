package stock

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	batchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pharma",
		Subsystem: "stock",
		Name:      "batches_total",
		Help:      "Stock batches by outcome",
	}, []string{"outcome"})

	deltasApplied = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pharma",
		Subsystem: "stock",
		Name:      "deltas_applied_total",
		Help:      "Stock deltas committed",
	})

	batchRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pharma",
		Subsystem: "stock",
		Name:      "batch_retries_total",
		Help:      "Batches re-submitted after a version conflict",
	})

	batchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "pharma",
		Subsystem: "stock",
		Name:      "batch_duration_seconds",
		Help:      "Time to apply a stock batch, retries included",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	})
)

func observeBatch(err error, deltas int, took time.Duration) {
	batchesTotal.WithLabelValues(Outcome(err)).Inc()
	batchLatency.Observe(took.Seconds())
	if err == nil {
		deltasApplied.Add(float64(deltas))
	}
}

// Outcome is a short label for a ledger error, used in metrics and logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrSizeNotFound):
		return "size_not_found"
	case errors.Is(err, ErrNegativeStock):
		return "negative_stock"
	case errors.Is(err, ErrConcurrencyConflict):
		return "conflict"
	case errors.Is(err, ErrDuplicateBatch):
		return "duplicate"
	case errors.Is(err, ErrInvalidBatch):
		return "invalid"
	case errors.Is(err, ErrBatchNotApplied):
		return "not_applied"
	}
	return "error"
}
