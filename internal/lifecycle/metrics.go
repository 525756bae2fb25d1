package lifecycle

import (
	"errors"

	"github.com/ariefcatur/go-pharma-stock/internal/orders"
	"github.com/ariefcatur/go-pharma-stock/internal/stock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pharma",
		Subsystem: "orders",
		Name:      "transitions_total",
		Help:      "Order lifecycle operations by action and outcome",
	}, []string{"action", "outcome"})

	compensationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pharma",
		Subsystem: "orders",
		Name:      "stock_compensations_total",
		Help:      "Stock batches undone because the order write failed",
	}, []string{"result"})
)

func observe(action string, err error) {
	transitionsTotal.WithLabelValues(action, outcome(err)).Inc()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, orders.ErrValidation):
		return "validation"
	case errors.Is(err, orders.ErrForbidden):
		return "forbidden"
	case errors.Is(err, orders.ErrNotFound):
		return "not_found"
	case errors.Is(err, orders.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, orders.ErrDuplicateTransition):
		return "duplicate"
	case errors.Is(err, orders.ErrStaleRevision):
		return "stale_revision"
	case errors.Is(err, orders.ErrConflict):
		return "conflict"
	}
	return stock.Outcome(err)
}
