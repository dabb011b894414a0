// internal/checkout/application/saga/metrics.go
package saga

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sagaCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bazaar",
		Subsystem: "checkout",
		Name:      "saga_completed_total",
		Help:      "Checkout sagas that reached ORDER_CREATED.",
	})

	sagaFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bazaar",
		Subsystem: "checkout",
		Name:      "saga_failed_total",
		Help:      "Checkout sagas halted, by failing step.",
	}, []string{"step"})

	sagaCompensatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bazaar",
		Subsystem: "checkout",
		Name:      "saga_compensated_total",
		Help:      "Sagas whose reservation was released by compensation.",
	})

	sagaDeadLetteredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bazaar",
		Subsystem: "checkout",
		Name:      "saga_dead_lettered_total",
		Help:      "Sagas written to the manual reconciliation queue, by reason.",
	}, []string{"reason"})
)
