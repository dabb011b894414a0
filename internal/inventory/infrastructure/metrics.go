// internal/inventory/infrastructure/metrics.go
package infrastructure

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var lockStealsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "bazaar",
	Subsystem: "inventory",
	Name:      "lock_steals_total",
	Help:      "Product lock takeovers from stale owners.",
})
