// internal/inventory/application/metrics.go
package application

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reserveTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bazaar",
		Subsystem: "inventory",
		Name:      "reserve_total",
		Help:      "Reserve attempts by outcome.",
	}, []string{"outcome"})

	commitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bazaar",
		Subsystem: "inventory",
		Name:      "commit_total",
		Help:      "Commit attempts by outcome.",
	}, []string{"outcome"})

	releaseTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bazaar",
		Subsystem: "inventory",
		Name:      "release_total",
		Help:      "Release attempts by outcome.",
	}, []string{"outcome"})

	sweepReleasedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bazaar",
		Subsystem: "inventory",
		Name:      "sweep_released_total",
		Help:      "Expired reservations released by the sweeper.",
	})
)
