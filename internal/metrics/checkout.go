// Package metrics exposes Prometheus series for the checkout flow. Labels
// stay low-cardinality: no session or correlation ids.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CheckoutStartedTotal counts submissions that passed phone validation.
	CheckoutStartedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tiketi_checkout_started_total",
		Help: "Total number of checkout sessions that sent an STK push request.",
	})

	// CheckoutFinishedTotal counts sessions by the state they ended in.
	CheckoutFinishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tiketi_checkout_finished_total",
		Help: "Total number of checkout sessions that ended, by final state and error kind.",
	}, []string{"state", "error_kind"})

	// CheckoutPollFailuresTotal counts failed status polls.
	CheckoutPollFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tiketi_checkout_poll_failures_total",
		Help: "Total number of status polls that failed at the transport or HTTP level.",
	})

	// CheckoutActive tracks sessions currently initiating or awaiting confirmation.
	CheckoutActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tiketi_checkout_active_sessions",
		Help: "Current number of checkout sessions awaiting a terminal outcome.",
	})
)
