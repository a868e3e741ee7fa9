// Package metrics exposes Prometheus collectors for the HTTP surface and the
// earning actions.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"spinearn/events"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spinearn_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPResponseTime = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "spinearn_http_response_time_seconds",
			Help:    "Histogram of response times",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// ActionsTotal counts API actions by outcome ("ok" or the failure kind)
	ActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spinearn_actions_total",
			Help: "API actions handled, by action and outcome",
		},
		[]string{"action", "outcome"},
	)

	// PointsAwarded sums points credited, by source
	PointsAwarded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spinearn_points_awarded_total",
			Help: "Points credited to users, by source",
		},
		[]string{"source"},
	)

	// PointsWithdrawn sums points deducted by withdrawal requests
	PointsWithdrawn = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "spinearn_points_withdrawn_total",
			Help: "Points deducted by withdrawal requests",
		},
	)
)

// ObserveAction records the outcome of one API action
func ObserveAction(action, outcome string) {
	ActionsTotal.WithLabelValues(action, outcome).Inc()
}

// SubscribeLedger keeps the points counters in step with committed balance changes
func SubscribeLedger(bus *events.Bus) {
	bus.Subscribe(events.EventTypeBalanceChange, func(ctx context.Context, e events.Event) {
		change, ok := e.(events.BalanceChangeEvent)
		if !ok {
			return
		}
		observeBalanceChange(change)
	})
}

func observeBalanceChange(change events.BalanceChangeEvent) {
	switch {
	case change.ChangeAmount > 0:
		PointsAwarded.WithLabelValues(string(change.TransactionType)).Add(float64(change.ChangeAmount))
	case change.ChangeAmount < 0:
		PointsWithdrawn.Add(float64(-change.ChangeAmount))
	}
}
