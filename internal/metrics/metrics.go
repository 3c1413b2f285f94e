// Package metrics holds the Prometheus collectors shared by the client and the local gateway.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Requests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spendwise_client_requests_total",
		Help: "Total number of requests dispatched to the API",
	}, []string{"method", "status"})

	Replays = promauto.NewCounter(prometheus.CounterOpts{
		Name: "spendwise_client_replays_total",
		Help: "Requests replayed after a token refresh",
	})

	Refreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spendwise_client_refreshes_total",
		Help: "Token refresh round-trips by result",
	}, []string{"result"})

	RefreshWaiters = promauto.NewCounter(prometheus.CounterOpts{
		Name: "spendwise_client_refresh_waiters_total",
		Help: "Requests that waited on an in-flight token refresh instead of issuing their own",
	})

	RefreshDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "spendwise_client_refresh_duration_seconds",
		Help:    "Time spent in the token refresh round-trip",
		Buckets: prometheus.ExponentialBuckets(0.01, 2.0, 10), // 10ms to ~5s
	})
)
