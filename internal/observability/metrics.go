package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RidesSubmitted  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "taxi_dispatch", Name: "rides_submitted_total", Help: "Total ride requests submitted"})
	RidesAccepted   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "taxi_dispatch", Name: "rides_accepted_total", Help: "Total rides accepted by a driver"})
	AcceptConflicts = promauto.NewCounter(prometheus.CounterOpts{Namespace: "taxi_dispatch", Name: "accept_conflicts_total", Help: "Accept attempts that lost the pending->accepted race"})

	CodesIssued   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "taxi_dispatch", Name: "codes_issued_total", Help: "Activation codes issued"})
	CodesRedeemed = promauto.NewCounter(prometheus.CounterOpts{Namespace: "taxi_dispatch", Name: "codes_redeemed_total", Help: "Activation codes redeemed"})

	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "taxi_dispatch", Name: "ws_connections_active", Help: "Live websocket connections"})
	BroadcastFailures = promauto.NewCounter(prometheus.CounterOpts{Namespace: "taxi_dispatch", Name: "broadcast_send_failures_total", Help: "Event sends that failed on an individual connection"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "taxi_dispatch", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "taxi_dispatch",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
