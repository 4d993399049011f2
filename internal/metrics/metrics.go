package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Scans recorded, by where they came from (http, reader).
	ScansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardlog_scans_total",
			Help: "Card scans recorded",
		},
		[]string{"source"},
	)

	PushClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cardlog_push_clients",
			Help: "Connected push channel clients",
		},
	)

	PushDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cardlog_push_dropped_total",
			Help: "Push clients disconnected because their send queue was full",
		},
	)

	APIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardlog_api_requests_total",
			Help: "HTTP API requests by route pattern and status code",
		},
		[]string{"route", "code"},
	)
)
