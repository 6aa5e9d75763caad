package main

import (
	"database/sql"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"net/http"
)

// appMetrics owns a private Prometheus registry, so every application value (one per
// test, for instance) registers its own collectors.
type appMetrics struct {
	registry         *prometheus.Registry
	requestsInFlight prometheus.Gauge
	responsesTotal   *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
}

func newMetrics() *appMetrics {
	m := &appMetrics{
		registry: prometheus.NewRegistry(),
		requestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "moviefavs",
			Name:      "http_requests_in_flight",
			Help:      "Requests currently being served.",
		}),
		responsesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "moviefavs",
			Name:      "http_responses_total",
			Help:      "Responses sent, by method and status code.",
		}, []string{"method", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "moviefavs",
			Name:      "http_request_duration_seconds",
			Help:      "Time spent serving requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}

	m.registry.MustRegister(
		m.requestsInFlight,
		m.responsesTotal,
		m.requestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// registerDB exports the connection pool statistics.
func (m *appMetrics) registerDB(db *sql.DB) {
	m.registry.MustRegister(collectors.NewDBStatsCollector(db, "moviefavs"))
}

func (m *appMetrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
