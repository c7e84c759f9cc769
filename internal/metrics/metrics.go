// Package metrics exposes the gateway's prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the gateway collectors registered on one registry.
type Metrics struct {
	Registry *prometheus.Registry

	SessionsConnected prometheus.Gauge
	RequestsTotal     *prometheus.CounterVec
	EventsTotal       *prometheus.CounterVec
	TradesBlocked     prometheus.Counter
	TradesExecuted    prometheus.Counter
}

// New creates and registers the gateway collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		Registry: registry,
		SessionsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tradegate_sessions_connected",
			Help: "Number of currently connected gateway sessions.",
		}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradegate_requests_total",
			Help: "Dispatched gateway requests by method and outcome.",
		}, []string{"method", "outcome"}),
		EventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradegate_events_total",
			Help: "Emitted gateway events by name.",
		}, []string{"event"}),
		TradesBlocked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradegate_trades_blocked_total",
			Help: "Trade placements blocked by risk or the emergency stop.",
		}),
		TradesExecuted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradegate_trades_executed_total",
			Help: "Trade placements that reached execution.",
		}),
	}

	registry.MustRegister(
		m.SessionsConnected,
		m.RequestsTotal,
		m.EventsTotal,
		m.TradesBlocked,
		m.TradesExecuted,
	)
	return m
}
