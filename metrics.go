package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router- and listener-scoped collectors. Registered against the default
// registry at process startup so /metrics on the Marti surface can serve
// them alongside the process/Go runtime collectors promhttp registers by
// default.
var (
	routerClientsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "omnitak",
		Subsystem: "router",
		Name:      "connected_clients",
		Help:      "Current number of registered peers in the CoT router.",
	})

	routerRoutedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "omnitak",
		Subsystem: "router",
		Name:      "routed_events_total",
		Help:      "Total CoT events successfully delivered to a peer's outbound queue.",
	})

	routerDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "omnitak",
		Subsystem: "router",
		Name:      "dropped_events_total",
		Help:      "Total CoT events dropped because a peer's outbound queue was full.",
	})

	routerSlowDisconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "omnitak",
		Subsystem: "router",
		Name:      "slow_consumer_disconnects_total",
		Help:      "Total peers forcibly disconnected for exceeding the slow-consumer threshold.",
	})

	listenerRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "omnitak",
		Subsystem: "listener",
		Name:      "admission_rejected_total",
		Help:      "Total connections rejected because max_clients was reached.",
	}, []string{"listener"})

	tlsHandshakeFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "omnitak",
		Subsystem: "listener",
		Name:      "tls_handshake_failures_total",
		Help:      "Total TLS handshake failures, labeled by classified reason.",
	}, []string{"reason"})
)

// metricsHandler exposes the default Prometheus registry over HTTP. Mounted
// on the Marti service alongside the read-only JSON routes, per
// SPEC_FULL.md's domain-stack wiring for the metrics dependency.
func metricsHandler() http.Handler {
	return promhttp.Handler()
}
