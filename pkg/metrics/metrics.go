package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// IntentsPublished counts intents sent to the broadcast channel, by kind.
	IntentsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quiz_intents_published_total",
		Help: "Intents published to the broadcast channel.",
	}, []string{"kind"})

	JoinsAdmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quiz_joins_admitted_total",
		Help: "Join intents admitted during replay (rejoins included).",
	})

	JoinsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quiz_joins_rejected_total",
		Help: "Join intents rejected because the room was full.",
	})

	BusResubscribes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quiz_bus_resubscribes_total",
		Help: "Times the broadcast subscription was re-established.",
	})

	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "quiz_ws_connections_active",
		Help: "WebSocket connections owned by this instance.",
	})
)

// Handler exposes Prometheus metrics at /metrics
func Handler() http.Handler {
	return promhttp.Handler()
}
