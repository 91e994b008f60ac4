package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	WebhooksReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_deliveries_total",
			Help: "Total webhook deliveries received, by provider and kind",
		},
		[]string{"provider", "kind"},
	)

	DuplicateDeliveries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "webhook_duplicate_deliveries_total",
			Help: "Inbound saves that resolved to an update of an existing row",
		},
	)

	StatusTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "status_transitions_total",
			Help: "Delivery-status events, split by whether they changed the status",
		},
		[]string{"outcome"}, // applied | noop
	)

	UpstreamFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_failures_total",
			Help: "Failed HTTP calls to provider APIs and object storage",
		},
		[]string{"target"},
	)

	DispatcherActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dispatcher_active_workers",
			Help: "Active collaborator-dispatch workers per tenant",
		},
		[]string{"tenant"},
	)

	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_depth",
			Help: "Current RabbitMQ event queue depth per tenant",
		},
		[]string{"tenant"},
	)
)

// Init registers metrics with Prometheus
func Init() {
	prometheus.MustRegister(WebhooksReceived)
	prometheus.MustRegister(DuplicateDeliveries)
	prometheus.MustRegister(StatusTransitions)
	prometheus.MustRegister(UpstreamFailures)
	prometheus.MustRegister(DispatcherActive)
	prometheus.MustRegister(QueueDepth)
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
