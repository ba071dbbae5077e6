package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "taxi"

var (
	// HTTP metrics
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"service", "method", "path", "status"},
	)

	HttpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path", "status"},
	)

	HttpRequestsInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "Current number of HTTP requests being processed",
		},
		[]string{"service"},
	)

	// Dispatch metrics
	SearchesStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_searches_started_total",
			Help:      "Driver searches started",
		},
	)

	SearchesFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_searches_finished_total",
			Help:      "Driver searches finished by outcome",
		},
		[]string{"outcome"},
	)

	ActiveSearches = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dispatch_active_searches",
			Help:      "Driver searches currently running",
		},
	)

	SearchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_search_duration_seconds",
			Help:      "Time from search start to its outcome",
			Buckets:   []float64{1, 5, 10, 30, 60, 90, 120, 180},
		},
	)

	SearchRadius = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_round_radius_km",
			Help:      "Search radius used by each round",
			Buckets:   []float64{5, 7.5, 11.25, 16.9, 25.3, 38, 50},
		},
	)

	OffersSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_offers_total",
			Help:      "Offers delivered to drivers",
		},
		[]string{"status"},
	)

	Assignments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_assignments_total",
			Help:      "Conditional assignment attempts by result",
		},
		[]string{"result"},
	)

	// Live channels
	WebSocketConnectionsGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_connections",
			Help:      "Current number of live connections per actor kind",
		},
		[]string{"kind"},
	)

	// Locations
	LocationSamples = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "location_samples_total",
			Help:      "Driver location samples stored",
		},
		[]string{"source", "status"},
	)

	// Broker
	RabbitMQMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rabbitmq_messages_published_total",
			Help:      "Total number of messages published to RabbitMQ",
		},
		[]string{"routing_key", "status"},
	)

	RabbitMQMessagesConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rabbitmq_messages_consumed_total",
			Help:      "Total number of messages consumed from RabbitMQ",
		},
		[]string{"queue", "status"},
	)
)

// RecordHTTPMetrics records HTTP request metrics
func RecordHTTPMetrics(service, method, path string, statusCode int, duration time.Duration) {
	status := strconv.Itoa(statusCode)
	HttpRequestsTotal.WithLabelValues(service, method, path, status).Inc()
	HttpRequestDuration.WithLabelValues(service, method, path, status).Observe(duration.Seconds())
}

// RecordSearchFinished records the outcome of one driver search
func RecordSearchFinished(outcome string, duration time.Duration) {
	SearchesFinished.WithLabelValues(outcome).Inc()
	SearchDuration.Observe(duration.Seconds())
}

// RecordOffer records an offer delivery attempt
func RecordOffer(err error) {
	OffersSent.WithLabelValues(statusOf(err)).Inc()
}

// RecordAssignment records a conditional assignment result
func RecordAssignment(won bool, err error) {
	switch {
	case err != nil:
		Assignments.WithLabelValues("error").Inc()
	case won:
		Assignments.WithLabelValues("won").Inc()
	default:
		Assignments.WithLabelValues("lost").Inc()
	}
}

// RecordLocationSample records a stored location sample
func RecordLocationSample(source string, err error) {
	LocationSamples.WithLabelValues(source, statusOf(err)).Inc()
}

// RecordRabbitMQPublish records RabbitMQ publish metrics
func RecordRabbitMQPublish(routingKey string, err error) {
	RabbitMQMessagesPublished.WithLabelValues(routingKey, statusOf(err)).Inc()
}

// RecordRabbitMQConsume records RabbitMQ consume metrics
func RecordRabbitMQConsume(queue string, err error) {
	RabbitMQMessagesConsumed.WithLabelValues(queue, statusOf(err)).Inc()
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
