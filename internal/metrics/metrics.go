package metrics

import "github.com/prometheus/client_golang/prometheus"

// Source lookup Prometheus metrics.
var (
	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "saucebot",
			Name:      "search_requests_total",
			Help:      "Total number of searcher calls by outcome",
		},
		[]string{"searcher", "outcome"}, // "found" / "not_found" / "failed"
	)

	SearchRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "saucebot",
			Name:      "search_request_duration_seconds",
			Help:      "Searcher call duration in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 15, 20, 30},
		},
		[]string{"searcher"},
	)

	SearchErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "saucebot",
			Name:      "search_errors_total",
			Help:      "Total searcher failures by kind",
		},
		[]string{"searcher", "error_type"},
	)

	SearchCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "saucebot",
			Name:      "search_cache_total",
			Help:      "Search cache hits and misses",
		},
		[]string{"searcher", "result"},
	)

	CorrelationOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "saucebot",
			Name:      "correlation_ops_total",
			Help:      "Correlation store operations",
		},
		[]string{"op", "result"},
	)

	EventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "saucebot",
			Name:      "events_total",
			Help:      "Inbound chat messages by classification",
		},
		[]string{"class"},
	)

	OutboundTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "saucebot",
			Name:      "outbound_total",
			Help:      "Outbound actions by delivery status",
		},
		[]string{"status"},
	)

	OutboundQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "saucebot",
			Name:      "outbound_queue_depth",
			Help:      "Replies waiting for the transport writer",
		},
	)
)

var registered bool

// Register registers the bot metrics. Must be called once from main.
func Register() {
	if registered {
		return
	}
	prometheus.MustRegister(SearchRequestsTotal)
	prometheus.MustRegister(SearchRequestDuration)
	prometheus.MustRegister(SearchErrorsTotal)
	prometheus.MustRegister(SearchCacheTotal)
	prometheus.MustRegister(CorrelationOpsTotal)
	prometheus.MustRegister(EventsTotal)
	prometheus.MustRegister(OutboundTotal)
	prometheus.MustRegister(OutboundQueueDepth)
	prometheus.MustRegister(httpRequestDuration)
	prometheus.MustRegister(httpRequestsTotal)
	registered = true
}
