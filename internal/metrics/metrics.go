package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Rate limiting
	RateLimitExceededTotal *prometheus.CounterVec

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Marketplace metrics
	ConversationsCreatedTotal prometheus.Counter
	MessagesSentTotal         prometheus.Counter
	MessagesReadTotal         prometheus.Counter
	ProductsCreatedTotal      *prometheus.CounterVec
	UploadsTotal              *prometheus.CounterVec
	SearchRequestsTotal       *prometheus.CounterVec
	OrphansDeletedTotal       prometheus.Counter

	// Realtime metrics
	WebSocketConnections prometheus.Gauge
	RealtimeEventsTotal  *prometheus.CounterVec

	// Error metrics
	ErrorsTotal *prometheus.CounterVec
}

var (
	instance *Metrics
	once     sync.Once
)

// Initialize creates and registers all Prometheus metrics
func Initialize() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			HTTPRequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "http_requests_total",
					Help: "Total number of HTTP requests",
				},
				[]string{"method", "path", "status"},
			),
			HTTPRequestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "http_request_duration_seconds",
					Help:    "HTTP request latency in seconds",
					Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
				},
				[]string{"method", "path", "status"},
			),
			HTTPResponseSize: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "http_response_size_bytes",
					Help:    "HTTP response size in bytes",
					Buckets: prometheus.ExponentialBuckets(100, 10, 7),
				},
				[]string{"method", "path", "status"},
			),
			RateLimitExceededTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "rate_limit_exceeded_total",
					Help: "Requests rejected by the rate limiter",
				},
				[]string{"limiter"},
			),
			CacheHitsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "cache_hits_total",
					Help: "Total number of cache hits",
				},
				[]string{"cache_name"},
			),
			CacheMissesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "cache_misses_total",
					Help: "Total number of cache misses",
				},
				[]string{"cache_name"},
			),
			ConversationsCreatedTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "marketplace_conversations_created_total",
				Help: "Conversations opened between a buyer and a seller",
			}),
			MessagesSentTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "marketplace_messages_sent_total",
				Help: "Messages sent",
			}),
			MessagesReadTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "marketplace_messages_read_total",
				Help: "Messages that transitioned to read",
			}),
			ProductsCreatedTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "marketplace_products_created_total",
					Help: "Listings created, by category",
				},
				[]string{"category"},
			),
			UploadsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "marketplace_uploads_total",
					Help: "Blob uploads, by kind and result",
				},
				[]string{"kind", "result"},
			),
			SearchRequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "marketplace_search_requests_total",
					Help: "Search requests, by index and backend",
				},
				[]string{"index", "backend"},
			),
			OrphansDeletedTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "marketplace_orphan_conversations_deleted_total",
				Help: "Conversations removed by the orphan sweeper",
			}),
			WebSocketConnections: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "websocket_connections",
				Help: "Currently connected WebSocket clients",
			}),
			RealtimeEventsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "realtime_events_total",
					Help: "Realtime events published, by type",
				},
				[]string{"type"},
			),
			ErrorsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "errors_total",
					Help: "Total errors by component",
				},
				[]string{"component", "kind"},
			),
		}
	})
	return instance
}

// Get returns the metrics singleton, initializing it on first use
func Get() *Metrics {
	return Initialize()
}
