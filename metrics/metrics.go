package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_http_requests_total",
			Help: "Total number of HTTP requests by route group, method and status",
		},
		[]string{"group", "method", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_http_request_duration_seconds",
			Help:    "HTTP request latency by route group",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"group"},
	)

	RateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_rate_limited_total",
			Help: "Total number of requests rejected by rate limiting",
		},
		[]string{"tier"},
	)

	MessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_messages_sent_total",
			Help: "Total number of messages stored",
		},
	)

	WebSocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_websocket_clients",
			Help: "Number of open websocket connections",
		},
	)

	OnlineUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_online_users",
			Help: "Number of distinct users with at least one open websocket",
		},
	)

	// DatabaseState is 1 for the current state label and 0 for the rest
	DatabaseState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chat_database_state",
			Help: "Database connection state (1 for the active state)",
		},
		[]string{"driver", "state"},
	)

	DatabaseConnectAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_database_connect_attempts_total",
			Help: "Database connection attempts by outcome",
		},
		[]string{"driver", "outcome"},
	)

	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"backend", "operation"},
	)

	UserCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_user_cache_lookups_total",
			Help: "Authenticated user cache lookups by result",
		},
		[]string{"result"},
	)
)
