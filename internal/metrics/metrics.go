// Package metrics — Prometheus-коллекторы API. Регистрируются в глобальном реестре при импорте,
// отдаются через promhttp.Handler() на /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "teamchat_http_requests_total",
			Help: "HTTP requests by method, route pattern and status.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "teamchat_http_request_duration_seconds",
			Help:    "HTTP request latency by method and route pattern.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	wsConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "teamchat_ws_connections",
			Help: "Open websocket connections.",
		},
	)

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "teamchat_query_cache_lookups_total",
			Help: "Query cache lookups by query and result (hit, miss, error).",
		},
		[]string{"query", "result"},
	)

	cacheStaleWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "teamchat_query_cache_stale_writes_total",
			Help: "Query results not cached because a topic was invalidated while they loaded.",
		},
		[]string{"query"},
	)

	panics = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "teamchat_http_panics_total",
			Help: "Handler panics recovered by route pattern.",
		},
		[]string{"route"},
	)

	invalidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "teamchat_invalidations_total",
			Help: "Published invalidation events by kind.",
		},
		[]string{"kind"},
	)

	janitorDeleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "teamchat_janitor_deleted_objects_total",
			Help: "Unreferenced uploads removed by the janitor.",
		},
	)

	rateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "teamchat_rate_limited_total",
			Help: "Requests rejected by the rate limiter.",
		},
	)
)

func init() {
	prometheus.MustRegister(httpRequests, httpDuration, wsConnections, cacheLookups, cacheStaleWrites, panics,
		invalidations, janitorDeleted, rateLimited)
}

// ObserveHTTP записывает завершённый запрос. route — шаблон chi ("/api/messages/{id}"), не сырой путь.
func ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func WSConnected()    { wsConnections.Inc() }
func WSDisconnected() { wsConnections.Dec() }

func CacheHit(query string)   { cacheLookups.WithLabelValues(query, "hit").Inc() }
func CacheMiss(query string)  { cacheLookups.WithLabelValues(query, "miss").Inc() }
func CacheError(query string) { cacheLookups.WithLabelValues(query, "error").Inc() }
func CacheStale(query string) { cacheStaleWrites.WithLabelValues(query).Inc() }

// Panicked учитывает восстановленную панику обработчика. route — шаблон chi.
func Panicked(route string) {
	if route == "" {
		route = "unmatched"
	}
	panics.WithLabelValues(route).Inc()
}

func Invalidated(kind string) { invalidations.WithLabelValues(kind).Inc() }

func JanitorDeleted(n int) { janitorDeleted.Add(float64(n)) }

func RateLimited() { rateLimited.Inc() }
