package observability

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. Every Record method is safe on a nil *Metrics so
// components can run without instrumentation.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Authorization metrics
	AuthzDecisionsTotal *prometheus.CounterVec
	OperationDuration   *prometheus.HistogramVec
	OperationErrors     *prometheus.CounterVec

	// Invitation metrics
	InviteTransitionsTotal *prometheus.CounterVec
	InvitesSweptTotal      prometheus.Counter
	SweepRunsTotal         *prometheus.CounterVec

	// Canvas metrics
	DefaultCanvasChangesTotal prometheus.Counter
	BackfillChangesTotal      *prometheus.CounterVec

	// Cache metrics
	CacheHitsTotal          *prometheus.CounterVec
	CacheMissesTotal        *prometheus.CounterVec
	CacheInvalidationsTotal *prometheus.CounterVec

	// Database metrics
	DBConnectionsActive    prometheus.Gauge
	DBConnectionsIdle      prometheus.Gauge
	DBConnectionsWaitCount prometheus.Gauge

	// Redis metrics
	RedisCommandsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "atrium_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "atrium_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		AuthzDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "atrium_authz_decisions_total",
				Help: "Authorization decisions by operation and outcome",
			},
			[]string{"operation", "decision"},
		),
		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "atrium_operation_duration_seconds",
				Help:    "Duration of gateway operations in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"operation"},
		),
		OperationErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "atrium_operation_errors_total",
				Help: "Gateway operation failures by error kind",
			},
			[]string{"operation", "kind"},
		),

		InviteTransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "atrium_invite_transitions_total",
				Help: "Invitation state transitions by target status",
			},
			[]string{"status"},
		),
		InvitesSweptTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "atrium_invites_swept_total",
				Help: "Pending invitations marked expired by the sweeper",
			},
		),
		SweepRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "atrium_sweep_runs_total",
				Help: "Expiry sweep runs by result",
			},
			[]string{"result"},
		),

		DefaultCanvasChangesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "atrium_default_canvas_changes_total",
				Help: "Successful default canvas swaps",
			},
		),
		BackfillChangesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "atrium_backfill_changes_total",
				Help: "Rows changed by canvas backfill runs",
			},
			[]string{"kind"},
		),

		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "atrium_cache_hits_total",
				Help: "Total number of permission cache hits",
			},
			[]string{"cache_type"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "atrium_cache_misses_total",
				Help: "Total number of permission cache misses",
			},
			[]string{"cache_type"},
		),
		CacheInvalidationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "atrium_cache_invalidations_total",
				Help: "Total number of permission cache invalidations",
			},
			[]string{"cache_type"},
		),

		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "atrium_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "atrium_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
		DBConnectionsWaitCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "atrium_db_connections_wait_count",
				Help: "Total number of connections waited for",
			},
		),

		RedisCommandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "atrium_redis_commands_total",
				Help: "Total number of Redis commands",
			},
			[]string{"command", "status"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthzDecisionsTotal,
		m.OperationDuration,
		m.OperationErrors,
		m.InviteTransitionsTotal,
		m.InvitesSweptTotal,
		m.SweepRunsTotal,
		m.DefaultCanvasChangesTotal,
		m.BackfillChangesTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CacheInvalidationsTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
		m.DBConnectionsWaitCount,
		m.RedisCommandsTotal,
	)

	return m
}

// RecordDecision counts an authorization decision
func (m *Metrics) RecordDecision(operation string, allowed bool) {
	if m == nil {
		return
	}
	decision := "deny"
	if allowed {
		decision = "allow"
	}
	m.AuthzDecisionsTotal.WithLabelValues(operation, decision).Inc()
}

// RecordOperation observes an operation's duration and, on failure, its error kind
func (m *Metrics) RecordOperation(operation string, d time.Duration, errKind string) {
	if m == nil {
		return
	}
	m.OperationDuration.WithLabelValues(operation).Observe(d.Seconds())
	if errKind != "" {
		m.OperationErrors.WithLabelValues(operation, errKind).Inc()
	}
}

// RecordInviteTransition counts an invitation entering status
func (m *Metrics) RecordInviteTransition(status string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.InviteTransitionsTotal.WithLabelValues(status).Add(float64(n))
}

// RecordSweep counts a sweep run and the invitations it expired
func (m *Metrics) RecordSweep(expired int64, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.SweepRunsTotal.WithLabelValues("error").Inc()
		return
	}
	m.SweepRunsTotal.WithLabelValues("ok").Inc()
	m.InvitesSweptTotal.Add(float64(expired))
	m.InviteTransitionsTotal.WithLabelValues("expired").Add(float64(expired))
}

// RecordDefaultCanvasChange counts a successful default canvas swap
func (m *Metrics) RecordDefaultCanvasChange() {
	if m == nil {
		return
	}
	m.DefaultCanvasChangesTotal.Inc()
}

// RecordBackfill counts rows changed by a backfill, by kind
func (m *Metrics) RecordBackfill(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.BackfillChangesTotal.WithLabelValues(kind).Add(float64(n))
}

// RecordCacheLookup counts a cache hit or miss
func (m *Metrics) RecordCacheLookup(cacheType string, hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHitsTotal.WithLabelValues(cacheType).Inc()
		return
	}
	m.CacheMissesTotal.WithLabelValues(cacheType).Inc()
}

// RecordCacheInvalidation counts a cache invalidation
func (m *Metrics) RecordCacheInvalidation(cacheType string) {
	if m == nil {
		return
	}
	m.CacheInvalidationsTotal.WithLabelValues(cacheType).Inc()
}

// RecordRedisCommand counts a Redis command by outcome
func (m *Metrics) RecordRedisCommand(command string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.RedisCommandsTotal.WithLabelValues(command, status).Inc()
}

// RecordDBStats copies connection pool statistics into the database gauges
func (m *Metrics) RecordDBStats(stats sql.DBStats) {
	if m == nil {
		return
	}
	m.DBConnectionsActive.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
	m.DBConnectionsWaitCount.Set(float64(stats.WaitCount))
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// routeLabel uses the matched route template so ids do not explode label cardinality
func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if metrics == nil {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := routeLabel(r)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// MetricsHandler serves the registry in the Prometheus exposition format
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
