package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// DefaultReadinessTimeout bounds a readiness probe when the checker has no explicit timeout
const DefaultReadinessTimeout = 5 * time.Second

// errDegraded marks a probe that answered but is running short of capacity
var errDegraded = errors.New("degraded")

// HealthStatus is the readiness report served on /health/ready
type HealthStatus struct {
	Status       string                      `json:"status"`
	Timestamp    time.Time                   `json:"timestamp"`
	Version      string                      `json:"version,omitempty"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// DependencyStatus is one dependency's probe result
type DependencyStatus struct {
	Status    string        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Latency   time.Duration `json:"latency_ms,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// dependency is a probed backend. Failing a non-critical one degrades the service.
type dependency struct {
	name     string
	critical bool
	probe    func(ctx context.Context) error
}

// HealthChecker probes the database and, when configured, Redis. Redis only carries the
// shared permission cache and the sweep lease, so losing it degrades readiness.
type HealthChecker struct {
	deps    []dependency
	version string
	// Timeout bounds one readiness probe; zero means DefaultReadinessTimeout
	Timeout time.Duration
}

// NewHealthChecker creates a health checker. redis may be nil.
func NewHealthChecker(db *sql.DB, redis *redis.Client, version string, metrics *Metrics) *HealthChecker {
	h := &HealthChecker{version: version}
	if db != nil {
		h.deps = append(h.deps, dependency{name: "database", critical: true, probe: databaseProbe(db, metrics)})
	}
	if redis != nil {
		h.deps = append(h.deps, dependency{name: "redis", probe: redisProbe(redis, metrics)})
	}
	return h
}

func databaseProbe(db *sql.DB, metrics *Metrics) func(context.Context) error {
	return func(ctx context.Context) error {
		var one int
		if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
			return err
		}
		stats := db.Stats()
		metrics.RecordDBStats(stats)
		// A single-connection pool (SQLite) is always fully in use while it serves a request
		if stats.MaxOpenConnections > 1 && stats.InUse >= stats.MaxOpenConnections {
			return errDegraded
		}
		return nil
	}
}

func redisProbe(client *redis.Client, metrics *Metrics) func(context.Context) error {
	return func(ctx context.Context) error {
		err := client.Ping(ctx).Err()
		metrics.RecordRedisCommand("ping", err)
		return err
	}
}

// Check probes every dependency and folds the results into one status
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:       StatusHealthy,
		Timestamp:    time.Now(),
		Version:      h.version,
		Dependencies: make(map[string]DependencyStatus, len(h.deps)),
	}

	for _, dep := range h.deps {
		start := time.Now()
		err := dep.probe(ctx)
		result := DependencyStatus{Status: StatusHealthy, Latency: time.Since(start), Timestamp: start}

		switch {
		case errors.Is(err, errDegraded):
			result.Status, result.Message = StatusDegraded, "connection pool exhausted"
		case err != nil:
			result.Status, result.Message = StatusUnhealthy, err.Error()
		}
		status.Dependencies[dep.name] = result

		switch {
		case result.Status == StatusHealthy || status.Status == StatusUnhealthy:
		case result.Status == StatusUnhealthy && dep.critical:
			status.Status = StatusUnhealthy
		default:
			status.Status = StatusDegraded
		}
	}
	return status
}

// Liveness answers 200 while the process is serving
func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	writeHealth(w, http.StatusOK, map[string]interface{}{
		"status":    StatusHealthy,
		"timestamp": time.Now(),
	})
}

// Readiness answers 503 when a critical dependency is down and 200 otherwise
func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = DefaultReadinessTimeout
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	status := h.Check(ctx)
	code := http.StatusOK
	if status.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeHealth(w, code, status)
}

func writeHealth(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

// RegisterHealthRoutes mounts the liveness and readiness endpoints
func RegisterHealthRoutes(mux *http.ServeMux, checker *HealthChecker) {
	mux.HandleFunc("/health", checker.Readiness)
	mux.HandleFunc("/health/live", checker.Liveness)
	mux.HandleFunc("/health/ready", checker.Readiness)
}
