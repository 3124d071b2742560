package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.startedAt).String(),
	})
}

// handleReady checks templates and the persistence backend.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	if err := s.store.Ping(ctx); err != nil {
		checks["storage"] = fmt.Sprintf("failed: %v", err)
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["storage"] = "ok"
	}

	checks["store"] = map[string]any{
		"source":  s.store.Source(),
		"version": s.store.Version(),
		"records": s.store.Snapshot().Count(),
	}
	checks["cache"] = map[string]any{"lookup_entries": s.lookupCache.Size()}
	checks["rate_limiter"] = map[string]any{"active_clients": s.rateLimiter.ActiveClients()}

	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics provides application metrics in Prometheus text format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	stats := s.lookupCache.Stats()
	current := s.store.Snapshot()

	metric(w, "http_requests_total", "counter", "Total number of HTTP requests", s.traceMiddleware.TotalRequests())
	metric(w, "store_version", "gauge", "Mutations applied since startup", s.store.Version())
	metric(w, "store_records", "gauge", "Records across all categories", current.Count())
	metric(w, "lookup_cache_hits_total", "counter", "Lookup cache hits", stats.Hits)
	metric(w, "lookup_cache_misses_total", "counter", "Lookup cache misses", stats.Misses)
	metric(w, "lookup_cache_entries", "gauge", "Current lookup cache entries", stats.Size)
	metric(w, "rate_limit_hits_total", "counter", "Requests rejected by the rate limiter", s.rateLimiter.Hits())
	metric(w, "active_rate_limit_clients", "gauge", "Currently tracked rate limit clients", s.rateLimiter.ActiveClients())
	metric(w, "suspicious_requests_total", "counter", "Requests flagged as suspicious", s.securityDetector.SuspiciousRequests())
	metric(w, "uptime_seconds", "gauge", "Application uptime in seconds", int64(time.Since(s.startedAt).Seconds()))
}

func metric(w http.ResponseWriter, name, kind, help string, value any) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %v\n\n", name, help, name, kind, name, value)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
