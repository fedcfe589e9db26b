package http

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	NewResponse().JSON(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.appMetrics.uptime).String(),
	}).Write(w)
}

// handleReady performs readiness check with dependency verification
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if err := s.svc.Ready(ctx); err != nil {
		checks["report_service"] = fmt.Sprintf("failed: %v", err)
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["report_service"] = "ok"
	}

	checks["rate_limiter"] = map[string]any{
		"active_clients": s.rateLimiter.ActiveClients(),
		"status":         "ok",
	}

	NewResponse().
		Status(httpStatus).
		JSON(map[string]any{
			"status":    status,
			"timestamp": time.Now().Format(time.RFC3339),
			"checks":    checks,
		}).
		Write(w)
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	securityMetrics := s.securityDetector.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	traceMetrics := s.traceMiddleware.GetMetrics()

	exports := atomic.LoadInt64(&s.appMetrics.exports)
	publishes := atomic.LoadInt64(&s.appMetrics.publishes)
	failures := atomic.LoadInt64(&s.appMetrics.failures)
	uptime := time.Since(s.appMetrics.uptime)

	journal, err := s.svc.JournalStats(r.Context())
	if err != nil {
		s.logger.WarnContext(r.Context(), "Journal stats unavailable", "error", err)
	}

	w.WriteHeader(http.StatusOK)

	// Write metrics in Prometheus-like format
	fmt.Fprintf(w, "# HELP http_requests_total Total number of HTTP requests\n")
	fmt.Fprintf(w, "# TYPE http_requests_total counter\n")
	fmt.Fprintf(w, "http_requests_total %d\n\n", traceMetrics.TotalRequests)

	fmt.Fprintf(w, "# HELP http_server_errors_total Responses with a 5xx status\n")
	fmt.Fprintf(w, "# TYPE http_server_errors_total counter\n")
	fmt.Fprintf(w, "http_server_errors_total %d\n\n", traceMetrics.ServerErrors)

	fmt.Fprintf(w, "# HELP http_response_time_avg_ms Average response time\n")
	fmt.Fprintf(w, "# TYPE http_response_time_avg_ms gauge\n")
	fmt.Fprintf(w, "http_response_time_avg_ms %.2f\n\n", float64(traceMetrics.AverageResponseTime().Microseconds())/1000)

	fmt.Fprintf(w, "# HELP report_exports_total Documents rendered for download\n")
	fmt.Fprintf(w, "# TYPE report_exports_total counter\n")
	fmt.Fprintf(w, "report_exports_total %d\n\n", exports)

	fmt.Fprintf(w, "# HELP report_publishes_total Publish requests accepted\n")
	fmt.Fprintf(w, "# TYPE report_publishes_total counter\n")
	fmt.Fprintf(w, "report_publishes_total %d\n\n", publishes)

	fmt.Fprintf(w, "# HELP report_fetch_failures_total Report requests answered with a failed fetch\n")
	fmt.Fprintf(w, "# TYPE report_fetch_failures_total counter\n")
	fmt.Fprintf(w, "report_fetch_failures_total %d\n\n", failures)

	fmt.Fprintf(w, "# HELP export_journal_entries Journal entries by status\n")
	fmt.Fprintf(w, "# TYPE export_journal_entries gauge\n")
	fmt.Fprintf(w, "export_journal_entries{status=\"stored\"} %d\n", journal.Stored)
	fmt.Fprintf(w, "export_journal_entries{status=\"pending\"} %d\n", journal.Pending)
	fmt.Fprintf(w, "export_journal_entries{status=\"processing\"} %d\n", journal.Processing)
	fmt.Fprintf(w, "export_journal_entries{status=\"published\"} %d\n", journal.Published)
	fmt.Fprintf(w, "export_journal_entries{status=\"failed\"} %d\n\n", journal.Failed)

	fmt.Fprintf(w, "# HELP rate_limit_hits_total Total rate limit hits\n")
	fmt.Fprintf(w, "# TYPE rate_limit_hits_total counter\n")
	fmt.Fprintf(w, "rate_limit_hits_total %d\n\n", rateLimitMetrics.TotalHits)

	fmt.Fprintf(w, "# HELP suspicious_requests_total Total suspicious requests detected\n")
	fmt.Fprintf(w, "# TYPE suspicious_requests_total counter\n")
	fmt.Fprintf(w, "suspicious_requests_total %d\n\n", securityMetrics.SuspiciousRequests)

	fmt.Fprintf(w, "# HELP blocked_requests_total Requests rejected by method\n")
	fmt.Fprintf(w, "# TYPE blocked_requests_total counter\n")
	fmt.Fprintf(w, "blocked_requests_total %d\n\n", securityMetrics.BlockedRequests)

	fmt.Fprintf(w, "# HELP active_rate_limit_clients Currently tracked rate limit clients\n")
	fmt.Fprintf(w, "# TYPE active_rate_limit_clients gauge\n")
	fmt.Fprintf(w, "active_rate_limit_clients %d\n\n", rateLimitMetrics.ClientCount)

	fmt.Fprintf(w, "# HELP uptime_seconds Application uptime in seconds\n")
	fmt.Fprintf(w, "# TYPE uptime_seconds gauge\n")
	fmt.Fprintf(w, "uptime_seconds %.0f\n\n", uptime.Seconds())
}
