package trace

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	applog "eaccountant/internal/log"
)

func TestMiddleware_AssignsRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := applog.New(applog.Config{Handler: slog.NewTextHandler(&buf, nil)})
	m := NewMiddleware(func(*http.Request) string { return "10.0.0.1" }, logger)

	var seen string
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r)
		w.WriteHeader(http.StatusBadGateway)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/sales/monthly", nil))

	if !strings.HasPrefix(seen, "req_") {
		t.Fatalf("request id = %q", seen)
	}
	if got := rr.Header().Get(HeaderRequestID); got != seen {
		t.Errorf("%s header = %q, want %q", HeaderRequestID, got, seen)
	}

	metrics := m.GetMetrics()
	if metrics.TotalRequests != 1 || metrics.ServerErrors != 1 {
		t.Errorf("metrics = %+v", metrics)
	}

	logs := buf.String()
	if !strings.Contains(logs, "HTTP request completed") || !strings.Contains(logs, "status_code=502") {
		t.Errorf("missing completion log: %s", logs)
	}
	if !strings.Contains(logs, "client_ip=10.0.0.1") {
		t.Errorf("missing client ip: %s", logs)
	}
}

func TestGetRequestIDMissing(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if id := RequestID(r); id != "" {
		t.Errorf("RequestID = %q, want empty", id)
	}
}

func TestAverageResponseTime(t *testing.T) {
	if (Metrics{}).AverageResponseTime() != 0 {
		t.Error("empty metrics should average to zero")
	}
	m := Metrics{TotalRequests: 4, TotalDuration: 4000}
	if got := m.AverageResponseTime().Microseconds(); got != 1000 {
		t.Errorf("average = %dµs, want 1000", got)
	}
}
