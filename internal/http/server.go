package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"eaccountant/internal/cache"
	applog "eaccountant/internal/log"
	"eaccountant/internal/middleware/ratelimit"
	"eaccountant/internal/middleware/security"
	"eaccountant/internal/middleware/trace"
	"eaccountant/internal/services"
)

// ServerOptions tunes the HTTP layer.
type ServerOptions struct {
	RateLimitPerMinute   int
	CacheCleanupInterval time.Duration
	Logger               *applog.Logger
}

// appMetrics counts application level events for /metrics.
type appMetrics struct {
	uptime    time.Time
	exports   int64
	publishes int64
	failures  int64
}

// Server serves the report API.
type Server struct {
	http.Server
	svc    *services.ReportService
	logger *applog.Logger

	securityDetector *security.Detector
	rateLimiter      *ratelimit.Limiter
	traceMiddleware  *trace.Middleware
	headers          *security.HeadersMiddleware
	cacheManager     *cache.Manager

	appMetrics *appMetrics

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(addr string, svc *services.ReportService, opts ServerOptions) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = applog.New(applog.Config{Level: slog.LevelInfo, Component: applog.ComponentHTTP, Handler: slog.Default().Handler()})
	}
	if opts.CacheCleanupInterval <= 0 {
		opts.CacheCleanupInterval = 10 * time.Minute
	}

	detector := security.NewDetector()
	s := &Server{
		svc:              svc,
		logger:           logger.WithComponent(applog.ComponentHTTP),
		securityDetector: detector,
		rateLimiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: opts.RateLimitPerMinute,
		}),
		traceMiddleware: trace.NewMiddleware(detector.ExtractClientIP, logger),
		headers:         security.NewHeadersMiddleware(security.DefaultHeadersConfig()),
		cacheManager:    cache.NewManager(),
		appMetrics:      &appMetrics{uptime: time.Now()},
	}

	// Expired view sessions are dropped periodically
	s.cacheManager.Register(svc.Sessions())
	s.cacheManager.StartCleanup(opts.CacheCleanupInterval)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/metrics", s.handleMetrics)

	mux.HandleFunc("/api/sales/monthly", s.handleSales)
	mux.HandleFunc("/api/sales/monthly/refresh", s.handleSalesRefresh)
	mux.HandleFunc("/api/sales/monthly/export.xlsx", s.handleSalesExport(services.FormatXLSX))
	mux.HandleFunc("/api/sales/monthly/export.pdf", s.handleSalesExport(services.FormatPDF))
	mux.HandleFunc("/api/sales/monthly/print", s.handleSalesExport(services.FormatPrint))
	mux.HandleFunc("/api/sales/monthly/publish", s.handlePublish(publishSales))

	mux.HandleFunc("/api/profits", s.handleProfits)
	mux.HandleFunc("/api/profits/refresh", s.handleProfitsRefresh)
	mux.HandleFunc("/api/profits/export.xlsx", s.handleProfitsExport(services.FormatXLSX))
	mux.HandleFunc("/api/profits/export.pdf", s.handleProfitsExport(services.FormatPDF))
	mux.HandleFunc("/api/profits/publish", s.handlePublish(publishProfits))

	mux.HandleFunc("/api/stock", s.handleStock)
	mux.HandleFunc("/api/stock/refresh", s.handleStockRefresh)
	mux.HandleFunc("/api/dashboard", s.handleDashboard)
	mux.HandleFunc("/api/exports", s.handleExports)

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		NotFoundError("no such endpoint").Write(w)
	})

	// Outermost first: trace, headers, detection, rate limit, logger
	var handler http.Handler = mux
	handler = applog.RequestIDMiddleware(trace.RequestID)(handler)
	handler = applog.Middleware(s.logger)(handler)
	handler = s.rateLimiter.Middleware(detector.ExtractClientIP, rateLimited, s.onRateLimit)(handler)
	handler = detector.Middleware(handler)
	handler = security.NoStoreMiddleware(handler)
	handler = s.headers.Middleware(handler)
	handler = s.traceMiddleware.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// rateLimited selects the requests that cost the report source or the
// renderer: every POST and every download.
func rateLimited(r *http.Request) bool {
	if r.Method == http.MethodPost {
		return true
	}
	return strings.Contains(r.URL.Path, "/export.") || strings.HasSuffix(r.URL.Path, "/print")
}

func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request) {
	s.logger.WarnContext(r.Context(), "Rate limit exceeded",
		applog.FieldClientIP, s.securityDetector.ExtractClientIP(r),
		applog.FieldMethod, r.Method,
		applog.FieldPath, r.URL.Path)
	TooManyRequestsError().Write(w)
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	// Ensure shutdown logic runs only once
	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

func (s *Server) countFailure() {
	atomic.AddInt64(&s.appMetrics.failures, 1)
}
