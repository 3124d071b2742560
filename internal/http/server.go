package http

import (
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"fengshui/internal/cache"
	"fengshui/internal/core"
	"fengshui/internal/log"
	"fengshui/internal/middleware/ratelimit"
	"fengshui/internal/middleware/security"
	"fengshui/internal/middleware/trace"
	"fengshui/internal/services"
	appweb "fengshui/web"
)

const (
	lookupCacheSize = 256
	lookupCacheTTL  = 5 * time.Minute
	janitorInterval = 10 * time.Minute

	// maxImportBytes bounds uploaded snapshot files.
	maxImportBytes = 5 << 20
)

type Server struct {
	http.Server
	templates *template.Template
	store     *services.CategoryStore
	logger    *log.Logger
	events    *log.StructuredLogger

	lookupCache      *cache.LRUCache[[]core.Hit]
	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware
	startedAt        time.Time

	stopJanitor  context.CancelFunc
	shutdownOnce sync.Once
}

// NewServer configures routes, middleware and templates, returning a
// ready-to-run server. A template parse failure is logged and reported by
// /readyz.
func NewServer(addr string, store *services.CategoryStore, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	s := &Server{
		store:            store,
		logger:           logger,
		events:           log.NewStructuredLogger(logger),
		lookupCache:      cache.NewLRUCache[[]core.Hit](lookupCacheSize, lookupCacheTTL),
		rateLimiter:      ratelimit.NewLimiter(ratelimit.DefaultConfig()),
		securityDetector: security.NewDetector(logger.Slog()),
		startedAt:        time.Now(),
	}
	s.traceMiddleware = trace.NewMiddleware(logger, s.securityDetector.ExtractClientIP)

	t, err := template.ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		logger.Error("Failed parsing templates", log.FieldError, err)
	} else {
		s.templates = t
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.stopJanitor = cancel
	go cache.NewJanitor(logger.Slog(), s.lookupCache).Run(ctx, janitorInterval)

	mux := http.NewServeMux()
	s.routes(mux)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	limit := s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, nil)

	var handler http.Handler = mux
	handler = limit(handler)
	handler = headers.Middleware(handler)
	handler = s.securityDetector.Middleware(handler)
	handler = s.traceMiddleware.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		s.logger.Warn("Failed to mount embedded static FS", log.FieldError, err)
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("GET /{$}", s.handleLookup)
	mux.HandleFunc("GET /entry", s.handleEntryForm)
	mux.HandleFunc("POST /records", s.handleCreateRecord)
	mux.HandleFunc("GET /manage", s.handleManage)
	mux.HandleFunc("POST /records/{category}/{id}", s.handleEditRecord)
	mux.HandleFunc("POST /records/{category}/{id}/delete", s.handleDeleteRecord)

	mux.HandleFunc("GET /export", s.handleExport)
	mux.HandleFunc("GET /api/snapshot", s.handleSnapshot)
	mux.HandleFunc("POST /import", s.handleImport)
	mux.HandleFunc("POST /reset", s.handleReset)
}

// Shutdown stops background routines and then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.stopJanitor()
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
