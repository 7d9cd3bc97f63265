package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"golang.org/x/net/netutil"

	"github.com/joeychilson/pdfworks/config"
	"github.com/joeychilson/pdfworks/logger"
	"github.com/joeychilson/pdfworks/queue"
	"github.com/joeychilson/pdfworks/server/middleware"
	"github.com/joeychilson/pdfworks/service"
	"github.com/joeychilson/pdfworks/upload"
)

// Options configures a Server.
type Options struct {
	Config  *config.Config
	Service *service.Service
	// Queue enables the /api/pdf/jobs endpoints. Nil disables them.
	Queue *queue.Queue
	// Uploads is where request files are written. Nil creates a store in
	// the configured temp dir.
	Uploads  *upload.Store
	Logger   logger.Logger
	LogLevel slog.Level
	// Redis shares rate limit counters between instances and is reported
	// by the health check. Nil keeps counters in memory.
	Redis   *redis.Client
	Version string
}

// Server is the HTTP server for the API.
type Server struct {
	cfg     *config.Config
	svc     *service.Service
	queue   *queue.Queue
	uploads *upload.Store
	logger  logger.Logger
	redis   *redis.Client
	version string
	router  *chi.Mux
}

// New creates a new API server with chi router and middleware stack.
func New(opts Options) (*Server, error) {
	if opts.Service == nil {
		return nil, errors.New("server: service is required")
	}
	if opts.Config == nil {
		opts.Config = opts.Service.Config()
	}
	if opts.Logger == nil {
		opts.Logger = logger.Noop()
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	if opts.Uploads == nil {
		sc := opts.Config.Server
		store, err := upload.NewStore(sc.GetTempDir(), sc.GetMaxUploadSize(), sc.GetMaxFiles())
		if err != nil {
			return nil, err
		}
		opts.Uploads = store
	}

	s := &Server{
		cfg:     opts.Config,
		svc:     opts.Service,
		queue:   opts.Queue,
		uploads: opts.Uploads,
		logger:  opts.Logger,
		redis:   opts.Redis,
		version: opts.Version,
	}
	s.router = s.routes(opts.LogLevel)
	return s, nil
}

func (s *Server) routes(level slog.Level) *chi.Mux {
	sc := s.cfg.Server
	limits := s.cfg.RateLimit

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.AccessLog(s.logger, level))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(sc.CORSOrigin))
	r.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestLimit:   limits.GetRequests(),
		WindowDuration: limits.GetWindow(),
		RedisClient:    s.redis,
		PrefixKey:      "pdfworks:ratelimit:api",
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.sendError(w, "not found", http.StatusNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.sendError(w, "method not allowed", http.StatusMethodNotAllowed)
	})

	r.Get("/health", s.handleHealth)
	r.Get("/api/health", s.handleHealth)

	r.Route("/api/pdf", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(sc.APIKey))

			r.Get("/jobs/{id}", s.handleGetJob)
			r.Get("/jobs/{id}/result", s.handleJobResult)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RateLimit(middleware.RateLimitConfig{
					RequestLimit:   limits.GetUploadRequests(),
					WindowDuration: limits.GetUploadWindow(),
					Message:        "Too many uploads, please try again in 15 minutes",
					RedisClient:    s.redis,
					PrefixKey:      "pdfworks:ratelimit:upload",
				}))

				r.Post("/merge", s.handleMerge)
				r.Post("/split", s.handleSplit)
				r.Post("/compress", s.handleCompress)
				r.Post("/info", s.handleInfo)
				r.Post("/convert-to-images", s.handleToImages)
				r.Post("/convert-to-text", s.handleToText)
				r.Post("/split-by-ranges", s.handleSplitByRanges)
				r.Post("/images-to-pdf", s.handleImagesToPDF)
				r.Post("/jobs", s.handleSubmitJob)
			})
		})
	})

	if sc.StaticDir != "" {
		r.Get("/*", s.handleStatic)
	}

	return r
}

// StartWithShutdown serves on addr until ctx is cancelled, then shuts down
// gracefully. When max_connections is set, concurrent connections are
// capped at that number.
func (s *Server) StartWithShutdown(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	if n := s.cfg.Server.MaxConnections; n > 0 {
		ln = netutil.LimitListener(ln, n)
	}

	server := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting API server", "addr", ln.Addr().String(), "version", s.version)
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
