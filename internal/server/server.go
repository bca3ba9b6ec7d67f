package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apihttp "github.com/helion-os/helion/internal/api/http"
	"github.com/helion-os/helion/internal/api/middleware"
	"github.com/helion-os/helion/internal/api/ws"
	"github.com/helion-os/helion/internal/boot"
	"github.com/helion-os/helion/internal/events"
	"github.com/helion-os/helion/internal/infrastructure/config"
	"github.com/helion-os/helion/internal/infrastructure/logging"
	"github.com/helion-os/helion/internal/infrastructure/monitoring"
	"github.com/helion-os/helion/internal/infrastructure/tracing"
	"github.com/helion-os/helion/internal/kernel"
)

// Server wraps the HTTP control plane and the kernel it fronts.
type Server struct {
	router  *gin.Engine
	kernel  *kernel.Kernel
	bus     *events.Bus
	logger  *logging.Logger
	config  *config.Config
	metrics *monitoring.Metrics
	httpSrv *http.Server
}

// NewServer boots a kernel from the configured manifest and builds the
// control plane around it.
func NewServer(cfg *config.Config) (*Server, error) {
	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	logger.Info("initializing helion",
		zap.String("port", cfg.Server.Port),
		zap.String("manifest", cfg.Manifest.Path),
	)

	metrics := monitoring.NewMetrics()

	manifest := boot.Default()
	if cfg.Manifest.Path != "" {
		manifest, err = boot.Load(cfg.Manifest.Path)
		if err != nil {
			return nil, err
		}
	}

	bus := events.NewBus()
	k, err := kernel.New(manifest, logger.Named("kernel"), bus)
	if err != nil {
		return nil, fmt.Errorf("kernel boot failed: %w", err)
	}
	metrics.SetMemory(k.Stats().Memory.Used, k.Stats().Memory.Total)
	metrics.IncProcessesTotal()

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(middleware.Recovery(logger.Named("recovery").Logger))
	router.Use(tracing.HTTPMiddleware(logger.Named("http").Logger))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	handlers := apihttp.NewHandlers(k, metrics)
	wsHandler := ws.NewHandler(bus, logger.Named("ws"), metrics)

	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)

	// Kernel inspection
	router.GET("/kernel/stats", handlers.Stats)
	router.GET("/kernel/processes", handlers.ListProcesses)
	router.GET("/kernel/processes/:pid/caps", handlers.ListCaps)
	router.GET("/kernel/processes/:pid/mappings", handlers.ListMappings)
	router.GET("/kernel/memory", handlers.Memory)
	router.GET("/kernel/irq", handlers.ListIRQ)
	router.GET("/kernel/snapshot", handlers.Snapshot)

	// Syscall surface
	router.POST("/syscall", handlers.Syscall)

	// Hardware boundary simulation
	router.POST("/kernel/irq/:line/trigger", handlers.TriggerIRQ)

	// Event stream
	router.GET("/events", wsHandler.HandleConnection)

	// Metrics
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/metrics/json", handlers.MetricsJSON)

	logger.Info("server initialized", zap.Uint64("bootstrap_pid", k.BootstrapPID()))

	return &Server{
		router:  router,
		kernel:  k,
		bus:     bus,
		logger:  logger,
		config:  cfg,
		metrics: metrics,
	}, nil
}

// Kernel exposes the booted kernel, mainly for tests.
func (s *Server) Kernel() *kernel.Kernel { return s.kernel }

// Router exposes the configured routes, mainly for tests.
func (s *Server) Router() *gin.Engine { return s.router }

// Run starts the HTTP server and blocks until it stops.
func (s *Server) Run() error {
	addr := s.config.Server.Host + ":" + s.config.Server.Port
	s.logger.Info("starting http server", zap.String("addr", addr))
	s.httpSrv = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close gracefully shuts the control plane down.
func (s *Server) Close() error {
	s.logger.Info("shutting down server")
	if s.httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			return err
		}
	}
	s.logger.Sync()
	return nil
}
