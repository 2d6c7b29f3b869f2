package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/carniceria/pedidos/config"
	"example.com/carniceria/pedidos/internal/api/handlers"
	"example.com/carniceria/pedidos/internal/metrics"
	"example.com/carniceria/pedidos/internal/services"
	"example.com/carniceria/pedidos/internal/tracing"
)

// Server represents the HTTP server
type Server struct {
	config        config.Config
	router        *gin.Engine
	httpServer    *http.Server
	pedidoService *services.PedidoService
	avisoService  *services.AvisoService
	metrics       *metrics.Metrics
	tracer        tracing.Tracer
}

// NewServer creates a new HTTP server
func NewServer(
	cfg config.Config,
	pedidoService *services.PedidoService,
	avisoService *services.AvisoService,
	metricsCollector *metrics.Metrics,
	tracer tracing.Tracer,
) *Server {
	server := &Server{
		config:        cfg,
		pedidoService: pedidoService,
		avisoService:  avisoService,
		metrics:       metricsCollector,
		tracer:        tracer,
	}

	router := server.setupRouter()
	server.router = router

	server.httpServer = &http.Server{
		Addr:    cfg.ServerAddress,
		Handler: router,
	}

	return server
}

// setupRouter configures the HTTP router
func (s *Server) setupRouter() *gin.Engine {
	if s.config.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	router.Use(gin.Recovery())

	pedidoHandler := handlers.NewPedidoHandler(s.pedidoService, s.tracer)
	pedidoHandler.RegisterRoutes(router)

	avisoHandler := handlers.NewAvisoHandler(s.avisoService, s.tracer)
	avisoHandler.RegisterRoutes(router)

	metricsHandler := handlers.NewMetricsHandler(s.metrics)
	metricsHandler.RegisterRoutes(router)

	return router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	log.Info().Str("address", s.config.ServerAddress).Msg("Starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "HTTP server error")
	}
	return nil
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "HTTP server shutdown error")
	}

	log.Info().Msg("HTTP server shut down successfully")
	return nil
}
