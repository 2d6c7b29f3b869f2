package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"example.com/carniceria/pedidos/config"
	"example.com/carniceria/pedidos/internal/api"
	"example.com/carniceria/pedidos/internal/cache"
	"example.com/carniceria/pedidos/internal/messaging"
	"example.com/carniceria/pedidos/internal/metrics"
	"example.com/carniceria/pedidos/internal/models"
	"example.com/carniceria/pedidos/internal/relay"
	"example.com/carniceria/pedidos/internal/repositories"
	"example.com/carniceria/pedidos/internal/search"
	"example.com/carniceria/pedidos/internal/services"
	"example.com/carniceria/pedidos/internal/tracing"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the API server",
	Long:  `Start the HTTP API server and the NATS relay for the order panels`,
	RunE:  runAPI,
}

func init() {
	rootCmd.AddCommand(apiCmd)
}

func runAPI(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return err
	}

	// Configure logging
	if cfg.Environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	// Set up signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// Initialize database connections
	db, readOnlyDB, err := initDatabases(cfg)
	if err != nil {
		return err
	}

	// Initialize cache
	redisCache, err := cache.NewRedisCache(cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Redis cache, continuing without caching")
	}

	// Initialize tracer
	tracer, err := tracing.NewTracer(cfg.Tracing)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
	}

	// Initialize Elasticsearch client
	elasticClient, err := search.NewElasticClient(cfg.Elastic)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Elasticsearch client, continuing without order history search")
	}

	// Initialize metrics
	metricsCollector := metrics.NewMetrics()

	// Initialize repositories
	pedidoRepo := repositories.NewPedidoRepository(db, readOnlyDB)
	avisoRepo := repositories.NewAvisoRepository(db, readOnlyDB)

	// Connect to the relay
	nc, err := relay.Connect(cfg.NATS, nil)
	var relayPub relay.Publisher
	if err != nil {
		log.Warn().Err(err).Msg("Failed to connect to NATS, continuing without the relay")
	} else {
		relayPub = relay.NewPublisher(nc)
	}

	// Initialize the ERP export publisher
	erpPublisher, err := messaging.NewERPPublisher(cfg.Azure)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize ERP publisher, continuing with worker fallback only")
	}

	// Initialize services
	pedidoService := services.NewPedidoService(
		pedidoRepo, avisoRepo, redisCache, elasticClient,
		erpPublisher, relayPub, metricsCollector, tracer)
	avisoService := services.NewAvisoService(avisoRepo, metricsCollector)

	// Answer full-list snapshot requests from reconnecting panels
	if nc != nil {
		if _, err := relay.ServeInicial(nc, func(ctx context.Context) ([]models.Pedido, error) {
			return pedidoService.List(ctx, "")
		}); err != nil {
			log.Warn().Err(err).Msg("Failed to serve pedidos.inicial requests")
		}
	}

	// Initialize and start the server
	server := api.NewServer(cfg, pedidoService, avisoService, metricsCollector, tracer)

	// Start the server in a goroutine
	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("Server error")
		}
	}()

	// Wait for termination signal
	<-ctx.Done()

	// Shutdown the server
	if err := server.Shutdown(context.Background()); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}

	if relayPub != nil {
		relayPub.Close()
	}
	if erpPublisher != nil {
		if err := erpPublisher.Close(); err != nil {
			log.Error().Err(err).Msg("ERP publisher shutdown error")
		}
	}

	log.Info().Msg("Shutting down API server")
	return nil
}

func initDatabases(cfg config.Config) (*gorm.DB, *gorm.DB, error) {
	// Initialize write database
	db, err := gorm.Open(postgres.Open(cfg.DB.DSN), &gorm.Config{})
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to connect to write database")
	}

	// Initialize read-only database
	readOnlyDB, err := gorm.Open(postgres.Open(cfg.DB.ReadOnlyDSN), &gorm.Config{})
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to connect to read-only database")
	}

	// Auto-migrate only the write database
	if err := models.SetupModels(db); err != nil {
		return nil, nil, errors.Wrap(err, "failed to run migrations")
	}

	// Configure connection pools for both databases
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to get underlying write DB connection")
	}
	sqlDB.SetMaxIdleConns(cfg.DB.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.DB.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.DB.ConnMaxLifetime)

	readSqlDB, err := readOnlyDB.DB()
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to get underlying read-only DB connection")
	}

	// Higher limits on the read side
	readSqlDB.SetMaxIdleConns(cfg.DB.MaxIdleConns * 2)
	readSqlDB.SetMaxOpenConns(cfg.DB.MaxOpenConns * 2)
	readSqlDB.SetConnMaxLifetime(cfg.DB.ConnMaxLifetime)

	return db, readOnlyDB, nil
}
