package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"example.com/carniceria/pedidos/config"
	"example.com/carniceria/pedidos/internal/cache"
	"example.com/carniceria/pedidos/internal/messaging"
	"example.com/carniceria/pedidos/internal/metrics"
	"example.com/carniceria/pedidos/internal/repositories"
	"example.com/carniceria/pedidos/internal/services"
	"example.com/carniceria/pedidos/internal/tracing"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the background worker",
	Long:  `Start the background worker that exports finished orders to the ERP queue`,
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
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

	// Create an error group to manage goroutines
	g, ctx := errgroup.WithContext(ctx)

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

	// Initialize metrics
	metricsCollector := metrics.NewMetrics()

	// Initialize repositories
	pedidoRepo := repositories.NewPedidoRepository(db, readOnlyDB)
	avisoRepo := repositories.NewAvisoRepository(db, readOnlyDB)

	// Initialize the ERP export publisher
	erpPublisher, err := messaging.NewERPPublisher(cfg.Azure)
	if err != nil {
		return err
	}

	// Initialize services. The worker has no relay or search duties.
	pedidoService := services.NewPedidoService(
		pedidoRepo, avisoRepo, redisCache, nil,
		erpPublisher, nil, metricsCollector, tracer)

	// Start the ERP export cron job as a fallback for orders whose inline
	// export failed.
	g.Go(func() error {
		log.Info().Str("queue", cfg.Azure.QueueName).Msg("Starting ERP export fallback job")

		scheduler, err := gocron.NewScheduler()
		if err != nil {
			return err
		}

		_, err = scheduler.NewJob(
			gocron.DurationJob(5*time.Minute),
			gocron.NewTask(func() {
				if err := pedidoService.ExportarPendientes(ctx); err != nil {
					log.Error().Err(err).Msg("Failed to export pending orders")
				}
			}),
		)
		if err != nil {
			return err
		}

		scheduler.Start()

		// Wait for context cancellation
		<-ctx.Done()

		return scheduler.Shutdown()
	})

	// Wait for any goroutine to exit
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Worker error")
		return err
	}

	if err := erpPublisher.Close(); err != nil {
		log.Error().Err(err).Msg("ERP publisher shutdown error")
	}

	log.Info().Msg("Worker shutting down gracefully")
	return nil
}
