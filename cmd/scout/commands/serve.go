package commands

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/incidentstack/scout/internal/api"
	"github.com/incidentstack/scout/internal/config"
	"github.com/incidentstack/scout/internal/metrics"
	"github.com/incidentstack/scout/internal/patterns"
	"github.com/incidentstack/scout/internal/services"
	"github.com/incidentstack/scout/internal/telemetry"
	"github.com/incidentstack/scout/internal/utils"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scout investigation API server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		return runServe(cfg)
	},
}

func runServe(cfg *config.Config) error {
	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting scout", slog.String("address", cfg.Server.Address))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return err
	}

	cacheProvider := newCacheProvider(cfg, logger)
	defer cacheProvider.Close()

	store := telemetry.NewHTTPStore(telemetry.HTTPStoreConfig{
		BaseURL:   cfg.Telemetry.BaseURL,
		QueryPath: cfg.Telemetry.QueryPath,
		APIKey:    cfg.Telemetry.APIKey,
		Timeout:   cfg.Telemetry.Timeout,
		CacheTTL:  cfg.Telemetry.CacheTTL,
	}, cacheProvider)

	history := newHistory(cfg, cacheProvider)

	p, err := buildPipeline(cfg, logger, store, history)
	if err != nil {
		return err
	}

	miner := patterns.NewMiner(logger, nil)
	service := services.NewInvestigationService(logger, p, history, miner)

	handler := api.NewHandler(logger, service)
	server, err := api.NewServer(cfg.Server, handler.Router())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("api server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	server.Shutdown(shutdownCtx)

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	// Give remaining goroutines time to finish logging
	time.Sleep(100 * time.Millisecond)
	logger.Info("scout stopped")
	return nil
}
