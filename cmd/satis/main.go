package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"satis/internal/backend"
	"satis/internal/cache"
	"satis/internal/cli"
	"satis/internal/config"
	apphttp "satis/internal/http"
	"satis/internal/ledger"
	"satis/internal/log"
	"satis/internal/metrics"
	"satis/internal/services"
)

func main() {
	cfg := cli.LoadConfig()
	logger := cli.SetupLogger(cfg, log.ComponentApp)
	cli.MustValidate(logger, cfg.Validate)

	if err := run(cfg, logger); err != nil {
		logger.Error("Server exited with error", log.FieldError, err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *log.Logger) error {
	catalog, err := cfg.Catalog()
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return fmt.Errorf("backend config: %w", err)
	}
	be, err := backend.NewFactory(logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return fmt.Errorf("create backend: %w", err)
	}
	defer func() {
		if be.Cleanup != nil {
			if err := be.Cleanup(); err != nil {
				logger.Error("Backend cleanup failed", log.FieldError, err)
			}
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	opts := []services.Option{
		services.WithCatalog(catalog),
		services.WithLocation(loc),
		services.WithLogger(logger),
		services.WithMetrics(m),
		services.WithOperationHistory(cfg.OperationHistorySize, cfg.OperationHistoryTTL),
	}
	if be.Publisher != nil {
		opts = append(opts, services.WithPublisher(be.Publisher))
	}
	ctl := services.NewController(be.Store, ledger.Session{Owner: cfg.LedgerOwner}, opts...)

	srvOpts := apphttp.Options{
		Logger:    logger,
		Metrics:   m,
		Ready:     be.Ping,
		RateLimit: cfg.RateLimit,
	}
	if cfg.MetricsEnabled {
		srvOpts.Gatherer = reg
	}
	srv := apphttp.NewServer(":"+cfg.Port, ctl, srvOpts)

	caches := cache.NewManager(logger)
	caches.Register(ctl.OperationHistory())
	caches.Register(srv.Limiters())

	logger.Info("Starting satis",
		log.FieldOperation, log.OpStartup,
		"backend", cfg.DataBackend,
		"owner", cfg.LedgerOwner,
		"events", be.Publisher != nil,
		"metrics", cfg.MetricsEnabled)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return caches.Run(gctx, cfg.CacheCleanupInterval) })
	g.Go(func() error { return cli.ServeHTTP(gctx, logger, &srv.Server, cfg.ShutdownTimeout) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("Shutdown complete", log.FieldOperation, log.OpShutdown)
	return nil
}
