package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tiercache/tiercache/internal/cache"
	"github.com/tiercache/tiercache/internal/config"
	"github.com/tiercache/tiercache/internal/layout"
	"github.com/tiercache/tiercache/internal/metrics"
	"github.com/tiercache/tiercache/internal/storage/s3"
	"github.com/tiercache/tiercache/internal/storage/valkey"
	"github.com/tiercache/tiercache/pkg/api"
	"github.com/tiercache/tiercache/pkg/health"
	"github.com/tiercache/tiercache/pkg/types"
	"github.com/tiercache/tiercache/pkg/utils"
)

func newServeCmd(configPath *string) *cobra.Command {
	var address string

	cmd := &cobra.Command{
		Use:   CmdServe,
		Short: "Start the cache coordinator and its admin API",
		Long: `Start the cache coordinator with the configured tiers and serve the admin
API until SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if address != "" {
				cfg.Server.Address = address
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "Override server.address")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Configuration) error {
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector, err = metrics.NewCollector(&metrics.Config{
			Enabled:   true,
			Path:      cfg.Metrics.Path,
			Namespace: cfg.Metrics.Namespace,
			Labels:    map[string]string{},
		})
		if err != nil {
			return err
		}
	}

	source, closeSource, err := newRemoteSource(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSource()

	opts, err := coordinatorOptions(cfg, logger, collector, source)
	if err != nil {
		return err
	}
	coordinator, err := cache.New(ctx, opts)
	if err != nil {
		return err
	}
	defer func() { _ = coordinator.Close() }()

	server := api.NewServer(api.ServerConfig{
		Address:      cfg.Server.Address,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}, coordinator, collector, logger)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// coordinatorOptions maps the configuration onto cache.Options.
func coordinatorOptions(cfg *config.Configuration, logger *utils.StructuredLogger, collector *metrics.Collector, source types.RemoteSource) (cache.Options, error) {
	limit, err := cfg.MemoryLimitBytes()
	if err != nil {
		return cache.Options{}, err
	}
	entrySize, err := cfg.DefaultEntrySizeBytes()
	if err != nil {
		return cache.Options{}, err
	}

	hc := cfg.Cache.HealthCheck
	opts := cache.Options{
		Strategy:           cfg.Cache.Strategy,
		MemoryLimit:        limit,
		SweepInterval:      cfg.Cache.SweepInterval,
		HitHistorySize:     cfg.Cache.HitHistorySize,
		PreheatConcurrency: cfg.Preheat.MaxConcurrency,
		Thresholds: cache.HealthThresholds{
			MinHitRate:         hc.MinHitRate,
			MinRequests:        hc.MinRequests,
			MaxAverageResponse: hc.MaxAverageResponse,
			MemoryPressure:     hc.MemoryPressure,
		},
		Logger:        logger.WithComponent("cache"),
		SizeEstimator: cache.ConstantSize(entrySize),
		Metrics:       collector,
		Health:        health.NewTracker(cfg.Health),
	}

	if cfg.Cache.SizeEstimator == config.SizeEstimatorLayout {
		opts.SizeEstimator = layout.Estimator(opts.SizeEstimator)
	}

	if cfg.Disk.Enabled {
		opts.Disk = &cache.DiskOptions{
			Directory:        cfg.Disk.Directory,
			Compression:      cache.Compression(cfg.Disk.Compression),
			CompressionLevel: cfg.Disk.CompressionLevel,
		}
	}
	if source != nil {
		opts.Network = &cache.NetworkOptions{
			Source:  source,
			Name:    cfg.Network.Source,
			Timeout: cfg.Network.Timeout,
			Retry:   cfg.Network.Retry,
			Breaker: cfg.Network.CircuitBreaker,
		}
	}
	return opts, nil
}

// newRemoteSource opens the configured network source. The returned
// close function is always safe to call.
func newRemoteSource(ctx context.Context, cfg *config.Configuration) (types.RemoteSource, func(), error) {
	nop := func() {}

	switch cfg.Network.Source {
	case "", "none":
		return nil, nop, nil

	case "valkey":
		v := cfg.Network.Valkey
		src, err := valkey.Dial(valkey.Config{
			Addresses: v.Addresses,
			Username:  v.Username,
			Password:  v.Password,
			DB:        v.DB,
			Prefix:    v.Prefix,
		})
		if err != nil {
			return nil, nop, fmt.Errorf("connecting to valkey: %w", err)
		}
		return src, src.Close, nil

	case "s3":
		sc := s3.NewDefaultConfig()
		sc.Bucket = cfg.Network.S3.Bucket
		sc.Prefix = cfg.Network.S3.Prefix
		if cfg.Network.S3.Region != "" {
			sc.Region = cfg.Network.S3.Region
		}
		sc.Endpoint = cfg.Network.S3.Endpoint
		sc.AccessKeyID = cfg.Network.S3.AccessKey
		sc.SecretAccessKey = cfg.Network.S3.SecretKey
		sc.ForcePathStyle = cfg.Network.S3.UsePathStyle

		src, err := s3.NewFromConfig(ctx, sc)
		if err != nil {
			return nil, nop, fmt.Errorf("creating s3 source: %w", err)
		}
		return src, nop, nil
	}

	return nil, nop, fmt.Errorf("unknown network source %q", cfg.Network.Source)
}
