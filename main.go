package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"segloader/config"
	"segloader/datasets"
	"segloader/db"
	shttp "segloader/http"
	"segloader/logging"
	"segloader/monitoring"
	"segloader/pipeline"
	"segloader/stats"
	"segloader/transforms"
)

func main() {
	configPath := flag.String("config", "config.yaml", "loader config (.yaml or .toml)")
	seed := flag.Int64("seed", 0, "augmentation seed; 0 picks one per dataset")
	listTransforms := flag.Bool("transforms", false, "print the registered transform names and exit")
	flag.Parse()

	if *listTransforms {
		for _, name := range transforms.Names() {
			fmt.Println(name)
		}
		return
	}

	// 1. Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, *seed, logger); err != nil {
		logger.Fatal("segloader failed", zap.Error(err))
	}
}

func run(cfg *config.Config, seed int64, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Stats cache, persisted when a path is configured
	var backing stats.Cache
	if cfg.StatsCache.Path != "" {
		store, err := db.NewStatsStore(db.StoreConfig{DBPath: cfg.StatsCache.Path, EnableWAL: true}, logger)
		if err != nil {
			return err
		}
		defer store.Close()
		backing = store
		logger.Info("Stats cache initialized", zap.String("path", cfg.StatsCache.Path))
	}
	cache, err := stats.NewLRUCache(cfg.StatsCache.Size, backing)
	if err != nil {
		return err
	}

	// 3. Metrics and event stream
	mc := monitoring.NewMetricsCollector()
	go mc.CollectRuntimeMetrics(ctx, 15*time.Second)

	opts := []datasets.Option{
		datasets.WithStatsCache(cache),
		datasets.WithMetrics(mc),
	}
	if seed != 0 {
		opts = append(opts, datasets.WithSeed(seed))
	}

	loader := pipeline.NewLoader(pipeline.LoaderConfig{
		Watch:    cfg.Watch.Enabled,
		Debounce: time.Duration(cfg.Watch.DebounceMs) * time.Millisecond,
	}, cfg.Loaders, logger, opts...)
	loader.OnBuild(func(ev pipeline.Event) { logSummary(logger, loader, ev) })

	var server *shttp.Server
	if cfg.Metrics.Listen != "" {
		hub := monitoring.NewHub(logger)
		go hub.Run()
		defer hub.Stop()
		go hub.PublishSnapshots(ctx, mc, time.Duration(cfg.Metrics.SnapshotIntervalMs)*time.Millisecond)
		loader.OnBuild(func(ev pipeline.Event) {
			if err := hub.Publish(monitoring.CollectionBuilt, ev); err != nil {
				logger.Warn("publish build event", zap.Error(err))
			}
		})

		server = shttp.NewServer(shttp.ServerConfig{
			Addr:           cfg.Metrics.Listen,
			AllowedOrigins: cfg.Metrics.AllowedOrigins,
		}, mc, hub, loader, logger)
		go func() {
			if err := server.Start(); err != nil {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
	}

	// 4. Build every configured phase
	if err := loader.Start(); err != nil {
		return err
	}

	if cfg.Watch.Enabled || server != nil {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info("Shutting down...")
	}

	if server != nil {
		if err := server.Stop(); err != nil {
			logger.Warn("server forced to shutdown", zap.Error(err))
		}
	}
	return loader.Stop()
}

func logSummary(logger *zap.Logger, loader *pipeline.Loader, ev pipeline.Event) {
	coll := loader.Current(ev.Phase)
	if coll == nil {
		return
	}
	var bytes uint64
	for _, ds := range coll.Datasets() {
		if info, err := os.Stat(ds.FilePath()); err == nil {
			bytes += uint64(info.Size())
		}
	}
	logger.Sugar().Infof("%s set: %s samples from %d files (%s on disk)",
		ev.Phase, humanize.Comma(int64(ev.Samples)), ev.Datasets, humanize.Bytes(bytes))
}
