package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/seclayer/urlfilter/internal/urlfilter/common/clock"
	"github.com/seclayer/urlfilter/internal/urlfilter/common/log"
	"github.com/seclayer/urlfilter/internal/urlfilter/config"
	"github.com/seclayer/urlfilter/internal/urlfilter/gateways/httpapi"
	"github.com/seclayer/urlfilter/internal/urlfilter/repos/shardcache"
	"github.com/seclayer/urlfilter/internal/urlfilter/repos/shardcache/bolt"
	"github.com/seclayer/urlfilter/internal/urlfilter/repos/shardcache/memcache"
	"github.com/seclayer/urlfilter/internal/urlfilter/services/admin"
	"github.com/seclayer/urlfilter/internal/urlfilter/services/classifier"
)

const (
	version = "0.1.0-dev"
	appName = "urlfilterd"
)

// Application holds the wired components of the URL filter service.
type Application struct {
	config *config.AppConfig
	shards *shardcache.Manager
	server *httpapi.Server
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	if err := log.Configure(cfg.Env, cfg.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "Logging configuration error: %v\n", err)
		os.Exit(1)
	}

	log.Info(map[string]any{
		"app":         appName,
		"version":     version,
		"env":         cfg.Env,
		"log_level":   cfg.LogLevel,
		"listen_addr": cfg.ListenAddr,
		"backend":     cfg.Backend,
	}, "Starting URL filter service")

	app, err := buildApplication(cfg)
	if err != nil {
		log.Fatal(map[string]any{"error": err.Error()}, "Failed to build application")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info(map[string]any{"signal": sig.String()}, "Shutdown signal received")
		cancel()
	}()

	if err := app.Run(ctx); err != nil {
		log.Fatal(map[string]any{"error": err.Error()}, "Server failed")
	}

	log.Info(nil, "URL filter service stopped gracefully")
}

// buildApplication constructs all components and wires them together.
func buildApplication(cfg *config.AppConfig) (*Application, error) {
	logger := log.GetLogger()
	clk := clock.RealClock{}

	store, err := buildStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build shard store: %w", err)
	}

	shards, err := shardcache.New(shardcache.Options{
		Store:       store,
		Clock:       clk,
		Logger:      logger,
		Retries:     cfg.StoreRetries,
		Backoff:     time.Duration(cfg.RetryBackoffMS) * time.Millisecond,
		BloomSize:   cfg.BloomSize,
		BloomFPRate: cfg.BloomFPRate,
		StaleWindow: time.Duration(cfg.StaleWindowSeconds) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build shard cache: %w", err)
	}

	classifierService := classifier.New(classifier.Options{
		Shards:               shards,
		Logger:               logger,
		MaxQueryCost:         cfg.MaxQueryCost,
		FailOpenOnStoreError: cfg.FailOpen,
	})

	adminService := admin.New(admin.Options{
		Shards: shards,
		Logger: logger,
	})

	server := httpapi.New(httpapi.Options{
		Addr:       cfg.ListenAddr,
		Classifier: classifierService,
		Admin:      adminService,
		Logger:     logger,
	})

	return &Application{config: cfg, shards: shards, server: server}, nil
}

// buildStore selects the backend strategy: memory expires natively via
// TTL, bolt persists and relies on the purge sweep.
func buildStore(cfg *config.AppConfig) (shardcache.Store, error) {
	switch cfg.Backend {
	case "memory":
		return memcache.New(cfg.CacheSize, time.Duration(cfg.ShardTTLSeconds)*time.Second), nil
	case "bolt":
		return bolt.New(cfg.BoltPath)
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// Run starts the purge schedule and serves HTTP until ctx is cancelled.
func (a *Application) Run(ctx context.Context) error {
	if err := a.shards.StartPurge(a.config.PurgeSpec); err != nil {
		return err
	}
	defer func() {
		if err := a.shards.Close(); err != nil {
			log.Error(map[string]any{"error": err.Error()}, "Shard cache close error")
		}
	}()

	return a.server.Run(ctx)
}
