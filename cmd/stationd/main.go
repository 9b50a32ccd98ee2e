package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/Soochol/F2X-NeuroHub-sub000/internal/api"
	"github.com/Soochol/F2X-NeuroHub-sub000/internal/clock"
	"github.com/Soochol/F2X-NeuroHub-sub000/internal/config"
	"github.com/Soochol/F2X-NeuroHub-sub000/internal/connection"
	"github.com/Soochol/F2X-NeuroHub-sub000/internal/poller"
	"github.com/Soochol/F2X-NeuroHub-sub000/internal/reconciler"
	"github.com/Soochol/F2X-NeuroHub-sub000/internal/store"
	"github.com/Soochol/F2X-NeuroHub-sub000/internal/subscription"
	"github.com/Soochol/F2X-NeuroHub-sub000/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/stationd.local.yaml", "path to config file")
	subscribe := flag.String("subscribe", "", "comma-separated batch ids to watch (empty = all batches from the initial snapshot)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.Log.Level),
	}))
	slog.SetDefault(logger)

	sessionID := uuid.New().String()
	logger.Info("starting stationd",
		"version", version.Version,
		"commit", version.Commit,
		"session_id", sessionID,
		"config", *configPath,
	)

	logger.Info("configuration loaded",
		"rest_url", cfg.Station.RestURL,
		"ws_url", cfg.Station.WSURL,
		"poll_interval", cfg.Polling.Interval,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// REST snapshot client
	apiClient := api.NewClient(
		cfg.Station.RestURL,
		api.WithLogger(logger),
		api.WithTimeout(cfg.Station.Timeout),
		api.WithRetries(cfg.Station.MaxRetries, time.Second),
	)

	// Batch store
	st := store.New(logger)

	// Push channel: transport, supervisor, subscription registry
	clientCfg := connection.ClientConfig{
		URL:          cfg.Station.WSURL,
		PingTimeout:  cfg.Connection.PingTimeout,
		WriteTimeout: cfg.Connection.WriteTimeout,
		BufferSize:   cfg.Connection.BufferSize,
	}
	supCfg := connection.SupervisorConfig{
		ReconnectBaseDelay: cfg.Connection.ReconnectBaseDelay,
		ReconnectMaxDelay:  cfg.Connection.ReconnectMaxDelay,
	}
	dial := func() connection.Transport {
		return connection.NewClient(clientCfg, logger)
	}
	supervisor := connection.NewSupervisor(supCfg, dial, clock.System(), logger)

	registry := subscription.NewRegistry(supervisor, logger)
	supervisor.SetAnnouncer(registry)

	rec := reconciler.New(st, reconciler.NotifierFunc(func(batchID, code, message string) {
		logger.Warn("station reported error",
			"batch_id", batchID,
			"code", code,
			"message", message,
		)
	}), logger)
	supervisor.OnMessage(rec.HandleFrame)

	// Polling fallback
	pollCfg := poller.Config{
		Interval:         cfg.Polling.Interval,
		FallbackInterval: cfg.Polling.FallbackInterval,
		GracePeriod:      cfg.Polling.GracePeriod,
		Concurrency:      cfg.Polling.Concurrency,
		Timeout:          cfg.Polling.Timeout,
	}
	fallback := poller.NewFallback(pollCfg, clock.System(), logger)
	snapshotPoller := poller.New(pollCfg, apiClient, st, registry, fallback, supervisor, logger)

	// Log store churn at debug for operators tailing the process
	changes, stopWatch := st.Watch()
	go func() {
		for ch := range changes {
			logger.Debug("store change", "batch_id", ch.BatchID, "kind", ch.Kind)
		}
	}()

	// Initial snapshot before opening the push channel so the first
	// subscribed set is known
	initCtx, initCancel := context.WithTimeout(ctx, cfg.Station.Timeout)
	batches, err := apiClient.ListBatches(initCtx)
	initCancel()
	if err != nil {
		logger.Warn("initial snapshot failed, continuing with push channel only", "error", err)
	} else {
		for _, b := range batches {
			st.MergeSnapshot(b)
		}
		logger.Info("initial snapshot loaded", "batches", len(batches))
	}

	supervisor.Connect(ctx)

	ids := watchedIDs(*subscribe, st)
	registry.Subscribe(ids)
	logger.Info("watching batches", "count", len(ids))

	if err := snapshotPoller.Start(ctx); err != nil {
		logger.Error("failed to start snapshot poller", "error", err)
		os.Exit(1)
	}

	logger.Info("stationd running", "session_id", sessionID)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := snapshotPoller.Stop(shutdownCtx); err != nil {
		logger.Warn("poller shutdown", "error", err)
	}
	fallback.Stop()
	if err := supervisor.Close(); err != nil {
		logger.Warn("supervisor shutdown", "error", err)
	}
	stopWatch()

	logger.Info("stationd stopped")
}

// watchedIDs resolves the -subscribe flag; empty means every batch the
// initial snapshot returned.
func watchedIDs(flagValue string, st *store.Store) []string {
	if flagValue == "" {
		return st.IDs()
	}
	parts := strings.Split(flagValue, ",")
	ids := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			ids = append(ids, p)
		}
	}
	return ids
}

func logLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
