package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"flow-anomaly/internal/cfg"
	"flow-anomaly/internal/metrics"
	"flow-anomaly/internal/ml"
	"flow-anomaly/internal/storage"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

func main() {
	var (
		port      = flag.Int("port", 0, "Listen port (overrides config)")
		bundleKey = flag.String("bundle", "", "Bundle key (default: active, else latest)")
		dataPath  = flag.String("data", "", "Bundle store directory (overrides config)")
		logLevel  = flag.String("log-level", "", "Log level: debug, info, warn, error")
	)
	flag.Parse()

	config, err := cfg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		config.LogLevel = *logLevel
	}
	cfg.SetupLogging(config.LogLevel, config.LogFormat)

	if *port != 0 {
		config.ServerPort = *port
	}
	if *dataPath != "" {
		config.DataPath = *dataPath
	}
	if *bundleKey != "" {
		config.BundleKey = *bundleKey
	}

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	model := loadModel(config)

	m := metrics.New()
	mw := metrics.NewWrapper(m)
	drift := ml.NewDriftMonitor(model.Artifact, config.DriftConfig(), mw)
	predictor := ml.NewPredictor(model, mw, drift)

	server := ml.NewModelServer(predictor, ml.ServerConfig{
		Port:           config.ServerPort,
		RequestTimeout: config.RequestTimeout,
		MetricsHandler: promhttp.Handler(),
		Metrics:        mw,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received")
	case err := <-errCh:
		log.Fatal().Err(err).Msg("Model server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}
	log.Info().Msg("Model server stopped")
}

// loadModel opens the store read-only and releases it once the bundle is in memory, so
// training can write new bundles while the service runs.
func loadModel(config cfg.Settings) *ml.Model {
	store, err := storage.NewReadOnly(config.DataPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", config.DataPath).Msg("Failed to open bundle store")
	}
	defer store.Close()

	model, err := ml.LoadModel(store, config.BundleKey)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load model bundle")
	}
	return model
}
