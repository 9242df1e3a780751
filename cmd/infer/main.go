package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"flow-anomaly/internal/cfg"
	"flow-anomaly/internal/dataset"
	"flow-anomaly/internal/ml"
	"flow-anomaly/internal/storage"

	"github.com/rs/zerolog/log"
)

func main() {
	var (
		inputPath  = flag.String("input", "", "Path to input CSV (required)")
		bundleKey  = flag.String("bundle", "", "Bundle key (default: active, else latest)")
		outputPath = flag.String("output", "", "Write results CSV here instead of stdout")
		dataPath   = flag.String("data", "", "Bundle store directory (overrides config)")
		logLevel   = flag.String("log-level", "", "Log level: debug, info, warn, error")
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

	if *inputPath == "" {
		flag.Usage()
		os.Exit(2)
	}
	if *dataPath != "" {
		config.DataPath = *dataPath
	}
	if *bundleKey != "" {
		config.BundleKey = *bundleKey
	}

	model := loadModel(config)

	log.Info().Str("file", *inputPath).Msg("Preprocessing input data")
	records, err := dataset.ReadCSV(*inputPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load input")
	}

	log.Info().Msg("Generating predictions...")
	predictor := ml.NewPredictor(model, nil, nil)
	preds, err := predictor.PredictBatch(context.Background(), records)
	if err != nil {
		log.Fatal().Err(err).Msg("Batch inference failed")
	}

	for i, p := range preds[:min(5, len(preds))] {
		log.Info().Int("row", i).Int("prediction", p.Label).Float64("anomaly_score", p.Score).Msg("Inference result")
	}

	if err := writeResults(*outputPath, preds); err != nil {
		log.Fatal().Err(err).Str("output", *outputPath).Msg("Failed to write results")
	}

	anomalies := 0
	for _, p := range preds {
		anomalies += p.Label
	}
	log.Info().
		Int("rows", len(preds)).
		Int("anomalies", anomalies).
		Str("bundle", model.Key).
		Msg("Inference complete")
}

// loadModel opens the store read-only and releases it once the bundle is in memory.
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

// writeResults writes preds to path, or to stdout when path is empty. The file is closed before
// returning so a failed flush is reported.
func writeResults(path string, preds []ml.Prediction) error {
	if path == "" {
		return dataset.WriteResults(os.Stdout, preds)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	if err := dataset.WriteResults(f, preds); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close output file: %w", err)
	}
	return nil
}
