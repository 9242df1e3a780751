package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"flow-anomaly/internal/cfg"
	"flow-anomaly/internal/dataset"
	"flow-anomaly/internal/features"

	"github.com/rs/zerolog/log"
)

func main() {
	var (
		inputPath = flag.String("input", "", "Path to raw labelled CSV (required)")
		outputDir = flag.String("output", "", "Directory for train.csv and test.csv (required)")
		testSize  = flag.Float64("test-size", 0.2, "Fraction of rows held out for testing")
		seed      = flag.Int64("seed", 42, "Shuffle seed")
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

	if *inputPath == "" || *outputDir == "" {
		flag.Usage()
		os.Exit(2)
	}

	trainPath, testPath, err := splitFile(*inputPath, *outputDir, *testSize, *seed)
	if err != nil {
		log.Fatal().Err(err).Str("input", *inputPath).Msg("Failed to split dataset")
	}
	log.Info().Str("train", trainPath).Str("test", testPath).Msg("Dataset split saved")
}

// splitFile shuffles the rows of input and writes train.csv and test.csv under outputDir.
// Cells are copied as read; fitting happens later on the training split only.
func splitFile(input, outputDir string, testSize float64, seed int64) (string, string, error) {
	records, err := dataset.ReadCSV(input)
	if err != nil {
		return "", "", err
	}
	train, test, err := dataset.Split(records, testSize, seed)
	if err != nil {
		return "", "", err
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", "", fmt.Errorf("create output directory: %w", err)
	}
	trainPath := filepath.Join(outputDir, "train.csv")
	testPath := filepath.Join(outputDir, "test.csv")
	if err := writeFile(trainPath, train); err != nil {
		return "", "", err
	}
	if err := writeFile(testPath, test); err != nil {
		return "", "", err
	}

	log.Info().
		Int("rows", len(records)).
		Int("train_rows", len(train)).
		Int("test_rows", len(test)).
		Float64("test_size", testSize).
		Int64("seed", seed).
		Msg("Split rows into train and test")
	return trainPath, testPath, nil
}

func writeFile(path string, records []features.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := dataset.WriteCSV(f, records); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}
