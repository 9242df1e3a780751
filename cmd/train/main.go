package main

import (
	"flag"
	"fmt"
	"os"

	"flow-anomaly/internal/cfg"
	"flow-anomaly/internal/dataset"
	"flow-anomaly/internal/features"
	"flow-anomaly/internal/ml"
	"flow-anomaly/internal/storage"

	"github.com/rs/zerolog/log"
)

func main() {
	var (
		trainPath = flag.String("train", "", "Path to training CSV (required)")
		testPath  = flag.String("test", "", "Path to held-out test CSV (required)")
		dataPath  = flag.String("data", "", "Bundle store directory (overrides config)")
		logLevel  = flag.String("log-level", "", "Log level: debug, info, warn, error")
		activate  = flag.Bool("activate", true, "Make the new bundle the active one")
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

	if *trainPath == "" || *testPath == "" {
		flag.Usage()
		os.Exit(2)
	}
	if *dataPath != "" {
		config.DataPath = *dataPath
	}

	trainX, trainY := loadLabelled(*trainPath, config)
	testX, testY := loadLabelled(*testPath, config)

	// statistics come from the training split only
	artifact, err := features.Fit(trainX, features.FitOptions{DropColumns: config.DropColumns})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to fit feature pipeline")
	}
	schema := artifact.Schema()
	log.Info().
		Int("features", schema.Len()).
		Strs("categorical", schema.Select(features.Categorical)).
		Msg("Feature pipeline fitted")

	Xtrain, err := artifact.TransformAll(trainX)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to transform training data")
	}
	Xtest, err := artifact.TransformAll(testX)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to transform test data")
	}

	log.Info().Int("rows", len(Xtrain)).Msg("Training logistic model...")
	clf := ml.NewLogisticRegression(config.LogisticConfig())
	if err := clf.Fit(Xtrain, trainY); err != nil {
		log.Fatal().Err(err).Msg("Training failed")
	}

	log.Info().Int("rows", len(Xtest)).Msg("Evaluating model...")
	pred, err := clf.Predict(Xtest)
	if err != nil {
		log.Fatal().Err(err).Msg("Prediction on test data failed")
	}
	scores, err := clf.PredictProba(Xtest)
	if err != nil {
		log.Fatal().Err(err).Msg("Prediction on test data failed")
	}
	report, err := ml.Evaluate(testY, pred, scores)
	if err != nil {
		log.Fatal().Err(err).Msg("Evaluation failed")
	}
	if err := report.Write(os.Stdout); err != nil {
		log.Fatal().Err(err).Msg("Failed to print report")
	}

	auc, f1, precision, recall, accuracy := report.Summary()
	bundle, err := ml.NewBundle(artifact, clf, storage.ModelMetrics{
		AUCScore:        auc,
		F1Score:         f1,
		Precision:       precision,
		Recall:          recall,
		Accuracy:        accuracy,
		TrainingSamples: len(Xtrain),
		TestSamples:     len(Xtest),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build bundle")
	}

	store, err := storage.New(config.DataPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", config.DataPath).Msg("Failed to open bundle store")
	}
	defer store.Close()

	key, err := store.Save(bundle)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to save bundle")
	}
	if *activate {
		if err := store.Activate(key); err != nil {
			log.Fatal().Err(err).Str("bundle", key).Msg("Failed to activate bundle")
		}
	}

	log.Info().
		Str("bundle", key).
		Str("path", config.DataPath).
		Bool("active", *activate).
		Float64("auc", auc).
		Msg("Model bundle saved")
	fmt.Printf("[+] Bundle saved as %s\n", key)
}

func loadLabelled(path string, config cfg.Settings) ([]features.Record, []int) {
	records, err := dataset.ReadCSV(path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load data")
	}
	X, y, err := dataset.SplitLabels(records, config.LabelColumn, config.NormalLabels)
	if err != nil {
		log.Fatal().Err(err).Str("file", path).Msg("Failed to extract labels")
	}
	return X, y
}
