package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"flow-anomaly/internal/cfg"
	"flow-anomaly/internal/storage"

	"github.com/rs/zerolog/log"
)

const usage = `usage: bundles [flags] <command>

commands:
  list              list stored bundles, newest first
  activate <key>    serve <key> by default
  rollback          activate the bundle created before the active one
  export <key>      write the bundle (artifact, classifier, metrics) as JSON
`

func main() {
	var (
		dataPath   = flag.String("data", "", "Bundle store directory (overrides config)")
		outputPath = flag.String("output", "", "Export destination (default stdout)")
		logLevel   = flag.String("log-level", "", "Log level: debug, info, warn, error")
	)
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
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
	if *dataPath != "" {
		config.DataPath = *dataPath
	}

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	switch args[0] {
	case "list":
		store := open(config.DataPath, true)
		defer store.Close()
		list(store)
	case "activate":
		if len(args) != 2 {
			flag.Usage()
			os.Exit(2)
		}
		store := open(config.DataPath, false)
		defer store.Close()
		if err := store.Activate(args[1]); err != nil {
			log.Fatal().Err(err).Str("bundle", args[1]).Msg("Activate failed")
		}
		log.Info().Str("bundle", args[1]).Msg("Bundle activated")
	case "rollback":
		store := open(config.DataPath, false)
		defer store.Close()
		key, err := store.Rollback()
		if err != nil {
			log.Fatal().Err(err).Msg("Rollback failed")
		}
		log.Info().Str("bundle", key).Msg("Rolled back")
	case "export":
		if len(args) != 2 {
			flag.Usage()
			os.Exit(2)
		}
		store := open(config.DataPath, true)
		defer store.Close()
		export(store, args[1], *outputPath)
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func open(path string, readOnly bool) *storage.Store {
	var (
		store *storage.Store
		err   error
	)
	if readOnly {
		store, err = storage.NewReadOnly(path)
	} else {
		store, err = storage.New(path)
	}
	if err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("Failed to open bundle store")
	}
	return store
}

func list(store *storage.Store) {
	versions, err := store.List()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list bundles")
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tCREATED\tAUC\tF1\tTRAIN\tTEST\tACTIVE")
	for _, v := range versions {
		active := ""
		if v.IsActive {
			active = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%.4f\t%.4f\t%d\t%d\t%s\n",
			v.Key, v.CreatedAt.Format("2006-01-02 15:04:05"), v.Metrics.AUCScore, v.Metrics.F1Score,
			v.Metrics.TrainingSamples, v.Metrics.TestSamples, active)
	}
	w.Flush()
}

func export(store *storage.Store, key, outputPath string) {
	b, err := store.Load(key)
	if err != nil {
		log.Fatal().Err(err).Str("bundle", key).Msg("Failed to load bundle")
	}

	out := os.Stdout
	if outputPath != "" {
		f, err := os.Create(outputPath)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create output file")
		}
		defer f.Close()
		out = f
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(b); err != nil {
		log.Fatal().Err(err).Msg("Failed to write bundle")
	}
	log.Info().Str("bundle", key).Int("features", b.Artifact.Schema().Len()).Msg("Bundle exported")
}
