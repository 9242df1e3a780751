package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"flow-anomaly/internal/cfg"
	"flow-anomaly/internal/client"
	"flow-anomaly/internal/dataset"
	"flow-anomaly/internal/ml"

	"github.com/rs/zerolog/log"
)

func main() {
	var (
		inputPath = flag.String("input", "", "CSV of flows in the serving schema (required)")
		url       = flag.String("url", "", "Service base URL (overrides config)")
		stream    = flag.Bool("stream", false, "Send all flows over one websocket connection")
		timeout   = flag.Duration("timeout", 30*time.Second, "Overall probe timeout")
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

	if *inputPath == "" {
		flag.Usage()
		os.Exit(2)
	}
	if *url != "" {
		config.ServiceURL = *url
	}

	records, err := dataset.ReadCSV(*inputPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load input")
	}
	reqs := make([]ml.FlowRequest, len(records))
	for i, rec := range records {
		if reqs[i], err = client.RequestFromRecord(rec); err != nil {
			log.Fatal().Err(err).Int("row", i).Msg("Row does not match the serving schema")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	c := client.NewREST(config.ServiceURL, config.RequestTimeout)
	if err := c.Health(ctx); err != nil {
		log.Fatal().Err(err).Str("url", config.ServiceURL).Msg("Service is not healthy")
	}

	var failures, anomalies int
	if *stream {
		replies, err := c.Stream(ctx, reqs)
		if err != nil {
			log.Fatal().Err(err).Msg("Stream failed")
		}
		for i, msg := range replies {
			if msg.Error != nil {
				failures++
				log.Error().Int("row", i).Str("request_id", msg.RequestID).Str("stage", msg.Error.Stage).Msg(msg.Error.Error)
				continue
			}
			anomalies += msg.Result.Prediction
			fmt.Printf("%d,%d,%v\n", i, msg.Result.Prediction, msg.Result.AnomalyScore)
		}
	} else {
		for i, req := range reqs {
			resp, err := c.Predict(ctx, req)
			if err != nil {
				failures++
				log.Error().Err(err).Int("row", i).Msg("Prediction failed")
				continue
			}
			anomalies += resp.Prediction
			fmt.Printf("%d,%d,%v\n", i, resp.Prediction, resp.AnomalyScore)
		}
	}

	log.Info().
		Int("rows", len(reqs)).
		Int("anomalies", anomalies).
		Int("failures", failures).
		Bool("stream", *stream).
		Msg("Probe complete")
	if failures > 0 {
		os.Exit(1)
	}
}
