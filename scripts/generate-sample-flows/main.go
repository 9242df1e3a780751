package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// servingColumns match the fields of a /predict request.
var servingColumns = []string{"duration", "protocol", "src_port", "dst_port", "packet_count", "byte_count"}

type flow struct {
	duration    float64
	protocol    int
	srcPort     int
	dstPort     int
	packetCount int
	byteCount   int
	label       string
}

func main() {
	var (
		rows        = flag.Int("rows", 5000, "Number of flows to generate")
		anomalyRate = flag.Float64("anomaly-rate", 0.15, "Fraction of anomalous flows")
		seed        = flag.Int64("seed", 42, "Random seed")
		outputPath  = flag.String("output", "flows.csv", "Output CSV path")
		serving     = flag.Bool("serving", false, "Write only the serving columns, without ids or labels")
	)
	flag.Parse()
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	file, err := os.Create(*outputPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create output file")
	}

	rng := rand.New(rand.NewSource(*seed))
	anomalies, err := writeFlows(file, rng, *rows, *anomalyRate, *serving)
	if err != nil {
		file.Close()
		log.Fatal().Err(err).Msg("Failed to write flows")
	}
	if err := file.Close(); err != nil {
		log.Fatal().Err(err).Msg("Failed to close output file")
	}

	log.Info().
		Str("file", *outputPath).
		Int("rows", *rows).
		Int("anomalies", anomalies).
		Bool("serving", *serving).
		Msg("Generated sample flows")
}

// writeFlows writes rows synthetic flows as CSV and returns how many are anomalous. Labelled
// output adds id, timestamp and label columns around the serving columns.
func writeFlows(out io.Writer, rng *rand.Rand, rows int, anomalyRate float64, serving bool) (int, error) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	w := csv.NewWriter(out)
	if serving {
		w.Write(servingColumns)
	} else {
		header := append([]string{"Flow ID", "Timestamp"}, servingColumns...)
		w.Write(append(header, "Label"))
	}

	anomalies := 0
	for i := 0; i < rows; i++ {
		f := normalFlow(rng)
		if rng.Float64() < anomalyRate {
			f = anomalousFlow(rng)
			anomalies++
		}

		duration := strconv.FormatFloat(f.duration, 'f', 4, 64)
		cells := []string{
			duration,
			strconv.Itoa(f.protocol),
			strconv.Itoa(f.srcPort),
			strconv.Itoa(f.dstPort),
			strconv.Itoa(f.packetCount),
			strconv.Itoa(f.byteCount),
		}
		if serving {
			w.Write(cells)
			continue
		}

		// real captures carry gaps and overflowed rates
		switch r := rng.Float64(); {
		case r < 0.01:
			cells[0] = ""
		case r < 0.015:
			cells[0] = "Infinity"
		}
		row := append([]string{
			fmt.Sprintf("flow-%06d", i),
			start.Add(time.Duration(i) * time.Second).Format("2006-01-02 15:04:05"),
		}, cells...)
		w.Write(append(row, f.label))
	}
	w.Flush()
	return anomalies, w.Error()
}

func normalFlow(rng *rand.Rand) flow {
	dst := []int{80, 443, 53, 22}[rng.Intn(4)]
	proto := 6
	if dst == 53 {
		proto = 17
	}
	packets := 2 + rng.Intn(40)
	return flow{
		duration:    0.01 + rng.ExpFloat64()*2,
		protocol:    proto,
		srcPort:     32768 + rng.Intn(28232),
		dstPort:     dst,
		packetCount: packets,
		byteCount:   packets * (60 + rng.Intn(1400)),
		label:       "BENIGN",
	}
}

func anomalousFlow(rng *rand.Rand) flow {
	if rng.Float64() < 0.5 {
		// volumetric flood
		packets := 2000 + rng.Intn(20000)
		return flow{
			duration:    rng.Float64() * 0.5,
			protocol:    []int{17, 1}[rng.Intn(2)],
			srcPort:     1024 + rng.Intn(64511),
			dstPort:     []int{80, 53, 123}[rng.Intn(3)],
			packetCount: packets,
			byteCount:   packets * (40 + rng.Intn(100)),
			label:       "DDoS",
		}
	}
	// port scan: tiny flows to unusual ports
	return flow{
		duration:    rng.Float64() * 0.01,
		protocol:    6,
		srcPort:     40000 + rng.Intn(1000),
		dstPort:     1 + rng.Intn(1024),
		packetCount: 1 + rng.Intn(2),
		byteCount:   40 + rng.Intn(40),
		label:       "PortScan",
	}
}
