// Package dataset reads flow tables from CSV and writes prediction results back out.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"os"
	"strconv"
	"strings"

	"flow-anomaly/internal/features"
	"flow-anomaly/internal/ml"

	"github.com/rs/zerolog/log"
)

// ReadCSV loads every row of path as a raw record. Column names are kept as written; the
// pipeline canonicalizes them.
func ReadCSV(path string) ([]features.Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	records, err := Read(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	log.Info().
		Str("file", path).
		Int("rows", len(records)).
		Msg("CSV data loaded successfully")
	return records, nil
}

// Read parses a CSV table with a header row. Rows with a different number of fields than the
// header are an error.
func Read(r io.Reader) ([]features.Record, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("empty CSV: no header row")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	var records []features.Record
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV row: %w", err)
		}

		rec := make(features.Record, len(header))
		for i, name := range header {
			rec[i] = features.Field{Name: name, Value: features.ParseValue(row[i])}
		}
		records = append(records, rec)
	}
	return records, nil
}

// SplitLabels removes labelColumn from every record and maps its value to 0 (normal) or 1
// (anomalous). Numeric labels are 1 when non-zero; text labels are 0 when they match one of
// normalLabels case-insensitively.
func SplitLabels(records []features.Record, labelColumn string, normalLabels []string) ([]features.Record, []int, error) {
	want := features.CanonicalName(labelColumn)
	normal := make(map[string]struct{}, len(normalLabels))
	for _, l := range normalLabels {
		normal[strings.ToLower(strings.TrimSpace(l))] = struct{}{}
	}

	out := make([]features.Record, len(records))
	labels := make([]int, len(records))
	for i, rec := range records {
		found := false
		stripped := make(features.Record, 0, len(rec))
		for _, f := range rec {
			if features.CanonicalName(f.Name) != want {
				stripped = append(stripped, f)
				continue
			}
			if found {
				return nil, nil, fmt.Errorf("row %d: duplicate label column %q", i, labelColumn)
			}
			found = true
			label, err := labelOf(f.Value, normal)
			if err != nil {
				return nil, nil, fmt.Errorf("row %d: %w", i, err)
			}
			labels[i] = label
		}
		if !found {
			return nil, nil, fmt.Errorf("row %d: label column %q not found", i, labelColumn)
		}
		out[i] = stripped
	}
	return out, labels, nil
}

func labelOf(v features.Value, normal map[string]struct{}) (int, error) {
	switch v.Kind {
	case features.Number:
		if math.IsNaN(v.Num) {
			return 0, errors.New("label is NaN")
		}
		if v.Num != 0 {
			return 1, nil
		}
		return 0, nil
	case features.Text:
		if _, ok := normal[strings.ToLower(strings.TrimSpace(v.Str))]; ok {
			return 0, nil
		}
		return 1, nil
	default:
		return 0, errors.New("label is missing")
	}
}

// WriteResults writes one prediction,anomaly_score row per prediction.
func WriteResults(w io.Writer, preds []ml.Prediction) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"prediction", "anomaly_score"}); err != nil {
		return err
	}
	for _, p := range preds {
		row := []string{strconv.Itoa(p.Label), strconv.FormatFloat(p.Score, 'f', -1, 64)}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Split shuffles records with a seeded source and holds out ceil(testFraction*n) of them as the
// test set. The same seed always yields the same split. Records are not copied.
func Split(records []features.Record, testFraction float64, seed int64) (train, test []features.Record, err error) {
	if testFraction <= 0 || testFraction >= 1 {
		return nil, nil, fmt.Errorf("test fraction must be in (0, 1), got %g", testFraction)
	}
	n := len(records)
	nTest := int(math.Ceil(testFraction * float64(n)))
	if nTest < 1 || n-nTest < 1 {
		return nil, nil, fmt.Errorf("cannot split %d rows with test fraction %g", n, testFraction)
	}

	perm := rand.New(rand.NewSource(seed)).Perm(n)
	test = make([]features.Record, 0, nTest)
	train = make([]features.Record, 0, n-nTest)
	for i, idx := range perm {
		if i < nTest {
			test = append(test, records[idx])
		} else {
			train = append(train, records[idx])
		}
	}
	return train, test, nil
}

// WriteCSV writes records under the header of the first record. Missing cells are written
// empty and numbers in their shortest exact form, so Read gives back the same values.
func WriteCSV(w io.Writer, records []features.Record) error {
	if len(records) == 0 {
		return errors.New("no records to write")
	}
	header := records[0].Names()
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	row := make([]string, len(header))
	for i, rec := range records {
		if len(rec) != len(header) {
			return fmt.Errorf("row %d: %d fields, header has %d", i, len(rec), len(header))
		}
		for j, f := range rec {
			if f.Name != header[j] {
				return fmt.Errorf("row %d: column %q where header has %q", i, f.Name, header[j])
			}
			row[j] = f.Value.Category()
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
