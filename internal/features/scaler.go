package features

import (
	"encoding/json"
	"fmt"
	"math"
)

// Epsilon is the smallest standard deviation treated as real variance.
const Epsilon = 1e-12

// ColumnStats holds the training-time moments of one numeric column.
type ColumnStats struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
}

// ZeroVariance reports whether the column was constant over the fit set.
func (c ColumnStats) ZeroVariance() bool { return c.Std <= Epsilon }

// Apply standardizes v with the stored moments. Constant columns carry no information the
// classifier saw during training and always map to 0.
func (c ColumnStats) Apply(v float64) float64 {
	if c.ZeroVariance() {
		return 0
	}
	return (v - c.Mean) / math.Max(c.Std, Epsilon)
}

// Scaler performs mean/variance normalization per numeric column using statistics computed
// once by Fit.
type Scaler struct {
	stats  map[string]ColumnStats
	frozen bool
}

func NewScaler() *Scaler {
	return &Scaler{stats: make(map[string]ColumnStats)}
}

// Fit computes population mean and standard deviation for each column over records, which must
// be sanitized and carry a numeric value for every listed column.
func (s *Scaler) Fit(records []Record, columns []string) error {
	if s.frozen {
		return &AlreadyFittedError{Component: "scaler"}
	}
	if len(records) == 0 {
		return &SchemaError{Reason: "cannot fit scaler on an empty training set"}
	}
	n := float64(len(records))
	for _, col := range columns {
		values := make([]float64, len(records))
		for i, rec := range records {
			v, ok := rec.Get(col)
			if !ok {
				return &SchemaMismatchError{Column: col, Reason: fmt.Sprintf("missing in training row %d", i)}
			}
			if v.Kind != Number {
				return &SchemaMismatchError{Column: col, Reason: fmt.Sprintf("non-numeric value in training row %d", i)}
			}
			values[i] = v.Num
		}

		var sum float64
		for _, v := range values {
			sum += v
		}
		mean := sum / n

		var sq float64
		for _, v := range values {
			d := v - mean
			sq += d * d
		}
		s.stats[col] = ColumnStats{Mean: mean, Std: math.Sqrt(sq / n)}
	}
	s.frozen = true
	return nil
}

func (s *Scaler) Frozen() bool { return s.frozen }

// Stats returns the stored moments for column.
func (s *Scaler) Stats(column string) (ColumnStats, bool) {
	st, ok := s.stats[column]
	return st, ok
}

// Scale standardizes every fitted numeric column present in rec. Values that are not numbers
// are left for the assembler to reject.
func (s *Scaler) Scale(rec Record) Record {
	out := rec.clone()
	for i, f := range out {
		st, ok := s.stats[f.Name]
		if !ok || f.Value.Kind != Number {
			continue
		}
		out[i].Value = Num(st.Apply(f.Value.Num))
	}
	return out
}

func (s *Scaler) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.stats)
}

// UnmarshalJSON restores fitted parameters and freezes the scaler.
func (s *Scaler) UnmarshalJSON(data []byte) error {
	var stats map[string]ColumnStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return fmt.Errorf("decode scaling parameters: %w", err)
	}
	for col, st := range stats {
		if math.IsNaN(st.Mean) || math.IsInf(st.Mean, 0) || math.IsNaN(st.Std) || math.IsInf(st.Std, 0) || st.Std < 0 {
			return fmt.Errorf("decode scaling parameters: invalid moments for column %q", col)
		}
	}
	if stats == nil {
		stats = make(map[string]ColumnStats)
	}
	s.stats = stats
	s.frozen = true
	return nil
}
