package ml

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
)

const KindLogistic = "logistic"

// LogisticConfig holds training hyperparameters.
type LogisticConfig struct {
	LearningRate   float64 `json:"learning_rate"`
	Epochs         int     `json:"epochs"`
	BatchSize      int     `json:"batch_size"`
	PositiveWeight float64 `json:"positive_weight"` // loss weight of label 1 rows, for imbalanced data
	L2             float64 `json:"l2"`
	Seed           int64   `json:"seed"`
	Threshold      float64 `json:"threshold"`
}

// DefaultLogisticConfig mirrors the settings the service has been trained with.
func DefaultLogisticConfig() LogisticConfig {
	return LogisticConfig{
		LearningRate:   0.1,
		Epochs:         100,
		BatchSize:      64,
		PositiveWeight: 5,
		L2:             1e-4,
		Seed:           42,
		Threshold:      0.5,
	}
}

// LogisticRegression is a binary logistic model trained with mini-batch gradient descent.
// Training is deterministic for a given seed and input order.
type LogisticRegression struct {
	Weights []float64      `json:"weights"`
	Bias    float64        `json:"bias"`
	Config  LogisticConfig `json:"config"`
}

func NewLogisticRegression(cfg LogisticConfig) *LogisticRegression {
	return &LogisticRegression{Config: cfg}
}

func (m *LogisticRegression) Kind() string { return KindLogistic }

// Fit trains from scratch on X, y.
func (m *LogisticRegression) Fit(X [][]float64, y []int) error {
	if len(X) == 0 {
		return errors.New("logistic: empty training set")
	}
	if len(X) != len(y) {
		return fmt.Errorf("logistic: %d rows but %d labels", len(X), len(y))
	}
	nFeatures := len(X[0])
	for i, row := range X {
		if len(row) != nFeatures {
			return fmt.Errorf("logistic: row %d has %d features, want %d", i, len(row), nFeatures)
		}
		if y[i] != 0 && y[i] != 1 {
			return fmt.Errorf("logistic: label %d at row %d is not 0 or 1", y[i], i)
		}
	}

	cfg := m.Config
	if cfg.LearningRate <= 0 || cfg.Epochs <= 0 {
		return fmt.Errorf("logistic: learning rate and epochs must be positive")
	}
	batch := cfg.BatchSize
	if batch <= 0 || batch > len(X) {
		batch = len(X)
	}
	posWeight := cfg.PositiveWeight
	if posWeight <= 0 {
		posWeight = 1
	}

	w := make([]float64, nFeatures)
	var b float64
	gW := make([]float64, nFeatures)
	rng := rand.New(rand.NewSource(cfg.Seed))

	for ep := 0; ep < cfg.Epochs; ep++ {
		order := rng.Perm(len(X))
		for start := 0; start < len(order); start += batch {
			end := min(start+batch, len(order))
			for j := range gW {
				gW[j] = 0
			}
			var gb, total float64
			for _, idx := range order[start:end] {
				row := X[idx]
				p := sigmoid(dot(w, row) + b)
				weight := 1.0
				if y[idx] == 1 {
					weight = posWeight
				}
				d := weight * (p - float64(y[idx]))
				for j, x := range row {
					gW[j] += d * x
				}
				gb += d
				total += weight
			}
			for j := range w {
				w[j] -= cfg.LearningRate * (gW[j]/total + cfg.L2*w[j])
			}
			b -= cfg.LearningRate * gb / total
		}
	}

	m.Weights = w
	m.Bias = b
	return nil
}

// PredictProba returns P(label=1) per row.
func (m *LogisticRegression) PredictProba(X [][]float64) ([]float64, error) {
	if m.Weights == nil {
		return nil, errors.New("logistic: model is not fitted")
	}
	out := make([]float64, len(X))
	for i, row := range X {
		if len(row) != len(m.Weights) {
			return nil, fmt.Errorf("logistic: row %d has %d features, model expects %d", i, len(row), len(m.Weights))
		}
		out[i] = sigmoid(dot(m.Weights, row) + m.Bias)
	}
	return out, nil
}

// Predict thresholds PredictProba.
func (m *LogisticRegression) Predict(X [][]float64) ([]int, error) {
	proba, err := m.PredictProba(X)
	if err != nil {
		return nil, err
	}
	threshold := m.Config.Threshold
	if threshold <= 0 || threshold >= 1 {
		threshold = 0.5
	}
	out := make([]int, len(proba))
	for i, p := range proba {
		if p >= threshold {
			out[i] = 1
		}
	}
	return out, nil
}

func dot(w, x []float64) float64 {
	var s float64
	for i := range w {
		s += w[i] * x[i]
	}
	return s
}

// sigmoid avoids overflow in exp for large |z|.
func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}
