package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"flow-anomaly/internal/features"

	"github.com/google/uuid"
)

// Bundle format versions this build can read.
const (
	BundleFormatVersion    = 1
	MinBundleFormatVersion = 1
)

// ModelMetrics contains held-out evaluation results recorded at training time.
type ModelMetrics struct {
	AUCScore        float64 `json:"auc_score"`
	F1Score         float64 `json:"f1_score"`
	Precision       float64 `json:"precision"`
	Recall          float64 `json:"recall"`
	Accuracy        float64 `json:"accuracy"`
	TrainingSamples int     `json:"training_samples"`
	TestSamples     int     `json:"test_samples"`
}

// Bundle is the unit of persistence: the fitted feature pipeline plus the trained classifier's
// own serialized state. A saved bundle is never modified.
type Bundle struct {
	Key            string             `json:"key"`
	FormatVersion  int                `json:"format_version"`
	CreatedAt      time.Time          `json:"created_at"`
	Artifact       *features.Artifact `json:"artifact"`
	ClassifierKind string             `json:"classifier_kind"`
	Classifier     json.RawMessage    `json:"classifier"`
	Metrics        ModelMetrics       `json:"metrics"`
}

// Version is the listing entry for a stored bundle.
type Version struct {
	Key       string       `json:"key"`
	CreatedAt time.Time    `json:"created_at"`
	Metrics   ModelMetrics `json:"metrics"`
	IsActive  bool         `json:"is_active"`
}

// keyTimeLayout keeps fixed-width nanoseconds so keys created within one second still sort by time.
const keyTimeLayout = "20060102-150405.000000000"

// NewKey builds a bundle key that sorts by creation time.
func NewKey(at time.Time) string {
	return at.UTC().Format(keyTimeLayout) + "-" + uuid.NewString()[:8]
}

func encodeBundle(b *Bundle) ([]byte, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("marshal bundle: %w", err)
	}
	return data, nil
}

// decodeBundle checks the bundle format before interpreting the rest of the document; the
// artifact then checks its own format version while decoding.
func decodeBundle(data []byte) (*Bundle, error) {
	var head struct {
		FormatVersion int `json:"format_version"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("unmarshal bundle header: %w", err)
	}
	if head.FormatVersion < MinBundleFormatVersion || head.FormatVersion > BundleFormatVersion {
		return nil, &features.IncompatibleVersionError{
			Got: head.FormatVersion,
			Min: MinBundleFormatVersion,
			Max: BundleFormatVersion,
		}
	}

	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("unmarshal bundle: %w", err)
	}
	if b.Artifact == nil {
		return nil, fmt.Errorf("unmarshal bundle: missing artifact")
	}
	return &b, nil
}
