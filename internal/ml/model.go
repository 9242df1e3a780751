package ml

import (
	"fmt"
	"time"

	"flow-anomaly/internal/features"
	"flow-anomaly/internal/storage"

	"github.com/rs/zerolog/log"
)

// Model is a loaded bundle: the fitted pipeline and the classifier trained on its output.
type Model struct {
	Key        string
	CreatedAt  time.Time
	Artifact   *features.Artifact
	Classifier Classifier
	Metrics    storage.ModelMetrics
}

// BundleLoader is satisfied by *storage.Store.
type BundleLoader interface {
	Resolve(key string) (string, error)
	Load(key string) (*storage.Bundle, error)
}

// NewBundle packages a fitted artifact and classifier for persistence.
func NewBundle(a *features.Artifact, clf Classifier, metrics storage.ModelMetrics) (*storage.Bundle, error) {
	kind, state, err := EncodeClassifier(clf)
	if err != nil {
		return nil, err
	}
	return &storage.Bundle{
		FormatVersion:  storage.BundleFormatVersion,
		CreatedAt:      time.Now().UTC(),
		Artifact:       a,
		ClassifierKind: kind,
		Classifier:     state,
		Metrics:        metrics,
	}, nil
}

// FromBundle restores the classifier stored in b.
func FromBundle(b *storage.Bundle) (*Model, error) {
	clf, err := DecodeClassifier(b.ClassifierKind, b.Classifier)
	if err != nil {
		return nil, fmt.Errorf("bundle %s: %w", b.Key, err)
	}
	return &Model{
		Key:        b.Key,
		CreatedAt:  b.CreatedAt,
		Artifact:   b.Artifact,
		Classifier: clf,
		Metrics:    b.Metrics,
	}, nil
}

// LoadModel resolves key (empty means the active or latest bundle) and loads it.
func LoadModel(store BundleLoader, key string) (*Model, error) {
	resolved, err := store.Resolve(key)
	if err != nil {
		return nil, fmt.Errorf("resolve bundle: %w", err)
	}
	b, err := store.Load(resolved)
	if err != nil {
		return nil, err
	}
	m, err := FromBundle(b)
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("bundle", m.Key).
		Time("created_at", m.CreatedAt).
		Int("features", m.Artifact.Schema().Len()).
		Str("classifier", m.Classifier.Kind()).
		Msg("model bundle loaded")
	return m, nil
}
