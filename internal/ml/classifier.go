// Package ml holds the classifier contract, the logistic regression model shipped in bundles,
// the serving adapter that turns one raw flow record into a prediction, model evaluation and
// the HTTP boundary that exposes it.
//
// Every path that feeds the classifier goes through features.Artifact.Transform; nothing in
// this package computes feature statistics.
package ml

import (
	"encoding/json"
	"fmt"
)

// Classifier is the supervised model contract. Labels are 0 (normal) or 1 (anomalous);
// PredictProba returns the probability of label 1 for each row.
type Classifier interface {
	Fit(X [][]float64, y []int) error
	Predict(X [][]float64) ([]int, error)
	PredictProba(X [][]float64) ([]float64, error)
	// Kind names the implementation so persisted state can be decoded again.
	Kind() string
}

type decoder func(state []byte) (Classifier, error)

var decoders = map[string]decoder{
	KindLogistic: func(state []byte) (Classifier, error) {
		m := &LogisticRegression{}
		if err := json.Unmarshal(state, m); err != nil {
			return nil, err
		}
		return m, nil
	},
}

// EncodeClassifier serializes a classifier's fitted state.
func EncodeClassifier(c Classifier) (kind string, state []byte, err error) {
	state, err = json.Marshal(c)
	if err != nil {
		return "", nil, fmt.Errorf("encode %s classifier: %w", c.Kind(), err)
	}
	return c.Kind(), state, nil
}

// DecodeClassifier restores a classifier persisted with EncodeClassifier.
func DecodeClassifier(kind string, state []byte) (Classifier, error) {
	dec, ok := decoders[kind]
	if !ok {
		return nil, fmt.Errorf("unknown classifier kind %q", kind)
	}
	c, err := dec(state)
	if err != nil {
		return nil, fmt.Errorf("decode %s classifier: %w", kind, err)
	}
	return c, nil
}
