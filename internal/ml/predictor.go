package ml

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"flow-anomaly/internal/features"

	"github.com/rs/zerolog/log"
)

// MetricsInterface defines metrics methods needed by the predictor
type MetricsInterface interface {
	PredictionsInc()
	AnomaliesInc()
	PredictionFailuresInc(stage string)
	LatencyObserve(seconds float64)
	ScoreObserve(score float64)
	UnknownCategoryInc(column string)
	DroppedColumnsAdd(n int)
	DriftScoreSet(column string, score float64)
	BundleAgeSet(seconds float64)
	BatchRowsAdd(n int)
}

// Prediction is the result for one flow record.
type Prediction struct {
	Label int     `json:"prediction"`
	Score float64 `json:"anomaly_score"`
}

// PredictOne runs one raw record through the fitted pipeline and the classifier. Both the
// artifact and the classifier are only read. Any failure is a *PredictionError naming the
// stage.
func PredictOne(rec features.Record, a *features.Artifact, clf Classifier) (Prediction, error) {
	p, _, err := predictOne(rec, a, clf)
	return p, err
}

func predictOne(rec features.Record, a *features.Artifact, clf Classifier) (Prediction, features.Transformed, error) {
	t, err := a.Transform(rec)
	if err != nil {
		return Prediction{}, features.Transformed{}, transformError(err)
	}
	out, err := classify(clf, [][]float64{t.Vector})
	if err != nil {
		return Prediction{}, t, err
	}
	return out[0], t, nil
}

func transformError(err error) *PredictionError {
	var se *features.StageError
	if errors.As(err, &se) {
		return &PredictionError{Stage: se.Stage, Err: se.Err}
	}
	return &PredictionError{Stage: "transform", Err: err}
}

// classify calls predict and predict_proba and checks the classifier kept its contract.
func classify(clf Classifier, X [][]float64) ([]Prediction, error) {
	labels, err := clf.Predict(X)
	if err != nil {
		return nil, &PredictionError{Stage: StageClassify, Err: err}
	}
	scores, err := clf.PredictProba(X)
	if err != nil {
		return nil, &PredictionError{Stage: StageClassify, Err: err}
	}
	if len(labels) != len(X) || len(scores) != len(X) {
		return nil, &PredictionError{Stage: StageClassify, Err: fmt.Errorf("classifier returned %d labels and %d scores for %d rows", len(labels), len(scores), len(X))}
	}

	out := make([]Prediction, len(X))
	for i := range X {
		if labels[i] != 0 && labels[i] != 1 {
			return nil, &PredictionError{Stage: StageClassify, Err: fmt.Errorf("invalid label %d", labels[i])}
		}
		if math.IsNaN(scores[i]) || scores[i] < 0 || scores[i] > 1 {
			return nil, &PredictionError{Stage: StageClassify, Err: fmt.Errorf("invalid probability %f", scores[i])}
		}
		out[i] = Prediction{Label: labels[i], Score: scores[i]}
	}
	return out, nil
}

// Predictor serves predictions from one loaded model. The model is shared read-only by every
// caller; the predictor adds metrics, drift observation and logging around PredictOne.
type Predictor struct {
	model   *Model
	metrics MetricsInterface
	drift   *DriftMonitor
}

// NewPredictor wraps model. metrics and drift may be nil.
func NewPredictor(model *Model, metrics MetricsInterface, drift *DriftMonitor) *Predictor {
	p := &Predictor{model: model, metrics: metrics, drift: drift}
	if metrics != nil && !model.CreatedAt.IsZero() {
		metrics.BundleAgeSet(time.Since(model.CreatedAt).Seconds())
	}
	return p
}

// Model returns the served model.
func (p *Predictor) Model() *Model { return p.model }

// Predict scores one record.
func (p *Predictor) Predict(ctx context.Context, rec features.Record) (Prediction, error) {
	if err := ctx.Err(); err != nil {
		return Prediction{}, err
	}

	start := time.Now()
	pred, t, err := predictOne(rec, p.model.Artifact, p.model.Classifier)
	if p.metrics != nil {
		p.metrics.LatencyObserve(time.Since(start).Seconds())
	}
	if err != nil {
		p.failed(err)
		return Prediction{}, err
	}

	p.observe(t, true)
	if p.drift != nil {
		p.drift.Observe(rec)
	}
	p.record(pred)
	return pred, nil
}

// PredictBatch scores records in order. The first failing row aborts the whole batch.
func (p *Predictor) PredictBatch(ctx context.Context, records []features.Record) ([]Prediction, error) {
	X := make([][]float64, len(records))
	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		t, err := p.model.Artifact.Transform(rec)
		if err != nil {
			perr := transformError(err)
			p.failed(perr)
			return nil, fmt.Errorf("row %d: %w", i, perr)
		}
		p.observe(t, i == 0)
		X[i] = t.Vector
	}
	if len(X) == 0 {
		return nil, nil
	}

	out, err := classify(p.model.Classifier, X)
	if err != nil {
		p.failed(err)
		return nil, err
	}
	for _, pred := range out {
		p.record(pred)
	}
	if p.metrics != nil {
		p.metrics.BatchRowsAdd(len(out))
	}
	return out, nil
}

func (p *Predictor) failed(err error) {
	stage := "unknown"
	var perr *PredictionError
	if errors.As(err, &perr) {
		stage = perr.Stage
	}
	if p.metrics != nil {
		p.metrics.PredictionFailuresInc(stage)
	}
	log.Error().Err(err).Str("stage", stage).Str("bundle", p.model.Key).Msg("prediction failed")
}

// observe surfaces drift signals. Unknown categories are absorbed by the encoder and would
// otherwise go unnoticed.
func (p *Predictor) observe(t features.Transformed, logDropped bool) {
	for _, u := range t.Unseen {
		if p.metrics != nil {
			p.metrics.UnknownCategoryInc(u.Column)
		}
		log.Warn().Str("column", u.Column).Str("value", u.Value).Int("code", features.UnknownCode).Msg("unknown categorical value")
	}
	if len(t.Dropped) > 0 {
		if p.metrics != nil {
			p.metrics.DroppedColumnsAdd(len(t.Dropped))
		}
		if logDropped {
			log.Warn().Strs("columns", t.Dropped).Msg("dropping columns not in feature schema")
		}
	}
}

func (p *Predictor) record(pred Prediction) {
	if p.metrics == nil {
		return
	}
	p.metrics.PredictionsInc()
	p.metrics.ScoreObserve(pred.Score)
	if pred.Label == 1 {
		p.metrics.AnomaliesInc()
	}
}
