package metrics

import "strconv"

// Wrapper adapts Metrics to the narrow interfaces consumed by the ml package, so ml does not
// depend on Prometheus types.
type Wrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *Wrapper {
	return &Wrapper{m: m}
}

func (w *Wrapper) PredictionsInc() { w.m.Predictions.Inc() }

func (w *Wrapper) AnomaliesInc() { w.m.Anomalies.Inc() }

func (w *Wrapper) PredictionFailuresInc(stage string) {
	w.m.PredictionFailures.WithLabelValues(stage).Inc()
}

func (w *Wrapper) LatencyObserve(seconds float64) { w.m.PredictionLatency.Observe(seconds) }

func (w *Wrapper) ScoreObserve(score float64) { w.m.PredictionScores.Observe(score) }

func (w *Wrapper) UnknownCategoryInc(column string) {
	w.m.UnknownCategories.WithLabelValues(column).Inc()
}

func (w *Wrapper) DroppedColumnsAdd(n int) { w.m.DroppedColumns.Add(float64(n)) }

func (w *Wrapper) DriftScoreSet(column string, score float64) {
	w.m.DriftScore.WithLabelValues(column).Set(score)
}

func (w *Wrapper) BundleAgeSet(seconds float64) { w.m.BundleAge.Set(seconds) }

func (w *Wrapper) BatchRowsAdd(n int) { w.m.BatchRows.Add(float64(n)) }

func (w *Wrapper) HTTPErrorInc(code int) {
	w.m.HTTPErrors.WithLabelValues(strconv.Itoa(code)).Inc()
}
