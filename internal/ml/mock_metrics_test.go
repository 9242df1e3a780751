package ml

import "sync"

// MockMetrics implements MetricsInterface and ServerMetrics for testing
type MockMetrics struct {
	mu          sync.Mutex
	predictions int
	anomalies   int
	failures    map[string]int
	latencies   int
	scores      []float64
	unknown     map[string]int
	dropped     int
	drift       map[string]float64
	bundleAge   float64
	batchRows   int
	httpErrors  map[int]int
}

func NewMockMetrics() *MockMetrics {
	return &MockMetrics{
		failures:   make(map[string]int),
		unknown:    make(map[string]int),
		drift:      make(map[string]float64),
		httpErrors: make(map[int]int),
	}
}

func (m *MockMetrics) PredictionsInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.predictions++
}

func (m *MockMetrics) AnomaliesInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.anomalies++
}

func (m *MockMetrics) PredictionFailuresInc(stage string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[stage]++
}

func (m *MockMetrics) LatencyObserve(float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencies++
}

func (m *MockMetrics) ScoreObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scores = append(m.scores, v)
}

func (m *MockMetrics) UnknownCategoryInc(column string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unknown[column]++
}

func (m *MockMetrics) DroppedColumnsAdd(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropped += n
}

func (m *MockMetrics) DriftScoreSet(column string, v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drift[column] = v
}

func (m *MockMetrics) BundleAgeSet(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bundleAge = v
}

func (m *MockMetrics) BatchRowsAdd(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batchRows += n
}

func (m *MockMetrics) HTTPErrorInc(code int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.httpErrors[code]++
}
