package ml

import (
	"math"
	"sync"
	"time"

	"flow-anomaly/internal/features"

	"github.com/rs/zerolog/log"
)

// DriftConfig configures drift monitoring
type DriftConfig struct {
	Enabled       bool          `yaml:"enabled"`
	WindowSize    int           `yaml:"window_size"`
	Threshold     float64       `yaml:"threshold"`
	AlertCooldown time.Duration `yaml:"alert_cooldown"`
}

// DriftMonitor compares the recent mean of each numeric feature with the mean learned at
// training time. It keeps its own state and never touches the artifact.
type DriftMonitor struct {
	mu        sync.Mutex
	cfg       DriftConfig
	baseline  map[string]features.ColumnStats
	windows   map[string]*window
	lastAlert map[string]time.Time
	metrics   MetricsInterface
}

// window is a fixed-size ring of recent values with a running sum.
type window struct {
	values []float64
	next   int
	full   bool
	sum    float64
}

func (w *window) add(v float64) {
	if w.full {
		w.sum -= w.values[w.next]
	}
	w.values[w.next] = v
	w.sum += v
	w.next++
	if w.next == len(w.values) {
		w.next = 0
		w.full = true
	}
}

func (w *window) mean() (float64, bool) {
	if !w.full {
		return 0, false
	}
	return w.sum / float64(len(w.values)), true
}

// NewDriftMonitor builds a monitor for the numeric columns of a. Constant training columns are
// skipped since any shift would be infinitely many standard deviations.
func NewDriftMonitor(a *features.Artifact, cfg DriftConfig, metrics MetricsInterface) *DriftMonitor {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 1000
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = 3
	}
	if cfg.AlertCooldown <= 0 {
		cfg.AlertCooldown = time.Hour
	}

	d := &DriftMonitor{
		cfg:       cfg,
		baseline:  make(map[string]features.ColumnStats),
		windows:   make(map[string]*window),
		lastAlert: make(map[string]time.Time),
		metrics:   metrics,
	}
	for _, col := range a.Schema().Select(features.Numeric) {
		st, ok := a.Stats(col)
		if !ok || st.ZeroVariance() {
			continue
		}
		d.baseline[col] = st
		d.windows[col] = &window{values: make([]float64, cfg.WindowSize)}
	}
	return d
}

// Observe adds the raw numeric values of rec to the windows.
func (d *DriftMonitor) Observe(rec features.Record) {
	if d == nil || !d.cfg.Enabled {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	for _, f := range rec {
		name := features.CanonicalName(f.Name)
		w, ok := d.windows[name]
		if !ok || f.Value.Kind != features.Number || math.IsInf(f.Value.Num, 0) || math.IsNaN(f.Value.Num) {
			continue
		}
		w.add(f.Value.Num)

		mean, ready := w.mean()
		if !ready {
			continue
		}
		base := d.baseline[name]
		score := math.Abs(mean-base.Mean) / base.Std
		if d.metrics != nil {
			d.metrics.DriftScoreSet(name, score)
		}
		if score > d.cfg.Threshold && now.Sub(d.lastAlert[name]) >= d.cfg.AlertCooldown {
			d.lastAlert[name] = now
			log.Warn().
				Str("column", name).
				Float64("window_mean", mean).
				Float64("training_mean", base.Mean).
				Float64("score", score).
				Float64("threshold", d.cfg.Threshold).
				Msg("feature drift detected")
		}
	}
}

// Scores returns the current drift score of every column whose window is full.
func (d *DriftMonitor) Scores() map[string]float64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make(map[string]float64, len(d.windows))
	for name, w := range d.windows {
		if mean, ok := w.mean(); ok {
			base := d.baseline[name]
			out[name] = math.Abs(mean-base.Mean) / base.Std
		}
	}
	return out
}
