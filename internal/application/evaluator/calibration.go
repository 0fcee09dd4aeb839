package evaluator

import (
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/promptdial/promptdial/internal/infrastructure/telemetry"
)

const (
	// calibrationWindow is how many data points the monitor retains.
	calibrationWindow = 1000

	// minHumanPoints is the minimum number of human-scored points an
	// evaluator needs before calibration applies.
	minHumanPoints = 5

	// driftThreshold is the bias shift that triggers a drift event.
	driftThreshold = 0.05
)

// DataPoint is one observation held by the calibration monitor.
type DataPoint struct {
	VariantID  string
	Scores     map[string]float64
	HumanScore *float64
	Timestamp  time.Time
}

// EvaluatorStats summarizes one evaluator's agreement with human scores.
type EvaluatorStats struct {
	Count       int     `json:"count"`
	Correlation float64 `json:"correlation"`
	Bias        float64 `json:"bias"`
	Variance    float64 `json:"variance"`
	Drift       float64 `json:"drift"`
}

// Monitor is the process-wide calibration state. AddDataPoint and
// AddHumanFeedback mutate; Calibrate and Stats read. All access is
// serialized by a mutex.
type Monitor struct {
	mu      sync.Mutex
	points  []DataPoint
	metrics *telemetry.Registry
}

// NewMonitor creates a calibration monitor.
func NewMonitor(metrics *telemetry.Registry) *Monitor {
	return &Monitor{
		metrics: metrics,
	}
}

// AddDataPoint records an ensemble observation, evicting the oldest once
// the window is full.
func (m *Monitor) AddDataPoint(variantID string, scores map[string]float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := make(map[string]float64, len(scores))
	for k, v := range scores {
		copied[k] = v
	}
	m.points = append(m.points, DataPoint{
		VariantID: variantID,
		Scores:    copied,
		Timestamp: time.Now(),
	})
	if len(m.points) > calibrationWindow {
		m.points = m.points[len(m.points)-calibrationWindow:]
	}
}

// AddHumanFeedback attaches a human score to the most recent data point
// for the variant.
func (m *Monitor) AddHumanFeedback(variantID string, score float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := len(m.points) - 1; i >= 0; i-- {
		if m.points[i].VariantID == variantID {
			s := score
			m.points[i].HumanScore = &s
			return
		}
	}
}

// Calibrate maps a raw score through the evaluator's linear calibration:
// adjusted = scale*raw + offset, with scale = 1/sqrt(variance) (1 when the
// variance is 0) and offset = -bias*scale. Evaluators without enough
// human-scored points pass through unchanged.
func (m *Monitor) Calibrate(evaluatorName string, raw float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats, ok := m.statsLocked(evaluatorName)
	if !ok {
		return raw
	}

	scale := 1.0
	if stats.Variance > 0 {
		scale = 1.0 / math.Sqrt(stats.Variance)
	}
	offset := -stats.Bias * scale

	adjusted := scale*raw + offset
	if adjusted < 0 {
		return 0
	}
	if adjusted > 1 {
		return 1
	}
	return adjusted
}

// Stats returns the evaluator's calibration statistics, or false when it
// has fewer than minHumanPoints human-scored observations.
func (m *Monitor) Stats(evaluatorName string) (EvaluatorStats, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statsLocked(evaluatorName)
}

// CheckDrift emits a drift event for every evaluator whose bias shifted by
// more than the threshold between the older and the recent half of the
// window. Operation continues regardless.
func (m *Monitor) CheckDrift() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var drifted []string
	for _, name := range m.evaluatorNamesLocked() {
		stats, ok := m.statsLocked(name)
		if !ok {
			continue
		}
		if stats.Drift > driftThreshold {
			drifted = append(drifted, name)
			m.metrics.Counter("calibration_drift_events").Inc()
			log.Warn().
				Str("evaluator", name).
				Float64("drift", stats.Drift).
				Msg("evaluator calibration drift detected")
		}
	}
	return drifted
}

func (m *Monitor) evaluatorNamesLocked() []string {
	seen := make(map[string]bool)
	var names []string
	for _, p := range m.points {
		for name := range p.Scores {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	return names
}

func (m *Monitor) statsLocked(evaluatorName string) (EvaluatorStats, bool) {
	var scores, humans []float64
	for _, p := range m.points {
		if p.HumanScore == nil {
			continue
		}
		if s, ok := p.Scores[evaluatorName]; ok {
			scores = append(scores, s)
			humans = append(humans, *p.HumanScore)
		}
	}
	if len(scores) < minHumanPoints {
		return EvaluatorStats{Count: len(scores)}, false
	}

	n := len(scores)
	var biasSum float64
	for i := range scores {
		biasSum += scores[i] - humans[i]
	}
	bias := biasSum / float64(n)

	mid := n / 2
	oldBias := meanDiff(scores[:mid], humans[:mid])
	recentBias := meanDiff(scores[mid:], humans[mid:])

	return EvaluatorStats{
		Count:       n,
		Correlation: pearson(scores, humans),
		Bias:        bias,
		Variance:    variance(scores),
		Drift:       math.Abs(recentBias - oldBias),
	}, true
}

func meanDiff(scores, humans []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	var sum float64
	for i := range scores {
		sum += scores[i] - humans[i]
	}
	return sum / float64(len(scores))
}

func variance(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var mean float64
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	var sum float64
	for _, v := range values {
		sum += (v - mean) * (v - mean)
	}
	return sum / float64(len(values)-1)
}

func pearson(a, b []float64) float64 {
	n := float64(len(a))
	if n < 2 {
		return 0
	}
	var meanA, meanB float64
	for i := range a {
		meanA += a[i]
		meanB += b[i]
	}
	meanA /= n
	meanB /= n

	var cov, varA, varB float64
	for i := range a {
		cov += (a[i] - meanA) * (b[i] - meanB)
		varA += (a[i] - meanA) * (a[i] - meanA)
		varB += (b[i] - meanB) * (b[i] - meanB)
	}
	if varA == 0 || varB == 0 {
		return 0
	}
	return cov / math.Sqrt(varA*varB)
}
