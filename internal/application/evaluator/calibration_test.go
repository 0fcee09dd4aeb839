package evaluator

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptdial/promptdial/internal/infrastructure/telemetry"
)

func TestMonitor_StatsRequireMinimumHumanPoints(t *testing.T) {
	m := NewMonitor(telemetry.NewRegistry())

	for i := 0; i < 4; i++ {
		id := fmt.Sprintf("v%d", i)
		m.AddDataPoint(id, map[string]float64{"g_eval": 0.7})
		m.AddHumanFeedback(id, 0.6)
	}

	_, ok := m.Stats("g_eval")
	assert.False(t, ok)

	m.AddDataPoint("v4", map[string]float64{"g_eval": 0.7})
	m.AddHumanFeedback("v4", 0.6)

	stats, ok := m.Stats("g_eval")
	require.True(t, ok)
	assert.Equal(t, 5, stats.Count)
	assert.InDelta(t, 0.1, stats.Bias, 1e-9)
}

func TestMonitor_CalibrateCorrectsBias(t *testing.T) {
	m := NewMonitor(telemetry.NewRegistry())

	// Evaluator consistently scores 0.1 above the human rater with slight
	// spread so variance is non-zero.
	raws := []float64{0.68, 0.70, 0.72, 0.69, 0.71}
	for i, raw := range raws {
		id := fmt.Sprintf("v%d", i)
		m.AddDataPoint(id, map[string]float64{"g_eval": raw})
		m.AddHumanFeedback(id, raw-0.1)
	}

	adjusted := m.Calibrate("g_eval", 0.70)
	raw := 0.70
	assert.NotEqual(t, raw, adjusted)
	assert.GreaterOrEqual(t, adjusted, 0.0)
	assert.LessOrEqual(t, adjusted, 1.0)
}

func TestMonitor_CalibratePassThroughWithoutHumanData(t *testing.T) {
	m := NewMonitor(telemetry.NewRegistry())
	assert.Equal(t, 0.7, m.Calibrate("g_eval", 0.7))
}

func TestMonitor_WindowEviction(t *testing.T) {
	m := NewMonitor(telemetry.NewRegistry())

	for i := 0; i < calibrationWindow+100; i++ {
		m.AddDataPoint(fmt.Sprintf("v%d", i), map[string]float64{"g_eval": 0.5})
	}

	m.mu.Lock()
	size := len(m.points)
	oldest := m.points[0].VariantID
	m.mu.Unlock()

	assert.Equal(t, calibrationWindow, size)
	assert.Equal(t, "v100", oldest)
}

func TestMonitor_DriftDetection(t *testing.T) {
	metrics := telemetry.NewRegistry()
	m := NewMonitor(metrics)

	// Old half: no bias. Recent half: bias of +0.2 — drift well over the
	// threshold.
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("old%d", i)
		m.AddDataPoint(id, map[string]float64{"g_eval": 0.5 + float64(i)*0.01})
		m.AddHumanFeedback(id, 0.5+float64(i)*0.01)
	}
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("new%d", i)
		m.AddDataPoint(id, map[string]float64{"g_eval": 0.7 + float64(i)*0.01})
		m.AddHumanFeedback(id, 0.5+float64(i)*0.01)
	}

	drifted := m.CheckDrift()
	assert.Contains(t, drifted, "g_eval")
	assert.Equal(t, int64(1), metrics.Counter("calibration_drift_events").Value())
}

func TestMonitor_NoDriftWhenStable(t *testing.T) {
	m := NewMonitor(telemetry.NewRegistry())

	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("v%d", i)
		m.AddDataPoint(id, map[string]float64{"g_eval": 0.6 + float64(i%3)*0.01})
		m.AddHumanFeedback(id, 0.58+float64(i%3)*0.01)
	}

	assert.Empty(t, m.CheckDrift())
}

func TestPearson(t *testing.T) {
	perfect := pearson([]float64{0.1, 0.2, 0.3}, []float64{0.2, 0.4, 0.6})
	assert.InDelta(t, 1.0, perfect, 1e-9)

	inverse := pearson([]float64{0.1, 0.2, 0.3}, []float64{0.6, 0.4, 0.2})
	assert.InDelta(t, -1.0, inverse, 1e-9)
}
