package evaluator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptdial/promptdial/internal/domain"
	"github.com/promptdial/promptdial/internal/infrastructure/telemetry"
)

func newTestEnsemble() (*Ensemble, *telemetry.Registry) {
	metrics := telemetry.NewRegistry()
	monitor := NewMonitor(metrics)
	return NewEnsemble(monitor, metrics, false), metrics
}

func qaClassification(complexity float64) domain.Classification {
	return domain.Classification{
		TaskType:   domain.TaskTypeGeneralQA,
		Domain:     domain.DomainGeneral,
		Complexity: complexity,
	}
}

func goodResponse(variantID string) domain.RunnerResult {
	return domain.RunnerResult{
		VariantID: variantID,
		Content: "Tides are caused by the gravitational pull of the moon and the sun on the oceans. " +
			"First, the moon's gravity creates a bulge of water on the near side of Earth. " +
			"Then, a matching bulge forms on the far side because of inertia. " +
			"Therefore, coastal areas experience two high tides per day as Earth rotates through both bulges.",
		TokensUsed: 80,
		Provider:   "stub",
		Model:      "stub-model",
	}
}

func cotVariant() domain.Variant {
	return domain.Variant{
		ID:          "chain_of_thought#0@trace123",
		Technique:   domain.TechniqueChainOfThought,
		Prompt:      "What causes tides? Explain the gravitational mechanism of the moon and oceans.",
		Temperature: 0.3,
		EstTokens:   256,
		CostUSD:     0.003,
	}
}

func TestEnsemble_Evaluate_MergesScores(t *testing.T) {
	ensemble, metrics := newTestEnsemble()

	result, err := ensemble.Evaluate(context.Background(), cotVariant(), goodResponse("v1"),
		qaClassification(0.5), nil)
	require.NoError(t, err)

	// general_qa at complexity 0.5: g_eval, self_consistency, chat_eval.
	assert.Len(t, result.Scores, 3)
	assert.Contains(t, result.Scores, "g_eval")
	assert.Contains(t, result.Scores, "chat_eval")
	assert.Contains(t, result.Scores, "self_consistency")
	assert.NotContains(t, result.Scores, "role_debate")

	assert.GreaterOrEqual(t, result.FinalScore, 0.0)
	assert.LessOrEqual(t, result.FinalScore, 1.0)
	assert.LessOrEqual(t, result.ConfidenceInterval[0], result.FinalScore)
	assert.GreaterOrEqual(t, result.ConfidenceInterval[1], result.FinalScore)
	assert.Equal(t, int64(1), metrics.Counter("evaluations_total").Value())
}

func TestEnsemble_RoleDebateJoinsForHighComplexity(t *testing.T) {
	ensemble, _ := newTestEnsemble()

	result, err := ensemble.Evaluate(context.Background(), cotVariant(), goodResponse("v1"),
		qaClassification(0.8), nil)
	require.NoError(t, err)
	assert.Contains(t, result.Scores, "role_debate")
}

func TestEnsemble_ChatEvalOnlyForConversationalTasks(t *testing.T) {
	ensemble, _ := newTestEnsemble()

	c := qaClassification(0.5)
	c.TaskType = domain.TaskTypeMathReasoning

	result, err := ensemble.Evaluate(context.Background(), cotVariant(), goodResponse("v1"), c, nil)
	require.NoError(t, err)
	assert.NotContains(t, result.Scores, "chat_eval")
	assert.Contains(t, result.Scores, "g_eval")
	assert.Contains(t, result.Scores, "self_consistency")
}

func TestEnsemble_EmptyResponseFailsAllEvaluators(t *testing.T) {
	ensemble, metrics := newTestEnsemble()

	empty := domain.RunnerResult{VariantID: "v1", Error: "backend down"}
	_, err := ensemble.Evaluate(context.Background(), cotVariant(), empty, qaClassification(0.5), nil)
	require.Error(t, err)
	assert.Greater(t, metrics.Counter("evaluator_failures_total").Value(), int64(0))
}

func TestMerge_DisagreementDetection(t *testing.T) {
	scores := map[string]float64{
		"g_eval":           0.9,
		"self_consistency": 0.5,
	}
	result := merge("v1", scores)

	require.NotNil(t, result.CalibrationError)
	assert.InDelta(t, 0.4, *result.CalibrationError, 1e-9)
}

func TestMerge_NoDisagreementBelowThreshold(t *testing.T) {
	scores := map[string]float64{
		"g_eval":           0.7,
		"self_consistency": 0.6,
	}
	result := merge("v1", scores)
	assert.Nil(t, result.CalibrationError)
	assert.InDelta(t, 0.65, result.FinalScore, 1e-9)
}

func TestMerge_IntervalBracketsScore(t *testing.T) {
	scores := map[string]float64{"a": 0.2, "b": 0.5, "c": 0.95}
	result := merge("v1", scores)

	assert.LessOrEqual(t, result.ConfidenceInterval[0], result.FinalScore)
	assert.GreaterOrEqual(t, result.ConfidenceInterval[1], result.FinalScore)
	assert.GreaterOrEqual(t, result.ConfidenceInterval[0], 0.0)
	assert.LessOrEqual(t, result.ConfidenceInterval[1], 1.0)
}

func TestDefaultEvaluation_ShapeMatchesContract(t *testing.T) {
	d := domain.DefaultEvaluation("v1")
	assert.Equal(t, 0.5, d.FinalScore)
	assert.Equal(t, [2]float64{0.4, 0.6}, d.ConfidenceInterval)
	assert.Equal(t, 0.5, d.Scores["g_eval"])
	assert.Equal(t, 0.5, d.Scores["chat_eval"])
	assert.Equal(t, 0.5, d.Scores["self_consistency"])
}
