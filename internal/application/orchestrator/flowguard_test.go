package orchestrator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptdial/promptdial/internal/domain"
	"github.com/promptdial/promptdial/internal/infrastructure/receipt"
	"github.com/promptdial/promptdial/internal/infrastructure/telemetry"
)

func newTestGuard(t *testing.T) (*FlowGuard, *telemetry.Registry) {
	t.Helper()
	signer, err := receipt.NewSigner()
	require.NoError(t, err)
	metrics := telemetry.NewRegistry()
	return NewFlowGuard(signer, metrics), metrics
}

func validResponse() *domain.OptimizationResponse {
	outcome := domain.VariantOutcome{
		Variant: domain.Variant{
			ID:          "chain_of_thought#0@trace123",
			Technique:   domain.TechniqueChainOfThought,
			Prompt:      "think it through",
			Temperature: 0.3,
			EstTokens:   128,
			CostUSD:     0.002,
		},
		Run: domain.RunnerResult{
			VariantID: "chain_of_thought#0@trace123",
			Content:   "the answer",
		},
		Evaluation: domain.EvaluationResult{
			VariantID:  "chain_of_thought#0@trace123",
			FinalScore: 0.7,
		},
	}
	return &domain.OptimizationResponse{
		TraceID:            "trace-guard",
		OriginalPrompt:     "a question",
		Variants:           []domain.VariantOutcome{outcome},
		RecommendedVariant: &outcome,
		Metadata: domain.ResponseMetadata{
			TotalVariantsGenerated: 1,
			ParetoFrontierSize:     1,
			TechniquesUsed:         []domain.Technique{domain.TechniqueChainOfThought},
			SuggestedTechniques:    []domain.Technique{domain.TechniqueChainOfThought},
			StrategyConfidence:     0.8,
		},
	}
}

func TestFlowGuard_SealAttachesVerifiableReceipt(t *testing.T) {
	guard, _ := newTestGuard(t)
	response := validResponse()

	require.NoError(t, guard.Seal(response, "echo-1"))
	require.NotNil(t, response.Receipt)
	assert.Equal(t, domain.FlowVersion, response.Receipt.FlowVersion)
	assert.Equal(t, "echo-1", response.Receipt.RunnerModel)
	assert.Len(t, response.Receipt.PlannerHash, 8)
	assert.Len(t, response.Receipt.BuilderHash, 8)
	assert.True(t, guard.Verify(response.Receipt, "trace-guard"))
	assert.False(t, guard.Verify(response.Receipt, "trace-other"))
}

func TestFlowGuard_EachInvariant(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *domain.OptimizationResponse)
		detail string
	}{
		{
			"no techniques used",
			func(r *domain.OptimizationResponse) { r.Metadata.TechniquesUsed = nil },
			"No techniques used in optimization",
		},
		{
			"malformed variant",
			func(r *domain.OptimizationResponse) { r.Variants[0].Variant.Prompt = "" },
			"malformed",
		},
		{
			"no suggested techniques",
			func(r *domain.OptimizationResponse) { r.Metadata.SuggestedTechniques = nil },
			"No suggested techniques from strategy planner",
		},
		{
			"no variants",
			func(r *domain.OptimizationResponse) { r.Variants = nil },
			"No variants in response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			guard, metrics := newTestGuard(t)
			response := validResponse()
			tt.mutate(response)

			failures := guard.CheckInvariants(response)
			require.NotEmpty(t, failures)
			found := false
			for _, f := range failures {
				if strings.Contains(f, tt.detail) {
					found = true
				}
			}
			assert.True(t, found, "failures %v should mention %q", failures, tt.detail)

			err := guard.Seal(response, "echo-1")
			require.Error(t, err)
			assert.Nil(t, response.Receipt)
			assert.Equal(t, int64(1), metrics.Counter(telemetry.MetricFlowMismatchTotal).Value())
		})
	}
}

func TestFlowGuard_WrongFlowVersionRejected(t *testing.T) {
	guard, _ := newTestGuard(t)
	response := validResponse()
	response.Receipt = &domain.Receipt{FlowVersion: "2.0.0"}

	failures := guard.CheckInvariants(response)
	require.NotEmpty(t, failures)
	assert.Contains(t, failures[0], "Flow version mismatch")
}
