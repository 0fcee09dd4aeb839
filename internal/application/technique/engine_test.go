package technique

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptdial/promptdial/internal/domain"
	domainerrors "github.com/promptdial/promptdial/internal/domain/errors"
	"github.com/promptdial/promptdial/internal/infrastructure/telemetry"
)

func mathClassification() domain.Classification {
	return domain.Classification{
		TaskType:   domain.TaskTypeMathReasoning,
		Domain:     domain.DomainGeneral,
		Complexity: 0.5,
		SuggestedTechniques: []domain.Technique{
			domain.TechniqueFewShotCoT, domain.TechniqueSelfConsistency,
		},
	}
}

func mathPlan() domain.PlannerResult {
	return domain.PlannerResult{
		SuggestedTechniques: []domain.Technique{
			domain.TechniqueFewShotCoT, domain.TechniqueSelfConsistency,
		},
		Rationale:  "math favors worked examples and majority voting",
		Confidence: 0.8,
	}
}

func buildRequest(budget *domain.Budget, maxVariants int) BuildRequest {
	return BuildRequest{
		BasePrompt:     "Solve: If 3x + 5 = 20, what is x?",
		Classification: mathClassification(),
		Plan:           mathPlan(),
		Budget:         budget,
		TraceID:        "trace-build-1",
		MaxVariants:    maxVariants,
	}
}

func TestBuildVariants_ProducesValidVariants(t *testing.T) {
	engine := NewEngine(telemetry.NewRegistry())
	budget := domain.NewBudget(1.0, 10000, 4096)

	variants, err := engine.BuildVariants(context.Background(), buildRequest(budget, 5))
	require.NoError(t, err)
	require.NotEmpty(t, variants)
	assert.LessOrEqual(t, len(variants), 5)

	for _, v := range variants {
		require.NoError(t, v.Validate())
		assert.NotEmpty(t, v.ID)
		assert.GreaterOrEqual(t, v.Temperature, 0.0)
		assert.LessOrEqual(t, v.Temperature, 2.0)
		assert.GreaterOrEqual(t, v.EstTokens, 1)
		assert.LessOrEqual(t, v.EstTokens, 8192)
		assert.Greater(t, v.CostUSD, 0.0)
		assert.LessOrEqual(t, v.CostUSD, 5.0)
	}
}

func TestBuildVariants_SuggestedTechniquesLeadOrdering(t *testing.T) {
	engine := NewEngine(telemetry.NewRegistry())
	budget := domain.NewBudget(1.0, 10000, 4096)

	variants, err := engine.BuildVariants(context.Background(), buildRequest(budget, 5))
	require.NoError(t, err)
	require.NotEmpty(t, variants)

	// The top-scored technique is suggested (+100) and task-matched (+50).
	assert.Equal(t, domain.TechniqueFewShotCoT, variants[0].Technique)
}

func TestBuildVariants_BudgetMonotonic(t *testing.T) {
	engine := NewEngine(telemetry.NewRegistry())
	budget := domain.NewBudget(1.0, 10000, 4096)

	variants, err := engine.BuildVariants(context.Background(), buildRequest(budget, 5))
	require.NoError(t, err)

	spent := 0.0
	for _, v := range variants {
		spent += v.CostUSD
	}
	assert.InDelta(t, 1.0-spent, budget.RemainingCostUSD, 1e-9)
	assert.GreaterOrEqual(t, budget.RemainingCostUSD, 0.0)
}

func TestBuildVariants_SkipsOverdraw(t *testing.T) {
	engine := NewEngine(telemetry.NewRegistry())
	// Enough budget to pass the applicability floor but only for a few
	// variants.
	budget := domain.NewBudget(0.015, 10000, 4096)

	variants, err := engine.BuildVariants(context.Background(), buildRequest(budget, 5))
	require.NoError(t, err)
	require.NotEmpty(t, variants)
	assert.GreaterOrEqual(t, budget.RemainingCostUSD, 0.0)
}

func TestBuildVariants_ExhaustedBudget_BuilderInvariant(t *testing.T) {
	metrics := telemetry.NewRegistry()
	engine := NewEngine(metrics)
	// Below the applicability floor: no technique qualifies, zero variants.
	budget := domain.NewBudget(0.005, 10000, 4096)

	variants, err := engine.BuildVariants(context.Background(), buildRequest(budget, 5))
	require.Error(t, err)
	assert.Nil(t, variants)
	assert.Equal(t, domain.CodeBuilderInvariant, domainerrors.CodeOf(err))
	assert.False(t, domainerrors.IsRetryable(err))
	assert.Equal(t, int64(1), metrics.Counter(telemetry.MetricBuilderInvariantViolation).Value())
}

func TestBuildVariants_DeterministicPerTrace(t *testing.T) {
	engine := NewEngine(telemetry.NewRegistry())

	first, err := engine.BuildVariants(context.Background(), buildRequest(domain.NewBudget(1.0, 10000, 4096), 5))
	require.NoError(t, err)
	second, err := engine.BuildVariants(context.Background(), buildRequest(domain.NewBudget(1.0, 10000, 4096), 5))
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Technique, second[i].Technique)
		assert.Equal(t, first[i].Prompt, second[i].Prompt)
		assert.Equal(t, first[i].ID, second[i].ID)
	}
}

func TestBuildVariants_RetrievalTechniqueExcludedWithoutRetrieval(t *testing.T) {
	engine := NewEngine(telemetry.NewRegistry())
	budget := domain.NewBudget(1.0, 10000, 4096)

	req := buildRequest(budget, 10)
	req.Classification.NeedsRetrieval = false

	variants, err := engine.BuildVariants(context.Background(), req)
	require.NoError(t, err)
	for _, v := range variants {
		assert.NotEqual(t, domain.TechniqueIRCoT, v.Technique)
	}
}

func TestBuildVariants_RetrievalTaskAdmitsIRCoT(t *testing.T) {
	engine := NewEngine(telemetry.NewRegistry())
	budget := domain.NewBudget(1.0, 10000, 4096)

	req := BuildRequest{
		BasePrompt: "Summarize the attached quarterly report",
		Classification: domain.Classification{
			TaskType:       domain.TaskTypeSummarization,
			Domain:         domain.DomainBusiness,
			Complexity:     0.4,
			NeedsRetrieval: true,
		},
		Plan: domain.PlannerResult{
			SuggestedTechniques: []domain.Technique{domain.TechniqueIRCoT},
			Rationale:           "retrieval-grounded summarization",
			Confidence:          0.8,
		},
		Budget:      budget,
		TraceID:     "trace-retrieval",
		MaxVariants: 5,
		Examples:    []string{"Q3 revenue grew 12% quarter over quarter."},
	}

	variants, err := engine.BuildVariants(context.Background(), req)
	require.NoError(t, err)
	require.NotEmpty(t, variants)
	assert.Equal(t, domain.TechniqueIRCoT, variants[0].Technique)
	assert.Contains(t, variants[0].Prompt, "Q3 revenue")
}

func TestBuildVariants_MaxVariantsCap(t *testing.T) {
	engine := NewEngine(telemetry.NewRegistry())
	budget := domain.NewBudget(5.0, 10000, 4096)

	req := buildRequest(budget, 2)
	variants, err := engine.BuildVariants(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, variants, 2)
}

func TestBuildVariants_VariantIDsUnique(t *testing.T) {
	engine := NewEngine(telemetry.NewRegistry())
	budget := domain.NewBudget(1.0, 10000, 4096)

	variants, err := engine.BuildVariants(context.Background(), buildRequest(budget, 5))
	require.NoError(t, err)

	seen := make(map[string]bool)
	for _, v := range variants {
		assert.False(t, seen[v.ID], "duplicate variant id %s", v.ID)
		seen[v.ID] = true
	}
}
