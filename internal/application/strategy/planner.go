package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/promptdial/promptdial/internal/domain"
	"github.com/promptdial/promptdial/internal/infrastructure/telemetry"
)

// ReasoningBackend is an optional external planner the strategy service may
// consult. Whatever it returns still passes through the validator.
type ReasoningBackend interface {
	Plan(ctx context.Context, prompt string, planCtx domain.PlanContext) (*domain.PlannerResult, error)
}

// Planner maps a classified task to a bounded set of recommended
// techniques. It fails closed: on validator rejection, backend timeout, or
// any unexpected panic it returns the baseline plan rather than propagating
// an unknown state.
type Planner struct {
	backend   ReasoningBackend
	validator *Validator
	metrics   *telemetry.Registry
	now       func() time.Time
}

// NewPlanner creates a planner. backend may be nil; the planner then uses
// its deterministic local heuristic.
func NewPlanner(backend ReasoningBackend, metrics *telemetry.Registry) *Planner {
	return &Planner{
		backend:   backend,
		validator: NewValidator(),
		metrics:   metrics,
		now:       time.Now,
	}
}

// heuristicTechniques is the local plan table, keyed by task type. Entries
// are ordered best-first; the optimization level decides how many are kept.
var heuristicTechniques = map[domain.TaskType][]domain.Technique{
	domain.TaskTypeMathReasoning:   {domain.TechniqueFewShotCoT, domain.TechniqueSelfConsistency, domain.TechniqueChainOfThought},
	domain.TaskTypeCodeGeneration:  {domain.TechniqueReAct, domain.TechniqueChainOfThought, domain.TechniqueFewShotCoT},
	domain.TaskTypeCreativeWriting: {domain.TechniqueTreeOfThought, domain.TechniqueUniversalSelfPrompt, domain.TechniqueChainOfThought},
	domain.TaskTypeDataAnalysis:    {domain.TechniqueIRCoT, domain.TechniqueChainOfThought, domain.TechniqueSelfConsistency},
	domain.TaskTypeSummarization:   {domain.TechniqueIRCoT, domain.TechniqueChainOfThought, domain.TechniqueFewShotCoT},
	domain.TaskTypeTranslation:     {domain.TechniqueFewShotCoT, domain.TechniqueChainOfThought},
	domain.TaskTypeClassification:  {domain.TechniqueFewShotCoT, domain.TechniqueAutoDiCoT, domain.TechniqueChainOfThought},
	domain.TaskTypeGeneralQA:       {domain.TechniqueChainOfThought, domain.TechniqueSelfConsistency},
	domain.TaskTypeGeneral:         {domain.TechniqueChainOfThought},
}

// Plan produces a validated planner result. Given identical input and
// backend seed, the result is identical.
func (p *Planner) Plan(ctx context.Context, prompt string, planCtx domain.PlanContext) (result *domain.PlannerResult) {
	start := p.now()

	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Str("task_type", planCtx.TaskType.String()).
				Msg("planner panicked, failing closed to baseline")
			result = p.baseline(start)
		}
	}()

	var (
		plan *domain.PlannerResult
		err  error
	)
	if p.backend != nil {
		plan, err = p.backend.Plan(ctx, prompt, planCtx)
	} else {
		plan = p.heuristicPlan(planCtx)
	}
	if err != nil {
		log.Warn().Err(err).Msg("planner backend failed, failing closed to baseline")
		return p.baseline(start)
	}

	if verr := p.validator.Validate(plan); verr != nil {
		log.Warn().Err(verr).Msg("planner result rejected by validator, failing closed to baseline")
		return p.baseline(start)
	}

	plan.Metadata.ProcessingTimeMS = p.now().Sub(start).Milliseconds()
	return plan
}

// heuristicPlan is the deterministic local planner used when no reasoning
// backend is configured. It costs nothing and never exceeds the $0.02
// median ceiling.
func (p *Planner) heuristicPlan(planCtx domain.PlanContext) *domain.PlannerResult {
	taskType := planCtx.TaskType
	techniques, ok := heuristicTechniques[taskType]
	if !ok {
		taskType = domain.TaskTypeGeneral
		techniques = heuristicTechniques[taskType]
	}

	keep := MaxTechniques
	confidence := 0.75
	switch planCtx.OptimizationLevel {
	case domain.OptimizationLevelCheap:
		keep = 1
		confidence = 0.6
	case domain.OptimizationLevelNormal:
		keep = 2
	case domain.OptimizationLevelExplore:
		keep = 3
		confidence = 0.8
	}
	if keep > len(techniques) {
		keep = len(techniques)
	}

	selected := make([]domain.Technique, keep)
	copy(selected, techniques[:keep])

	return &domain.PlannerResult{
		SuggestedTechniques: selected,
		Rationale: fmt.Sprintf("task %s at %s level favors %s",
			taskType, effectiveLevel(planCtx.OptimizationLevel), selected[0]),
		Confidence: confidence,
		Metadata: domain.PlannerMetadata{
			ModelUsed: "heuristic-v1",
			CostUSD:   0,
		},
	}
}

func (p *Planner) baseline(start time.Time) *domain.PlannerResult {
	p.metrics.Counter(telemetry.MetricBaselineResponses).Inc()
	plan := domain.BaselinePlan()
	plan.Metadata.ProcessingTimeMS = p.now().Sub(start).Milliseconds()
	return plan
}

func effectiveLevel(level domain.OptimizationLevel) domain.OptimizationLevel {
	if !level.IsValid() {
		return domain.OptimizationLevelNormal
	}
	return level
}
