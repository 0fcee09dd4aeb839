package orchestrator

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/promptdial/promptdial/internal/application/classifier"
	"github.com/promptdial/promptdial/internal/application/evaluator"
	"github.com/promptdial/promptdial/internal/application/retrieval"
	"github.com/promptdial/promptdial/internal/application/runner"
	"github.com/promptdial/promptdial/internal/application/safety"
	"github.com/promptdial/promptdial/internal/application/selector"
	"github.com/promptdial/promptdial/internal/application/strategy"
	"github.com/promptdial/promptdial/internal/application/technique"
	"github.com/promptdial/promptdial/internal/domain"
	"github.com/promptdial/promptdial/internal/domain/errors"
	"github.com/promptdial/promptdial/internal/infrastructure/audit"
	"github.com/promptdial/promptdial/internal/infrastructure/telemetry"
)

// RunConcurrency is the fan-out cap of the run stage: at most this many
// runner calls execute at once per request, dispatched in batches that
// complete before the next begins.
const RunConcurrency = 3

// Stage names used in telemetry, logs, and observer events.
const (
	StageSanitize = "S1:sanitize"
	StageClassify = "S2:classify"
	StagePlan     = "S3:plan"
	StageRetrieve = "S4:retrieve"
	StageBuild    = "S5:build"
	StageRun      = "S6:run"
	StageEvaluate = "S7:evaluate"
	StageSelect   = "S8:select"
	StageValidate = "S9:validate"
)

// Deps wires the pipeline's collaborators. Process-wide state (telemetry,
// audit, calibration) is passed in explicitly so the concurrency contract
// stays visible.
type Deps struct {
	Safety    *safety.Guard
	Classifier *classifier.Classifier
	Planner   *strategy.Planner
	Engine    *technique.Engine
	Runner    *runner.Runner
	Ensemble  *evaluator.Ensemble
	Selector  *selector.Selector
	Retriever retrieval.Retriever
	Guard     *FlowGuard
	Metrics   *telemetry.Registry
	Observers *ObserverManager
	Audit     audit.Store

	RunnerTimeout    time.Duration
	EvaluatorTimeout time.Duration
	RetrievalTimeout time.Duration
}

// Pipeline sequences a request through the nine stages, enforces budgets
// and invariants, and attaches the signed receipt.
type Pipeline struct {
	deps Deps
}

// NewPipeline creates the orchestrator.
func NewPipeline(deps Deps) *Pipeline {
	if deps.Observers == nil {
		deps.Observers = NewObserverManager()
	}
	if deps.Retriever == nil {
		deps.Retriever = retrieval.Noop{}
	}
	if deps.RunnerTimeout == 0 {
		deps.RunnerTimeout = 30 * time.Second
	}
	if deps.EvaluatorTimeout == 0 {
		deps.EvaluatorTimeout = 10 * time.Second
	}
	if deps.RetrievalTimeout == 0 {
		deps.RetrievalTimeout = 10 * time.Second
	}
	return &Pipeline{deps: deps}
}

// Guard exposes the flow guard for external receipt verification.
func (p *Pipeline) Guard() *FlowGuard {
	return p.deps.Guard
}

// RunnerModel returns the model identifier stamped into receipts.
func (p *Pipeline) RunnerModel() string {
	return p.deps.Runner.Model()
}

// Optimize runs one request through S1..S9 and returns the sealed
// response. Stage failures follow the per-stage policy: safety blocks,
// classifier errors, builder invariants, and flow mismatches surface;
// planner, retrieval, and per-variant evaluation failures degrade.
func (p *Pipeline) Optimize(ctx context.Context, traceID string, request *domain.OptimizationRequest) (*domain.OptimizationResponse, error) {
	start := time.Now()

	response, err := p.optimize(ctx, traceID, request)
	elapsed := time.Since(start)

	if err != nil {
		code := errors.CodeOf(err)
		p.deps.Metrics.Counter("pipeline_errors_" + string(code)).Inc()
		p.deps.Observers.NotifyPipelineFailed(traceID, err, elapsed)
		p.recordOutcome(ctx, traceID, "failed:"+string(code))

		log.Error().
			Str("trace_id", traceID).
			Str("code", string(code)).
			Dur("elapsed", elapsed).
			Err(err).
			Msg("optimization failed")
		return nil, err
	}

	p.deps.Metrics.Counter("optimizations_total").Inc()
	p.deps.Metrics.ObserveDuration("optimization_duration_ms", elapsed)
	p.deps.Observers.NotifyPipelineCompleted(traceID, response, elapsed)
	p.recordOutcome(ctx, traceID, "success")

	log.Info().
		Str("trace_id", traceID).
		Int("variants", len(response.Variants)).
		Dur("elapsed", elapsed).
		Msg("optimization completed")
	return response, nil
}

func (p *Pipeline) optimize(ctx context.Context, traceID string, request *domain.OptimizationRequest) (*domain.OptimizationResponse, error) {
	opts, err := request.Normalize()
	if err != nil {
		return nil, errors.NewPipelineError(domain.CodeInvalidPrompt, traceID, "", err.Error(), err)
	}

	budget := domain.NewBudget(opts.CostCapUSD, opts.LatencyCapMS, domain.VariantMaxEstTokens)

	// S1: sanitize.
	sanitized, err := p.sanitize(ctx, traceID, budget, request.Prompt)
	if err != nil {
		return nil, err
	}
	prompt := sanitized.SanitizedPrompt

	// S2: classify.
	classification, err := p.classify(traceID, budget, prompt, opts)
	if err != nil {
		return nil, err
	}

	// S3: plan. Failures degrade to the baseline inside the planner.
	plan := p.plan(ctx, traceID, budget, prompt, classification)

	// S4: retrieve, best-effort.
	examples := p.retrieve(ctx, traceID, budget, prompt, opts, classification)

	// S5: build variants.
	variants, err := p.build(ctx, traceID, budget, prompt, classification, plan, opts, examples)
	if err != nil {
		return nil, err
	}

	// S6: run variants with bounded fan-out.
	runs, err := p.run(ctx, traceID, budget, variants)
	if err != nil {
		return nil, err
	}

	// S7: evaluate each response.
	outcomes, err := p.evaluate(ctx, traceID, budget, variants, runs, classification, opts)
	if err != nil {
		return nil, err
	}

	// S8: select and re-check safety.
	selection, err := p.selectStage(traceID, budget, outcomes, opts)
	if err != nil {
		return nil, err
	}

	// S9: assemble, validate, sign.
	return p.seal(traceID, request.Prompt, classification, plan, sanitized, variants, selection)
}

func (p *Pipeline) checkBudget(traceID, stage string, budget *domain.Budget) error {
	if budget.TimeExhausted() {
		p.deps.Metrics.Counter("budget_exhausted_total").Inc()
		return errors.NewPipelineError(domain.CodeBudgetExceeded, traceID, stage,
			"latency budget exhausted before "+stage, nil)
	}
	return nil
}

// stage wraps a stage body with timing, telemetry, and observer events.
func (p *Pipeline) stage(traceID, name string, body func() error) error {
	start := time.Now()
	p.deps.Observers.NotifyStageStarted(traceID, name)

	err := body()
	elapsed := time.Since(start)
	p.deps.Metrics.ObserveDuration("stage_duration_ms_"+name, elapsed)

	if err != nil {
		p.deps.Observers.NotifyStageFailed(traceID, name, err, elapsed)
		return err
	}
	p.deps.Observers.NotifyStageCompleted(traceID, name, elapsed)
	return nil
}

func (p *Pipeline) sanitize(ctx context.Context, traceID string, budget *domain.Budget, prompt string) (*domain.SafetyResult, error) {
	if err := p.checkBudget(traceID, StageSanitize, budget); err != nil {
		return nil, err
	}

	var result *domain.SafetyResult
	err := p.stage(traceID, StageSanitize, func() error {
		var err error
		result, err = p.deps.Safety.Sanitize(ctx, traceID, prompt)
		if err != nil {
			return errors.NewPipelineError(domain.CodeInternalError, traceID, StageSanitize,
				"sanitizer unavailable", err)
		}
		if !result.Safe {
			return errors.NewPipelineError(domain.CodeSafetyBlock, traceID, StageSanitize,
				"prompt blocked: "+result.BlockedReason, nil)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (p *Pipeline) classify(traceID string, budget *domain.Budget, prompt string, opts domain.RequestOptions) (*domain.Classification, error) {
	if err := p.checkBudget(traceID, StageClassify, budget); err != nil {
		return nil, err
	}

	var classification *domain.Classification
	err := p.stage(traceID, StageClassify, func() (stageErr error) {
		defer func() {
			if r := recover(); r != nil {
				stageErr = errors.NewPipelineError(domain.CodeClassifierError, traceID, StageClassify,
					"classifier panicked", nil)
			}
		}()

		classification = p.deps.Classifier.Classify(prompt)
		if opts.TaskType.IsValid() {
			classification.TaskType = opts.TaskType
		}
		if opts.Domain.IsValid() {
			classification.Domain = opts.Domain
		}
		if err := classification.Validate(); err != nil {
			return errors.NewPipelineError(domain.CodeClassifierError, traceID, StageClassify,
				"classifier produced invalid result", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return classification, nil
}

func (p *Pipeline) plan(ctx context.Context, traceID string, budget *domain.Budget, prompt string,
	classification *domain.Classification) *domain.PlannerResult {

	if err := p.checkBudget(traceID, StagePlan, budget); err != nil {
		// Planning degrades rather than failing the request.
		return domain.BaselinePlan()
	}

	var plan *domain.PlannerResult
	_ = p.stage(traceID, StagePlan, func() error {
		plan = p.deps.Planner.Plan(strategy.WithTraceID(ctx, traceID), prompt, domain.PlanContext{
			TaskType:          classification.TaskType,
			ModelName:         p.deps.Runner.Model(),
			OptimizationLevel: domain.OptimizationLevelNormal,
		})
		return nil
	})
	if plan == nil {
		plan = domain.BaselinePlan()
	}
	return plan
}

func (p *Pipeline) retrieve(ctx context.Context, traceID string, budget *domain.Budget, prompt string,
	opts domain.RequestOptions, classification *domain.Classification) []string {

	examples := append([]string(nil), opts.Examples...)
	if !classification.NeedsRetrieval && len(opts.Examples) == 0 {
		return examples
	}
	if err := p.checkBudget(traceID, StageRetrieve, budget); err != nil {
		return examples
	}

	_ = p.stage(traceID, StageRetrieve, func() error {
		rctx, cancel := context.WithTimeout(ctx, p.deps.RetrievalTimeout)
		defer cancel()

		passages, err := p.deps.Retriever.Retrieve(rctx, traceID, prompt, 5)
		if err != nil {
			// Retrieval is best-effort: swallow, count, continue.
			p.deps.Metrics.Counter("retrieval_failures_total").Inc()
			log.Warn().Str("trace_id", traceID).Err(err).Msg("retrieval failed, continuing without passages")
			return nil
		}
		examples = append(examples, passages...)
		return nil
	})
	return examples
}

func (p *Pipeline) build(ctx context.Context, traceID string, budget *domain.Budget, prompt string,
	classification *domain.Classification, plan *domain.PlannerResult,
	opts domain.RequestOptions, examples []string) ([]domain.Variant, error) {

	if err := p.checkBudget(traceID, StageBuild, budget); err != nil {
		return nil, err
	}

	var variants []domain.Variant
	err := p.stage(traceID, StageBuild, func() error {
		var err error
		variants, err = p.deps.Engine.BuildVariants(ctx, technique.BuildRequest{
			BasePrompt:     prompt,
			Classification: *classification,
			Plan:           *plan,
			Budget:         budget,
			TraceID:        traceID,
			MaxVariants:    opts.MaxVariants,
			Examples:       examples,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return variants, nil
}

// run fans variants out to the runner in batches of RunConcurrency. The
// returned slice preserves input variant order; a batch completes before
// the next begins. Per-variant errors become error-bearing results and do
// not abort the stage.
func (p *Pipeline) run(ctx context.Context, traceID string, budget *domain.Budget, variants []domain.Variant) ([]domain.RunnerResult, error) {
	if err := p.checkBudget(traceID, StageRun, budget); err != nil {
		return nil, err
	}

	results := make([]domain.RunnerResult, len(variants))
	err := p.stage(traceID, StageRun, func() error {
		for batchStart := 0; batchStart < len(variants); batchStart += RunConcurrency {
			batchEnd := batchStart + RunConcurrency
			if batchEnd > len(variants) {
				batchEnd = len(variants)
			}

			var wg sync.WaitGroup
			for i := batchStart; i < batchEnd; i++ {
				wg.Add(1)
				go func(idx int) {
					defer wg.Done()

					rctx, cancel := context.WithTimeout(ctx, p.deps.RunnerTimeout)
					defer cancel()

					result := p.deps.Runner.Run(rctx, variants[idx], traceID)
					results[idx] = *result
					p.deps.Observers.NotifyVariantRun(traceID, result)
				}(i)
			}
			wg.Wait()

			if err := ctx.Err(); err != nil {
				return errors.NewPipelineError(domain.CodeTimeout, traceID, StageRun,
					"run stage cancelled", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// evaluate scores every (variant, response) pair. A failed run or a failed
// ensemble degrades to the default score instead of aborting the request.
func (p *Pipeline) evaluate(ctx context.Context, traceID string, budget *domain.Budget,
	variants []domain.Variant, runs []domain.RunnerResult,
	classification *domain.Classification, opts domain.RequestOptions) ([]domain.VariantOutcome, error) {

	if err := p.checkBudget(traceID, StageEvaluate, budget); err != nil {
		return nil, err
	}

	var references []string
	if opts.ReferenceOutput != "" {
		references = []string{opts.ReferenceOutput}
	}

	outcomes := make([]domain.VariantOutcome, len(variants))
	err := p.stage(traceID, StageEvaluate, func() error {
		sem := make(chan struct{}, RunConcurrency)
		var wg sync.WaitGroup

		for i := range variants {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				sem <- struct{}{}
				defer func() { <-sem }()

				evaluation := p.evaluateOne(ctx, traceID, variants[idx], runs[idx], classification, references)
				outcomes[idx] = domain.VariantOutcome{
					Variant:    variants[idx],
					Run:        runs[idx],
					Evaluation: *evaluation,
				}
				p.deps.Observers.NotifyVariantEvaluated(traceID, evaluation)
			}(i)
		}
		wg.Wait()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcomes, nil
}

func (p *Pipeline) evaluateOne(ctx context.Context, traceID string, variant domain.Variant,
	run domain.RunnerResult, classification *domain.Classification, references []string) *domain.EvaluationResult {

	if run.Failed() {
		p.deps.Metrics.Counter("evaluation_defaults_total").Inc()
		return domain.DefaultEvaluation(variant.ID)
	}

	ectx, cancel := context.WithTimeout(ctx, p.deps.EvaluatorTimeout)
	defer cancel()

	evaluation, err := p.deps.Ensemble.Evaluate(ectx, variant, run, *classification, references)
	if err != nil {
		p.deps.Metrics.Counter("evaluation_defaults_total").Inc()
		log.Warn().
			Str("trace_id", traceID).
			Str("variant_id", variant.ID).
			Err(err).
			Msg("evaluation failed, substituting default score")
		return domain.DefaultEvaluation(variant.ID)
	}
	return evaluation
}

func (p *Pipeline) selectStage(traceID string, budget *domain.Budget,
	outcomes []domain.VariantOutcome, opts domain.RequestOptions) (*selector.Selection, error) {

	if err := p.checkBudget(traceID, StageSelect, budget); err != nil {
		return nil, err
	}

	var selection *selector.Selection
	err := p.stage(traceID, StageSelect, func() error {
		var err error
		selection, err = p.deps.Selector.Select(traceID, outcomes, preferencesFrom(opts))
		return err
	})
	if err != nil {
		return nil, err
	}
	return selection, nil
}

func (p *Pipeline) seal(traceID, originalPrompt string, classification *domain.Classification,
	plan *domain.PlannerResult, sanitized *domain.SafetyResult,
	variants []domain.Variant, selection *selector.Selection) (*domain.OptimizationResponse, error) {

	response := &domain.OptimizationResponse{
		TraceID:            traceID,
		OriginalPrompt:     originalPrompt,
		Classification:     *classification,
		Variants:           selection.ParetoFrontier,
		RecommendedVariant: selection.Recommended,
		Metadata: domain.ResponseMetadata{
			TotalVariantsGenerated: len(variants),
			ParetoFrontierSize:     len(selection.ParetoFrontier),
			TechniquesUsed:         distinctTechniques(variants),
			SuggestedTechniques:    plan.SuggestedTechniques,
			StrategyConfidence:     plan.Confidence,
			SafetyModifications:    sanitized.Modified,
		},
	}
	for _, outcome := range selection.ParetoFrontier {
		response.EvaluationResults = append(response.EvaluationResults, outcome.Evaluation)
	}

	err := p.stage(traceID, StageValidate, func() error {
		return p.deps.Guard.Seal(response, p.deps.Runner.Model())
	})
	if err != nil {
		return nil, err
	}
	return response, nil
}

func (p *Pipeline) recordOutcome(ctx context.Context, traceID, detail string) {
	if p.deps.Audit == nil {
		return
	}
	err := p.deps.Audit.Append(ctx, audit.Record{
		TraceID:   traceID,
		Timestamp: time.Now().UTC(),
		Kind:      audit.KindOutcome,
		Detail:    detail,
	})
	if err != nil {
		log.Error().Err(err).Str("trace_id", traceID).Msg("audit append failed")
	}
}

func distinctTechniques(variants []domain.Variant) []domain.Technique {
	seen := make(map[domain.Technique]bool)
	var out []domain.Technique
	for _, v := range variants {
		if !seen[v.Technique] {
			seen[v.Technique] = true
			out = append(out, v.Technique)
		}
	}
	return out
}

func preferencesFrom(opts domain.RequestOptions) selector.Preferences {
	prefs := selector.DefaultPreferences()
	if opts.Preferences == nil {
		return prefs
	}
	if v, ok := opts.Preferences["quality_weight"]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			prefs.QualityWeight = f
		}
	}
	if v, ok := opts.Preferences["cost_weight"]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			prefs.CostWeight = f
		}
	}
	if v, ok := opts.Preferences["latency_weight"]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			prefs.LatencyWeight = f
		}
	}
	if v, ok := opts.Preferences["expression"]; ok {
		prefs.Expression = v
	}
	return prefs
}
