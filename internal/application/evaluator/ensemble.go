package evaluator

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/promptdial/promptdial/internal/domain"
	"github.com/promptdial/promptdial/internal/infrastructure/telemetry"
)

// Ensemble runs the applicable evaluators in parallel on a (variant,
// response) pair, applies calibration, and merges the scores with
// disagreement detection.
type Ensemble struct {
	evaluators   []Evaluator
	monitor      *Monitor
	metrics      *telemetry.Registry
	llmAvailable bool
}

// NewEnsemble creates the fixed evaluator ensemble. llmAvailable gates
// evaluators that require a generation backend.
func NewEnsemble(monitor *Monitor, metrics *telemetry.Registry, llmAvailable bool) *Ensemble {
	return &Ensemble{
		evaluators: []Evaluator{
			&GEval{},
			&ChatEval{},
			&RoleDebate{},
			&SelfConsistency{},
		},
		monitor:      monitor,
		metrics:      metrics,
		llmAvailable: llmAvailable,
	}
}

// selected applies the task policy: G-Eval and Self-Consistency are always
// on; ChatEval covers conversational and creative tasks; RoleDebate joins
// for high-complexity work. Self-Consistency is additionally mandatory for
// consistency-technique variants, which the always-on rule already covers.
func (e *Ensemble) selected(variant domain.Variant, c domain.Classification) []Evaluator {
	var out []Evaluator
	for _, ev := range e.evaluators {
		if ev.RequiresLLM() && !e.llmAvailable {
			continue
		}
		switch ev.(type) {
		case *GEval:
			out = append(out, ev)
		case *SelfConsistency:
			out = append(out, ev)
		case *ChatEval:
			if c.TaskType == domain.TaskTypeGeneralQA || c.TaskType == domain.TaskTypeCreativeWriting {
				out = append(out, ev)
			}
		case *RoleDebate:
			if c.Complexity > 0.7 {
				out = append(out, ev)
			}
		}
	}

	// Defensive second pass for the consistency clause in case the
	// always-on rule changes.
	if strings.Contains(variant.Technique.String(), "consistency") && !containsEvaluator(out, "self_consistency") {
		out = append(out, &SelfConsistency{})
	}
	return out
}

// Evaluate runs the selected evaluators concurrently and merges their
// calibrated scores. A failed evaluator is counted and dropped; if every
// evaluator fails, an error is returned and the caller substitutes the
// degraded default.
func (e *Ensemble) Evaluate(ctx context.Context, variant domain.Variant, response domain.RunnerResult,
	classification domain.Classification, references []string) (*domain.EvaluationResult, error) {

	selected := e.selected(variant, classification)

	var mu sync.Mutex
	scores := make(map[string]float64)

	g, gctx := errgroup.WithContext(ctx)
	for _, ev := range selected {
		g.Go(func() error {
			result, err := ev.Evaluate(gctx, variant, response, classification, references)
			if err != nil {
				e.metrics.Counter("evaluator_failures_total").Inc()
				log.Warn().
					Str("variant_id", variant.ID).
					Str("evaluator", ev.Name()).
					Err(err).
					Msg("evaluator failed, dropping from merge")
				return nil
			}
			mu.Lock()
			for name, value := range result {
				scores[name] = e.monitor.Calibrate(name, value)
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if len(scores) == 0 {
		return nil, domain.NewDomainError(domain.ErrCodeInvalidState,
			"all evaluators failed for variant "+variant.ID, nil)
	}

	result := merge(variant.ID, scores)
	e.monitor.AddDataPoint(variant.ID, scores)
	e.metrics.Counter("evaluations_total").Inc()
	if result.CalibrationError != nil {
		e.metrics.Counter("evaluator_disagreements_total").Inc()
	}
	return result, nil
}

// tTable holds two-sided 95% critical values by degrees of freedom.
var tTable = map[int]float64{1: 12.71, 2: 4.30, 3: 3.18, 4: 2.78, 5: 2.57}

// merge computes the final score, a t-interval over the score population,
// and the disagreement flag.
func merge(variantID string, scores map[string]float64) *domain.EvaluationResult {
	values := make([]float64, 0, len(scores))
	for _, v := range scores {
		values = append(values, v)
	}
	sort.Float64s(values)

	var mean float64
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	low, high := mean, mean
	if n := len(values); n > 1 {
		sd := math.Sqrt(variance(values))
		t, ok := tTable[n-1]
		if !ok {
			t = 1.96
		}
		margin := t * sd / math.Sqrt(float64(n))
		low = clamp01(mean - margin)
		high = clamp01(mean + margin)
	}
	// The interval always brackets the final score.
	if low > mean {
		low = mean
	}
	if high < mean {
		high = mean
	}

	result := &domain.EvaluationResult{
		VariantID:          variantID,
		Scores:             scores,
		FinalScore:         mean,
		ConfidenceInterval: [2]float64{low, high},
	}
	if diff := domain.MaxPairDiff(scores); diff > domain.DisagreementThreshold {
		result.CalibrationError = &diff
	}
	return result
}

func containsEvaluator(evaluators []Evaluator, name string) bool {
	for _, ev := range evaluators {
		if ev.Name() == name {
			return true
		}
	}
	return false
}
