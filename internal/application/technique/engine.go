package technique

import (
	"context"
	"hash/fnv"
	"math/rand"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/promptdial/promptdial/internal/domain"
	"github.com/promptdial/promptdial/internal/domain/errors"
	"github.com/promptdial/promptdial/internal/infrastructure/telemetry"
)

// Selection scoring constants.
const (
	scoreSuggested         = 100
	scoreTaskMatch         = 50
	scoreRetrievalMismatch = -30
	scoreComplexityBonus   = 20

	// minVariantBudget is the remaining-cost floor below which a technique
	// is not applicable at all.
	minVariantBudget = 0.01

	// stochasticAdmitRate admits a technique whose best_for list does not
	// include the task type.
	stochasticAdmitRate = 0.30

	// perTokenCostUSD prices an emitted variant by its token estimate.
	perTokenCostUSD = 0.01 / 1000.0
)

// BuildRequest carries the inputs of one build.
type BuildRequest struct {
	BasePrompt     string
	Classification domain.Classification
	Plan           domain.PlannerResult
	Budget         *domain.Budget
	TraceID        string
	MaxVariants    int
	Examples       []string
}

// Engine expands a base prompt into variants. Technique admission is
// seeded per trace, so repeated builds for the same trace are identical.
type Engine struct {
	registry *Registry
	metrics  *telemetry.Registry
}

// NewEngine creates an engine over the built-in technique registry.
func NewEngine(metrics *telemetry.Registry) *Engine {
	return &Engine{
		registry: NewRegistry(),
		metrics:  metrics,
	}
}

type scoredDescriptor struct {
	descriptor *Descriptor
	score      int
	order      int
}

// BuildVariants expands the base prompt into a validated, budget-charged
// variant set. It enforces the builder invariants before returning;
// violation yields a non-retryable BUILDER_INVARIANT error.
func (e *Engine) BuildVariants(ctx context.Context, req BuildRequest) ([]domain.Variant, error) {
	if req.MaxVariants <= 0 {
		req.MaxVariants = domain.DefaultMaxVariants
	}

	rng := rand.New(rand.NewSource(traceSeed(req.TraceID)))
	applicable := e.selectTechniques(req, rng)

	var variants []domain.Variant
	ordinal := 0

	for _, sd := range applicable {
		if len(variants) >= req.MaxVariants {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, errors.NewPipelineError(domain.CodeTimeout, req.TraceID, "S5",
				"variant build cancelled", err)
		}

		for _, flavor := range sd.descriptor.Flavors {
			if len(variants) >= req.MaxVariants {
				break
			}

			generated := sd.descriptor.Generate(GenerateInput{
				BasePrompt:     req.BasePrompt,
				Classification: req.Classification,
				Examples:       req.Examples,
				Flavor:         flavor,
			})

			estTokens := estimateTokens(generated.Prompt)
			cost := float64(estTokens) * perTokenCostUSD

			variant := domain.Variant{
				ID:          domain.MakeVariantID(sd.descriptor.Name, ordinal, req.TraceID),
				Technique:   sd.descriptor.Name,
				Prompt:      generated.Prompt,
				Temperature: generated.Temperature,
				EstTokens:   estTokens,
				CostUSD:     cost,
			}
			if err := variant.Validate(); err != nil {
				log.Warn().
					Str("trace_id", req.TraceID).
					Str("technique", sd.descriptor.Name.String()).
					Err(err).
					Msg("dropping invalid variant")
				continue
			}

			// The charge happens only after validation so a dropped
			// variant never consumes budget.
			if !req.Budget.Charge(variant.CostUSD) {
				log.Debug().
					Str("trace_id", req.TraceID).
					Str("technique", sd.descriptor.Name.String()).
					Float64("cost_usd", variant.CostUSD).
					Float64("remaining_usd", req.Budget.RemainingCostUSD).
					Msg("variant skipped, would overdraw budget")
				continue
			}

			variants = append(variants, variant)
			ordinal++
		}
	}

	if err := e.checkInvariants(req.TraceID, variants); err != nil {
		return nil, err
	}

	e.metrics.Counter("variants_generated_total").Add(int64(len(variants)))
	return variants, nil
}

// selectTechniques applies the applicability rules and returns descriptors
// in descending score order; registry order breaks ties.
func (e *Engine) selectTechniques(req BuildRequest, rng *rand.Rand) []scoredDescriptor {
	c := req.Classification
	var out []scoredDescriptor

	for i, d := range e.registry.List() {
		// A retrieval technique without retrieved context cannot run.
		if d.NeedsRetrieval && !c.NeedsRetrieval {
			continue
		}
		if !d.TaskMatch(c.TaskType) && rng.Float64() >= stochasticAdmitRate {
			continue
		}
		if !req.Budget.CanAfford(minVariantBudget) {
			continue
		}

		score := 0
		if inPlan(req.Plan.SuggestedTechniques, d.Name) {
			score += scoreSuggested
		}
		if d.TaskMatch(c.TaskType) {
			score += scoreTaskMatch
		}
		if c.NeedsRetrieval && !d.NeedsRetrieval {
			score += scoreRetrievalMismatch
		}
		if c.Complexity > 0.7 && (d.Name == domain.TechniqueTreeOfThought || d.Name == domain.TechniqueDSPyAPE) {
			score += scoreComplexityBonus
		}

		out = append(out, scoredDescriptor{descriptor: d, score: score, order: i})
	}

	sort.SliceStable(out, func(a, b int) bool {
		if out[a].score != out[b].score {
			return out[a].score > out[b].score
		}
		return out[a].order < out[b].order
	})
	return out
}

// checkInvariants enforces the builder invariants: at least one variant,
// every variant carries a technique, and the distinct technique set is
// non-empty.
func (e *Engine) checkInvariants(traceID string, variants []domain.Variant) error {
	var failures []string

	if len(variants) == 0 {
		failures = append(failures, "no variants produced")
	}
	techniques := make(map[domain.Technique]bool)
	for _, v := range variants {
		if v.Technique == "" {
			failures = append(failures, "variant "+v.ID+" has empty technique")
			continue
		}
		techniques[v.Technique] = true
	}
	if len(variants) > 0 && len(techniques) == 0 {
		failures = append(failures, "no distinct techniques used")
	}

	if len(failures) > 0 {
		e.metrics.Counter(telemetry.MetricBuilderInvariantViolation).Inc()
		log.Error().
			Str("trace_id", traceID).
			Strs("failures", failures).
			Msg("builder invariant violated")

		err := errors.NewPipelineError(domain.CodeBuilderInvariant, traceID, "S5",
			strings.Join(failures, "; "), nil)
		err.Details = failures
		return err
	}
	return nil
}

func inPlan(suggested []domain.Technique, name domain.Technique) bool {
	for _, t := range suggested {
		if t == name {
			return true
		}
	}
	return false
}

// estimateTokens approximates the token count of a prompt plus headroom
// for the response it elicits.
func estimateTokens(prompt string) int {
	words := len(strings.Fields(prompt))
	est := words*2 + 128
	if est < domain.VariantMinEstTokens {
		est = domain.VariantMinEstTokens
	}
	if est > domain.VariantMaxEstTokens {
		est = domain.VariantMaxEstTokens
	}
	return est
}

// traceSeed derives a deterministic admission seed from the trace ID so a
// rebuild for the same trace selects the same techniques.
func traceSeed(traceID string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(traceID))
	return int64(h.Sum64())
}
