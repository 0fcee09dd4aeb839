package selector

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/rs/zerolog/log"

	"github.com/promptdial/promptdial/internal/domain"
	"github.com/promptdial/promptdial/internal/domain/errors"
)

// Default scalarization weights for (quality, cost, latency).
const (
	DefaultQualityWeight = 0.6
	DefaultCostWeight    = 0.25
	DefaultLatencyWeight = 0.15
)

// Preferences tunes how the recommended point is chosen.
type Preferences struct {
	QualityWeight float64
	CostWeight    float64
	LatencyWeight float64

	// Expression, when set, replaces the weighted sum. It is compiled with
	// the environment {quality, cost, latency, norm_cost, norm_latency}
	// and must return a number; higher is better. A broken expression
	// falls back to the weighted sum.
	Expression string
}

// DefaultPreferences returns the standard weight set.
func DefaultPreferences() Preferences {
	return Preferences{
		QualityWeight: DefaultQualityWeight,
		CostWeight:    DefaultCostWeight,
		LatencyWeight: DefaultLatencyWeight,
	}
}

// Selection is the selector's output: the recommendation, the remaining
// frontier points, and the full Pareto frontier.
type Selection struct {
	Recommended    *domain.VariantOutcome
	Alternatives   []domain.VariantOutcome
	ParetoFrontier []domain.VariantOutcome
}

// SafetyChecker re-validates a candidate's generated text before it can be
// recommended.
type SafetyChecker interface {
	Recheck(text string) bool
}

// Selector chooses the recommended variant and Pareto frontier under the
// (quality, cost, latency) objectives. Compiled preference expressions are
// cached across requests.
type Selector struct {
	safety SafetyChecker

	mu       sync.RWMutex
	programs map[string]*vm.Program
}

// New creates a selector with the given safety checker.
func New(safety SafetyChecker) *Selector {
	return &Selector{
		safety:   safety,
		programs: make(map[string]*vm.Program),
	}
}

type objectivePoint struct {
	outcome     domain.VariantOutcome
	quality     float64
	cost        float64
	latency     float64
	normCost    float64
	normLatency float64
}

// Select maps every outcome to its objective triple, computes the Pareto
// frontier, picks the recommendation by balanced score, and enforces the
// final safety re-check. An error-bearing outcome never reaches the
// frontier.
func (s *Selector) Select(traceID string, outcomes []domain.VariantOutcome, prefs Preferences) (*Selection, error) {
	points := buildPoints(outcomes)
	if len(points) == 0 {
		return nil, errors.NewPipelineError(domain.CodeNoSafeVariant, traceID, "S8",
			"no runnable variants to select from", nil)
	}

	frontier := paretoFrontier(points)
	ranked := s.rankByBalanced(frontier, prefs)

	// Safety re-check: walk the ranked frontier until a candidate passes;
	// every rejected head is discarded.
	for i, p := range ranked {
		if s.safety != nil && !s.safety.Recheck(p.outcome.Run.Content) {
			log.Warn().
				Str("trace_id", traceID).
				Str("variant_id", p.outcome.Variant.ID).
				Msg("recommended candidate failed safety re-check, promoting next alternative")
			continue
		}

		selection := &Selection{
			Recommended:    &ranked[i].outcome,
			ParetoFrontier: outcomesOf(frontier),
		}
		// Every candidate ranked ahead of i failed the re-check, so only
		// the ones ranked after it remain as alternatives.
		for j := i + 1; j < len(ranked); j++ {
			selection.Alternatives = append(selection.Alternatives, ranked[j].outcome)
		}
		return selection, nil
	}

	return nil, errors.NewPipelineError(domain.CodeNoSafeVariant, traceID, "S8",
		"every frontier candidate failed the safety re-check", nil)
}

func buildPoints(outcomes []domain.VariantOutcome) []objectivePoint {
	var points []objectivePoint
	maxCost, maxLatency := 0.0, 0.0
	for _, o := range outcomes {
		if o.Run.Failed() {
			continue
		}
		points = append(points, objectivePoint{
			outcome: o,
			quality: o.Evaluation.FinalScore,
			cost:    o.Variant.CostUSD,
			latency: float64(o.Run.LatencyMS),
		})
		if o.Variant.CostUSD > maxCost {
			maxCost = o.Variant.CostUSD
		}
		if float64(o.Run.LatencyMS) > maxLatency {
			maxLatency = float64(o.Run.LatencyMS)
		}
	}
	for i := range points {
		if maxCost > 0 {
			points[i].normCost = points[i].cost / maxCost
		}
		if maxLatency > 0 {
			points[i].normLatency = points[i].latency / maxLatency
		}
	}
	return points
}

// dominates reports whether a is at least as good as b on every objective
// and strictly better on at least one.
func dominates(a, b objectivePoint) bool {
	if a.quality < b.quality || a.cost > b.cost || a.latency > b.latency {
		return false
	}
	return a.quality > b.quality || a.cost < b.cost || a.latency < b.latency
}

func paretoFrontier(points []objectivePoint) []objectivePoint {
	var frontier []objectivePoint
	for i, p := range points {
		dominated := false
		for j, q := range points {
			if i != j && dominates(q, p) {
				dominated = true
				break
			}
		}
		if !dominated {
			frontier = append(frontier, p)
		}
	}
	return frontier
}

// rankByBalanced orders frontier points by descending balanced score.
func (s *Selector) rankByBalanced(frontier []objectivePoint, prefs Preferences) []objectivePoint {
	if prefs.QualityWeight == 0 && prefs.CostWeight == 0 && prefs.LatencyWeight == 0 {
		prefs = DefaultPreferences()
	}

	scores := make([]float64, len(frontier))
	for i, p := range frontier {
		scores[i] = s.balancedScore(p, prefs)
	}

	ranked := make([]objectivePoint, len(frontier))
	copy(ranked, frontier)
	// Insertion sort keeps ties stable in frontier order.
	for i := 1; i < len(ranked); i++ {
		for j := i; j > 0 && scores[j] > scores[j-1]; j-- {
			ranked[j], ranked[j-1] = ranked[j-1], ranked[j]
			scores[j], scores[j-1] = scores[j-1], scores[j]
		}
	}
	return ranked
}

func (s *Selector) balancedScore(p objectivePoint, prefs Preferences) float64 {
	if prefs.Expression != "" {
		if score, err := s.evalExpression(prefs.Expression, p); err == nil {
			return score
		} else {
			log.Warn().Err(err).Str("expression", prefs.Expression).
				Msg("preference expression failed, falling back to weighted sum")
		}
	}
	return prefs.QualityWeight*p.quality - prefs.CostWeight*p.normCost - prefs.LatencyWeight*p.normLatency
}

func (s *Selector) evalExpression(expression string, p objectivePoint) (float64, error) {
	program, err := s.compile(expression)
	if err != nil {
		return 0, err
	}

	result, err := expr.Run(program, map[string]any{
		"quality":      p.quality,
		"cost":         p.cost,
		"latency":      p.latency,
		"norm_cost":    p.normCost,
		"norm_latency": p.normLatency,
	})
	if err != nil {
		return 0, err
	}

	switch v := result.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("preference expression returned %T, want number", result)
	}
}

func (s *Selector) compile(expression string) (*vm.Program, error) {
	s.mu.RLock()
	program, ok := s.programs[expression]
	s.mu.RUnlock()
	if ok {
		return program, nil
	}

	program, err := expr.Compile(expression)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.programs[expression] = program
	s.mu.Unlock()
	return program, nil
}

func outcomesOf(points []objectivePoint) []domain.VariantOutcome {
	out := make([]domain.VariantOutcome, len(points))
	for i, p := range points {
		out[i] = p.outcome
	}
	return out
}
