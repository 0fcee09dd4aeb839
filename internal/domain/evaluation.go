package domain

import "math"

// DisagreementThreshold is the max pairwise score difference above which
// the ensemble flags calibration error on the result.
const DisagreementThreshold = 0.30

// EvaluationResult is the merged verdict of the evaluator ensemble on a
// single (variant, response) pair. CalibrationError is populated iff the
// evaluators disagreed by more than DisagreementThreshold.
type EvaluationResult struct {
	VariantID          string             `json:"variant_id"`
	Scores             map[string]float64 `json:"scores"`
	FinalScore         float64            `json:"final_score"`
	ConfidenceInterval [2]float64         `json:"confidence_interval"`
	CalibrationError   *float64           `json:"calibration_error,omitempty"`
}

// MaxPairDiff returns the largest absolute difference between any two
// evaluator scores. Zero for fewer than two scores.
func MaxPairDiff(scores map[string]float64) float64 {
	if len(scores) < 2 {
		return 0
	}
	lo := math.Inf(1)
	hi := math.Inf(-1)
	for _, s := range scores {
		if s < lo {
			lo = s
		}
		if s > hi {
			hi = s
		}
	}
	return hi - lo
}

// DefaultEvaluation returns the degraded score used when evaluation of a
// variant fails entirely. The pipeline continues with it rather than
// aborting the request.
func DefaultEvaluation(variantID string) *EvaluationResult {
	return &EvaluationResult{
		VariantID: variantID,
		Scores: map[string]float64{
			"g_eval":           0.5,
			"chat_eval":        0.5,
			"self_consistency": 0.5,
		},
		FinalScore:         0.5,
		ConfidenceInterval: [2]float64{0.4, 0.6},
	}
}
