package domain

// VariantOutcome bundles a variant with the run and evaluation results it
// produced. Selection operates on outcomes; the Pareto frontier is a set of
// outcomes.
type VariantOutcome struct {
	Variant    Variant          `json:"variant"`
	Run        RunnerResult     `json:"run"`
	Evaluation EvaluationResult `json:"evaluation"`
}

// Quality returns the selection quality objective.
func (o *VariantOutcome) Quality() float64 {
	return o.Evaluation.FinalScore
}

// ResponseMetadata summarizes pipeline decisions for the client.
type ResponseMetadata struct {
	TotalVariantsGenerated int         `json:"total_variants_generated"`
	ParetoFrontierSize     int         `json:"pareto_frontier_size"`
	TechniquesUsed         []Technique `json:"techniques_used"`
	SuggestedTechniques    []Technique `json:"suggested_techniques"`
	StrategyConfidence     float64     `json:"strategy_confidence"`
	SafetyModifications    bool        `json:"safety_modifications"`
}

// OptimizationResponse is the full result of one optimization, assembled by
// the orchestrator and validated by the flow guard before the receipt is
// attached.
type OptimizationResponse struct {
	TraceID            string             `json:"trace_id"`
	OriginalPrompt     string             `json:"original_prompt"`
	Classification     Classification     `json:"classification"`
	Variants           []VariantOutcome   `json:"variants"`
	RecommendedVariant *VariantOutcome    `json:"recommended_variant"`
	EvaluationResults  []EvaluationResult `json:"evaluation_results"`
	Metadata           ResponseMetadata   `json:"metadata"`
	Receipt            *Receipt           `json:"receipt,omitempty"`
}
