package domain

// PlannerMetadata carries operational detail about how a plan was produced.
// A fail-closed baseline plan is distinguishable from a real one only here.
type PlannerMetadata struct {
	ProcessingTimeMS int64   `json:"processing_time_ms"`
	ModelUsed        string  `json:"model_used"`
	CostUSD          float64 `json:"cost_usd"`
}

// PlannerResult is the strategy planner's recommendation: one to three
// allow-listed techniques with a rationale and a confidence score.
type PlannerResult struct {
	SuggestedTechniques []Technique     `json:"suggested_techniques"`
	Rationale           string          `json:"rationale"`
	Confidence          float64         `json:"confidence"`
	Metadata            PlannerMetadata `json:"metadata"`
}

// PlanContext is the request context the planner consults.
type PlanContext struct {
	TaskType          TaskType          `json:"task_type"`
	ModelName         string            `json:"model_name"`
	OptimizationLevel OptimizationLevel `json:"optimization_level"`
	Seed              int64             `json:"seed,omitempty"`
	ExtraMetadata     map[string]string `json:"extra_metadata,omitempty"`
}

// BaselinePlan returns the fail-closed planner result. It satisfies every
// planner contract and is returned whenever planning cannot complete.
func BaselinePlan() *PlannerResult {
	return &PlannerResult{
		SuggestedTechniques: []Technique{TechniqueChainOfThought},
		Rationale:           "baseline",
		Confidence:          0.5,
		Metadata: PlannerMetadata{
			ModelUsed: "baseline",
		},
	}
}
