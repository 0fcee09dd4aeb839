package domain

// FlowVersion is the fixed pipeline version stamped into every receipt.
// The flow guard rejects any receipt carrying a different value.
const FlowVersion = "3.0.0"

// Receipt is the signed, tamper-evident summary of a pipeline run. The
// signature covers the canonical JSON of the exported fields plus the trace
// ID, so a receipt verifies only against the trace it was issued for.
type Receipt struct {
	FlowVersion string `json:"flow_version"`
	PlannerHash string `json:"planner_hash"`
	BuilderHash string `json:"builder_hash"`
	RunnerModel string `json:"runner_model"`
	Timestamp   string `json:"timestamp"`
	Signature   string `json:"sig"`
}
