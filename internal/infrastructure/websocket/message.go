package websocket

import (
	"time"
)

// Event types (server -> client)
const (
	EventStageStarted     = "stage.started"
	EventStageCompleted   = "stage.completed"
	EventStageFailed      = "stage.failed"
	EventVariantRun       = "variant.run"
	EventVariantEvaluated = "variant.evaluated"
	EventPipelineDone     = "pipeline.completed"
	EventPipelineFailed   = "pipeline.failed"
)

// Command types (client -> server)
const (
	CmdSubscribe   = "subscribe"
	CmdUnsubscribe = "unsubscribe"
)

// WSEvent represents a pipeline event sent from server to client
type WSEvent struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	TraceID   string    `json:"trace_id"`

	// Stage-specific fields (optional)
	Stage      string `json:"stage,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
	Error      string `json:"error,omitempty"`

	// Variant-specific fields (optional)
	VariantID  string  `json:"variant_id,omitempty"`
	Provider   string  `json:"provider,omitempty"`
	Model      string  `json:"model,omitempty"`
	FinalScore float64 `json:"final_score,omitempty"`
}

// WSCommand represents a command sent from client to server
type WSCommand struct {
	Action  string `json:"action"`
	TraceID string `json:"trace_id,omitempty"`
}

// WSResponse represents a response to a client command
type WSResponse struct {
	Type    string `json:"type"`
	Action  string `json:"action,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}
