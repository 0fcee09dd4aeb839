package websocket

import (
	"time"

	"github.com/promptdial/promptdial/internal/domain"
)

// PipelineEventObserver bridges pipeline observer events onto the hub so
// subscribed clients see stage and variant progress live.
type PipelineEventObserver struct {
	broadcaster Broadcaster
}

// NewPipelineEventObserver creates the bridge.
func NewPipelineEventObserver(broadcaster Broadcaster) *PipelineEventObserver {
	return &PipelineEventObserver{broadcaster: broadcaster}
}

// OnStageStarted broadcasts a stage start event.
func (o *PipelineEventObserver) OnStageStarted(traceID, stage string) {
	o.broadcaster.Broadcast(traceID, &WSEvent{
		Type:      EventStageStarted,
		Timestamp: time.Now().UTC(),
		TraceID:   traceID,
		Stage:     stage,
	})
}

// OnStageCompleted broadcasts a stage completion event.
func (o *PipelineEventObserver) OnStageCompleted(traceID, stage string, duration time.Duration) {
	o.broadcaster.Broadcast(traceID, &WSEvent{
		Type:       EventStageCompleted,
		Timestamp:  time.Now().UTC(),
		TraceID:    traceID,
		Stage:      stage,
		DurationMs: duration.Milliseconds(),
	})
}

// OnStageFailed broadcasts a stage failure event.
func (o *PipelineEventObserver) OnStageFailed(traceID, stage string, err error, duration time.Duration) {
	o.broadcaster.Broadcast(traceID, &WSEvent{
		Type:       EventStageFailed,
		Timestamp:  time.Now().UTC(),
		TraceID:    traceID,
		Stage:      stage,
		DurationMs: duration.Milliseconds(),
		Error:      err.Error(),
	})
}

// OnVariantRun broadcasts a runner completion event.
func (o *PipelineEventObserver) OnVariantRun(traceID string, result *domain.RunnerResult) {
	o.broadcaster.Broadcast(traceID, &WSEvent{
		Type:       EventVariantRun,
		Timestamp:  time.Now().UTC(),
		TraceID:    traceID,
		VariantID:  result.VariantID,
		Provider:   result.Provider,
		Model:      result.Model,
		DurationMs: result.LatencyMS,
		Error:      result.Error,
	})
}

// OnVariantEvaluated broadcasts a merged evaluation event.
func (o *PipelineEventObserver) OnVariantEvaluated(traceID string, result *domain.EvaluationResult) {
	o.broadcaster.Broadcast(traceID, &WSEvent{
		Type:       EventVariantEvaluated,
		Timestamp:  time.Now().UTC(),
		TraceID:    traceID,
		VariantID:  result.VariantID,
		FinalScore: result.FinalScore,
	})
}

// OnPipelineCompleted broadcasts the terminal success event.
func (o *PipelineEventObserver) OnPipelineCompleted(traceID string, _ *domain.OptimizationResponse, duration time.Duration) {
	o.broadcaster.Broadcast(traceID, &WSEvent{
		Type:       EventPipelineDone,
		Timestamp:  time.Now().UTC(),
		TraceID:    traceID,
		DurationMs: duration.Milliseconds(),
	})
}

// OnPipelineFailed broadcasts the terminal failure event.
func (o *PipelineEventObserver) OnPipelineFailed(traceID string, err error, duration time.Duration) {
	o.broadcaster.Broadcast(traceID, &WSEvent{
		Type:       EventPipelineFailed,
		Timestamp:  time.Now().UTC(),
		TraceID:    traceID,
		DurationMs: duration.Milliseconds(),
		Error:      err.Error(),
	})
}
