package orchestrator

import (
	"sync"
	"time"

	"github.com/promptdial/promptdial/internal/domain"
)

// PipelineObserver receives pipeline lifecycle events. Implementations can
// use this to monitor, log, or stream execution progress.
type PipelineObserver interface {
	// OnStageStarted is called when a pipeline stage begins
	OnStageStarted(traceID, stage string)

	// OnStageCompleted is called when a pipeline stage finishes successfully
	OnStageCompleted(traceID, stage string, duration time.Duration)

	// OnStageFailed is called when a pipeline stage fails
	OnStageFailed(traceID, stage string, err error, duration time.Duration)

	// OnVariantRun is called when one variant's runner call returns
	OnVariantRun(traceID string, result *domain.RunnerResult)

	// OnVariantEvaluated is called when one variant's evaluation merges
	OnVariantEvaluated(traceID string, result *domain.EvaluationResult)

	// OnPipelineCompleted is called when the full response is sealed
	OnPipelineCompleted(traceID string, response *domain.OptimizationResponse, duration time.Duration)

	// OnPipelineFailed is called when the request fails terminally
	OnPipelineFailed(traceID string, err error, duration time.Duration)
}

// ObserverManager fans pipeline events out to registered observers.
type ObserverManager struct {
	observers []PipelineObserver
	mu        sync.RWMutex
}

// NewObserverManager creates a new ObserverManager.
func NewObserverManager() *ObserverManager {
	return &ObserverManager{
		observers: make([]PipelineObserver, 0),
	}
}

// AddObserver adds an observer to the manager.
func (om *ObserverManager) AddObserver(observer PipelineObserver) {
	om.mu.Lock()
	defer om.mu.Unlock()
	om.observers = append(om.observers, observer)
}

// NotifyStageStarted notifies all observers that a stage has started.
func (om *ObserverManager) NotifyStageStarted(traceID, stage string) {
	om.mu.RLock()
	defer om.mu.RUnlock()
	for _, observer := range om.observers {
		observer.OnStageStarted(traceID, stage)
	}
}

// NotifyStageCompleted notifies all observers that a stage has completed.
func (om *ObserverManager) NotifyStageCompleted(traceID, stage string, duration time.Duration) {
	om.mu.RLock()
	defer om.mu.RUnlock()
	for _, observer := range om.observers {
		observer.OnStageCompleted(traceID, stage, duration)
	}
}

// NotifyStageFailed notifies all observers that a stage has failed.
func (om *ObserverManager) NotifyStageFailed(traceID, stage string, err error, duration time.Duration) {
	om.mu.RLock()
	defer om.mu.RUnlock()
	for _, observer := range om.observers {
		observer.OnStageFailed(traceID, stage, err, duration)
	}
}

// NotifyVariantRun notifies all observers of a completed runner call.
func (om *ObserverManager) NotifyVariantRun(traceID string, result *domain.RunnerResult) {
	om.mu.RLock()
	defer om.mu.RUnlock()
	for _, observer := range om.observers {
		observer.OnVariantRun(traceID, result)
	}
}

// NotifyVariantEvaluated notifies all observers of a merged evaluation.
func (om *ObserverManager) NotifyVariantEvaluated(traceID string, result *domain.EvaluationResult) {
	om.mu.RLock()
	defer om.mu.RUnlock()
	for _, observer := range om.observers {
		observer.OnVariantEvaluated(traceID, result)
	}
}

// NotifyPipelineCompleted notifies all observers of a sealed response.
func (om *ObserverManager) NotifyPipelineCompleted(traceID string, response *domain.OptimizationResponse, duration time.Duration) {
	om.mu.RLock()
	defer om.mu.RUnlock()
	for _, observer := range om.observers {
		observer.OnPipelineCompleted(traceID, response, duration)
	}
}

// NotifyPipelineFailed notifies all observers of a terminal failure.
func (om *ObserverManager) NotifyPipelineFailed(traceID string, err error, duration time.Duration) {
	om.mu.RLock()
	defer om.mu.RUnlock()
	for _, observer := range om.observers {
		observer.OnPipelineFailed(traceID, err, duration)
	}
}
