package errors

import (
	stderrors "errors"
	"fmt"

	"github.com/promptdial/promptdial/internal/domain"
)

// PipelineError represents an error that occurred during pipeline execution.
// This is the base error type for all orchestration-related errors.
type PipelineError struct {
	// Code is the recognized error code carried across service boundaries
	Code domain.ErrorCode
	// TraceID is the ID of the optimization the error belongs to
	TraceID string
	// Stage is the pipeline stage where the error occurred (if applicable)
	Stage string
	// Message is the error message
	Message string
	// Details carries per-invariant failure detail for flow-guard errors
	Details []string
	// Cause is the underlying error that caused this error
	Cause error
	// Retryable indicates whether this error can be retried
	Retryable bool
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("%s: pipeline error at stage %s (trace %s): %s",
			e.Code, e.Stage, e.TraceID, e.Message)
	}
	return fmt.Sprintf("%s: pipeline error (trace %s): %s", e.Code, e.TraceID, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field %s: %s", e.Field, e.Message)
}

// ConfigurationError represents a configuration error.
type ConfigurationError struct {
	Component string
	Message   string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error in %s: %s", e.Component, e.Message)
}

// NewPipelineError creates a new PipelineError.
func NewPipelineError(code domain.ErrorCode, traceID, stage, message string, cause error) *PipelineError {
	return &PipelineError{
		Code:      code,
		TraceID:   traceID,
		Stage:     stage,
		Message:   message,
		Cause:     cause,
		Retryable: code.Retryable(),
	}
}

// NewFlowMismatchError creates the flow-guard failure carrying the list of
// failed invariants.
func NewFlowMismatchError(traceID string, details []string) *PipelineError {
	return &PipelineError{
		Code:    domain.CodeFlowMismatch,
		TraceID: traceID,
		Stage:   "S9",
		Message: fmt.Sprintf("%d invariant(s) failed", len(details)),
		Details: details,
	}
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// NewConfigurationError creates a new ConfigurationError.
func NewConfigurationError(component, message string) *ConfigurationError {
	return &ConfigurationError{
		Component: component,
		Message:   message,
	}
}

// CodeOf extracts the error code from an error chain. Unrecognized errors
// map to INTERNAL_ERROR.
func CodeOf(err error) domain.ErrorCode {
	var pe *PipelineError
	if stderrors.As(err, &pe) {
		return pe.Code
	}
	var ve *ValidationError
	if stderrors.As(err, &ve) {
		return domain.CodeInvalidParameters
	}
	var de *domain.DomainError
	if stderrors.As(err, &de) {
		if de.Code == domain.ErrCodeInvalidInput {
			return domain.CodeInvalidPrompt
		}
		return domain.CodeInvalidParameters
	}
	return domain.CodeInternalError
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var pe *PipelineError
	if stderrors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// DetailsOf returns the invariant detail list if err is a flow-guard error.
func DetailsOf(err error) []string {
	var pe *PipelineError
	if stderrors.As(err, &pe) {
		return pe.Details
	}
	return nil
}
