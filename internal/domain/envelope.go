package domain

import (
	"encoding/json"
	"time"
)

// ServiceRequest is the envelope every inter-service request body uses.
// The trace ID inside the body mirrors the X-Trace-ID header.
type ServiceRequest struct {
	TraceID   string          `json:"trace_id"`
	Timestamp time.Time       `json:"timestamp"`
	Service   string          `json:"service"`
	Method    string          `json:"method"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// ServiceError is the wire form of a failed inter-service call.
type ServiceError struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
}

// ServiceResponse is the envelope every inter-service response body uses.
type ServiceResponse struct {
	TraceID   string          `json:"trace_id"`
	Timestamp time.Time       `json:"timestamp"`
	Service   string          `json:"service"`
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     *ServiceError   `json:"error,omitempty"`
}

// NewServiceRequest wraps a payload into a request envelope.
func NewServiceRequest(traceID, service, method string, payload any) (*ServiceRequest, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = data
	}
	return &ServiceRequest{
		TraceID:   traceID,
		Timestamp: time.Now().UTC(),
		Service:   service,
		Method:    method,
		Payload:   raw,
	}, nil
}
