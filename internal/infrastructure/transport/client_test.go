package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptdial/promptdial/internal/domain"
	"github.com/promptdial/promptdial/internal/domain/errors"
)

func envelopeOK(t *testing.T, w http.ResponseWriter, traceID string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	resp := domain.ServiceResponse{
		TraceID:   traceID,
		Timestamp: time.Now().UTC(),
		Service:   "test",
		Success:   true,
		Data:      raw,
	}
	require.NoError(t, json.NewEncoder(w).Encode(resp))
}

func TestClient_Call_Success(t *testing.T) {
	var gotTrace atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTrace.Store(r.Header.Get(TraceHeader))

		var envelope domain.ServiceRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&envelope))
		assert.Equal(t, "trace-1", envelope.TraceID)
		assert.Equal(t, "classify", envelope.Method)

		envelopeOK(t, w, envelope.TraceID, map[string]string{"answer": "ok"})
	}))
	defer srv.Close()

	client := NewClient("classifier", srv.URL)

	var out map[string]string
	err := client.Call(context.Background(), "trace-1", "classify", map[string]string{"prompt": "hi"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "ok", out["answer"])
	assert.Equal(t, "trace-1", gotTrace.Load())
}

func TestClient_Call_RetriesOn500(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		envelopeOK(t, w, "trace-1", map[string]string{"answer": "eventually"})
	}))
	defer srv.Close()

	client := NewClient("classifier", srv.URL, WithRetries(2), WithBackoffBase(time.Millisecond))

	var out map[string]string
	err := client.Call(context.Background(), "trace-1", "classify", nil, &out)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, "eventually", out["answer"])
}

func TestClient_Call_NoRetryOn4xx(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	client := NewClient("classifier", srv.URL, WithRetries(3), WithBackoffBase(time.Millisecond))

	err := client.Call(context.Background(), "trace-1", "classify", nil, nil)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, domain.CodeInvalidParameters, errors.CodeOf(err))
}

func TestClient_Call_ExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient("classifier", srv.URL, WithRetries(2), WithBackoffBase(time.Millisecond))

	err := client.Call(context.Background(), "trace-1", "classify", nil, nil)
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, domain.CodeServiceUnavailable, errors.CodeOf(err))
}

func TestClient_Call_ServiceErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := domain.ServiceResponse{
			TraceID: "trace-1",
			Service: "safety",
			Success: false,
			Error: &domain.ServiceError{
				Code:      domain.CodeSafetyViolation,
				Message:   "blocked",
				Retryable: false,
			},
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	client := NewClient("safety", srv.URL)

	err := client.Call(context.Background(), "trace-1", "sanitize", nil, nil)
	require.Error(t, err)
	assert.Equal(t, domain.CodeSafetyViolation, errors.CodeOf(err))
	assert.False(t, errors.IsRetryable(err))
}

func TestClient_Call_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient("classifier", srv.URL, WithRetries(5), WithBackoffBase(50*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := client.Call(ctx, "trace-1", "classify", nil, nil)
	require.Error(t, err)
}
