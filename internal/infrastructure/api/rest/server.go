package rest

import (
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/promptdial/promptdial/internal/application/orchestrator"
	"github.com/promptdial/promptdial/internal/domain"
	"github.com/promptdial/promptdial/internal/domain/errors"
	"github.com/promptdial/promptdial/internal/infrastructure/logger"
	"github.com/promptdial/promptdial/internal/infrastructure/telemetry"
	ws "github.com/promptdial/promptdial/internal/infrastructure/websocket"
)

// ServerConfig tunes the gateway middleware stack.
type ServerConfig struct {
	AllowedOrigins  []string
	RateLimit       int
	RateLimitWindow time.Duration
	JWTSecret       string
}

// Server is the client-facing HTTP gateway.
type Server struct {
	pipeline *orchestrator.Pipeline
	metrics  *telemetry.Registry
	hub      *ws.Hub
	logger   *slog.Logger
	handler  http.Handler
}

// NewServer wires the routes and middleware chain.
func NewServer(pipeline *orchestrator.Pipeline, metrics *telemetry.Registry, hub *ws.Hub,
	logger *slog.Logger, config ServerConfig) *Server {

	s := &Server{
		pipeline: pipeline,
		metrics:  metrics,
		hub:      hub,
		logger:   logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/optimize", s.handleOptimize)
	mux.HandleFunc("POST /api/receipt/verify", s.handleVerifyReceipt)
	mux.HandleFunc("GET /api/receipt/key", s.handlePublicKey)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	mux.HandleFunc("GET /metrics/prometheus", s.handlePrometheus)
	mux.HandleFunc("GET /ws/events", s.handleWebSocket)

	var handler http.Handler = mux
	handler = newAuthMiddleware(config.JWTSecret).middleware(handler)
	if config.RateLimit > 0 {
		window := config.RateLimitWindow
		if window == 0 {
			window = time.Minute
		}
		handler = newRateLimiter(config.RateLimit, window).middleware(handler)
	}
	handler = corsMiddleware(config.AllowedOrigins, handler)
	handler = loggingMiddleware(logger, handler)
	handler = recoveryMiddleware(logger, handler)
	s.handler = handler

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

type optimizeSuccess struct {
	Success bool                         `json:"success"`
	TraceID string                       `json:"trace_id"`
	Result  *domain.OptimizationResponse `json:"result"`
	Metrics optimizeMetrics              `json:"metrics"`
	Receipt *domain.Receipt              `json:"promptDial_receipt"`
}

type optimizeMetrics struct {
	DurationMS        int64              `json:"duration_ms"`
	VariantsGenerated int                `json:"variants_generated"`
	TechniquesUsed    []domain.Technique `json:"techniques_used"`
}

type optimizeFailure struct {
	Success bool     `json:"success"`
	Error   string   `json:"error"`
	Message string   `json:"message,omitempty"`
	Details []string `json:"details,omitempty"`
	TraceID string   `json:"trace_id"`
}

func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	traceID := r.Header.Get("X-Trace-ID")
	if traceID == "" {
		traceID = uuid.NewString()
	}

	var request domain.OptimizationRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeJSON(w, http.StatusBadRequest, optimizeFailure{
			Error:   string(domain.CodeInvalidParameters),
			Message: "malformed request body",
			TraceID: traceID,
		})
		return
	}

	start := time.Now()
	response, err := s.pipeline.Optimize(r.Context(), traceID, &request)
	if err != nil {
		code := errors.CodeOf(err)
		logger.WithTrace(s.logger, traceID).Warn("optimization request failed",
			"code", string(code))
		failure := optimizeFailure{
			Error:   string(code),
			Message: userSafeMessage(code, err),
			Details: errors.DetailsOf(err),
			TraceID: traceID,
		}
		writeJSON(w, code.HTTPStatus(), failure)
		return
	}

	writeJSON(w, http.StatusOK, optimizeSuccess{
		Success: true,
		TraceID: traceID,
		Result:  response,
		Metrics: optimizeMetrics{
			DurationMS:        time.Since(start).Milliseconds(),
			VariantsGenerated: response.Metadata.TotalVariantsGenerated,
			TechniquesUsed:    response.Metadata.TechniquesUsed,
		},
		Receipt: response.Receipt,
	})
}

// userSafeMessage redacts prompt content from safety failures; the
// verbatim prompt stays in the audit ring only.
func userSafeMessage(code domain.ErrorCode, err error) string {
	switch code {
	case domain.CodeSafetyBlock, domain.CodeSafetyViolation:
		return "the prompt was rejected by the safety guard"
	case domain.CodeNoSafeVariant:
		return "no generated variant passed the safety re-check"
	default:
		return err.Error()
	}
}

type verifyRequest struct {
	Receipt *domain.Receipt `json:"receipt"`
	TraceID string          `json:"trace_id"`
}

func (s *Server) handleVerifyReceipt(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Receipt == nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"valid": false, "error": "malformed request"})
		return
	}

	valid := s.pipeline.Guard().Verify(req.Receipt, req.TraceID)
	if !valid {
		s.metrics.Counter(telemetry.MetricReceiptInvalidTotal).Inc()
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": valid})
}

func (s *Server) handlePublicKey(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"algorithm":  "ed25519",
		"public_key": base64.StdEncoding.EncodeToString(s.pipeline.Guard().PublicKey()),
	})
}

type healthStatus struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	services := map[string]string{
		"classifier": "healthy",
		"technique":  "healthy",
		"safety":     "healthy",
		"runner":     "healthy",
	}
	status := http.StatusOK
	overall := "healthy"

	if s.pipeline.RunnerModel() == "" {
		services["runner"] = "unconfigured"
	}
	for _, critical := range []string{"classifier", "technique", "safety"} {
		if services[critical] != "healthy" {
			overall = "degraded"
			status = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, status, healthStatus{Status: overall, Services: services})
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}

func (s *Server) handlePrometheus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_, _ = w.Write([]byte(s.metrics.RenderPrometheus()))
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		http.Error(w, "event stream disabled", http.StatusNotFound)
		return
	}
	if err := ws.ServeWS(s.hub, w, r); err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
