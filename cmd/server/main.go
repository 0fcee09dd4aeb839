package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/promptdial/promptdial/internal/application/classifier"
	"github.com/promptdial/promptdial/internal/application/evaluator"
	"github.com/promptdial/promptdial/internal/application/orchestrator"
	"github.com/promptdial/promptdial/internal/application/retrieval"
	"github.com/promptdial/promptdial/internal/application/runner"
	"github.com/promptdial/promptdial/internal/application/safety"
	"github.com/promptdial/promptdial/internal/application/selector"
	"github.com/promptdial/promptdial/internal/application/strategy"
	"github.com/promptdial/promptdial/internal/application/technique"
	"github.com/promptdial/promptdial/internal/infrastructure/api/rest"
	"github.com/promptdial/promptdial/internal/infrastructure/audit"
	"github.com/promptdial/promptdial/internal/infrastructure/config"
	"github.com/promptdial/promptdial/internal/infrastructure/logger"
	"github.com/promptdial/promptdial/internal/infrastructure/receipt"
	"github.com/promptdial/promptdial/internal/infrastructure/telemetry"
	"github.com/promptdial/promptdial/internal/infrastructure/transport"
	ws "github.com/promptdial/promptdial/internal/infrastructure/websocket"
)

func main() {
	var (
		port         = flag.String("port", "", "Server port (overrides config)")
		enableCanary = flag.Bool("canary", true, "Enable the periodic canary loop")
		envFile      = flag.String("env-file", ".env", "Path to an optional .env file")
	)
	flag.Parse()

	// Best-effort: a missing .env file is not an error.
	_ = godotenv.Load(*envFile)

	cfg := config.Load()
	if *port != "" {
		cfg.Port = *port
	}

	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info("starting promptdial gateway",
		"version", "3.0.0",
		"port", cfg.Port,
		"rate_limit", cfg.RateLimit,
	)

	metrics := telemetry.NewRegistry()

	// Audit sink: Postgres when configured, in-process ring otherwise.
	var auditStore audit.Store
	ring := audit.NewRing()
	auditStore = ring
	if cfg.DatabaseDSN != "" {
		bunStore := audit.NewBunStore(cfg.DatabaseDSN)
		if err := bunStore.InitSchema(context.Background()); err != nil {
			log.Error("failed to initialize audit schema", "error", err)
			os.Exit(1)
		}
		auditStore = bunStore
		log.Info("using PostgreSQL audit store")
	}

	guard := safety.NewGuard(auditStore, metrics)

	signer, err := receipt.NewSigner()
	if err != nil {
		log.Error("failed to generate signing keypair", "error", err)
		os.Exit(1)
	}

	backend := pickBackend(cfg)
	log.Info("runner backend selected", "provider", backend.Name(), "model", backend.Model())

	var retriever retrieval.Retriever = retrieval.Noop{}
	if cfg.RetrievalURL != "" {
		retriever = retrieval.NewHTTPRetriever(transport.NewClient("retrieval", cfg.RetrievalURL,
			transport.WithRetries(cfg.ServiceRetries),
			transport.WithTimeout(cfg.RetrievalTimeout)))
		log.Info("retrieval service configured", "url", cfg.RetrievalURL)
	}

	var plannerBackend strategy.ReasoningBackend
	if cfg.StrategyURL != "" {
		plannerBackend = strategy.NewHTTPBackend(transport.NewClient("strategy", cfg.StrategyURL,
			transport.WithRetries(cfg.ServiceRetries),
			transport.WithTimeout(cfg.ShortServiceTimeout)))
		log.Info("strategy service configured", "url", cfg.StrategyURL)
	}

	monitor := evaluator.NewMonitor(metrics)

	observers := orchestrator.NewObserverManager()
	hub := ws.NewHub(logger.Named(log, "websocket"))
	observers.AddObserver(ws.NewPipelineEventObserver(hub))

	pipeline := orchestrator.NewPipeline(orchestrator.Deps{
		Safety:     guard,
		Classifier: classifier.New(),
		Planner:    strategy.NewPlanner(plannerBackend, metrics),
		Engine:     technique.NewEngine(metrics),
		Runner:     runner.New(backend, metrics),
		Ensemble:   evaluator.NewEnsemble(monitor, metrics, backend.Configured()),
		Selector:   selector.New(guard),
		Retriever:  retriever,
		Guard:      orchestrator.NewFlowGuard(signer, metrics),
		Metrics:    metrics,
		Observers:  observers,
		Audit:      auditStore,

		RunnerTimeout:    cfg.RunnerTimeout,
		EvaluatorTimeout: cfg.EvaluatorTimeout,
		RetrievalTimeout: cfg.RetrievalTimeout,
	})

	srv := rest.NewServer(pipeline, metrics, hub, logger.Named(log, "gateway"), rest.ServerConfig{
		AllowedOrigins: cfg.AllowedOrigins,
		RateLimit:      cfg.RateLimit,
		JWTSecret:      cfg.JWTSecret,
	})

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Background loops own a cancellation context that graceful shutdown
	// closes first.
	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	go hub.Run(bgCtx)
	if *enableCanary {
		go orchestrator.NewCanary(pipeline, metrics, cfg.CanaryInterval).Start(bgCtx)
	}
	go driftLoop(bgCtx, monitor)

	go func() {
		log.Info("server listening", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("available endpoints",
		"optimize", "POST /api/optimize",
		"verify", "POST /api/receipt/verify",
		"key", "GET /api/receipt/key",
		"health", "GET /health",
		"metrics", "GET /metrics",
		"prometheus", "GET /metrics/prometheus",
		"events", "GET /ws/events",
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")
	bgCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	log.Info("server exited gracefully")
}

// pickBackend selects the generation backend from configured credentials.
// Precedence: OpenAI, Anthropic (tool-safe wrapper), Google, then the
// keyless echo backend.
func pickBackend(cfg *config.Config) runner.Backend {
	switch {
	case cfg.OpenAIAPIKey != "":
		return runner.NewOpenAIBackend(cfg.OpenAIAPIKey, "", cfg.OpenAIRunnerURL)
	case cfg.AnthropicAPIKey != "":
		return runner.NewSafeAnthropicBackend(cfg.AnthropicAPIKey, "", cfg.AnthropicRunnerURL)
	case cfg.GoogleAPIKey != "":
		return runner.NewGoogleBackend(cfg.GoogleAPIKey, "", cfg.GoogleRunnerURL)
	default:
		return runner.NewEchoBackend()
	}
}

// driftLoop periodically re-derives calibration drift for every evaluator.
func driftLoop(ctx context.Context, monitor *evaluator.Monitor) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			monitor.CheckDrift()
		}
	}
}
