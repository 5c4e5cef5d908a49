package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	rghttp "github.com/riskgate/riskgate/internal/adapter/http"
	"github.com/riskgate/riskgate/internal/adapter/llm"
	rgnats "github.com/riskgate/riskgate/internal/adapter/nats"
	"github.com/riskgate/riskgate/internal/adapter/natskv"
	otelx "github.com/riskgate/riskgate/internal/adapter/otel"
	"github.com/riskgate/riskgate/internal/adapter/postgres"
	"github.com/riskgate/riskgate/internal/adapter/ristretto"
	"github.com/riskgate/riskgate/internal/adapter/tiered"
	"github.com/riskgate/riskgate/internal/adapter/ws"
	"github.com/riskgate/riskgate/internal/config"
	"github.com/riskgate/riskgate/internal/domain/decision"
	"github.com/riskgate/riskgate/internal/logger"
	"github.com/riskgate/riskgate/internal/middleware"
	"github.com/riskgate/riskgate/internal/port/cache"
	"github.com/riskgate/riskgate/internal/port/messagequeue"
	"github.com/riskgate/riskgate/internal/research"
	"github.com/riskgate/riskgate/internal/resilience"
	"github.com/riskgate/riskgate/internal/service"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "admin" {
		if err := runAdmin(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.New(cfg.Logging)
	slog.SetDefault(log)
	defer logCloser.Close()

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"confidence_threshold", cfg.Router.ConfidenceThreshold,
		"panel_size", cfg.Router.PanelSize,
	)

	ctx := context.Background()

	// --- Observability ---
	otelShutdown, err := otelx.Setup(ctx, cfg.Otel, cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = otelShutdown(shutdownCtx)
	}()

	var metrics *otelx.Metrics
	if cfg.Otel.Enabled {
		metrics, err = otelx.NewMetrics()
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
	}

	// --- Infrastructure ---

	// PostgreSQL
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	// NATS is optional: without it the service still decisions synchronously,
	// but loses the async queue and the L2 cache tier.
	var queue messagequeue.Queue
	natsQueue, err := rgnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable, running without queue and L2 cache", "error", err)
	} else {
		queue = natsQueue
		defer func() { _ = natsQueue.Close() }()
	}

	// Tiered decision cache: ristretto L1, NATS KV L2 when available.
	l1, err := ristretto.New(cfg.Cache.L1MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("l1 cache: %w", err)
	}
	defer l1.Close()

	var decisionCache cache.Cache = l1
	if natsQueue != nil {
		kv, err := natsQueue.KeyValue(ctx, cfg.Cache.L2Bucket, cfg.Cache.L2TTL)
		if err != nil {
			slog.Warn("nats kv unavailable, running with L1 cache only", "error", err)
		} else {
			decisionCache = tiered.New(l1, natskv.New(kv), cfg.Cache.L1Expire)
		}
	}

	// --- LLM backend ---
	llmClient := llm.NewClient(cfg.LLM.URL, llm.NewKeyPool(cfg.LLM.APIKeys), cfg.LLM.Timeout)
	llmClient.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))

	// --- Scoring model ---
	registry := service.NewModelRegistry(cfg.Model.Name, cfg.Model.Path)
	if err := registry.Load(); err != nil {
		slog.Warn("model artifact not loaded, scoring unavailable until reload",
			"path", cfg.Model.Path, "error", err)
	}

	// --- Services ---
	evalLog, err := research.NewLog(cfg.Research.CSVPath)
	if err != nil {
		return fmt.Errorf("research log: %w", err)
	}

	hub := ws.NewHub()
	store := postgres.NewStore(pool)
	panel := service.NewPanel(llmClient, cfg.LLM, cfg.Router.PanelSize, cfg.Router.PanelTimeout)
	fairness := service.NewFairness(registry, cfg.Router.FairnessMargin, cfg.Router.DenyAt)

	decisionSvc := service.NewDecisionService(
		store,
		registry,
		panel,
		fairness,
		decision.Policy{
			ConfidenceThreshold: cfg.Router.ConfidenceThreshold,
			ApproveBelow:        cfg.Router.ApproveBelow,
			DenyAt:              cfg.Router.DenyAt,
		},
		cfg.LLM.CostPer1K,
		service.DecisionOptions{
			Cache:    decisionCache,
			Queue:    queue,
			Hub:      hub,
			Log:      evalLog,
			Metrics:  metrics,
			CacheTTL: cfg.Cache.L2TTL,
		},
	)
	applicantSvc := service.NewApplicantService(store)
	reportSvc := service.NewReportService(store, evalLog)

	// Queue subscriber for async decision requests.
	if queue != nil {
		sub := service.NewSubscriber(queue, decisionSvc, 0)
		cancelSub, err := sub.Start(ctx)
		if err != nil {
			return fmt.Errorf("subscriber: %w", err)
		}
		defer cancelSub()
	}

	// --- HTTP ---
	handlers := &rghttp.Handlers{
		Applicants: applicantSvc,
		Decisions:  decisionSvc,
		Reports:    reportSvc,
		Registry:   registry,
		LLM:        llmClient,
		Queue:      queue,
		Hub:        hub,
	}

	limiter := middleware.NewRateLimiter(cfg.Rate.RequestsPerSecond, cfg.Rate.Burst)
	stopCleanup := limiter.StartCleanup(cfg.Rate.CleanupInterval, cfg.Rate.MaxIdleTime)
	defer stopCleanup()

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(rghttp.Logger)
	r.Use(rghttp.CORS(cfg.Server.CORSOrigin))
	r.Use(rghttp.SecurityHeaders)
	r.Use(limiter.Handler)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	if cfg.Otel.Enabled {
		r.Use(otelx.HTTPMiddleware(cfg.Logging.Service))
	}

	// Health endpoint, unauthenticated for load balancer probes.
	r.Get("/health", healthHandler(pool, registry, queue))

	// Authenticated surface
	r.Group(func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(cfg.Auth.KeyHash))
		r.Get("/ws", hub.HandleWS)
		rghttp.MountRoutes(r, handlers)
	})

	addr := ":" + cfg.Server.Port

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

// healthHandler reports the status of each dependency.
func healthHandler(pool *pgxpool.Pool, registry *service.ModelRegistry, queue messagequeue.Queue) http.HandlerFunc {
	type healthStatus struct {
		Status     string `json:"status"`
		Postgres   string `json:"postgres"`
		Queue      string `json:"queue"`
		ModelTrees int    `json:"model_trees"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		status := healthStatus{
			Status:     "ok",
			Postgres:   "ok",
			Queue:      "ok",
			ModelTrees: registry.Rounds(),
		}

		if err := pool.Ping(r.Context()); err != nil {
			status.Status = "degraded"
			status.Postgres = "unreachable"
		}
		if queue == nil {
			status.Queue = "disabled"
		}

		code := http.StatusOK
		if status.Status != "ok" {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(status)
	}
}
