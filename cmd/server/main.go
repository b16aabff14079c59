package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/classattest/attest-backend/internal/analyzer"
	"github.com/classattest/attest-backend/internal/anomaly"
	"github.com/classattest/attest-backend/internal/attendance"
	"github.com/classattest/attest-backend/internal/clock"
	"github.com/classattest/attest-backend/internal/config"
	"github.com/classattest/attest-backend/internal/correlation"
	"github.com/classattest/attest-backend/internal/database"
	"github.com/classattest/attest-backend/internal/handler"
	"github.com/classattest/attest-backend/internal/ingestion"
	"github.com/classattest/attest-backend/internal/janitor"
	"github.com/classattest/attest-backend/internal/logger"
	"github.com/classattest/attest-backend/internal/repository"
	"github.com/classattest/attest-backend/internal/repository/pg"
	"github.com/classattest/attest-backend/internal/router"
	"github.com/classattest/attest-backend/internal/validator"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting attest-backend")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Repository (instrumented, retrying Postgres store) ──
	retrying := repository.NewRetrying(pg.New(pool), pg.IsTransient, 5*time.Second, 200*time.Millisecond)
	repo := repository.NewInstrumented(retrying)

	clk := clock.NewSystem()
	loc := clock.LoadLocation(cfg.ServerTZ)

	// ─── Initialize Services ───────────────────────────────────────────
	attendanceSvc := attendance.New(repo, clk, loc, attendance.Policy{
		ConfirmationWindow: cfg.Policy.ConfirmationWindow,
		CooldownWindow:     cfg.Policy.CooldownWindow,
		HMACSalts:          cfg.Policy.HMACSalts,
	})
	ingestionSvc := ingestion.New(repo, clk, loc, log)
	anomalySvc := anomaly.New(repo, cfg.Policy.AutoConfirmThreshold)

	alignOpts := correlation.AlignOptions{
		ToleranceMs:      cfg.Policy.AlignmentToleranceMs,
		MinAligned:       cfg.Policy.MinAlignedSamples,
		SlidingWindowMax: cfg.Policy.SlidingWindowMaxSize,
	}
	thresholds := correlation.Thresholds{
		StationaryBothMaxStdDev:   cfg.Policy.StationaryBothMaxStdDev,
		SameLocationMaxDeltaDBm:   cfg.Policy.SameLocationMaxDeltaDBm,
		OneVeryStillMaxStdDev:     cfg.Policy.OneVeryStillMaxStdDev,
		HighCorrelationThreshold:  cfg.Policy.HighCorrelationThreshold,
		ModerateCorrelationThresh: cfg.Policy.ModerateCorrelationThresh,
		CriticalSeverityThreshold: cfg.Policy.CriticalSeverityThreshold,
		DistantMuDeltaDBm:         cfg.Policy.DistantMuDeltaDBm,
	}

	// The analyzer's group lock budget doubles as its per-group processing
	// timeout — a group that can't finish inside its own lock TTL is
	// abandoned rather than left to run past the point another node could
	// safely re-acquire the lock.
	groupBudget := cfg.Policy.AnalyzerInterval
	if groupBudget > 2*time.Minute {
		groupBudget = 2 * time.Minute
	}
	analyzerJob := analyzer.New(repo, anomalySvc, rdb, log, cfg.Policy.AnalyzerInterval, groupBudget,
		cfg.Policy.MinAlignedSamples, alignOpts, thresholds)
	janitorJob := janitor.New(repo, log, janitor.Policy{
		Interval:             cfg.Policy.JanitorInterval,
		ConfirmationWindow:   cfg.Policy.ConfirmationWindow,
		ClassDuration:        cfg.Policy.ClassDuration,
		IdempotencyRetention: cfg.Policy.IdempotencyRetention,
		AnomalyRetention:     cfg.Policy.AnomalyRetention,
	})

	// ─── Initialize Handlers ────────────────────────────────────────────
	handlers := &router.Handlers{
		Attendance: handler.NewAttendanceHandler(attendanceSvc),
		Ingestion:  handler.NewIngestionHandler(ingestionSvc),
		Analyzer:   handler.NewAnalyzerHandler(analyzerJob),
		Anomaly:    handler.NewAnomalyHandler(anomalySvc, repo),
		Health:     handler.NewHealthHandler(pool, rdb),
	}

	// ─── Start Background Jobs ──────────────────────────────────────────
	jobCtx, jobCancel := context.WithCancel(context.Background())

	go func() {
		if err := analyzerJob.Run(jobCtx); err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("analyzer job exited")
		}
	}()
	go func() {
		if err := janitorJob.Run(jobCtx); err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("janitor job exited")
		}
	}()

	// ─── Setup Router ────────────────────────────────────────────────────
	r := router.SetupRouter(handlers, cfg)

	// ─── Create HTTP Server ──────────────────────────────────────────────
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// ─── Start Server in Goroutine ───────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop the analyzer/janitor tickers and let any in-flight pass finish.
	jobCancel()
	time.Sleep(2 * time.Second)

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
