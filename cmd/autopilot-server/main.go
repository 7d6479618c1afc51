package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/flowforge-ai/autopilot/internal/api"
	"github.com/flowforge-ai/autopilot/internal/audit"
	"github.com/flowforge-ai/autopilot/internal/config"
	"github.com/flowforge-ai/autopilot/internal/costguard"
	"github.com/flowforge-ai/autopilot/internal/deletion"
	"github.com/flowforge-ai/autopilot/internal/governance"
	"github.com/flowforge-ai/autopilot/internal/metrics"
	"github.com/flowforge-ai/autopilot/internal/proposers"
	"github.com/flowforge-ai/autopilot/internal/store"
)

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func mustBuildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	return logger
}

func main() {
	logger := mustBuildLogger(envOrDefault("AUTOPILOT_LOG_LEVEL", "info"))
	defer logger.Sync() //nolint:errcheck

	port := envOrDefault("AUTOPILOT_PORT", "8095")
	postgresDSN := os.Getenv("POSTGRES_DSN")
	clickhouseDSN := os.Getenv("CLICKHOUSE_DSN")
	tenantID := envOrDefault("AUTOPILOT_TENANT_ID", "platform")
	deletionSalt := envOrDefault("AUTOPILOT_DELETION_SALT", "")
	monthlyBudget := envOrDefaultFloat("AUTOPILOT_MONTHLY_BUDGET_USD", 2000)
	memoryBudgetMB := envOrDefaultInt("AUTOPILOT_MEMORY_BUDGET_MB", 512)
	sampleInterval := time.Duration(envOrDefaultInt("AUTOPILOT_SAMPLE_INTERVAL_SEC", 60)) * time.Second
	sweepInterval := time.Duration(envOrDefaultInt("AUTOPILOT_DELETION_SWEEP_MIN", 60)) * time.Minute
	proposalInterval := time.Duration(envOrDefaultInt("AUTOPILOT_PROPOSAL_INTERVAL_MIN", 15)) * time.Minute

	if deletionSalt == "" {
		logger.Warn("AUTOPILOT_DELETION_SALT not set, pseudonyms will not be stable across restarts")
	}

	gate := config.NewGate(logger)
	logger.Info("launch stage gate initialized", zap.String("stage", string(gate.Stage())))

	// Audit sink: ClickHouse when configured, structured log fallback otherwise.
	var events audit.EventWriter
	var eventReader *audit.Reader
	if clickhouseDSN != "" {
		w, err := audit.NewClickHouseWriter(clickhouseDSN, logger)
		if err != nil {
			logger.Fatal("clickhouse writer init failed", zap.Error(err))
		}
		events = w
		r, err := audit.NewReader(clickhouseDSN, logger)
		if err != nil {
			logger.Fatal("clickhouse reader init failed", zap.Error(err))
		}
		eventReader = r
	} else {
		logger.Warn("CLICKHOUSE_DSN not set, governance events will be logged only")
		events = audit.NewLogWriter(logger)
	}
	defer events.Close()

	// Persistence: Postgres when configured, in-memory for local development.
	var (
		actions   governance.ActionStore
		guardSt   costguard.StateStore
		users     deletion.UserStore
		operators api.OperatorStore
	)
	if postgresDSN != "" {
		db, err := sql.Open("pgx", postgresDSN)
		if err != nil {
			logger.Fatal("postgres open failed", zap.Error(err))
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
		if err := db.Ping(); err != nil {
			logger.Fatal("postgres ping failed", zap.Error(err))
		}
		defer db.Close()

		st := store.NewStore(db)
		actions = st
		guardSt = st
		users = st
		operators = st
	} else {
		logger.Warn("POSTGRES_DSN not set, using in-memory stores; state is lost on restart")
		actions = store.NewMemoryActions()
		guardSt = store.NewMemoryState()
		users = store.NewMemoryUsers()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	counters := metrics.NewCounters(registry)

	governor := governance.NewGovernor(actions, gate, events, logger)

	guard := costguard.NewGuard(costguard.Options{
		Source:        metrics.NewSource(counters, memoryBudgetMB),
		State:         guardSt,
		Governor:      governor,
		Gate:          gate,
		Events:        events,
		Logger:        logger,
		TenantID:      tenantID,
		MonthlyBudget: monthlyBudget,
	})

	scheduler := deletion.NewScheduler(governor, users, gate, events, deletionSalt, logger)

	runner := proposers.NewRunner([]proposers.Proposer{
		&proposers.GrowthMutation{TenantID: tenantID},
		&proposers.ContentDistribution{TenantID: tenantID},
	}, governor, gate, events, counters, guard, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	guard.Restore(ctx)

	go runTicker(ctx, sampleInterval, guard.RunCycle)
	go runTicker(ctx, sweepInterval, func(ctx context.Context) {
		if n, err := scheduler.ExecuteIfDue(ctx); err != nil {
			logger.Error("deletion sweep failed", zap.Error(err))
		} else if n > 0 {
			logger.Info("deletion sweep executed", zap.Int("count", n))
		}
	})
	go runTicker(ctx, proposalInterval, runner.RunCycle)

	router := api.NewRouter(&api.Dependencies{
		Logger:    logger,
		Governor:  governor,
		Guard:     guard,
		Scheduler: scheduler,
		Events:    eventReader,
		Operators: operators,
		Usage:     counters,
		Registry:  registry,
	})

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("autopilot server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	if eventReader != nil {
		eventReader.Close() //nolint:errcheck
	}
	logger.Info("stopped")
}

// runTicker invokes fn every interval until the context is cancelled.
func runTicker(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}
