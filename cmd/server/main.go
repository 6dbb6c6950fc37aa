package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ErlanBelekov/journey/config"
	"github.com/ErlanBelekov/journey/internal/catalog"
	"github.com/ErlanBelekov/journey/internal/graphs"
	"github.com/ErlanBelekov/journey/internal/health"
	"github.com/ErlanBelekov/journey/internal/infrastructure/postgres"
	"github.com/ErlanBelekov/journey/internal/kick"
	ctxlog "github.com/ErlanBelekov/journey/internal/log"
	"github.com/ErlanBelekov/journey/internal/metrics"
	"github.com/ErlanBelekov/journey/internal/migration"
	"github.com/ErlanBelekov/journey/internal/mutation"
	"github.com/ErlanBelekov/journey/internal/notify"
	"github.com/ErlanBelekov/journey/internal/read"
	"github.com/ErlanBelekov/journey/internal/scheduler"
	httptransport "github.com/ErlanBelekov/journey/internal/transport/http"
	"github.com/ErlanBelekov/journey/internal/transport/http/handler"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
)

// main runs the HTTP API process: execution lifecycle, the Value
// Mutation API, and the Read API with Waiting. It shares the same
// Advancer/Worker pair cmd/engine drives its sweeps with, so a kick that
// overflows the bus (or an admin-forced retry) can still advance and
// dispatch synchronously from this process; cmd/engine's bus-draining
// loop and background sweeps are what carry the steady-state load.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		stop()
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	if err := postgres.Migrate(ctx, pool); err != nil {
		stop()
		log.Fatalf("migrate: %v", err)
	}

	st := postgres.NewStore(pool)
	cat := catalog.New()
	sender := notify.NewSender(cfg.Env, cfg.NotifyAPIKey, cfg.NotifyFrom, logger)
	graphs.RegisterAll(cat, sender)

	bus := kick.NewBus(1024)
	notifier := kick.NewNotifier()
	worker := scheduler.NewWorker(st, bus, notifier, logger)
	advancer := scheduler.NewAdvancer(st, cat, worker.Run, logger)

	mutator := mutation.NewMutator(st, cat, bus, notifier, advancer, logger)
	reader := read.NewReader(st, notifier, time.Duration(cfg.PollIntervalSec)*time.Second)
	mig := migration.NewMigrator(st, cat, logger)

	execHandler := handler.NewExecutionHandler(st, cat, logger)
	valueHandler := handler.NewValueHandler(mutator, reader, logger)
	adminHandler := handler.NewAdminHandler(st, cat, mig, advancer, logger)

	checker := health.NewChecker(pool, logger, prometheus.DefaultRegisterer)
	metrics.Register()

	srv := http.Server{
		Addr:    ":" + cfg.Port,
		Handler: httptransport.NewRouter(logger, execHandler, valueHandler, adminHandler, []byte(cfg.JWTSecret)),
	}

	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker)

	go func() {
		logger.Info("server started", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}
}

func newLogger(env string, level slog.Level) *slog.Logger {
	var inner slog.Handler
	if env == "local" {
		inner = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	} else {
		inner = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}
	return slog.New(ctxlog.NewContextHandler(inner))
}
