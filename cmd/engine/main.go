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
	"github.com/ErlanBelekov/journey/internal/domain"
	"github.com/ErlanBelekov/journey/internal/graphs"
	"github.com/ErlanBelekov/journey/internal/health"
	"github.com/ErlanBelekov/journey/internal/infrastructure/postgres"
	"github.com/ErlanBelekov/journey/internal/kick"
	ctxlog "github.com/ErlanBelekov/journey/internal/log"
	"github.com/ErlanBelekov/journey/internal/metrics"
	"github.com/ErlanBelekov/journey/internal/notify"
	"github.com/ErlanBelekov/journey/internal/scheduler"
	"github.com/ErlanBelekov/journey/internal/store"
	"github.com/ErlanBelekov/journey/internal/sweep"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
)

// main runs the engine process: the Advancer+Worker pair that drains the
// in-process kick bus, and the six background sweeps that recover
// anything the kick signal missed. It is the counterpart of cmd/server:
// that process serves the API and advances synchronously only as a
// fallback; this one carries the steady-state load.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		stop()
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	logger.Info("db connected")

	if err := postgres.Migrate(ctx, pool); err != nil {
		stop()
		log.Fatalf("migrate: %v", err)
	}

	metrics.Register()
	checker := health.NewChecker(pool, logger, prometheus.DefaultRegisterer)

	st := postgres.NewStore(pool)
	cat := catalog.New()
	sender := notify.NewSender(cfg.Env, cfg.NotifyAPIKey, cfg.NotifyFrom, logger)
	graphs.RegisterAll(cat, sender)

	bus := kick.NewBus(1024)
	notifier := kick.NewNotifier()
	worker := scheduler.NewWorker(st, bus, notifier, logger)
	advancer := scheduler.NewAdvancer(st, cat, worker.Run, logger)

	for i := 0; i < cfg.WorkerCount; i++ {
		go runDrainLoop(ctx, bus, advancer, logger)
	}

	runner := sweep.NewRunner(st, logger)
	go runSweeps(ctx, runner, st, cat, advancer, cfg, logger)

	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker)
	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}

	logger.Info("engine shut down")
}

// runDrainLoop is one of cfg.WorkerCount goroutines draining the kick
// bus; each kicked execution id is advanced (which may itself dispatch
// zero or more computations back onto the worker).
func runDrainLoop(ctx context.Context, bus *kick.Bus, advancer *scheduler.Advancer, logger *slog.Logger) {
	for {
		id, ok := bus.Next(ctx)
		if !ok {
			return
		}
		if err := advancer.Advance(ctx, id); err != nil {
			logger.ErrorContext(ctx, "advance failed", "execution_id", id, "error", err)
		}
	}
}

// runSweeps ticks each of the six background sweeps on its own cadence.
// Runner.Execute is itself idempotent-safe to call more often than its
// minInterval (the preflight/advisory-lock re-check simply skips), so a
// single ticker shared by all six sweeps is enough; concurrency between sweeps
// is fine since each holds its own advisory lock key.
func runSweeps(ctx context.Context, runner *sweep.Runner, st store.Store, cat *catalog.Catalog, advancer *scheduler.Advancer, cfg *config.Config, logger *slog.Logger) {
	abandoned := sweep.NewAbandonedComputations(st, cat, advancer, logger)
	scheduleNodes := sweep.NewScheduleNodes(st, advancer, 30*time.Second, logger)
	unblocked := sweep.NewUnblockedBySchedule(st, advancer, time.Hour, logger)
	regenerate := sweep.NewRegenerateScheduleRecurring(st, logger)

	var stalledPreferredHour *int
	if cfg.SweepStalledExecutionsPreferredHr != nil {
		stalledPreferredHour = cfg.SweepStalledExecutionsPreferredHr
	}
	stalled := sweep.NewStalledExecutions(st, advancer, 10*time.Minute, 5*time.Minute, stalledPreferredHour, logger)

	missedHour := cfg.SweepMissedCatchallPreferredHr
	missed := sweep.NewMissedSchedulesCatchall(st, advancer,
		time.Duration(cfg.SweepMissedCatchallLookbackDays)*24*time.Hour, time.Hour, &missedHour, logger)

	scheduleNodesInterval := time.Duration(cfg.SweepScheduleNodesMinSecsBetween) * time.Second

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now().UTC()

			runner.Execute(ctx, domain.SweepAbandonedComputations, true, 10*time.Second, abandoned.Work)
			runner.Execute(ctx, domain.SweepScheduleNodes, true, scheduleNodesInterval, scheduleNodes.Work)
			runner.Execute(ctx, domain.SweepUnblockedBySchedule, true, 15*time.Second, unblocked.Work)
			runner.Execute(ctx, domain.SweepRegenerateScheduleRecurring, true, 5*time.Second, regenerate.Work)

			if cfg.SweepStalledExecutionsEnabled && stalled.Due(now) {
				runner.Execute(ctx, domain.SweepStalledExecutions, true, time.Hour, stalled.Work)
			}
			if cfg.SweepMissedCatchallEnabled && missed.Due(now) {
				runner.Execute(ctx, domain.SweepMissedSchedulesCatchall, true, 24*time.Hour, missed.Work)
			}
		}
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
