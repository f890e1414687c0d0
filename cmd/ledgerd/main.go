package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/ledgerd/ledgerd/internal/booking"
	"github.com/ledgerd/ledgerd/internal/config"
	"github.com/ledgerd/ledgerd/internal/holiday"
	"github.com/ledgerd/ledgerd/internal/i18n"
	"github.com/ledgerd/ledgerd/internal/maintenance"
	"github.com/ledgerd/ledgerd/internal/marketdata"
	"github.com/ledgerd/ledgerd/internal/metrics"
	"github.com/ledgerd/ledgerd/internal/platform/sqlite"
	"github.com/ledgerd/ledgerd/internal/pricesync"
	"github.com/ledgerd/ledgerd/internal/reminder"
	backuprepo "github.com/ledgerd/ledgerd/internal/repository/backup"
	draftrepo "github.com/ledgerd/ledgerd/internal/repository/draft"
	notificationrepo "github.com/ledgerd/ledgerd/internal/repository/notification"
	reportrepo "github.com/ledgerd/ledgerd/internal/repository/report"
	securityrepo "github.com/ledgerd/ledgerd/internal/repository/security"
	userrepo "github.com/ledgerd/ledgerd/internal/repository/user"
	"github.com/ledgerd/ledgerd/internal/server"
	"github.com/ledgerd/ledgerd/internal/task"
)

func main() {
	cfg := config.Load()

	// Root context: cancelled on SIGINT/SIGTERM so background workers and
	// running jobs stop promptly during graceful shutdown.
	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	db, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	// Repositories
	draftRepo := draftrepo.NewRepository(db.DB)
	securityRepo := securityrepo.NewRepository(db.DB)
	notificationRepo := notificationrepo.NewRepository(db.DB)
	reportRepo := reportrepo.NewRepository(db.DB)
	userRepo := userrepo.NewRepository(db.DB, cfg.PriceAPIKey)
	backupSvc := backuprepo.NewService(db.DB, cfg.BackupDir)

	// Shared market-data plumbing: one cooldown for the whole process.
	sink := metrics.NewPrometheus(prometheus.DefaultRegisterer)
	cooldown := marketdata.NewCooldown()
	priceClient := marketdata.NewClient(cfg.PriceAPIURL, cooldown, marketdata.WithMetrics(sink))

	// Executor registry, assembled once at startup.
	registry := task.NewRegistry()
	registry.Register(booking.NewMassBookingExecutor(draftRepo))
	registry.Register(booking.NewClassificationExecutor(draftRepo))
	registry.Register(pricesync.NewBackfillExecutor(securityRepo, priceClient, userRepo))
	registry.Register(maintenance.NewBackupRestoreExecutor(backupSvc))
	registry.Register(maintenance.NewAggregatesRebuildExecutor(reportRepo))
	registry.Register(maintenance.NewReportCacheRefreshExecutor(reportRepo))

	orch := task.NewOrchestrator(registry, task.WithMetrics(sink))

	// Continuous price sync worker.
	syncWorker := pricesync.NewWorker(securityRepo, priceClient, userRepo, cooldown,
		pricesync.WithInterval(cfg.SyncInterval),
		pricesync.WithBatch(cfg.SyncBatch),
		pricesync.WithRequestsPerMinute(cfg.SyncRPM),
	)

	// Month-end reminder scheduler, fired by cron on minute 5 of every hour.
	holidayClient := holiday.New(holiday.WithBaseURL(cfg.HolidayAPIURL))
	reminderSched := reminder.NewScheduler(userRepo, holidayClient, notificationRepo, i18n.NewCatalog(), reminder.WithMetrics(sink))

	c := cron.New()
	if _, err := c.AddFunc(cfg.ReminderSpec, func() {
		if err := reminderSched.Tick(rootCtx); err != nil && rootCtx.Err() == nil {
			slog.Error("reminder tick failed", "error", err)
		}
	}); err != nil {
		slog.Error("invalid reminder schedule", "spec", cfg.ReminderSpec, "error", err)
		os.Exit(1)
	}
	c.Start()

	g, gCtx := errgroup.WithContext(rootCtx)
	g.Go(func() error {
		syncWorker.Run(gCtx)
		return nil
	})

	srv := server.New(rootCtx, cfg.Port, orch)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("server started", "port", cfg.Port)
	<-done

	// Cancel root context first so running jobs and the sync worker begin
	// winding down immediately.
	rootCancel()

	// Stop cron and wait for an in-flight tick.
	<-c.Stop().Done()

	// Wait for running jobs to emit terminal progress, then for the worker.
	orch.Close()
	_ = g.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	slog.Info("server stopped")
}
