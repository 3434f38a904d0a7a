package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-scheduling/internal/appointment"
	"github.com/hackgods/clinic-appointment-scheduling/internal/config"
	"github.com/hackgods/clinic-appointment-scheduling/internal/db"
	"github.com/hackgods/clinic-appointment-scheduling/internal/directory"
	"github.com/hackgods/clinic-appointment-scheduling/internal/logger"
	"github.com/hackgods/clinic-appointment-scheduling/internal/metrics"
	"github.com/hackgods/clinic-appointment-scheduling/internal/notify"
	redisclient "github.com/hackgods/clinic-appointment-scheduling/internal/redis"
	"github.com/hackgods/clinic-appointment-scheduling/internal/reminder"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	zl, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	zl.Info("reminder-worker starting up",
		zap.String("env", cfg.Env),
		zap.Duration("interval", cfg.ReminderPollInterval),
		zap.Int64("batch", cfg.ReminderBatchSize),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{
		MaxConns:         cfg.DBMaxConns,
		StatementTimeout: cfg.DBStmtTimeout,
		AppName:          "clinic-reminder-worker",
	})
	cancelPg()
	if err != nil {
		zl.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	zl.Info("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(rootCtx, redisclient.Options{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		zl.Fatal("redis connection error", zap.Error(err))
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			zl.Warn("error closing redis", zap.Error(err))
		}
	}()
	zl.Info("connected to Redis")

	m := metrics.NewCollector(prometheus.DefaultRegisterer)
	go serveMetrics(rootCtx, cfg.MetricsPort, zl)

	notifier, err := notify.FromDriver(rootCtx, notify.DriverConfig{
		Driver:    cfg.NotifyDriver,
		AWSRegion: cfg.AWSRegion,
		SES:       notify.SESConfig{FromEmail: cfg.SESFromEmail, FromName: cfg.SESFromName},
	}, zl.Named("notify"))
	if err != nil {
		zl.Fatal("notifier init error", zap.Error(err))
	}

	dir := directory.NewPgDirectory(pgPool)
	svc := appointment.NewService(appointment.NewPgStore(pgPool), appointment.Deps{
		Clinics:  dir,
		Patients: dir,
		Logger:   zl.Named("appointment"),
		Metrics:  m,
	})

	worker := reminder.NewWorker(reminder.NewScheduler(rdb, m), svc, notifier, zl.Named("reminder"), m, cfg.ReminderBatchSize)
	worker.Run(rootCtx, cfg.ReminderPollInterval)

	zl.Info("reminder-worker stopped")
}

// serveMetrics exposes /metrics so the worker can be scraped alongside the api-server.
func serveMetrics(ctx context.Context, port string, zl *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: ":" + port, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		zl.Warn("metrics server error", zap.Error(err))
	}
}
