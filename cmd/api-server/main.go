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

	"github.com/hackgods/clinic-appointment-scheduling/internal/api"
	"github.com/hackgods/clinic-appointment-scheduling/internal/appointment"
	"github.com/hackgods/clinic-appointment-scheduling/internal/config"
	"github.com/hackgods/clinic-appointment-scheduling/internal/db"
	"github.com/hackgods/clinic-appointment-scheduling/internal/directory"
	"github.com/hackgods/clinic-appointment-scheduling/internal/logger"
	"github.com/hackgods/clinic-appointment-scheduling/internal/metrics"
	"github.com/hackgods/clinic-appointment-scheduling/internal/notify"
	redisclient "github.com/hackgods/clinic-appointment-scheduling/internal/redis"
	"github.com/hackgods/clinic-appointment-scheduling/internal/reminder"
	"github.com/hackgods/clinic-appointment-scheduling/internal/tracing"
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

	zl.Info("api-server starting up", zap.String("env", cfg.Env), zap.String("http_port", cfg.HTTPPort))

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := tracing.Init(rootCtx, tracing.Config{
		Enabled:     cfg.TracingEnabled,
		Endpoint:    cfg.TracingEndpoint,
		ServiceName: "clinic-api-server",
		Version:     cfg.Version,
		SampleRate:  cfg.TracingSampleRate,
	})
	if err != nil {
		zl.Fatal("tracing init error", zap.Error(err))
	}

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{
		MaxConns:         cfg.DBMaxConns,
		StatementTimeout: cfg.DBStmtTimeout,
		AppName:          "clinic-api-server",
	})
	cancelPg()
	if err != nil {
		zl.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	zl.Info("connected to Postgres")

	// Connect Redis
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
	dir := directory.NewPgDirectory(pgPool)

	notifier, err := notify.FromDriver(rootCtx, notify.DriverConfig{
		Driver:    cfg.NotifyDriver,
		AWSRegion: cfg.AWSRegion,
		SES:       notify.SESConfig{FromEmail: cfg.SESFromEmail, FromName: cfg.SESFromName},
	}, zl.Named("notify"))
	if err != nil {
		zl.Fatal("notifier init error", zap.Error(err))
	}
	dispatcher := notify.NewDispatcher(notifier, dir, zl.Named("notify"), m)

	svc := appointment.NewService(appointment.NewPgStore(pgPool), appointment.Deps{
		Clinics:   dir,
		Patients:  dir,
		Reminders: reminder.NewScheduler(rdb, m),
		Notifier:  dispatcher,
		Locker:    redisclient.NewRedisLocker(rdb, cfg.LockTTL, zl.Named("lock"), m),
		Logger:    zl.Named("appointment"),
		Metrics:   m,
	})

	router := api.NewRouter(api.RouterConfig{
		Service: svc,
		PgPool:  pgPool,
		Redis:   rdb,
		Logger:  zl.Named("http"),
		Metrics: m,
		Env:     cfg.Env,
		Version: cfg.Version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		zl.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-rootCtx.Done()
	zl.Info("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Error("http shutdown error", zap.Error(err))
	}
	dispatcher.Wait()
	if err := tp.Shutdown(shutdownCtx); err != nil {
		zl.Warn("tracer shutdown error", zap.Error(err))
	}

	zl.Info("api-server stopped")
}
