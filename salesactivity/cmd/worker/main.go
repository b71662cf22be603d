package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"securities-sales-crm/salesactivity/internal/repos"
	"securities-sales-crm/salesactivity/internal/worker"
	"securities-sales-crm/shared/bus"
	"securities-sales-crm/shared/cachex"
	"securities-sales-crm/shared/config"
	"securities-sales-crm/shared/dbx"
	"securities-sales-crm/shared/logx"
	"securities-sales-crm/shared/metricsx"
	"securities-sales-crm/shared/mqx"
)

func main() {
	cfg, problems := config.Load("salesactivity-worker", 8283)
	version := strings.TrimSpace(os.Getenv("VERSION"))
	logger := logx.New(cfg.ServiceName, cfg.Env, version, cfg.LogLevel)
	metricsx.Register()

	if cfg.DatabaseURL == "" {
		problems = append(problems, config.Problem{Field: "DATABASE_URL", Message: "DATABASE_URL is required"})
	}
	if len(cfg.KafkaBrokers) == 0 {
		problems = append(problems, config.Problem{Field: "KAFKA_BROKERS", Message: "KAFKA_BROKERS is required"})
	}
	if cfg.RedisAddr == "" {
		problems = append(problems, config.Problem{Field: "REDIS_ADDR", Message: "REDIS_ADDR is required"})
	}
	if cfg.AsynqRedisAddr == "" {
		cfg.AsynqRedisAddr = cfg.RedisAddr
	}
	if len(problems) > 0 {
		logger.Error(context.Background(), "config_invalid", "invalid config",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.Any("problems", problems),
		)
		os.Exit(1)
	}

	dbPool, err := dbx.NewPool(cfg)
	if err != nil {
		logger.Error(context.Background(), "db_init_failed", "db init failed",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	defer dbPool.Close()

	cache, err := cachex.New(cfg)
	if err != nil {
		logger.Error(context.Background(), "redis_init_failed", "redis init failed",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	defer cache.Close()

	producer, err := mqx.NewProducer(cfg)
	if err != nil {
		logger.Error(context.Background(), "kafka_init_failed", "kafka producer init failed",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	publisher := bus.NewPublisher(producer, logger)
	defer publisher.Close()

	interval := time.Duration(cfg.DueSoonScanSec) * time.Second
	scanner := &worker.DueSoonScanner{
		Logger:    logger,
		Tasks:     repos.NewTasksRepo(dbPool),
		Publisher: publisher,
		Locker:    worker.RedisLocker{Client: cache.Client()},
		Window:    time.Duration(cfg.DueSoonWindowHours) * time.Hour,
		// lease outlives one scan but never blocks the next interval
		LockTTL: interval / 2,
	}

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.AsynqRedisAddr,
		Password: cfg.AsynqRedisPass,
		DB:       cfg.AsynqRedisDB,
	}

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.AsynqConcurrency,
		Queues:      map[string]int{cfg.AsynqQueue: 1},
	})
	mux := asynq.NewServeMux()
	mux.HandleFunc(worker.TaskTypeDueSoonScan, scanner.HandleScan)

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{})
	if _, err := scheduler.Register(
		fmt.Sprintf("@every %ds", cfg.DueSoonScanSec),
		worker.NewScanTask(),
		asynq.Queue(cfg.AsynqQueue),
	); err != nil {
		logger.Error(context.Background(), "scheduler_register_failed", "failed to register scan schedule",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info(context.Background(), "worker_start", "starting due-soon worker",
			slog.Int("scan_interval_seconds", cfg.DueSoonScanSec),
			slog.Int("window_hours", cfg.DueSoonWindowHours),
		)
		errCh <- srv.Run(mux)
	}()
	go func() {
		errCh <- scheduler.Run()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info(context.Background(), "shutdown_signal", "received signal", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			logger.Error(context.Background(), "worker_failed", "worker failed",
				slog.String("error_code", "INTERNAL_ERROR"),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	scheduler.Shutdown()
	srv.Shutdown()
	logger.Info(context.Background(), "worker_stop", "worker stopped")
}
