package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"securities-sales-crm/identity/internal/consumer"
	"securities-sales-crm/identity/internal/repos"
	"securities-sales-crm/shared/bus"
	"securities-sales-crm/shared/config"
	"securities-sales-crm/shared/dbx"
	"securities-sales-crm/shared/events"
	"securities-sales-crm/shared/logx"
	"securities-sales-crm/shared/metricsx"
	"securities-sales-crm/shared/mqx"
	"securities-sales-crm/shared/observability"
)

func main() {
	cfg, problems := config.Load("identity-consumer", 8181)
	version := strings.TrimSpace(os.Getenv("VERSION"))
	logger := logx.New(cfg.ServiceName, cfg.Env, version, cfg.LogLevel)
	metricsx.Register()

	if cfg.DatabaseURL == "" {
		problems = append(problems, config.Problem{Field: "DATABASE_URL", Message: "DATABASE_URL is required"})
	}
	if len(cfg.KafkaBrokers) == 0 {
		problems = append(problems, config.Problem{Field: "KAFKA_BROKERS", Message: "KAFKA_BROKERS is required"})
	}
	if len(problems) > 0 {
		logger.Error(context.Background(), "config_invalid", "invalid config",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.Any("problems", problems),
		)
		os.Exit(1)
	}

	if cfg.OtelEnabled {
		if shutdown, err := observability.InitTracer(context.Background(), observability.TracerConfig{
			ServiceName: cfg.ServiceName,
			Env:         cfg.Env,
			Endpoint:    cfg.OtelEndpoint,
			Insecure:    cfg.OtelInsecure,
			SampleRatio: cfg.OtelSampleRatio,
		}); err == nil {
			defer func() { _ = shutdown(context.Background()) }()
		}
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

	usersRepo := repos.NewUsersRepo(dbPool)
	c := &consumer.Consumer{
		Logger:        logger,
		Notifications: repos.NewNotificationsRepo(dbPool),
		Users:         usersRepo,
		Processed:     repos.NewProcessedEventsRepo(dbPool),
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	topics := []struct {
		topic  string
		handle bus.Handler
	}{
		{events.TopicApprovalEvents, c.HandleApprovalEvent},
		{events.TopicSalesEvents, c.HandleSalesEvent},
		{events.TopicUserEvents, c.HandleUserEvent},
	}

	var wg sync.WaitGroup
	for _, t := range topics {
		reader, err := mqx.NewConsumer(cfg, t.topic, consumer.Group)
		if err != nil {
			logger.Error(context.Background(), "kafka_init_failed", "kafka reader init failed",
				slog.String("error_code", "FAILED_PRECONDITION"),
				slog.String("topic", t.topic),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
		wg.Add(1)
		go func(topic string, handle bus.Handler) {
			defer wg.Done()
			defer reader.Close()
			bus.Consume(ctx, reader, consumer.Group, logger, handle)
		}(t.topic, t.handle)
	}
	wg.Wait()
}
