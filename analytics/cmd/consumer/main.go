package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"securities-sales-crm/analytics/internal/consumer"
	"securities-sales-crm/analytics/internal/reportcache"
	"securities-sales-crm/shared/bus"
	"securities-sales-crm/shared/cachex"
	"securities-sales-crm/shared/config"
	"securities-sales-crm/shared/events"
	"securities-sales-crm/shared/logx"
	"securities-sales-crm/shared/metricsx"
	"securities-sales-crm/shared/mqx"
	"securities-sales-crm/shared/observability"
)

func main() {
	cfg, problems := config.Load("analytics-consumer", 8185)
	version := strings.TrimSpace(os.Getenv("VERSION"))
	logger := logx.New(cfg.ServiceName, cfg.Env, version, cfg.LogLevel)
	metricsx.Register()

	if cfg.RedisAddr == "" {
		problems = append(problems, config.Problem{Field: "REDIS_ADDR", Message: "REDIS_ADDR is required"})
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

	cache, err := cachex.New(cfg)
	if err != nil {
		logger.Error(context.Background(), "redis_init_failed", "redis init failed",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	defer func() { _ = cache.Close() }()

	c := &consumer.Consumer{
		Logger: logger,
		Cache:  &reportcache.Cache{Logger: logger, Backend: cache},
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
		{events.TopicUserEvents, c.HandleUserEvent},
		{events.TopicCustomerEvents, c.HandleCustomerEvent},
		{events.TopicSalesEvents, c.HandleSalesEvent},
		{events.TopicApprovalEvents, c.HandleApprovalEvent},
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
