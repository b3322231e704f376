// Package main provides the CLI entry point for alertd.
// It wires the store, bus, live registry and HTTP API for the configured roles.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/afikmenashe/alert-distribution/internal/audience"
	"github.com/afikmenashe/alert-distribution/internal/auth"
	"github.com/afikmenashe/alert-distribution/internal/bus"
	"github.com/afikmenashe/alert-distribution/internal/config"
	"github.com/afikmenashe/alert-distribution/internal/consumer"
	"github.com/afikmenashe/alert-distribution/internal/coordinator"
	"github.com/afikmenashe/alert-distribution/internal/database"
	"github.com/afikmenashe/alert-distribution/internal/fallback"
	"github.com/afikmenashe/alert-distribution/internal/handlers"
	internalmetrics "github.com/afikmenashe/alert-distribution/internal/metrics"
	"github.com/afikmenashe/alert-distribution/internal/normalizer"
	"github.com/afikmenashe/alert-distribution/internal/producer"
	"github.com/afikmenashe/alert-distribution/internal/registry"
	"github.com/afikmenashe/alert-distribution/internal/relay"
	"github.com/afikmenashe/alert-distribution/internal/router"
	pkgkafka "github.com/afikmenashe/alert-distribution/pkg/kafka"
	"github.com/afikmenashe/alert-distribution/pkg/metrics"
	"github.com/afikmenashe/alert-distribution/pkg/shared"
)

func main() {
	cfg, err := config.Parse(flag.CommandLine, os.Args[1:])

	// Set up structured logging
	level := slog.LevelInfo
	if cfg != nil {
		if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
			level = slog.LevelInfo
		}
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})))

	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting alertd",
		"roles", cfg.Roles,
		"mode", cfg.Mode,
		"http_port", cfg.HTTPPort,
		"kafka_brokers", cfg.KafkaBrokers,
		"alert_created_topic", cfg.AlertCreatedTopic,
		"user_alert_topic", cfg.UserAlertTopic,
		"dead_letter_topic", cfg.DeadLetterTopic,
		"postgres_dsn", shared.MaskDSN(cfg.PostgresDSN),
		"redis_addr", cfg.RedisAddr,
		"workers", cfg.Workers,
		"audience_workers", cfg.AudienceWorkers,
		"email_provider", cfg.EmailProvider,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		slog.Info("Received shutdown signal, shutting down gracefully...")
		cancel()
	}()

	if err := run(ctx, cfg); err != nil {
		slog.Error("alertd failed", "error", err)
		os.Exit(1)
	}
	slog.Info("alertd stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	mode, err := coordinator.ParseMode(cfg.Mode)
	if err != nil {
		return err
	}

	if cfg.EnsureTopics {
		brokers := pkgkafka.ParseBrokers(cfg.KafkaBrokers)
		err := pkgkafka.EnsureTopics(brokers[0],
			pkgkafka.TopicSpec{Name: cfg.AlertCreatedTopic, Partitions: 3, Retention: 7 * 24 * time.Hour},
			pkgkafka.TopicSpec{Name: cfg.UserAlertTopic, Partitions: 10, Retention: 7 * 24 * time.Hour},
			pkgkafka.TopicSpec{Name: cfg.DeadLetterTopic, Partitions: 1, Retention: 30 * 24 * time.Hour},
		)
		if err != nil {
			slog.Info("Tip: Start Kafka with 'docker compose up -d kafka'")
			return err
		}
	}

	// Initialize database connection
	slog.Info("Connecting to PostgreSQL database")
	db, err := database.NewDB(cfg.PostgresDSN)
	if err != nil {
		slog.Info("Tip: Start Postgres with 'docker compose up -d postgres' or ensure Postgres is running")
		return err
	}
	defer db.Close()
	slog.Info("Successfully connected to PostgreSQL database")

	// Redis backs the relay, the directory snapshot and service metrics. It is optional.
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		slog.Info("Connecting to Redis", "addr", cfg.RedisAddr)
		redisClient, err = shared.ConnectRedis(ctx, cfg.RedisAddr)
		if err != nil {
			slog.Warn("Redis unavailable, running single-instance without cache or service metrics", "error", err)
			redisClient = nil
		} else {
			defer redisClient.Close()
			slog.Info("Successfully connected to Redis")
		}
	}

	// Metrics: Prometheus for every role, Redis collectors when Redis is up.
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := internalmetrics.NewPrometheus(promRegistry)
	var stopCollectors []func()
	recorderFor := func(role string) internalmetrics.Recorder {
		rec := internalmetrics.Multi{prom.For(role)}
		if redisClient == nil || !cfg.Has(role) {
			return rec
		}
		collector := metrics.NewCollector("alertd-"+role, redisClient)
		collector.Start(ctx)
		stopCollectors = append(stopCollectors, collector.Stop)
		return append(rec, collector)
	}
	defer func() {
		for _, stop := range stopCollectors {
			stop()
		}
	}()
	apiMetrics := recorderFor(config.RoleAPI)
	audienceMetrics := recorderFor(config.RoleAudience)
	deliveryMetrics := recorderFor(config.RoleDelivery)

	// Directory and audience resolution
	directory := audience.NewCachedDirectory(redisClient, db, 0)
	resolver := audience.NewResolver(directory, cfg.CoreMarker)

	// Live delivery, relayed across instances when Redis is available
	live := registry.New(registry.WithSessionTimeout(cfg.SessionTimeout))
	defer live.Close()
	var pusher coordinator.Pusher = live
	var liveRelay *relay.Relay
	if redisClient != nil {
		liveRelay = relay.New(redisClient, live, cfg.RelayChannel)
		live.SetObserver(liveRelay)
		pusher = liveRelay
	}

	// Kafka producers
	slog.Info("Connecting to Kafka producers")
	alertCreatedProducer, err := producer.NewProducer(cfg.KafkaBrokers, cfg.AlertCreatedTopic)
	if err != nil {
		return err
	}
	userAlertProducer, err := producer.NewProducer(cfg.KafkaBrokers, cfg.UserAlertTopic)
	if err != nil {
		alertCreatedProducer.Close()
		return err
	}
	deadLetterProducer, err := producer.NewProducer(cfg.KafkaBrokers, cfg.DeadLetterTopic)
	if err != nil {
		alertCreatedProducer.Close()
		userAlertProducer.Close()
		return err
	}
	publisher := producer.NewEventPublisher(alertCreatedProducer, userAlertProducer, deadLetterProducer)
	defer publisher.Close()
	slog.Info("Successfully connected to Kafka producers")

	// Coordinator
	coordOpts := []coordinator.Option{
		coordinator.WithMetrics(deliveryMetrics),
		coordinator.WithPushTimeout(cfg.PushTimeout),
	}
	if mode == coordinator.ModeAsync {
		coordOpts = append(coordOpts, coordinator.WithPublisher(publisher))
	}
	if notifier := newNotifier(ctx, cfg, resolver, deliveryMetrics); notifier != nil {
		defer notifier.Wait()
		coordOpts = append(coordOpts, coordinator.WithFallback(notifier))
	}
	coord, err := coordinator.New(mode, db, resolver, pusher, coordOpts...)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	if redisClient != nil {
		g.Go(func() error { return directory.Run(gctx, cfg.DirectoryRefresh) })
		g.Go(func() error { return liveRelay.Run(gctx) })
	}

	if cfg.Has(config.RoleAudience) {
		runner, closeFn, err := newRunner(cfg, cfg.AlertCreatedTopic, cfg.AudienceGroupID, "audience", cfg.AudienceWorkers, coord.HandleAlertCreated, publisher, audienceMetrics)
		if err != nil {
			return err
		}
		defer closeFn()
		g.Go(func() error { return runner.Run(gctx) })
	}

	if cfg.Has(config.RoleDelivery) {
		runner, closeFn, err := newRunner(cfg, cfg.UserAlertTopic, cfg.DeliveryGroupID, "delivery", cfg.Workers, coord.HandleUserAlert, publisher, deliveryMetrics)
		if err != nil {
			return err
		}
		defer closeFn()
		g.Go(func() error { return runner.Run(gctx) })
	}

	if cfg.Has(config.RoleAPI) {
		server, err := newServer(cfg, coord, live, db, redisClient, promRegistry, apiMetrics)
		if err != nil {
			return err
		}
		g.Go(func() error {
			slog.Info("Starting HTTP server", "port", cfg.HTTPPort)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			slog.Info("Shutting down HTTP server...")
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			// Live channels end when the registry closes.
			live.Close()
			if err := server.Shutdown(shutdownCtx); err != nil {
				slog.Error("Error shutting down server", "error", err)
			}
			slog.Info("HTTP server stopped")
			return nil
		})
	}

	return g.Wait()
}

func newRunner(cfg *config.Config, topic, groupID, name string, workers int, handler bus.Handler, dlq bus.DeadLetterPublisher, rec internalmetrics.Recorder) (*bus.Runner, func(), error) {
	slog.Info("Connecting to Kafka consumer", "topic", topic, "group_id", groupID)
	c, err := consumer.NewConsumer(cfg.KafkaBrokers, topic, groupID)
	if err != nil {
		return nil, nil, err
	}
	runnerCfg := bus.DefaultRunnerConfig(name)
	runnerCfg.Workers = workers
	runnerCfg.ProcessingTimeout = cfg.ProcessingTimeout

	runner, err := bus.NewRunner(c, handler, dlq, runnerCfg, rec)
	if err != nil {
		c.Close()
		return nil, nil, err
	}
	return runner, func() { c.Close() }, nil
}

func newNotifier(ctx context.Context, cfg *config.Config, lookup fallback.RecipientLookup, rec internalmetrics.Recorder) *fallback.Notifier {
	if cfg.EmailProvider == "" || cfg.EmailProvider == config.EmailNone {
		return nil
	}

	providers := fallback.NewRegistry()
	if cfg.EmailProvider == config.EmailSES {
		providers.Register(fallback.NewSESProvider(ctx, cfg.SESRegion))
	}
	// Resend doubles as the fallback whenever a key is present.
	if cfg.ResendAPIKey != "" {
		providers.Register(fallback.NewResendProvider(cfg.ResendAPIKey))
	}
	if err := providers.SetPrimary(cfg.EmailProvider); err != nil {
		slog.Warn("Email provider not registered", "provider", cfg.EmailProvider, "error", err)
	}
	if !providers.Configured() {
		slog.Warn("No email provider configured, fallback notification disabled")
		return nil
	}

	return fallback.NewNotifier(lookup, providers, fallback.Config{
		From: cfg.EmailFrom,
		Rate: cfg.EmailRate,
	}, rec)
}

func newServer(cfg *config.Config, coord *coordinator.Coordinator, live *registry.Registry, db *database.DB, redisClient *redis.Client, gatherer prometheus.Gatherer, rec internalmetrics.Recorder) (*http.Server, error) {
	var authCtx auth.Context
	if cfg.JWTSecret != "" {
		j, err := auth.NewJWT(cfg.JWTSecret, cfg.JWTIssuer)
		if err != nil {
			return nil, err
		}
		authCtx = j
	} else {
		slog.Warn("No JWT secret configured, trusting the recipient query parameter")
	}

	opts := []handlers.Option{
		handlers.WithPurger(db),
		handlers.WithMetrics(rec),
		handlers.WithHeartbeat(cfg.Heartbeat),
	}
	if redisClient != nil {
		opts = append(opts, handlers.WithMetricsReader(metrics.NewReader(redisClient)))
	}
	h := handlers.NewHandlers(coord, normalizer.New(), live, authCtx, opts...)

	r := router.NewRouter(h, router.WithMetrics(rec), router.WithGatherer(gatherer))
	return router.NewServer(strings.TrimPrefix(cfg.HTTPPort, ":"), r), nil
}
