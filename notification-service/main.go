package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/butvinm-itmo/highload-sub001/internal/auth"
	"github.com/butvinm-itmo/highload-sub001/internal/config"
	"github.com/butvinm-itmo/highload-sub001/internal/database"
	"github.com/butvinm-itmo/highload-sub001/internal/logging"
	"github.com/butvinm-itmo/highload-sub001/internal/messaging"
	"github.com/butvinm-itmo/highload-sub001/internal/server"
	"github.com/butvinm-itmo/highload-sub001/internal/telemetry"
	"github.com/butvinm-itmo/highload-sub001/notification-service/api"
	"github.com/butvinm-itmo/highload-sub001/notification-service/domain"
	"github.com/butvinm-itmo/highload-sub001/notification-service/storage"
	"github.com/butvinm-itmo/highload-sub001/notification-service/stream"
)

const serviceName = "notification-service"

func main() {
	cfg, err := config.Load(serviceName)
	if err != nil {
		log.Fatalf("%v", err)
	}
	logger, err := logging.Setup(serviceName, cfg.Log)
	if err != nil {
		log.Fatalf("logging: %v", err)
	}
	if err := cfg.RequireDatabase(); err != nil {
		logger.Fatal(err)
	}
	if err := cfg.RequireAuth(); err != nil {
		logger.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing := telemetry.Setup(serviceName, logger)
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.WithError(err).Warn("tracer shutdown failed")
		}
	}()

	db, err := database.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatalf("database: %v", err)
	}
	defer database.Close(db)
	if err := storage.Migrate(ctx, db); err != nil {
		logger.Fatalf("migrate: %v", err)
	}
	store := storage.New(db)

	authenticator, err := auth.New(cfg.Auth)
	if err != nil {
		logger.Fatalf("auth: %v", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	streamMetrics := stream.NewMetrics(reg)
	registry := stream.NewRegistry(logger, streamMetrics)

	checks := map[string]server.HealthFunc{"database": database.Ping(db)}

	var (
		broadcaster domain.Broadcaster = registry
		counter     api.UnreadCounter  = store
		invalidator domain.UnreadInvalidator
		rc          *redis.Client
	)
	if cfg.Redis.Enabled() {
		opts, err := config.RedisOptions(cfg.Redis.ConnectionString)
		if err != nil {
			logger.Fatalf("redis: %v", err)
		}
		rc = redis.NewClient(opts)
		defer rc.Close()
		cache := storage.NewUnreadCache(store, rc, cfg.Redis.UnreadTTL)
		broadcaster = stream.NewRedisRelay(rc, cfg.Redis.Channel, logger, streamMetrics)
		counter = cache
		invalidator = cache
		checks["redis"] = func(ctx context.Context) error { return rc.Ping(ctx).Err() }
	} else {
		logger.Info("redis not configured, broadcasting to local channels only")
	}

	msgMetrics := messaging.NewMetrics(reg)
	var dlqWriter messaging.MessageWriter
	if cfg.DeadLetter.Sink == config.SinkKafka {
		w, err := messaging.NewKafkaWriter(cfg.Kafka.Brokers)
		if err != nil {
			logger.Fatalf("dead-letter writer: %v", err)
		}
		defer w.Close()
		dlqWriter = w
	}
	dlq, err := messaging.NewDeadLetterSink(cfg.DeadLetter, dlqWriter, logger)
	if err != nil {
		logger.Fatalf("dead-letter sink: %v", err)
	}

	materializer := domain.NewMaterializer(store, broadcaster, invalidator, logger)
	topics := messaging.TopicsFrom(cfg.Kafka)
	subs := []*messaging.Supervisor{
		messaging.Subscribe(cfg, topics.Interpretation, messaging.PolicySkip, materializer, dlq, logger, msgMetrics),
		messaging.Subscribe(cfg, topics.Spread, messaging.PolicySkip, materializer, dlq, logger, msgMetrics),
	}
	checks["kafka"] = messaging.Healthy(subs...)

	e := server.New(logger, reg, checks)
	api.Register(e, store, counter, registry, authenticator, logger)

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range subs {
		g.Go(func() error { return s.Run(gctx) })
	}
	if rc != nil {
		g.Go(func() error {
			stream.Subscribe(gctx, rc, cfg.Redis.Channel, registry, logger, streamMetrics)
			return nil
		})
	}
	g.Go(func() error {
		// Open streams hold their requests until their channel is closed.
		<-gctx.Done()
		registry.Close()
		return nil
	})
	g.Go(func() error {
		return server.Run(gctx, e, cfg.HTTP.Addr, cfg.HTTP.ShutdownTimeout, logger)
	})
	if err := g.Wait(); err != nil {
		logger.WithError(err).Error("service stopped with error")
		return
	}
	logger.Info("service stopped")
}
