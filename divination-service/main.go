package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/butvinm-itmo/highload-sub001/divination-service/api"
	"github.com/butvinm-itmo/highload-sub001/divination-service/domain"
	"github.com/butvinm-itmo/highload-sub001/divination-service/storage"
	"github.com/butvinm-itmo/highload-sub001/internal/auth"
	"github.com/butvinm-itmo/highload-sub001/internal/config"
	"github.com/butvinm-itmo/highload-sub001/internal/database"
	"github.com/butvinm-itmo/highload-sub001/internal/logging"
	"github.com/butvinm-itmo/highload-sub001/internal/messaging"
	"github.com/butvinm-itmo/highload-sub001/internal/server"
	"github.com/butvinm-itmo/highload-sub001/internal/telemetry"
)

const serviceName = "divination-service"

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
	msgMetrics := messaging.NewMetrics(reg)

	writer, err := messaging.NewKafkaWriter(cfg.Kafka.Brokers)
	if err != nil {
		logger.Fatalf("kafka writer: %v", err)
	}
	topics := messaging.TopicsFrom(cfg.Kafka)
	publisher := messaging.NewPublisher(writer, topics, cfg.Kafka.PublishTimeout, logger, msgMetrics)
	defer publisher.Close()

	dlq, err := messaging.NewDeadLetterSink(cfg.DeadLetter, writer, logger)
	if err != nil {
		logger.Fatalf("dead-letter sink: %v", err)
	}

	spreads := domain.NewSpreadService(store, publisher, storage.NewUserClient(cfg.UserServiceURL), logger)
	cascade := domain.NewCascadeExecutor(store, logger)
	sub := messaging.Subscribe(cfg, topics.User, messaging.PolicyRetry, cascade, dlq, logger, msgMetrics)

	e := server.New(logger, reg, map[string]server.HealthFunc{
		"database": database.Ping(db),
		"kafka":    messaging.Healthy(sub),
	})
	api.Register(e, spreads, authenticator)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sub.Run(gctx) })
	g.Go(func() error {
		return server.Run(gctx, e, cfg.HTTP.Addr, cfg.HTTP.ShutdownTimeout, logger)
	})
	if err := g.Wait(); err != nil {
		logger.WithError(err).Error("service stopped with error")
		return
	}
	logger.Info("service stopped")
}
