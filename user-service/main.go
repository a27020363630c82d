package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"

	"github.com/butvinm-itmo/highload-sub001/internal/auth"
	"github.com/butvinm-itmo/highload-sub001/internal/config"
	"github.com/butvinm-itmo/highload-sub001/internal/database"
	"github.com/butvinm-itmo/highload-sub001/internal/logging"
	"github.com/butvinm-itmo/highload-sub001/internal/messaging"
	"github.com/butvinm-itmo/highload-sub001/internal/server"
	"github.com/butvinm-itmo/highload-sub001/internal/telemetry"
	"github.com/butvinm-itmo/highload-sub001/user-service/api"
	"github.com/butvinm-itmo/highload-sub001/user-service/domain"
	"github.com/butvinm-itmo/highload-sub001/user-service/storage"
)

const serviceName = "user-service"

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

	authenticator, err := auth.New(cfg.Auth)
	if err != nil {
		logger.Fatalf("auth: %v", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	writer, err := messaging.NewKafkaWriter(cfg.Kafka.Brokers)
	if err != nil {
		logger.Fatalf("kafka writer: %v", err)
	}
	publisher := messaging.NewPublisher(writer, messaging.TopicsFrom(cfg.Kafka), cfg.Kafka.PublishTimeout, logger, messaging.NewMetrics(reg))
	defer publisher.Close()

	users := domain.NewUserService(storage.New(db), publisher, logger)
	e := server.New(logger, reg, map[string]server.HealthFunc{"database": database.Ping(db)})
	api.Register(e, users, authenticator)

	if err := server.Run(ctx, e, cfg.HTTP.Addr, cfg.HTTP.ShutdownTimeout, logger); err != nil {
		logger.WithError(err).Error("service stopped with error")
		return
	}
	logger.Info("service stopped")
}
