package main

import (
	"context"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	divination "github.com/butvinm-itmo/highload-sub001/divination-service/storage"
	"github.com/butvinm-itmo/highload-sub001/internal/config"
	"github.com/butvinm-itmo/highload-sub001/internal/database"
	"github.com/butvinm-itmo/highload-sub001/internal/logging"
	notification "github.com/butvinm-itmo/highload-sub001/notification-service/storage"
	users "github.com/butvinm-itmo/highload-sub001/user-service/storage"
)

const serviceName = "storage-init"

func main() {
	cfg, err := config.Load(serviceName)
	if err != nil {
		log.Fatalf("%v", err)
	}
	logger, err := logging.Setup(serviceName, cfg.Log)
	if err != nil {
		log.Fatalf("logging: %v", err)
	}
	logger.Info("storage init starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := dialController(ctx, cfg.Kafka.Brokers)
	if err != nil {
		logger.Fatal(err)
	}
	topics := topicConfigs(cfg)
	err = createTopics(conn, topics)
	conn.Close()
	if err != nil {
		logger.Fatal(err)
	}
	logger.WithField("count", len(topics)).Info("kafka topics ready")

	if cfg.Database.DSN != "" {
		db, err := database.Open(ctx, cfg.Database, logger)
		if err != nil {
			logger.Fatalf("database: %v", err)
		}
		err = runMigrations(ctx, db, map[string]func(context.Context, *gorm.DB) error{
			"users":         users.Migrate,
			"divination":    divination.Migrate,
			"notifications": notification.Migrate,
		}, logger)
		database.Close(db)
		if err != nil {
			logger.Fatal(err)
		}
	} else {
		logger.Info("DATABASE_DSN not set, skipping migrations")
	}

	if err := createDeadLetterStorage(ctx, cfg.DeadLetter); err != nil {
		logger.Fatalf("dead-letter storage: %v", err)
	}
	logger.Info("storage init complete")
}
