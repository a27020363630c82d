// Package logging configures logrus for the services.
package logging

import (
	"io"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/butvinm-itmo/highload-sub001/internal/config"
)

// Setup configures the standard logrus logger from cfg and returns it with a
// service field attached to every entry through a hook.
func Setup(service string, cfg config.LogConfig) (*log.Logger, error) {
	logger := log.StandardLogger()
	if err := Configure(logger, cfg); err != nil {
		return nil, err
	}
	logger.AddHook(serviceHook{service: service})
	return logger, nil
}

// Configure applies level, format and output settings to logger.
func Configure(logger *log.Logger, cfg config.LogConfig) error {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		level = log.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Format == "text" {
		logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&log.JSONFormatter{})
	}

	var out io.Writer = os.Stdout
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return err
		}
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		})
	}
	logger.SetOutput(out)
	return nil
}

type serviceHook struct{ service string }

func (serviceHook) Levels() []log.Level { return log.AllLevels }

func (h serviceHook) Fire(e *log.Entry) error {
	if _, ok := e.Data["service"]; !ok {
		e.Data["service"] = h.service
	}
	return nil
}
