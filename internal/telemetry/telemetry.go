// Package telemetry installs the OpenTelemetry tracer provider. Finished spans
// are written to the service log as observability events.
package telemetry

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const eventMessage = "observability.event"

// LogExporter exports spans as logrus entries.
type LogExporter struct {
	logger *log.Logger
	domain string
}

// NewLogExporter creates an exporter that tags every event with domain.
func NewLogExporter(logger *log.Logger, domain string) *LogExporter {
	return &LogExporter{logger: logger, domain: domain}
}

func (e *LogExporter) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, s := range spans {
		attrs := make(map[string]any, len(s.Attributes()))
		for _, kv := range s.Attributes() {
			attrs[string(kv.Key)] = kv.Value.AsInterface()
		}
		severity := "INFO"
		level := log.DebugLevel
		if s.Status().Code == codes.Error {
			severity = "ERROR"
			level = log.WarnLevel
			attrs["error.message"] = s.Status().Description
		}
		e.logger.WithFields(log.Fields{
			"event.name":    s.Name(),
			"event.domain":  e.domain,
			"trace_id":      s.SpanContext().TraceID().String(),
			"span_id":       s.SpanContext().SpanID().String(),
			"duration_ms":   float64(s.EndTime().Sub(s.StartTime())) / float64(time.Millisecond),
			"severity_text": severity,
			"attributes":    attrs,
		}).Log(level, eventMessage)
	}
	return nil
}

func (e *LogExporter) Shutdown(context.Context) error { return nil }

// Setup installs a global tracer provider that batches spans to the log. The
// returned function flushes and shuts it down.
func Setup(service string, logger *log.Logger) func(context.Context) error {
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(NewLogExporter(logger, service)),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown
}
