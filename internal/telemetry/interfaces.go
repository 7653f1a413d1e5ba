package telemetry

import (
	"context"
	"fmt"
	"log"

	"github.com/the-cubic-cat/sfera/logging"
)

// EventDiagnostic carries free-form Printf output routed through the event
// pipeline.
const EventDiagnostic logging.EventType = "diagnostic.message"

// Logger exposes the logging capabilities required by simulator components.
type Logger interface {
	Printf(format string, args ...any)
}

// LoggerFunc adapts functions into the Logger interface.
type LoggerFunc func(format string, args ...any)

// Printf implements Logger for LoggerFunc.
func (f LoggerFunc) Printf(format string, args ...any) {
	if f == nil {
		return
	}
	f(format, args...)
}

// WrapLogger adapts a standard library logger to the Logger interface.
func WrapLogger(logger *log.Logger) Logger {
	return &loggerAdapter{logger: logger}
}

type loggerAdapter struct {
	logger *log.Logger
}

func (l *loggerAdapter) Printf(format string, args ...any) {
	if l == nil || l.logger == nil {
		return
	}
	l.logger.Printf(format, args...)
}

// StandardLogger exposes the wrapped logger for components that need one.
func (l *loggerAdapter) StandardLogger() *log.Logger {
	if l == nil {
		return nil
	}
	return l.logger
}

// EventLogger turns Printf calls into info-level diagnostic events so that
// plain messages reach the same sinks as structured ones.
func EventLogger(pub logging.Publisher, category string) Logger {
	if pub == nil {
		return LoggerFunc(nil)
	}
	return LoggerFunc(func(format string, args ...any) {
		pub.Publish(context.Background(), logging.Event{
			Type:     EventDiagnostic,
			Severity: logging.SeverityInfo,
			Category: category,
			Payload:  fmt.Sprintf(format, args...),
		})
	})
}

// Metrics exposes the telemetry methods required by simulator components.
type Metrics interface {
	Add(key string, delta uint64)
	Store(key string, value uint64)
}

// WrapMetrics adapts the logging router metrics into the Metrics interface.
func WrapMetrics(metrics *logging.Metrics) Metrics {
	return &metricsAdapter{metrics: metrics}
}

type metricsAdapter struct {
	metrics *logging.Metrics
}

func (m *metricsAdapter) Add(key string, delta uint64) {
	if m == nil || m.metrics == nil {
		return
	}
	m.metrics.TelemetryAdd(key, delta)
}

func (m *metricsAdapter) Store(key string, value uint64) {
	if m == nil || m.metrics == nil {
		return
	}
	m.metrics.TelemetryStore(key, value)
}
