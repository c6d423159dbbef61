package observability

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"

	"github.com/Youmanvi/bookingengine/internal/infrastructure/config"
)

const TraceIDKey = "trace_id"

type Logger struct {
	*zerolog.Logger
}

// NewLogger creates a new structured logger based on configuration
func NewLogger(cfg *config.ObservabilityConfig) *Logger {
	return NewLoggerTo(os.Stdout, cfg)
}

// NewLoggerTo creates a logger writing to w
func NewLoggerTo(w io.Writer, cfg *config.ObservabilityConfig) *Logger {
	output := w

	logLevel := parseLogLevel(cfg.LogLevel)

	// Format output
	if cfg.LogFormat == "text" {
		output = zerolog.ConsoleWriter{Out: w}
	}

	logger := zerolog.New(output).
		Level(logLevel).
		With().
		Timestamp().
		Logger()

	return &Logger{Logger: &logger}
}

// NewNopLogger returns a logger that discards everything
func NewNopLogger() *Logger {
	logger := zerolog.Nop()
	return &Logger{Logger: &logger}
}

// WithTraceID returns a new logger with trace ID attached
func (l *Logger) WithTraceID(traceID string) *Logger {
	logger := l.With().Str(TraceIDKey, traceID).Logger()
	return &Logger{Logger: &logger}
}

// WithSpan attaches the trace ID of the span carried by ctx, if any
func (l *Logger) WithSpan(ctx context.Context) *Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return l
	}
	return l.WithTraceID(sc.TraceID().String())
}

// WithOperation returns a new logger tagged with a facade operation
func (l *Logger) WithOperation(op string) *Logger {
	logger := l.With().Str("op", op).Logger()
	return &Logger{Logger: &logger}
}

// WithResourceID returns a new logger with resource ID
func (l *Logger) WithResourceID(resourceID string) *Logger {
	logger := l.With().Str("resource_id", resourceID).Logger()
	return &Logger{Logger: &logger}
}

// WithReservationID returns a new logger with reservation ID
func (l *Logger) WithReservationID(reservationID string) *Logger {
	logger := l.With().Str("reservation_id", reservationID).Logger()
	return &Logger{Logger: &logger}
}

// WithStep returns a new logger with a durable step or publisher name
func (l *Logger) WithStep(name string) *Logger {
	logger := l.With().Str("step", name).Logger()
	return &Logger{Logger: &logger}
}

// WithError returns a new logger with error attached
func (l *Logger) WithError(err error) *Logger {
	logger := l.With().Err(err).Logger()
	return &Logger{Logger: &logger}
}

// parseLogLevel converts string to zerolog level
func parseLogLevel(levelStr string) zerolog.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// GetGlobalLogger returns the global logger
func GetGlobalLogger() *Logger {
	logger := log.Logger
	return &Logger{Logger: &logger}
}
