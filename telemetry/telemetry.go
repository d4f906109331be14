// Package telemetry sets up xcd's logging and tracing, grounded on
// cmd/sand/main.go's initSlog (a slog.JSONHandler writing to a log file,
// level selected from a CLI flag) extended with log rotation via
// gopkg.in/natefinch/lumberjack.v2 and OTLP/gRPC trace export via
// go.opentelemetry.io/otel, both of which the teacher repo's go.mod
// already depends on without exercising - this package is where they earn
// their keep.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig holds the log setup; cmd/xcd fills Path and Level from its CLI
// flags and leaves the rotation limits at their defaults.
type LogConfig struct {
	Path       string
	Level      string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// NewLogger builds the daemon's slog.Logger the way initSlog does: a JSON
// handler at the configured level, writing to a rotated file instead of a
// bare os.File, and installs it as the process default.
func NewLogger(cfg LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var w io.Writer = &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    orDefault(cfg.MaxSizeMB, 100),
		MaxBackups: orDefault(cfg.MaxBackups, 5),
		MaxAge:     orDefault(cfg.MaxAgeDays, 28),
		Compress:   true,
	}
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// TraceConfig selects the OTLP collector xcd reports container lifecycle
// spans to. An empty Endpoint disables tracing (NewTracerProvider returns a
// provider whose spans are simply dropped).
type TraceConfig struct {
	Endpoint    string
	ServiceName string
	Insecure    bool
}

// NewTracerProvider dials the configured OTLP/gRPC collector and installs
// the resulting provider as the global otel tracer provider, returning a
// shutdown func the caller must invoke on exit to flush pending spans.
func NewTracerProvider(ctx context.Context, cfg TraceConfig) (func(context.Context) error, error) {
	if cfg.Endpoint == "" {
		tp := sdktrace.NewTracerProvider()
		otel.SetTracerProvider(tp)
		return tp.Shutdown, nil
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: connect OTLP exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
	))
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// Tracer returns xcd's named tracer, the entry point every package that
// wants to annotate a lifecycle span (StageRootFs, Unwind)
// should call.
func Tracer() trace.Tracer {
	return otel.Tracer("github.com/banksean/xcd")
}
