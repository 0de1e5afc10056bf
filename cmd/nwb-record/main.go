package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/INLOpen/nexusnwb/config"
	"github.com/INLOpen/nexusnwb/metrics"
	"github.com/INLOpen/nexusnwb/recording"
	"github.com/INLOpen/nexusnwb/server"
)

const serviceName = "nwb-record"

// createLogger creates a slog.Logger based on the provided configuration.
func createLogger(cfg config.LoggingConfig) (*slog.Logger, io.Closer, error) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, nil, fmt.Errorf("invalid log level: %s", cfg.Level)
	}

	var output io.Writer
	var closer io.Closer
	switch strings.ToLower(cfg.Output) {
	case "stdout":
		output = os.Stdout
	case "stderr":
		output = os.Stderr
	case "file":
		if cfg.File == "" {
			return nil, nil, fmt.Errorf("log output is 'file' but no file path is specified")
		}
		file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file %s: %w", cfg.File, err)
		}
		output = file
		closer = file
	case "none":
		output = io.Discard
	default:
		return nil, nil, fmt.Errorf("invalid log output: %s", cfg.Output)
	}

	logger := slog.New(slog.NewJSONHandler(output, &slog.HandlerOptions{Level: level}))
	return logger, closer, nil
}

// initTracerProvider creates and configures an OpenTelemetry TracerProvider
// exporting to an OTLP collector.
func initTracerProvider(cfg config.TracingConfig, logger *slog.Logger) (*sdktrace.TracerProvider, func(), error) {
	if !cfg.Enabled {
		logger.Info("Distributed tracing is disabled.")
		return sdktrace.NewTracerProvider(), func() {}, nil
	}

	logger.Info("Initializing distributed tracing...", "protocol", cfg.Protocol, "endpoint", cfg.Endpoint)

	ctx := context.Background()
	var exporter sdktrace.SpanExporter
	var err error
	switch strings.ToLower(cfg.Protocol) {
	case "http":
		exporter, err = otlptrace.New(ctx, otlptracehttp.NewClient(otlptracehttp.WithEndpoint(cfg.Endpoint), otlptracehttp.WithInsecure()))
	case "grpc":
		exporter, err = otlptrace.New(ctx, otlptracegrpc.NewClient(otlptracegrpc.WithEndpoint(cfg.Endpoint), otlptracegrpc.WithInsecure()))
	default:
		return nil, nil, fmt.Errorf("unsupported tracing protocol: %q", cfg.Protocol)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceNameKey.String(serviceName)))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create trace resource: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	cleanup := func() {
		logger.Info("Shutting down tracer provider...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error shutting down tracer provider", "error", err)
		}
	}
	return tp, cleanup, nil
}

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the configuration file")
	out := flag.String("out", "", "Output location; overrides storage.path")
	backendName := flag.String("backend", "", "Storage backend (container, badger, memory); overrides storage.backend")
	duration := flag.Duration("duration", 0, "Session length; overrides session.duration")
	channels := flag.Int("channels", 0, "Continuous channels; overrides session.channels")
	electrodes := flag.Int("electrodes", -1, "Spike electrodes; overrides session.electrodes")
	recordingNumber := flag.Int("recording", 0, "Recording session number")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		os.Exit(1)
	}
	if *out != "" {
		cfg.Storage.Path = *out
	}
	if *backendName != "" {
		cfg.Storage.Backend = *backendName
	}
	if *duration > 0 {
		cfg.Session.Duration = duration.String()
	}
	if *channels > 0 {
		cfg.Session.Channels = *channels
	}
	if *electrodes >= 0 {
		cfg.Session.Electrodes = *electrodes
	}
	if err := config.Validate(cfg); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	logger, logCloser, err := createLogger(cfg.Logging)
	if err != nil {
		slog.Error("Failed to create logger", "error", err)
		os.Exit(1)
	}
	if logCloser != nil {
		defer logCloser.Close()
	}

	if err := run(cfg, *recordingNumber, logger); err != nil {
		logger.Error("Recording failed", "error", err)
		if logCloser != nil {
			logCloser.Close()
		}
		os.Exit(1)
	}
}

func run(cfg *config.Config, recordingNumber int, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.NewRecorder(reg)

	if cfg.Debug.Enabled {
		metricSrv, err := server.NewMetricsServer(&cfg.Debug, reg, logger)
		if err != nil {
			return err
		}
		go func() {
			if err := metricSrv.Start(); err != nil {
				logger.Error("Failed to start metrics server", "error", err)
			}
		}()
		defer metricSrv.Stop()

		if cfg.Storage.Backend != "memory" {
			interval := config.ParseDuration(cfg.Debug.SystemMetricsInterval, 5*time.Second, logger)
			systemCollector := metrics.NewSystemCollector(reg, diskPath(cfg.Storage), interval, logger)
			systemCollector.Start()
			defer systemCollector.Stop()
		}
	}

	tp, tracerCleanup, err := initTracerProvider(cfg.Tracing, logger)
	if err != nil {
		return err
	}
	defer tracerCleanup()
	tracer := tp.Tracer(serviceName)

	backend, err := openBackend(cfg.Storage, logger, tracer, rec)
	if err != nil {
		return err
	}

	gen := newGenerator(cfg.Session, logger)
	file, err := recording.NewFile(backend, recording.Options{
		ChunkSize:          cfg.Recording.ChunkSize,
		SpikeChunkSize:     cfg.Recording.SpikeChunkSize,
		EventChunkSize:     cfg.Recording.EventChunkSize,
		MaxStagedFrames:    cfg.Recording.MaxStagedFrames,
		Version:            cfg.Recording.Version,
		SessionDescription: cfg.Recording.SessionDescription,
		EventSchema:        gen.schema,
		Logger:             logger,
		Tracer:             tracer,
		Metrics:            rec,
	})
	if err != nil {
		backend.Close()
		return fmt.Errorf("failed to create recording file: %w", err)
	}

	start := time.Now()
	recErr := gen.record(ctx, file, recordingNumber)
	summary := gen.stats
	if err := file.Close(ctx); err != nil && recErr == nil {
		recErr = err
	}
	if recErr != nil {
		return recErr
	}

	fmt.Printf("Recorded %s in %s\n", file.FileName(), time.Since(start).Round(time.Millisecond))
	fmt.Printf("  continuous frames: %s\n", humanize.Comma(int64(summary.frames)))
	fmt.Printf("  spikes:            %s\n", humanize.Comma(int64(summary.spikes)))
	fmt.Printf("  TTL events:        %s\n", humanize.Comma(int64(summary.events)))
	fmt.Printf("  messages:          %d\n", summary.messages)
	if st, err := os.Stat(file.FileName()); err == nil && !st.IsDir() {
		fmt.Printf("  file size:         %s\n", humanize.IBytes(uint64(st.Size())))
	}
	return nil
}
