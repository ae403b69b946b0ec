// Package telemetry wires OpenTelemetry traces, metrics and logs for the
// connector service, plus the span and instrument helpers the sync engine uses.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	serviceVersion  = "1.0.0"
	shutdownTimeout = 10 * time.Second

	defaultMetricsInterval = time.Minute
)

// Config selects which signals are exported to one OTLP/gRPC collector.
// Nothing is exported unless Enabled is set.
type Config struct {
	Enabled     bool
	Endpoint    string
	Insecure    bool
	ServiceName string

	SamplingRatio   float64
	Metrics         bool
	MetricsInterval time.Duration
	Logs            bool
}

func (c Config) metricsOn() bool { return c.Enabled && c.Metrics }
func (c Config) logsOn() bool    { return c.Enabled && c.Logs }

// Providers groups the three signal providers built by Setup.
type Providers struct {
	Tracer *TracerProvider
	Meter  *MeterProvider
	Logger *LoggerProvider
}

// Setup builds every provider for cfg. A failure leaves nothing running.
func Setup(ctx context.Context, cfg Config, logger *zap.Logger) (*Providers, error) {
	tp, err := NewTracerProvider(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	mp, err := NewMeterProvider(ctx, cfg, logger)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, err
	}
	lp, err := NewLoggerProvider(ctx, cfg, logger)
	if err != nil {
		_ = ShutdownAll(ctx, tp, mp, nil)
		return nil, err
	}
	return &Providers{Tracer: tp, Meter: mp, Logger: lp}, nil
}

// Shutdown flushes and stops every provider.
func (p *Providers) Shutdown(ctx context.Context) error {
	return ShutdownAll(ctx, p.Tracer, p.Meter, p.Logger)
}

// ShutdownAll stops the given providers, any of which may be nil, and joins
// their errors.
func ShutdownAll(ctx context.Context, tp *TracerProvider, mp *MeterProvider, lp *LoggerProvider) error {
	return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx), lp.Shutdown(ctx))
}

func serviceResource(name string) (*resource.Resource, error) {
	return resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(name),
		semconv.ServiceVersion(serviceVersion),
	))
}

// stopProvider bounds a provider shutdown and logs the outcome under kind.
func stopProvider(ctx context.Context, logger *zap.Logger, kind string, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		logger.Error("Telemetry shutdown failed", zap.String("provider", kind), zap.Error(err))
		return fmt.Errorf("shutdown %s provider: %w", kind, err)
	}
	logger.Info("Telemetry provider stopped", zap.String("provider", kind))
	return nil
}

// ---------------------------------------------------------------------------
// Traces
// ---------------------------------------------------------------------------

// TracerProvider holds the SDK tracer provider while tracing is on.
type TracerProvider struct {
	sdk    *sdktrace.TracerProvider
	logger *zap.Logger
}

// NewTracerProvider exports spans over OTLP and installs the provider and a
// W3C propagator globally. Disabled, the global no-op provider stays.
func NewTracerProvider(ctx context.Context, cfg Config, logger *zap.Logger) (*TracerProvider, error) {
	tp := &TracerProvider{logger: logger}
	if !cfg.Enabled {
		logger.Info("Tracing disabled")
		return tp, nil
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exp, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("trace exporter: %w", err)
	}
	res, err := serviceResource(cfg.ServiceName)
	if err != nil {
		return nil, fmt.Errorf("trace resource: %w", err)
	}

	tp.sdk = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.SamplingRatio)),
	)
	otel.SetTracerProvider(tp.sdk)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	logger.Info("Tracing enabled", zap.String("endpoint", cfg.Endpoint), zap.Float64("sampling_ratio", cfg.SamplingRatio))
	return tp, nil
}

// sampler follows the parent's decision and samples roots at ratio.
func sampler(ratio float64) sdktrace.Sampler {
	root := sdktrace.TraceIDRatioBased(ratio)
	if ratio >= 1 {
		root = sdktrace.AlwaysSample()
	} else if ratio <= 0 {
		root = sdktrace.NeverSample()
	}
	return sdktrace.ParentBased(root)
}

func (tp *TracerProvider) Tracer(name string, opts ...trace.TracerOption) trace.Tracer {
	if tp.sdk == nil {
		return otel.Tracer(name, opts...)
	}
	return tp.sdk.Tracer(name, opts...)
}

func (tp *TracerProvider) IsEnabled() bool { return tp != nil && tp.sdk != nil }

// Shutdown flushes pending spans.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if !tp.IsEnabled() {
		return nil
	}
	return stopProvider(ctx, tp.logger, "tracer", tp.sdk.Shutdown)
}

// ---------------------------------------------------------------------------
// Metrics
// ---------------------------------------------------------------------------

// MeterProvider holds the SDK meter provider while metric export is on.
type MeterProvider struct {
	sdk    *sdkmetric.MeterProvider
	logger *zap.Logger
}

// NewMeterProvider pushes metrics over OTLP every MetricsInterval and
// installs the provider globally.
func NewMeterProvider(ctx context.Context, cfg Config, logger *zap.Logger) (*MeterProvider, error) {
	mp := &MeterProvider{logger: logger}
	if !cfg.metricsOn() {
		logger.Info("Metric export disabled")
		return mp, nil
	}

	every := cfg.MetricsInterval
	if every <= 0 {
		every = defaultMetricsInterval
	}
	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exp, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("metric exporter: %w", err)
	}
	res, err := serviceResource(cfg.ServiceName)
	if err != nil {
		return nil, fmt.Errorf("metric resource: %w", err)
	}

	mp.sdk = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(every))),
	)
	otel.SetMeterProvider(mp.sdk)

	logger.Info("Metric export enabled", zap.String("endpoint", cfg.Endpoint), zap.Duration("interval", every))
	return mp, nil
}

// NewMeterProviderFromSDK wraps an SDK provider the caller already built,
// usually one reading into a ManualReader.
func NewMeterProviderFromSDK(sdk *sdkmetric.MeterProvider, logger *zap.Logger) *MeterProvider {
	return &MeterProvider{sdk: sdk, logger: logger}
}

func (mp *MeterProvider) Meter(name string, opts ...metric.MeterOption) metric.Meter {
	if mp.sdk == nil {
		return otel.GetMeterProvider().Meter(name, opts...)
	}
	return mp.sdk.Meter(name, opts...)
}

func (mp *MeterProvider) IsEnabled() bool { return mp != nil && mp.sdk != nil }

// Shutdown performs a final export.
func (mp *MeterProvider) Shutdown(ctx context.Context) error {
	if !mp.IsEnabled() {
		return nil
	}
	return stopProvider(ctx, mp.logger, "meter", mp.sdk.Shutdown)
}

// ---------------------------------------------------------------------------
// Logs
// ---------------------------------------------------------------------------

// LoggerProvider holds the SDK log provider while log export is on. It is
// never installed globally; zap reaches it through CreateBridgedLoggerFromConfig.
type LoggerProvider struct {
	sdk    *sdklog.LoggerProvider
	logger *zap.Logger
}

func NewLoggerProvider(ctx context.Context, cfg Config, logger *zap.Logger) (*LoggerProvider, error) {
	lp := &LoggerProvider{logger: logger}
	if !cfg.logsOn() {
		logger.Info("Log export disabled")
		return lp, nil
	}

	opts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlploggrpc.WithInsecure())
	}
	exp, err := otlploggrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("log exporter: %w", err)
	}
	res, err := serviceResource(cfg.ServiceName)
	if err != nil {
		return nil, fmt.Errorf("log resource: %w", err)
	}

	lp.sdk = sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exp)),
	)
	logger.Info("Log export enabled", zap.String("endpoint", cfg.Endpoint))
	return lp, nil
}

func (lp *LoggerProvider) IsEnabled() bool { return lp != nil && lp.sdk != nil }

// Shutdown flushes buffered records.
func (lp *LoggerProvider) Shutdown(ctx context.Context) error {
	if !lp.IsEnabled() {
		return nil
	}
	return stopProvider(ctx, lp.logger, "logger", lp.sdk.Shutdown)
}
