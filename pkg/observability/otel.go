package observability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// InstrumentationName identifies spans and instruments created by atrium
const InstrumentationName = "github.com/platinummonkey/atrium"

const exporterDialTimeout = 10 * time.Second

// OTelConfig holds OpenTelemetry configuration. Spans and instruments are no-ops until
// InitOTel installs real providers.
type OTelConfig struct {
	Enabled        bool
	Endpoint       string
	ServiceName    string
	ServiceVersion string
	Insecure       bool
	// SampleRatio is the fraction of root traces kept; 0 means keep everything
	SampleRatio float64
	// ExportInterval is how often metrics are pushed; 0 means 10s
	ExportInterval time.Duration
	// BatchTimeout bounds how long finished spans wait before export; 0 means 5s
	BatchTimeout time.Duration
}

// Tracer returns the tracer atrium components start spans with
func Tracer() trace.Tracer {
	return otel.Tracer(InstrumentationName)
}

func (c OTelConfig) sampler() sdktrace.Sampler {
	if c.SampleRatio <= 0 || c.SampleRatio >= 1 {
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(c.SampleRatio))
}

func (c OTelConfig) exportInterval() time.Duration {
	if c.ExportInterval <= 0 {
		return 10 * time.Second
	}
	return c.ExportInterval
}

func (c OTelConfig) batchTimeout() time.Duration {
	if c.BatchTimeout <= 0 {
		return 5 * time.Second
	}
	return c.BatchTimeout
}

func (c OTelConfig) dialOptions() []grpc.DialOption {
	if !c.Insecure {
		return nil
	}
	return []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
}

// OTelProviders holds the installed providers so they can be flushed at shutdown
type OTelProviders struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *metric.MeterProvider
}

// InitOTel installs OTLP trace and metric providers as the global providers. It returns
// nil providers when cfg is disabled.
func InitOTel(ctx context.Context, cfg OTelConfig, logger logrus.FieldLogger) (*OTelProviders, error) {
	if !cfg.Enabled {
		logger.Info("OpenTelemetry is disabled")
		return nil, nil
	}
	log := logger.WithFields(logrus.Fields{
		"endpoint":     cfg.Endpoint,
		"sample_ratio": cfg.SampleRatio,
	})

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.ServiceVersion),
		),
		resource.WithFromEnv(),
		resource.WithProcess(),
		resource.WithHost(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, exporterDialTimeout)
	defer cancel()

	spanExporter, err := otlptracegrpc.New(dialCtx,
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithDialOption(cfg.dialOptions()...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}
	metricExporter, err := otlpmetricgrpc.New(dialCtx,
		otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
		otlpmetricgrpc.WithDialOption(cfg.dialOptions()...),
	)
	if err != nil {
		if shutdownErr := spanExporter.Shutdown(ctx); shutdownErr != nil {
			log.WithError(shutdownErr).Warn("Failed to close trace exporter")
		}
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}

	providers := &OTelProviders{
		TracerProvider: sdktrace.NewTracerProvider(
			sdktrace.WithResource(res),
			sdktrace.WithBatcher(spanExporter, sdktrace.WithBatchTimeout(cfg.batchTimeout())),
			sdktrace.WithSampler(cfg.sampler()),
		),
		MeterProvider: metric.NewMeterProvider(
			metric.WithResource(res),
			metric.WithReader(metric.NewPeriodicReader(metricExporter,
				metric.WithInterval(cfg.exportInterval()))),
		),
	}

	otel.SetTracerProvider(providers.TracerProvider)
	otel.SetMeterProvider(providers.MeterProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	log.Info("OpenTelemetry initialized")
	return providers, nil
}

// ShutdownOTel flushes and stops both providers, reporting every failure
func ShutdownOTel(ctx context.Context, providers *OTelProviders, logger logrus.FieldLogger) error {
	if providers == nil {
		return nil
	}

	var errs []error
	for name, shutdown := range map[string]func(context.Context) error{
		"tracer": providers.TracerProvider.Shutdown,
		"meter":  providers.MeterProvider.Shutdown,
	} {
		if err := shutdown(ctx); err != nil {
			logger.WithError(err).WithField("provider", name).Error("Failed to shut down OpenTelemetry provider")
			errs = append(errs, fmt.Errorf("%s provider shutdown: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
