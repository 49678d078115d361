// Package instrumentation provides OpenTelemetry metrics and tracing for the
// OAuth2 provider. When disabled it falls back to no-op providers with zero
// overhead, so callers never need to guard instrumentation calls.
package instrumentation

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// DefaultServiceVersion is used when no version is provided.
const DefaultServiceVersion = "unknown"

// Config holds instrumentation configuration.
type Config struct {
	// ServiceName is the name of the service.
	ServiceName string

	// ServiceVersion is the version of the service.
	ServiceVersion string

	// Enabled controls whether instrumentation is active. When false, no-op
	// providers are used.
	Enabled bool

	// Resource allows custom resource attributes. If nil, a default resource
	// is created from service name and version.
	Resource *resource.Resource
}

// Instrumentation provides OpenTelemetry instrumentation components.
type Instrumentation struct {
	config   Config
	resource *resource.Resource

	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider

	metrics *Metrics

	shutdownFuncs []func(context.Context) error
	shutdownOnce  sync.Once
}

// New creates a new instrumentation instance.
func New(config Config) (*Instrumentation, error) {
	if config.ServiceName == "" {
		config.ServiceName = "oauth2-provider"
	}
	if config.ServiceVersion == "" {
		config.ServiceVersion = DefaultServiceVersion
	}

	res := config.Resource
	if res == nil {
		var err error
		res, err = resource.New(
			context.Background(),
			resource.WithAttributes(
				semconv.ServiceName(config.ServiceName),
				semconv.ServiceVersion(config.ServiceVersion),
			),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create resource: %w", err)
		}
	}

	inst := &Instrumentation{
		config:   config,
		resource: res,
	}

	if config.Enabled {
		meterProvider := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res))
		tracerProvider := sdktrace.NewTracerProvider(sdktrace.WithResource(res))
		inst.meterProvider = meterProvider
		inst.tracerProvider = tracerProvider
		inst.shutdownFuncs = append(inst.shutdownFuncs,
			meterProvider.Shutdown,
			tracerProvider.Shutdown,
		)
	} else {
		inst.meterProvider = metricnoop.NewMeterProvider()
		inst.tracerProvider = tracenoop.NewTracerProvider()
	}

	metrics, err := newMetrics(inst.Meter("oauth2-provider"))
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}
	inst.metrics = metrics

	return inst, nil
}

// Meter returns a named meter from the configured provider.
func (i *Instrumentation) Meter(name string) metric.Meter {
	return i.meterProvider.Meter(name)
}

// Tracer returns a named tracer from the configured provider.
func (i *Instrumentation) Tracer(name string) trace.Tracer {
	return i.tracerProvider.Tracer(name)
}

// Metrics returns the pre-configured metric instruments.
func (i *Instrumentation) Metrics() *Metrics {
	return i.metrics
}

// Shutdown flushes and releases provider resources. Safe to call more than
// once; only the first call has an effect.
func (i *Instrumentation) Shutdown(ctx context.Context) error {
	var err error
	i.shutdownOnce.Do(func() {
		for _, fn := range i.shutdownFuncs {
			if e := fn(ctx); e != nil && err == nil {
				err = e
			}
		}
	})
	return err
}
