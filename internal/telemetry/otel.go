package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

const serviceName = "zyftyd"

// InitOtelSDK installs a global meter provider pushing to the given OTLP/HTTP collector
// every pushInterval. The returned func flushes and stops the provider.
func InitOtelSDK(
	ctx context.Context, otelCollectorURL string, pushInterval time.Duration,
) (func(context.Context) error, error) {
	if pushInterval <= 0 {
		return nil, fmt.Errorf("invalid push interval %s", pushInterval)
	}

	res, err := resource.New(
		ctx, resource.WithAttributes(attribute.String("service.name", serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create otel resource: %w", err)
	}

	exporter, err := otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpointURL(otelCollectorURL))
	if err != nil {
		return nil, fmt.Errorf("failed to create otlp metric exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(pushInterval)),
		),
	)
	otel.SetMeterProvider(meterProvider)

	return meterProvider.Shutdown, nil
}
