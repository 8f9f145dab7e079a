package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes store instruments.
type Metrics struct {
	writes          metric.Int64Counter
	mirrorRefreshes metric.Int64Counter
	mirrorFailures  metric.Int64Counter
	imports         metric.Int64Counter
	recoveries      metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}
	return provider, nil
}

// New configures the store instruments on provider.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "splitpay"
	}
	meter := provider.Meter(name)

	writes, err := meter.Int64Counter("splitpay_store_writes_total")
	if err != nil {
		return nil, err
	}
	mirrorRefreshes, err := meter.Int64Counter("splitpay_mirror_refreshes_total")
	if err != nil {
		return nil, err
	}
	mirrorFailures, err := meter.Int64Counter("splitpay_mirror_failures_total")
	if err != nil {
		return nil, err
	}
	imports, err := meter.Int64Counter("splitpay_imports_total")
	if err != nil {
		return nil, err
	}
	recoveries, err := meter.Int64Counter("splitpay_recoveries_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		writes:          writes,
		mirrorRefreshes: mirrorRefreshes,
		mirrorFailures:  mirrorFailures,
		imports:         imports,
		recoveries:      recoveries,
	}, nil
}

// RecordWrite counts a primary store mutation.
func (m *Metrics) RecordWrite(ctx context.Context, collection, op string, err error) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("collection", collection),
		attribute.String("operation", op),
		attribute.String("result", result(err)),
	)
	m.writes.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordMirrorRefresh counts a backup mirror refresh and, on failure, its reason.
func (m *Metrics) RecordMirrorRefresh(ctx context.Context, reason string, err error) {
	if m == nil {
		return
	}
	m.mirrorRefreshes.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("result", result(err)))...))
	if err != nil {
		m.mirrorFailures.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("reason", reason))...))
	}
}

// RecordImport counts an import attempt.
func (m *Metrics) RecordImport(ctx context.Context, err error) {
	if m == nil {
		return
	}
	m.imports.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("result", result(err)))...))
}

// RecordRecovery counts a cold-start restore from the backup mirror.
func (m *Metrics) RecordRecovery(ctx context.Context, err error) {
	if m == nil {
		return
	}
	m.recoveries.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("result", result(err)))...))
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"collection": {},
	"operation":  {},
	"result":     {},
	"reason":     {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
