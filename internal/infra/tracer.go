package infra

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	"migration-service/config"
)

// ShutdownFunc はトレーサープロバイダーを停止し、未送信のスパンを送り切る。
type ShutdownFunc func(ctx context.Context) error

func noopShutdown(context.Context) error { return nil }

// dbSystemAttribute はDATABASE_URLの接続先を db.system 属性にする。
func dbSystemAttribute(dsn string) (attribute.KeyValue, bool) {
	dialector, err := NewDialector(dsn)
	if err != nil {
		return attribute.KeyValue{}, false
	}
	switch dialector.Name() {
	case "postgres":
		return semconv.DBSystemPostgreSQL, true
	case "mysql":
		return semconv.DBSystemMySQL, true
	case "sqlite":
		return semconv.DBSystemSqlite, true
	}
	return attribute.KeyValue{}, false
}

// newResource はマイグレーション実行元を識別するリソースを組み立てる。
// OTEL_RESOURCE_ATTRIBUTES で追加の属性を渡せる。
func newResource(ctx context.Context, cfg *config.Config) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.OtelServiceName),
		semconv.ServiceNamespace("schema-migration"),
	}
	if attr, ok := dbSystemAttribute(cfg.DatabaseURL); ok {
		attrs = append(attrs, attr)
	}
	if cfg.GoogleCloudProject != "" {
		attrs = append(attrs, semconv.CloudAccountID(cfg.GoogleCloudProject))
	}

	return resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithHost(),
		resource.WithAttributes(attrs...),
	)
}

// InitTracer はOTLPエクスポーターでトレーサープロバイダーを初期化する。
// OTEL_ENABLED=false の場合は何もしない ShutdownFunc を返す。
func InitTracer(ctx context.Context, cfg *config.Config) (ShutdownFunc, error) {
	if !cfg.OtelEnabled {
		return noopShutdown, nil
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("building trace resource: %w", err)
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OtelEndpoint),
	)
	if err != nil {
		return nil, fmt.Errorf("creating otlp exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.OtelSamplingRate))),
	)
	otel.SetTracerProvider(tp)

	// CLIからサーバーを呼ぶ場合もW3C TraceContextでつなぐ
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp.Shutdown, nil
}
