// Copyright 2026 civicledger
// OpenTelemetry integration for distributed tracing

package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

// OTelConfig OpenTelemetry 配置
type OTelConfig struct {
	ServiceName    string
	ExportEndpoint string
	Insecure       bool
}

// InitTracer 初始化 OpenTelemetry tracer
func InitTracer(config OTelConfig) (*sdktrace.TracerProvider, error) {
	ctx := context.Background()

	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(config.ExportEndpoint),
	}
	if config.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptrace.New(ctx, otlptracehttp.NewClient(opts...))
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(config.ServiceName),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	return tp, nil
}

// StartLedgerSpan 开始账本写入 span
func StartLedgerSpan(ctx context.Context, op string, recordID string) (context.Context, trace.Span) {
	tracer := otel.Tracer("civicledger")
	ctx, span := tracer.Start(ctx, "ledger."+op,
		trace.WithAttributes(
			attribute.String("ledger.op", op),
			attribute.String("record.id", recordID),
		),
	)
	return ctx, span
}

// StartVerifySpan 开始核验 span
func StartVerifySpan(ctx context.Context, recordType string, recordID string) (context.Context, trace.Span) {
	tracer := otel.Tracer("civicledger")
	ctx, span := tracer.Start(ctx, "verify."+recordType,
		trace.WithAttributes(
			attribute.String("record.type", recordType),
			attribute.String("record.id", recordID),
		),
	)
	return ctx, span
}
