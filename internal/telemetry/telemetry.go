// Package telemetry 提供日志、OpenTelemetry 分布式追踪与 HTTP 追踪中间件的封装。
// 追踪数据通过 OTLP/gRPC 导出到兼容的后端（如 Tempo、Jaeger）。
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/oriys/nimbus-functions/internal/config"
)

// tracerName 是宿主内部创建 Span 使用的追踪器名称。
const tracerName = "github.com/oriys/nimbus-functions"

// Telemetry 持有追踪提供者，负责追踪数据的生命周期。
type Telemetry struct {
	enabled        bool
	conn           *grpc.ClientConn
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer
}

// New 根据配置初始化追踪。
// 未启用时返回使用全局空操作提供者的实例；启用时建立到 OTLP 接收器的 gRPC 连接，
// 设置全局追踪提供者与 W3C 上下文传播器。
// gRPC 连接以非阻塞方式建立，接收器暂时不可达不会阻止宿主启动。
func New(ctx context.Context, cfg config.TelemetryConfig, version string) (*Telemetry, error) {
	if !cfg.Enabled {
		return &Telemetry{tracer: otel.Tracer(tracerName)}, nil
	}

	conn, err := grpc.DialContext(ctx, cfg.Endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection to %s: %w", cfg.Endpoint, err)
	}

	exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(version),
			attribute.String("environment", cfg.Environment),
		),
		resource.WithHost(),
		resource.WithProcess(),
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler(cfg.SampleRate))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Telemetry{
		enabled:        true,
		conn:           conn,
		tracerProvider: tp,
		tracer:         tp.Tracer(tracerName),
	}, nil
}

// sampler 根据采样率选择采样器。
func sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1.0:
		return sdktrace.AlwaysSample()
	case rate <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(rate)
	}
}

// Tracer 返回用于创建 Span 的追踪器。
func (t *Telemetry) Tracer() trace.Tracer {
	return t.tracer
}

// IsEnabled 返回追踪是否已启用。
func (t *Telemetry) IsEnabled() bool {
	return t.enabled
}

// Shutdown 刷新待发送的追踪数据并关闭连接，应在进程退出前调用。
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t.tracerProvider == nil {
		return nil
	}
	err := t.tracerProvider.Shutdown(ctx)
	if t.conn != nil {
		if cerr := t.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// StartInvocationSpan 为一次函数调用创建 Span，名称为 "invoke {function}"。
func StartInvocationSpan(ctx context.Context, function, trigger, invocationID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "invoke "+function,
		trace.WithAttributes(
			attribute.String("faas.name", function),
			attribute.String("faas.trigger", trigger),
			attribute.String("faas.invocation_id", invocationID),
		),
	)
}

// EndSpan 根据调用结果设置 Span 状态并结束它。
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// TraceIDFromContext 从上下文中提取 Trace ID，无有效 Span 时返回空字符串。
func TraceIDFromContext(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}
