//
// Tencent is pleased to support the open source community by making trpc-taskforce-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-taskforce-go is licensed under the Apache License Version 2.0.
//
//

// Package metric wires the framework's meters to an OpenTelemetry meter
// provider exporting over OTLP.
package metric

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	itelemetry "trpc.group/trpc-go/trpc-taskforce-go/internal/telemetry"
	"trpc.group/trpc-go/trpc-taskforce-go/telemetry/metric/histogram"
)

// Meter and metric names accepted by SetHistogramBuckets.
const (
	MeterNameChat        = itelemetry.MeterNameChat
	MeterNameExecuteTool = itelemetry.MeterNameExecuteTool
	MeterNameSubtask     = itelemetry.MeterNameSubtask

	MetricClientRequestCnt             = itelemetry.MetricClientRequestCnt
	MetricGenAIClientTokenUsage        = itelemetry.MetricGenAIClientTokenUsage
	MetricGenAIClientOperationDuration = itelemetry.MetricGenAIClientOperationDuration
	MetricSubtaskTurnCnt               = itelemetry.MetricSubtaskTurnCnt
	MetricSubtaskDuration              = itelemetry.MetricSubtaskDuration
)

// InitMeterProvider initializes the meter provider and default meters.
func InitMeterProvider(mp metric.MeterProvider) error {
	if mp == nil {
		return fmt.Errorf("meter provider is nil")
	}
	itelemetry.MeterProvider = mp

	var err error
	itelemetry.ChatMeter = mp.Meter(MeterNameChat)
	if itelemetry.ChatMetricClientRequestCnt, err = itelemetry.ChatMeter.Int64Counter(
		MetricClientRequestCnt,
		metric.WithDescription("Total number of model invocations"),
		metric.WithUnit("1"),
	); err != nil {
		return fmt.Errorf("failed to create chat metric %s: %w", MetricClientRequestCnt, err)
	}
	if itelemetry.ChatMetricClientTokenUsage, err = histogram.NewDynamicInt64Histogram(
		mp,
		MeterNameChat,
		MetricGenAIClientTokenUsage,
		metric.WithDescription("Token usage per model invocation"),
		metric.WithUnit("{token}"),
	); err != nil {
		return fmt.Errorf("failed to create chat metric %s: %w", MetricGenAIClientTokenUsage, err)
	}
	if itelemetry.ChatMetricClientOperationDuration, err = histogram.NewDynamicFloat64Histogram(
		mp,
		MeterNameChat,
		MetricGenAIClientOperationDuration,
		metric.WithDescription("Duration of model invocations"),
		metric.WithUnit("s"),
	); err != nil {
		return fmt.Errorf("failed to create chat metric %s: %w", MetricGenAIClientOperationDuration, err)
	}

	itelemetry.ExecuteToolMeter = mp.Meter(MeterNameExecuteTool)
	if itelemetry.ExecuteToolMetricClientRequestCnt, err = itelemetry.ExecuteToolMeter.Int64Counter(
		MetricClientRequestCnt,
		metric.WithDescription("Total number of tool executions"),
		metric.WithUnit("1"),
	); err != nil {
		return fmt.Errorf("failed to create execute tool metric %s: %w", MetricClientRequestCnt, err)
	}
	if itelemetry.ExecuteToolMetricClientOperationDuration, err = histogram.NewDynamicFloat64Histogram(
		mp,
		MeterNameExecuteTool,
		MetricGenAIClientOperationDuration,
		metric.WithDescription("Duration of tool executions"),
		metric.WithUnit("s"),
	); err != nil {
		return fmt.Errorf("failed to create execute tool metric %s: %w", MetricGenAIClientOperationDuration, err)
	}

	itelemetry.SubtaskMeter = mp.Meter(MeterNameSubtask)
	if itelemetry.SubtaskMetricTurnCnt, err = itelemetry.SubtaskMeter.Int64Counter(
		MetricSubtaskTurnCnt,
		metric.WithDescription("Total number of conversation turns"),
		metric.WithUnit("1"),
	); err != nil {
		return fmt.Errorf("failed to create subtask metric %s: %w", MetricSubtaskTurnCnt, err)
	}
	if itelemetry.SubtaskMetricDuration, err = histogram.NewDynamicFloat64Histogram(
		mp,
		MeterNameSubtask,
		MetricSubtaskDuration,
		metric.WithDescription("Duration of subtask executions"),
		metric.WithUnit("s"),
	); err != nil {
		return fmt.Errorf("failed to create subtask metric %s: %w", MetricSubtaskDuration, err)
	}

	return nil
}

// GetMeterProvider returns the meter provider.
func GetMeterProvider() metric.MeterProvider {
	return itelemetry.MeterProvider
}

// SetHistogramBuckets updates bucket boundaries for a specific histogram
// metric. Note: this creates a new histogram instrument; old data is not
// migrated.
func SetHistogramBuckets(meterName string, metricName string, boundaries []float64) error {
	switch meterName {
	case MeterNameChat:
		return setChatHistogramBuckets(metricName, boundaries)
	case MeterNameExecuteTool:
		return setExecuteToolHistogramBuckets(metricName, boundaries)
	case MeterNameSubtask:
		return setSubtaskHistogramBuckets(metricName, boundaries)
	default:
		return fmt.Errorf("unknown or unsupported meter name: %s", meterName)
	}
}

func setChatHistogramBuckets(metricName string, boundaries []float64) error {
	switch metricName {
	case MetricGenAIClientTokenUsage:
		if itelemetry.ChatMetricClientTokenUsage == nil {
			return fmt.Errorf("chat metric %s not initialized", metricName)
		}
		return itelemetry.ChatMetricClientTokenUsage.SetBuckets(boundaries)
	case MetricGenAIClientOperationDuration:
		if itelemetry.ChatMetricClientOperationDuration == nil {
			return fmt.Errorf("chat metric %s not initialized", metricName)
		}
		return itelemetry.ChatMetricClientOperationDuration.SetBuckets(boundaries)
	default:
		return fmt.Errorf("unknown or unsupported chat histogram metric: %s", metricName)
	}
}

func setExecuteToolHistogramBuckets(metricName string, boundaries []float64) error {
	switch metricName {
	case MetricGenAIClientOperationDuration:
		if itelemetry.ExecuteToolMetricClientOperationDuration == nil {
			return fmt.Errorf("execute tool metric %s not initialized", metricName)
		}
		return itelemetry.ExecuteToolMetricClientOperationDuration.SetBuckets(boundaries)
	default:
		return fmt.Errorf("unknown or unsupported execute tool histogram metric: %s", metricName)
	}
}

func setSubtaskHistogramBuckets(metricName string, boundaries []float64) error {
	switch metricName {
	case MetricSubtaskDuration:
		if itelemetry.SubtaskMetricDuration == nil {
			return fmt.Errorf("subtask metric %s not initialized", metricName)
		}
		return itelemetry.SubtaskMetricDuration.SetBuckets(boundaries)
	default:
		return fmt.Errorf("unknown or unsupported subtask histogram metric: %s", metricName)
	}
}

// NewMeterProvider creates a new meter provider with optional configuration.
// The environment variables described below can be used for endpoint
// configuration.
// OTEL_EXPORTER_OTLP_ENDPOINT, OTEL_EXPORTER_OTLP_METRICS_ENDPOINT
// https://pkg.go.dev/go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc
func NewMeterProvider(ctx context.Context, opts ...Option) (*sdkmetric.MeterProvider, error) {
	options := &options{
		serviceName:      itelemetry.ServiceName,
		serviceVersion:   itelemetry.ServiceVersion,
		serviceNamespace: itelemetry.ServiceNamespace,
		protocol:         itelemetry.ProtocolGRPC,
	}
	for _, opt := range opts {
		opt(options)
	}

	if options.metricsEndpoint == "" {
		options.metricsEndpoint = metricsEndpoint(options.protocol)
	}

	res, err := buildResource(ctx, options)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	var meterProvider *sdkmetric.MeterProvider
	switch options.protocol {
	case itelemetry.ProtocolHTTP:
		meterProvider, err = newHTTPMeterProvider(ctx, res, options.metricsEndpoint)
	default:
		meterProvider, err = newGRPCMeterProvider(ctx, res, options.metricsEndpoint)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize meter provider: %w", err)
	}

	return meterProvider, nil
}

func metricsEndpoint(protocol string) string {
	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT"); endpoint != "" {
		return endpoint
	}
	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		return endpoint
	}

	switch protocol {
	case itelemetry.ProtocolHTTP:
		// HTTP endpoint base URL; otlpmetrichttp adds /v1/metrics itself.
		return "localhost:4318"
	default:
		// gRPC endpoint (host:port).
		return "localhost:4317"
	}
}

// Initializes an OTLP HTTP exporter, and configures the corresponding meter provider.
func newHTTPMeterProvider(ctx context.Context, res *resource.Resource, endpoint string) (*sdkmetric.MeterProvider, error) {
	metricExporter, err := otlpmetrichttp.New(ctx,
		otlpmetrichttp.WithEndpoint(endpoint),
		otlpmetrichttp.WithInsecure())
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP metrics exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
		sdkmetric.WithResource(res),
	)

	return meterProvider, nil
}

// Initializes an OTLP gRPC exporter, and configures the corresponding meter provider.
func newGRPCMeterProvider(ctx context.Context, res *resource.Resource, endpoint string) (*sdkmetric.MeterProvider, error) {
	metricsConn, err := itelemetry.NewGRPCConn(endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics connection: %w", err)
	}

	metricExporter, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithGRPCConn(metricsConn))
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
		sdkmetric.WithResource(res),
	)

	return meterProvider, nil
}

// Option is a function that configures meter options.
type Option func(*options)

// options holds the configuration options for the meter provider.
type options struct {
	metricsEndpoint    string
	serviceName        string
	serviceVersion     string
	serviceNamespace   string
	protocol           string
	resourceAttributes *[]attribute.KeyValue
}

// WithEndpoint sets the metrics endpoint (host and port) the exporter will
// connect to. The provided endpoint should resemble "example.com:4317" (no
// scheme or path). If the OTEL_EXPORTER_OTLP_ENDPOINT or
// OTEL_EXPORTER_OTLP_METRICS_ENDPOINT environment variable is set and this
// option is not passed, that variable value will be used. If both are set,
// OTEL_EXPORTER_OTLP_METRICS_ENDPOINT takes precedence. This option takes
// precedence over either variable.
func WithEndpoint(endpoint string) Option {
	return func(opts *options) {
		opts.metricsEndpoint = endpoint
	}
}

// WithProtocol sets the protocol to use for metrics export.
// Supported protocols are "grpc" (default) and "http".
func WithProtocol(protocol string) Option {
	return func(opts *options) {
		opts.protocol = protocol
	}
}

// WithServiceName overrides the service.name resource attribute.
func WithServiceName(serviceName string) Option {
	return func(opts *options) {
		opts.serviceName = serviceName
	}
}

// WithServiceNamespace overrides the service.namespace resource attribute.
func WithServiceNamespace(serviceNamespace string) Option {
	return func(opts *options) {
		opts.serviceNamespace = serviceNamespace
	}
}

// WithServiceVersion overrides the service.version resource attribute.
func WithServiceVersion(serviceVersion string) Option {
	return func(opts *options) {
		opts.serviceVersion = serviceVersion
	}
}

// WithResourceAttributes appends custom resource attributes.
func WithResourceAttributes(attrs ...attribute.KeyValue) Option {
	return func(opts *options) {
		if len(attrs) == 0 {
			return
		}
		if opts.resourceAttributes == nil {
			opts.resourceAttributes = &[]attribute.KeyValue{}
		}
		*opts.resourceAttributes = append(*opts.resourceAttributes, attrs...)
	}
}

func buildResource(ctx context.Context, options *options) (*resource.Resource, error) {
	resourceOpts := []resource.Option{
		resource.WithAttributes(
			semconv.ServiceNamespace(options.serviceNamespace),
			semconv.ServiceName(options.serviceName),
			semconv.ServiceVersion(options.serviceVersion),
		),
		resource.WithFromEnv(),
		resource.WithHost(),
		resource.WithTelemetrySDK(),
	}

	if options.resourceAttributes != nil && len(*options.resourceAttributes) > 0 {
		resourceOpts = append(resourceOpts, resource.WithAttributes(*options.resourceAttributes...))
	}

	return resource.New(ctx, resourceOpts...)
}
