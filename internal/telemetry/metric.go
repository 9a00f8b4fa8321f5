//
// Tencent is pleased to support the open source community by making trpc-taskforce-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-taskforce-go is licensed under the Apache License Version 2.0.
//
//

package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"trpc.group/trpc-go/trpc-taskforce-go/model"
	"trpc.group/trpc-go/trpc-taskforce-go/telemetry/metric/histogram"
)

// MeterProvider is the provider the metric helpers record against.
// telemetry/metric.InitMeterProvider replaces it and the instruments below.
var MeterProvider metric.MeterProvider = noop.NewMeterProvider()

var (
	// ChatMeter is the meter used for recording model invocation metrics.
	ChatMeter metric.Meter = MeterProvider.Meter(MeterNameChat)

	// ChatMetricClientRequestCnt counts model invocations.
	ChatMetricClientRequestCnt metric.Int64Counter = noop.Int64Counter{}
	// ChatMetricClientTokenUsage records the distribution of token usage,
	// split by gen_ai.token.type into input and output.
	ChatMetricClientTokenUsage *histogram.DynamicInt64Histogram
	// ChatMetricClientOperationDuration records invocation durations in seconds.
	ChatMetricClientOperationDuration *histogram.DynamicFloat64Histogram
)

var (
	// ExecuteToolMeter is the meter used for recording tool execution metrics.
	ExecuteToolMeter metric.Meter = MeterProvider.Meter(MeterNameExecuteTool)

	// ExecuteToolMetricClientRequestCnt counts tool executions.
	ExecuteToolMetricClientRequestCnt metric.Int64Counter = noop.Int64Counter{}
	// ExecuteToolMetricClientOperationDuration records tool execution durations in seconds.
	ExecuteToolMetricClientOperationDuration *histogram.DynamicFloat64Histogram
)

var (
	// SubtaskMeter is the meter used for recording subtask execution metrics.
	SubtaskMeter metric.Meter = MeterProvider.Meter(MeterNameSubtask)

	// SubtaskMetricTurnCnt counts conversation turns across subtasks.
	SubtaskMetricTurnCnt metric.Int64Counter = noop.Int64Counter{}
	// SubtaskMetricDuration records whole-subtask durations in seconds.
	SubtaskMetricDuration *histogram.DynamicFloat64Histogram
)

// chatAttributes is the attribute set shared by the chat metrics.
type chatAttributes struct {
	ModelName  string
	WorkerName string
	Error      error
}

func (a chatAttributes) toAttributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(KeyGenAIOperationName, OperationChat),
		attribute.String(KeyGenAISystem, SystemTRPCGoTaskforce),
		attribute.String(KeyGenAIRequestModel, a.ModelName),
	}
	if a.WorkerName != "" {
		attrs = append(attrs, attribute.String(KeyGenAIAgentName, a.WorkerName))
	}
	if a.Error != nil {
		attrs = append(attrs, attribute.String(KeyErrorType, toErrorType(a.Error)))
	}
	return attrs
}

// executeToolAttributes is the attribute set shared by the tool metrics.
type executeToolAttributes struct {
	WorkerName string
	ToolName   string
	Error      error
}

func (a executeToolAttributes) toAttributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(KeyGenAIOperationName, OperationExecuteTool),
		attribute.String(KeyGenAISystem, SystemTRPCGoTaskforce),
		attribute.String(KeyGenAIToolName, a.ToolName),
	}
	if a.WorkerName != "" {
		attrs = append(attrs, attribute.String(KeyGenAIAgentName, a.WorkerName))
	}
	if a.Error != nil {
		attrs = append(attrs, attribute.String(KeyErrorType, toErrorType(a.Error)))
	}
	return attrs
}

// subtaskAttributes is the attribute set shared by the subtask metrics.
type subtaskAttributes struct {
	TaskID string
	Marker string
}

func (a subtaskAttributes) toAttributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(KeyGenAIOperationName, OperationExecuteSubtask),
		attribute.String(KeyGenAISystem, SystemTRPCGoTaskforce),
		attribute.String(KeyTaskID, a.TaskID),
	}
	if a.Marker != "" {
		attrs = append(attrs, attribute.String(KeySubtaskMarker, a.Marker))
	}
	return attrs
}

func toErrorType(err error) string {
	var callErr *model.CallError
	if errors.As(err, &callErr) && callErr.Type != "" {
		return callErr.Type
	}
	return ValueDefaultErrorType
}

// IncChatRequestCnt counts one model invocation.
func IncChatRequestCnt(ctx context.Context, modelName, workerName string, err error) {
	a := chatAttributes{ModelName: modelName, WorkerName: workerName, Error: err}
	ChatMetricClientRequestCnt.Add(ctx, 1, metric.WithAttributes(a.toAttributes()...))
}

// RecordChatTokenUsage records input and output token usage for one invocation.
func RecordChatTokenUsage(ctx context.Context, modelName, workerName string, usage *model.Usage) {
	if ChatMetricClientTokenUsage == nil || usage == nil {
		return
	}
	a := chatAttributes{ModelName: modelName, WorkerName: workerName}
	attrs := a.toAttributes()
	ChatMetricClientTokenUsage.Record(ctx, int64(usage.PromptTokens),
		metric.WithAttributes(append(attrs, attribute.String(KeyGenAITokenType, TokenTypeInput))...))
	ChatMetricClientTokenUsage.Record(ctx, int64(usage.CompletionTokens),
		metric.WithAttributes(append(attrs, attribute.String(KeyGenAITokenType, TokenTypeOutput))...))
}

// RecordChatOperationDuration records the wall time of one model invocation.
func RecordChatOperationDuration(ctx context.Context, modelName, workerName string, duration time.Duration) {
	if ChatMetricClientOperationDuration == nil {
		return
	}
	a := chatAttributes{ModelName: modelName, WorkerName: workerName}
	ChatMetricClientOperationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(a.toAttributes()...))
}

// IncExecuteToolRequestCnt counts one tool execution.
func IncExecuteToolRequestCnt(ctx context.Context, workerName, toolName string, err error) {
	a := executeToolAttributes{WorkerName: workerName, ToolName: toolName, Error: err}
	ExecuteToolMetricClientRequestCnt.Add(ctx, 1, metric.WithAttributes(a.toAttributes()...))
}

// RecordExecuteToolOperationDuration records the wall time of one tool execution.
func RecordExecuteToolOperationDuration(ctx context.Context, workerName, toolName string, duration time.Duration) {
	if ExecuteToolMetricClientOperationDuration == nil {
		return
	}
	a := executeToolAttributes{WorkerName: workerName, ToolName: toolName}
	ExecuteToolMetricClientOperationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(a.toAttributes()...))
}

// AddSubtaskTurnCnt counts the turns a finished subtask consumed.
func AddSubtaskTurnCnt(ctx context.Context, taskID string, turns int64) {
	a := subtaskAttributes{TaskID: taskID}
	SubtaskMetricTurnCnt.Add(ctx, turns, metric.WithAttributes(a.toAttributes()...))
}

// RecordSubtaskDuration records the wall time of one subtask execution.
func RecordSubtaskDuration(ctx context.Context, taskID, marker string, duration time.Duration) {
	if SubtaskMetricDuration == nil {
		return
	}
	a := subtaskAttributes{TaskID: taskID, Marker: marker}
	SubtaskMetricDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(a.toAttributes()...))
}
