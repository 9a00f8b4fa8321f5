//
// Tencent is pleased to support the open source community by making trpc-taskforce-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-taskforce-go is licensed under the Apache License Version 2.0.
//
//

// Package telemetry holds the shared tracing and metrics state for the
// framework. Instruments default to no-op implementations so that
// orchestration code can record unconditionally; the public
// telemetry/trace and telemetry/metric packages swap in real providers.
package telemetry

import (
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// grpcDial is a package-level variable to allow test injection of a custom
// dialer. In production, this points to grpc.Dial.
var grpcDial = grpc.Dial

// Telemetry service constants.
const (
	ServiceName      = "telemetry"
	ServiceVersion   = "v0.1.0"
	ServiceNamespace = "trpc-go-taskforce"
	InstrumentName   = "trpc.taskforce.go"

	OperationRunTask        = "run_task"
	OperationComposeTask    = "compose_task"
	OperationExecuteSubtask = "execute_subtask"
	OperationReflectSubtask = "reflect_subtask"
	OperationChat           = "chat"
	OperationExecuteTool    = "execute_tool"
)

const (
	// ProtocolGRPC uses gRPC protocol for OTLP exporters.
	ProtocolGRPC string = "grpc"
	// ProtocolHTTP uses HTTP protocol for OTLP exporters.
	ProtocolHTTP string = "http"
)

// Span and metric attribute keys. The gen_ai.* keys follow the
// OpenTelemetry generative-AI semantic conventions; the trpc.go.taskforce.*
// keys carry orchestration state the conventions have no slot for.
const (
	KeyEventID              = "trpc.go.taskforce.event_id"
	KeyTaskID               = "trpc.go.taskforce.task_id"
	KeySubtaskID            = "trpc.go.taskforce.subtask_id"
	KeySubtaskDescription   = "trpc.go.taskforce.subtask.description"
	KeySubtaskTurns         = "trpc.go.taskforce.subtask.turns"
	KeySubtaskMarker        = "trpc.go.taskforce.subtask.marker"
	KeySubtaskStatus        = "trpc.go.taskforce.subtask.status"
	KeyTaskStatus           = "trpc.go.taskforce.task.status"
	KeyTaskIteration        = "trpc.go.taskforce.task.iteration"
	KeyDecomposition        = "trpc.go.taskforce.decomposition"
	KeyDecompositionSize    = "trpc.go.taskforce.decomposition.size"
	KeyReportSummary        = "trpc.go.taskforce.report.summary"
	KeyReportRecommendation = "trpc.go.taskforce.report.recommendation"
	KeyWorkerOrigin         = "trpc.go.taskforce.worker.origin"

	KeyGenAIOperationName     = "gen_ai.operation.name"
	KeyGenAISystem            = "gen_ai.system"
	KeyGenAIAgentName         = "gen_ai.agent.name"
	KeyGenAIAgentDescription  = "gen_ai.agent.description"
	KeyGenAIRequestModel      = "gen_ai.request.model"
	KeyGenAIRequestMaxTokens  = "gen_ai.request.max_tokens" // #nosec G101 - metric key name, not a credential.
	KeyGenAIInputMessages     = "gen_ai.input.messages"
	KeyGenAIOutputMessages    = "gen_ai.output.messages"
	KeyGenAIResponseID        = "gen_ai.response.id"
	KeyGenAIResponseModel     = "gen_ai.response.model"
	KeyGenAIUsageInputTokens  = "gen_ai.usage.input_tokens"  // #nosec G101 - metric key name, not a credential.
	KeyGenAIUsageOutputTokens = "gen_ai.usage.output_tokens" // #nosec G101 - metric key name, not a credential.
	KeyGenAITokenType         = "gen_ai.token.type" // #nosec G101 - metric key name, not a credential.
	KeyGenAIToolName          = "gen_ai.tool.name"
	KeyGenAIToolCallID        = "gen_ai.tool.call.id"
	KeyGenAIToolCallArguments = "gen_ai.tool.call.arguments"
	KeyGenAIToolCallResult    = "gen_ai.tool.call.result"

	KeyErrorType          = "error.type"
	KeyErrorMessage       = "error.message"
	ValueDefaultErrorType = "_OTHER"

	// SystemTRPCGoTaskforce identifies this framework as the gen_ai.system.
	SystemTRPCGoTaskforce = "trpc.go.taskforce"

	// TokenTypeInput and TokenTypeOutput are the gen_ai.token.type values.
	TokenTypeInput  = "input"
	TokenTypeOutput = "output"
)

// Meter and metric names exported to dashboards. The gen_ai.* names follow
// the OpenTelemetry conventions, the trpc_taskforce_go.* names are ours.
const (
	MeterNameChat        = "trpc_taskforce_go.internal.chat"
	MeterNameExecuteTool = "trpc_taskforce_go.internal.execute_tool"
	MeterNameSubtask     = "trpc_taskforce_go.internal.subtask"

	MetricClientRequestCnt             = "trpc_taskforce_go.client.request_cnt"
	MetricGenAIClientTokenUsage        = "gen_ai.client.token.usage" // #nosec G101 - metric key name, not a credential.
	MetricGenAIClientOperationDuration = "gen_ai.client.operation.duration"
	MetricSubtaskTurnCnt               = "trpc_taskforce_go.subtask.turn_cnt"
	MetricSubtaskDuration              = "trpc_taskforce_go.subtask.duration"
)

// NewChatSpanName creates a new chat span name, e.g. "chat gpt-4o-mini".
func NewChatSpanName(requestModel string) string {
	if requestModel == "" {
		return OperationChat
	}
	return fmt.Sprintf("%s %s", OperationChat, requestModel)
}

// NewExecuteToolSpanName creates a new execute tool span name.
func NewExecuteToolSpanName(toolName string) string {
	return fmt.Sprintf("%s %s", OperationExecuteTool, toolName)
}

// NewExecuteSubtaskSpanName creates a new subtask execution span name.
func NewExecuteSubtaskSpanName(subtaskID string) string {
	return fmt.Sprintf("%s %s", OperationExecuteSubtask, subtaskID)
}

// NewReflectSubtaskSpanName creates a new subtask reflection span name.
func NewReflectSubtaskSpanName(subtaskID string) string {
	return fmt.Sprintf("%s %s", OperationReflectSubtask, subtaskID)
}

// NewGRPCConn creates a new gRPC connection to the OpenTelemetry Collector.
func NewGRPCConn(endpoint string) (*grpc.ClientConn, error) {
	// It connects the OpenTelemetry Collector through gRPC connection.
	// Note the use of insecure transport here. TLS is recommended in production.
	conn, err := grpcDial(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection to collector: %w", err)
	}

	return conn, err
}
