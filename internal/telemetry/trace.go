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
	"encoding/json"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"trpc.group/trpc-go/trpc-taskforce-go/model"
	"trpc.group/trpc-go/trpc-taskforce-go/task"
)

// TraceChat records one model invocation on the span. Either rsp or err may
// be nil; whatever is present is recorded.
func TraceChat(span trace.Span, workerName string, req *model.Request, rsp *model.Response, err error) {
	span.SetAttributes(
		attribute.String(KeyGenAISystem, SystemTRPCGoTaskforce),
		attribute.String(KeyGenAIOperationName, OperationChat),
	)
	if workerName != "" {
		span.SetAttributes(attribute.String(KeyGenAIAgentName, workerName))
	}

	span.SetAttributes(buildRequestAttributes(req)...)
	span.SetAttributes(buildResponseAttributes(rsp)...)

	if rsp != nil && rsp.Error != nil {
		span.SetStatus(codes.Error, rsp.Error.Message)
	} else if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(
			attribute.String(KeyErrorType, ValueDefaultErrorType),
			attribute.String(KeyErrorMessage, err.Error()),
		)
	}
}

func buildRequestAttributes(req *model.Request) []attribute.KeyValue {
	if req == nil {
		return nil
	}

	attrs := make([]attribute.KeyValue, 0, 2)
	if mt := req.MaxTokens; mt != nil {
		attrs = append(attrs, attribute.Int(KeyGenAIRequestMaxTokens, *mt))
	}
	if bts, err := json.Marshal(req.Messages); err == nil {
		attrs = append(attrs, attribute.String(KeyGenAIInputMessages, string(bts)))
	} else {
		attrs = append(attrs, attribute.String(KeyGenAIInputMessages, "<not json serializable>"))
	}

	return attrs
}

func buildResponseAttributes(rsp *model.Response) []attribute.KeyValue {
	if rsp == nil {
		return nil
	}

	attrs := []attribute.KeyValue{
		attribute.String(KeyGenAIResponseModel, rsp.Model),
		attribute.String(KeyGenAIResponseID, rsp.ID),
	}
	if e := rsp.Error; e != nil {
		attrs = append(attrs,
			attribute.String(KeyErrorType, e.Type),
			attribute.String(KeyErrorMessage, e.Message),
		)
	}
	if rsp.Usage != nil {
		attrs = append(attrs,
			attribute.Int(KeyGenAIUsageInputTokens, rsp.Usage.PromptTokens),
			attribute.Int(KeyGenAIUsageOutputTokens, rsp.Usage.CompletionTokens),
		)
	}
	if len(rsp.Choices) > 0 {
		if bts, err := json.Marshal(rsp.Choices); err == nil {
			attrs = append(attrs, attribute.String(KeyGenAIOutputMessages, string(bts)))
		}
	}

	return attrs
}

// TraceToolCall records the invocation of one tool call on the span.
// The result string is already rendered for the transcript.
func TraceToolCall(span trace.Span, workerName string, call model.ToolCall, result string, err error) {
	span.SetAttributes(
		attribute.String(KeyGenAISystem, SystemTRPCGoTaskforce),
		attribute.String(KeyGenAIOperationName, OperationExecuteTool),
		attribute.String(KeyGenAIToolName, call.Function.Name),
		attribute.String(KeyGenAIToolCallID, call.ID),
		attribute.String(KeyGenAIToolCallArguments, string(call.Function.Arguments)),
		attribute.String(KeyGenAIToolCallResult, result),
	)
	if workerName != "" {
		span.SetAttributes(attribute.String(KeyGenAIAgentName, workerName))
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(
			attribute.String(KeyErrorType, ValueDefaultErrorType),
			attribute.String(KeyErrorMessage, err.Error()),
		)
	}
}

// TraceSubtask records the final state of one subtask execution on the span.
// Call it after the transcript is closed so turns and marker are final.
func TraceSubtask(span trace.Span, t *task.Task, st *task.Subtask, err error) {
	span.SetAttributes(
		attribute.String(KeyGenAISystem, SystemTRPCGoTaskforce),
		attribute.String(KeyGenAIOperationName, OperationExecuteSubtask),
		attribute.String(KeyTaskID, t.ID),
		attribute.String(KeySubtaskID, st.ID),
		attribute.String(KeySubtaskDescription, st.Description),
		attribute.String(KeySubtaskStatus, string(st.CurrentStatus())),
		attribute.Int(KeySubtaskTurns, st.TurnCount()),
	)
	if marker := st.CurrentMarker(); marker != task.MarkerNone {
		span.SetAttributes(attribute.String(KeySubtaskMarker, string(marker)))
	}
	setErrorStatus(span, err)
}

// TraceComposition records the outcome of one decomposition on the span.
func TraceComposition(span trace.Span, t *task.Task, subtasks []*task.Subtask, err error) {
	span.SetAttributes(
		attribute.String(KeyGenAISystem, SystemTRPCGoTaskforce),
		attribute.String(KeyGenAIOperationName, OperationComposeTask),
		attribute.String(KeyTaskID, t.ID),
	)
	if err == nil {
		descriptions := make([]string, 0, len(subtasks))
		for _, st := range subtasks {
			descriptions = append(descriptions, st.Description)
		}
		span.SetAttributes(
			attribute.Int(KeyDecompositionSize, len(subtasks)),
			attribute.StringSlice(KeyDecomposition, descriptions),
		)
	}
	setErrorStatus(span, err)
}

// TraceReport records one reflection report on the span. The report is nil
// when reflection failed.
func TraceReport(span trace.Span, t *task.Task, report *task.Report, err error) {
	span.SetAttributes(
		attribute.String(KeyGenAISystem, SystemTRPCGoTaskforce),
		attribute.String(KeyGenAIOperationName, OperationReflectSubtask),
		attribute.String(KeyTaskID, t.ID),
	)
	if report != nil {
		span.SetAttributes(
			attribute.String(KeySubtaskID, report.SubtaskID),
			attribute.String(KeyReportRecommendation, string(report.Recommendation)),
			attribute.String(KeyReportSummary, report.Summary),
		)
	}
	setErrorStatus(span, err)
}

func setErrorStatus(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(
		attribute.String(KeyErrorType, ValueDefaultErrorType),
		attribute.String(KeyErrorMessage, err.Error()),
	)
}

// TraceRun records the final state of a whole task run on the span.
func TraceRun(span trace.Span, t *task.Task, iterations int, err error) {
	span.SetAttributes(
		attribute.String(KeyGenAISystem, SystemTRPCGoTaskforce),
		attribute.String(KeyGenAIOperationName, OperationRunTask),
		attribute.String(KeyTaskID, t.ID),
		attribute.String(KeyTaskStatus, string(t.CurrentStatus())),
		attribute.Int(KeyTaskIteration, iterations),
	)
	setErrorStatus(span, err)
}
