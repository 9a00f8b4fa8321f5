//
// Tencent is pleased to support the open source community by making
// trpc-taskforce-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-taskforce-go is licensed under the Apache License Version 2.0.
//
//

// Package anthropic adapts the Anthropic Messages API to the model call
// capability.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"trpc.group/trpc-go/trpc-taskforce-go/log"
	"trpc.group/trpc-go/trpc-taskforce-go/model"
	"trpc.group/trpc-go/trpc-taskforce-go/tool"
)

const functionToolType = "function"

// defaultMaxTokens applies when the request sets no limit. The Messages API
// rejects requests without max_tokens.
const defaultMaxTokens = 4096

// Model calls the Anthropic Messages API.
type Model struct {
	model.UsageTracker
	client anthropic.Client
	name   string
}

// New creates a new Anthropic model adapter.
func New(name string, opts ...Option) *Model {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	var clientOpts []option.RequestOption
	if o.apiKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(o.apiKey))
	}
	if o.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(o.baseURL))
	}
	clientOpts = append(clientOpts, o.anthropicOptions...)

	return &Model{
		client: anthropic.NewClient(clientOpts...),
		name:   name,
	}
}

// Info implements the model.Model interface.
func (m *Model) Info() model.Info {
	return model.Info{Name: m.name}
}

// Invoke implements the model.Model interface. Provider-side failures come
// back in the response Error field; only a nil request, a cancelled context,
// or an unusable reply produce a Go error.
func (m *Model) Invoke(ctx context.Context, request *model.Request) (*model.Response, error) {
	if request == nil {
		return nil, errors.New("request cannot be nil")
	}

	message, err := m.client.Messages.New(ctx, m.buildChatRequest(request))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return &model.Response{
			Object: model.ObjectTypeError,
			Error: &model.ResponseError{
				Message: err.Error(),
				Type:    model.ErrorTypeAPIError,
			},
			Timestamp: time.Now(),
		}, nil
	}

	response := convertResponse(message)
	m.Add(response.Usage, 0)
	return response, nil
}

func (m *Model) buildChatRequest(request *model.Request) anthropic.MessageNewParams {
	messages, systemPrompts := convertMessages(request.Messages)
	chatRequest := anthropic.MessageNewParams{
		Model:    anthropic.Model(m.name),
		Messages: messages,
		Tools:    convertTools(request.Tools),
	}
	if len(systemPrompts) > 0 {
		chatRequest.System = systemPrompts
	}

	if request.MaxTokens != nil {
		chatRequest.MaxTokens = int64(*request.MaxTokens)
	}
	if chatRequest.MaxTokens == 0 {
		chatRequest.MaxTokens = defaultMaxTokens
	}
	if request.Temperature != nil {
		chatRequest.Temperature = anthropic.Float(*request.Temperature)
	}
	if request.TopP != nil {
		chatRequest.TopP = anthropic.Float(*request.TopP)
	}
	if len(request.Stop) > 0 {
		chatRequest.StopSequences = append(chatRequest.StopSequences, request.Stop...)
	}
	return chatRequest
}

// convertMessages builds Anthropic message parameters and system prompts.
// Consecutive tool results collapse into a single user message so parallel
// tool calls round-trip correctly. Empty messages are dropped.
func convertMessages(messages []model.Message) ([]anthropic.MessageParam, []anthropic.TextBlockParam) {
	conversation := make([]anthropic.MessageParam, 0, len(messages))
	var systemPrompts []anthropic.TextBlockParam

	var pendingToolResults []anthropic.ContentBlockParamUnion
	flush := func() {
		if len(pendingToolResults) == 0 {
			return
		}
		conversation = append(conversation, anthropic.NewUserMessage(pendingToolResults...))
		pendingToolResults = nil
	}

	for _, message := range messages {
		switch message.Role {
		case model.RoleSystem:
			if message.Content != "" {
				systemPrompts = append(systemPrompts, anthropic.TextBlockParam{Text: message.Content})
			}
		case model.RoleTool:
			pendingToolResults = append(pendingToolResults,
				anthropic.NewToolResultBlock(message.ToolID, message.Content, false))
		case model.RoleAssistant:
			flush()
			if blocks := assistantBlocks(message); len(blocks) > 0 {
				conversation = append(conversation, anthropic.NewAssistantMessage(blocks...))
			}
		default:
			flush()
			if message.Content != "" {
				conversation = append(conversation, anthropic.NewUserMessage(anthropic.NewTextBlock(message.Content)))
			}
		}
	}
	flush()
	return conversation, systemPrompts
}

// assistantBlocks converts assistant text and tool calls into content blocks.
func assistantBlocks(message model.Message) []anthropic.ContentBlockParamUnion {
	blocks := make([]anthropic.ContentBlockParamUnion, 0, 1+len(message.ToolCalls))
	if message.Content != "" {
		blocks = append(blocks, anthropic.NewTextBlock(message.Content))
	}
	for _, toolCall := range message.ToolCalls {
		blocks = append(blocks, anthropic.NewToolUseBlock(
			toolCall.ID,
			decodeToolArguments(toolCall.Function.Arguments),
			toolCall.Function.Name,
		))
	}
	return blocks
}

// decodeToolArguments parses JSON bytes into any, returning an empty object
// on failure.
func decodeToolArguments(args []byte) any {
	if len(args) == 0 {
		return map[string]any{}
	}
	var decoded any
	if err := json.Unmarshal(args, &decoded); err != nil {
		return map[string]any{}
	}
	return decoded
}

// convertTools maps tool declarations to Anthropic tool parameters. Names are
// sorted for stable request ordering.
func convertTools(tools map[string]tool.Tool) []anthropic.ToolUnionParam {
	toolNames := make([]string, 0, len(tools))
	for name := range tools {
		toolNames = append(toolNames, name)
	}
	sort.Strings(toolNames)

	var result []anthropic.ToolUnionParam
	for _, name := range toolNames {
		declaration := tools[name].Declaration()
		schema := anthropic.ToolInputSchemaParam{Type: constant.Object("object")}
		if declaration.InputSchema != nil {
			schema.Type = constant.Object(declaration.InputSchema.Type)
			schema.Properties = declaration.InputSchema.Properties
			schema.Required = declaration.InputSchema.Required
		}
		result = append(result, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        declaration.Name,
				Description: anthropic.String(buildToolDescription(declaration)),
				InputSchema: schema,
			},
		})
	}
	return result
}

// buildToolDescription builds the description for a tool.
// It appends the output schema to the description.
func buildToolDescription(declaration *tool.Declaration) string {
	desc := declaration.Description
	if declaration.OutputSchema == nil {
		return desc
	}
	schemaJSON, err := json.Marshal(declaration.OutputSchema)
	if err != nil {
		log.Debugf("marshal output schema for tool %s: %v", declaration.Name, err)
		return desc
	}
	desc += "\nOutput schema: " + string(schemaJSON)
	return desc
}

func convertResponse(message *anthropic.Message) *model.Response {
	now := time.Now()
	response := &model.Response{
		ID:        message.ID,
		Object:    model.ObjectTypeChatCompletion,
		Created:   now.Unix(),
		Model:     string(message.Model),
		Choices:   []model.Choice{{Index: 0, Message: convertContentBlocks(message.Content)}},
		Timestamp: now,
	}
	if finishReason := strings.TrimSpace(string(message.StopReason)); finishReason != "" {
		response.Choices[0].FinishReason = &finishReason
	}
	if message.Usage.InputTokens > 0 || message.Usage.OutputTokens > 0 {
		response.Usage = &model.Usage{
			PromptTokens:     int(message.Usage.InputTokens),
			CompletionTokens: int(message.Usage.OutputTokens),
			TotalTokens:      int(message.Usage.InputTokens + message.Usage.OutputTokens),
		}
	}
	return response
}

// convertContentBlocks folds Anthropic content blocks into a single
// assistant message.
func convertContentBlocks(contents []anthropic.ContentBlockUnion) model.Message {
	var text strings.Builder
	var toolCalls []model.ToolCall
	for _, content := range contents {
		switch block := content.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(block.Text)
		case anthropic.ToolUseBlock:
			toolCalls = append(toolCalls, model.ToolCall{
				Type: functionToolType,
				ID:   block.ID,
				Function: model.FunctionDefinitionParam{
					Name:      block.Name,
					Arguments: block.Input,
				},
			})
		}
	}
	return model.Message{
		Role:      model.RoleAssistant,
		Content:   text.String(),
		ToolCalls: toolCalls,
	}
}
