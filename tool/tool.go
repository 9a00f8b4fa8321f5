//
// Tencent is pleased to support the open source community by making trpc-taskforce-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-taskforce-go is licensed under the Apache License Version 2.0.
//
//

// Package tool provides the tool abstractions workers use to act on the
// world: declarations the model can reason about, callable implementations,
// and the per-worker capability registry consulted during execution.
package tool

import "context"

// Tool is the interface that all tools must implement.
type Tool interface {
	// Declaration returns the metadata describing the tool to the model.
	Declaration() *Declaration
}

// CallableTool is a tool that can be invoked with JSON-encoded arguments.
type CallableTool interface {
	Tool

	// Call executes the tool with the given JSON arguments and returns the
	// result, which must be JSON-serializable.
	Call(ctx context.Context, jsonArgs []byte) (any, error)
}

// Declaration describes a tool: its name, purpose, and argument schema.
type Declaration struct {
	// Name is the tool name presented to the model.
	Name string `json:"name"`
	// Description tells the model what the tool does and when to use it.
	Description string `json:"description"`
	// InputSchema is the JSON schema of the tool arguments.
	InputSchema *Schema `json:"input_schema,omitempty"`
	// OutputSchema is the JSON schema of the tool result.
	OutputSchema *Schema `json:"output_schema,omitempty"`
}

// Schema is a JSON schema fragment describing tool arguments or results.
type Schema struct {
	// Type is the JSON type: "object", "array", "string", "number",
	// "integer", "boolean", or "null".
	Type string `json:"type,omitempty"`
	// Description documents the value.
	Description string `json:"description,omitempty"`
	// Properties describes object members.
	Properties map[string]*Schema `json:"properties,omitempty"`
	// Required lists the object members that must be present.
	Required []string `json:"required,omitempty"`
	// Items describes array elements.
	Items *Schema `json:"items,omitempty"`
	// Enum restricts the value to a fixed set.
	Enum []any `json:"enum,omitempty"`
	// AdditionalProperties describes map values when Type is "object".
	AdditionalProperties *Schema `json:"additionalProperties,omitempty"`
}
