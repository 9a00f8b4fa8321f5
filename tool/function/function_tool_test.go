//
// Tencent is pleased to support the open source community by making trpc-taskforce-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-taskforce-go is licensed under the Apache License Version 2.0.
//
//

package function

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-taskforce-go/tool"
)

type addArgs struct {
	A int `json:"a"`
	B int `json:"b"`
}

type addResult struct {
	Sum int `json:"sum"`
}

func TestFunctionToolCall(t *testing.T) {
	ft := NewFunctionTool(
		func(_ context.Context, in addArgs) (addResult, error) {
			return addResult{Sum: in.A + in.B}, nil
		},
		WithName("add"),
		WithDescription("adds two integers"),
	)

	out, err := ft.Call(context.Background(), []byte(`{"a": 2, "b": 3}`))
	require.NoError(t, err)
	assert.Equal(t, addResult{Sum: 5}, out)
}

func TestFunctionToolCallEmptyArgs(t *testing.T) {
	ft := NewFunctionTool(
		func(_ context.Context, in addArgs) (addResult, error) {
			return addResult{Sum: in.A + in.B}, nil
		},
		WithName("add"),
		WithDescription("adds two integers"),
	)

	out, err := ft.Call(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, addResult{Sum: 0}, out)
}

func TestFunctionToolCallBadArgs(t *testing.T) {
	ft := NewFunctionTool(
		func(_ context.Context, in addArgs) (addResult, error) {
			return addResult{}, nil
		},
		WithName("add"),
		WithDescription("adds two integers"),
	)

	_, err := ft.Call(context.Background(), []byte(`{"a": "not a number"}`))
	require.Error(t, err)
}

func TestFunctionToolError(t *testing.T) {
	wantErr := errors.New("boom")
	ft := NewFunctionTool(
		func(_ context.Context, _ addArgs) (addResult, error) {
			return addResult{}, wantErr
		},
		WithName("failing"),
		WithDescription("always fails"),
	)

	_, err := ft.Call(context.Background(), []byte(`{}`))
	assert.ErrorIs(t, err, wantErr)
}

func TestFunctionToolDeclaration(t *testing.T) {
	ft := NewFunctionTool(
		func(_ context.Context, in addArgs) (addResult, error) {
			return addResult{Sum: in.A + in.B}, nil
		},
		WithName("add"),
		WithDescription("adds two integers"),
	)

	decl := ft.Declaration()
	require.NotNil(t, decl)
	assert.Equal(t, "add", decl.Name)
	assert.Equal(t, "adds two integers", decl.Description)
	require.NotNil(t, decl.InputSchema)
	assert.Equal(t, "object", decl.InputSchema.Type)
	assert.Contains(t, decl.InputSchema.Properties, "a")
	assert.Contains(t, decl.InputSchema.Properties, "b")
}

func TestFunctionToolCustomSchema(t *testing.T) {
	custom := &tool.Schema{Type: "object", Description: "custom"}
	ft := NewFunctionTool(
		func(_ context.Context, in addArgs) (addResult, error) {
			return addResult{}, nil
		},
		WithName("add"),
		WithDescription("adds two integers"),
		WithInputSchema(custom),
	)

	assert.Same(t, custom, ft.Declaration().InputSchema)
}
