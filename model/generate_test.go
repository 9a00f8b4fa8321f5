//
// Tencent is pleased to support the open source community by making
// trpc-taskforce-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-taskforce-go is licensed under the Apache License Version 2.0.
//
//

package model

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type parsedTarget struct {
	Name string `json:"name"`
	Size int    `json:"size"`
}

type positiveTarget struct {
	Value int `json:"value"`
}

func (p *positiveTarget) Validate() error {
	if p.Value <= 0 {
		return errors.New("value must be positive")
	}
	return nil
}

func scripted(replies ...string) (*modelFunc, *int) {
	calls := new(int)
	m := &modelFunc{fn: func(_ context.Context, _ *Request) (*Response, error) {
		idx := *calls
		if idx >= len(replies) {
			idx = len(replies) - 1
		}
		*calls++
		return textResponse(replies[idx]), nil
	}}
	return m, calls
}

func TestInvokeParsedDecodesFencedReply(t *testing.T) {
	m, calls := scripted("Here you go:\n```json\n{\"name\":\"box\",\"size\":3}\n```\nEnjoy.")

	var target parsedTarget
	rsp, err := InvokeParsed(context.Background(), m, &Request{}, &target, fastPolicy())
	require.NoError(t, err)
	require.NotNil(t, rsp)
	assert.Equal(t, parsedTarget{Name: "box", Size: 3}, target)
	assert.Equal(t, 1, *calls)
}

func TestInvokeParsedRetriesUndecodableReply(t *testing.T) {
	m, calls := scripted(
		"I could not produce JSON, sorry.",
		`{"name":"crate","size":7}`,
	)

	var target parsedTarget
	_, err := InvokeParsed(context.Background(), m, &Request{}, &target, fastPolicy())
	require.NoError(t, err)
	assert.Equal(t, "crate", target.Name)
	assert.Equal(t, 2, *calls)
}

func TestInvokeParsedEmptyReplyExhausts(t *testing.T) {
	m, calls := scripted("")

	policy := fastPolicy()
	policy.MaxRetries = 1
	var target parsedTarget
	_, err := InvokeParsed(context.Background(), m, &Request{}, &target, policy)
	require.Error(t, err)
	var callErr *CallError
	require.ErrorAs(t, err, &callErr)
	assert.Equal(t, ErrorTypeMalformedOutput, callErr.Type)
	assert.Equal(t, 2, *calls)
}

func TestInvokeParsedValidatorRejectionRetries(t *testing.T) {
	m, calls := scripted(`{"value":0}`, `{"value":2}`)

	var target positiveTarget
	_, err := InvokeParsed(context.Background(), m, &Request{}, &target, fastPolicy())
	require.NoError(t, err)
	assert.Equal(t, 2, target.Value)
	assert.Equal(t, 2, *calls)
}

func TestInvokeParsedValidatorExhausts(t *testing.T) {
	m, _ := scripted(`{"value":-1}`)

	var target positiveTarget
	_, err := InvokeParsed(context.Background(), m, &Request{}, &target, fastPolicy())
	require.Error(t, err)
	var callErr *CallError
	require.ErrorAs(t, err, &callErr)
	assert.Equal(t, ErrorTypeMalformedOutput, callErr.Type)
}

func TestInvokeParsedPropagatesCallFailure(t *testing.T) {
	m := &modelFunc{fn: func(_ context.Context, _ *Request) (*Response, error) {
		return nil, errors.New("unsupported parameter")
	}}

	var target parsedTarget
	_, err := InvokeParsed(context.Background(), m, &Request{}, &target, fastPolicy())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported parameter")
}
