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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimpleTokenCounterCountTokens(t *testing.T) {
	counter := NewSimpleTokenCounter()

	tokens, err := counter.CountTokens(context.Background(), NewUserMessage("abcdefgh"))
	require.NoError(t, err)
	assert.Equal(t, 2, tokens)

	withTools := Message{
		Role: RoleAssistant,
		ToolCalls: []ToolCall{{
			Function: FunctionDefinitionParam{
				Name:      "abcdefgh",
				Arguments: []byte("12345678"),
			},
		}},
	}
	tokens, err = counter.CountTokens(context.Background(), withTools)
	require.NoError(t, err)
	assert.Equal(t, 4, tokens)
}

func TestSimpleTokenCounterCountTokensRange(t *testing.T) {
	counter := NewSimpleTokenCounter()
	messages := []Message{
		NewUserMessage("aaaa"),
		NewUserMessage("bbbbbbbb"),
		NewUserMessage("cccc"),
	}

	tokens, err := counter.CountTokensRange(context.Background(), messages, 0, 3)
	require.NoError(t, err)
	assert.Equal(t, 4, tokens)

	tokens, err = counter.CountTokensRange(context.Background(), messages, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, tokens)

	_, err = counter.CountTokensRange(context.Background(), messages, -1, 2)
	assert.Error(t, err)
	_, err = counter.CountTokensRange(context.Background(), messages, 0, 4)
	assert.Error(t, err)
	_, err = counter.CountTokensRange(context.Background(), messages, 2, 2)
	assert.Error(t, err)
}

// Each content below is four runes, one token under the rune heuristic, so
// budgets translate directly into message counts.
func tailorFixture() []Message {
	return []Message{
		NewSystemMessage("sys."),
		NewUserMessage("old1"),
		NewAssistantMessage("old2"),
		NewUserMessage("new1"),
		NewAssistantMessage("new2"),
	}
}

func TestHeadOutStrategyEmpty(t *testing.T) {
	s := NewHeadOutStrategy(NewSimpleTokenCounter())
	result, err := s.TailorMessages(context.Background(), nil, 10)
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestHeadOutStrategyFitsEntirely(t *testing.T) {
	s := NewHeadOutStrategy(NewSimpleTokenCounter())
	messages := tailorFixture()
	result, err := s.TailorMessages(context.Background(), messages, 5)
	require.NoError(t, err)
	assert.Equal(t, messages, result)
}

func TestHeadOutStrategyFirstTurnUnchanged(t *testing.T) {
	s := NewHeadOutStrategy(NewSimpleTokenCounter())
	messages := []Message{
		NewSystemMessage("sys."),
		NewUserMessage("go!!"),
	}
	result, err := s.TailorMessages(context.Background(), messages, 32768)
	require.NoError(t, err)

	// The preserved head and tail overlap on a two-message conversation;
	// the system message must not come back twice.
	require.Len(t, result, 2)
	assert.Equal(t, RoleSystem, result[0].Role)
	assert.Equal(t, RoleUser, result[1].Role)
}

func TestHeadOutStrategyOverlapOverBudgetUnchanged(t *testing.T) {
	s := NewHeadOutStrategy(NewSimpleTokenCounter())
	messages := []Message{
		NewSystemMessage("sys."),
		NewUserMessage("go!!"),
	}
	// Even over budget there is nothing to drop: every message is preserved.
	result, err := s.TailorMessages(context.Background(), messages, 1)
	require.NoError(t, err)
	assert.Equal(t, messages, result)
}

func TestHeadOutStrategyDropsOldestFirst(t *testing.T) {
	s := NewHeadOutStrategy(NewSimpleTokenCounter())
	result, err := s.TailorMessages(context.Background(), tailorFixture(), 4)
	require.NoError(t, err)

	require.Len(t, result, 4)
	assert.Equal(t, RoleSystem, result[0].Role)
	assert.Equal(t, "old2", result[1].Content)
	assert.Equal(t, "new1", result[2].Content)
	assert.Equal(t, "new2", result[3].Content)
}

func TestHeadOutStrategyPreservedOnly(t *testing.T) {
	s := NewHeadOutStrategy(NewSimpleTokenCounter())
	result, err := s.TailorMessages(context.Background(), tailorFixture(), 2)
	require.NoError(t, err)

	// Over-tight budgets still keep the system message and the last turn.
	require.Len(t, result, 3)
	assert.Equal(t, RoleSystem, result[0].Role)
	assert.Equal(t, "new1", result[1].Content)
	assert.Equal(t, "new2", result[2].Content)
}

func TestHeadOutStrategyDropsLeadingToolResult(t *testing.T) {
	s := NewHeadOutStrategy(NewSimpleTokenCounter())
	messages := []Message{
		NewSystemMessage("sys."),
		NewUserMessage("old1"),
		NewToolMessage("call-1", "lookup", "res1"),
		NewUserMessage("new1"),
		NewAssistantMessage("new2"),
	}
	result, err := s.TailorMessages(context.Background(), messages, 4)
	require.NoError(t, err)

	// The kept window would start with an orphaned tool result; it goes too.
	require.Len(t, result, 3)
	assert.Equal(t, RoleSystem, result[0].Role)
	assert.Equal(t, "new1", result[1].Content)
	assert.Equal(t, "new2", result[2].Content)
}
