//
// Tencent is pleased to support the open source community by making trpc-taskforce-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-taskforce-go is licensed under the Apache License Version 2.0.
//
//

// Package tiktoken provides a model.TokenCounter backed by real BPE
// vocabularies. It replaces the rune heuristic of the root package with exact
// counts for the OpenAI model families, which tightens transcript tailoring
// near the context budget.
package tiktoken

import (
	"context"
	"fmt"

	"github.com/tiktoken-go/tokenizer"

	"trpc.group/trpc-go/trpc-taskforce-go/model"
)

// Counter counts tokens with a tokenizer.Codec chosen for one model.
type Counter struct {
	codec tokenizer.Codec
}

// New creates a counter for the named model. Unknown models fall back to the
// cl100k_base vocabulary.
func New(modelName string) (*Counter, error) {
	codec, err := tokenizer.ForModel(tokenizer.Model(modelName))
	if err != nil {
		codec, err = tokenizer.Get(tokenizer.Cl100kBase)
		if err != nil {
			return nil, fmt.Errorf("get fallback tokenizer: %w", err)
		}
	}
	return &Counter{codec: codec}, nil
}

// CountTokens returns the token count for one message. Tool calls count their
// function name and raw arguments, matching what reaches the provider.
func (c *Counter) CountTokens(_ context.Context, message model.Message) (int, error) {
	total, err := c.count(message.Content)
	if err != nil {
		return 0, err
	}
	for _, call := range message.ToolCalls {
		n, err := c.count(call.Function.Name)
		if err != nil {
			return 0, err
		}
		total += n
		n, err = c.count(string(call.Function.Arguments))
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// CountTokensRange returns the token count for messages[start:end).
func (c *Counter) CountTokensRange(ctx context.Context, messages []model.Message, start, end int) (int, error) {
	if start < 0 || end > len(messages) || start >= end {
		return 0, fmt.Errorf("invalid range: start=%d, end=%d, len=%d", start, end, len(messages))
	}
	total := 0
	for i := start; i < end; i++ {
		tokens, err := c.CountTokens(ctx, messages[i])
		if err != nil {
			return 0, fmt.Errorf("count tokens for message %d failed: %w", i, err)
		}
		total += tokens
	}
	return total, nil
}

func (c *Counter) count(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	ids, _, err := c.codec.Encode(text)
	if err != nil {
		return 0, fmt.Errorf("encode text: %w", err)
	}
	return len(ids), nil
}
