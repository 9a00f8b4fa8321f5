//
// Tencent is pleased to support the open source community by making trpc-taskforce-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-taskforce-go is licensed under the Apache License Version 2.0.
//
//

package model

import (
	"context"
	"fmt"
	"unicode/utf8"
)

// TokenCounter counts tokens for messages.
// The implementation is model-agnostic to keep the model package lightweight.
type TokenCounter interface {
	// CountTokens returns the estimated token count for a single message.
	CountTokens(ctx context.Context, message Message) (int, error)

	// CountTokensRange returns the estimated token count for a range of
	// messages. This is more efficient than calling CountTokens repeatedly.
	CountTokensRange(ctx context.Context, messages []Message, start, end int) (int, error)
}

// TailoringStrategy tailors messages to fit within a token budget.
type TailoringStrategy interface {
	// TailorMessages reduces the message list so total tokens are within
	// maxTokens.
	TailorMessages(ctx context.Context, messages []Message, maxTokens int) ([]Message, error)
}

// SimpleTokenCounter provides a very rough token estimation based on rune
// length. Heuristic: approximately one token per four UTF-8 runes.
type SimpleTokenCounter struct{}

// NewSimpleTokenCounter creates a SimpleTokenCounter.
func NewSimpleTokenCounter() *SimpleTokenCounter {
	return &SimpleTokenCounter{}
}

// CountTokens estimates tokens for a single message.
func (c *SimpleTokenCounter) CountTokens(_ context.Context, message Message) (int, error) {
	total := utf8.RuneCountInString(message.Content) / 4
	for _, call := range message.ToolCalls {
		total += utf8.RuneCountInString(call.Function.Name) / 4
		total += utf8.RuneCountInString(string(call.Function.Arguments)) / 4
	}
	return total, nil
}

// CountTokensRange estimates tokens for a range of messages.
func (c *SimpleTokenCounter) CountTokensRange(ctx context.Context, messages []Message, start, end int) (int, error) {
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

// HeadOutStrategy deletes messages from the head (oldest first) until the
// conversation fits the token budget, preserving the system message and the
// last turn. Dropping the oldest middle turns first suits long transcripts
// where the recent exchange carries the working state.
type HeadOutStrategy struct {
	tokenCounter TokenCounter
}

// NewHeadOutStrategy constructs a head-out strategy with the given counter.
func NewHeadOutStrategy(counter TokenCounter) *HeadOutStrategy {
	return &HeadOutStrategy{
		tokenCounter: counter,
	}
}

// TailorMessages removes from the head while preserving the system message
// and the last turn, keeping as many recent messages as fit.
func (s *HeadOutStrategy) TailorMessages(ctx context.Context, messages []Message, maxTokens int) ([]Message, error) {
	if len(messages) == 0 {
		return nil, nil
	}

	prefixSum := s.buildPrefixSum(ctx, messages)
	if prefixSum[len(messages)] <= maxTokens {
		return messages, nil
	}

	preservedHead := s.calculatePreservedHead(messages)
	preservedTail := s.calculatePreservedTail(messages)
	// The preserved segments of a short conversation cover every message;
	// appending head and tail would duplicate the overlap.
	if preservedHead+preservedTail >= len(messages) {
		return messages, nil
	}

	headTokens := 0
	if preservedHead > 0 {
		headTokens = prefixSum[preservedHead]
	}
	tailTokens := 0
	if preservedTail > 0 {
		tailTokens = prefixSum[len(messages)] - prefixSum[len(messages)-preservedTail]
	}

	// If preserved segments alone exceed the budget, return only them.
	if headTokens+tailTokens > maxTokens {
		return s.buildPreservedOnlyResult(messages, preservedHead, preservedTail), nil
	}

	maxTailStart := s.binarySearchTailStart(prefixSum, preservedHead, preservedTail, maxTokens)
	result := make([]Message, 0, len(messages))
	if preservedHead > 0 {
		result = append(result, messages[:preservedHead]...)
	}
	if maxTailStart < len(messages)-preservedTail {
		result = append(result, messages[maxTailStart:len(messages)-preservedTail]...)
	}
	if preservedTail > 0 {
		result = append(result, messages[len(messages)-preservedTail:]...)
	}
	// A leading tool result without its triggering call confuses providers.
	if len(result) > preservedHead && result[preservedHead].Role == RoleTool {
		result = append(result[:preservedHead], result[preservedHead+1:]...)
	}
	return result, nil
}

// buildPrefixSum builds a prefix sum array for efficient range queries.
func (s *HeadOutStrategy) buildPrefixSum(ctx context.Context, messages []Message) []int {
	prefixSum := make([]int, len(messages)+1)
	for i, msg := range messages {
		tokens, err := s.tokenCounter.CountTokens(ctx, msg)
		if err != nil {
			// In case of error, fall back to the rune heuristic.
			tokens = utf8.RuneCountInString(msg.Content) / 4
		}
		prefixSum[i+1] = prefixSum[i] + tokens
	}
	return prefixSum
}

// calculatePreservedHead returns the number of preserved head messages.
func (s *HeadOutStrategy) calculatePreservedHead(messages []Message) int {
	if len(messages) > 0 && messages[0].Role == RoleSystem {
		return 1
	}
	return 0
}

// calculatePreservedTail returns the number of preserved tail messages.
func (s *HeadOutStrategy) calculatePreservedTail(messages []Message) int {
	if len(messages) >= 2 {
		return 2
	}
	return 1
}

// buildPreservedOnlyResult builds a result with only preserved segments.
func (s *HeadOutStrategy) buildPreservedOnlyResult(messages []Message, preservedHead, preservedTail int) []Message {
	result := []Message{}
	if preservedHead > 0 {
		result = append(result, messages[:preservedHead]...)
	}
	if preservedTail > 0 {
		result = append(result, messages[len(messages)-preservedTail:]...)
	}
	return result
}

// binarySearchTailStart finds the smallest start index for the kept tail
// segment such that preserved head + tail fits the budget.
func (s *HeadOutStrategy) binarySearchTailStart(prefixSum []int, preservedHead, preservedTail, maxTokens int) int {
	left, right := preservedHead, len(prefixSum)-1-preservedTail
	for left+1 < right {
		mid := (left + right) / 2
		headTokens := prefixSum[preservedHead]
		tailTokens := prefixSum[len(prefixSum)-1] - prefixSum[mid]
		if headTokens+tailTokens <= maxTokens {
			right = mid
		} else {
			left = mid
		}
	}
	// right is the smallest feasible start; check whether left also fits.
	headTokens := prefixSum[preservedHead]
	if headTokens+prefixSum[len(prefixSum)-1]-prefixSum[left] <= maxTokens {
		return left
	}
	return right
}
