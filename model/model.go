//
// Tencent is pleased to support the open source community by making trpc-taskforce-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-taskforce-go is licensed under the Apache License Version 2.0.
//
//

// Package model defines the call capability consumed by the orchestration
// core: a narrow interface that turns an ordered conversation into a single
// completed message, plus accumulated usage and cost accounting.
package model

import (
	"context"
	"sync"
)

// Model is the interface all call-capability implementations must satisfy.
// Implementations wrap a concrete provider; the orchestration core never
// depends on provider wire protocols.
type Model interface {
	// Invoke sends the request to the underlying provider and returns one
	// completed response. It must respect ctx cancellation and deadlines.
	Invoke(ctx context.Context, request *Request) (*Response, error)

	// Info returns static information about the model.
	Info() Info

	// Usage returns token usage accumulated across all invocations.
	Usage() Usage

	// Cost returns the accumulated cost in USD, 0 when the provider does
	// not report pricing.
	Cost() float64
}

// Info contains static information about a model.
type Info struct {
	// Name is the provider-side model identifier.
	Name string
}

// UsageTracker accumulates usage and cost across invocations. Provider
// implementations embed it to satisfy the Usage and Cost accessors.
type UsageTracker struct {
	mu    sync.Mutex
	usage Usage
	cost  float64
}

// Add accumulates the usage of one invocation.
func (t *UsageTracker) Add(usage *Usage, cost float64) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if usage != nil {
		t.usage.PromptTokens += usage.PromptTokens
		t.usage.CompletionTokens += usage.CompletionTokens
		t.usage.TotalTokens += usage.TotalTokens
	}
	t.cost += cost
}

// Usage returns the accumulated token usage.
func (t *UsageTracker) Usage() Usage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.usage
}

// Cost returns the accumulated cost in USD.
func (t *UsageTracker) Cost() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cost
}
