//
// Tencent is pleased to support the open source community by making
// trpc-taskforce-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-taskforce-go is licensed under the Apache License Version 2.0.
//
//

package executor

import (
	"trpc.group/trpc-go/trpc-taskforce-go/event"
	"trpc.group/trpc-go/trpc-taskforce-go/model"
	"trpc.group/trpc-go/trpc-taskforce-go/tool"
)

const (
	defaultMaxTurns          = 8
	defaultMaxToolRoundtrips = 4
	defaultTerminationToken  = "TERMINATE"
	defaultContextTokens     = 32768
)

type options struct {
	registry          *tool.Registry
	maxTurns          int
	maxToolRoundtrips int
	terminationToken  string
	contextTokens     int
	tailor            model.TailoringStrategy
	retry             model.RetryPolicy
	events            chan<- *event.Event
}

// Option configures an Executor.
type Option func(*options)

// WithRegistry sets the capability registry consulted when workers call
// tools. Without one, every tool call fails back to the conversation.
func WithRegistry(r *tool.Registry) Option {
	return func(o *options) {
		o.registry = r
	}
}

// WithMaxTurns sets the turn budget per subtask.
func WithMaxTurns(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxTurns = n
		}
	}
}

// WithMaxToolRoundtrips caps tool execution roundtrips within one turn.
func WithMaxToolRoundtrips(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.maxToolRoundtrips = n
		}
	}
}

// WithTerminationToken sets the token a worker emits to end the subtask.
func WithTerminationToken(token string) Option {
	return func(o *options) {
		if token != "" {
			o.terminationToken = token
		}
	}
}

// WithContextTokenBudget sets the token budget for the conversation sent to
// the model. 0 disables tailoring.
func WithContextTokenBudget(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.contextTokens = n
		}
	}
}

// WithTailoringStrategy replaces the strategy used to fit long transcripts
// into the context token budget.
func WithTailoringStrategy(s model.TailoringStrategy) Option {
	return func(o *options) {
		o.tailor = s
	}
}

// WithRetryPolicy sets the retry policy for model calls.
func WithRetryPolicy(policy model.RetryPolicy) Option {
	return func(o *options) {
		o.retry = policy
	}
}

// WithEventChannel streams a turn event per appended message and a
// termination event per finished subtask to ch. Emission is best-effort.
func WithEventChannel(ch chan<- *event.Event) Option {
	return func(o *options) {
		o.events = ch
	}
}

func defaultOptions() options {
	return options{
		maxTurns:          defaultMaxTurns,
		maxToolRoundtrips: defaultMaxToolRoundtrips,
		terminationToken:  defaultTerminationToken,
		contextTokens:     defaultContextTokens,
		tailor:            model.NewHeadOutStrategy(model.NewSimpleTokenCounter()),
		retry:             model.DefaultRetryPolicy(),
	}
}
