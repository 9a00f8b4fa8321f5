//
// Tencent is pleased to support the open source community by making
// trpc-taskforce-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-taskforce-go is licensed under the Apache License Version 2.0.
//
//

package composer

import (
	"trpc.group/trpc-go/trpc-taskforce-go/library"
	"trpc.group/trpc-go/trpc-taskforce-go/model"
)

const (
	defaultMatchThreshold = 0.25
	defaultMaxWorkers     = 3
	defaultMaxTools       = 2
)

type options struct {
	agentLibrary   library.Library
	toolLibrary    library.Library
	matchThreshold float64
	maxWorkers     int
	maxTools       int
	retry          model.RetryPolicy
}

// Option configures a Composer.
type Option func(*options)

// WithAgentLibrary sets the read-only catalog consulted before synthesizing
// worker roles.
func WithAgentLibrary(lib library.Library) Option {
	return func(o *options) {
		o.agentLibrary = lib
	}
}

// WithToolLibrary sets the read-only catalog consulted when attaching tool
// specs to workers. Without one, workers are assembled with no tools.
func WithToolLibrary(lib library.Library) Option {
	return func(o *options) {
		o.toolLibrary = lib
	}
}

// WithMatchThreshold sets the minimum lookup score for a library entry to be
// used instead of synthesizing.
func WithMatchThreshold(threshold float64) Option {
	return func(o *options) {
		o.matchThreshold = threshold
	}
}

// WithMaxWorkers caps the number of workers synthesized per subtask.
func WithMaxWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxWorkers = n
		}
	}
}

// WithMaxTools caps the number of tool specs attached to one worker.
func WithMaxTools(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.maxTools = n
		}
	}
}

// WithRetryPolicy sets the retry policy for model calls.
func WithRetryPolicy(policy model.RetryPolicy) Option {
	return func(o *options) {
		o.retry = policy
	}
}

func defaultOptions() options {
	return options{
		matchThreshold: defaultMatchThreshold,
		maxWorkers:     defaultMaxWorkers,
		maxTools:       defaultMaxTools,
		retry:          model.DefaultRetryPolicy(),
	}
}
