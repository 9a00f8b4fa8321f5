//
// Tencent is pleased to support the open source community by making
// trpc-taskforce-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-taskforce-go is licensed under the Apache License Version 2.0.
//
//

package runner

import (
	"trpc.group/trpc-go/trpc-taskforce-go/composer"
	"trpc.group/trpc-go/trpc-taskforce-go/executor"
	"trpc.group/trpc-go/trpc-taskforce-go/reflector"
	"trpc.group/trpc-go/trpc-taskforce-go/taskstore"
	"trpc.group/trpc-go/trpc-taskforce-go/taskstore/inmemory"
)

const (
	defaultMaxIterations = 4
	defaultBufferSize    = 64
)

type options struct {
	store         taskstore.Store
	maxIterations int
	bufferSize    int
	composerOpts  []composer.Option
	executorOpts  []executor.Option
	reflectorOpts []reflector.Option
}

// Option configures a Runner.
type Option func(*options)

// WithTaskStore sets the store snapshots are persisted to after every outer
// iteration. The caller keeps ownership; Close will not touch it.
func WithTaskStore(store taskstore.Store) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithMaxIterations sets the outer-iteration budget per run.
func WithMaxIterations(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxIterations = n
		}
	}
}

// WithEventBuffer sets the capacity of the event channel returned by Run.
func WithEventBuffer(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.bufferSize = n
		}
	}
}

// WithComposerOptions forwards options to the per-run Composer.
func WithComposerOptions(opts ...composer.Option) Option {
	return func(o *options) {
		o.composerOpts = append(o.composerOpts, opts...)
	}
}

// WithExecutorOptions forwards options to the per-run Executor.
func WithExecutorOptions(opts ...executor.Option) Option {
	return func(o *options) {
		o.executorOpts = append(o.executorOpts, opts...)
	}
}

// WithReflectorOptions forwards options to the per-run Reflector.
func WithReflectorOptions(opts ...reflector.Option) Option {
	return func(o *options) {
		o.reflectorOpts = append(o.reflectorOpts, opts...)
	}
}

func newOptions(opts ...Option) options {
	o := options{
		maxIterations: defaultMaxIterations,
		bufferSize:    defaultBufferSize,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func newOwnedStore() taskstore.Store {
	return inmemory.New()
}
