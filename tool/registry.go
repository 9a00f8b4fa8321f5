//
// Tencent is pleased to support the open source community by making trpc-taskforce-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-taskforce-go is licensed under the Apache License Version 2.0.
//
//

package tool

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	errEmptyWorkerName = errors.New("worker name must not be empty")
	errNilTool         = errors.New("tool must not be nil")
)

// Registry maps worker names to the set of tools each worker may invoke.
// It is the explicit capability wiring consulted by the executor: a worker
// can only call tools registered under its own name.
type Registry struct {
	mu       sync.RWMutex
	byWorker map[string]map[string]Tool
}

// NewRegistry creates an empty capability registry.
func NewRegistry() *Registry {
	return &Registry{
		byWorker: make(map[string]map[string]Tool),
	}
}

// Register grants the named worker access to the given tools. Registering a
// tool name the worker already holds is an error.
func (r *Registry) Register(worker string, tools ...Tool) error {
	if worker == "" {
		return errEmptyWorkerName
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.byWorker[worker]
	if !ok {
		set = make(map[string]Tool)
		r.byWorker[worker] = set
	}
	for _, t := range tools {
		if t == nil {
			return errNilTool
		}
		name := t.Declaration().Name
		if name == "" {
			return fmt.Errorf("tool for worker %q has empty name", worker)
		}
		if _, exists := set[name]; exists {
			return fmt.Errorf("duplicate tool %q for worker %q", name, worker)
		}
		set[name] = t
	}
	return nil
}

// Tools returns a copy of the named worker's tool set keyed by tool name.
func (r *Registry) Tools(worker string) map[string]Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.byWorker[worker]
	out := make(map[string]Tool, len(set))
	for name, t := range set {
		out[name] = t
	}
	return out
}

// Lookup returns the named tool if the worker holds it and it is callable.
func (r *Registry) Lookup(worker, toolName string) (CallableTool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byWorker[worker][toolName]
	if !ok {
		return nil, false
	}
	callable, ok := t.(CallableTool)
	return callable, ok
}

// Call executes the named tool on behalf of the worker. Calling a tool the
// worker does not hold fails, which keeps capability checks in one place.
func (r *Registry) Call(ctx context.Context, worker, toolName string, jsonArgs []byte) (any, error) {
	callable, ok := r.Lookup(worker, toolName)
	if !ok {
		return nil, fmt.Errorf("worker %q has no callable tool %q", worker, toolName)
	}
	return callable.Call(ctx, jsonArgs)
}
