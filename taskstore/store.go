//
// Tencent is pleased to support the open source community by making
// trpc-taskforce-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-taskforce-go is licensed under the Apache License Version 2.0.
//
//

// Package taskstore defines persistence for task snapshots. The runner saves
// a read-only snapshot after every outer iteration; stores never see the
// live Task.
package taskstore

import (
	"context"
	"errors"

	"trpc.group/trpc-go/trpc-taskforce-go/task"
)

// ErrNotFound is returned when no snapshot exists for a task ID.
var ErrNotFound = errors.New("taskstore: task not found")

// Store persists task snapshots keyed by task ID.
type Store interface {
	// Save stores the snapshot, replacing any previous one for the same ID.
	Save(ctx context.Context, snapshot *task.Task) error

	// Get returns the stored snapshot for the ID, or ErrNotFound.
	Get(ctx context.Context, taskID string) (*task.Task, error)

	// List returns all stored snapshots ordered by creation time.
	List(ctx context.Context) ([]*task.Task, error)

	// Delete removes the snapshot for the ID. Deleting an absent ID is not
	// an error.
	Delete(ctx context.Context, taskID string) error

	// Close releases resources held by the store.
	Close() error
}
