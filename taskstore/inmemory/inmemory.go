//
// Tencent is pleased to support the open source community by making
// trpc-taskforce-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-taskforce-go is licensed under the Apache License Version 2.0.
//
//

// Package inmemory provides an in-process task snapshot store sharded over
// lock slots.
package inmemory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/spaolacci/murmur3"

	"trpc.group/trpc-go/trpc-taskforce-go/task"
	"trpc.group/trpc-go/trpc-taskforce-go/taskstore"
)

const defaultSlotNum = 16

var errNilSnapshot = errors.New("snapshot is nil or has no ID")

type slot struct {
	mu    sync.RWMutex
	tasks map[string]*task.Task
}

// Store is an in-memory taskstore.Store. Snapshots are deep-copied on both
// save and load so callers never share memory through the store.
type Store struct {
	slots []*slot
}

// Option configures a Store.
type Option func(*options)

type options struct {
	slotNum int
}

// WithSlotNum sets the number of lock slots.
func WithSlotNum(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.slotNum = n
		}
	}
}

// New creates an empty in-memory store.
func New(opts ...Option) *Store {
	o := options{slotNum: defaultSlotNum}
	for _, opt := range opts {
		opt(&o)
	}
	slots := make([]*slot, o.slotNum)
	for i := range slots {
		slots[i] = &slot{tasks: make(map[string]*task.Task)}
	}
	return &Store{slots: slots}
}

var _ taskstore.Store = (*Store)(nil)

// Save stores a deep copy of the snapshot.
func (s *Store) Save(ctx context.Context, snapshot *task.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if snapshot == nil || snapshot.ID == "" {
		return errNilSnapshot
	}
	sl := s.slotFor(snapshot.ID, snapshot.Hash)
	copied := snapshot.Snapshot()
	sl.mu.Lock()
	sl.tasks[snapshot.ID] = copied
	sl.mu.Unlock()
	return nil
}

// Get returns a deep copy of the stored snapshot.
func (s *Store) Get(ctx context.Context, taskID string) (*task.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sl := s.slotFor(taskID, 0)
	sl.mu.RLock()
	stored, ok := sl.tasks[taskID]
	sl.mu.RUnlock()
	if !ok {
		return nil, taskstore.ErrNotFound
	}
	return stored.Snapshot(), nil
}

// List returns deep copies of all snapshots ordered by creation time.
func (s *Store) List(ctx context.Context) ([]*task.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []*task.Task
	for _, sl := range s.slots {
		sl.mu.RLock()
		for _, stored := range sl.tasks {
			out = append(out, stored.Snapshot())
		}
		sl.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Delete removes the snapshot for the ID.
func (s *Store) Delete(ctx context.Context, taskID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sl := s.slotFor(taskID, 0)
	sl.mu.Lock()
	delete(sl.tasks, taskID)
	sl.mu.Unlock()
	return nil
}

// Close implements taskstore.Store.
func (s *Store) Close() error { return nil }

// slotFor picks the lock slot. The task's precomputed hash is reused when
// present; snapshots deserialized elsewhere arrive with a zero hash and are
// rehashed from the ID.
func (s *Store) slotFor(taskID string, hash int) *slot {
	if hash == 0 {
		hash = int(murmur3.Sum32([]byte(taskID)))
	}
	idx := hash % len(s.slots)
	if idx < 0 {
		idx += len(s.slots)
	}
	return s.slots[idx]
}
