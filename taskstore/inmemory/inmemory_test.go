//
// Tencent is pleased to support the open source community by making
// trpc-taskforce-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-taskforce-go is licensed under the Apache License Version 2.0.
//
//

package inmemory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-taskforce-go/task"
	"trpc.group/trpc-go/trpc-taskforce-go/taskstore"
)

func storedTask(t *testing.T, description string) *task.Task {
	t.Helper()
	tk, err := task.New(description)
	require.NoError(t, err)
	st := task.NewSubtask("first step", []task.Worker{{Name: "worker", Origin: task.OriginGenerated}})
	require.NoError(t, st.Start())
	require.NoError(t, st.Append(task.NewMessage("worker", "hello")))
	require.NoError(t, st.Finish(task.MarkerNone))
	tk.SetSubtasks([]*task.Subtask{st})
	tk.AppendReport(task.NewReport(st, "went well", task.RecommendationDone))
	return tk
}

func TestSaveAndGet(t *testing.T) {
	s := New()
	tk := storedTask(t, "catalog the archive")

	require.NoError(t, s.Save(context.Background(), tk.Snapshot()))
	got, err := s.Get(context.Background(), tk.ID)
	require.NoError(t, err)

	assert.Equal(t, tk.ID, got.ID)
	assert.Equal(t, "catalog the archive", got.Description)
	require.Len(t, got.Subtasks, 1)
	assert.Equal(t, task.SubtaskDone, got.Subtasks[0].Status)
	require.Len(t, got.Reports, 1)
	assert.Equal(t, task.RecommendationDone, got.Reports[0].Recommendation)
}

func TestGetNotFound(t *testing.T) {
	s := New()
	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, taskstore.ErrNotFound)
}

func TestSaveNilSnapshot(t *testing.T) {
	s := New()
	assert.ErrorIs(t, s.Save(context.Background(), nil), errNilSnapshot)
}

func TestSaveReplacesPrevious(t *testing.T) {
	s := New()
	tk := storedTask(t, "catalog the archive")
	require.NoError(t, s.Save(context.Background(), tk.Snapshot()))

	require.NoError(t, tk.Complete())
	require.NoError(t, s.Save(context.Background(), tk.Snapshot()))

	got, err := s.Get(context.Background(), tk.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusCompleted, got.Status)
}

func TestGetIsolatedFromStore(t *testing.T) {
	s := New()
	tk := storedTask(t, "catalog the archive")
	require.NoError(t, s.Save(context.Background(), tk.Snapshot()))

	got, err := s.Get(context.Background(), tk.ID)
	require.NoError(t, err)
	got.Description = "mutated"
	got.Subtasks[0].Transcript[0].Content = "mutated"

	again, err := s.Get(context.Background(), tk.ID)
	require.NoError(t, err)
	assert.Equal(t, "catalog the archive", again.Description)
	assert.Equal(t, "hello", again.Subtasks[0].Transcript[0].Content)
}

func TestListOrdersByCreation(t *testing.T) {
	s := New(WithSlotNum(4))
	first := storedTask(t, "first task")
	second := storedTask(t, "second task")
	require.NoError(t, s.Save(context.Background(), second.Snapshot()))
	require.NoError(t, s.Save(context.Background(), first.Snapshot()))

	all, err := s.List(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.False(t, all[1].CreatedAt.Before(all[0].CreatedAt))
}

func TestDelete(t *testing.T) {
	s := New()
	tk := storedTask(t, "catalog the archive")
	require.NoError(t, s.Save(context.Background(), tk.Snapshot()))
	require.NoError(t, s.Delete(context.Background(), tk.ID))

	_, err := s.Get(context.Background(), tk.ID)
	assert.ErrorIs(t, err, taskstore.ErrNotFound)
	// Deleting again is a no-op.
	assert.NoError(t, s.Delete(context.Background(), tk.ID))
}

func TestCancelledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Save(ctx, storedTask(t, "x").Snapshot()), context.Canceled)
	_, err := s.Get(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestZeroHashSnapshotFindsSameSlot(t *testing.T) {
	s := New()
	tk := storedTask(t, "catalog the archive")
	snap := tk.Snapshot()
	// Snapshots that crossed a serialization boundary lose the hash.
	snap.Hash = 0
	require.NoError(t, s.Save(context.Background(), snap))

	got, err := s.Get(context.Background(), tk.ID)
	require.NoError(t, err)
	assert.Equal(t, tk.ID, got.ID)
}
