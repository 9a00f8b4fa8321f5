//
// Tencent is pleased to support the open source community by making
// trpc-taskforce-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-taskforce-go is licensed under the Apache License Version 2.0.
//
//

package event

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-taskforce-go/model"
	"trpc.group/trpc-go/trpc-taskforce-go/task"
)

const (
	testTaskID = "task-1"
	testAuthor = "composer"
)

func TestNew(t *testing.T) {
	e := New(testTaskID, testAuthor)
	require.NotNil(t, e)
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, testTaskID, e.TaskID)
	assert.Equal(t, testAuthor, e.Author)
	assert.False(t, e.Done)
	assert.False(t, e.Timestamp.IsZero())
}

func TestNewWithOptions(t *testing.T) {
	turn := task.NewMessage("researcher", "found three sources")
	e := New(testTaskID, "executor",
		WithObject(ObjectTurn),
		WithSubtaskID("sub-1"),
		WithTurn(&turn),
		WithContent(turn.Content),
	)
	require.NotNil(t, e)
	assert.Equal(t, ObjectTurn, e.Object)
	assert.Equal(t, "sub-1", e.SubtaskID)
	require.NotNil(t, e.Turn)
	assert.Equal(t, "researcher", e.Turn.Sender)
	assert.Equal(t, turn.Content, e.Content)
}

func TestNewErrorEvent(t *testing.T) {
	e := NewErrorEvent(testTaskID, testAuthor, model.ErrorTypeAPIError, "boom")
	require.NotNil(t, e)
	assert.Equal(t, model.ObjectTypeError, e.Object)
	// Done stays false: the completion event follows even after an error.
	assert.False(t, e.Done)
	assert.True(t, e.IsError())
	require.NotNil(t, e.Error)
	assert.Equal(t, model.ErrorTypeAPIError, e.Error.Type)
	assert.Equal(t, "boom", e.Error.Message)
}

func TestIsErrorNil(t *testing.T) {
	var e *Event
	assert.False(t, e.IsError())
	assert.Nil(t, e.Clone())
}

func TestClone(t *testing.T) {
	turn := task.NewMessage("writer", "draft ready")
	e := New(testTaskID, "executor",
		WithObject(ObjectTurn),
		WithTurn(&turn),
		WithSubtasks([]string{"outline", "draft"}),
		WithWorker(&task.Worker{
			Name:   "writer",
			Origin: task.OriginRetrieved,
			Tools:  []task.ToolSpec{{Name: "search"}},
		}),
		WithReport(&task.Report{Summary: "ok", Recommendation: task.RecommendationDone}),
	)
	e.Error = &model.ResponseError{Type: model.ErrorTypeTimeout, Message: "slow"}

	clone := e.Clone()
	require.NotNil(t, clone)
	assert.Equal(t, e.ID, clone.ID)
	assert.Equal(t, e.Subtasks, clone.Subtasks)

	// Mutating the clone must not touch the original.
	clone.Turn.Content = "changed"
	clone.Subtasks[0] = "changed"
	clone.Worker.Tools[0].Name = "changed"
	clone.Report.Summary = "changed"
	clone.Error.Message = "changed"
	assert.Equal(t, "draft ready", e.Turn.Content)
	assert.Equal(t, "outline", e.Subtasks[0])
	assert.Equal(t, "search", e.Worker.Tools[0].Name)
	assert.Equal(t, "ok", e.Report.Summary)
	assert.Equal(t, "slow", e.Error.Message)
}

func TestEmit(t *testing.T) {
	ch := make(chan *Event, 1)
	e := New(testTaskID, testAuthor)
	require.NoError(t, Emit(context.Background(), ch, e))
	got := <-ch
	assert.Equal(t, e.ID, got.ID)
}

func TestEmitNilChannel(t *testing.T) {
	e := New(testTaskID, testAuthor)
	assert.NoError(t, Emit(context.Background(), nil, e))
	assert.NoError(t, EmitWithTimeout(context.Background(), nil, e, time.Millisecond))
}

func TestEmitCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ch := make(chan *Event) // unbuffered, would block
	err := Emit(ctx, ch, New(testTaskID, testAuthor))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEmitWithTimeout(t *testing.T) {
	ch := make(chan *Event) // unbuffered, no reader
	err := EmitWithTimeout(context.Background(), ch, New(testTaskID, testAuthor), 10*time.Millisecond)
	require.Error(t, err)
	te, ok := AsEmitTimeoutError(err)
	require.True(t, ok)
	assert.Equal(t, 10*time.Millisecond, te.Timeout)
}

func TestEmitWithTimeoutDelivered(t *testing.T) {
	ch := make(chan *Event, 1)
	err := EmitWithTimeout(context.Background(), ch, New(testTaskID, testAuthor), time.Second)
	require.NoError(t, err)
	assert.NotNil(t, <-ch)
}
