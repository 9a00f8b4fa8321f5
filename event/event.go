//
// Tencent is pleased to support the open source community by making
// trpc-taskforce-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-taskforce-go is licensed under the Apache License Version 2.0.
//
//

// Package event defines the progress events emitted while a task runs.
package event

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"trpc.group/trpc-go/trpc-taskforce-go/model"
	"trpc.group/trpc-go/trpc-taskforce-go/task"
)

// Object values identify the stage that produced an event.
const (
	// ObjectTaskCreated signals that a task entered the run loop.
	ObjectTaskCreated = "task.created"
	// ObjectDecomposition carries the subtask plan produced by the composer.
	ObjectDecomposition = "composer.decomposition"
	// ObjectWorkerAssembled reports one assembled worker, retrieved or synthesized.
	ObjectWorkerAssembled = "composer.worker"
	// ObjectTurn carries a single transcript message appended during execution.
	ObjectTurn = "executor.turn"
	// ObjectTermination reports why a subtask's turn loop stopped.
	ObjectTermination = "executor.termination"
	// ObjectReport carries a reflection report.
	ObjectReport = "reflector.report"
	// ObjectIteration marks the end of one outer iteration.
	ObjectIteration = "runner.iteration"
	// ObjectCompletion is the final event of a run.
	ObjectCompletion = "runner.completion"
)

// Event is one progress notification from a running task.
//
// Only the fields relevant to the Object are populated; the rest stay at
// their zero values. Events are immutable once emitted, consumers that need
// to retain one across goroutines should Clone it.
type Event struct {
	// ID uniquely identifies the event.
	ID string `json:"id"`
	// Object identifies the producing stage, see the Object constants.
	Object string `json:"object"`
	// TaskID is the task the event belongs to.
	TaskID string `json:"taskId"`
	// SubtaskID is set for subtask-scoped events.
	SubtaskID string `json:"subtaskId,omitempty"`
	// Author names the component or worker that produced the event.
	Author string `json:"author"`
	// Content is a human-readable description of what happened.
	Content string `json:"content,omitempty"`
	// Turn holds the appended message for ObjectTurn events.
	Turn *task.Message `json:"turn,omitempty"`
	// Worker holds the assembled worker for ObjectWorkerAssembled events.
	Worker *task.Worker `json:"worker,omitempty"`
	// Report holds the reflection report for ObjectReport events.
	Report *task.Report `json:"report,omitempty"`
	// Subtasks lists planned subtask descriptions for ObjectDecomposition events.
	Subtasks []string `json:"subtasks,omitempty"`
	// Status is the task status for ObjectIteration and ObjectCompletion events.
	Status task.Status `json:"status,omitempty"`
	// Marker is the termination marker for ObjectTermination and ObjectCompletion events.
	Marker task.Marker `json:"marker,omitempty"`
	// Error is set when the event reports a failure.
	Error *model.ResponseError `json:"error,omitempty"`
	// Done is true on the final event of a run.
	Done bool `json:"done"`
	// Timestamp records when the event was created.
	Timestamp time.Time `json:"timestamp"`
}

// Option configures an Event at construction time.
type Option func(*Event)

// WithObject sets the event object.
func WithObject(o string) Option {
	return func(e *Event) {
		e.Object = o
	}
}

// WithSubtaskID scopes the event to a subtask.
func WithSubtaskID(id string) Option {
	return func(e *Event) {
		e.SubtaskID = id
	}
}

// WithContent sets the human-readable content.
func WithContent(content string) Option {
	return func(e *Event) {
		e.Content = content
	}
}

// WithTurn attaches a transcript message.
func WithTurn(m *task.Message) Option {
	return func(e *Event) {
		e.Turn = m
	}
}

// WithWorker attaches an assembled worker.
func WithWorker(w *task.Worker) Option {
	return func(e *Event) {
		e.Worker = w
	}
}

// WithReport attaches a reflection report.
func WithReport(r *task.Report) Option {
	return func(e *Event) {
		e.Report = r
	}
}

// WithSubtasks attaches the planned subtask descriptions.
func WithSubtasks(descriptions []string) Option {
	return func(e *Event) {
		e.Subtasks = descriptions
	}
}

// WithStatus sets the task status carried by the event.
func WithStatus(s task.Status) Option {
	return func(e *Event) {
		e.Status = s
	}
}

// WithMarker sets the termination marker carried by the event.
func WithMarker(m task.Marker) Option {
	return func(e *Event) {
		e.Marker = m
	}
}

// WithDone marks the event as the final one of the run.
func WithDone(done bool) Option {
	return func(e *Event) {
		e.Done = done
	}
}

// New creates an event for the given task and author.
func New(taskID, author string, opts ...Option) *Event {
	e := &Event{
		ID:        uuid.NewString(),
		TaskID:    taskID,
		Author:    author,
		Timestamp: time.Now(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewErrorEvent creates an error event for the given task and author.
// Error events do not set Done: the runner still delivers the final
// completion event after the failing stage reports.
func NewErrorEvent(taskID, author, errorType, errorMessage string) *Event {
	e := New(taskID, author)
	e.Object = model.ObjectTypeError
	e.Error = &model.ResponseError{
		Type:    errorType,
		Message: errorMessage,
	}
	return e
}

// Clone returns a deep copy of the event.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	clone := *e
	if e.Turn != nil {
		turn := *e.Turn
		clone.Turn = &turn
	}
	if e.Worker != nil {
		worker := *e.Worker
		worker.Tools = make([]task.ToolSpec, len(e.Worker.Tools))
		copy(worker.Tools, e.Worker.Tools)
		clone.Worker = &worker
	}
	if e.Report != nil {
		report := *e.Report
		clone.Report = &report
	}
	if e.Subtasks != nil {
		clone.Subtasks = make([]string, len(e.Subtasks))
		copy(clone.Subtasks, e.Subtasks)
	}
	if e.Error != nil {
		err := *e.Error
		clone.Error = &err
	}
	return &clone
}

// IsError reports whether the event carries an error.
func (e *Event) IsError() bool {
	return e != nil && e.Error != nil
}

// Emit sends the event on the channel, honoring context cancellation.
// A nil channel drops the event without error.
func Emit(ctx context.Context, ch chan<- *Event, e *Event) error {
	if ch == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case ch <- e:
		return nil
	}
}

// EmitWithTimeout sends the event on the channel, giving up after the
// timeout elapses. A nil channel drops the event without error.
func EmitWithTimeout(ctx context.Context, ch chan<- *Event, e *Event, timeout time.Duration) error {
	if ch == nil {
		return nil
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return NewEmitTimeoutError(timeout)
	case ch <- e:
		return nil
	}
}

// EmitTimeoutError reports that an event could not be delivered in time.
type EmitTimeoutError struct {
	// Timeout is the duration that elapsed before giving up.
	Timeout time.Duration
}

// NewEmitTimeoutError creates an EmitTimeoutError with the given timeout.
func NewEmitTimeoutError(timeout time.Duration) *EmitTimeoutError {
	return &EmitTimeoutError{Timeout: timeout}
}

// Error implements the error interface.
func (e *EmitTimeoutError) Error() string {
	return "event emit timed out after " + e.Timeout.String()
}

// AsEmitTimeoutError unwraps err as an *EmitTimeoutError if possible.
func AsEmitTimeoutError(err error) (*EmitTimeoutError, bool) {
	var te *EmitTimeoutError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}
