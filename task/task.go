//
// Tencent is pleased to support the open source community by making trpc-taskforce-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-taskforce-go is licensed under the Apache License Version 2.0.
//
//

// Package task defines the orchestration data model: the top-level Task, its
// Subtasks with append-only transcripts, the Workers assembled per subtask,
// and the Reports produced by reflection.
package task

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spaolacci/murmur3"
)

// Status is the lifecycle status of a Task.
type Status string

// Task status constants. A task starts active and moves to exactly one of
// the terminal statuses, never back.
const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Marker explains why a task or subtask reached its terminal status. A clean
// finish carries no marker.
type Marker string

// Marker constants.
const (
	MarkerNone            Marker = ""
	MarkerBudgetExhausted Marker = "budget_exhausted"
	MarkerUnreachable     Marker = "no_reachable_workers"
	MarkerCancelled       Marker = "cancelled"
	MarkerError           Marker = "error"
)

var (
	// ErrEmptyDescription is returned when a task is created without a
	// description.
	ErrEmptyDescription = errors.New("task description is required")
	// ErrTaskTerminal is returned on status transitions out of a terminal
	// status.
	ErrTaskTerminal = errors.New("task already in a terminal status")
)

// Task is the top-level problem statement plus everything produced while
// solving it. The orchestration loop owns the Task for its entire lifetime;
// other components receive it read-only or mutate it through its methods.
type Task struct {
	ID          string     `json:"id"`
	Description string     `json:"description"`
	Status      Status     `json:"status"`
	Marker      Marker     `json:"marker,omitempty"`
	Subtasks    []*Subtask `json:"subtasks"`
	Reports     []*Report  `json:"reports"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`

	// Hash is the pre-computed slot hash for store sharding. It is
	// calculated once from the task ID and never modified.
	Hash int `json:"-"`

	mu sync.RWMutex
}

// New creates an active Task with a generated ID.
func New(description string) (*Task, error) {
	if description == "" {
		return nil, ErrEmptyDescription
	}
	id := uuid.NewString()
	now := time.Now()
	return &Task{
		ID:          id,
		Description: description,
		Status:      StatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
		Hash:        int(murmur3.Sum32([]byte(id))),
	}, nil
}

// Complete transitions the task from active to completed.
func (t *Task) Complete() error {
	return t.finish(StatusCompleted, MarkerNone)
}

// Fail transitions the task from active to failed with the given marker.
func (t *Task) Fail(marker Marker) error {
	return t.finish(StatusFailed, marker)
}

func (t *Task) finish(status Status, marker Marker) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Status != StatusActive {
		return ErrTaskTerminal
	}
	t.Status = status
	t.Marker = marker
	t.UpdatedAt = time.Now()
	return nil
}

// Terminal reports whether the task has reached a terminal status.
func (t *Task) Terminal() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.Status != StatusActive
}

// CurrentStatus returns the task status.
func (t *Task) CurrentStatus() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.Status
}

// CurrentMarker returns the task's terminal marker, MarkerNone while active.
func (t *Task) CurrentMarker() Marker {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.Marker
}

// SetSubtasks replaces the pending plan with a fresh decomposition.
// Finished subtasks are retained for auditability; only subtasks that never
// started are dropped.
func (t *Task) SetSubtasks(subtasks []*Subtask) {
	t.mu.Lock()
	defer t.mu.Unlock()
	kept := make([]*Subtask, 0, len(t.Subtasks)+len(subtasks))
	for _, st := range t.Subtasks {
		if st.CurrentStatus() != SubtaskPending {
			kept = append(kept, st)
		}
	}
	t.Subtasks = append(kept, subtasks...)
	t.UpdatedAt = time.Now()
}

// PendingSubtasks returns the subtasks that have not started, in order.
func (t *Task) PendingSubtasks() []*Subtask {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var pending []*Subtask
	for _, st := range t.Subtasks {
		if st.CurrentStatus() == SubtaskPending {
			pending = append(pending, st)
		}
	}
	return pending
}

// SubtaskByID returns the subtask with the given ID, or nil.
func (t *Task) SubtaskByID(id string) *Subtask {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, st := range t.Subtasks {
		if st.ID == id {
			return st
		}
	}
	return nil
}

// InProgress returns the subtask currently in progress, or nil. At most one
// subtask is in progress at a time; execution is strictly sequential.
func (t *Task) InProgress() *Subtask {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, st := range t.Subtasks {
		if st.CurrentStatus() == SubtaskInProgress {
			return st
		}
	}
	return nil
}

// AppendReport appends a reflection report to the task history.
func (t *Task) AppendReport(report *Report) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Reports = append(t.Reports, report)
	t.UpdatedAt = time.Now()
}

// ReportHistory returns a copy of the accumulated reports, oldest first.
func (t *Task) ReportHistory() []*Report {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Report, len(t.Reports))
	copy(out, t.Reports)
	return out
}

// Snapshot returns a deep copy of the task safe to read and serialize while
// the run continues.
func (t *Task) Snapshot() *Task {
	t.mu.RLock()
	snap := &Task{
		ID:          t.ID,
		Description: t.Description,
		Status:      t.Status,
		Marker:      t.Marker,
		Subtasks:    make([]*Subtask, 0, len(t.Subtasks)),
		Reports:     make([]*Report, 0, len(t.Reports)),
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
		Hash:        t.Hash,
	}
	subtasks := make([]*Subtask, len(t.Subtasks))
	copy(subtasks, t.Subtasks)
	for _, r := range t.Reports {
		copied := *r
		snap.Reports = append(snap.Reports, &copied)
	}
	t.mu.RUnlock()

	for _, st := range subtasks {
		snap.Subtasks = append(snap.Subtasks, st.clone())
	}
	return snap
}
