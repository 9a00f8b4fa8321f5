//
// Tencent is pleased to support the open source community by making trpc-taskforce-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-taskforce-go is licensed under the Apache License Version 2.0.
//
//

package task

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SubtaskStatus is the lifecycle status of a Subtask.
type SubtaskStatus string

// Subtask status constants. A subtask moves pending, in_progress, done and
// never back.
const (
	SubtaskPending    SubtaskStatus = "pending"
	SubtaskInProgress SubtaskStatus = "in_progress"
	SubtaskDone       SubtaskStatus = "done"
)

var (
	// ErrSubtaskNotPending is returned when starting a subtask that has
	// already started.
	ErrSubtaskNotPending = errors.New("subtask is not pending")
	// ErrSubtaskNotInProgress is returned when finishing a subtask that is
	// not in progress.
	ErrSubtaskNotInProgress = errors.New("subtask is not in progress")
	// ErrSubtaskClosed is returned when appending to a finished transcript.
	ErrSubtaskClosed = errors.New("subtask transcript is closed")
)

// Origin records how a worker or tool spec came to be.
type Origin string

// Origin constants.
const (
	// OriginRetrieved marks an entry matched from a library.
	OriginRetrieved Origin = "retrieved"
	// OriginGenerated marks an entry synthesized on demand.
	OriginGenerated Origin = "generated"
)

// Worker is a named capability profile participating in a subtask
// conversation. Workers are value-like and immutable once assigned.
type Worker struct {
	// Name identifies the worker within its subtask. Unique per subtask.
	Name string `json:"name"`
	// Description is the capability profile handed to the call capability.
	Description string `json:"description"`
	// Origin records whether the worker was retrieved or generated.
	Origin Origin `json:"origin"`
	// LibraryKey is the key of the library entry the worker was retrieved
	// from. Empty for generated workers.
	LibraryKey string `json:"libraryKey,omitempty"`
	// Tools are the tool specifications attached to the worker.
	Tools []ToolSpec `json:"tools,omitempty"`
}

// ToolSpec describes a tool attached to a worker: either a retrieved library
// entry or a synthesized specification.
type ToolSpec struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Origin      Origin `json:"origin"`
	// LibraryKey is the key of the tool library entry. Empty for
	// synthesized specs.
	LibraryKey string `json:"libraryKey,omitempty"`
}

// Message is a single turn in a subtask conversation.
type Message struct {
	ID string `json:"id"`
	// Sender is the name of the worker that produced the message.
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage creates a transcript message with a generated ID.
func NewMessage(sender, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Sender:    sender,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// Subtask is a decomposed unit of the Task: a description, the workers
// assembled for it, and an append-only conversation transcript.
type Subtask struct {
	ID          string        `json:"id"`
	Description string        `json:"description"`
	Workers     []Worker      `json:"workers"`
	Status      SubtaskStatus `json:"status"`
	// Marker explains how the subtask finished: empty for a clean
	// termination token, otherwise budget exhaustion or failure.
	Marker     Marker    `json:"marker,omitempty"`
	Transcript []Message `json:"transcript"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`

	mu sync.RWMutex
}

// NewSubtask creates a pending subtask with a generated ID.
func NewSubtask(description string, workers []Worker) *Subtask {
	now := time.Now()
	return &Subtask{
		ID:          uuid.NewString(),
		Description: description,
		Workers:     workers,
		Status:      SubtaskPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Start transitions the subtask from pending to in_progress.
func (s *Subtask) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Status != SubtaskPending {
		return ErrSubtaskNotPending
	}
	s.Status = SubtaskInProgress
	s.UpdatedAt = time.Now()
	return nil
}

// Finish transitions the subtask from in_progress to done with the given
// marker and closes the transcript.
func (s *Subtask) Finish(marker Marker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Status != SubtaskInProgress {
		return ErrSubtaskNotInProgress
	}
	s.Status = SubtaskDone
	s.Marker = marker
	s.UpdatedAt = time.Now()
	return nil
}

// CurrentStatus returns the subtask status.
func (s *Subtask) CurrentStatus() SubtaskStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Status
}

// CurrentMarker returns the subtask completion marker.
func (s *Subtask) CurrentMarker() Marker {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Marker
}

// Append adds a message to the transcript. The transcript is append-only:
// messages are never edited or removed, and appending after Finish fails.
func (s *Subtask) Append(msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Status == SubtaskDone {
		return ErrSubtaskClosed
	}
	s.Transcript = append(s.Transcript, msg)
	s.UpdatedAt = time.Now()
	return nil
}

// Messages returns a copy of the transcript in append order.
func (s *Subtask) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.Transcript))
	copy(out, s.Transcript)
	return out
}

// TurnCount returns the number of messages appended so far.
func (s *Subtask) TurnCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.Transcript)
}

// WorkerByName returns the assigned worker with the given name.
func (s *Subtask) WorkerByName(name string) (Worker, bool) {
	for _, w := range s.Workers {
		if w.Name == name {
			return w, true
		}
	}
	return Worker{}, false
}

// clone returns a deep copy of the subtask.
func (s *Subtask) clone() *Subtask {
	s.mu.RLock()
	defer s.mu.RUnlock()
	copied := &Subtask{
		ID:          s.ID,
		Description: s.Description,
		Workers:     make([]Worker, len(s.Workers)),
		Status:      s.Status,
		Marker:      s.Marker,
		Transcript:  make([]Message, len(s.Transcript)),
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
	copy(copied.Transcript, s.Transcript)
	for i, w := range s.Workers {
		cw := w
		if len(w.Tools) > 0 {
			cw.Tools = make([]ToolSpec, len(w.Tools))
			copy(cw.Tools, w.Tools)
		}
		copied.Workers[i] = cw
	}
	return copied
}
