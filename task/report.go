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
	"time"

	"github.com/google/uuid"
)

// Recommendation is the reflector's continuation decision for the task.
type Recommendation string

// Recommendation constants.
const (
	// RecommendationContinue advances to the next pending subtask without
	// recomposing.
	RecommendationContinue Recommendation = "continue-as-is"
	// RecommendationRevise feeds back into decomposition with the report
	// history.
	RecommendationRevise Recommendation = "revise-decomposition"
	// RecommendationDone ends the task as completed.
	RecommendationDone Recommendation = "done"
)

// IsValid checks if the recommendation is one of the defined constants.
func (r Recommendation) IsValid() bool {
	switch r {
	case RecommendationContinue, RecommendationRevise, RecommendationDone:
		return true
	default:
		return false
	}
}

// Report is the reflector's structured summary and continuation
// recommendation for a finished subtask.
type Report struct {
	ID        string `json:"id"`
	SubtaskID string `json:"subtaskId"`
	// SubtaskDescription is carried so decomposition can avoid repeating
	// failed subtasks without resolving IDs.
	SubtaskDescription string         `json:"subtaskDescription"`
	Summary            string         `json:"summary"`
	Recommendation     Recommendation `json:"recommendation"`
	CreatedAt          time.Time      `json:"createdAt"`
}

// NewReport creates a report for the given subtask.
func NewReport(subtask *Subtask, summary string, rec Recommendation) *Report {
	return &Report{
		ID:                 uuid.NewString(),
		SubtaskID:          subtask.ID,
		SubtaskDescription: subtask.Description,
		Summary:            summary,
		Recommendation:     rec,
		CreatedAt:          time.Now(),
	}
}

// Negative reports whether the report judged its subtask unsuccessful.
// Decomposition uses this to avoid reproducing failed subtask descriptions.
func (r *Report) Negative() bool {
	return r.Recommendation == RecommendationRevise
}
