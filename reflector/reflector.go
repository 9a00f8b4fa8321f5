//
// Tencent is pleased to support the open source community by making
// trpc-taskforce-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-taskforce-go is licensed under the Apache License Version 2.0.
//
//

// Package reflector reviews finished subtask conversations and produces the
// report that steers the orchestration loop.
package reflector

import (
	"context"
	"errors"
	"fmt"
	"strings"

	itelemetry "trpc.group/trpc-go/trpc-taskforce-go/internal/telemetry"
	"trpc.group/trpc-go/trpc-taskforce-go/log"
	"trpc.group/trpc-go/trpc-taskforce-go/model"
	"trpc.group/trpc-go/trpc-taskforce-go/task"
	atrace "trpc.group/trpc-go/trpc-taskforce-go/telemetry/trace"
)

var (
	// ErrMalformedRecommendation reports that no well-formed recommendation
	// could be produced within the retry bound. The orchestration loop treats
	// it as a conservative revise-decomposition.
	ErrMalformedRecommendation = errors.New("reflector: no well-formed recommendation")

	errNilModel   = errors.New("reflector: model is nil")
	errNilTask    = errors.New("reflector: task is nil")
	errNilSubtask = errors.New("reflector: subtask is nil")
)

const reflectionInstruction = `You review the finished conversation of one subtask and report on it.
Reply with a JSON object:
{"summary":"what happened and what was produced","recommendation":"continue-as-is"}
The recommendation must be exactly one of:
- "done" when the conversation completed the overall task.
- "continue-as-is" when this subtask is settled and the next one should proceed.
- "revise-decomposition" when the subtask plan itself needs rethinking.
Reply with the JSON object only.`

// reflection is the model's reply shape.
type reflection struct {
	Summary        string `json:"summary"`
	Recommendation string `json:"recommendation"`
}

// Validate rejects replies without a summary or with a recommendation
// outside the three allowed values.
func (r *reflection) Validate() error {
	if strings.TrimSpace(r.Summary) == "" {
		return errors.New("empty summary")
	}
	if !task.Recommendation(r.Recommendation).IsValid() {
		return fmt.Errorf("unknown recommendation %q", r.Recommendation)
	}
	return nil
}

// Reflector turns a done subtask's transcript into a Report.
type Reflector struct {
	model model.Model
	retry model.RetryPolicy
}

// Option configures a Reflector.
type Option func(*Reflector)

// WithRetryPolicy sets the retry policy for model calls.
func WithRetryPolicy(policy model.RetryPolicy) Option {
	return func(r *Reflector) {
		r.retry = policy
	}
}

// New creates a Reflector backed by the given model.
func New(m model.Model, opts ...Option) (*Reflector, error) {
	if m == nil {
		return nil, errNilModel
	}
	r := &Reflector{
		model: m,
		retry: model.DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Reflect reviews the subtask against the task description and returns a
// report with one of the three recommendations. When no well-formed
// recommendation arrives within the retry bound the error wraps
// ErrMalformedRecommendation; a cancelled context is returned as-is.
func (r *Reflector) Reflect(ctx context.Context, t *task.Task, st *task.Subtask) (*task.Report, error) {
	if t == nil {
		return nil, errNilTask
	}
	if st == nil {
		return nil, errNilSubtask
	}
	ctx, span := atrace.Tracer.Start(ctx, itelemetry.NewReflectSubtaskSpanName(st.ID))
	defer span.End()

	report, err := r.reflect(ctx, t, st)
	itelemetry.TraceReport(span, t, report, err)
	return report, err
}

func (r *Reflector) reflect(ctx context.Context, t *task.Task, st *task.Subtask) (*task.Report, error) {
	request := &model.Request{
		Messages: []model.Message{
			model.NewSystemMessage(reflectionInstruction),
			model.NewUserMessage(reflectionPrompt(t, st)),
		},
	}
	var out reflection
	if _, err := model.InvokeParsed(ctx, r.model, request, &out, r.retry); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecommendation, err)
	}

	report := task.NewReport(st, strings.TrimSpace(out.Summary), task.Recommendation(out.Recommendation))
	log.Infof("reflector: subtask %s reviewed, recommendation %q", st.ID, report.Recommendation)
	return report, nil
}

// reflectionPrompt renders the task, how the subtask finished, and the full
// transcript.
func reflectionPrompt(t *task.Task, st *task.Subtask) string {
	var b strings.Builder
	b.WriteString("Task:\n")
	b.WriteString(t.Description)
	b.WriteString("\n\nSubtask:\n")
	b.WriteString(st.Description)
	fmt.Fprintf(&b, "\n\nThe conversation ran %d turns", st.TurnCount())
	if marker := st.CurrentMarker(); marker != task.MarkerNone {
		fmt.Fprintf(&b, " and stopped early: %s", marker)
	}
	b.WriteString(".\n\nTranscript:")
	msgs := st.Messages()
	if len(msgs) == 0 {
		b.WriteString("\n(no messages)")
	}
	for _, m := range msgs {
		fmt.Fprintf(&b, "\n%s: %s", m.Sender, m.Content)
	}
	return b.String()
}
