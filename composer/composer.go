//
// Tencent is pleased to support the open source community by making
// trpc-taskforce-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-taskforce-go is licensed under the Apache License Version 2.0.
//
//

// Package composer decomposes a task into subtasks and assembles a worker
// team for each, preferring library retrieval over model synthesis.
package composer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	itelemetry "trpc.group/trpc-go/trpc-taskforce-go/internal/telemetry"
	"trpc.group/trpc-go/trpc-taskforce-go/library"
	"trpc.group/trpc-go/trpc-taskforce-go/log"
	"trpc.group/trpc-go/trpc-taskforce-go/model"
	"trpc.group/trpc-go/trpc-taskforce-go/task"
	atrace "trpc.group/trpc-go/trpc-taskforce-go/telemetry/trace"
)

var (
	// ErrEmptyDecomposition reports that no usable subtask descriptions could
	// be produced for the task.
	ErrEmptyDecomposition = errors.New("composer: empty decomposition")

	errNilModel = errors.New("composer: model is nil")
	errNilTask  = errors.New("composer: task is nil")
)

const decompositionInstruction = `You split a task into the smallest ordered list of subtasks that completes it.
Reply with a JSON array of subtask descriptions, in execution order:
["first subtask", "second subtask"]
Each description is one self-contained sentence. Reply with the JSON array only.`

const workerSynthesisInstruction = `You design the smallest team of worker roles able to finish a subtask by talking to each other.
Reply with a JSON array of at most %d roles:
[{"name":"short-role-name","description":"what the role does"}]
Role names are short lowercase identifiers, unique within the team. Reply with the JSON array only.`

const toolSynthesisInstruction = `You decide which tools a worker role needs for a subtask.
Reply with a JSON array of at most %d tool specs, or [] if the role needs none:
[{"name":"short-tool-name","description":"what the tool does"}]
Reply with the JSON array only.`

// workerSpec is a synthesized role as the model reports it.
type workerSpec struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Composer builds the subtask plan and worker teams for a task.
type Composer struct {
	model        model.Model
	agentLibrary library.Library
	toolLibrary  library.Library
	threshold    float64
	maxWorkers   int
	maxTools     int
	retry        model.RetryPolicy
}

// New creates a Composer backed by the given model.
func New(m model.Model, opts ...Option) (*Composer, error) {
	if m == nil {
		return nil, errNilModel
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Composer{
		model:        m,
		agentLibrary: o.agentLibrary,
		toolLibrary:  o.toolLibrary,
		threshold:    o.matchThreshold,
		maxWorkers:   o.maxWorkers,
		maxTools:     o.maxTools,
		retry:        o.retry,
	}, nil
}

// Compose decomposes the task into ordered subtasks, each with an assembled
// worker team. priorReports is the task's report history; descriptions that
// already finished with a revise-decomposition report are not produced again.
// An empty decomposition returns ErrEmptyDecomposition.
func (c *Composer) Compose(ctx context.Context, t *task.Task, priorReports []*task.Report) ([]*task.Subtask, error) {
	if t == nil {
		return nil, errNilTask
	}
	ctx, span := atrace.Tracer.Start(ctx, itelemetry.OperationComposeTask)
	defer span.End()

	subtasks, err := c.compose(ctx, t, priorReports)
	itelemetry.TraceComposition(span, t, subtasks, err)
	return subtasks, err
}

func (c *Composer) compose(ctx context.Context, t *task.Task, priorReports []*task.Report) ([]*task.Subtask, error) {
	excluded := excludedDescriptions(priorReports)
	descriptions, err := c.decompose(ctx, t, priorReports, excluded)
	if err != nil {
		return nil, err
	}
	if len(descriptions) == 0 {
		return nil, ErrEmptyDecomposition
	}

	subtasks := make([]*task.Subtask, 0, len(descriptions))
	for _, description := range descriptions {
		workers, err := c.assembleWorkers(ctx, description)
		if err != nil {
			return nil, fmt.Errorf("composer: assemble workers for %q: %w", description, err)
		}
		subtasks = append(subtasks, task.NewSubtask(description, workers))
	}
	return subtasks, nil
}

// decompose asks the model for the subtask plan and drops descriptions that
// are empty or lexically identical to an excluded one.
func (c *Composer) decompose(ctx context.Context, t *task.Task, priorReports []*task.Report, excluded map[string]bool) ([]string, error) {
	request := &model.Request{
		Messages: []model.Message{
			model.NewSystemMessage(decompositionInstruction),
			model.NewUserMessage(decompositionPrompt(t.Description, priorReports, excluded)),
		},
	}

	var raw []string
	if _, err := model.InvokeParsed(ctx, c.model, request, &raw, c.retry); err != nil {
		return nil, fmt.Errorf("composer: decompose: %w", err)
	}

	descriptions := make([]string, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for _, d := range raw {
		d = strings.TrimSpace(d)
		if d == "" || seen[d] {
			continue
		}
		if excluded[d] {
			log.Infof("composer: dropping subtask %q, already failed with a revise report", d)
			continue
		}
		seen[d] = true
		descriptions = append(descriptions, d)
	}
	return descriptions, nil
}

// decompositionPrompt renders the task, its report history, and the
// descriptions the plan must not repeat.
func decompositionPrompt(description string, priorReports []*task.Report, excluded map[string]bool) string {
	var b strings.Builder
	b.WriteString("Task:\n")
	b.WriteString(description)
	if len(priorReports) > 0 {
		b.WriteString("\n\nReports from earlier attempts:")
		for _, r := range priorReports {
			fmt.Fprintf(&b, "\n- [%s] %s: %s", r.Recommendation, r.SubtaskDescription, r.Summary)
		}
	}
	if len(excluded) > 0 {
		b.WriteString("\n\nDo not repeat these subtasks, they already failed:")
		for d := range excluded {
			b.WriteString("\n- ")
			b.WriteString(d)
		}
	}
	return b.String()
}

// excludedDescriptions collects the subtask descriptions of reports that
// recommended revising the decomposition.
func excludedDescriptions(priorReports []*task.Report) map[string]bool {
	excluded := make(map[string]bool)
	for _, r := range priorReports {
		if r == nil || !r.Negative() {
			continue
		}
		if d := strings.TrimSpace(r.SubtaskDescription); d != "" {
			excluded[d] = true
		}
	}
	return excluded
}

// assembleWorkers builds the worker team for one subtask description:
// the best library match at or above the threshold, otherwise a synthesized
// team.
func (c *Composer) assembleWorkers(ctx context.Context, description string) ([]task.Worker, error) {
	if c.agentLibrary != nil {
		match, found, err := c.agentLibrary.Lookup(ctx, description)
		if err != nil {
			return nil, fmt.Errorf("agent library lookup: %w", err)
		}
		if found && match.Score >= c.threshold {
			log.Debugf("composer: retrieved worker %q (score %.2f) for %q",
				match.Entry.Name, match.Score, description)
			worker := task.Worker{
				Name:        match.Entry.Name,
				Description: match.Entry.Description,
				Origin:      task.OriginRetrieved,
				LibraryKey:  match.Entry.Key,
			}
			if err := c.attachTools(ctx, description, &worker); err != nil {
				return nil, err
			}
			return []task.Worker{worker}, nil
		}
	}
	return c.synthesizeWorkers(ctx, description)
}

// synthesizeWorkers asks the model to design the team for a subtask.
func (c *Composer) synthesizeWorkers(ctx context.Context, description string) ([]task.Worker, error) {
	request := &model.Request{
		Messages: []model.Message{
			model.NewSystemMessage(fmt.Sprintf(workerSynthesisInstruction, c.maxWorkers)),
			model.NewUserMessage("Subtask:\n" + description),
		},
	}

	var specs []workerSpec
	if _, err := model.InvokeParsed(ctx, c.model, request, &specs, c.retry); err != nil {
		return nil, fmt.Errorf("synthesize workers: %w", err)
	}

	workers := make([]task.Worker, 0, len(specs))
	seen := make(map[string]bool, len(specs))
	for _, spec := range specs {
		if len(workers) == c.maxWorkers {
			break
		}
		name := strings.TrimSpace(spec.Name)
		if name == "" || strings.TrimSpace(spec.Description) == "" {
			continue
		}
		if seen[name] {
			log.Warnf("composer: dropping duplicate synthesized worker %q", name)
			continue
		}
		seen[name] = true
		worker := task.Worker{
			Name:        name,
			Description: strings.TrimSpace(spec.Description),
			Origin:      task.OriginGenerated,
		}
		if err := c.attachTools(ctx, description, &worker); err != nil {
			return nil, err
		}
		workers = append(workers, worker)
	}
	if len(workers) == 0 {
		return nil, errors.New("synthesize workers: no usable roles in reply")
	}
	return workers, nil
}

// attachTools fills the worker's tool specs: the best tool library match at
// or above the threshold, otherwise specs synthesized by the model. Without
// a tool library the worker keeps an empty tool set.
func (c *Composer) attachTools(ctx context.Context, description string, worker *task.Worker) error {
	if c.toolLibrary == nil || c.maxTools == 0 {
		return nil
	}

	match, found, err := c.toolLibrary.Lookup(ctx, worker.Description)
	if err != nil {
		return fmt.Errorf("tool library lookup: %w", err)
	}
	if found && match.Score >= c.threshold {
		log.Debugf("composer: retrieved tool %q (score %.2f) for worker %q",
			match.Entry.Name, match.Score, worker.Name)
		worker.Tools = []task.ToolSpec{{
			Name:        match.Entry.Name,
			Description: match.Entry.Description,
			Origin:      task.OriginRetrieved,
			LibraryKey:  match.Entry.Key,
		}}
		return nil
	}

	request := &model.Request{
		Messages: []model.Message{
			model.NewSystemMessage(fmt.Sprintf(toolSynthesisInstruction, c.maxTools)),
			model.NewUserMessage(fmt.Sprintf("Subtask:\n%s\n\nWorker role %q:\n%s",
				description, worker.Name, worker.Description)),
		},
	}

	var specs []workerSpec
	if _, err := model.InvokeParsed(ctx, c.model, request, &specs, c.retry); err != nil {
		return fmt.Errorf("synthesize tools for worker %q: %w", worker.Name, err)
	}
	for _, spec := range specs {
		if len(worker.Tools) == c.maxTools {
			break
		}
		name := strings.TrimSpace(spec.Name)
		if name == "" {
			continue
		}
		worker.Tools = append(worker.Tools, task.ToolSpec{
			Name:        name,
			Description: strings.TrimSpace(spec.Description),
			Origin:      task.OriginGenerated,
		})
	}
	return nil
}
