//
// Tencent is pleased to support the open source community by making
// trpc-taskforce-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-taskforce-go is licensed under the Apache License Version 2.0.
//
//

// Package runner drives the orchestration loop: compose a subtask plan,
// execute each subtask's conversation, reflect on the outcome, and repeat
// under a bounded outer-iteration budget until a reflection declares the
// task done or the budget runs out.
package runner

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"trpc.group/trpc-go/trpc-taskforce-go/composer"
	"trpc.group/trpc-go/trpc-taskforce-go/event"
	"trpc.group/trpc-go/trpc-taskforce-go/executor"
	itelemetry "trpc.group/trpc-go/trpc-taskforce-go/internal/telemetry"
	"trpc.group/trpc-go/trpc-taskforce-go/log"
	"trpc.group/trpc-go/trpc-taskforce-go/model"
	"trpc.group/trpc-go/trpc-taskforce-go/reflector"
	"trpc.group/trpc-go/trpc-taskforce-go/task"
	"trpc.group/trpc-go/trpc-taskforce-go/taskstore"
	atrace "trpc.group/trpc-go/trpc-taskforce-go/telemetry/trace"
)

// Event authors.
const (
	authorRunner    = "runner"
	authorComposer  = "composer"
	authorReflector = "reflector"
)

// completionEmitTimeout bounds delivery of the final event when the run
// context is already cancelled.
const completionEmitTimeout = 5 * time.Second

var errNilModel = errors.New("runner: model is nil")

// Runner owns the Composer -> Executor -> Reflector loop. One Runner may
// serve many concurrent Run calls; each run gets its own Task, components,
// and event channel.
type Runner struct {
	model         model.Model
	store         taskstore.Store
	maxIterations int
	bufferSize    int
	composerOpts  []composer.Option
	executorOpts  []executor.Option
	reflectorOpts []reflector.Option

	ownedStore bool
	closeOnce  sync.Once
}

// New creates a Runner backed by the given model. Without WithTaskStore the
// runner creates and owns an in-process store.
func New(m model.Model, opts ...Option) (*Runner, error) {
	if m == nil {
		return nil, errNilModel
	}
	o := newOptions(opts...)
	ownedStore := false
	if o.store == nil {
		o.store = newOwnedStore()
		ownedStore = true
	}
	return &Runner{
		model:         m,
		store:         o.store,
		maxIterations: o.maxIterations,
		bufferSize:    o.bufferSize,
		composerOpts:  o.composerOpts,
		executorOpts:  o.executorOpts,
		reflectorOpts: o.reflectorOpts,
		ownedStore:    ownedStore,
	}, nil
}

// Store returns the snapshot store the runner persists to.
func (r *Runner) Store() taskstore.Store {
	return r.store
}

// Close releases resources the runner created itself. Stores supplied by the
// caller stay open. Safe to call more than once.
func (r *Runner) Close() error {
	var closeErr error
	r.closeOnce.Do(func() {
		if r.ownedStore && r.store != nil {
			if err := r.store.Close(); err != nil {
				closeErr = err
				log.Errorf("runner: close task store: %v", err)
			}
		}
	})
	return closeErr
}

// Run starts solving the description and returns the event stream for the
// run. The channel closes after the final completion event; the terminal
// snapshot is then available from the store under the task ID carried by
// every event. Cancelling ctx fails the task with the cancelled marker.
func (r *Runner) Run(ctx context.Context, description string) (<-chan *event.Event, error) {
	tk, err := task.New(description)
	if err != nil {
		return nil, fmt.Errorf("runner: %w", err)
	}

	events := make(chan *event.Event, r.bufferSize)
	comp, err := composer.New(r.model, r.composerOpts...)
	if err != nil {
		return nil, err
	}
	refl, err := reflector.New(r.model, r.reflectorOpts...)
	if err != nil {
		return nil, err
	}
	execOpts := append(append([]executor.Option{}, r.executorOpts...),
		executor.WithEventChannel(events))
	exec, err := executor.New(r.model, execOpts...)
	if err != nil {
		return nil, err
	}

	go r.run(ctx, tk, comp, exec, refl, events)
	return events, nil
}

// run is the per-run goroutine: it drives the loop, then always delivers a
// final completion event and closes the channel, even on panic.
func (r *Runner) run(ctx context.Context, tk *task.Task, comp *composer.Composer,
	exec *executor.Executor, refl *reflector.Reflector, events chan *event.Event) {
	defer close(events)
	defer func() {
		if rec := recover(); rec != nil {
			log.Errorf("runner: panic in run loop: %v\n%s", rec, string(debug.Stack()))
			if !tk.Terminal() {
				if err := tk.Fail(task.MarkerError); err != nil {
					log.Errorf("runner: fail task after panic: %v", err)
				}
			}
			r.emitCompletion(ctx, tk, events)
		}
	}()

	ctx, span := atrace.Tracer.Start(ctx, itelemetry.OperationRunTask)
	defer span.End()

	iterations, err := r.drive(ctx, tk, comp, exec, refl, events)
	itelemetry.TraceRun(span, tk, iterations, err)
	r.emitCompletion(ctx, tk, events)
}

// drive loops compose, execute, reflect until the task reaches a terminal
// status or the iteration budget runs out. It returns the number of
// iterations entered and the error that stopped the run, if any.
func (r *Runner) drive(ctx context.Context, tk *task.Task, comp *composer.Composer,
	exec *executor.Executor, refl *reflector.Reflector, events chan *event.Event) (int, error) {

	r.emit(ctx, events, event.New(tk.ID, authorRunner,
		event.WithObject(event.ObjectTaskCreated),
		event.WithContent(tk.Description),
	))

	iterations := 0
	for iteration := 1; iteration <= r.maxIterations; iteration++ {
		iterations = iteration
		if ctx.Err() != nil {
			return iterations, r.fail(ctx, tk, task.MarkerCancelled, ctx.Err())
		}

		// Every iteration starts with a fresh plan: the previous one ended
		// with revise-decomposition or ran out of subtasks without a done.
		if err := r.compose(ctx, tk, comp, events); err != nil {
			if ctx.Err() != nil {
				return iterations, r.fail(ctx, tk, task.MarkerCancelled, ctx.Err())
			}
			r.emit(ctx, events, event.NewErrorEvent(tk.ID, authorComposer,
				model.ErrorTypeRunError, err.Error()))
			return iterations, r.fail(ctx, tk, task.MarkerError, err)
		}

		done, err := r.runPlan(ctx, tk, exec, refl, events)
		if err != nil {
			if ctx.Err() != nil {
				return iterations, r.fail(ctx, tk, task.MarkerCancelled, ctx.Err())
			}
			r.emit(ctx, events, event.NewErrorEvent(tk.ID, authorRunner,
				model.ErrorTypeRunError, err.Error()))
			return iterations, r.fail(ctx, tk, task.MarkerError, err)
		}
		if done {
			if err := tk.Complete(); err != nil {
				return iterations, fmt.Errorf("runner: complete task: %w", err)
			}
		}

		r.persist(ctx, tk)
		r.emit(ctx, events, event.New(tk.ID, authorRunner,
			event.WithObject(event.ObjectIteration),
			event.WithStatus(tk.CurrentStatus()),
			event.WithContent(fmt.Sprintf("iteration %d of %d", iteration, r.maxIterations)),
		))
		if tk.Terminal() {
			return iterations, nil
		}
	}

	return iterations, r.fail(ctx, tk, task.MarkerBudgetExhausted, nil)
}

// compose produces the next plan from the task description and the report
// history, installs it, and announces the plan and each assembled worker.
func (r *Runner) compose(ctx context.Context, tk *task.Task, comp *composer.Composer,
	events chan *event.Event) error {
	subtasks, err := comp.Compose(ctx, tk, tk.ReportHistory())
	if err != nil {
		return err
	}
	tk.SetSubtasks(subtasks)

	descriptions := make([]string, 0, len(subtasks))
	for _, st := range subtasks {
		descriptions = append(descriptions, st.Description)
	}
	r.emit(ctx, events, event.New(tk.ID, authorComposer,
		event.WithObject(event.ObjectDecomposition),
		event.WithSubtasks(descriptions),
		event.WithContent(fmt.Sprintf("planned %d subtasks", len(subtasks))),
	))
	for _, st := range subtasks {
		for _, w := range st.Workers {
			worker := w
			r.emit(ctx, events, event.New(tk.ID, authorComposer,
				event.WithObject(event.ObjectWorkerAssembled),
				event.WithSubtaskID(st.ID),
				event.WithWorker(&worker),
				event.WithContent(fmt.Sprintf("worker %q (%s)", w.Name, w.Origin)),
			))
		}
	}
	return nil
}

// runPlan executes and reflects the pending subtasks in order. It returns
// done=true when a reflection declares the task complete, and returns with
// done=false when a reflection asks for a revised decomposition or the plan
// runs out. A malformed reflection counts as revise-decomposition.
func (r *Runner) runPlan(ctx context.Context, tk *task.Task, exec *executor.Executor,
	refl *reflector.Reflector, events chan *event.Event) (bool, error) {
	for _, st := range tk.PendingSubtasks() {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if err := exec.Execute(ctx, tk, st); err != nil {
			return false, err
		}

		report, err := refl.Reflect(ctx, tk, st)
		if err != nil {
			if errors.Is(err, reflector.ErrMalformedRecommendation) {
				log.Warnf("runner: task %s subtask %s: %v, revising the decomposition",
					tk.ID, st.ID, err)
				return false, nil
			}
			return false, err
		}
		tk.AppendReport(report)
		r.emit(ctx, events, event.New(tk.ID, authorReflector,
			event.WithObject(event.ObjectReport),
			event.WithSubtaskID(st.ID),
			event.WithReport(report),
			event.WithContent(report.Summary),
		))

		switch report.Recommendation {
		case task.RecommendationDone:
			return true, nil
		case task.RecommendationRevise:
			return false, nil
		}
	}
	return false, nil
}

// fail moves the task to failed with the marker, persists the terminal
// snapshot, and passes cause through to the caller.
func (r *Runner) fail(ctx context.Context, tk *task.Task, marker task.Marker, cause error) error {
	if err := tk.Fail(marker); err != nil {
		log.Errorf("runner: fail task %s: %v", tk.ID, err)
	} else {
		log.Infof("runner: task %s failed (marker %q)", tk.ID, marker)
	}
	r.persist(ctx, tk)
	return cause
}

// persist saves a snapshot of the task. Persistence is detached from the run
// context so the terminal state of a cancelled run is still recorded; a
// failing store is logged, never fatal to the run.
func (r *Runner) persist(ctx context.Context, tk *task.Task) {
	if r.store == nil {
		return
	}
	if err := r.store.Save(context.WithoutCancel(ctx), tk.Snapshot()); err != nil {
		log.Errorf("runner: persist task %s: %v", tk.ID, err)
	}
}

func (r *Runner) emit(ctx context.Context, events chan *event.Event, ev *event.Event) {
	if err := event.Emit(ctx, events, ev); err != nil {
		log.Debugf("runner: dropping event %s: %v", ev.Object, err)
	}
}

// emitCompletion delivers the final event of the run. Delivery survives a
// cancelled run context but gives up after a bounded wait if nobody reads.
func (r *Runner) emitCompletion(ctx context.Context, tk *task.Task, events chan *event.Event) {
	ev := event.New(tk.ID, authorRunner,
		event.WithObject(event.ObjectCompletion),
		event.WithStatus(tk.CurrentStatus()),
		event.WithMarker(tk.CurrentMarker()),
		event.WithContent(completionContent(tk)),
		event.WithDone(true),
	)
	if err := event.EmitWithTimeout(context.WithoutCancel(ctx), events, ev, completionEmitTimeout); err != nil {
		log.Warnf("runner: dropping completion event for task %s: %v", tk.ID, err)
	}
}

func completionContent(tk *task.Task) string {
	if tk.CurrentStatus() == task.StatusCompleted {
		return "task completed"
	}
	if marker := tk.CurrentMarker(); marker != task.MarkerNone {
		return fmt.Sprintf("task failed: %s", marker)
	}
	return "task failed"
}
