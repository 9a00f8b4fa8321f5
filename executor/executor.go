//
// Tencent is pleased to support the open source community by making
// trpc-taskforce-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-taskforce-go is licensed under the Apache License Version 2.0.
//
//

// Package executor drives the multi-party conversation of one subtask: a
// turn-taking loop over the assembled workers with round-robin order,
// name-based handoffs, tool execution, and bounded termination.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"trpc.group/trpc-go/trpc-taskforce-go/event"
	itelemetry "trpc.group/trpc-go/trpc-taskforce-go/internal/telemetry"
	"trpc.group/trpc-go/trpc-taskforce-go/log"
	"trpc.group/trpc-go/trpc-taskforce-go/model"
	"trpc.group/trpc-go/trpc-taskforce-go/task"
	atrace "trpc.group/trpc-go/trpc-taskforce-go/telemetry/trace"
	"trpc.group/trpc-go/trpc-taskforce-go/tool"
)

var (
	errNilModel   = errors.New("executor: model is nil")
	errNilTask    = errors.New("executor: task is nil")
	errNilSubtask = errors.New("executor: subtask is nil")
)

// handoffPrefix starts the directive line a worker uses to name the next
// speaker.
const handoffPrefix = "next:"

const turnInstructionFormat = `You are %q, one worker in a team solving a subtask through conversation.
Your role: %s

Overall task:
%s

Subtask:
%s

Team:
%s
Add one useful step to the conversation, speaking only as %q.
To hand the floor to a teammate, end your message with a line "NEXT: <worker name>".
Once the subtask is fully solved, include the word %s in your message.`

// Executor runs subtask conversations against a single call capability.
type Executor struct {
	model             model.Model
	registry          *tool.Registry
	maxTurns          int
	maxToolRoundtrips int
	terminationToken  string
	contextTokens     int
	tailor            model.TailoringStrategy
	retry             model.RetryPolicy
	events            chan<- *event.Event
}

// New creates an Executor backed by the given model.
func New(m model.Model, opts ...Option) (*Executor, error) {
	if m == nil {
		return nil, errNilModel
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Executor{
		model:             m,
		registry:          o.registry,
		maxTurns:          o.maxTurns,
		maxToolRoundtrips: o.maxToolRoundtrips,
		terminationToken:  o.terminationToken,
		contextTokens:     o.contextTokens,
		tailor:            o.tailor,
		retry:             o.retry,
		events:            o.events,
	}, nil
}

// Execute transitions the subtask pending, in_progress, done, appending one
// transcript message per turn. Termination is checked after every turn in
// order: termination token, turn budget, no reachable workers. Cancellation
// between turns finishes the subtask with the cancelled marker and returns
// the context error.
func (e *Executor) Execute(ctx context.Context, t *task.Task, st *task.Subtask) error {
	if t == nil {
		return errNilTask
	}
	if st == nil {
		return errNilSubtask
	}
	if err := st.Start(); err != nil {
		return fmt.Errorf("executor: start subtask %s: %w", st.ID, err)
	}
	log.Infof("executor: subtask %s started with %d workers", st.ID, len(st.Workers))

	ctx, span := atrace.Tracer.Start(ctx, itelemetry.NewExecuteSubtaskSpanName(st.ID))
	defer span.End()
	start := time.Now()

	err := e.converse(ctx, t, st)
	itelemetry.TraceSubtask(span, t, st, err)
	itelemetry.RecordSubtaskDuration(ctx, t.ID, string(st.CurrentMarker()), time.Since(start))
	itelemetry.AddSubtaskTurnCnt(ctx, t.ID, int64(st.TurnCount()))
	return err
}

// converse runs the turn loop until a termination condition closes the
// transcript.
func (e *Executor) converse(ctx context.Context, t *task.Task, st *task.Subtask) error {
	unreachable := make(map[string]bool)
	cursor := 0
	for {
		if ctx.Err() != nil {
			return e.finish(ctx, t, st, task.MarkerCancelled, ctx.Err())
		}
		speaker, ok := e.nextSpeaker(st, &cursor, unreachable)
		if !ok {
			return e.finish(ctx, t, st, task.MarkerUnreachable, nil)
		}

		content, err := e.invokeTurn(ctx, t, st, speaker)
		if err != nil {
			if ctx.Err() != nil {
				return e.finish(ctx, t, st, task.MarkerCancelled, ctx.Err())
			}
			log.Warnf("executor: worker %q unreachable on subtask %s: %v",
				speaker.Name, st.ID, err)
			unreachable[speaker.Name] = true
			continue
		}

		msg := task.NewMessage(speaker.Name, content)
		if err := st.Append(msg); err != nil {
			return fmt.Errorf("executor: append turn: %w", err)
		}
		e.emit(ctx, event.New(t.ID, speaker.Name,
			event.WithObject(event.ObjectTurn),
			event.WithSubtaskID(st.ID),
			event.WithTurn(&msg),
			event.WithContent(content),
		))

		if strings.Contains(content, e.terminationToken) {
			return e.finish(ctx, t, st, task.MarkerNone, nil)
		}
		if st.TurnCount() >= e.maxTurns {
			return e.finish(ctx, t, st, task.MarkerBudgetExhausted, nil)
		}
	}
}

// finish closes the subtask with the marker, emits the termination event,
// and returns cause so cancellation propagates to the caller.
func (e *Executor) finish(ctx context.Context, t *task.Task, st *task.Subtask, marker task.Marker, cause error) error {
	if err := st.Finish(marker); err != nil {
		return fmt.Errorf("executor: finish subtask %s: %w", st.ID, err)
	}
	log.Infof("executor: subtask %s done after %d turns (marker %q)",
		st.ID, st.TurnCount(), marker)
	e.emit(ctx, event.New(t.ID, "executor",
		event.WithObject(event.ObjectTermination),
		event.WithSubtaskID(st.ID),
		event.WithMarker(marker),
		event.WithContent(terminationReason(marker)),
	))
	return cause
}

// nextSpeaker picks the worker for the next turn: a reachable handoff target
// named by the previous message, otherwise round-robin. Handoffs to unknown
// or unreachable workers and to the previous speaker itself fall back to
// round-robin. The handoff path leaves the round-robin cursor untouched.
func (e *Executor) nextSpeaker(st *task.Subtask, cursor *int, unreachable map[string]bool) (task.Worker, bool) {
	workers := st.Workers
	if len(workers) == 0 || len(unreachable) >= len(workers) {
		return task.Worker{}, false
	}

	if msgs := st.Messages(); len(msgs) > 0 {
		last := msgs[len(msgs)-1]
		if name, ok := parseHandoff(last.Content); ok {
			w, found := st.WorkerByName(name)
			switch {
			case !found || unreachable[name]:
				log.Debugf("executor: handoff to unknown or unreachable worker %q, using round-robin", name)
			case name == last.Sender:
				log.Debugf("executor: worker %q handed the floor to itself, using round-robin", name)
			default:
				return w, true
			}
		}
	}

	for range workers {
		w := workers[*cursor%len(workers)]
		*cursor++
		if !unreachable[w.Name] {
			return w, true
		}
	}
	return task.Worker{}, false
}

// parseHandoff extracts the next speaker from a trailing "NEXT: name" line.
func parseHandoff(content string) (string, bool) {
	lines := strings.Split(strings.TrimSpace(content), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	if len(last) < len(handoffPrefix) || !strings.EqualFold(last[:len(handoffPrefix)], handoffPrefix) {
		return "", false
	}
	name := strings.TrimSpace(last[len(handoffPrefix):])
	return name, name != ""
}

// invokeTurn produces the speaker's message, executing requested tool calls
// within the same turn until the model answers with content or the roundtrip
// cap is reached.
func (e *Executor) invokeTurn(ctx context.Context, t *task.Task, st *task.Subtask, speaker task.Worker) (string, error) {
	messages := e.buildMessages(t, st, speaker)
	var tools map[string]tool.Tool
	if e.registry != nil {
		if set := e.registry.Tools(speaker.Name); len(set) > 0 {
			tools = set
		}
	}

	modelName := e.model.Info().Name
	for roundtrip := 0; ; roundtrip++ {
		messages = e.tailorMessages(ctx, messages)
		request := &model.Request{Messages: messages, Tools: tools}

		chatStart := time.Now()
		_, span := atrace.Tracer.Start(ctx, itelemetry.NewChatSpanName(modelName))
		rsp, err := model.InvokeWithRetry(ctx, e.model, request, e.retry)
		itelemetry.TraceChat(span, speaker.Name, request, rsp, err)
		span.End()
		itelemetry.IncChatRequestCnt(ctx, modelName, speaker.Name, err)
		itelemetry.RecordChatOperationDuration(ctx, modelName, speaker.Name, time.Since(chatStart))
		if err != nil {
			return "", err
		}
		itelemetry.RecordChatTokenUsage(ctx, modelName, speaker.Name, rsp.Usage)
		msg := rsp.Message()
		if !rsp.IsToolCallResponse() {
			return msg.Content, nil
		}
		if roundtrip >= e.maxToolRoundtrips {
			log.Warnf("executor: worker %q hit the tool roundtrip cap on subtask %s",
				speaker.Name, st.ID)
			return msg.Content, nil
		}
		messages = append(messages, msg)
		for _, call := range msg.ToolCalls {
			result := e.executeToolCall(ctx, speaker.Name, call)
			messages = append(messages, model.NewToolMessage(call.ID, call.Function.Name, result))
		}
	}
}

// buildMessages renders the speaker's view of the conversation: its own
// turns as assistant messages, teammates' turns as attributed user messages.
func (e *Executor) buildMessages(t *task.Task, st *task.Subtask, speaker task.Worker) []model.Message {
	transcript := st.Messages()
	messages := make([]model.Message, 0, len(transcript)+2)
	messages = append(messages, model.NewSystemMessage(e.turnInstruction(t, st, speaker)))
	if len(transcript) == 0 {
		messages = append(messages, model.NewUserMessage("Start working on the subtask."))
		return messages
	}
	for _, m := range transcript {
		var msg model.Message
		if m.Sender == speaker.Name {
			msg = model.NewAssistantMessage(m.Content)
		} else {
			msg = model.NewUserMessage(fmt.Sprintf("%s: %s", m.Sender, m.Content))
		}
		msg.Name = m.Sender
		messages = append(messages, msg)
	}
	return messages
}

func (e *Executor) turnInstruction(t *task.Task, st *task.Subtask, speaker task.Worker) string {
	var roster strings.Builder
	for _, w := range st.Workers {
		fmt.Fprintf(&roster, "- %s: %s\n", w.Name, w.Description)
	}
	return fmt.Sprintf(turnInstructionFormat,
		speaker.Name, speaker.Description,
		t.Description, st.Description,
		roster.String(),
		speaker.Name, e.terminationToken,
	)
}

// tailorMessages fits the conversation into the context token budget.
func (e *Executor) tailorMessages(ctx context.Context, messages []model.Message) []model.Message {
	if e.contextTokens <= 0 || e.tailor == nil {
		return messages
	}
	tailored, err := e.tailor.TailorMessages(ctx, messages, e.contextTokens)
	if err != nil {
		log.Warnf("executor: tailoring failed, sending the full conversation: %v", err)
		return messages
	}
	return tailored
}

// executeToolCall runs one requested tool through the capability registry.
// Failures come back as result text so the model can react to them.
func (e *Executor) executeToolCall(ctx context.Context, worker string, call model.ToolCall) string {
	name := call.Function.Name
	ctx, span := atrace.Tracer.Start(ctx, itelemetry.NewExecuteToolSpanName(name))
	defer span.End()
	start := time.Now()

	rendered, err := e.callTool(ctx, worker, call)
	itelemetry.TraceToolCall(span, worker, call, rendered, err)
	itelemetry.IncExecuteToolRequestCnt(ctx, worker, name, err)
	itelemetry.RecordExecuteToolOperationDuration(ctx, worker, name, time.Since(start))
	return rendered
}

func (e *Executor) callTool(ctx context.Context, worker string, call model.ToolCall) (string, error) {
	name := call.Function.Name
	if e.registry == nil {
		err := fmt.Errorf("tool %q is not available", name)
		return err.Error(), err
	}
	result, err := e.registry.Call(ctx, worker, name, call.Function.Arguments)
	if err != nil {
		log.Warnf("executor: tool %q failed for worker %q: %v", name, worker, err)
		return fmt.Sprintf("tool %q failed: %v", name, err), err
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprintf("%v", result), nil
	}
	return string(data), nil
}

func (e *Executor) emit(ctx context.Context, ev *event.Event) {
	if err := event.Emit(ctx, e.events, ev); err != nil {
		log.Debugf("executor: dropping event %s: %v", ev.Object, err)
	}
}

func terminationReason(marker task.Marker) string {
	switch marker {
	case task.MarkerBudgetExhausted:
		return "turn budget exhausted"
	case task.MarkerUnreachable:
		return "no reachable workers remain"
	case task.MarkerCancelled:
		return "cancelled"
	default:
		return "termination token received"
	}
}
