//
// Tencent is pleased to support the open source community by making
// trpc-taskforce-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-taskforce-go is licensed under the Apache License Version 2.0.
//
//

package executor

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-taskforce-go/event"
	"trpc.group/trpc-go/trpc-taskforce-go/model"
	"trpc.group/trpc-go/trpc-taskforce-go/task"
	"trpc.group/trpc-go/trpc-taskforce-go/tool"
	"trpc.group/trpc-go/trpc-taskforce-go/tool/function"
)

const testTaskDescription = "compare three caching strategies"

// turnReply scripts one model invocation.
type turnReply struct {
	content   string
	toolCalls []model.ToolCall
	err       error
}

// scriptModel replays turnReplies in call order, repeating the last one.
type scriptModel struct {
	model.UsageTracker
	replies  []turnReply
	requests []*model.Request
	onCall   func(call int)
}

func (s *scriptModel) Invoke(ctx context.Context, request *model.Request) (*model.Response, error) {
	call := len(s.requests)
	s.requests = append(s.requests, request)
	if s.onCall != nil {
		s.onCall(call)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	i := call
	if i >= len(s.replies) {
		i = len(s.replies) - 1
	}
	reply := s.replies[i]
	if reply.err != nil {
		return nil, reply.err
	}
	return &model.Response{
		Object: model.ObjectTypeChatCompletion,
		Choices: []model.Choice{{
			Message: model.Message{
				Role:      model.RoleAssistant,
				Content:   reply.content,
				ToolCalls: reply.toolCalls,
			},
		}},
	}, nil
}

func (s *scriptModel) Info() model.Info { return model.Info{Name: "script"} }

func fastRetry() model.RetryPolicy {
	return model.RetryPolicy{
		MaxRetries:      1,
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
		CallTimeout:     time.Second,
	}
}

func newTask(t *testing.T) *task.Task {
	t.Helper()
	tk, err := task.New(testTaskDescription)
	require.NoError(t, err)
	return tk
}

func team(names ...string) []task.Worker {
	workers := make([]task.Worker, 0, len(names))
	for _, name := range names {
		workers = append(workers, task.Worker{
			Name:        name,
			Description: "worker " + name,
			Origin:      task.OriginGenerated,
		})
	}
	return workers
}

func TestNewNilModel(t *testing.T) {
	e, err := New(nil)
	assert.Nil(t, e)
	assert.ErrorIs(t, err, errNilModel)
}

func TestExecuteRoundRobinFairness(t *testing.T) {
	m := &scriptModel{replies: []turnReply{{content: "working on it"}}}
	e, err := New(m, WithMaxTurns(7), WithRetryPolicy(fastRetry()))
	require.NoError(t, err)

	st := task.NewSubtask("rank the strategies", team("alice", "bob", "carol"))
	require.NoError(t, e.Execute(context.Background(), newTask(t), st))

	assert.Equal(t, task.SubtaskDone, st.CurrentStatus())
	assert.Equal(t, task.MarkerBudgetExhausted, st.CurrentMarker())

	counts := map[string]int{}
	for _, msg := range st.Messages() {
		counts[msg.Sender]++
	}
	// 7 turns over 3 workers: each speaks 2 or 3 times.
	require.Len(t, st.Messages(), 7)
	for name, n := range counts {
		assert.GreaterOrEqual(t, n, 2, "worker %s", name)
		assert.LessOrEqual(t, n, 3, "worker %s", name)
	}
	// Strict rotation starting from the first assigned worker.
	assert.Equal(t, "alice", st.Messages()[0].Sender)
	assert.Equal(t, "bob", st.Messages()[1].Sender)
	assert.Equal(t, "carol", st.Messages()[2].Sender)
	assert.Equal(t, "alice", st.Messages()[3].Sender)
}

func TestExecuteTerminationToken(t *testing.T) {
	m := &scriptModel{replies: []turnReply{
		{content: "first finding"},
		{content: "second finding"},
		{content: "all strategies ranked. TERMINATE"},
	}}
	e, err := New(m, WithRetryPolicy(fastRetry()))
	require.NoError(t, err)

	st := task.NewSubtask("rank the strategies", team("alice", "bob"))
	require.NoError(t, e.Execute(context.Background(), newTask(t), st))

	assert.Equal(t, task.SubtaskDone, st.CurrentStatus())
	assert.Equal(t, task.MarkerNone, st.CurrentMarker())
	assert.Equal(t, 3, st.TurnCount())
	// The transcript keeps the message carrying the token.
	assert.Contains(t, st.Messages()[2].Content, "TERMINATE")
}

func TestExecuteHandoff(t *testing.T) {
	m := &scriptModel{replies: []turnReply{
		{content: "carol should verify this.\nNEXT: carol"},
		{content: "verified. TERMINATE"},
	}}
	e, err := New(m, WithRetryPolicy(fastRetry()))
	require.NoError(t, err)

	st := task.NewSubtask("rank the strategies", team("alice", "bob", "carol"))
	require.NoError(t, e.Execute(context.Background(), newTask(t), st))

	msgs := st.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "alice", msgs[0].Sender)
	// The handoff skips bob, who round-robin would have picked.
	assert.Equal(t, "carol", msgs[1].Sender)
}

func TestExecuteHandoffUnknownNameFallsBack(t *testing.T) {
	m := &scriptModel{replies: []turnReply{
		{content: "over to you.\nNEXT: mallory"},
		{content: "taking it from here. TERMINATE"},
	}}
	e, err := New(m, WithRetryPolicy(fastRetry()))
	require.NoError(t, err)

	st := task.NewSubtask("rank the strategies", team("alice", "bob"))
	require.NoError(t, e.Execute(context.Background(), newTask(t), st))

	msgs := st.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "bob", msgs[1].Sender)
}

func TestExecuteSelfHandoffFallsBack(t *testing.T) {
	m := &scriptModel{replies: []turnReply{
		{content: "let me keep going.\nNEXT: alice"},
		{content: "picking this up. TERMINATE"},
	}}
	e, err := New(m, WithRetryPolicy(fastRetry()))
	require.NoError(t, err)

	st := task.NewSubtask("rank the strategies", team("alice", "bob"))
	require.NoError(t, e.Execute(context.Background(), newTask(t), st))

	msgs := st.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "alice", msgs[0].Sender)
	// A worker cannot hand the floor to itself; round-robin takes over.
	assert.Equal(t, "bob", msgs[1].Sender)
}

func TestExecuteNoWorkers(t *testing.T) {
	m := &scriptModel{replies: []turnReply{{content: "unused"}}}
	e, err := New(m, WithRetryPolicy(fastRetry()))
	require.NoError(t, err)

	st := task.NewSubtask("rank the strategies", nil)
	require.NoError(t, e.Execute(context.Background(), newTask(t), st))

	assert.Equal(t, task.SubtaskDone, st.CurrentStatus())
	assert.Equal(t, task.MarkerUnreachable, st.CurrentMarker())
	assert.Empty(t, m.requests)
}

func TestExecuteAllWorkersUnreachable(t *testing.T) {
	m := &scriptModel{replies: []turnReply{
		{err: errors.New("invalid request: model rejected the prompt")},
	}}
	e, err := New(m, WithRetryPolicy(fastRetry()))
	require.NoError(t, err)

	st := task.NewSubtask("rank the strategies", team("alice", "bob"))
	require.NoError(t, e.Execute(context.Background(), newTask(t), st))

	assert.Equal(t, task.SubtaskDone, st.CurrentStatus())
	assert.Equal(t, task.MarkerUnreachable, st.CurrentMarker())
	assert.Zero(t, st.TurnCount())
	// One non-retryable call per worker.
	assert.Len(t, m.requests, 2)
}

func TestExecuteSkipsUnreachableWorker(t *testing.T) {
	m := &scriptModel{replies: []turnReply{
		{err: errors.New("invalid request: model rejected the prompt")},
		{content: "carrying on alone. TERMINATE"},
	}}
	e, err := New(m, WithRetryPolicy(fastRetry()))
	require.NoError(t, err)

	st := task.NewSubtask("rank the strategies", team("alice", "bob"))
	require.NoError(t, e.Execute(context.Background(), newTask(t), st))

	msgs := st.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "bob", msgs[0].Sender)
	assert.Equal(t, task.MarkerNone, st.CurrentMarker())
}

func TestExecuteCancelledMidTurn(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := &scriptModel{
		replies: []turnReply{{content: "first finding"}},
		onCall: func(call int) {
			if call == 1 {
				cancel()
			}
		},
	}
	e, err := New(m, WithRetryPolicy(fastRetry()))
	require.NoError(t, err)

	st := task.NewSubtask("rank the strategies", team("alice", "bob"))
	err = e.Execute(ctx, newTask(t), st)
	assert.ErrorIs(t, err, context.Canceled)

	// Nothing is appended past the signal point.
	assert.Equal(t, 1, st.TurnCount())
	assert.Equal(t, task.SubtaskDone, st.CurrentStatus())
	assert.Equal(t, task.MarkerCancelled, st.CurrentMarker())
}

func TestExecuteStartedSubtaskRejected(t *testing.T) {
	m := &scriptModel{replies: []turnReply{{content: "unused"}}}
	e, err := New(m, WithRetryPolicy(fastRetry()))
	require.NoError(t, err)

	st := task.NewSubtask("rank the strategies", team("alice"))
	require.NoError(t, st.Start())
	err = e.Execute(context.Background(), newTask(t), st)
	assert.ErrorIs(t, err, task.ErrSubtaskNotPending)
}

func TestExecuteToolCalls(t *testing.T) {
	type lookupArgs struct {
		Key string `json:"key"`
	}
	var gotKey string
	lookup := function.NewFunctionTool(
		func(_ context.Context, args lookupArgs) (string, error) {
			gotKey = args.Key
			return "42 entries", nil
		},
		function.WithName("cache_stats"),
		function.WithDescription("reads cache statistics"),
	)
	registry := tool.NewRegistry()
	require.NoError(t, registry.Register("alice", lookup))

	m := &scriptModel{replies: []turnReply{
		{
			content: "checking the stats",
			toolCalls: []model.ToolCall{{
				Type: "function",
				ID:   "call-1",
				Function: model.FunctionDefinitionParam{
					Name:      "cache_stats",
					Arguments: []byte(`{"key":"lru"}`),
				},
			}},
		},
		{content: "lru holds 42 entries. TERMINATE"},
	}}
	e, err := New(m, WithRegistry(registry), WithRetryPolicy(fastRetry()))
	require.NoError(t, err)

	st := task.NewSubtask("rank the strategies", team("alice"))
	require.NoError(t, e.Execute(context.Background(), newTask(t), st))

	assert.Equal(t, "lru", gotKey)
	// The tool roundtrip happens inside one turn.
	require.Equal(t, 1, st.TurnCount())
	assert.Contains(t, st.Messages()[0].Content, "42 entries")

	// The second invocation sees the tool result in its conversation.
	require.Len(t, m.requests, 2)
	final := m.requests[1].Messages
	require.NotEmpty(t, final)
	toolMsg := final[len(final)-1]
	assert.Equal(t, model.RoleTool, toolMsg.Role)
	assert.Equal(t, "call-1", toolMsg.ToolID)
	assert.Contains(t, toolMsg.Content, "42 entries")
}

func TestExecuteToolRoundtripCap(t *testing.T) {
	call := model.ToolCall{
		Type: "function",
		ID:   "call-1",
		Function: model.FunctionDefinitionParam{
			Name:      "cache_stats",
			Arguments: []byte(`{}`),
		},
	}
	m := &scriptModel{replies: []turnReply{
		{content: "still digging. TERMINATE", toolCalls: []model.ToolCall{call}},
	}}
	e, err := New(m, WithMaxToolRoundtrips(1), WithRetryPolicy(fastRetry()))
	require.NoError(t, err)

	st := task.NewSubtask("rank the strategies", team("alice"))
	require.NoError(t, e.Execute(context.Background(), newTask(t), st))

	// One roundtrip allowed: two invocations, then the content is used as-is.
	assert.Len(t, m.requests, 2)
	require.Equal(t, 1, st.TurnCount())
	// With no registry, the tool result reports unavailability.
	msgs := m.requests[1].Messages
	assert.Contains(t, msgs[len(msgs)-1].Content, "not available")
}

func TestExecuteEmitsEvents(t *testing.T) {
	ch := make(chan *event.Event, 16)
	m := &scriptModel{replies: []turnReply{{content: "all set. TERMINATE"}}}
	e, err := New(m, WithEventChannel(ch), WithRetryPolicy(fastRetry()))
	require.NoError(t, err)

	tk := newTask(t)
	st := task.NewSubtask("rank the strategies", team("alice"))
	require.NoError(t, e.Execute(context.Background(), tk, st))
	close(ch)

	var objects []string
	for ev := range ch {
		objects = append(objects, ev.Object)
		assert.Equal(t, tk.ID, ev.TaskID)
		assert.Equal(t, st.ID, ev.SubtaskID)
	}
	assert.Equal(t, []string{event.ObjectTurn, event.ObjectTermination}, objects)
}

func TestParseHandoff(t *testing.T) {
	tests := []struct {
		content string
		name    string
		ok      bool
	}{
		{"done here.\nNEXT: bob", "bob", true},
		{"done here.\nnext: bob", "bob", true},
		{"NEXT: carol ", "carol", true},
		{"NEXT:", "", false},
		{"the next step is caching", "", false},
		{"NEXT: bob\nmore text after", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.content), func(t *testing.T) {
			name, ok := parseHandoff(tt.content)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.name, name)
		})
	}
}

func TestTurnInstructionMentionsTeamAndToken(t *testing.T) {
	m := &scriptModel{replies: []turnReply{{content: "ok. TERMINATE"}}}
	e, err := New(m, WithRetryPolicy(fastRetry()))
	require.NoError(t, err)

	st := task.NewSubtask("rank the strategies", team("alice", "bob"))
	require.NoError(t, e.Execute(context.Background(), newTask(t), st))

	require.NotEmpty(t, m.requests)
	system := m.requests[0].Messages[0]
	require.Equal(t, model.RoleSystem, system.Role)
	assert.Contains(t, system.Content, testTaskDescription)
	assert.Contains(t, system.Content, "rank the strategies")
	assert.Contains(t, system.Content, "bob")
	assert.Contains(t, system.Content, "TERMINATE")
	assert.Contains(t, system.Content, "NEXT:")
}
