//
// Tencent is pleased to support the open source community by making
// trpc-taskforce-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-taskforce-go is licensed under the Apache License Version 2.0.
//
//

package composer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-taskforce-go/library"
	"trpc.group/trpc-go/trpc-taskforce-go/model"
	"trpc.group/trpc-go/trpc-taskforce-go/task"
)

const testTaskDescription = "write a report on recent solar storm activity"

// scriptModel replays canned replies in order, repeating the last one.
type scriptModel struct {
	model.UsageTracker
	replies  []string
	requests []*model.Request
	err      error
}

func (s *scriptModel) Invoke(_ context.Context, request *model.Request) (*model.Response, error) {
	s.requests = append(s.requests, request)
	if s.err != nil {
		return nil, s.err
	}
	i := len(s.requests) - 1
	if i >= len(s.replies) {
		i = len(s.replies) - 1
	}
	return &model.Response{
		Object: model.ObjectTypeChatCompletion,
		Choices: []model.Choice{
			{Message: model.NewAssistantMessage(s.replies[i])},
		},
	}, nil
}

func (s *scriptModel) Info() model.Info { return model.Info{Name: "script"} }

type fakeLibrary struct {
	name    string
	match   library.Match
	found   bool
	err     error
	queries []string
}

func (f *fakeLibrary) Name() string { return f.name }

func (f *fakeLibrary) Lookup(_ context.Context, query string) (library.Match, bool, error) {
	f.queries = append(f.queries, query)
	return f.match, f.found, f.err
}

func fastRetry() model.RetryPolicy {
	return model.RetryPolicy{
		MaxRetries:      2,
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

func TestNewNilModel(t *testing.T) {
	c, err := New(nil)
	assert.Nil(t, c)
	assert.ErrorIs(t, err, errNilModel)
}

func TestComposeNilTask(t *testing.T) {
	c, err := New(&scriptModel{replies: []string{`[]`}})
	require.NoError(t, err)
	_, err = c.Compose(context.Background(), nil, nil)
	assert.ErrorIs(t, err, errNilTask)
}

func TestComposeSynthesizesWorkers(t *testing.T) {
	m := &scriptModel{replies: []string{
		`["gather recent observations", "draft the report"]`,
		`[{"name":"researcher","description":"finds and checks sources"}]`,
		`[{"name":"writer","description":"drafts prose"},{"name":"editor","description":"tightens the draft"}]`,
	}}
	c, err := New(m, WithRetryPolicy(fastRetry()))
	require.NoError(t, err)

	subtasks, err := c.Compose(context.Background(), newTask(t), nil)
	require.NoError(t, err)
	require.Len(t, subtasks, 2)

	assert.Equal(t, "gather recent observations", subtasks[0].Description)
	require.Len(t, subtasks[0].Workers, 1)
	assert.Equal(t, "researcher", subtasks[0].Workers[0].Name)
	assert.Equal(t, task.OriginGenerated, subtasks[0].Workers[0].Origin)
	assert.Empty(t, subtasks[0].Workers[0].LibraryKey)

	require.Len(t, subtasks[1].Workers, 2)
	assert.Equal(t, "writer", subtasks[1].Workers[0].Name)
	assert.Equal(t, "editor", subtasks[1].Workers[1].Name)

	// One decomposition call plus one synthesis call per subtask.
	assert.Len(t, m.requests, 3)
	assert.Equal(t, task.SubtaskPending, subtasks[0].CurrentStatus())
}

func TestComposeRetrievalFirst(t *testing.T) {
	m := &scriptModel{replies: []string{`["summarize the findings"]`}}
	lib := &fakeLibrary{
		name:  "agents",
		found: true,
		match: library.Match{
			Entry: library.Entry{Key: "summarizer-v2", Name: "summarizer", Description: "condenses text"},
			Score: 0.9,
		},
	}
	c, err := New(m, WithAgentLibrary(lib), WithRetryPolicy(fastRetry()))
	require.NoError(t, err)

	subtasks, err := c.Compose(context.Background(), newTask(t), nil)
	require.NoError(t, err)
	require.Len(t, subtasks, 1)
	require.Len(t, subtasks[0].Workers, 1)

	worker := subtasks[0].Workers[0]
	assert.Equal(t, "summarizer", worker.Name)
	assert.Equal(t, task.OriginRetrieved, worker.Origin)
	assert.Equal(t, "summarizer-v2", worker.LibraryKey)

	// A good match means no synthesis call.
	assert.Len(t, m.requests, 1)
	assert.Equal(t, []string{"summarize the findings"}, lib.queries)
}

func TestComposeLowScoreFallsBackToSynthesis(t *testing.T) {
	m := &scriptModel{replies: []string{
		`["summarize the findings"]`,
		`[{"name":"summarizer","description":"condenses text"}]`,
	}}
	lib := &fakeLibrary{
		name:  "agents",
		found: true,
		match: library.Match{Entry: library.Entry{Key: "welder", Name: "welder"}, Score: 0.05},
	}
	c, err := New(m, WithAgentLibrary(lib), WithRetryPolicy(fastRetry()))
	require.NoError(t, err)

	subtasks, err := c.Compose(context.Background(), newTask(t), nil)
	require.NoError(t, err)
	require.Len(t, subtasks, 1)
	assert.Equal(t, task.OriginGenerated, subtasks[0].Workers[0].Origin)
	assert.Len(t, m.requests, 2)
}

func TestComposeEmptyDecomposition(t *testing.T) {
	c, err := New(&scriptModel{replies: []string{`[]`}}, WithRetryPolicy(fastRetry()))
	require.NoError(t, err)

	subtasks, err := c.Compose(context.Background(), newTask(t), nil)
	assert.Nil(t, subtasks)
	assert.ErrorIs(t, err, ErrEmptyDecomposition)
}

func TestComposeSkipsNegativelyReportedDescriptions(t *testing.T) {
	failed := task.NewSubtask("gather recent observations", nil)
	reports := []*task.Report{
		task.NewReport(failed, "sources were stale", task.RecommendationRevise),
	}

	m := &scriptModel{replies: []string{
		`["gather recent observations", "interview an astronomer"]`,
		`[{"name":"interviewer","description":"asks questions"}]`,
	}}
	c, err := New(m, WithRetryPolicy(fastRetry()))
	require.NoError(t, err)

	subtasks, err := c.Compose(context.Background(), newTask(t), reports)
	require.NoError(t, err)
	require.Len(t, subtasks, 1)
	assert.Equal(t, "interview an astronomer", subtasks[0].Description)

	// The prompt tells the model what not to repeat.
	prompt := m.requests[0].Messages[1].Content
	assert.Contains(t, prompt, "Do not repeat")
	assert.Contains(t, prompt, "gather recent observations")
}

func TestComposeAllDescriptionsExcluded(t *testing.T) {
	failed := task.NewSubtask("gather recent observations", nil)
	reports := []*task.Report{
		task.NewReport(failed, "sources were stale", task.RecommendationRevise),
	}

	m := &scriptModel{replies: []string{`["gather recent observations"]`}}
	c, err := New(m, WithRetryPolicy(fastRetry()))
	require.NoError(t, err)

	_, err = c.Compose(context.Background(), newTask(t), reports)
	assert.ErrorIs(t, err, ErrEmptyDecomposition)
}

func TestComposeRetriesMalformedDecomposition(t *testing.T) {
	m := &scriptModel{replies: []string{
		"I would rather chat about the weather.",
		`["summarize the findings"]`,
		`[{"name":"summarizer","description":"condenses text"}]`,
	}}
	c, err := New(m, WithRetryPolicy(fastRetry()))
	require.NoError(t, err)

	subtasks, err := c.Compose(context.Background(), newTask(t), nil)
	require.NoError(t, err)
	require.Len(t, subtasks, 1)
	assert.Len(t, m.requests, 3)
}

func TestComposeAttachesRetrievedTool(t *testing.T) {
	m := &scriptModel{replies: []string{
		`["summarize the findings"]`,
		`[{"name":"summarizer","description":"condenses text"}]`,
	}}
	tools := &fakeLibrary{
		name:  "tools",
		found: true,
		match: library.Match{
			Entry: library.Entry{Key: "wordcount-v1", Name: "wordcount", Description: "counts words"},
			Score: 0.8,
		},
	}
	c, err := New(m, WithToolLibrary(tools), WithRetryPolicy(fastRetry()))
	require.NoError(t, err)

	subtasks, err := c.Compose(context.Background(), newTask(t), nil)
	require.NoError(t, err)
	require.Len(t, subtasks[0].Workers, 1)
	require.Len(t, subtasks[0].Workers[0].Tools, 1)

	spec := subtasks[0].Workers[0].Tools[0]
	assert.Equal(t, "wordcount", spec.Name)
	assert.Equal(t, task.OriginRetrieved, spec.Origin)
	assert.Equal(t, "wordcount-v1", spec.LibraryKey)
}

func TestComposeSynthesizesToolSpecs(t *testing.T) {
	m := &scriptModel{replies: []string{
		`["summarize the findings"]`,
		`[{"name":"summarizer","description":"condenses text"}]`,
		`[{"name":"outline","description":"builds an outline"},{"name":"glossary","description":"collects terms"},{"name":"extra","description":"over the cap"}]`,
	}}
	tools := &fakeLibrary{name: "tools", found: false}
	c, err := New(m, WithToolLibrary(tools), WithMaxTools(2), WithRetryPolicy(fastRetry()))
	require.NoError(t, err)

	subtasks, err := c.Compose(context.Background(), newTask(t), nil)
	require.NoError(t, err)
	require.Len(t, subtasks[0].Workers, 1)

	specs := subtasks[0].Workers[0].Tools
	require.Len(t, specs, 2)
	assert.Equal(t, "outline", specs[0].Name)
	assert.Equal(t, task.OriginGenerated, specs[0].Origin)
	assert.Equal(t, "glossary", specs[1].Name)
}

func TestComposeNoToolLibraryMeansNoTools(t *testing.T) {
	m := &scriptModel{replies: []string{
		`["summarize the findings"]`,
		`[{"name":"summarizer","description":"condenses text"}]`,
	}}
	c, err := New(m, WithRetryPolicy(fastRetry()))
	require.NoError(t, err)

	subtasks, err := c.Compose(context.Background(), newTask(t), nil)
	require.NoError(t, err)
	assert.Empty(t, subtasks[0].Workers[0].Tools)
	assert.Len(t, m.requests, 2)
}

func TestComposeDropsDuplicateSynthesizedWorkers(t *testing.T) {
	m := &scriptModel{replies: []string{
		`["summarize the findings"]`,
		`[{"name":"summarizer","description":"condenses text"},{"name":"summarizer","description":"again"},{"name":"","description":"nameless"}]`,
	}}
	c, err := New(m, WithRetryPolicy(fastRetry()))
	require.NoError(t, err)

	subtasks, err := c.Compose(context.Background(), newTask(t), nil)
	require.NoError(t, err)
	require.Len(t, subtasks[0].Workers, 1)
	assert.Equal(t, "summarizer", subtasks[0].Workers[0].Name)
}
