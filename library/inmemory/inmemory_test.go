//
// Tencent is pleased to support the open source community by making trpc-taskforce-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-taskforce-go is licensed under the Apache License Version 2.0.
//
//

package inmemory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-taskforce-go/library"
)

const testLibraryName = "agents"

func testEntries() []library.Entry {
	return []library.Entry{
		{
			Key:         "data-analyst",
			Name:        "Data Analyst",
			Description: "analyzes datasets, computes statistics, and charts trends",
			Kind:        library.KindWorker,
			Tags:        []string{"statistics", "pandas"},
		},
		{
			Key:         "copy-editor",
			Name:        "Copy Editor",
			Description: "polishes prose, fixes grammar, and tightens wording",
			Kind:        library.KindWorker,
			Tags:        []string{"writing"},
		},
		{
			Key:         "web-researcher",
			Name:        "Web Researcher",
			Description: "searches the web and collects relevant sources",
			Kind:        library.KindWorker,
			Tags:        []string{"search"},
		},
	}
}

func TestLookupRanksBySimilarity(t *testing.T) {
	lib, err := New(testLibraryName, testEntries())
	require.NoError(t, err)
	assert.Equal(t, testLibraryName, lib.Name())

	match, found, err := lib.Lookup(context.Background(), "analyze statistics in a dataset")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "data-analyst", match.Entry.Key)
	assert.Greater(t, match.Score, 0.3)

	match, found, err = lib.Lookup(context.Background(), "fix the grammar of this prose")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "copy-editor", match.Entry.Key)
}

func TestLookupIdempotent(t *testing.T) {
	lib, err := New(testLibraryName, testEntries())
	require.NoError(t, err)

	const query = "search the web for sources"
	first, found, err := lib.Lookup(context.Background(), query)
	require.NoError(t, err)
	require.True(t, found)

	second, found, err := lib.Lookup(context.Background(), query)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, first, second)
}

func TestLookupLowScoreForUnrelatedQuery(t *testing.T) {
	lib, err := New(testLibraryName, testEntries())
	require.NoError(t, err)

	match, found, err := lib.Lookup(context.Background(), "pilot a spacecraft through reentry")
	require.NoError(t, err)
	require.True(t, found)
	assert.Less(t, match.Score, 0.25, "out-of-catalog vocabulary must score below the usual threshold")
}

func TestLookupEmptyLibrary(t *testing.T) {
	lib, err := New(testLibraryName, nil)
	require.NoError(t, err)

	_, found, err := lib.Lookup(context.Background(), "anything")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestLookupCancelledContext(t *testing.T) {
	lib, err := New(testLibraryName, testEntries())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = lib.Lookup(ctx, "anything")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEntriesReturnsCopy(t *testing.T) {
	lib, err := New(testLibraryName, testEntries())
	require.NoError(t, err)

	entries := lib.Entries()
	require.Len(t, entries, 3)
	entries[0].Key = "tampered"

	match, found, err := lib.Lookup(context.Background(), "analyze statistics in a dataset")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "data-analyst", match.Entry.Key)
}

func TestIndexVocabulary(t *testing.T) {
	lib, err := New(testLibraryName, testEntries(), WithParallelism(2))
	require.NoError(t, err)

	tokens := lib.Tokens()
	assert.Contains(t, tokens, "statistics")
	assert.Contains(t, tokens, "grammar")
	// Stopwords and single-rune fragments never enter the vocabulary.
	assert.NotContains(t, tokens, "the")
	assert.NotContains(t, tokens, "a")
}
