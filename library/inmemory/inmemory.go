//
// Tencent is pleased to support the open source community by making trpc-taskforce-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-taskforce-go is licensed under the Apache License Version 2.0.
//
//

// Package inmemory provides an in-memory library backed by a lexical index.
// Scoring is the IDF-weighted fraction of query tokens present in an entry,
// which keeps lookups deterministic and dependency-free.
package inmemory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/panjf2000/ants/v2"

	"trpc.group/trpc-go/trpc-taskforce-go/library"
)

// maxIndexParallel bounds concurrent entry tokenization during index build.
const maxIndexParallel = 4

// Library is an immutable in-memory library. All state is built once in New;
// lookups only read, so they are safe for concurrent use.
type Library struct {
	name    string
	entries []library.Entry
	docs    []map[string]bool
	idf     map[string]float64
}

// options holds configuration for the in-memory library.
type options struct {
	parallelism int
}

// Option configures the in-memory library.
type Option func(*options)

// WithParallelism sets the number of workers used to build the index.
func WithParallelism(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.parallelism = n
		}
	}
}

// New builds an in-memory library over the given entries.
func New(name string, entries []library.Entry, opts ...Option) (*Library, error) {
	o := options{parallelism: maxIndexParallel}
	for _, opt := range opts {
		opt(&o)
	}

	lib := &Library{
		name:    name,
		entries: make([]library.Entry, len(entries)),
		docs:    make([]map[string]bool, len(entries)),
	}
	copy(lib.entries, entries)

	pool, err := ants.NewPool(o.parallelism)
	if err != nil {
		return nil, fmt.Errorf("create index worker pool: %w", err)
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for i := range lib.entries {
		wg.Add(1)
		idx := i
		if err := pool.Submit(func() {
			defer wg.Done()
			lib.docs[idx] = tokenSet(entryText(lib.entries[idx]))
		}); err != nil {
			wg.Done()
			return nil, fmt.Errorf("submit index job: %w", err)
		}
	}
	wg.Wait()

	lib.idf = buildIDF(lib.docs)
	return lib, nil
}

// Name identifies the library.
func (l *Library) Name() string {
	return l.name
}

// Lookup returns the highest scoring entry for the query. Ties are broken by
// catalog order so repeated lookups return the same entry.
func (l *Library) Lookup(ctx context.Context, query string) (library.Match, bool, error) {
	if err := ctx.Err(); err != nil {
		return library.Match{}, false, err
	}
	if len(l.entries) == 0 {
		return library.Match{}, false, nil
	}

	queryTokens := tokenSet(query)
	best := 0
	bestScore := l.score(queryTokens, 0)
	for i := 1; i < len(l.entries); i++ {
		if s := l.score(queryTokens, i); s > bestScore {
			best, bestScore = i, s
		}
	}
	return library.Match{Entry: l.entries[best], Score: bestScore}, true, nil
}

// score computes the IDF-weighted fraction of query tokens covered by the
// entry at idx. An empty query scores 0 against everything.
func (l *Library) score(queryTokens map[string]bool, idx int) float64 {
	if len(queryTokens) == 0 {
		return 0
	}
	doc := l.docs[idx]
	var covered, total float64
	for token := range queryTokens {
		weight := l.idf[token]
		if weight == 0 {
			// Unknown tokens carry the maximum weight so queries full of
			// out-of-catalog vocabulary score low everywhere.
			weight = math.Log(float64(len(l.docs)) + 1)
		}
		total += weight
		if doc[token] {
			covered += weight
		}
	}
	if total == 0 {
		return 0
	}
	return covered / total
}

// entryText concatenates the searchable fields of an entry.
func entryText(e library.Entry) string {
	parts := []string{e.Key, e.Name, e.Description}
	parts = append(parts, e.Tags...)
	return strings.Join(parts, " ")
}

// buildIDF computes smoothed inverse document frequencies over the token
// sets of all entries.
func buildIDF(docs []map[string]bool) map[string]float64 {
	df := make(map[string]int)
	for _, doc := range docs {
		for token := range doc {
			df[token]++
		}
	}
	idf := make(map[string]float64, len(df))
	n := float64(len(docs))
	for token, count := range df {
		idf[token] = math.Log(1 + n/float64(count))
	}
	return idf
}

// stopwords are excluded from token sets; they carry no retrieval signal.
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "in": true, "is": true,
	"it": true, "of": true, "on": true, "or": true, "that": true, "the": true,
	"this": true, "to": true, "with": true,
}

// tokenSet lowercases text and splits it on non-alphanumeric runes, dropping
// stopwords and single-rune fragments.
func tokenSet(text string) map[string]bool {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		if len(f) < 2 || stopwords[f] {
			continue
		}
		set[f] = true
	}
	return set
}

// Entries returns the catalog entries in index order. The returned slice is
// a copy; the library itself is immutable.
func (l *Library) Entries() []library.Entry {
	out := make([]library.Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Tokens returns the sorted vocabulary of the index. Intended for tests and
// debugging.
func (l *Library) Tokens() []string {
	tokens := make([]string, 0, len(l.idf))
	for token := range l.idf {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)
	return tokens
}
