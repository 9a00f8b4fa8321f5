//
// Tencent is pleased to support the open source community by making trpc-taskforce-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-taskforce-go is licensed under the Apache License Version 2.0.
//
//

// Package library defines the read-only catalogs of reusable worker role and
// tool specifications consulted during team assembly. Catalogs are keyed by
// name and queried by similarity; a miss is not an error, it triggers the
// caller's synthesize fallback.
package library

import (
	"context"
	"errors"
)

// Kind distinguishes worker-role entries from tool entries.
type Kind string

// Entry kinds.
const (
	KindWorker Kind = "worker"
	KindTool   Kind = "tool"
)

var (
	// ErrDuplicateKey is returned when loading a catalog with repeated keys.
	ErrDuplicateKey = errors.New("duplicate library entry key")
	// ErrMissingKey is returned when a catalog entry has no key.
	ErrMissingKey = errors.New("library entry key is required")
)

// Entry is a read-only catalog item describing a reusable worker role or
// tool specification. Entries are never mutated by the orchestration core.
type Entry struct {
	// Key uniquely identifies the entry within its library.
	Key string `json:"key" yaml:"key"`
	// Name is the human name given to workers built from this entry.
	Name string `json:"name" yaml:"name"`
	// Description is the capability profile.
	Description string `json:"description" yaml:"description"`
	// Kind marks the entry as a worker role or a tool specification.
	Kind Kind `json:"kind" yaml:"kind"`
	// Tags carry extra retrieval vocabulary.
	Tags []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// Match is a retrieval result: an entry and its similarity score in [0, 1].
type Match struct {
	Entry Entry
	Score float64
}

// Library is the retrieval capability consumed during team assembly.
type Library interface {
	// Name identifies the library.
	Name() string

	// Lookup returns the highest scoring entry for the query. found is
	// false only when the library holds no entries. Equal queries against
	// an unchanged library return equal results.
	Lookup(ctx context.Context, query string) (match Match, found bool, err error)
}
