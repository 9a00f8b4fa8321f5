//
// Tencent is pleased to support the open source community by making
// trpc-taskforce-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-taskforce-go is licensed under the Apache License Version 2.0.
//
//

// Package redis provides a task snapshot store backed by Redis. Snapshots
// are stored as JSON values with a set of known IDs alongside for listing.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"trpc.group/trpc-go/trpc-taskforce-go/log"
	"trpc.group/trpc-go/trpc-taskforce-go/task"
	"trpc.group/trpc-go/trpc-taskforce-go/taskstore"
)

const (
	defaultKeyPrefix = "taskforce:task:"
	idSetSuffix      = "ids"
)

var errNilSnapshot = errors.New("snapshot is nil or has no ID")

// Store is a Redis-backed taskstore.Store.
type Store struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

type options struct {
	url    string
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// Option configures a Store.
type Option func(*options)

// WithClientURL sets the Redis connection URL.
// scheme: redis://<username>:<password>@<host>:<port>/<db>?<options>
func WithClientURL(url string) Option {
	return func(o *options) {
		o.url = url
	}
}

// WithClient supplies an existing client instead of dialing by URL.
func WithClient(client redis.UniversalClient) Option {
	return func(o *options) {
		o.client = client
	}
}

// WithKeyPrefix sets the key namespace for stored snapshots.
func WithKeyPrefix(prefix string) Option {
	return func(o *options) {
		if prefix != "" {
			o.prefix = prefix
		}
	}
}

// WithTTL expires stored snapshots after the given duration. 0 keeps them
// forever.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		o.ttl = ttl
	}
}

// New creates a Redis-backed store. One of WithClient or WithClientURL is
// required.
func New(opts ...Option) (*Store, error) {
	o := options{prefix: defaultKeyPrefix}
	for _, opt := range opts {
		opt(&o)
	}
	client := o.client
	if client == nil {
		if o.url == "" {
			return nil, errors.New("taskstore redis: no client and no URL configured")
		}
		parsed, err := redis.ParseURL(o.url)
		if err != nil {
			return nil, fmt.Errorf("taskstore redis: parse url: %w", err)
		}
		client = redis.NewClient(parsed)
	}
	return &Store{
		client: client,
		prefix: o.prefix,
		ttl:    o.ttl,
	}, nil
}

var _ taskstore.Store = (*Store)(nil)

// Save stores the JSON-encoded snapshot and records its ID.
func (s *Store) Save(ctx context.Context, snapshot *task.Task) error {
	if snapshot == nil || snapshot.ID == "" {
		return errNilSnapshot
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("taskstore redis: marshal task %s: %w", snapshot.ID, err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(snapshot.ID), data, s.ttl)
	pipe.SAdd(ctx, s.idSetKey(), snapshot.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("taskstore redis: save task %s: %w", snapshot.ID, err)
	}
	return nil
}

// Get loads and decodes the snapshot for the ID.
func (s *Store) Get(ctx context.Context, taskID string) (*task.Task, error) {
	data, err := s.client.Get(ctx, s.key(taskID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, taskstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("taskstore redis: get task %s: %w", taskID, err)
	}
	var t task.Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("taskstore redis: unmarshal task %s: %w", taskID, err)
	}
	return &t, nil
}

// List loads every known snapshot ordered by creation time. IDs whose value
// already expired are skipped and cleaned from the ID set.
func (s *Store) List(ctx context.Context) ([]*task.Task, error) {
	ids, err := s.client.SMembers(ctx, s.idSetKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("taskstore redis: list task IDs: %w", err)
	}
	out := make([]*task.Task, 0, len(ids))
	for _, id := range ids {
		t, err := s.Get(ctx, id)
		if errors.Is(err, taskstore.ErrNotFound) {
			if err := s.client.SRem(ctx, s.idSetKey(), id).Err(); err != nil {
				log.Warnf("taskstore redis: prune expired id %s: %v", id, err)
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Delete removes the snapshot and its ID entry.
func (s *Store) Delete(ctx context.Context, taskID string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key(taskID))
	pipe.SRem(ctx, s.idSetKey(), taskID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("taskstore redis: delete task %s: %w", taskID, err)
	}
	return nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) key(taskID string) string {
	return s.prefix + taskID
}

func (s *Store) idSetKey() string {
	return s.prefix + idSetSuffix
}
