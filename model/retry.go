//
// Tencent is pleased to support the open source community by making trpc-taskforce-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-taskforce-go is licensed under the Apache License Version 2.0.
//
//

package model

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"trpc.group/trpc-go/trpc-taskforce-go/log"
)

// CallError describes a failed model invocation: a timeout, a rate limit,
// malformed output, or a provider-side error.
type CallError struct {
	// Type is one of the ErrorType* constants.
	Type string
	// Message is a human readable description.
	Message string
	// Err is the underlying cause, may be nil.
	Err error
}

// NewCallError creates a CallError with the given classification.
func NewCallError(errType, message string, err error) *CallError {
	return &CallError{Type: errType, Message: message, Err: err}
}

// Error implements the error interface.
func (e *CallError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("model call failed (%s): %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("model call failed (%s): %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause.
func (e *CallError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure is transient. Timeouts, rate limits,
// malformed output, and provider-side errors are retried; invalid requests
// are not.
func (e *CallError) Retryable() bool {
	switch e.Type {
	case ErrorTypeTimeout, ErrorTypeRateLimit, ErrorTypeMalformedOutput, ErrorTypeAPIError:
		return true
	default:
		return false
	}
}

// IsRetryable determines if an error from a model invocation is transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	// A per-invocation deadline is a transient failure; an external
	// cancellation is not.
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var callErr *CallError
	if errors.As(err, &callErr) {
		return callErr.Retryable()
	}
	return isRetryableMessage(err.Error())
}

// isRetryableMessage classifies untyped provider errors by message. Matching
// is kept precise to avoid false positives.
func isRetryableMessage(msg string) bool {
	msg = strings.ToLower(msg)
	if strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "i/o timeout") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "too many requests") ||
		msg == "eof" ||
		strings.HasSuffix(msg, ": eof") {
		return true
	}
	for _, code := range []string{"408", "429", "500", "502", "503", "504"} {
		if strings.Contains(msg, "status "+code) ||
			strings.Contains(msg, "status: "+code) ||
			strings.Contains(msg, "code "+code) ||
			strings.Contains(msg, "code: "+code) {
			return true
		}
	}
	return false
}

// RetryPolicy bounds retries of transient model call failures.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// InitialInterval is the first backoff interval.
	InitialInterval time.Duration
	// MaxInterval caps the backoff interval.
	MaxInterval time.Duration
	// CallTimeout bounds each individual attempt. 0 disables the
	// per-attempt timeout.
	CallTimeout time.Duration
}

// Default retry bounds for model invocations.
const (
	defaultMaxRetries      = 2
	defaultInitialInterval = 500 * time.Millisecond
	defaultMaxInterval     = 5 * time.Second
	defaultCallTimeout     = 60 * time.Second
)

// DefaultRetryPolicy returns the retry policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:      defaultMaxRetries,
		InitialInterval: defaultInitialInterval,
		MaxInterval:     defaultMaxInterval,
		CallTimeout:     defaultCallTimeout,
	}
}

// InvokeWithRetry calls m.Invoke under the policy: each attempt runs with its
// own timeout, transient failures are retried with exponential backoff, and a
// cancelled parent context aborts promptly.
func InvokeWithRetry(ctx context.Context, m Model, request *Request, policy RetryPolicy) (*Response, error) {
	attempt := 0
	operation := func() (*Response, error) {
		attempt++
		return invokeOnce(ctx, m, request, policy, attempt)
	}
	return retryUnder(ctx, policy, operation)
}

// invokeOnce performs a single attempt with the per-call timeout applied and
// classifies the outcome for the retry loop: a cancelled parent context and
// non-transient failures become permanent.
func invokeOnce(ctx context.Context, m Model, request *Request, policy RetryPolicy, attempt int) (*Response, error) {
	callCtx := ctx
	cancel := context.CancelFunc(func() {})
	if policy.CallTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, policy.CallTimeout)
	}
	rsp, err := m.Invoke(callCtx, request)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		if !IsRetryable(err) {
			return nil, backoff.Permanent(err)
		}
		log.Debugf("model %s: transient call failure on attempt %d: %v",
			m.Info().Name, attempt, err)
		return nil, err
	}
	if rsp.Error != nil {
		callErr := NewCallError(rsp.Error.Type, rsp.Error.Message, nil)
		if !callErr.Retryable() {
			return nil, backoff.Permanent(callErr)
		}
		log.Debugf("model %s: transient provider error on attempt %d: %s",
			m.Info().Name, attempt, rsp.Error.Message)
		return nil, callErr
	}
	return rsp, nil
}

// retryUnder runs the operation with the policy's exponential backoff and
// attempt bound.
func retryUnder(ctx context.Context, policy RetryPolicy, operation func() (*Response, error)) (*Response, error) {
	expo := backoff.NewExponentialBackOff()
	if policy.InitialInterval > 0 {
		expo.InitialInterval = policy.InitialInterval
	}
	if policy.MaxInterval > 0 {
		expo.MaxInterval = policy.MaxInterval
	}
	maxTries := policy.MaxRetries + 1
	if maxTries < 1 {
		maxTries = 1
	}
	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(uint(maxTries)),
	)
}
