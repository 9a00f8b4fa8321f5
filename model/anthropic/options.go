//
// Tencent is pleased to support the open source community by making
// trpc-taskforce-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-taskforce-go is licensed under the Apache License Version 2.0.
//
//

package anthropic

import (
	"github.com/anthropics/anthropic-sdk-go/option"
)

type options struct {
	apiKey           string
	baseURL          string
	anthropicOptions []option.RequestOption
}

func defaultOptions() options {
	return options{}
}

// Option configures the model.
type Option func(*options)

// WithAPIKey sets the API key. Without it the SDK falls back to the
// ANTHROPIC_API_KEY environment variable.
func WithAPIKey(key string) Option {
	return func(o *options) {
		o.apiKey = key
	}
}

// WithBaseURL points the client at an Anthropic-compatible endpoint.
func WithBaseURL(url string) Option {
	return func(o *options) {
		o.baseURL = url
	}
}

// WithAnthropicOptions passes request options straight to the underlying SDK
// client, for headers, HTTP client overrides, and the like.
func WithAnthropicOptions(opts ...option.RequestOption) Option {
	return func(o *options) {
		o.anthropicOptions = append(o.anthropicOptions, opts...)
	}
}
