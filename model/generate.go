//
// Tencent is pleased to support the open source community by making
// trpc-taskforce-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-taskforce-go is licensed under the Apache License Version 2.0.
//
//

package model

import (
	"context"

	"trpc.group/trpc-go/trpc-taskforce-go/internal/llmjson"
	"trpc.group/trpc-go/trpc-taskforce-go/log"
)

// Validator lets a parse target reject decoded values it cannot accept.
// InvokeParsed treats a validation failure as malformed output.
type Validator interface {
	Validate() error
}

// InvokeParsed calls the model under the retry policy and decodes the first
// JSON value found in the reply into v. A reply without decodable JSON, or
// one v rejects through Validate, is malformed output, which is transient
// under the policy: the call is retried like any other transient failure
// until the attempt bound is reached.
func InvokeParsed(ctx context.Context, m Model, request *Request, v any, policy RetryPolicy) (*Response, error) {
	attempt := 0
	operation := func() (*Response, error) {
		attempt++
		rsp, err := invokeOnce(ctx, m, request, policy, attempt)
		if err != nil {
			return nil, err
		}
		content := rsp.Message().Content
		if content == "" {
			log.Debugf("model %s: empty reply on attempt %d", m.Info().Name, attempt)
			return nil, NewCallError(ErrorTypeMalformedOutput, "empty reply", nil)
		}
		if err := llmjson.Decode(content, v); err != nil {
			log.Debugf("model %s: undecodable reply on attempt %d: %v",
				m.Info().Name, attempt, err)
			return nil, NewCallError(ErrorTypeMalformedOutput, "reply is not the expected JSON", err)
		}
		if validator, ok := v.(Validator); ok {
			if err := validator.Validate(); err != nil {
				log.Debugf("model %s: rejected reply on attempt %d: %v",
					m.Info().Name, attempt, err)
				return nil, NewCallError(ErrorTypeMalformedOutput, "reply failed validation", err)
			}
		}
		return rsp, nil
	}
	return retryUnder(ctx, policy, operation)
}
