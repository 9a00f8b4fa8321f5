//
// Tencent is pleased to support the open source community by making trpc-taskforce-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-taskforce-go is licensed under the Apache License Version 2.0.
//
//

// Package llmjson extracts JSON values from model output.
//
// Models asked for JSON frequently wrap it in markdown code fences or
// surround it with prose. This package locates the first balanced JSON
// object or array in a string and decodes it, so callers do not have to
// depend on models emitting bare JSON.
package llmjson

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrNoJSON is returned when the input contains no JSON object or array.
var ErrNoJSON = errors.New("llmjson: no JSON value found")

const codeFence = "```"

// Decode extracts the first JSON object or array in text and unmarshals it
// into v. Input that fails to parse as-is gets one repair attempt before the
// error is reported.
func Decode(text string, v any) error {
	raw, err := Extract(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), v); err == nil {
		return nil
	}
	return json.Unmarshal([]byte(Repair(raw)), v)
}

// Extract returns the first balanced JSON object or array found in text.
// Markdown code fences are stripped before scanning.
func Extract(text string) (string, error) {
	text = stripFences(text)
	start := -1
	for i, r := range text {
		if r == '{' || r == '[' {
			start = i
			break
		}
	}
	if start < 0 {
		return "", ErrNoJSON
	}
	end, ok := scanBalanced(text[start:])
	if !ok {
		return "", ErrNoJSON
	}
	return text[start : start+end], nil
}

// stripFences removes the outermost markdown code fence, including an
// optional language tag on the opening fence line.
func stripFences(text string) string {
	open := strings.Index(text, codeFence)
	if open < 0 {
		return text
	}
	rest := text[open+len(codeFence):]
	// Skip a language tag such as "json" up to the end of the fence line.
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		firstLine := strings.TrimSpace(rest[:nl])
		if firstLine != "" && !strings.ContainsAny(firstLine, "{[") {
			rest = rest[nl+1:]
		}
	}
	if close := strings.Index(rest, codeFence); close >= 0 {
		rest = rest[:close]
	}
	return rest
}

// scanBalanced returns the exclusive end offset of the balanced JSON value
// starting at s[0], which must be '{' or '['. String literals and escape
// sequences are honored so braces inside strings do not affect depth.
func scanBalanced(s string) (int, bool) {
	var (
		depth    int
		inString bool
		escaped  bool
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return i + 1, true
			}
		}
	}
	return 0, false
}
