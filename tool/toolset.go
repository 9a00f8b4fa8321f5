//
// Tencent is pleased to support the open source community by making trpc-taskforce-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-taskforce-go is licensed under the Apache License Version 2.0.
//
//

package tool

// ToolFilter defines a filter function for tools based on their names.
type ToolFilter func(string) bool

// FilterTools returns the tools whose names pass the filter.
func FilterTools(tools []Tool, filter ToolFilter) []Tool {
	if filter == nil {
		return tools
	}
	var result []Tool
	for _, t := range tools {
		if filter(t.Declaration().Name) {
			result = append(result, t)
		}
	}
	return result
}

// IncludeNames creates a ToolFilter that includes only the specified tool names.
func IncludeNames(names ...string) ToolFilter {
	allowed := make(map[string]bool)
	for _, name := range names {
		allowed[name] = true
	}
	return func(name string) bool {
		return allowed[name]
	}
}

// ExcludeNames creates a ToolFilter that excludes the specified tool names.
func ExcludeNames(names ...string) ToolFilter {
	excluded := make(map[string]bool)
	for _, name := range names {
		excluded[name] = true
	}
	return func(name string) bool {
		return !excluded[name]
	}
}
