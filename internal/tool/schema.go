//
// Tencent is pleased to support the open source community by making trpc-taskforce-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-taskforce-go is licensed under the Apache License Version 2.0.
//
//

// Package tool provides internal utilities for tool schema generation.
package tool

import (
	"reflect"
	"strings"

	"trpc.group/trpc-go/trpc-taskforce-go/tool"
)

// GenerateJSONSchema generates a JSON schema from a reflect.Type. Recursive
// struct types are cut off with a bare object schema.
func GenerateJSONSchema(t reflect.Type) *tool.Schema {
	return generateSchema(t, make(map[reflect.Type]bool))
}

func generateSchema(t reflect.Type, visiting map[reflect.Type]bool) *tool.Schema {
	if t == nil {
		return &tool.Schema{Type: "null"}
	}
	switch t.Kind() {
	case reflect.Ptr:
		return generateSchema(t.Elem(), visiting)
	case reflect.Struct:
		if visiting[t] {
			return &tool.Schema{Type: "object"}
		}
		visiting[t] = true
		defer delete(visiting, t)
		return structSchema(t, visiting)
	case reflect.Slice, reflect.Array:
		return &tool.Schema{
			Type:  "array",
			Items: generateSchema(t.Elem(), visiting),
		}
	case reflect.Map:
		return &tool.Schema{
			Type:                 "object",
			AdditionalProperties: generateSchema(t.Elem(), visiting),
		}
	case reflect.String:
		return &tool.Schema{Type: "string"}
	case reflect.Bool:
		return &tool.Schema{Type: "boolean"}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &tool.Schema{Type: "integer"}
	case reflect.Float32, reflect.Float64:
		return &tool.Schema{Type: "number"}
	case reflect.Interface:
		return &tool.Schema{}
	default:
		return &tool.Schema{Type: "string"}
	}
}

func structSchema(t reflect.Type, visiting map[reflect.Type]bool) *tool.Schema {
	schema := &tool.Schema{
		Type:       "object",
		Properties: map[string]*tool.Schema{},
	}
	var required []string
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		name, omitEmpty, skip := parseJSONTag(field)
		if skip {
			continue
		}
		fieldSchema := generateSchema(field.Type, visiting)
		if desc := field.Tag.Get("description"); desc != "" {
			fieldSchema.Description = desc
		}
		schema.Properties[name] = fieldSchema
		if field.Type.Kind() != reflect.Ptr && !omitEmpty {
			required = append(required, name)
		}
	}
	schema.Required = required
	return schema
}

// parseJSONTag resolves the field's wire name from its json tag.
func parseJSONTag(field reflect.StructField) (name string, omitEmpty, skip bool) {
	name = field.Name
	jsonTag := field.Tag.Get("json")
	if jsonTag == "-" {
		return "", false, true
	}
	if jsonTag == "" {
		return name, false, false
	}
	parts := strings.Split(jsonTag, ",")
	if parts[0] != "" {
		name = parts[0]
	}
	for _, p := range parts[1:] {
		if p == "omitempty" {
			omitEmpty = true
		}
	}
	return name, omitEmpty, false
}
