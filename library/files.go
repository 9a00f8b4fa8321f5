//
// Tencent is pleased to support the open source community by making trpc-taskforce-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-taskforce-go is licensed under the Apache License Version 2.0.
//
//

package library

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// catalogFile is the on-disk catalog format shared by JSON and YAML files.
type catalogFile struct {
	Entries []Entry `json:"entries" yaml:"entries"`
}

// LoadFile reads a catalog file. The format is chosen by extension:
// .json, .yaml, or .yml. The file holds an object with an "entries" list.
func LoadFile(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}

	var catalog catalogFile
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		if err := json.Unmarshal(data, &catalog); err != nil {
			return nil, fmt.Errorf("parse catalog %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &catalog); err != nil {
			return nil, fmt.Errorf("parse catalog %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("catalog %s: unsupported extension %q", path, ext)
	}

	if err := validateEntries(catalog.Entries); err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return catalog.Entries, nil
}

// validateEntries rejects entries with missing or duplicate keys.
func validateEntries(entries []Entry) error {
	seen := make(map[string]bool, len(entries))
	for i, e := range entries {
		if e.Key == "" {
			return fmt.Errorf("entry %d: %w", i, ErrMissingKey)
		}
		if seen[e.Key] {
			return fmt.Errorf("entry %q: %w", e.Key, ErrDuplicateKey)
		}
		seen[e.Key] = true
	}
	return nil
}
