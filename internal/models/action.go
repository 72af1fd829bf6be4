// Package models defines the core data structures for ScriptCord.
//
// It includes action definitions, execution paths, persisted records and the
// error taxonomy shared across the interpreter modules.
package models

import (
	"fmt"
	"strconv"
	"strings"
)

// PathSeparator joins the segments of an ExecutionPath.
const PathSeparator = " -> "

// Definition is a single-key mapping from an action type name to its payload.
type Definition = map[string]any

// DefinitionKey returns the type name and payload of a definition.
func DefinitionKey(def any) (string, any, error) {
	m, ok := AsMap(def)
	if !ok {
		return "", nil, fmt.Errorf("action must be a mapping, got %T", def)
	}
	if len(m) != 1 {
		return "", nil, fmt.Errorf("action must have exactly one key, got %d", len(m))
	}
	for k, v := range m {
		return k, v, nil
	}
	return "", nil, nil
}

// NormalizeKey folds case and turns whitespace into underscores.
func NormalizeKey(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), "_")
}

// AsMap converts decoded YAML/JSON mappings into map[string]any.
func AsMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	default:
		return nil, false
	}
}

// AsList converts decoded sequences into []any.
func AsList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case []map[string]any:
		out := make([]any, len(l))
		for i, m := range l {
			out[i] = m
		}
		return out, true
	default:
		return nil, false
	}
}

// Lookup returns m[key], falling back to the underscored and spaced spellings.
func Lookup(m map[string]any, key string) (any, bool) {
	if v, ok := m[key]; ok {
		return v, true
	}
	if v, ok := m[strings.ReplaceAll(key, " ", "_")]; ok {
		return v, true
	}
	v, ok := m[strings.ReplaceAll(key, "_", " ")]
	return v, ok
}

// ExecutionPath identifies an action by its position in the configuration tree.
type ExecutionPath string

// Child appends a segment to the path.
func (p ExecutionPath) Child(name string) ExecutionPath {
	if p == "" {
		return ExecutionPath(name)
	}
	return ExecutionPath(string(p) + PathSeparator + name)
}

// Occurrence appends the disambiguating index used for repeated sibling names.
func (p ExecutionPath) Occurrence(n int) ExecutionPath {
	if n <= 1 {
		return p
	}
	return ExecutionPath(string(p) + " " + strconv.Itoa(n))
}

func (p ExecutionPath) String() string {
	return string(p)
}

// SiblingCounter hands out occurrence indexes for names repeated at one level.
type SiblingCounter map[string]int

// Next returns the 1-based occurrence number for name.
func (c SiblingCounter) Next(name string) int {
	c[name]++
	return c[name]
}
