// SPDX-FileCopyrightText: Copyright 2026 forcedev authors
// SPDX-License-Identifier: Apache-2.0

// Package sanitize redacts sensitive keys from value trees before they
// are logged, stored as resources or returned to the MCP client.
package sanitize

import (
	"encoding/json"
	"fmt"
)

// DefaultKeys are always redacted, at any depth, through arrays.
var DefaultKeys = []string{"accessToken", "password", "client_secret", "clientSecret"}

// redactionMarker renders the replacement for a sensitive value. The
// original length is preserved in the marker so operators can sanity-check
// a token without ever seeing it; empty and nil values get the bare marker.
func redactionMarker(v any) string {
	switch val := v.(type) {
	case nil:
		return "[REDACTED]"
	case string:
		if val == "" {
			return "[REDACTED]"
		}
		return fmt.Sprintf("[REDACTED length: %d]", len(val))
	default:
		return fmt.Sprintf("[REDACTED length: %d]", len(fmt.Sprintf("%v", val)))
	}
}

// Sanitize returns a deep copy of v with every DefaultKeys entry plus the
// caller-specified extras replaced by a redaction marker. Matching is
// exact and case-sensitive. The input is never mutated.
//
// v is expected to be a JSON-shaped tree (maps, slices, scalars); anything
// else is returned unchanged.
func Sanitize(v any, extraKeys ...string) any {
	sensitive := make(map[string]struct{}, len(DefaultKeys)+len(extraKeys))
	for _, k := range DefaultKeys {
		sensitive[k] = struct{}{}
	}
	for _, k := range extraKeys {
		sensitive[k] = struct{}{}
	}
	return walk(v, sensitive)
}

func walk(v any, sensitive map[string]struct{}) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			if _, hit := sensitive[k]; hit {
				out[k] = redactionMarker(inner)
				continue
			}
			out[k] = walk(inner, sensitive)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = walk(inner, sensitive)
		}
		return out
	default:
		return v
	}
}

// Struct round-trips an arbitrary struct through JSON and sanitizes the
// resulting tree. Used for typed values like the server state snapshot
// whose JSON field names carry the sensitive keys.
func Struct(v any, extraKeys ...string) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode value for sanitization: %w", err)
	}
	var tree map[string]any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("failed to decode value for sanitization: %w", err)
	}
	out, _ := Sanitize(tree, extraKeys...).(map[string]any)
	return out, nil
}
