// SPDX-FileCopyrightText: Copyright 2026 forcedev authors
// SPDX-License-Identifier: Apache-2.0

// Package tools defines the tool surface: the static registry of
// contracts, the dispatcher that wraps every handler with guarding,
// validation and confirmation, and the handlers themselves.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/xeipuuv/gojsonschema"
)

// HandlerFunc is one tool implementation. Handlers return protocol-level
// results; a Go error is reserved for faults the dispatcher converts to
// the error envelope.
type HandlerFunc func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)

// Definition is one registered tool contract.
type Definition struct {
	Tool    mcp.Tool
	Handler HandlerFunc

	// Guarded tools require completed initialization and validated
	// permissions before dispatch.
	Guarded bool

	// Destructive reports whether this particular call modifies the org
	// and therefore needs user confirmation. Nil means never.
	Destructive func(req mcp.CallToolRequest) bool

	// ConfirmMessage renders the confirmation question for a destructive
	// call.
	ConfirmMessage func(req mcp.CallToolRequest) string

	schema *gojsonschema.Schema
}

// toolNamePattern rejects names that could smuggle path segments into
// dynamic lookup.
var toolNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// Registry is the static tool table, built once at startup.
type Registry struct {
	order       []string
	definitions map[string]*Definition
}

// NewRegistry compiles the definitions' input schemas and indexes them by
// name. Invalid names or schemas are a startup failure.
func NewRegistry(defs []Definition) (*Registry, error) {
	r := &Registry{definitions: make(map[string]*Definition, len(defs))}
	for i := range defs {
		def := defs[i]
		name := def.Tool.Name
		if !toolNamePattern.MatchString(name) {
			return nil, fmt.Errorf("invalid tool name %q", name)
		}
		if _, dup := r.definitions[name]; dup {
			return nil, fmt.Errorf("duplicate tool name %q", name)
		}

		raw, err := json.Marshal(def.Tool.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("tool %q: failed to encode input schema: %w", name, err)
		}
		schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
		if err != nil {
			return nil, fmt.Errorf("tool %q: invalid input schema: %w", name, err)
		}
		def.schema = schema

		r.definitions[name] = &def
		r.order = append(r.order, name)
	}
	return r, nil
}

// Lookup resolves a definition by name. Names failing the pattern are
// rejected before the map is consulted.
func (r *Registry) Lookup(name string) (*Definition, bool) {
	if !toolNamePattern.MatchString(name) {
		return nil, false
	}
	def, ok := r.definitions[name]
	return def, ok
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Definitions returns all definitions in registration order.
func (r *Registry) Definitions() []*Definition {
	out := make([]*Definition, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.definitions[name])
	}
	return out
}

// validateArgs checks the call arguments against the compiled contract
// schema. A nil argument map validates as an empty object.
func (d *Definition) validateArgs(args map[string]any) error {
	if d.schema == nil {
		return nil
	}
	if args == nil {
		args = map[string]any{}
	}
	result, err := d.schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return fmt.Errorf("argument validation failed: %w", err)
	}
	if !result.Valid() {
		first := result.Errors()[0]
		return fmt.Errorf("invalid arguments: %s", first.String())
	}
	return nil
}
