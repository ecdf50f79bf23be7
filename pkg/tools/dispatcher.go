// SPDX-FileCopyrightText: Copyright 2026 forcedev authors
// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/forcedev/sfmcp/pkg/config"
	"github.com/forcedev/sfmcp/pkg/logger"
	"github.com/forcedev/sfmcp/pkg/state"
	"github.com/forcedev/sfmcp/pkg/telemetry"
)

// Elicitor sends a server-initiated elicitation request to the client.
// Implemented by the MCP server; faked in tests.
type Elicitor interface {
	RequestElicitation(ctx context.Context, req mcp.ElicitationRequest) (*mcp.ElicitationResult, error)
}

// guardExempt tools stay reachable while initialization or the
// permission check is incomplete; the utility tool is how a user
// diagnoses a blocked server.
var guardExempt = map[string]bool{
	"salesforceContextUtils": true,
}

// Dispatcher wraps every registered handler with the shared call
// pipeline: name check, readiness guard, argument validation, destructive
// confirmation, panic containment, and the dual-shape invariant.
type Dispatcher struct {
	cfg      config.Config
	st       *state.ServerState
	registry *Registry
	elicitor Elicitor

	// hot short-circuits registry lookup for the most-called tools.
	hot map[string]*Definition
}

// hotTools are resolved from the static map before the registry.
var hotTools = []string{"executeSoqlQuery", "describeObject", "getRecord", "salesforceContextUtils"}

// NewDispatcher builds the dispatcher over a compiled registry.
func NewDispatcher(cfg config.Config, st *state.ServerState, registry *Registry, elicitor Elicitor) *Dispatcher {
	hot := make(map[string]*Definition, len(hotTools))
	for _, name := range hotTools {
		if def, ok := registry.Lookup(name); ok {
			hot[name] = def
		}
	}
	return &Dispatcher{cfg: cfg, st: st, registry: registry, elicitor: elicitor, hot: hot}
}

// Registry exposes the underlying tool table for transport registration.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Wrap returns the transport-facing handler for one definition.
func (d *Dispatcher) Wrap(def *Definition) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (result *mcp.CallToolResult, err error) {
		name := req.Params.Name
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("tool %s panicked: %v", name, r)
				result = errResult(kindInternal, fmt.Sprintf("internal error in tool %s", name))
				err = nil
			}
			result = enforceShape(result)
			telemetry.RecordToolCall(name, outcomeOf(result))
		}()

		if !toolNamePattern.MatchString(name) {
			return validationError(fmt.Sprintf("invalid tool name %q", name)), nil
		}

		resolved := d.resolve(name)
		if resolved == nil {
			resolved = def
		}

		if resolved.Guarded && !guardExempt[name] {
			if blocked := d.guard(); blocked != nil {
				return blocked, nil
			}
		}

		if err := resolved.validateArgs(req.GetArguments()); err != nil {
			return validationError(err.Error()), nil
		}

		if resolved.Destructive != nil && resolved.Destructive(req) {
			if cancelled := d.confirm(ctx, resolved, req); cancelled != nil {
				return cancelled, nil
			}
		}

		return resolved.Handler(ctx, req)
	}
}

// resolve looks up the definition, consulting the hot map first.
func (d *Dispatcher) resolve(name string) *Definition {
	if def, ok := d.hot[name]; ok {
		return def
	}
	def, ok := d.registry.Lookup(name)
	if !ok {
		return nil
	}
	return def
}

// guard blocks guarded tools until the server is ready and the org user
// passed the permission check.
func (d *Dispatcher) guard() *mcp.CallToolResult {
	if !d.st.InitializationComplete() {
		return errResult(kindNotInitialized, "Server is still initializing; retry in a few seconds")
	}
	if !d.cfg.BypassPermissionCheck && !d.st.PermissionsValidated() {
		return errResult(kindNotInitialized,
			fmt.Sprintf("Org user is not authorized for this server (missing %q permission set); use salesforceContextUtils getState to inspect", d.cfg.PermissionSetName))
	}
	return nil
}

// confirm runs the destructive-call elicitation. It returns nil to
// proceed, or the cancelled result. Confirmation is requested if and only
// if the client advertised the elicitation capability.
func (d *Dispatcher) confirm(ctx context.Context, def *Definition, req mcp.CallToolRequest) *mcp.CallToolResult {
	if d.elicitor == nil || !d.st.ClientHas(state.CapElicitation) {
		return nil
	}

	message := fmt.Sprintf("Tool %s will modify the Salesforce org. Proceed?", def.Tool.Name)
	if def.ConfirmMessage != nil {
		message = def.ConfirmMessage(req)
	}

	result, err := d.elicitor.RequestElicitation(ctx, mcp.ElicitationRequest{
		Params: mcp.ElicitationParams{
			Message: message,
			RequestedSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"confirm": map[string]any{
						"type":        "boolean",
						"description": "Set to true to proceed with the operation",
					},
				},
				"required": []string{"confirm"},
			},
		},
	})
	if err != nil {
		logger.Warnf("elicitation for %s failed: %v", def.Tool.Name, err)
		return cancelledResult(def.Tool.Name, "confirmation could not be obtained")
	}

	switch result.Action {
	case mcp.ElicitationResponseActionAccept:
		// result.Content is typed any on the wire.
		if content, ok := result.Content.(map[string]any); ok {
			if confirmed, ok := content["confirm"].(bool); ok && confirmed {
				return nil
			}
		}
		return cancelledResult(def.Tool.Name, "user did not confirm the operation")
	case mcp.ElicitationResponseActionDecline:
		return cancelledResult(def.Tool.Name, "user declined the operation")
	default:
		return cancelledResult(def.Tool.Name, "user cancelled the operation")
	}
}

// enforceShape upholds the dual-shape invariant on every response:
// non-empty content plus object-shaped structuredContent.
func enforceShape(result *mcp.CallToolResult) *mcp.CallToolResult {
	if result == nil {
		return errResult(kindInternal, "tool returned no result")
	}
	if len(result.Content) == 0 {
		result.Content = []mcp.Content{mcp.NewTextContent("ok")}
	}
	if _, ok := result.StructuredContent.(map[string]any); !ok {
		result.StructuredContent = map[string]any{}
	}
	return result
}

func outcomeOf(result *mcp.CallToolResult) string {
	if result.IsError {
		return "error"
	}
	if structured, ok := result.StructuredContent.(map[string]any); ok {
		if cancelled, ok := structured["cancelled"].(bool); ok && cancelled {
			return "cancelled"
		}
	}
	return "success"
}
