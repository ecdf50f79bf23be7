// SPDX-FileCopyrightText: Copyright 2026 forcedev authors
// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"encoding/json"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/forcedev/sfmcp/pkg/cliexec"
	"github.com/forcedev/sfmcp/pkg/salesforce"
)

// Error kinds carried in structuredContent.error so clients can branch
// without parsing prose.
const (
	kindValidation     = "ValidationError"
	kindNotInitialized = "NotInitialized"
	kindAuth           = "AuthError"
	kindTransport      = "TransportError"
	kindUpstream       = "UpstreamError"
	kindCLI            = "CliError"
	kindInternal       = "InternalError"
)

// okResult builds a successful tool result. Every success carries both a
// non-empty text content array and an object-shaped structuredContent;
// the dispatcher rejects anything else.
func okResult(text string, structured map[string]any) *mcp.CallToolResult {
	if text == "" {
		if raw, err := json.Marshal(structured); err == nil {
			text = string(raw)
		} else {
			text = "ok"
		}
	}
	if structured == nil {
		structured = map[string]any{}
	}
	return &mcp.CallToolResult{
		Content:           []mcp.Content{mcp.NewTextContent(text)},
		StructuredContent: structured,
	}
}

// errResult builds the tool error envelope.
func errResult(kind, message string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{mcp.NewTextContent(message)},
		StructuredContent: map[string]any{
			"error":   kind,
			"message": message,
		},
	}
}

// cancelledResult is the successful (not isError) response for a
// user-rejected destructive confirmation.
func cancelledResult(tool, reason string) *mcp.CallToolResult {
	return okResult(
		"Operation cancelled: "+reason,
		map[string]any{
			"cancelled": true,
			"tool":      tool,
			"reason":    reason,
		},
	)
}

// errResultFor translates a Go error into the tool error envelope using
// the gateway and CLI sentinel taxonomy.
func errResultFor(err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, salesforce.ErrValidation):
		return errResult(kindValidation, err.Error())
	case errors.Is(err, salesforce.ErrNotInitialized):
		return errResult(kindNotInitialized, "Salesforce connection is still initializing; retry shortly")
	case errors.Is(err, salesforce.ErrAuth):
		return errResult(kindAuth, err.Error())
	case errors.Is(err, salesforce.ErrTransport):
		return errResult(kindTransport, err.Error())
	case errors.Is(err, salesforce.ErrUpstream):
		return errResult(kindUpstream, err.Error())
	case errors.Is(err, cliexec.ErrCLI):
		return errResult(kindCLI, err.Error())
	default:
		return errResult(kindInternal, err.Error())
	}
}

// validationError is a convenience for parameter failures raised before
// any network or CLI work.
func validationError(message string) *mcp.CallToolResult {
	return errResult(kindValidation, message)
}
