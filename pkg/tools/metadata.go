// SPDX-FileCopyrightText: Copyright 2026 forcedev authors
// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// apexTriggerEvents are the events `sf apex generate trigger` accepts.
var apexTriggerEvents = map[string]bool{
	"before insert":   true,
	"before update":   true,
	"before delete":   true,
	"after insert":    true,
	"after update":    true,
	"after delete":    true,
	"after undelete":  true,
}

// DeployMetadata deploys or validates a source directory through the
// CLI. The CLI result is surfaced unchanged.
func (h *Handlers) DeployMetadata(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sourceDir, err := req.RequireString("sourceDir")
	if err != nil {
		return validationError(err.Error()), nil
	}
	validationOnly := req.GetBool("validationOnly", false)

	if !filepath.IsAbs(sourceDir) {
		sourceDir = filepath.Join(h.st.WorkspacePath(), sourceDir)
	}
	if info, statErr := os.Stat(sourceDir); statErr != nil || !info.IsDir() {
		return validationError(fmt.Sprintf("source directory %q does not exist", sourceDir)), nil
	}

	verb := "start"
	if validationOnly {
		verb = "validate"
	}
	doc, err := h.cli.RunJSON(ctx, "project", "deploy", verb, "--source-dir", sourceDir)
	if err != nil {
		return errResultFor(err), nil
	}

	result := doc.Get("result")
	structured := map[string]any{
		"validationOnly": validationOnly,
		"result":         result.Value(),
	}
	status := result.Get("status").String()
	if status == "" {
		status = "submitted"
	}
	action := "Deploy"
	if validationOnly {
		action = "Validation"
	}
	return okResult(fmt.Sprintf("%s of %s: %s", action, sourceDir, status), structured), nil
}

// CreateMetadata scaffolds an Apex class or trigger through the CLI
// generators.
func (h *Handlers) CreateMetadata(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	metadataType, err := req.RequireString("type")
	if err != nil {
		return validationError(err.Error()), nil
	}
	name, err := req.RequireString("name")
	if err != nil {
		return validationError(err.Error()), nil
	}
	if !identifierPattern.MatchString(name) {
		return validationError(fmt.Sprintf("invalid metadata name %q", name)), nil
	}

	outputDir := req.GetString("outputDir", "")
	if outputDir == "" {
		outputDir = filepath.Join("force-app", "main", "default")
	}

	var args []string
	switch metadataType {
	case "apexClass":
		args = []string{"apex", "generate", "class", "--name", name,
			"--output-dir", filepath.Join(outputDir, "classes")}
	case "apexTrigger":
		sObject := req.GetString("triggerSObject", "")
		if !sObjectNamePattern.MatchString(sObject) {
			return validationError(fmt.Sprintf("invalid triggerSObject %q", sObject)), nil
		}
		event := strings.ToLower(req.GetString("triggerEvent", "before insert"))
		if !apexTriggerEvents[event] {
			return validationError(fmt.Sprintf("invalid triggerEvent %q", event)), nil
		}
		args = []string{"apex", "generate", "trigger", "--name", name,
			"--sobject", sObject, "--event", event,
			"--output-dir", filepath.Join(outputDir, "triggers")}
	default:
		return validationError(fmt.Sprintf("unsupported metadata type %q, expected apexClass or apexTrigger", metadataType)), nil
	}

	doc, err := h.cli.RunJSON(ctx, args...)
	if err != nil {
		return errResultFor(err), nil
	}

	created := doc.Get("result.created").Value()
	if created == nil {
		created = []any{}
	}
	structured := map[string]any{
		"type":    metadataType,
		"name":    name,
		"created": created,
	}
	return okResult(fmt.Sprintf("Created %s %s", metadataType, name), structured), nil
}
