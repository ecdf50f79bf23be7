// SPDX-FileCopyrightText: Copyright 2026 forcedev authors
// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/forcedev/sfmcp/pkg/salesforce"
)

// maxDMLBatch is the composite-sobjects per-request record limit.
const maxDMLBatch = 200

// DMLOperation batches create/update/delete operations through the
// composite sobjects endpoints and collates per-record outcomes.
func (h *Handlers) DMLOperation(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	operations, ok := args["operations"].(map[string]any)
	if !ok || len(operations) == 0 {
		return validationError("operations must be an object with at least one of create, update, delete"), nil
	}
	allOrNone := req.GetBool("allOrNone", false)
	apiType := salesforce.APIRest
	if req.GetBool("useToolingApi", false) {
		apiType = salesforce.APITooling
	}

	var successes, failures []map[string]any
	attempted := 0

	run := func(kind string, records []any, call func([]any) (*salesforce.Response, error)) *mcp.CallToolResult {
		if len(records) == 0 {
			return nil
		}
		if len(records) > maxDMLBatch {
			return validationError(fmt.Sprintf("%s batch exceeds %d records", kind, maxDMLBatch))
		}
		attempted += len(records)
		resp, err := call(records)
		if err != nil {
			for range records {
				failures = append(failures, map[string]any{
					"operation": kind,
					"errors":    []any{map[string]any{"message": err.Error()}},
				})
			}
			return nil
		}
		s, f := collateOutcomes(kind, resp.Data)
		successes = append(successes, s...)
		failures = append(failures, f...)
		return nil
	}

	if creates, err := createRecords(operations["create"]); err != nil {
		return validationError(err.Error()), nil
	} else if bad := run("create", creates, func(records []any) (*salesforce.Response, error) {
		return h.gw.Call(ctx, salesforce.Request{
			Method:  http.MethodPost,
			APIType: apiType,
			Service: "/composite/sobjects",
			Body:    map[string]any{"allOrNone": allOrNone, "records": records},
		})
	}); bad != nil {
		return bad, nil
	}

	if updates, err := updateRecords(operations["update"]); err != nil {
		return validationError(err.Error()), nil
	} else if bad := run("update", updates, func(records []any) (*salesforce.Response, error) {
		return h.gw.Call(ctx, salesforce.Request{
			Method:  http.MethodPatch,
			APIType: apiType,
			Service: "/composite/sobjects",
			Body:    map[string]any{"allOrNone": allOrNone, "records": records},
		})
	}); bad != nil {
		return bad, nil
	}

	if ids, err := deleteIDs(operations["delete"]); err != nil {
		return validationError(err.Error()), nil
	} else if bad := run("delete", anySlice(ids), func(records []any) (*salesforce.Response, error) {
		return h.gw.Call(ctx, salesforce.Request{
			Method:  http.MethodDelete,
			APIType: apiType,
			Service: "/composite/sobjects",
			Options: salesforce.Options{QueryParams: map[string]string{
				"ids":       strings.Join(ids, ","),
				"allOrNone": fmt.Sprintf("%t", allOrNone),
			}},
		})
	}); bad != nil {
		return bad, nil
	}

	if attempted == 0 {
		return validationError("operations contained no records"), nil
	}

	outcome := "success"
	switch {
	case len(successes) == 0:
		outcome = "error"
	case len(failures) > 0:
		outcome = "partial"
	}

	structured := map[string]any{
		"outcome": outcome,
		"statistics": map[string]any{
			"attempted": attempted,
			"succeeded": len(successes),
			"failed":    len(failures),
		},
		"successes": successes,
		"errors":    failures,
	}
	text := fmt.Sprintf("DML %s: %d succeeded, %d failed of %d attempted",
		outcome, len(successes), len(failures), attempted)
	return okResult(text, structured), nil
}

// createRecords shapes [{sObject, fields}] into composite records with
// attributes.type.
func createRecords(v any) ([]any, error) {
	entries, err := recordList(v, "create")
	if err != nil || entries == nil {
		return nil, err
	}
	records := make([]any, 0, len(entries))
	for i, entry := range entries {
		sObject, _ := entry["sObject"].(string)
		if !sObjectNamePattern.MatchString(sObject) {
			return nil, fmt.Errorf("create[%d]: invalid sObject name %q", i, sObject)
		}
		fields, _ := entry["fields"].(map[string]any)
		if len(fields) == 0 {
			return nil, fmt.Errorf("create[%d]: fields are required", i)
		}
		record := map[string]any{"attributes": map[string]any{"type": sObject}}
		for k, val := range fields {
			record[k] = val
		}
		records = append(records, record)
	}
	return records, nil
}

// updateRecords shapes [{sObject, id, fields}] into composite records.
func updateRecords(v any) ([]any, error) {
	entries, err := recordList(v, "update")
	if err != nil || entries == nil {
		return nil, err
	}
	records := make([]any, 0, len(entries))
	for i, entry := range entries {
		sObject, _ := entry["sObject"].(string)
		if !sObjectNamePattern.MatchString(sObject) {
			return nil, fmt.Errorf("update[%d]: invalid sObject name %q", i, sObject)
		}
		id, _ := entry["id"].(string)
		if !recordIDPattern.MatchString(id) {
			return nil, fmt.Errorf("update[%d]: invalid record id %q", i, id)
		}
		fields, _ := entry["fields"].(map[string]any)
		if len(fields) == 0 {
			return nil, fmt.Errorf("update[%d]: fields are required", i)
		}
		record := map[string]any{
			"attributes": map[string]any{"type": sObject},
			"Id":         id,
		}
		for k, val := range fields {
			record[k] = val
		}
		records = append(records, record)
	}
	return records, nil
}

// deleteIDs extracts and validates the ids of [{id}] or ["id"] entries.
func deleteIDs(v any) ([]string, error) {
	if v == nil {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("delete must be an array")
	}
	ids := make([]string, 0, len(list))
	for i, entry := range list {
		var id string
		switch e := entry.(type) {
		case string:
			id = e
		case map[string]any:
			id, _ = e["id"].(string)
		}
		if !recordIDPattern.MatchString(id) {
			return nil, fmt.Errorf("delete[%d]: invalid record id %q", i, id)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func recordList(v any, kind string) ([]map[string]any, error) {
	if v == nil {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%s must be an array", kind)
	}
	entries := make([]map[string]any, 0, len(list))
	for i, item := range list {
		entry, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s[%d] must be an object", kind, i)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// collateOutcomes splits a composite-sobjects response array into
// successes and failures.
func collateOutcomes(kind string, data any) (successes, failures []map[string]any) {
	results, ok := data.([]any)
	if !ok {
		return nil, nil
	}
	for _, item := range results {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		record := map[string]any{"operation": kind}
		if id, ok := entry["id"].(string); ok && id != "" {
			record["id"] = id
		}
		if success, ok := entry["success"].(bool); ok && success {
			successes = append(successes, record)
			continue
		}
		if errs, ok := entry["errors"].([]any); ok {
			record["errors"] = errs
		}
		failures = append(failures, record)
	}
	return successes, failures
}

func anySlice(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
