// SPDX-FileCopyrightText: Copyright 2026 forcedev authors
// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/forcedev/sfmcp/pkg/salesforce"
)

// ExecuteSoqlQuery runs a SOQL query through the REST or Tooling query
// endpoint.
func (h *Handlers) ExecuteSoqlQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	soql, err := req.RequireString("query")
	if err != nil {
		return validationError(err.Error()), nil
	}

	apiType := salesforce.APIRest
	if req.GetBool("useToolingApi", false) {
		apiType = salesforce.APITooling
	}

	// Escaping applies inside string literals only; the structural quotes
	// of the query stay as written.
	soql = salesforce.EscapeSOQLLiterals(soql)

	resp, err := h.gw.Call(ctx, salesforce.Request{
		Method:  http.MethodGet,
		APIType: apiType,
		Service: "/query",
		Options: salesforce.Options{QueryParams: map[string]string{"q": soql}},
	})
	if err != nil {
		return errResultFor(err), nil
	}

	structured := queryShape(resp.Data)
	total, _ := structured["totalSize"].(float64)
	return okResult(fmt.Sprintf("Query returned %d records", int(total)), structured), nil
}

// GetRecord fetches one record by id, shaped as {id, sObject, fields}.
func (h *Handlers) GetRecord(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sObjectName, err := req.RequireString("sObjectName")
	if err != nil {
		return validationError(err.Error()), nil
	}
	recordID, err := req.RequireString("recordId")
	if err != nil {
		return validationError(err.Error()), nil
	}
	if !sObjectNamePattern.MatchString(sObjectName) {
		return validationError(fmt.Sprintf("invalid sObject name %q", sObjectName)), nil
	}
	if !recordIDPattern.MatchString(recordID) {
		return validationError(fmt.Sprintf("invalid record id %q", recordID)), nil
	}

	resp, err := h.gw.Call(ctx, salesforce.Request{
		Method:  http.MethodGet,
		APIType: salesforce.APIRest,
		Service: fmt.Sprintf("/sobjects/%s/%s", sObjectName, recordID),
	})
	if err != nil {
		return errResultFor(err), nil
	}

	fields := map[string]any{}
	if body, ok := resp.Data.(map[string]any); ok {
		for k, v := range body {
			if k == "attributes" {
				continue
			}
			fields[k] = v
		}
	}
	structured := map[string]any{
		"id":      recordID,
		"sObject": sObjectName,
		"fields":  fields,
	}
	return okResult(fmt.Sprintf("Fetched %s record %s", sObjectName, recordID), structured), nil
}

// GetRecentlyViewedRecords lists the records the org user viewed most
// recently.
func (h *Handlers) GetRecentlyViewedRecords(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resp, err := h.gw.Query(ctx,
		"SELECT Id, Name, Type, LastViewedDate FROM RecentlyViewed ORDER BY LastViewedDate DESC LIMIT 200")
	if err != nil {
		return errResultFor(err), nil
	}

	structured := queryShape(resp.Data)
	total, _ := structured["totalSize"].(float64)
	return okResult(fmt.Sprintf("Found %d recently viewed records", int(total)), structured), nil
}

// GetSetupAuditTrail lists setup audit trail entries for the last N days,
// optionally filtered to one user.
func (h *Handlers) GetSetupAuditTrail(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	lastDays := req.GetInt("lastDays", 7)
	if lastDays < 1 || lastDays > 180 {
		return validationError(fmt.Sprintf("lastDays must be between 1 and 180, got %d", lastDays)), nil
	}
	user := req.GetString("user", "")

	soql := fmt.Sprintf(
		"SELECT Id, Action, Section, CreatedDate, CreatedBy.Username, Display FROM SetupAuditTrail WHERE CreatedDate = LAST_N_DAYS:%d",
		lastDays,
	)
	if user != "" {
		soql += fmt.Sprintf(" AND CreatedBy.Username = '%s'", salesforce.EscapeSOQLString(user))
	}
	soql += " ORDER BY CreatedDate DESC"

	resp, err := h.gw.Query(ctx, soql)
	if err != nil {
		return errResultFor(err), nil
	}

	structured := queryShape(resp.Data)
	structured["filter"] = map[string]any{
		"lastDays": lastDays,
		"user":     user,
	}
	total, _ := structured["totalSize"].(float64)
	return okResult(fmt.Sprintf("Found %d audit trail entries in the last %d days", int(total), lastDays), structured), nil
}

// queryShape normalizes a query response body to
// {records, totalSize, done}.
func queryShape(data any) map[string]any {
	body, ok := data.(map[string]any)
	if !ok {
		return map[string]any{"records": []any{}, "totalSize": float64(0), "done": true}
	}
	raw, ok := body["records"].([]any)
	if !ok {
		raw = []any{}
	}
	// Copy records instead of mutating: the body may be shared with the
	// response cache.
	records := make([]any, 0, len(raw))
	for _, record := range raw {
		m, ok := record.(map[string]any)
		if !ok {
			records = append(records, record)
			continue
		}
		clean := make(map[string]any, len(m))
		for k, v := range m {
			if k == "attributes" {
				continue
			}
			clean[k] = v
		}
		records = append(records, clean)
	}
	totalSize, ok := body["totalSize"].(float64)
	if !ok {
		totalSize = float64(len(records))
	}
	done, ok := body["done"].(bool)
	if !ok {
		done = true
	}
	return map[string]any{
		"records":   records,
		"totalSize": totalSize,
		"done":      done,
	}
}
