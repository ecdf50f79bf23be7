// SPDX-FileCopyrightText: Copyright 2026 forcedev authors
// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/tidwall/gjson"

	"github.com/forcedev/sfmcp/pkg/resources"
	"github.com/forcedev/sfmcp/pkg/salesforce"
	"github.com/forcedev/sfmcp/pkg/sanitize"
)

// recordPrefixesURI names the key-prefix lookup resource.
const recordPrefixesURI = "sf://recordPrefixes"

// SalesforceContextUtils multiplexes the diagnostic and housekeeping
// actions. It is exempt from the permission guard: it is how a user
// inspects a blocked server.
func (h *Handlers) SalesforceContextUtils(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	action, err := req.RequireString("action")
	if err != nil {
		return validationError(err.Error()), nil
	}

	switch action {
	case "getState":
		return h.utilGetState()
	case "getOrgAndUserDetails":
		return h.utilOrgDetails()
	case "clearCache":
		h.gw.ClearCache()
		return okResult("API cache cleared", map[string]any{
			"status": "success",
			"action": "clearCache",
		}), nil
	case "loadRecordPrefixesResource":
		return h.utilRecordPrefixes(ctx)
	case "getCurrentDatetime":
		now := h.now().UTC()
		return okResult("Current datetime: "+now.Format(time.RFC3339), map[string]any{
			"status":   "success",
			"action":   "getCurrentDatetime",
			"iso":      now.Format(time.RFC3339),
			"epochMs":  now.UnixMilli(),
			"timezone": "UTC",
		}), nil
	case "reportIssue":
		return h.utilReportIssue(ctx, req)
	default:
		return validationError(fmt.Sprintf("unknown action %q", action)), nil
	}
}

// utilGetState returns the sanitized server state snapshot.
func (h *Handlers) utilGetState() (*mcp.CallToolResult, error) {
	snapshot, err := sanitize.Struct(h.st.Snapshot())
	if err != nil {
		return errResult(kindInternal, fmt.Sprintf("failed to render state: %v", err)), nil
	}
	structured := map[string]any{
		"status": "success",
		"action": "getState",
		"state":  snapshot,
	}
	return okResult("Server state attached", structured), nil
}

// utilOrgDetails returns the sanitized org identity and user details.
func (h *Handlers) utilOrgDetails() (*mcp.CallToolResult, error) {
	org, ok := h.st.Org()
	if !ok {
		return errResult(kindNotInitialized, "no Salesforce org is bound yet"), nil
	}
	details, err := sanitize.Struct(org)
	if err != nil {
		return errResult(kindInternal, fmt.Sprintf("failed to render org details: %v", err)), nil
	}
	structured := map[string]any{
		"status": "success",
		"action": "getOrgAndUserDetails",
		"org":    details,
	}
	return okResult(fmt.Sprintf("Connected to %s as %s", org.InstanceURL, org.Username), structured), nil
}

// utilRecordPrefixes builds the keyPrefix → object lookup from the
// global describe and stores it as a resource.
func (h *Handlers) utilRecordPrefixes(ctx context.Context) (*mcp.CallToolResult, error) {
	resp, err := h.gw.Call(ctx, salesforce.Request{
		Method:  http.MethodGet,
		APIType: salesforce.APIRest,
		Service: "/sobjects",
		Options: salesforce.Options{CacheTTL: time.Minute},
	})
	if err != nil {
		return errResultFor(err), nil
	}

	prefixes := make(map[string]any)
	gjson.GetBytes(resp.Raw, "sobjects").ForEach(func(_, obj gjson.Result) bool {
		prefix := obj.Get("keyPrefix").String()
		if prefix == "" {
			return true
		}
		prefixes[prefix] = map[string]any{
			"name":  obj.Get("name").String(),
			"label": obj.Get("label").String(),
		}
		return true
	})

	res, err := resources.NewJSONResource(recordPrefixesURI,
		"Record id prefixes",
		"Key prefix to SObject lookup derived from the global describe",
		prefixes)
	if err != nil {
		return errResult(kindInternal, err.Error()), nil
	}
	h.store.Upsert(res)

	structured := map[string]any{
		"status":      "success",
		"action":      "loadRecordPrefixesResource",
		"resourceUri": recordPrefixesURI,
		"prefixCount": len(prefixes),
	}
	result := okResult(fmt.Sprintf("Stored %d record prefixes", len(prefixes)), structured)
	h.attachResourceReference(result, recordPrefixesURI, "record prefixes")
	return result, nil
}

// utilReportIssue posts a feedback report to the configured webhook.
func (h *Handlers) utilReportIssue(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if h.cfg.IssueWebhookURL == "" {
		return validationError("no issue webhook is configured"), nil
	}
	title := req.GetString("issueTitle", "")
	description := req.GetString("issueDescription", "")
	if title == "" {
		return validationError("issueTitle is required for reportIssue"), nil
	}

	payload, err := json.Marshal(map[string]any{
		"title":       title,
		"description": description,
		"reportedAt":  h.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return errResult(kindInternal, err.Error()), nil
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.cfg.IssueWebhookURL, bytes.NewReader(payload))
	if err != nil {
		return errResult(kindInternal, err.Error()), nil
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := h.httpClient.Do(httpReq)
	if err != nil {
		return errResult(kindTransport, fmt.Sprintf("failed to reach issue webhook: %v", err)), nil
	}
	defer func() { _ = httpResp.Body.Close() }()
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return errResult(kindUpstream, fmt.Sprintf("issue webhook returned HTTP %d", httpResp.StatusCode)), nil
	}

	structured := map[string]any{
		"status": "success",
		"action": "reportIssue",
		"title":  title,
	}
	return okResult("Issue reported, thank you", structured), nil
}
