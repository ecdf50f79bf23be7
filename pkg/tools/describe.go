// SPDX-FileCopyrightText: Copyright 2026 forcedev authors
// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/tidwall/gjson"

	"github.com/forcedev/sfmcp/pkg/logger"
	"github.com/forcedev/sfmcp/pkg/resources"
	"github.com/forcedev/sfmcp/pkg/salesforce"
	"github.com/forcedev/sfmcp/pkg/state"
)

// DescribeObject returns the normalized schema of an SObject. The full
// normalized describe is memoized in the resource store; field filters
// are applied per call on the memoized value.
func (h *Handlers) DescribeObject(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sObjectName, err := req.RequireString("sObjectName")
	if err != nil {
		return validationError(err.Error()), nil
	}
	if !sObjectNamePattern.MatchString(sObjectName) {
		return validationError(fmt.Sprintf("invalid sObject name %q", sObjectName)), nil
	}
	includeFields := req.GetBool("includeFields", true)
	includePicklists := req.GetBool("includePicklistValues", false)
	useTooling := req.GetBool("useToolingApi", false)

	uri := describeURI(sObjectName, useTooling)

	var normalized map[string]any
	if cached, ok := h.store.Get(uri); ok {
		if err := json.Unmarshal([]byte(cached.Text), &normalized); err != nil {
			normalized = nil
		}
	}
	if normalized == nil {
		apiType := salesforce.APIRest
		if useTooling {
			apiType = salesforce.APITooling
		}
		resp, err := h.gw.Call(ctx, salesforce.Request{
			Method:  "GET",
			APIType: apiType,
			Service: "/sobjects/" + sObjectName + "/describe",
		})
		if err != nil {
			return errResultFor(err), nil
		}
		normalized = normalizeDescribe(resp.Raw)

		res, err := newDescribeResource(uri, sObjectName, normalized)
		if err != nil {
			logger.Warnf("failed to build describe resource for %s: %v", sObjectName, err)
		} else {
			h.store.Upsert(res)
		}
	}

	structured := filterDescribe(normalized, includeFields, includePicklists)
	result := okResult(fmt.Sprintf("Described %s (%d fields)", sObjectName, describeFieldCount(normalized)), structured)
	h.attachResourceReference(result, uri, sObjectName)
	return result, nil
}

func describeURI(sObjectName string, tooling bool) string {
	if tooling {
		return "sf://describe/tooling/" + sObjectName
	}
	return "sf://describe/" + sObjectName
}

// normalizeDescribe reduces a raw describe body to the normalized shape
// {name,label,keyPrefix,fields,recordTypeInfos,childRelationships}.
func normalizeDescribe(raw []byte) map[string]any {
	doc := gjson.ParseBytes(raw)

	fields := make([]any, 0)
	doc.Get("fields").ForEach(func(_, field gjson.Result) bool {
		entry := map[string]any{
			"name":       field.Get("name").String(),
			"label":      field.Get("label").String(),
			"type":       field.Get("type").String(),
			"length":     field.Get("length").Int(),
			"nillable":   field.Get("nillable").Bool(),
			"createable": field.Get("createable").Bool(),
			"updateable": field.Get("updateable").Bool(),
		}
		if refs := field.Get("referenceTo"); refs.IsArray() && len(refs.Array()) > 0 {
			entry["referenceTo"] = refs.Value()
		}
		if picklist := field.Get("picklistValues"); picklist.IsArray() && len(picklist.Array()) > 0 {
			values := make([]any, 0)
			picklist.ForEach(func(_, v gjson.Result) bool {
				values = append(values, map[string]any{
					"value":  v.Get("value").String(),
					"label":  v.Get("label").String(),
					"active": v.Get("active").Bool(),
				})
				return true
			})
			entry["picklistValues"] = values
		}
		fields = append(fields, entry)
		return true
	})

	recordTypes := make([]any, 0)
	doc.Get("recordTypeInfos").ForEach(func(_, rt gjson.Result) bool {
		recordTypes = append(recordTypes, map[string]any{
			"name":                    rt.Get("name").String(),
			"recordTypeId":            rt.Get("recordTypeId").String(),
			"developerName":           rt.Get("developerName").String(),
			"defaultRecordTypeMapping": rt.Get("defaultRecordTypeMapping").Bool(),
			"active":                  rt.Get("active").Bool(),
		})
		return true
	})

	children := make([]any, 0)
	doc.Get("childRelationships").ForEach(func(_, child gjson.Result) bool {
		name := child.Get("relationshipName").String()
		if name == "" {
			return true
		}
		children = append(children, map[string]any{
			"relationshipName": name,
			"childSObject":     child.Get("childSObject").String(),
			"field":            child.Get("field").String(),
		})
		return true
	})

	return map[string]any{
		"name":               doc.Get("name").String(),
		"label":              doc.Get("label").String(),
		"keyPrefix":          doc.Get("keyPrefix").String(),
		"fields":             fields,
		"recordTypeInfos":    recordTypes,
		"childRelationships": children,
	}
}

// filterDescribe applies the per-call field filters without mutating the
// memoized value.
func filterDescribe(normalized map[string]any, includeFields, includePicklists bool) map[string]any {
	out := make(map[string]any, len(normalized))
	for k, v := range normalized {
		out[k] = v
	}
	if !includeFields {
		delete(out, "fields")
		return out
	}
	if includePicklists {
		return out
	}
	raw, _ := out["fields"].([]any)
	fields := make([]any, 0, len(raw))
	for _, f := range raw {
		m, ok := f.(map[string]any)
		if !ok {
			fields = append(fields, f)
			continue
		}
		clean := make(map[string]any, len(m))
		for k, v := range m {
			if k == "picklistValues" {
				continue
			}
			clean[k] = v
		}
		fields = append(fields, clean)
	}
	out["fields"] = fields
	return out
}

func describeFieldCount(normalized map[string]any) int {
	fields, _ := normalized["fields"].([]any)
	return len(fields)
}

func newDescribeResource(uri, sObjectName string, normalized map[string]any) (resources.Resource, error) {
	return resources.NewJSONResource(uri,
		sObjectName+" describe",
		"Normalized schema for the "+sObjectName+" SObject",
		normalized)
}

// attachResourceReference embeds a pointer to a stored resource in the
// tool result, in the richest shape the client supports.
func (h *Handlers) attachResourceReference(result *mcp.CallToolResult, uri, name string) {
	stored, ok := h.store.Get(uri)
	if !ok {
		return
	}
	switch {
	case h.st.ClientHas(state.CapResourceLinks):
		result.Content = append(result.Content, mcp.NewResourceLink(uri, stored.Name, stored.Description, stored.MIMEType))
	case h.st.ClientHas(state.CapResources):
		result.Content = append(result.Content, mcp.NewEmbeddedResource(mcp.TextResourceContents{
			URI:      uri,
			MIMEType: stored.MIMEType,
			Text:     stored.Text,
		}))
	default:
		// Client understands neither shape; the reference is omitted.
		logger.Debugf("client cannot receive resource reference for %s", name)
	}
}
