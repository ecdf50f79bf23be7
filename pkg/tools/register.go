// SPDX-FileCopyrightText: Copyright 2026 forcedev authors
// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// Definitions builds the static tool table over the wired handlers.
func Definitions(h *Handlers) []Definition {
	return []Definition{
		{
			Tool: mcp.NewTool("salesforceContextUtils",
				mcp.WithDescription("Utility actions for the Salesforce connection: getState, getOrgAndUserDetails, clearCache, loadRecordPrefixesResource, getCurrentDatetime, reportIssue."),
				mcp.WithString("action", mcp.Required(),
					mcp.Description("One of getState, getOrgAndUserDetails, clearCache, loadRecordPrefixesResource, getCurrentDatetime, reportIssue")),
				mcp.WithString("issueTitle", mcp.Description("Issue title, for reportIssue")),
				mcp.WithString("issueDescription", mcp.Description("Issue description, for reportIssue")),
				mcp.WithReadOnlyHintAnnotation(true),
			),
			Handler: h.SalesforceContextUtils,
		},
		{
			Tool: mcp.NewTool("executeSoqlQuery",
				mcp.WithDescription("Run a SOQL query against the connected org."),
				mcp.WithString("query", mcp.Required(), mcp.Description("The SOQL query to execute")),
				mcp.WithBoolean("useToolingApi", mcp.Description("Query the Tooling API instead of the REST API")),
				mcp.WithReadOnlyHintAnnotation(true),
			),
			Handler: h.ExecuteSoqlQuery,
			Guarded: true,
		},
		{
			Tool: mcp.NewTool("describeObject",
				mcp.WithDescription("Describe an SObject: fields, record types and child relationships, normalized and cached as a resource."),
				mcp.WithString("sObjectName", mcp.Required(), mcp.Description("API name of the SObject, e.g. Account or Invoice__c")),
				mcp.WithBoolean("includeFields", mcp.Description("Include field metadata (default true)")),
				mcp.WithBoolean("includePicklistValues", mcp.Description("Include picklist values on fields (default false)")),
				mcp.WithBoolean("useToolingApi", mcp.Description("Describe through the Tooling API")),
				mcp.WithReadOnlyHintAnnotation(true),
			),
			Handler: h.DescribeObject,
			Guarded: true,
		},
		{
			Tool: mcp.NewTool("getRecord",
				mcp.WithDescription("Fetch a single record by id."),
				mcp.WithString("sObjectName", mcp.Required(), mcp.Description("API name of the SObject")),
				mcp.WithString("recordId", mcp.Required(), mcp.Description("15 or 18 character record id")),
				mcp.WithReadOnlyHintAnnotation(true),
			),
			Handler: h.GetRecord,
			Guarded: true,
		},
		{
			Tool: mcp.NewTool("getRecentlyViewedRecords",
				mcp.WithDescription("List the records the org user viewed most recently."),
				mcp.WithReadOnlyHintAnnotation(true),
			),
			Handler: h.GetRecentlyViewedRecords,
			Guarded: true,
		},
		{
			Tool: mcp.NewTool("getSetupAuditTrail",
				mcp.WithDescription("List setup audit trail entries for the last N days."),
				mcp.WithNumber("lastDays", mcp.Description("How many days back to look (default 7, max 180)")),
				mcp.WithString("user", mcp.Description("Restrict to changes made by this username")),
				mcp.WithReadOnlyHintAnnotation(true),
			),
			Handler: h.GetSetupAuditTrail,
			Guarded: true,
		},
		{
			Tool: mcp.NewTool("executeAnonymousApex",
				mcp.WithDescription("Execute anonymous Apex in the org. Set mayModify when the script performs DML or callouts."),
				mcp.WithString("apexCode", mcp.Required(), mcp.Description("The Apex script body")),
				mcp.WithBoolean("mayModify", mcp.Required(), mcp.Description("Whether the script may modify org data")),
			),
			Handler: h.ExecuteAnonymousApex,
			Guarded: true,
			Destructive: func(req mcp.CallToolRequest) bool {
				return req.GetBool("mayModify", false)
			},
			ConfirmMessage: func(_ mcp.CallToolRequest) string {
				return "This Apex script may modify org data. Run it?"
			},
		},
		{
			Tool: mcp.NewTool("dmlOperation",
				mcp.WithDescription("Batch create, update and delete records."),
				mcp.WithObject("operations", mcp.Required(),
					mcp.Description("Object with create ([{sObject, fields}]), update ([{sObject, id, fields}]) and delete ([{id}]) arrays")),
				mcp.WithBoolean("allOrNone", mcp.Description("Roll back the whole batch on any failure")),
				mcp.WithBoolean("useToolingApi", mcp.Description("Run the DML through the Tooling API")),
				mcp.WithDestructiveHintAnnotation(true),
			),
			Handler:     h.DMLOperation,
			Guarded:     true,
			Destructive: func(mcp.CallToolRequest) bool { return true },
			ConfirmMessage: func(req mcp.CallToolRequest) string {
				return "This DML operation will modify org records. Proceed?"
			},
		},
		{
			Tool: mcp.NewTool("deployMetadata",
				mcp.WithDescription("Deploy (or validate) a metadata source directory to the org."),
				mcp.WithString("sourceDir", mcp.Required(), mcp.Description("Source directory to deploy, relative to the workspace")),
				mcp.WithBoolean("validationOnly", mcp.Description("Validate without deploying")),
				mcp.WithDestructiveHintAnnotation(true),
			),
			Handler: h.DeployMetadata,
			Guarded: true,
			Destructive: func(req mcp.CallToolRequest) bool {
				return !req.GetBool("validationOnly", false)
			},
			ConfirmMessage: func(req mcp.CallToolRequest) string {
				return fmt.Sprintf("Deploy %q to the org?", req.GetString("sourceDir", ""))
			},
		},
		{
			Tool: mcp.NewTool("createMetadata",
				mcp.WithDescription("Scaffold an Apex class or trigger in the workspace."),
				mcp.WithString("type", mcp.Required(), mcp.Description("apexClass or apexTrigger")),
				mcp.WithString("name", mcp.Required(), mcp.Description("Name of the class or trigger")),
				mcp.WithString("outputDir", mcp.Description("Target directory (default force-app/main/default)")),
				mcp.WithString("triggerSObject", mcp.Description("SObject for a trigger")),
				mcp.WithString("triggerEvent", mcp.Description("Trigger event, e.g. before insert")),
				mcp.WithDestructiveHintAnnotation(true),
			),
			Handler:     h.CreateMetadata,
			Guarded:     true,
			Destructive: func(mcp.CallToolRequest) bool { return true },
			ConfirmMessage: func(req mcp.CallToolRequest) string {
				return fmt.Sprintf("Create %s %q in the workspace?", req.GetString("type", "metadata"), req.GetString("name", ""))
			},
		},
		{
			Tool: mcp.NewTool("runApexTest",
				mcp.WithDescription("Run Apex tests through the CLI."),
				mcp.WithArray("classNames", mcp.Description("Test classes to run"),
					mcp.Items(map[string]any{"type": "string"})),
				mcp.WithArray("methodNames", mcp.Description("Individual tests as Class.method"),
					mcp.Items(map[string]any{"type": "string"})),
				mcp.WithArray("suiteNames", mcp.Description("Test suites to run"),
					mcp.Items(map[string]any{"type": "string"})),
				mcp.WithBoolean("codeCoverage", mcp.Description("Collect code coverage")),
				mcp.WithBoolean("synchronous", mcp.Description("Wait for the run to finish")),
				mcp.WithReadOnlyHintAnnotation(true),
			),
			Handler: h.RunApexTest,
			Guarded: true,
		},
		{
			Tool: mcp.NewTool("getApexClassCodeCoverage",
				mcp.WithDescription("Aggregated and per-test-method coverage for Apex classes, worst first."),
				mcp.WithArray("classNames", mcp.Required(), mcp.Description("Classes to report coverage for"),
					mcp.Items(map[string]any{"type": "string"})),
				mcp.WithReadOnlyHintAnnotation(true),
			),
			Handler: h.GetApexClassCodeCoverage,
			Guarded: true,
		},
		{
			Tool: mcp.NewTool("apexDebugLogs",
				mcp.WithDescription("Manage user debug logs: on, off, status, list, get."),
				mcp.WithString("action", mcp.Required(), mcp.Description("One of on, off, status, list, get")),
				mcp.WithString("logId", mcp.Description("Log id, for get")),
			),
			Handler: h.ApexDebugLogs,
			Guarded: true,
		},
		{
			Tool: mcp.NewTool("invokeApexRestResource",
				mcp.WithDescription("Invoke a custom Apex REST endpoint by class name or URL mapping."),
				mcp.WithString("apexClassOrRestResourceName", mcp.Required(),
					mcp.Description("Apex class name, or the urlMapping path starting with /")),
				mcp.WithString("operation", mcp.Description("HTTP method to use (default GET)")),
				mcp.WithObject("body", mcp.Description("Request body")),
				mcp.WithObject("urlParams", mcp.Description("Query parameters")),
				mcp.WithObject("headers", mcp.Description("Additional request headers")),
			),
			Handler: h.InvokeApexRestResource,
			Guarded: true,
			Destructive: func(req mcp.CallToolRequest) bool {
				op := req.GetString("operation", "GET")
				return op != "GET" && op != "get"
			},
			ConfirmMessage: func(req mcp.CallToolRequest) string {
				return fmt.Sprintf("Invoke %s on Apex REST resource %q?",
					req.GetString("operation", "GET"), req.GetString("apexClassOrRestResourceName", ""))
			},
		},
	}
}

// BuildRegistry compiles the full tool registry for the wired handlers.
func BuildRegistry(h *Handlers) (*Registry, error) {
	return NewRegistry(Definitions(h))
}
