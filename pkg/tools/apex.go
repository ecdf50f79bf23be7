// SPDX-FileCopyrightText: Copyright 2026 forcedev authors
// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/tidwall/gjson"

	"github.com/forcedev/sfmcp/pkg/salesforce"
)

// ExecuteAnonymousApex writes the script to a scratch file and runs it
// through the CLI. The file is removed on success and failure alike.
func (h *Handlers) ExecuteAnonymousApex(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	apexCode, err := req.RequireString("apexCode")
	if err != nil {
		return validationError(err.Error()), nil
	}
	if strings.TrimSpace(apexCode) == "" {
		return validationError("apexCode must not be empty"), nil
	}

	// Reclaim anything a previous crash abandoned before adding more.
	h.tmp.Sweep()

	path, err := h.tmp.Create("apex-script", ".apex", []byte(apexCode))
	if err != nil {
		return errResult(kindInternal, fmt.Sprintf("failed to stage Apex script: %v", err)), nil
	}
	defer h.tmp.Remove(path)

	doc, err := h.cli.RunJSON(ctx, "apex", "run", "--file", path)
	if err != nil {
		return errResultFor(err), nil
	}

	result := doc.Get("result")
	structured := map[string]any{
		"success":  result.Get("success").Bool(),
		"compiled": result.Get("compiled").Bool(),
		"logs":     result.Get("logs").String(),
	}
	if problem := result.Get("compileProblem").String(); problem != "" {
		structured["compileProblem"] = problem
		structured["line"] = result.Get("line").Int()
		structured["column"] = result.Get("column").Int()
	}
	if exception := result.Get("exceptionMessage").String(); exception != "" {
		structured["exceptionMessage"] = exception
		structured["exceptionStackTrace"] = result.Get("exceptionStackTrace").String()
	}

	text := "Anonymous Apex executed successfully"
	if !result.Get("success").Bool() {
		text = "Anonymous Apex failed"
		if problem := result.Get("compileProblem").String(); problem != "" {
			text += ": " + problem
		} else if exception := result.Get("exceptionMessage").String(); exception != "" {
			text += ": " + exception
		}
	}
	return okResult(text, structured), nil
}

// RunApexTest runs Apex tests through the CLI.
func (h *Handlers) RunApexTest(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	classNames := req.GetStringSlice("classNames", nil)
	methodNames := req.GetStringSlice("methodNames", nil)
	suiteNames := req.GetStringSlice("suiteNames", nil)

	for _, name := range classNames {
		if !identifierPattern.MatchString(name) {
			return validationError(fmt.Sprintf("invalid class name %q", name)), nil
		}
	}
	for _, name := range methodNames {
		// Methods arrive as Class.method.
		if !regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*\.[A-Za-z][A-Za-z0-9_]*$`).MatchString(name) {
			return validationError(fmt.Sprintf("invalid test method %q, expected Class.method", name)), nil
		}
	}

	args := []string{"apex", "run", "test"}
	if len(classNames) > 0 {
		args = append(args, "--class-names", strings.Join(classNames, ","))
	}
	if len(methodNames) > 0 {
		args = append(args, "--tests", strings.Join(methodNames, ","))
	}
	if len(suiteNames) > 0 {
		args = append(args, "--suite-names", strings.Join(suiteNames, ","))
	}
	if req.GetBool("codeCoverage", false) {
		args = append(args, "--code-coverage")
	}
	if req.GetBool("synchronous", false) {
		args = append(args, "--synchronous", "--wait", "10")
	}

	doc, err := h.cli.RunJSON(ctx, args...)
	if err != nil {
		return errResultFor(err), nil
	}

	result := doc.Get("result")
	structured := map[string]any{
		"testRunId": result.Get("summary.testRunId").String(),
	}
	if summary := result.Get("summary"); summary.Exists() {
		structured["summary"] = summary.Value()
	}
	if tests := result.Get("tests"); tests.IsArray() {
		structured["tests"] = tests.Value()
	}
	if structured["testRunId"] == "" {
		// Async runs report only the queued run id.
		structured["testRunId"] = result.Get("testRunId").String()
	}
	return okResult(fmt.Sprintf("Apex test run %v", structured["testRunId"]), structured), nil
}

// classCoverage is one class's aggregated coverage.
type classCoverage struct {
	ClassName       string  `json:"className"`
	Found           bool    `json:"found"`
	CoveragePercent float64 `json:"coveragePercent"`
	LinesCovered    int64   `json:"linesCovered"`
	LinesUncovered  int64   `json:"linesUncovered"`
	Methods         []any   `json:"methods,omitempty"`
}

// GetApexClassCodeCoverage reports aggregated and per-test-method
// coverage for the named classes, worst coverage first; classes with no
// coverage rows sort last.
func (h *Handlers) GetApexClassCodeCoverage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	classNames := req.GetStringSlice("classNames", nil)
	if len(classNames) == 0 {
		return validationError("classNames must contain at least one class"), nil
	}
	quoted := make([]string, 0, len(classNames))
	for _, name := range classNames {
		if !identifierPattern.MatchString(name) {
			return validationError(fmt.Sprintf("invalid class name %q", name)), nil
		}
		quoted = append(quoted, "'"+salesforce.EscapeSOQLString(name)+"'")
	}
	nameList := strings.Join(quoted, ", ")

	aggregate, err := h.gw.ToolingQuery(ctx, fmt.Sprintf(
		"SELECT ApexClassOrTrigger.Name, NumLinesCovered, NumLinesUncovered FROM ApexCodeCoverageAggregate WHERE ApexClassOrTrigger.Name IN (%s)",
		nameList,
	))
	if err != nil {
		return errResultFor(err), nil
	}
	perMethod, err := h.gw.ToolingQuery(ctx, fmt.Sprintf(
		"SELECT ApexClassOrTrigger.Name, ApexTestClass.Name, TestMethodName, NumLinesCovered, NumLinesUncovered FROM ApexCodeCoverage WHERE ApexClassOrTrigger.Name IN (%s)",
		nameList,
	))
	if err != nil {
		return errResultFor(err), nil
	}

	coverage := collateCoverage(classNames, aggregate.Raw, perMethod.Raw)

	classes := make([]any, 0, len(coverage))
	var worst *classCoverage
	for i := range coverage {
		c := coverage[i]
		entry := map[string]any{
			"className": c.ClassName,
			"found":     c.Found,
		}
		if c.Found {
			entry["coveragePercent"] = c.CoveragePercent
			entry["linesCovered"] = c.LinesCovered
			entry["linesUncovered"] = c.LinesUncovered
			entry["methods"] = c.Methods
			if worst == nil {
				worst = &coverage[i]
			}
		}
		classes = append(classes, entry)
	}

	structured := map[string]any{"classes": classes}
	text := "No coverage data found"
	if worst != nil {
		text = fmt.Sprintf("Lowest coverage: %s at %.1f%%", worst.ClassName, worst.CoveragePercent)
	}
	return okResult(text, structured), nil
}

// collateCoverage joins aggregate and per-method rows, computes
// percentages, and orders worst-first with unknown classes last.
func collateCoverage(requested []string, aggregateRaw, perMethodRaw []byte) []classCoverage {
	methodsByClass := make(map[string][]any)
	gjson.GetBytes(perMethodRaw, "records").ForEach(func(_, row gjson.Result) bool {
		class := row.Get("ApexClassOrTrigger.Name").String()
		covered := row.Get("NumLinesCovered").Int()
		uncovered := row.Get("NumLinesUncovered").Int()
		methodsByClass[class] = append(methodsByClass[class], map[string]any{
			"testClass":       row.Get("ApexTestClass.Name").String(),
			"testMethod":      row.Get("TestMethodName").String(),
			"linesCovered":    covered,
			"linesUncovered":  uncovered,
			"coveragePercent": percent(covered, uncovered),
		})
		return true
	})

	byClass := make(map[string]classCoverage)
	gjson.GetBytes(aggregateRaw, "records").ForEach(func(_, row gjson.Result) bool {
		name := row.Get("ApexClassOrTrigger.Name").String()
		covered := row.Get("NumLinesCovered").Int()
		uncovered := row.Get("NumLinesUncovered").Int()
		byClass[name] = classCoverage{
			ClassName:       name,
			Found:           true,
			CoveragePercent: percent(covered, uncovered),
			LinesCovered:    covered,
			LinesUncovered:  uncovered,
			Methods:         methodsByClass[name],
		}
		return true
	})

	out := make([]classCoverage, 0, len(requested))
	for _, name := range requested {
		if c, ok := byClass[name]; ok {
			out = append(out, c)
		} else {
			out = append(out, classCoverage{ClassName: name})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Found != out[j].Found {
			return out[i].Found
		}
		return out[i].CoveragePercent < out[j].CoveragePercent
	})
	return out
}

func percent(covered, uncovered int64) float64 {
	total := covered + uncovered
	if total == 0 {
		return 0
	}
	return float64(covered) / float64(total) * 100
}

// ApexDebugLogs manages user debug logging: trace flags on/off/status
// through the Tooling API, log listing and retrieval through the CLI.
func (h *Handlers) ApexDebugLogs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	action, err := req.RequireString("action")
	if err != nil {
		return validationError(err.Error()), nil
	}

	switch action {
	case "list":
		doc, err := h.cli.RunJSON(ctx, "apex", "log", "list")
		if err != nil {
			return errResultFor(err), nil
		}
		logs := doc.Get("result").Value()
		if logs == nil {
			logs = []any{}
		}
		structured := map[string]any{"action": action, "logs": logs}
		return okResult("Listed debug logs", structured), nil

	case "get":
		logID := req.GetString("logId", "")
		if !recordIDPattern.MatchString(logID) {
			return validationError(fmt.Sprintf("invalid logId %q", logID)), nil
		}
		doc, err := h.cli.RunJSON(ctx, "apex", "log", "get", "--log-id", logID)
		if err != nil {
			return errResultFor(err), nil
		}
		body := doc.Get("result.0.log").String()
		if body == "" {
			body = doc.Get("result.log").String()
		}
		structured := map[string]any{"action": action, "logId": logID, "log": body}
		return okResult(fmt.Sprintf("Fetched debug log %s", logID), structured), nil

	case "on":
		return h.debugLogsOn(ctx)
	case "off":
		return h.debugLogsOff(ctx)
	case "status":
		return h.debugLogsStatus(ctx)
	default:
		return validationError(fmt.Sprintf("unknown action %q, expected one of on, off, status, list, get", action)), nil
	}
}

func (h *Handlers) orgUserID() (string, error) {
	org, ok := h.st.Org()
	if !ok {
		return "", salesforce.ErrNotInitialized
	}
	if org.User.ID == "" {
		return "", fmt.Errorf("%w: org user is not resolved", salesforce.ErrNotInitialized)
	}
	return org.User.ID, nil
}

// debugLogsOn creates a USER_DEBUG trace flag for the org user, reusing
// the developer console debug level.
func (h *Handlers) debugLogsOn(ctx context.Context) (*mcp.CallToolResult, error) {
	userID, err := h.orgUserID()
	if err != nil {
		return errResultFor(err), nil
	}

	level, err := h.gw.ToolingQuery(ctx,
		"SELECT Id FROM DebugLevel WHERE DeveloperName = 'SFDC_DevConsole' LIMIT 1")
	if err != nil {
		return errResultFor(err), nil
	}
	levelID := gjson.GetBytes(level.Raw, "records.0.Id").String()
	if levelID == "" {
		return errResult(kindUpstream, "no SFDC_DevConsole debug level found in the org"), nil
	}

	now := h.now().UTC()
	resp, err := h.gw.Call(ctx, salesforce.Request{
		Method:  http.MethodPost,
		APIType: salesforce.APITooling,
		Service: "/sobjects/TraceFlag",
		Body: map[string]any{
			"TracedEntityId": userID,
			"DebugLevelId":   levelID,
			"LogType":        "USER_DEBUG",
			"StartDate":      now.Format(time.RFC3339),
			"ExpirationDate": now.Add(time.Hour).Format(time.RFC3339),
		},
	})
	if err != nil {
		return errResultFor(err), nil
	}

	traceFlagID := ""
	if body, ok := resp.Data.(map[string]any); ok {
		traceFlagID, _ = body["id"].(string)
	}
	structured := map[string]any{
		"action":      "on",
		"traceFlagId": traceFlagID,
		"expires":     now.Add(time.Hour).Format(time.RFC3339),
	}
	return okResult("Debug logging enabled for one hour", structured), nil
}

// debugLogsOff deletes the org user's active trace flags.
func (h *Handlers) debugLogsOff(ctx context.Context) (*mcp.CallToolResult, error) {
	userID, err := h.orgUserID()
	if err != nil {
		return errResultFor(err), nil
	}

	flags, err := h.gw.ToolingQuery(ctx, fmt.Sprintf(
		"SELECT Id FROM TraceFlag WHERE TracedEntityId = '%s' AND LogType = 'USER_DEBUG'",
		salesforce.EscapeSOQLString(userID),
	))
	if err != nil {
		return errResultFor(err), nil
	}

	removed := 0
	var firstErr error
	gjson.GetBytes(flags.Raw, "records.#.Id").ForEach(func(_, id gjson.Result) bool {
		_, err := h.gw.Call(ctx, salesforce.Request{
			Method:  http.MethodDelete,
			APIType: salesforce.APITooling,
			Service: "/sobjects/TraceFlag/" + id.String(),
		})
		if err != nil {
			firstErr = err
			return false
		}
		removed++
		return true
	})
	if firstErr != nil {
		return errResultFor(firstErr), nil
	}

	structured := map[string]any{"action": "off", "removed": removed}
	return okResult(fmt.Sprintf("Removed %d trace flags", removed), structured), nil
}

// debugLogsStatus reports whether an unexpired trace flag exists.
func (h *Handlers) debugLogsStatus(ctx context.Context) (*mcp.CallToolResult, error) {
	userID, err := h.orgUserID()
	if err != nil {
		return errResultFor(err), nil
	}

	flags, err := h.gw.ToolingQuery(ctx, fmt.Sprintf(
		"SELECT Id, ExpirationDate FROM TraceFlag WHERE TracedEntityId = '%s' AND LogType = 'USER_DEBUG' AND ExpirationDate > %s",
		salesforce.EscapeSOQLString(userID),
		h.now().UTC().Format("2006-01-02T15:04:05Z"),
	))
	if err != nil {
		return errResultFor(err), nil
	}

	count := gjson.GetBytes(flags.Raw, "records.#").Int()
	structured := map[string]any{
		"action":  "status",
		"enabled": count > 0,
		"flags":   gjson.GetBytes(flags.Raw, "records").Value(),
	}
	text := "Debug logging is off"
	if count > 0 {
		text = "Debug logging is on"
	}
	return okResult(text, structured), nil
}

// restResourcePattern extracts the urlMapping of an @RestResource class.
var restResourcePattern = regexp.MustCompile(`@RestResource\s*\(\s*[uU]rlMapping\s*=\s*'([^']+)'`)

// InvokeApexRestResource calls a custom Apex REST endpoint, resolving the
// class's urlMapping through the Tooling API when a class name is given.
func (h *Handlers) InvokeApexRestResource(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	target, err := req.RequireString("apexClassOrRestResourceName")
	if err != nil {
		return validationError(err.Error()), nil
	}
	operation := strings.ToUpper(req.GetString("operation", "GET"))

	path := target
	if !strings.HasPrefix(target, "/") {
		if !identifierPattern.MatchString(target) {
			return validationError(fmt.Sprintf("invalid Apex class name %q", target)), nil
		}
		resolved, resolveErr := h.resolveRestResourcePath(ctx, target)
		if resolveErr != nil {
			return errResultFor(resolveErr), nil
		}
		if resolved == "" {
			return errResult(kindValidation,
				fmt.Sprintf("Apex class %q carries no @RestResource urlMapping", target)), nil
		}
		path = resolved
	}
	path = strings.TrimSuffix(path, "/*")

	var body any
	args := req.GetArguments()
	if raw, ok := args["body"]; ok {
		body = raw
	}
	queryParams := map[string]string{}
	if params, ok := args["urlParams"].(map[string]any); ok {
		for k, v := range params {
			queryParams[k] = fmt.Sprintf("%v", v)
		}
	}
	headers := map[string]string{}
	if hs, ok := args["headers"].(map[string]any); ok {
		for k, v := range hs {
			headers[k] = fmt.Sprintf("%v", v)
		}
	}

	resp, err := h.gw.Call(ctx, salesforce.Request{
		Method:  operation,
		APIType: salesforce.APIApex,
		Service: path,
		Body:    body,
		Options: salesforce.Options{
			QueryParams: queryParams,
			Headers:     headers,
			BypassCache: true,
		},
	})
	if err != nil {
		return errResultFor(err), nil
	}

	structured := map[string]any{
		"statusCode": resp.StatusCode,
		"path":       path,
		"response":   resp.Data,
	}
	return okResult(fmt.Sprintf("%s %s returned HTTP %d", operation, path, resp.StatusCode), structured), nil
}

// resolveRestResourcePath reads the class body and extracts its
// urlMapping.
func (h *Handlers) resolveRestResourcePath(ctx context.Context, className string) (string, error) {
	resp, err := h.gw.ToolingQuery(ctx, fmt.Sprintf(
		"SELECT Body FROM ApexClass WHERE Name = '%s' LIMIT 1",
		salesforce.EscapeSOQLString(className),
	))
	if err != nil {
		return "", err
	}
	body := gjson.GetBytes(resp.Raw, "records.0.Body").String()
	if body == "" {
		return "", fmt.Errorf("%w: Apex class %q not found", salesforce.ErrValidation, className)
	}
	match := restResourcePattern.FindStringSubmatch(body)
	if match == nil {
		return "", nil
	}
	return match[1], nil
}
