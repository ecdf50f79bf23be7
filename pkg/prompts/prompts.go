// SPDX-FileCopyrightText: Copyright 2026 forcedev authors
// SPDX-License-Identifier: Apache-2.0

// Package prompts serves the parameterized message templates exposed
// over prompts/list and prompts/get.
package prompts

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// Definition pairs a prompt contract with its renderer.
type Definition struct {
	Prompt  mcp.Prompt
	Handler func(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error)
}

// Definitions returns the three server prompts.
func Definitions() []Definition {
	return []Definition{
		{
			Prompt: mcp.NewPrompt("apex-run-script",
				mcp.WithPromptDescription("Guide the agent through writing and safely executing an anonymous Apex script."),
				mcp.WithArgument("goal",
					mcp.ArgumentDescription("What the script should accomplish"),
					mcp.RequiredArgument()),
			),
			Handler: apexRunScript,
		},
		{
			Prompt: mcp.NewPrompt("tools-basic-run",
				mcp.WithPromptDescription("Walk through the read-only tools to explore an unfamiliar org."),
				mcp.WithArgument("sObjectName",
					mcp.ArgumentDescription("Optional SObject to center the exploration on")),
			),
			Handler: toolsBasicRun,
		},
		{
			Prompt: mcp.NewPrompt("orgOnboarding",
				mcp.WithPromptDescription("Produce an onboarding summary of the connected org: schema highlights, automation, recent changes."),
			),
			Handler: orgOnboarding,
		},
	}
}

func apexRunScript(_ context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	goal := req.Params.Arguments["goal"]
	if goal == "" {
		return nil, fmt.Errorf("the goal argument is required")
	}
	text := fmt.Sprintf(`Write an anonymous Apex script that accomplishes the following goal:

%s

Work in these steps:
1. Use describeObject on every SObject the script touches to confirm field API names.
2. Draft the script with System.debug statements on key values.
3. Run it with executeAnonymousApex. Set mayModify=true only if the script performs DML.
4. Read the returned logs and fix compile or runtime problems before rerunning.`, goal)

	return mcp.NewGetPromptResult(
		"Anonymous Apex workflow",
		[]mcp.PromptMessage{
			mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(text)),
		},
	), nil
}

func toolsBasicRun(_ context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	focus := req.Params.Arguments["sObjectName"]
	text := `Explore the connected Salesforce org using the read-only tools:

1. salesforceContextUtils getOrgAndUserDetails: confirm which org and user you are working as.
2. executeSoqlQuery: sample interesting records.
3. describeObject: inspect schemas before querying unfamiliar objects.
4. getRecentlyViewedRecords: see what the user worked on recently.`
	if focus != "" {
		text += fmt.Sprintf("\n\nCenter the exploration on the %s object: describe it first, then query a few records.", focus)
	}

	return mcp.NewGetPromptResult(
		"Org exploration workflow",
		[]mcp.PromptMessage{
			mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(text)),
		},
	), nil
}

func orgOnboarding(_ context.Context, _ mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	text := `Build an onboarding summary of this Salesforce org for a developer joining the team:

1. salesforceContextUtils getOrgAndUserDetails: org identity, edition and release.
2. salesforceContextUtils loadRecordPrefixesResource: key prefixes for id recognition.
3. describeObject on Account, Contact, Opportunity and any custom objects that look central.
4. getSetupAuditTrail lastDays=30: what changed recently and who changed it.
5. executeSoqlQuery on ApexClass and ApexTrigger (useToolingApi=true): the shape of the codebase.

Present the findings as a short structured briefing.`

	return mcp.NewGetPromptResult(
		"Org onboarding briefing",
		[]mcp.PromptMessage{
			mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(text)),
		},
	), nil
}
