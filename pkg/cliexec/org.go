// SPDX-FileCopyrightText: Copyright 2026 forcedev authors
// SPDX-License-Identifier: Apache-2.0

package cliexec

import (
	"context"
	"fmt"
	"strings"
)

// OrgInfo is the org identity reported by `sf org display`.
type OrgInfo struct {
	Alias       string
	Username    string
	InstanceURL string
	AccessToken string
	APIVersion  string
	ID          string
}

// DisplayOrg resolves the default target org via `sf org display --json`.
// An empty or "unknown" username means the CLI has no usable default org.
func DisplayOrg(ctx context.Context, r Runner) (OrgInfo, error) {
	doc, err := r.RunJSON(ctx, "org", "display")
	if err != nil {
		return OrgInfo{}, err
	}

	result := doc.Get("result")
	info := OrgInfo{
		Alias:       result.Get("alias").String(),
		Username:    result.Get("username").String(),
		InstanceURL: result.Get("instanceUrl").String(),
		AccessToken: result.Get("accessToken").String(),
		APIVersion:  result.Get("apiVersion").String(),
		ID:          result.Get("id").String(),
	}

	if info.Username == "" || strings.EqualFold(info.Username, "unknown") {
		return OrgInfo{}, fmt.Errorf("%w: no default org is set (org display returned username %q)", ErrCLI, info.Username)
	}
	return info, nil
}

// RefreshAccessToken obtains a fresh access token for the default org.
// The CLI owns the OAuth credentials; re-running org display forces it to
// mint a new token when the cached one has expired.
func RefreshAccessToken(ctx context.Context, r Runner) (string, error) {
	info, err := DisplayOrg(ctx, r)
	if err != nil {
		return "", err
	}
	if info.AccessToken == "" {
		return "", fmt.Errorf("%w: org display returned no access token", ErrCLI)
	}
	return info.AccessToken, nil
}
