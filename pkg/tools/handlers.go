// SPDX-FileCopyrightText: Copyright 2026 forcedev authors
// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"net/http"
	"regexp"
	"time"

	"github.com/forcedev/sfmcp/pkg/cliexec"
	"github.com/forcedev/sfmcp/pkg/config"
	"github.com/forcedev/sfmcp/pkg/resources"
	"github.com/forcedev/sfmcp/pkg/salesforce"
	"github.com/forcedev/sfmcp/pkg/state"
	"github.com/forcedev/sfmcp/pkg/tmpfiles"
)

// Handlers carries the shared dependencies every tool implementation
// draws on. One instance is wired at startup and owned by the transport.
type Handlers struct {
	cfg   config.Config
	st    *state.ServerState
	cli   cliexec.Runner
	gw    *salesforce.Client
	store *resources.Store
	tmp   *tmpfiles.Manager

	// httpClient posts issue reports to the configured webhook.
	httpClient *http.Client
	now        func() time.Time
}

// NewHandlers wires the tool handlers.
func NewHandlers(cfg config.Config, st *state.ServerState, cli cliexec.Runner, gw *salesforce.Client, store *resources.Store, tmp *tmpfiles.Manager) *Handlers {
	return &Handlers{
		cfg:        cfg,
		st:         st,
		cli:        cli,
		gw:         gw,
		store:      store,
		tmp:        tmp,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		now:        time.Now,
	}
}

var (
	// sObjectNamePattern matches standard and custom object API names.
	sObjectNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*(__(c|mdt|e|b|x|kav|ka))?$`)

	// recordIDPattern matches 15- and 18-character Salesforce ids.
	recordIDPattern = regexp.MustCompile(`^[a-zA-Z0-9]{15}([a-zA-Z0-9]{3})?$`)

	// identifierPattern matches Apex class and trigger names.
	identifierPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)
)
