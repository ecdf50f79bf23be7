// SPDX-FileCopyrightText: Copyright 2026 forcedev authors
// SPDX-License-Identifier: Apache-2.0

// Package app provides the sfmcp command-line application.
package app

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/forcedev/sfmcp/pkg/config"
	"github.com/forcedev/sfmcp/pkg/logger"
	"github.com/forcedev/sfmcp/pkg/server"
)

// Version is the release version, overridden at build time via
// -ldflags "-X github.com/forcedev/sfmcp/cmd/sfmcp/app.Version=...".
var Version = "dev"

// NewRootCmd creates the sfmcp root command. Running it without a
// subcommand starts the server.
func NewRootCmd() *cobra.Command {
	v := viper.New()
	config.BindEnv(v)

	rootCmd := &cobra.Command{
		Use:               "sfmcp",
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		Short:             "MCP server bridging AI agents to a Salesforce org",
		Long: `sfmcp exposes a Salesforce org to MCP clients. It delegates
authentication to the Salesforce CLI and serves SOQL, describe, DML,
Apex and metadata operations as MCP tools over stdio or streamable HTTP.`,
		Version: Version,
		PersistentPreRun: func(*cobra.Command, []string) {
			logger.Initialize()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServer(cmd, v)
		},
	}

	flags := rootCmd.Flags()
	flags.String("transport", config.TransportStdio, "Transport to serve on: stdio or http")
	flags.Int("port", config.DefaultPort, "HTTP listen port (http transport only)")
	flags.String("log-level", config.DefaultLogLevel, "Minimum log level (syslog-style names)")
	flags.String("workspace", "", "Comma-separated workspace paths; the first entry wins")
	flags.String("sf-command", config.DefaultSFCommand, "Salesforce CLI binary to invoke")
	flags.Bool("strict-ssl", true, "Verify TLS certificates on Salesforce API calls")
	flags.Bool("cache-enabled", true, "Cache GET responses from the Salesforce APIs")
	flags.Bool("bypass-permission-check", false, "Skip the permission set membership check")
	flags.String("permission-set", config.DefaultPermissionSetName, "Permission set gating tool access")
	flags.String("issue-webhook-url", "", "Webhook receiving reportIssue payloads")

	for _, name := range []string{
		"transport", "port", "log-level", "workspace", "sf-command",
		"strict-ssl", "cache-enabled", "bypass-permission-check",
		"permission-set", "issue-webhook-url",
	} {
		if err := v.BindPFlag(name, flags.Lookup(name)); err != nil {
			logger.Errorf("binding flag %s: %v", name, err)
		}
	}

	return rootCmd
}

func runServer(cmd *cobra.Command, v *viper.Viper) error {
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		return err
	}

	srv, err := server.New(cfg, Version)
	if err != nil {
		return fmt.Errorf("initializing server: %w", err)
	}
	// Shutdown runs after the signal context is already cancelled, so it
	// gets a fresh context for the graceful teardown window.
	defer srv.Shutdown(context.Background())

	return srv.Start(cmd.Context())
}
