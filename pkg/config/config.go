// SPDX-FileCopyrightText: Copyright 2026 forcedev authors
// SPDX-License-Identifier: Apache-2.0

// Package config resolves the sfmcp runtime configuration from CLI flags,
// environment variables and defaults, in that priority order. Flags are
// bound through viper so every setting has an environment fallback.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Transport names accepted by the --transport flag.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// Defaults applied when neither flag nor environment provides a value.
const (
	DefaultPort              = 3000
	DefaultLogLevel          = "info"
	DefaultSFCommand         = "sf"
	DefaultPermissionSetName = "MCP_Server_User"
)

// Config is the resolved runtime configuration. It is read-only after
// Load returns.
type Config struct {
	// Transport selects stdio or streamable HTTP.
	Transport string

	// Port is the HTTP listen port. When busy, the next ten consecutive
	// ports are probed before startup fails.
	Port int

	// LogLevel is one of the eight syslog-style level names.
	LogLevel string

	// Workspace is a comma-separated list of workspace paths; the first
	// entry wins during workspace resolution.
	Workspace string

	// SFCommand is the Salesforce CLI binary to spawn.
	SFCommand string

	// StrictSSL controls TLS certificate verification towards Salesforce.
	// Once relaxed it stays relaxed for the process lifetime.
	StrictSSL bool

	// CacheEnabled globally enables the gateway response cache.
	CacheEnabled bool

	// BypassPermissionCheck skips the permission-set membership filter
	// during initialization phase 4.
	BypassPermissionCheck bool

	// PermissionSetName is the permission set whose assignment gates
	// tool access.
	PermissionSetName string

	// IssueWebhookURL receives reportIssue payloads. Empty disables the
	// action.
	IssueWebhookURL string
}

// envBindings maps viper keys to their environment fallbacks.
var envBindings = map[string]string{
	"transport":               "MCP_TRANSPORT",
	"port":                    "MCP_HTTP_PORT",
	"log-level":               "LOG_LEVEL",
	"workspace":               "WORKSPACE_FOLDER_PATHS",
	"sf-command":              "SFMCP_SF_COMMAND",
	"strict-ssl":              "SFMCP_STRICT_SSL",
	"cache-enabled":           "SFMCP_CACHE_ENABLED",
	"bypass-permission-check": "SFMCP_BYPASS_PERMISSION_CHECK",
	"permission-set":          "SFMCP_PERMISSION_SET",
	"issue-webhook-url":       "SFMCP_ISSUE_WEBHOOK_URL",
}

// BindEnv registers the environment fallbacks for every setting.
// Flag bindings happen in the cobra layer; viper merges both with
// flag > env > default priority.
func BindEnv(v *viper.Viper) {
	for key, env := range envBindings {
		// BindEnv only errors on an empty key, which cannot happen here.
		_ = v.BindEnv(key, env)
	}
	v.SetDefault("transport", TransportStdio)
	v.SetDefault("port", DefaultPort)
	v.SetDefault("log-level", DefaultLogLevel)
	v.SetDefault("sf-command", DefaultSFCommand)
	v.SetDefault("strict-ssl", true)
	v.SetDefault("cache-enabled", true)
	v.SetDefault("permission-set", DefaultPermissionSetName)
}

// Load materializes and validates a Config from the given viper instance.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Transport:             strings.ToLower(v.GetString("transport")),
		Port:                  v.GetInt("port"),
		LogLevel:              strings.ToLower(v.GetString("log-level")),
		Workspace:             v.GetString("workspace"),
		SFCommand:             v.GetString("sf-command"),
		StrictSSL:             v.GetBool("strict-ssl"),
		CacheEnabled:          v.GetBool("cache-enabled"),
		BypassPermissionCheck: v.GetBool("bypass-permission-check"),
		PermissionSetName:     v.GetString("permission-set"),
		IssueWebhookURL:       v.GetString("issue-webhook-url"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field values that have a closed domain.
func (c *Config) Validate() error {
	switch c.Transport {
	case TransportStdio, TransportHTTP:
	default:
		return fmt.Errorf("invalid transport %q: must be %q or %q", c.Transport, TransportStdio, TransportHTTP)
	}

	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be in 1-65535", c.Port)
	}

	switch c.LogLevel {
	case "emergency", "alert", "critical", "error", "warning", "notice", "info", "debug":
	default:
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}

	return nil
}

// FirstWorkspacePath returns the first comma-separated workspace entry,
// trimmed, or "" when unset.
func (c *Config) FirstWorkspacePath() string {
	if c.Workspace == "" {
		return ""
	}
	parts := strings.Split(c.Workspace, ",")
	return strings.TrimSpace(parts[0])
}
