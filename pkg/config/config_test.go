// SPDX-FileCopyrightText: Copyright 2026 forcedev authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper() *viper.Viper {
	v := viper.New()
	BindEnv(v)
	return v
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(newViper())
	require.NoError(t, err)

	assert.Equal(t, TransportStdio, cfg.Transport)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
	assert.Equal(t, DefaultSFCommand, cfg.SFCommand)
	assert.Equal(t, DefaultPermissionSetName, cfg.PermissionSetName)
	assert.True(t, cfg.StrictSSL)
	assert.True(t, cfg.CacheEnabled)
	assert.False(t, cfg.BypassPermissionCheck)
}

func TestEnvironmentOverridesDefaults(t *testing.T) {
	t.Setenv("MCP_TRANSPORT", "http")
	t.Setenv("MCP_HTTP_PORT", "4500")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("SFMCP_STRICT_SSL", "false")

	cfg, err := Load(newViper())
	require.NoError(t, err)

	assert.Equal(t, TransportHTTP, cfg.Transport)
	assert.Equal(t, 4500, cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.False(t, cfg.StrictSSL)
}

func TestExplicitValueBeatsEnvironment(t *testing.T) {
	t.Setenv("MCP_HTTP_PORT", "4500")

	v := newViper()
	// Set simulates a bound CLI flag, which viper ranks above env vars.
	v.Set("port", 9999)

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Port)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value any
	}{
		{"unknown transport", "transport", "websocket"},
		{"port too low", "port", 0},
		{"port too high", "port", 70000},
		{"unknown log level", "log-level", "verbose"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := newViper()
			v.Set(tc.key, tc.value)
			_, err := Load(v)
			assert.Error(t, err)
		})
	}
}

func TestTransportAndLevelAreCaseInsensitive(t *testing.T) {
	v := newViper()
	v.Set("transport", "HTTP")
	v.Set("log-level", "Warning")

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, TransportHTTP, cfg.Transport)
	assert.Equal(t, "warning", cfg.LogLevel)
}

func TestFirstWorkspacePath(t *testing.T) {
	assert.Empty(t, (&Config{}).FirstWorkspacePath())
	assert.Equal(t, "/a", (&Config{Workspace: "/a"}).FirstWorkspacePath())
	assert.Equal(t, "/a", (&Config{Workspace: " /a , /b"}).FirstWorkspacePath())
}
