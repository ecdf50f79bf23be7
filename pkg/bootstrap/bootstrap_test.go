// SPDX-FileCopyrightText: Copyright 2026 forcedev authors
// SPDX-License-Identifier: Apache-2.0

package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/forcedev/sfmcp/pkg/cliexec"
	"github.com/forcedev/sfmcp/pkg/config"
	"github.com/forcedev/sfmcp/pkg/resources"
	"github.com/forcedev/sfmcp/pkg/salesforce"
	"github.com/forcedev/sfmcp/pkg/state"
	"github.com/forcedev/sfmcp/pkg/watcher"
)

type fakeRoots struct {
	uris  []string
	err   error
	calls int
}

func (f *fakeRoots) ListRoots(context.Context) ([]string, error) {
	f.calls++
	return f.uris, f.err
}

type fakeCLI struct {
	displayJSON string
	err         error
}

func (f *fakeCLI) Run(context.Context, ...string) (*cliexec.Output, error) {
	return &cliexec.Output{}, nil
}

func (f *fakeCLI) RunJSON(context.Context, ...string) (gjson.Result, error) {
	if f.err != nil {
		return gjson.Result{}, f.err
	}
	return gjson.Parse(f.displayJSON), nil
}

func newBootstrapper(t *testing.T, cfg config.Config, cli cliexec.Runner, gatewayURL string) (*Bootstrapper, *state.ServerState, *resources.Store) {
	t.Helper()
	st := state.New()
	if gatewayURL != "" {
		st.SetOrg(state.OrgIdentity{
			Username:    "u@example.com",
			InstanceURL: gatewayURL,
			AccessToken: "tok",
			APIVersion:  "62.0",
			ID:          "00Dxx0000001gPFEAY",
		})
	}
	store := resources.NewStore(0)
	gw := salesforce.NewClient(st, cli, salesforce.ClientConfig{StrictSSL: true})
	t.Cleanup(gw.Close)
	b := New(cfg, st, cli, gw, store, watcher.New(t.TempDir()))
	t.Cleanup(b.Shutdown)
	return b, st, store
}

func TestWorkspaceResolutionPrefersConfig(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(t.TempDir())

	roots := &fakeRoots{uris: []string{"file:///never/used"}}
	b, st, _ := newBootstrapper(t, config.Config{Workspace: dir + ",second"}, &fakeCLI{}, "")
	b.SetRootsLister(roots)
	st.SetClient(state.ClientDescriptor{Capabilities: map[string]bool{state.CapRoots: true}})

	b.resolveWorkspace(context.Background())

	assert.Equal(t, dir, st.WorkspacePath())
	assert.Zero(t, roots.calls, "roots/list must not be consulted when config provides a path")
}

func TestWorkspaceResolutionFallsBackToRootsThenCwd(t *testing.T) {
	dir := t.TempDir()
	cwd := t.TempDir()
	t.Chdir(cwd)

	b, st, _ := newBootstrapper(t, config.Config{}, &fakeCLI{}, "")
	b.SetRootsLister(&fakeRoots{uris: []string{"https://not-a-file", "file://" + dir}})
	st.SetClient(state.ClientDescriptor{Capabilities: map[string]bool{state.CapRoots: true}})

	b.resolveWorkspace(context.Background())
	assert.Equal(t, dir, st.WorkspacePath())

	// Without the roots capability the cwd wins.
	b2, st2, _ := newBootstrapper(t, config.Config{}, &fakeCLI{}, "")
	b2.SetRootsLister(&fakeRoots{uris: []string{"file://" + dir}})
	st2.SetClient(state.ClientDescriptor{})
	t.Chdir(cwd)

	b2.resolveWorkspace(context.Background())
	assert.Equal(t, cwd, st2.WorkspacePath())
}

func TestRootsChangeNeverOverridesResolvedPath(t *testing.T) {
	dir := t.TempDir()
	other := t.TempDir()
	t.Chdir(t.TempDir())

	roots := &fakeRoots{uris: []string{"file://" + other}}
	b, st, _ := newBootstrapper(t, config.Config{Workspace: dir}, &fakeCLI{}, "")
	b.SetRootsLister(roots)
	st.SetClient(state.ClientDescriptor{Capabilities: map[string]bool{state.CapRoots: true}})

	b.resolveWorkspace(context.Background())
	b.OnRootsChanged(context.Background())

	assert.Equal(t, dir, st.WorkspacePath())
	assert.Zero(t, roots.calls)
}

func TestFirstFilePath(t *testing.T) {
	assert.Equal(t, "/home/dev/project", firstFilePath([]string{"file:///home/dev/project"}))
	assert.Equal(t, "C:/Users/dev", firstFilePath([]string{"file:///C:/Users/dev"}))
	assert.Equal(t, "/with space", firstFilePath([]string{"file:///with%20space"}))
	assert.Equal(t, "/second", firstFilePath([]string{"https://example.com", "file:///second"}))
	assert.Empty(t, firstFilePath([]string{"https://example.com"}))
}

func TestIdentifyOrgFailureClearsState(t *testing.T) {
	cli := &fakeCLI{displayJSON: `{"result":{"username":"unknown"}}`}
	b, st, _ := newBootstrapper(t, config.Config{}, cli, "https://example.invalid")
	st.SetPermissionsValidated(true)

	err := b.identifyOrg(context.Background())
	require.Error(t, err)

	_, ok := st.Org()
	assert.False(t, ok)
	assert.False(t, st.PermissionsValidated())
}

func permissionServer(t *testing.T, records string, capture *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if capture != nil {
			*capture = r.URL.Query().Get("q")
		}
		fmt.Fprintf(w, `{"totalSize":1,"done":true,"records":%s}`, records)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestPermissionCheckValidatesUser(t *testing.T) {
	var soql string
	srv := permissionServer(t, `[{"Id":"005xx000001X8UzAAK","Name":"Dev User","Profile":{"Name":"System Administrator"},"UserRole":{"Name":"CEO"}}]`, &soql)

	cfg := config.Config{PermissionSetName: "MCP_Server_User"}
	b, st, _ := newBootstrapper(t, cfg, &fakeCLI{}, srv.URL)
	b.gateway = salesforce.NewClient(st, &fakeCLI{}, salesforce.ClientConfig{StrictSSL: true, HTTPClient: srv.Client()})

	require.NoError(t, b.checkPermissions(context.Background()))

	assert.True(t, st.PermissionsValidated())
	org, _ := st.Org()
	assert.Equal(t, "Dev User", org.User.Name)
	assert.Equal(t, "System Administrator", org.User.ProfileName)
	assert.Contains(t, soql, "PermissionSet.Name = 'MCP_Server_User'")
	assert.Contains(t, soql, "Username = 'u@example.com'")
}

func TestPermissionCheckBypassSkipsPermissionSetClause(t *testing.T) {
	var soql string
	srv := permissionServer(t, `[{"Id":"005xx000001X8UzAAK","Name":"Dev User"}]`, &soql)

	cfg := config.Config{BypassPermissionCheck: true, PermissionSetName: "MCP_Server_User"}
	b, st, _ := newBootstrapper(t, cfg, &fakeCLI{}, srv.URL)
	b.gateway = salesforce.NewClient(st, &fakeCLI{}, salesforce.ClientConfig{StrictSSL: true, HTTPClient: srv.Client()})

	require.NoError(t, b.checkPermissions(context.Background()))
	assert.True(t, st.PermissionsValidated())
	assert.NotContains(t, soql, "PermissionSetAssignment")
}

func TestPermissionCheckDeniesWithoutAssignment(t *testing.T) {
	srv := permissionServer(t, `[]`, nil)

	cfg := config.Config{PermissionSetName: "MCP_Server_User"}
	b, st, _ := newBootstrapper(t, cfg, &fakeCLI{}, srv.URL)
	b.gateway = salesforce.NewClient(st, &fakeCLI{}, salesforce.ClientConfig{StrictSSL: true, HTTPClient: srv.Client()})

	require.NoError(t, b.checkPermissions(context.Background()))
	assert.False(t, st.PermissionsValidated())
}

func TestUserChangeClearsResourceStore(t *testing.T) {
	srv := permissionServer(t, `[{"Id":"005xx000001X8UzAAK","Name":"Dev User"}]`, nil)

	cfg := config.Config{BypassPermissionCheck: true}
	b, st, store := newBootstrapper(t, cfg, &fakeCLI{}, srv.URL)
	b.gateway = salesforce.NewClient(st, &fakeCLI{}, salesforce.ClientConfig{StrictSSL: true, HTTPClient: srv.Client()})

	store.Upsert(resources.Resource{URI: "sf://describe/Account"})
	require.NoError(t, b.checkPermissions(context.Background()))
	assert.Equal(t, 1, store.Len(), "same user keeps resources")

	org, _ := st.Org()
	org.Username = "other@example.com"
	st.SetOrg(org)
	require.NoError(t, b.checkPermissions(context.Background()))
	assert.Zero(t, store.Len(), "user change clears resources")
}

func TestCheckPermissionsRequiresOrg(t *testing.T) {
	b, _, _ := newBootstrapper(t, config.Config{}, &fakeCLI{}, "")
	assert.Error(t, b.checkPermissions(context.Background()))
}

var errNoCLI = errors.New("sf not installed")

func TestIdentifyOrgPropagatesCLIFailure(t *testing.T) {
	b, st, _ := newBootstrapper(t, config.Config{}, &fakeCLI{err: errNoCLI}, "https://example.invalid")
	err := b.identifyOrg(context.Background())
	assert.ErrorIs(t, err, errNoCLI)
	_, ok := st.Org()
	assert.False(t, ok)
}
