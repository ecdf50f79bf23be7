// SPDX-FileCopyrightText: Copyright 2026 forcedev authors
// SPDX-License-Identifier: Apache-2.0

// Package bootstrap drives server initialization: client bind, workspace
// resolution, org identification, the permission check, and the switch
// to ready. The same phases rerun when the org watcher reports a
// default-org change.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"github.com/forcedev/sfmcp/pkg/cliexec"
	"github.com/forcedev/sfmcp/pkg/config"
	"github.com/forcedev/sfmcp/pkg/logger"
	"github.com/forcedev/sfmcp/pkg/resources"
	"github.com/forcedev/sfmcp/pkg/salesforce"
	"github.com/forcedev/sfmcp/pkg/state"
	"github.com/forcedev/sfmcp/pkg/watcher"
)

const (
	// ListRootsTimeout bounds the roots/list request to the client.
	ListRootsTimeout = 4 * time.Second

	// WorkspaceWaitTimeout is the ceiling on waiting for a workspace path
	// before falling back to the current working directory.
	WorkspaceWaitTimeout = 5 * time.Second
)

// RootsLister issues a roots/list request to the connected client.
// Implemented by the transport; a nil lister means the capability is
// unavailable.
type RootsLister interface {
	ListRoots(ctx context.Context) ([]string, error)
}

// Bootstrapper owns the initialization phases and the org-change rerun.
type Bootstrapper struct {
	cfg     config.Config
	st      *state.ServerState
	cli     cliexec.Runner
	gateway *salesforce.Client
	store   *resources.Store
	watch   *watcher.Watcher
	roots   RootsLister

	mu           sync.Mutex
	lastUsername string

	workspaceSet  chan struct{}
	workspaceOnce sync.Once

	ready     chan struct{}
	readyOnce sync.Once

	watcherCtx    context.Context
	watcherCancel context.CancelFunc
	watcherOnce   sync.Once
}

// New wires a bootstrapper over the shared server components.
func New(cfg config.Config, st *state.ServerState, cli cliexec.Runner, gw *salesforce.Client, store *resources.Store, w *watcher.Watcher) *Bootstrapper {
	ctx, cancel := context.WithCancel(context.Background())
	return &Bootstrapper{
		cfg:           cfg,
		st:            st,
		cli:           cli,
		gateway:       gw,
		store:         store,
		watch:         w,
		workspaceSet:  make(chan struct{}),
		ready:         make(chan struct{}),
		watcherCtx:    ctx,
		watcherCancel: cancel,
	}
}

// SetRootsLister installs the transport's roots/list implementation.
// Called once at wiring time.
func (b *Bootstrapper) SetRootsLister(l RootsLister) {
	b.roots = l
}

// Ready is closed when initialization reaches the ready state.
func (b *Bootstrapper) Ready() <-chan struct{} {
	return b.ready
}

// OnInitialize runs the full phase sequence for an initialize request.
// Phase failures past the client bind are logged but do not fail the
// handshake; tools report the degraded state instead.
func (b *Bootstrapper) OnInitialize(ctx context.Context, client state.ClientDescriptor) {
	b.st.SetClient(client)
	logger.Infow("client bound", "name", client.Name, "version", client.Version)

	b.resolveWorkspace(ctx)
	b.waitForWorkspace(ctx)

	if err := b.identifyOrg(ctx); err != nil {
		logger.Errorf("org identification failed: %v", err)
	} else if err := b.checkPermissions(ctx); err != nil {
		logger.Errorf("permission check failed: %v", err)
	}

	b.startWatcher()
	b.startBackgroundRefresh()

	b.st.SetInitializationComplete(true)
	b.readyOnce.Do(func() { close(b.ready) })
	logger.Info("initialization complete")
}

// resolveWorkspace tries, in order: the configured workspace paths, the
// client's roots capability, and the current working directory.
func (b *Bootstrapper) resolveWorkspace(ctx context.Context) {
	if path := b.cfg.FirstWorkspacePath(); path != "" {
		b.setWorkspace(path, "config")
		return
	}

	if b.roots != nil && b.st.ClientHas(state.CapRoots) {
		rootsCtx, cancel := context.WithTimeout(ctx, ListRootsTimeout)
		defer cancel()
		uris, err := b.roots.ListRoots(rootsCtx)
		if err != nil {
			logger.Warnf("roots/list failed: %v", err)
		} else if path := firstFilePath(uris); path != "" {
			b.setWorkspace(path, "roots")
			return
		}
	}

	if cwd, err := os.Getwd(); err == nil {
		b.setWorkspace(cwd, "cwd")
	}
}

// OnRootsChanged handles a roots/list_changed notification. Resolution is
// single-shot: a path set during initialization is never overwritten.
func (b *Bootstrapper) OnRootsChanged(ctx context.Context) {
	if b.st.WorkspacePath() != "" || b.roots == nil {
		return
	}
	rootsCtx, cancel := context.WithTimeout(ctx, ListRootsTimeout)
	defer cancel()
	uris, err := b.roots.ListRoots(rootsCtx)
	if err != nil {
		logger.Warnf("roots/list failed after roots change: %v", err)
		return
	}
	if path := firstFilePath(uris); path != "" {
		b.setWorkspace(path, "roots-changed")
	}
}

func (b *Bootstrapper) setWorkspace(path, source string) {
	if err := os.Chdir(path); err != nil {
		logger.Warnf("failed to change directory to workspace %q: %v", path, err)
		return
	}
	b.st.SetWorkspacePath(path)
	b.workspaceOnce.Do(func() { close(b.workspaceSet) })
	logger.Infow("workspace resolved", "path", path, "source", source)
}

// waitForWorkspace gates org identification on a resolved path, falling
// back to the current working directory at the ceiling.
func (b *Bootstrapper) waitForWorkspace(ctx context.Context) {
	select {
	case <-b.workspaceSet:
	case <-ctx.Done():
	case <-time.After(WorkspaceWaitTimeout):
		if cwd, err := os.Getwd(); err == nil {
			b.setWorkspace(cwd, "timeout-fallback")
		}
	}
}

// identifyOrg resolves the default org through the CLI. Failure clears
// the org identity so the gateway reports not-initialized.
func (b *Bootstrapper) identifyOrg(ctx context.Context) error {
	info, err := cliexec.DisplayOrg(ctx, b.cli)
	if err != nil {
		b.st.ClearOrg()
		return err
	}
	b.st.SetOrg(state.OrgIdentity{
		Alias:       info.Alias,
		Username:    info.Username,
		InstanceURL: info.InstanceURL,
		AccessToken: info.AccessToken,
		APIVersion:  info.APIVersion,
		ID:          info.ID,
	})
	logger.Infow("org identified", "alias", info.Alias, "username", info.Username, "instanceUrl", info.InstanceURL)
	return nil
}

// checkPermissions verifies the org user may drive this server, unless
// bypassed in configuration. A username change invalidates the resource
// store first.
func (b *Bootstrapper) checkPermissions(ctx context.Context) error {
	org, ok := b.st.Org()
	if !ok {
		return fmt.Errorf("no org bound")
	}

	b.mu.Lock()
	if b.lastUsername != "" && b.lastUsername != org.Username {
		logger.Infow("org user changed, clearing resources", "old", b.lastUsername, "new", org.Username)
		b.store.Clear()
	}
	b.lastUsername = org.Username
	b.mu.Unlock()

	soql := fmt.Sprintf(
		"SELECT Id, Name, Profile.Name, UserRole.Name FROM User WHERE Username = '%s'",
		salesforce.EscapeSOQLString(org.Username),
	)
	if !b.cfg.BypassPermissionCheck {
		soql += fmt.Sprintf(
			" AND Id IN (SELECT AssigneeId FROM PermissionSetAssignment WHERE PermissionSet.Name = '%s')",
			salesforce.EscapeSOQLString(b.cfg.PermissionSetName),
		)
	}

	resp, err := b.gateway.Call(ctx, salesforce.Request{
		Method:  http.MethodGet,
		APIType: salesforce.APIRest,
		Service: "/query",
		Options: salesforce.Options{
			QueryParams: map[string]string{"q": soql},
			BypassCache: true,
		},
	})
	if err != nil {
		b.st.SetPermissionsValidated(false)
		return err
	}

	record := gjson.GetBytes(resp.Raw, "records.0")
	if !record.Exists() {
		b.st.SetPermissionsValidated(false)
		if b.cfg.BypassPermissionCheck {
			logger.Warnf("org user %q not found", org.Username)
		} else {
			logger.Warnf("org user %q lacks the %q permission set; tool calls will be blocked", org.Username, b.cfg.PermissionSetName)
		}
		return nil
	}

	b.st.SetOrgUser(state.UserDetails{
		ID:          record.Get("Id").String(),
		Name:        record.Get("Name").String(),
		ProfileName: record.Get("Profile.Name").String(),
		RoleName:    record.Get("UserRole.Name").String(),
	})
	b.st.SetPermissionsValidated(true)
	logger.Infow("permissions validated", "user", record.Get("Name").String())
	return nil
}

// startWatcher starts the org watcher once and consumes its events for
// the process lifetime.
func (b *Bootstrapper) startWatcher() {
	b.watcherOnce.Do(func() {
		if err := b.watch.Start(); err != nil {
			logger.Warnf("org watcher failed to start: %v", err)
			return
		}
		go func() {
			for {
				select {
				case <-b.watcherCtx.Done():
					return
				case change := <-b.watch.Events():
					b.onOrgChanged(b.watcherCtx, change)
				}
			}
		}()
	})
}

// onOrgChanged reruns org identification and the permission check for
// the new default org.
func (b *Bootstrapper) onOrgChanged(ctx context.Context, change watcher.OrgChanged) {
	logger.Infow("reinitializing for new default org", "old", change.Old, "new", change.New)
	b.gateway.ClearCache()
	if err := b.identifyOrg(ctx); err != nil {
		logger.Errorf("org identification failed after org change: %v", err)
		return
	}
	if err := b.checkPermissions(ctx); err != nil {
		logger.Errorf("permission check failed after org change: %v", err)
		return
	}
	b.startBackgroundRefresh()
}

// startBackgroundRefresh fetches the org release name and company
// details off the request path. One-shot: failures are warnings and are
// not retried.
func (b *Bootstrapper) startBackgroundRefresh() {
	go func() {
		ctx, cancel := context.WithTimeout(b.watcherCtx, 30*time.Second)
		defer cancel()

		details := make(map[string]any)
		var detailsMu sync.Mutex

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			release, err := b.fetchReleaseName(gctx)
			if err != nil {
				return fmt.Errorf("release name lookup: %w", err)
			}
			detailsMu.Lock()
			details["releaseName"] = release
			detailsMu.Unlock()
			return nil
		})
		g.Go(func() error {
			company, err := b.fetchCompanyDetails(gctx)
			if err != nil {
				return fmt.Errorf("company details query: %w", err)
			}
			detailsMu.Lock()
			for k, v := range company {
				details[k] = v
			}
			detailsMu.Unlock()
			return nil
		})
		if err := g.Wait(); err != nil {
			logger.Warnf("background org refresh incomplete: %v", err)
		}
		if len(details) > 0 {
			b.st.SetCompanyDetails(details)
		}
	}()
}

// fetchReleaseName reads the unauthenticated version listing at
// /services/data/ and returns the newest release label.
func (b *Bootstrapper) fetchReleaseName(ctx context.Context) (string, error) {
	org, ok := b.st.Org()
	if !ok {
		return "", fmt.Errorf("no org bound")
	}
	resp, err := b.gateway.Call(ctx, salesforce.Request{
		Method:  http.MethodGet,
		APIType: salesforce.APIRest,
		Service: "/",
		Options: salesforce.Options{
			BaseURL:     strings.TrimRight(org.InstanceURL, "/") + "/services/data/",
			BypassCache: true,
		},
	})
	if err != nil {
		return "", err
	}
	versions := gjson.ParseBytes(resp.Raw)
	if !versions.IsArray() {
		return "", fmt.Errorf("unexpected version listing shape")
	}
	arr := versions.Array()
	if len(arr) == 0 {
		return "", fmt.Errorf("empty version listing")
	}
	return arr[len(arr)-1].Get("label").String(), nil
}

// fetchCompanyDetails queries the Organization record.
func (b *Bootstrapper) fetchCompanyDetails(ctx context.Context) (map[string]any, error) {
	resp, err := b.gateway.Call(ctx, salesforce.Request{
		Method:  http.MethodGet,
		APIType: salesforce.APIRest,
		Service: "/query",
		Options: salesforce.Options{
			QueryParams: map[string]string{
				"q": "SELECT Id, Name, OrganizationType, InstanceName, IsSandbox, LanguageLocaleKey, NamespacePrefix, TrialExpirationDate FROM Organization",
			},
			BypassCache: true,
		},
	})
	if err != nil {
		return nil, err
	}
	record := gjson.GetBytes(resp.Raw, "records.0")
	if !record.Exists() {
		return nil, fmt.Errorf("no Organization record returned")
	}
	details := make(map[string]any)
	record.ForEach(func(key, value gjson.Result) bool {
		if key.String() == "attributes" {
			return true
		}
		details[key.String()] = value.Value()
		return true
	})
	return details, nil
}

// Shutdown stops the watcher consumer and the org watcher itself.
func (b *Bootstrapper) Shutdown() {
	b.watcherCancel()
	b.watch.Stop()
}

var driveLetterPattern = regexp.MustCompile(`^/[A-Za-z]:`)

// firstFilePath returns the first root that is a decodable file:// URI.
func firstFilePath(uris []string) string {
	for _, raw := range uris {
		if !strings.HasPrefix(raw, "file://") {
			continue
		}
		parsed, err := url.Parse(raw)
		if err != nil {
			continue
		}
		path := parsed.Path
		if path == "" {
			continue
		}
		// file:///C:/dir arrives with a leading slash before the drive.
		if driveLetterPattern.MatchString(path) {
			path = path[1:]
		}
		return path
	}
	return ""
}
