// SPDX-FileCopyrightText: Copyright 2026 forcedev authors
// SPDX-License-Identifier: Apache-2.0

// Package state holds the process-wide server state shared by the
// initialization state machine, the org watcher, the Salesforce gateway
// and the tool handlers.
//
// The state record and the client descriptor are two of the three shared
// mutable regions in the process (the third is the gateway cache); both
// are guarded by an RWMutex and exposed only through copying accessors.
package state

import (
	"sync"
	"time"
)

// UserDetails describes the Salesforce user bound to the current org.
type UserDetails struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ProfileName string `json:"profileName"`
	RoleName    string `json:"roleName"`
}

// OrgIdentity is the identity of the connected Salesforce org as reported
// by the CLI and enriched by the permission check.
//
// AccessToken is sensitive: it must never be logged and anything derived
// from this struct passes through sanitize.Sanitize before leaving the
// process.
type OrgIdentity struct {
	Alias          string         `json:"alias"`
	Username       string         `json:"username"`
	InstanceURL    string         `json:"instanceUrl"`
	AccessToken    string         `json:"accessToken"`
	APIVersion     string         `json:"apiVersion"`
	ID             string         `json:"id"`
	User           UserDetails    `json:"user"`
	CompanyDetails map[string]any `json:"companyDetails,omitempty"`
}

// ClientDescriptor records the MCP client identity and capabilities,
// set once at handshake and read-only afterwards.
type ClientDescriptor struct {
	Name         string
	Version      string
	Capabilities map[string]bool
}

// Capability names queried through Client.Has.
const (
	CapRoots         = "roots"
	CapSampling      = "sampling"
	CapElicitation   = "elicitation"
	CapResources     = "resources"
	CapResourceLinks = "resource_links"
	CapLogging       = "logging"
)

// Has reports whether the client advertised the named capability.
func (c ClientDescriptor) Has(name string) bool {
	return c.Capabilities[name]
}

// ServerState is the process-wide record described in the data model.
// Mutated only by the initialization state machine and the org watcher
// callback; read by every other component.
type ServerState struct {
	mu sync.RWMutex

	org    *OrgIdentity
	client *ClientDescriptor

	startedAt       time.Time
	currentLogLevel string
	workspacePath   string

	userPermissionsValidated bool
	handshakeValidated       bool
	initializationComplete   bool
}

// New creates an empty server state stamped with the current time.
func New() *ServerState {
	return &ServerState{
		startedAt:       time.Now(),
		currentLogLevel: "info",
	}
}

// StartedAt returns the process start time.
func (s *ServerState) StartedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.startedAt
}

// SetLogLevel records the current log level name.
func (s *ServerState) SetLogLevel(level string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentLogLevel = level
}

// LogLevel returns the current log level name.
func (s *ServerState) LogLevel() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentLogLevel
}

// SetClient binds the client descriptor and marks the handshake as seen.
func (s *ServerState) SetClient(c ClientDescriptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cc := c
	cc.Capabilities = make(map[string]bool, len(c.Capabilities))
	for k, v := range c.Capabilities {
		cc.Capabilities[k] = v
	}
	s.client = &cc
	s.handshakeValidated = true
}

// Client returns a copy of the client descriptor; ok is false before the
// handshake.
func (s *ServerState) Client() (ClientDescriptor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.client == nil {
		return ClientDescriptor{}, false
	}
	return *s.client, true
}

// ClientHas reports whether the bound client advertised the capability.
// False before the handshake.
func (s *ServerState) ClientHas(capability string) bool {
	c, ok := s.Client()
	return ok && c.Has(capability)
}

// SetWorkspacePath records the resolved workspace path.
func (s *ServerState) SetWorkspacePath(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workspacePath = path
}

// WorkspacePath returns the resolved workspace path, "" while unresolved.
func (s *ServerState) WorkspacePath() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.workspacePath
}

// SetOrg replaces the org identity.
func (s *ServerState) SetOrg(org OrgIdentity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := org
	s.org = &o
}

// ClearOrg drops the org identity and the permission flag together, as
// happens when org identification fails.
func (s *ServerState) ClearOrg() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.org = nil
	s.userPermissionsValidated = false
}

// Org returns a copy of the org identity; ok is false when no org is bound.
func (s *ServerState) Org() (OrgIdentity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.org == nil {
		return OrgIdentity{}, false
	}
	o := *s.org
	if s.org.CompanyDetails != nil {
		o.CompanyDetails = make(map[string]any, len(s.org.CompanyDetails))
		for k, v := range s.org.CompanyDetails {
			o.CompanyDetails[k] = v
		}
	}
	return o, true
}

// SetAccessToken writes a refreshed token into the bound org identity.
// No-op when no org is bound.
func (s *ServerState) SetAccessToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.org != nil {
		s.org.AccessToken = token
	}
}

// SetOrgUser records the user details resolved by the permission check.
func (s *ServerState) SetOrgUser(u UserDetails) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.org != nil {
		s.org.User = u
	}
}

// SetCompanyDetails attaches the background-refreshed company details.
func (s *ServerState) SetCompanyDetails(details map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.org != nil {
		s.org.CompanyDetails = details
	}
}

// SetPermissionsValidated records the outcome of the permission check.
func (s *ServerState) SetPermissionsValidated(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userPermissionsValidated = ok
}

// PermissionsValidated reports whether the permission check passed.
func (s *ServerState) PermissionsValidated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userPermissionsValidated
}

// SetInitializationComplete marks the state machine as having reached
// Ready.
func (s *ServerState) SetInitializationComplete(done bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initializationComplete = done
}

// InitializationComplete reports whether the state machine reached Ready.
func (s *ServerState) InitializationComplete() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initializationComplete
}

// HandshakeValidated reports whether an initialize request was processed.
func (s *ServerState) HandshakeValidated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.handshakeValidated
}

// Snapshot is a sanitizable view of the full state used by the utility
// tool and the /status endpoint.
type Snapshot struct {
	Org                      *OrgIdentity `json:"org,omitempty"`
	StartedAt                time.Time    `json:"startedAt"`
	CurrentLogLevel          string       `json:"currentLogLevel"`
	WorkspacePath            string       `json:"workspacePath"`
	UserPermissionsValidated bool         `json:"userPermissionsValidated"`
	HandshakeValidated       bool         `json:"handshakeValidated"`
	InitializationComplete   bool         `json:"initializationComplete"`
	Client                   *ClientDescriptor
}

// Snapshot returns a deep copy of the state. Callers that expose it must
// sanitize it first.
func (s *ServerState) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		StartedAt:                s.startedAt,
		CurrentLogLevel:          s.currentLogLevel,
		WorkspacePath:            s.workspacePath,
		UserPermissionsValidated: s.userPermissionsValidated,
		HandshakeValidated:       s.handshakeValidated,
		InitializationComplete:   s.initializationComplete,
	}
	if s.org != nil {
		o := *s.org
		if s.org.CompanyDetails != nil {
			o.CompanyDetails = make(map[string]any, len(s.org.CompanyDetails))
			for k, v := range s.org.CompanyDetails {
				o.CompanyDetails[k] = v
			}
		}
		snap.Org = &o
	}
	if s.client != nil {
		c := *s.client
		snap.Client = &c
	}
	return snap
}
