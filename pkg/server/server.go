// SPDX-FileCopyrightText: Copyright 2026 forcedev authors
// SPDX-License-Identifier: Apache-2.0

// Package server assembles the MCP server: protocol surface, transports,
// and the wiring between the SDK and the sfmcp components.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/forcedev/sfmcp/pkg/bootstrap"
	"github.com/forcedev/sfmcp/pkg/cliexec"
	"github.com/forcedev/sfmcp/pkg/config"
	"github.com/forcedev/sfmcp/pkg/logger"
	"github.com/forcedev/sfmcp/pkg/prompts"
	"github.com/forcedev/sfmcp/pkg/resources"
	"github.com/forcedev/sfmcp/pkg/salesforce"
	"github.com/forcedev/sfmcp/pkg/state"
	"github.com/forcedev/sfmcp/pkg/tmpfiles"
	"github.com/forcedev/sfmcp/pkg/tools"
	"github.com/forcedev/sfmcp/pkg/watcher"
)

// serverName identifies the server in the initialize handshake.
const serverName = "sfmcp"

// instructions is the usage primer sent to clients at initialize.
const instructions = `Salesforce MCP server. It bridges this session to the org the Salesforce
CLI is authenticated against. Start with salesforceContextUtils
getOrgAndUserDetails to confirm the org, describeObject before querying
unfamiliar objects, and executeSoqlQuery for data. Tools that modify the
org ask for confirmation when the client supports elicitation.`

// resourceStoreCapacity bounds the in-memory resource store.
const resourceStoreCapacity = 30

// Server is the assembled sfmcp process: one MCP server, one Salesforce
// gateway and the shared state they communicate through.
type Server struct {
	cfg     *config.Config
	version string

	st       *state.ServerState
	cli      *cliexec.Executor
	gateway  *salesforce.Client
	store    *resources.Store
	watch    *watcher.Watcher
	tmp      *tmpfiles.Manager
	boot     *bootstrap.Bootstrapper
	mcp      *mcpserver.MCPServer
	sessions *sessionManager

	// toolNames is captured at registration time for the status endpoint.
	toolNames []string

	// bootCtx outlives individual request contexts so initialization and
	// the org watcher are not cancelled when the handshake request ends.
	bootCtx    context.Context
	bootCancel context.CancelFunc

	httpServer   *http.Server
	shutdownOnce sync.Once
}

// New wires every component and registers the full protocol surface.
// The returned server is started with Start.
func New(cfg *config.Config, version string) (*Server, error) {
	st := state.New()
	cli := cliexec.New(cfg.SFCommand)
	gateway := salesforce.NewClient(st, cli, salesforce.ClientConfig{
		CacheEnabled: cfg.CacheEnabled,
		StrictSSL:    cfg.StrictSSL,
	})
	store := resources.NewStore(resourceStoreCapacity)

	// The watcher and scratch-file manager take relative paths: the
	// workspace phase chdirs into the resolved workspace before either
	// touches the filesystem.
	watch := watcher.New(".")
	tmp := tmpfiles.NewManager(".")

	boot := bootstrap.New(*cfg, st, cli, gateway, store, watch)
	boot.SetRootsLister(unsupportedRootsLister{})

	bootCtx, bootCancel := context.WithCancel(context.Background())

	s := &Server{
		cfg:        cfg,
		version:    version,
		st:         st,
		cli:        cli,
		gateway:    gateway,
		store:      store,
		watch:      watch,
		tmp:        tmp,
		boot:       boot,
		// Sessions have no idle timeout; they end on client DELETE or
		// process exit.
		sessions:   newSessionManager(0),
		bootCtx:    bootCtx,
		bootCancel: bootCancel,
	}

	hooks := &mcpserver.Hooks{}
	hooks.AddAfterInitialize(func(_ context.Context, _ any, message *mcp.InitializeRequest, _ *mcp.InitializeResult) {
		client := descriptorFromInitialize(message)
		// Initialization runs in the background so the handshake response
		// is not held up by CLI calls and org queries.
		go s.boot.OnInitialize(s.bootCtx, client)
	})
	hooks.AddAfterSetLevel(func(_ context.Context, _ any, message *mcp.SetLevelRequest, _ *mcp.EmptyResult) {
		level := string(message.Params.Level)
		if err := logger.SetLevel(level); err != nil {
			logger.Warnf("logging/setLevel: %v", err)
			return
		}
		st.SetLogLevel(level)
		logger.Infow("log level changed", "level", level)
	})
	hooks.AddOnRegisterSession(func(_ context.Context, session mcpserver.ClientSession) {
		logger.Debugw("client session registered", "session", session.SessionID())
	})
	hooks.AddOnUnregisterSession(func(_ context.Context, session mcpserver.ClientSession) {
		logger.Debugw("client session unregistered", "session", session.SessionID())
	})

	s.mcp = mcpserver.NewMCPServer(
		serverName,
		version,
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithResourceCapabilities(false, true),
		mcpserver.WithPromptCapabilities(true),
		mcpserver.WithLogging(),
		mcpserver.WithInstructions(instructions),
		mcpserver.WithHooks(hooks),
	)

	if err := s.registerTools(); err != nil {
		bootCancel()
		return nil, err
	}
	s.registerPrompts()
	s.bindResourceStore()

	return s, nil
}

// registerTools builds the handler set and registers every tool wrapped
// in the dispatch pipeline.
func (s *Server) registerTools() error {
	handlers := tools.NewHandlers(*s.cfg, s.st, s.cli, s.gateway, s.store, s.tmp)
	registry, err := tools.BuildRegistry(handlers)
	if err != nil {
		return fmt.Errorf("building tool registry: %w", err)
	}

	// The MCP server itself satisfies the Elicitor interface; the
	// dispatcher checks the client capability before using it.
	dispatcher := tools.NewDispatcher(*s.cfg, s.st, registry, s.mcp)
	for _, def := range registry.Definitions() {
		s.mcp.AddTool(def.Tool, dispatcher.Wrap(def))
	}
	s.toolNames = registry.Names()
	logger.Infow("tools registered", "count", len(s.toolNames))
	return nil
}

func (s *Server) registerPrompts() {
	defs := prompts.Definitions()
	for _, def := range defs {
		s.mcp.AddPrompt(def.Prompt, def.Handler)
	}
	logger.Infow("prompts registered", "count", len(defs))
}

// descriptorFromInitialize extracts the client identity and advertised
// capabilities from the handshake request.
func descriptorFromInitialize(message *mcp.InitializeRequest) state.ClientDescriptor {
	caps := make(map[string]bool)
	if message == nil {
		return state.ClientDescriptor{Capabilities: caps}
	}

	p := message.Params
	if p.Capabilities.Roots != nil {
		caps[state.CapRoots] = true
	}
	if p.Capabilities.Sampling != nil {
		caps[state.CapSampling] = true
	}
	if p.Capabilities.Elicitation != nil {
		caps[state.CapElicitation] = true
	}
	// Resource handling on the client side has no dedicated capability
	// field; clients that support it advertise through experimental.
	for _, key := range []string{"resources", "resourceLinks", "logging"} {
		if _, ok := p.Capabilities.Experimental[key]; ok {
			caps[experimentalCapName(key)] = true
		}
	}

	return state.ClientDescriptor{
		Name:         p.ClientInfo.Name,
		Version:      p.ClientInfo.Version,
		Capabilities: caps,
	}
}

func experimentalCapName(key string) string {
	switch key {
	case "resources":
		return state.CapResources
	case "resourceLinks":
		return state.CapResourceLinks
	case "logging":
		return state.CapLogging
	default:
		return key
	}
}

// unsupportedRootsLister stands in for server-initiated roots/list, which
// the SDK does not expose. Workspace resolution falls through to the
// configured path or the working directory.
type unsupportedRootsLister struct{}

func (unsupportedRootsLister) ListRoots(context.Context) ([]string, error) {
	return nil, errors.New("roots/list is not supported on this transport")
}

// Start runs the selected transport until ctx is cancelled or the
// transport fails. It blocks.
func (s *Server) Start(ctx context.Context) error {
	s.gateway.StartCacheSweeper()
	s.tmp.StartSweeper()

	switch s.cfg.Transport {
	case config.TransportHTTP:
		return s.startHTTP(ctx)
	default:
		return s.startStdio(ctx)
	}
}

func (s *Server) startStdio(ctx context.Context) error {
	logger.Infow("starting sfmcp", "transport", config.TransportStdio, "version", s.version)
	stdio := mcpserver.NewStdioServer(s.mcp)
	if err := stdio.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("stdio transport: %w", err)
	}
	return nil
}

// Shutdown stops every component in dependency order. Safe to call more
// than once.
func (s *Server) Shutdown(ctx context.Context) {
	s.shutdownOnce.Do(func() {
		logger.Info("shutting down")

		// Resource mutations during teardown must not fan out as
		// list_changed notifications.
		s.store.BeginShutdown()

		s.watch.Stop()
		s.boot.Shutdown()
		s.bootCancel()

		if s.httpServer != nil {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Warnf("http shutdown: %v", err)
			}
		}

		s.sessions.close()
		s.gateway.Close()
		s.tmp.Stop()
		logger.Info("shutdown complete")
	})
}
