// SPDX-FileCopyrightText: Copyright 2026 forcedev authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/forcedev/sfmcp/pkg/logger"
	"github.com/forcedev/sfmcp/pkg/sanitize"
	"github.com/forcedev/sfmcp/pkg/telemetry"
)

// portProbeRange is how many consecutive ports are tried when the
// configured one is occupied.
const portProbeRange = 10

// startHTTP serves the streamable HTTP transport plus the operational
// endpoints until ctx is cancelled.
func (s *Server) startHTTP(ctx context.Context) error {
	listener, port, err := s.listen(s.cfg.Port)
	if err != nil {
		return err
	}

	streamable := mcpserver.NewStreamableHTTPServer(
		s.mcp,
		mcpserver.WithEndpointPath("/mcp"),
		mcpserver.WithSessionIdManager(newSessionIDAdapter(s.sessions)),
	)
	s.sessions.startCleanup()

	mux := chi.NewRouter()
	mux.Use(middleware.Recoverer)
	mux.Handle("/mcp", streamable)
	mux.Get("/healthz", s.handleHealth)
	mux.Get("/status", s.handleStatus)
	mux.Get("/", s.handleDashboard)
	mux.Handle("/metrics", telemetry.Handler())

	s.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.Shutdown(context.Background())
	}()

	logger.Infow("starting sfmcp", "transport", "http", "port", port, "version", s.version)
	if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http transport: %w", err)
	}
	return nil
}

// listen binds the preferred port, probing the next consecutive ports
// when it is occupied.
func (s *Server) listen(preferred int) (net.Listener, int, error) {
	var lastErr error
	for i := 0; i < portProbeRange; i++ {
		port := preferred + i
		listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err != nil {
			lastErr = err
			continue
		}
		if port != preferred {
			logger.Infof("Port %d is occupied. Using port %d instead.", preferred, port)
		}
		return listener, port, nil
	}
	return nil, 0, fmt.Errorf("no free port in %d-%d: %w", preferred, preferred+portProbeRange-1, lastErr)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"activeSessions": s.sessions.count(),
		"serverType":     "http",
		"version":        s.version,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	snapshot, err := sanitize.Struct(s.st.Snapshot())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to render state"})
		return
	}
	resourceURIs := make([]string, 0, s.store.Len())
	for _, res := range s.store.List() {
		resourceURIs = append(resourceURIs, res.URI)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"version":        s.version,
		"uptimeSeconds":  int(time.Since(s.st.StartedAt()).Seconds()),
		"activeSessions": s.sessions.count(),
		"cacheEntries":   s.gateway.CacheSize(),
		"tools":          s.toolNames,
		"resources":      resourceURIs,
		"state":          snapshot,
	})
}

var dashboardTemplate = template.Must(template.New("dashboard").Parse(`<!DOCTYPE html>
<html>
<head><title>sfmcp</title>
<style>
body { font-family: sans-serif; margin: 2em; color: #222; }
table { border-collapse: collapse; }
td, th { border: 1px solid #ccc; padding: 4px 10px; text-align: left; }
</style>
</head>
<body>
<h1>sfmcp {{.Version}}</h1>
<table>
<tr><th>Uptime</th><td>{{.Uptime}}</td></tr>
<tr><th>Active sessions</th><td>{{.Sessions}}</td></tr>
<tr><th>Workspace</th><td>{{.Workspace}}</td></tr>
<tr><th>Org</th><td>{{.Org}}</td></tr>
<tr><th>Initialization complete</th><td>{{.Ready}}</td></tr>
</table>
<p><a href="/healthz">healthz</a> | <a href="/status">status</a> | <a href="/metrics">metrics</a></p>
</body>
</html>
`))

func (s *Server) handleDashboard(w http.ResponseWriter, _ *http.Request) {
	org := "not connected"
	if identity, ok := s.st.Org(); ok {
		org = fmt.Sprintf("%s (%s)", identity.Username, identity.InstanceURL)
	}
	data := struct {
		Version   string
		Uptime    string
		Sessions  int
		Workspace string
		Org       string
		Ready     bool
	}{
		Version:   s.version,
		Uptime:    time.Since(s.st.StartedAt()).Round(time.Second).String(),
		Sessions:  s.sessions.count(),
		Workspace: s.st.WorkspacePath(),
		Org:       org,
		Ready:     s.st.InitializationComplete(),
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := dashboardTemplate.Execute(w, data); err != nil {
		logger.Debugf("dashboard render: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Debugf("writing response: %v", err)
	}
}
