// SPDX-FileCopyrightText: Copyright 2026 forcedev authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/forcedev/sfmcp/pkg/logger"
	"github.com/forcedev/sfmcp/pkg/resources"
)

// bindResourceStore mirrors the resource store into the SDK so clients
// see resources/list and one list_changed notification per mutation.
// The store suppresses events during shutdown, so no notifications go
// out while sessions are being torn down.
func (s *Server) bindResourceStore() {
	s.store.SetListener(func(event resources.Event) {
		for _, uri := range event.RemovedURIs {
			s.mcp.RemoveResource(uri)
		}
		if event.Upserted != nil {
			s.registerResource(*event.Upserted)
		}
		s.mcp.SendNotificationToAllClients("notifications/resources/list_changed", nil)
		logger.Debugw("resource store changed",
			"upserted", event.Upserted != nil, "removed", len(event.RemovedURIs))
	})
}

// registerResource exposes one stored resource through the SDK. The read
// handler goes back to the store so clients always see the current text,
// even after an upsert replaced the content under the same URI.
func (s *Server) registerResource(res resources.Resource) {
	uri := res.URI
	s.mcp.AddResource(
		mcp.NewResource(
			uri,
			res.Name,
			mcp.WithResourceDescription(res.Description),
			mcp.WithMIMEType(res.MIMEType),
		),
		mcpserver.ResourceHandlerFunc(func(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
			stored, ok := s.store.Get(uri)
			if !ok {
				return nil, fmt.Errorf("resource %s is no longer available", uri)
			}
			return []mcp.ResourceContents{
				mcp.TextResourceContents{
					URI:      stored.URI,
					MIMEType: stored.MIMEType,
					Text:     stored.Text,
				},
			}, nil
		}),
	)
}
