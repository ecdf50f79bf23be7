// SPDX-FileCopyrightText: Copyright 2026 forcedev authors
// SPDX-License-Identifier: Apache-2.0

// Package main is the entry point for the sfmcp server.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/forcedev/sfmcp/cmd/sfmcp/app"
	"github.com/forcedev/sfmcp/pkg/logger"
)

func main() {
	// Cancel the root context on SIGINT/SIGTERM so in-flight work can
	// finish before the process exits.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := app.NewRootCmd().ExecuteContext(ctx); err != nil {
		logger.Errorf("sfmcp: %v", err)
		os.Exit(1)
	}
}
