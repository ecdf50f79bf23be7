// SPDX-FileCopyrightText: Copyright 2026 forcedev authors
// SPDX-License-Identifier: Apache-2.0

// Package tmpfiles manages the only on-disk state of the server: scratch
// files under <workspace>/tmp/, written for CLI commands that demand a
// file argument (anonymous Apex). Files are short-lived; a retention
// sweep reclaims anything a crash left behind.
package tmpfiles

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/forcedev/sfmcp/pkg/logger"
)

const (
	// MaxAge is the retention window for orphaned scratch files.
	MaxAge = 7 * 24 * time.Hour

	// sweepInterval is how often the retention sweep runs.
	sweepInterval = 6 * time.Hour

	dirMode  = 0o750
	fileMode = 0o600
)

// Manager creates and reclaims scratch files in one directory.
type Manager struct {
	dir string

	stop chan struct{}
	now  func() time.Time
}

// NewManager creates a manager rooted at <workspaceDir>/tmp.
func NewManager(workspaceDir string) *Manager {
	return &Manager{
		dir:  filepath.Join(workspaceDir, "tmp"),
		stop: make(chan struct{}),
		now:  time.Now,
	}
}

// Dir returns the scratch directory path.
func (m *Manager) Dir() string {
	return m.dir
}

// Create writes content to a fresh uniquely named file and returns its
// path. The caller removes the file when done; the sweep is the backstop.
func (m *Manager) Create(prefix, extension string, content []byte) (string, error) {
	if err := os.MkdirAll(m.dir, dirMode); err != nil {
		return "", fmt.Errorf("failed to create scratch directory %q: %w", m.dir, err)
	}
	name := fmt.Sprintf("%s-%s%s", prefix, uuid.NewString(), extension)
	path := filepath.Join(m.dir, name)
	if err := os.WriteFile(path, content, fileMode); err != nil {
		return "", fmt.Errorf("failed to write scratch file %q: %w", path, err)
	}
	return path, nil
}

// Remove deletes a scratch file. Missing files are not an error.
func (m *Manager) Remove(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Warnf("failed to remove scratch file %q: %v", path, err)
	}
}

// Sweep removes scratch files older than MaxAge.
func (m *Manager) Sweep() {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warnf("scratch sweep failed to read %q: %v", m.dir, err)
		}
		return
	}
	cutoff := m.now().Add(-MaxAge)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			m.Remove(filepath.Join(m.dir, entry.Name()))
		}
	}
}

// StartSweeper sweeps immediately and then on an interval until Stop.
func (m *Manager) StartSweeper() {
	go func() {
		m.Sweep()
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.Sweep()
			case <-m.stop:
				return
			}
		}
	}()
}

// Stop halts the sweeper. Safe to call more than once.
func (m *Manager) Stop() {
	select {
	case <-m.stop:
	default:
		close(m.stop)
	}
}
