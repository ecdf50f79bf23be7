// SPDX-FileCopyrightText: Copyright 2026 forcedev authors
// SPDX-License-Identifier: Apache-2.0

package tmpfiles

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateWritesUnderWorkspaceTmp(t *testing.T) {
	workspace := t.TempDir()
	m := NewManager(workspace)

	path, err := m.Create("apex-script", ".apex", []byte("System.debug('hi');"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(workspace, "tmp"), filepath.Dir(path))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "System.debug('hi');", string(content))
}

func TestCreateGeneratesUniqueNames(t *testing.T) {
	m := NewManager(t.TempDir())
	a, err := m.Create("apex-script", ".apex", nil)
	require.NoError(t, err)
	b, err := m.Create("apex-script", ".apex", nil)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestRemoveToleratesMissingFile(t *testing.T) {
	m := NewManager(t.TempDir())
	m.Remove(filepath.Join(m.Dir(), "never-existed.apex"))
}

func TestSweepRemovesOnlyExpiredFiles(t *testing.T) {
	m := NewManager(t.TempDir())

	oldPath, err := m.Create("apex-script", ".apex", []byte("old"))
	require.NoError(t, err)
	freshPath, err := m.Create("apex-script", ".apex", []byte("fresh"))
	require.NoError(t, err)

	// Age the first file past the retention window.
	stale := time.Now().Add(-MaxAge - time.Hour)
	require.NoError(t, os.Chtimes(oldPath, stale, stale))

	m.Sweep()

	_, err = os.Stat(oldPath)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(freshPath)
	assert.NoError(t, err)
}

func TestSweepToleratesMissingDirectory(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "nonexistent"))
	m.Sweep()
}
