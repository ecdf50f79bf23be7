// SPDX-FileCopyrightText: Copyright 2026 forcedev authors
// SPDX-License-Identifier: Apache-2.0

package watcher

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, targetOrg string) {
	t.Helper()
	sfDir := filepath.Join(dir, ".sf")
	require.NoError(t, os.MkdirAll(sfDir, 0o750))
	content := fmt.Sprintf(`{"target-org":%q}`, targetOrg)
	require.NoError(t, os.WriteFile(filepath.Join(sfDir, "config.json"), []byte(content), 0o600))
}

func newTestWatcher(t *testing.T, dir string) *Watcher {
	t.Helper()
	w := New(dir)
	w.debounce = 50 * time.Millisecond
	require.NoError(t, w.Start())
	t.Cleanup(w.Stop)
	return w
}

func waitForEvent(t *testing.T, w *Watcher) OrgChanged {
	t.Helper()
	select {
	case ev := <-w.Events():
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for org change event")
		return OrgChanged{}
	}
}

func TestFiresOnTargetOrgChange(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "dev-org")

	w := newTestWatcher(t, dir)
	writeConfig(t, dir, "prod-org")

	ev := waitForEvent(t, w)
	assert.Equal(t, "dev-org", ev.Old)
	assert.Equal(t, "prod-org", ev.New)
}

func TestBurstWritesCoalesceToFinalValue(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "dev-org")

	w := newTestWatcher(t, dir)
	writeConfig(t, dir, "staging-org")
	writeConfig(t, dir, "prod-org")

	ev := waitForEvent(t, w)
	assert.Equal(t, "prod-org", ev.New)

	// The intermediate value never surfaces.
	select {
	case extra := <-w.Events():
		t.Fatalf("unexpected extra event: %+v", extra)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestNoEventWhenValueUnchanged(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "dev-org")

	w := newTestWatcher(t, dir)
	writeConfig(t, dir, "dev-org")

	select {
	case ev := <-w.Events():
		t.Fatalf("unexpected event: %+v", ev)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestUnparseableConfigRetainsPriorValue(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "dev-org")

	w := newTestWatcher(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".sf", "config.json"), []byte("{not json"), 0o600))

	select {
	case ev := <-w.Events():
		t.Fatalf("unexpected event for unparseable config: %+v", ev)
	case <-time.After(300 * time.Millisecond):
	}

	// A later valid write still diffs against the retained value.
	writeConfig(t, dir, "prod-org")
	ev := waitForEvent(t, w)
	assert.Equal(t, "dev-org", ev.Old)
	assert.Equal(t, "prod-org", ev.New)
}

func TestStartAndStopAreIdempotent(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "dev-org")

	w := New(dir)
	w.debounce = 50 * time.Millisecond
	require.NoError(t, w.Start())
	require.NoError(t, w.Start())
	w.Stop()
	w.Stop()
	require.NoError(t, w.Start())
	w.Stop()
}
