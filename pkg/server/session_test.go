// SPDX-FileCopyrightText: Copyright 2026 forcedev authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionLifecycle(t *testing.T) {
	m := newSessionManager(time.Minute)
	a := newSessionIDAdapter(m)

	id := a.Generate()
	require.NotEmpty(t, id)
	assert.Equal(t, 1, m.count())

	terminated, err := a.Validate(id)
	require.NoError(t, err)
	assert.False(t, terminated)

	notAllowed, err := a.Terminate(id)
	require.NoError(t, err)
	assert.False(t, notAllowed)

	// A terminated session validates as terminated, not as unknown.
	terminated, err = a.Validate(id)
	require.NoError(t, err)
	assert.True(t, terminated)
	assert.Zero(t, m.count())
}

func TestValidateRejectsUnknownAndEmptySessions(t *testing.T) {
	a := newSessionIDAdapter(newSessionManager(time.Minute))

	_, err := a.Validate("")
	assert.Error(t, err)

	_, err = a.Validate("no-such-session")
	assert.Error(t, err)
}

func TestTerminateUnknownSessionIsNotAnError(t *testing.T) {
	a := newSessionIDAdapter(newSessionManager(time.Minute))
	notAllowed, err := a.Terminate("already-gone")
	require.NoError(t, err)
	assert.False(t, notAllowed)
}

func TestSweepDropsIdleSessions(t *testing.T) {
	m := newSessionManager(10 * time.Millisecond)
	require.NoError(t, m.add("idle"))
	assert.Equal(t, 1, m.count())

	time.Sleep(20 * time.Millisecond)
	m.sweep()
	assert.Zero(t, m.count())

	_, ok := m.touch("idle")
	assert.False(t, ok)
}

func TestZeroTTLDisablesIdleExpiry(t *testing.T) {
	m := newSessionManager(0)
	require.NoError(t, m.add("long-lived"))

	time.Sleep(20 * time.Millisecond)
	m.sweep()
	assert.Equal(t, 1, m.count())

	// Terminated sessions are still reclaimed by the sweep.
	require.True(t, m.terminate("long-lived"))
	m.sweep()
	assert.Zero(t, m.count())
	_, ok := m.touch("long-lived")
	assert.False(t, ok)
}

func TestGeneratedSessionIDsAreUnique(t *testing.T) {
	m := newSessionManager(time.Minute)
	a := newSessionIDAdapter(m)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		id := a.Generate()
		require.NotEmpty(t, id)
		assert.False(t, seen[id])
		seen[id] = true
	}
}
