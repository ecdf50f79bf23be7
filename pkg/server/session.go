// SPDX-FileCopyrightText: Copyright 2026 forcedev authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/forcedev/sfmcp/pkg/logger"
)

// cleanupInterval is how often the sweep pass runs. Terminated sessions
// linger until swept so Validate can tell "terminated" from "never
// existed".
const cleanupInterval = 5 * time.Minute

// session is one tracked MCP session on the HTTP transport.
type session struct {
	id         string
	createdAt  time.Time
	lastActive time.Time
	terminated bool
}

// sessionManager owns HTTP session storage and cleanup. The SDK does not
// manage sessions itself; it only calls the adapter methods below during
// protocol flows. A zero ttl disables idle expiry: sessions then live
// until the client terminates them or the process exits.
type sessionManager struct {
	mu       sync.Mutex
	sessions map[string]*session
	ttl      time.Duration

	stop     chan struct{}
	stopOnce sync.Once
}

func newSessionManager(ttl time.Duration) *sessionManager {
	return &sessionManager{
		sessions: make(map[string]*session),
		ttl:      ttl,
		stop:     make(chan struct{}),
	}
}

// add registers a new session under the given id.
func (m *sessionManager) add(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[id]; exists {
		return fmt.Errorf("session %s already exists", id)
	}
	now := time.Now()
	m.sessions[id] = &session{id: id, createdAt: now, lastActive: now}
	return nil
}

// touch looks up a session and refreshes its activity timestamp.
func (m *sessionManager) touch(id string) (*session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	sess.lastActive = time.Now()
	return sess, true
}

// terminate marks a session so subsequent Validate calls report it as
// terminated rather than unknown. The cleanup pass deletes it later.
func (m *sessionManager) terminate(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return false
	}
	sess.terminated = true
	return true
}

// count returns the number of live, unterminated sessions.
func (m *sessionManager) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, sess := range m.sessions {
		if !sess.terminated {
			n++
		}
	}
	return n
}

// startCleanup launches the periodic TTL sweep.
func (m *sessionManager) startCleanup() {
	go func() {
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.sweep()
			case <-m.stop:
				return
			}
		}
	}()
}

func (m *sessionManager) sweep() {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, sess := range m.sessions {
		switch {
		case sess.terminated:
			delete(m.sessions, id)
		case m.ttl > 0 && sess.lastActive.Before(now.Add(-m.ttl)):
			delete(m.sessions, id)
		}
	}
}

func (m *sessionManager) close() {
	m.stopOnce.Do(func() { close(m.stop) })
}

// sessionIDAdapter exposes the sessionManager through the mark3labs SDK's
// SessionIdManager interface. The SDK calls Generate on initialize
// requests without a session id, Validate on every request and Terminate
// on HTTP DELETE.
type sessionIDAdapter struct {
	manager *sessionManager
}

func newSessionIDAdapter(manager *sessionManager) *sessionIDAdapter {
	return &sessionIDAdapter{manager: manager}
}

// Generate creates and registers a new session id. Per the MCP transport
// spec the id must be globally unique and printable ASCII; a UUID
// satisfies both.
func (a *sessionIDAdapter) Generate() string {
	sessionID := uuid.New().String()
	if err := a.manager.add(sessionID); err != nil {
		// UUID collision. Try once more, then give up: an empty id makes
		// the SDK omit the Mcp-Session-Id header.
		sessionID = uuid.New().String()
		if err := a.manager.add(sessionID); err != nil {
			logger.Errorw("failed to register session", "error", err)
			return ""
		}
	}
	logger.Debugw("session created", "session", sessionID)
	return sessionID
}

// Validate checks that a session exists and has not been terminated. The
// lookup touches the session, extending its TTL.
func (a *sessionIDAdapter) Validate(sessionID string) (isTerminated bool, err error) {
	if sessionID == "" {
		return false, fmt.Errorf("empty session ID")
	}
	sess, ok := a.manager.touch(sessionID)
	if !ok {
		return false, fmt.Errorf("session not found")
	}
	if sess.terminated {
		return true, nil
	}
	return false, nil
}

// Terminate marks a session as ended. Terminating an unknown session is
// not an error: the client may be deleting an already-expired session.
func (a *sessionIDAdapter) Terminate(sessionID string) (isNotAllowed bool, err error) {
	if sessionID == "" {
		return false, fmt.Errorf("empty session ID")
	}
	if a.manager.terminate(sessionID) {
		logger.Infow("session terminated", "session", sessionID)
	}
	return false, nil
}
