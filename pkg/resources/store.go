// SPDX-FileCopyrightText: Copyright 2026 forcedev authors
// SPDX-License-Identifier: Apache-2.0

// Package resources implements the in-memory store of named artifacts the
// MCP client can read: describe snapshots, record prefixes, deploy
// reports. The store is insertion-ordered and capacity-bounded; the
// oldest entry is evicted when full.
package resources

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/forcedev/sfmcp/pkg/sanitize"
)

// DefaultCapacity bounds the store unless overridden at construction.
const DefaultCapacity = 30

// Resource is one stored artifact.
type Resource struct {
	URI          string
	Name         string
	Description  string
	MIMEType     string
	Text         string
	LastModified time.Time
	Audience     []string
}

// Event describes one store mutation, delivered to the change listener so
// the transport can mirror the store into the MCP session and emit
// list-changed notifications.
type Event struct {
	// Upserted is set for inserts and in-place overwrites.
	Upserted *Resource
	// RemovedURIs lists entries dropped by eviction or clearing.
	RemovedURIs []string
}

// Listener receives store mutations. Invoked synchronously under the
// store lock, so implementations must not call back into the store.
type Listener func(Event)

// Store is a capacity-bounded ordered map keyed by URI.
type Store struct {
	mu       sync.Mutex
	capacity int
	order    []string
	items    map[string]Resource

	listener     Listener
	shuttingDown bool
}

// NewStore creates a store with the given capacity (DefaultCapacity when
// non-positive).
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		capacity: capacity,
		items:    make(map[string]Resource, capacity),
	}
}

// SetListener installs the mutation listener. Set once at wiring time,
// before any mutation.
func (s *Store) SetListener(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener = l
}

// BeginShutdown suppresses change events for the rest of the process
// lifetime so a closing transport is not handed notifications it can no
// longer deliver.
func (s *Store) BeginShutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shuttingDown = true
}

// Upsert stores a resource. An existing URI is overwritten in place with
// its position preserved; a new URI at capacity evicts the oldest entry.
func (s *Store) Upsert(res Resource) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if res.LastModified.IsZero() {
		res.LastModified = time.Now()
	}

	event := Event{Upserted: &res}
	if _, exists := s.items[res.URI]; !exists {
		if len(s.order) >= s.capacity {
			oldest := s.order[0]
			s.order = s.order[1:]
			delete(s.items, oldest)
			event.RemovedURIs = []string{oldest}
		}
		s.order = append(s.order, res.URI)
	}
	s.items[res.URI] = res

	s.emit(event)
}

// Get returns the resource for a URI.
func (s *Store) Get(uri string) (Resource, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.items[uri]
	return res, ok
}

// List returns all resources in insertion order.
func (s *Store) List() []Resource {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Resource, 0, len(s.order))
	for _, uri := range s.order {
		out = append(out, s.items[uri])
	}
	return out
}

// Len reports the number of stored resources.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// Clear removes every resource, as happens when the bound org user
// changes.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.order) == 0 {
		return
	}
	removed := s.order
	s.order = nil
	s.items = make(map[string]Resource, s.capacity)

	s.emit(Event{RemovedURIs: removed})
}

func (s *Store) emit(event Event) {
	if s.shuttingDown || s.listener == nil {
		return
	}
	s.listener(event)
}

// NewJSONResource builds an application/json resource from any value,
// sanitizing org-identity secrets before they are stored.
func NewJSONResource(uri, name, description string, value any) (Resource, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return Resource{}, fmt.Errorf("failed to encode resource %q: %w", uri, err)
	}
	var tree any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return Resource{}, fmt.Errorf("failed to decode resource %q: %w", uri, err)
	}
	payload, err := json.MarshalIndent(sanitize.Sanitize(tree), "", "  ")
	if err != nil {
		return Resource{}, fmt.Errorf("failed to encode resource %q: %w", uri, err)
	}
	return Resource{
		URI:         uri,
		Name:        name,
		Description: description,
		MIMEType:    "application/json",
		Text:        string(payload),
	}, nil
}
