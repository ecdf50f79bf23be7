// SPDX-FileCopyrightText: Copyright 2026 forcedev authors
// SPDX-License-Identifier: Apache-2.0

package resources

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uris(list []Resource) []string {
	out := make([]string, len(list))
	for i, r := range list {
		out[i] = r.URI
	}
	return out
}

func TestUpsertPreservesInsertionOrder(t *testing.T) {
	store := NewStore(5)
	for _, uri := range []string{"sf://a", "sf://b", "sf://c"} {
		store.Upsert(Resource{URI: uri, Name: uri})
	}
	assert.Equal(t, []string{"sf://a", "sf://b", "sf://c"}, uris(store.List()))

	// Overwrite keeps position.
	store.Upsert(Resource{URI: "sf://b", Name: "updated"})
	assert.Equal(t, []string{"sf://a", "sf://b", "sf://c"}, uris(store.List()))

	got, ok := store.Get("sf://b")
	require.True(t, ok)
	assert.Equal(t, "updated", got.Name)
}

func TestUpsertEvictsOldestAtCapacity(t *testing.T) {
	store := NewStore(3)
	for i := 0; i < 3; i++ {
		store.Upsert(Resource{URI: fmt.Sprintf("sf://r%d", i)})
	}
	store.Upsert(Resource{URI: "sf://r3"})

	assert.Equal(t, 3, store.Len())
	assert.Equal(t, []string{"sf://r1", "sf://r2", "sf://r3"}, uris(store.List()))
	_, ok := store.Get("sf://r0")
	assert.False(t, ok)
}

func TestEveryMutationEmitsOneEvent(t *testing.T) {
	store := NewStore(2)
	var events []Event
	store.SetListener(func(e Event) { events = append(events, e) })

	store.Upsert(Resource{URI: "sf://a"})
	store.Upsert(Resource{URI: "sf://b"})
	store.Upsert(Resource{URI: "sf://c"}) // evicts sf://a
	store.Clear()

	require.Len(t, events, 4)
	assert.Equal(t, "sf://a", events[0].Upserted.URI)
	assert.Empty(t, events[0].RemovedURIs)
	assert.Equal(t, []string{"sf://a"}, events[2].RemovedURIs)
	assert.Nil(t, events[3].Upserted)
	assert.ElementsMatch(t, []string{"sf://b", "sf://c"}, events[3].RemovedURIs)
}

func TestClearOnEmptyStoreEmitsNothing(t *testing.T) {
	store := NewStore(2)
	var events int
	store.SetListener(func(Event) { events++ })
	store.Clear()
	assert.Zero(t, events)
}

func TestShutdownSuppressesEvents(t *testing.T) {
	store := NewStore(2)
	var events int
	store.SetListener(func(Event) { events++ })

	store.BeginShutdown()
	store.Upsert(Resource{URI: "sf://a"})
	store.Clear()

	assert.Zero(t, events)
	// Mutations still apply, only notification is suppressed.
	assert.Zero(t, store.Len())
}

func TestNewJSONResourceSanitizes(t *testing.T) {
	res, err := NewJSONResource("sf://state", "state", "", map[string]any{
		"instanceUrl": "https://example.my.salesforce.com",
		"accessToken": "00Dxx0000001gPF!AAAA",
	})
	require.NoError(t, err)
	assert.Equal(t, "application/json", res.MIMEType)
	assert.Contains(t, res.Text, "[REDACTED length: 20]")
	assert.NotContains(t, res.Text, "00Dxx0000001gPF!AAAA")
	assert.Contains(t, res.Text, "https://example.my.salesforce.com")
}
