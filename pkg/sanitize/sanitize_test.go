// SPDX-FileCopyrightText: Copyright 2026 forcedev authors
// SPDX-License-Identifier: Apache-2.0

package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeRedactsWithLengthAndBareMarkers(t *testing.T) {
	in := map[string]any{
		"username":    "u@x",
		"accessToken": "secret_token_123",
		"nested":      map[string]any{"password": ""},
	}

	out, ok := Sanitize(in).(map[string]any)
	require.True(t, ok)

	assert.Equal(t, "u@x", out["username"])
	assert.Equal(t, "[REDACTED length: 16]", out["accessToken"])
	nested := out["nested"].(map[string]any)
	assert.Equal(t, "[REDACTED]", nested["password"])
}

func TestSanitizeDoesNotMutateInput(t *testing.T) {
	in := map[string]any{
		"username":    "u@x",
		"accessToken": "secret_token_123",
		"nested":      map[string]any{"password": ""},
	}

	_ = Sanitize(in)

	assert.Equal(t, "secret_token_123", in["accessToken"])
	assert.Equal(t, "", in["nested"].(map[string]any)["password"])
	assert.Equal(t, "u@x", in["username"])
}

func TestSanitizeWalksThroughArraysAtAnyDepth(t *testing.T) {
	in := map[string]any{
		"orgs": []any{
			map[string]any{"alias": "dev", "accessToken": "abcd"},
			map[string]any{
				"alias": "prod",
				"credentials": []any{
					map[string]any{"client_secret": "wxyz1234"},
				},
			},
			"plain string",
		},
	}

	out := Sanitize(in).(map[string]any)
	orgs := out["orgs"].([]any)

	first := orgs[0].(map[string]any)
	assert.Equal(t, "dev", first["alias"])
	assert.Equal(t, "[REDACTED length: 4]", first["accessToken"])

	creds := orgs[1].(map[string]any)["credentials"].([]any)
	assert.Equal(t, "[REDACTED length: 8]", creds[0].(map[string]any)["client_secret"])

	assert.Equal(t, "plain string", orgs[2])

	// Originals behind the arrays are untouched.
	inFirst := in["orgs"].([]any)[0].(map[string]any)
	assert.Equal(t, "abcd", inFirst["accessToken"])
}

func TestSanitizeRedactsNilAndNonStringValues(t *testing.T) {
	in := map[string]any{
		"password":     nil,
		"clientSecret": 123456,
	}

	out := Sanitize(in).(map[string]any)
	assert.Equal(t, "[REDACTED]", out["password"])
	assert.Equal(t, "[REDACTED length: 6]", out["clientSecret"])
}

func TestSanitizeHonorsExtraKeys(t *testing.T) {
	in := map[string]any{
		"sessionId": "abc123",
		"name":      "keep",
	}

	out := Sanitize(in, "sessionId").(map[string]any)
	assert.Equal(t, "[REDACTED length: 6]", out["sessionId"])
	assert.Equal(t, "keep", out["name"])

	// Matching is exact and case-sensitive.
	out = Sanitize(map[string]any{"AccessToken": "x"}).(map[string]any)
	assert.Equal(t, "x", out["AccessToken"])
}

func TestSanitizeLeavesScalarsAlone(t *testing.T) {
	assert.Equal(t, "hello", Sanitize("hello"))
	assert.Equal(t, 42, Sanitize(42))
	assert.Nil(t, Sanitize(nil))
}

func TestStructSanitizesTypedValues(t *testing.T) {
	type login struct {
		Username    string `json:"username"`
		AccessToken string `json:"accessToken"`
	}

	out, err := Struct(login{Username: "u@x", AccessToken: "secret_token_123"})
	require.NoError(t, err)
	assert.Equal(t, "u@x", out["username"])
	assert.Equal(t, "[REDACTED length: 16]", out["accessToken"])
}
