// SPDX-FileCopyrightText: Copyright 2026 forcedev authors
// SPDX-License-Identifier: Apache-2.0

package salesforce

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/forcedev/sfmcp/pkg/cliexec"
	"github.com/forcedev/sfmcp/pkg/state"
)

// fakeRunner satisfies cliexec.Runner without spawning processes.
type fakeRunner struct {
	displayJSON string
	calls       atomic.Int64
}

func (f *fakeRunner) Run(_ context.Context, _ ...string) (*cliexec.Output, error) {
	return &cliexec.Output{}, nil
}

func (f *fakeRunner) RunJSON(_ context.Context, _ ...string) (gjson.Result, error) {
	f.calls.Add(1)
	return gjson.Parse(f.displayJSON), nil
}

func displayPayload(token string) string {
	return fmt.Sprintf(`{"status":0,"result":{"alias":"dev","username":"u@example.com","instanceUrl":"https://example.my.salesforce.com","accessToken":%q,"apiVersion":"62.0","id":"00Dxx0000001gPFEAY"}}`, token)
}

func newTestState(instanceURL string) *state.ServerState {
	st := state.New()
	st.SetOrg(state.OrgIdentity{
		Username:    "u@example.com",
		InstanceURL: instanceURL,
		AccessToken: "tok-original-000",
		APIVersion:  "62.0",
		ID:          "00Dxx0000001gPFEAY",
	})
	return st
}

func newTestClient(t *testing.T, handler http.HandlerFunc, cacheEnabled bool) (*Client, *state.ServerState, *fakeRunner, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	st := newTestState(srv.URL)
	runner := &fakeRunner{displayJSON: displayPayload("tok-refreshed-111")}
	client := NewClient(st, runner, ClientConfig{
		CacheEnabled: cacheEnabled,
		StrictSSL:    true,
		HTTPClient:   srv.Client(),
	})
	t.Cleanup(client.Close)
	return client, st, runner, srv
}

func TestCallRejectsInvalidInput(t *testing.T) {
	client, _, _, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}, false)

	_, err := client.Call(context.Background(), Request{Method: "TRACE", APIType: APIRest, Service: "/limits"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = client.Call(context.Background(), Request{Method: "GET", APIType: "SOAP", Service: "/limits"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = client.Call(context.Background(), Request{Method: "GET", APIType: APIRest})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCallRequiresBoundOrg(t *testing.T) {
	st := state.New()
	client := NewClient(st, &fakeRunner{}, ClientConfig{StrictSSL: true})
	defer client.Close()

	_, err := client.Call(context.Background(), Request{Method: "GET", APIType: APIRest, Service: "/limits"})
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestCallBuildsEndpointPerAPIType(t *testing.T) {
	var gotPath atomic.Value
	client, _, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath.Store(r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}, false)

	cases := []struct {
		apiType APIType
		want    string
	}{
		{APIRest, "/services/data/v62.0/limits"},
		{APITooling, "/services/data/v62.0/tooling/limits"},
		{APIUI, "/services/data/v62.0/ui-api/limits"},
		{APIApex, "/services/apexrest/limits"},
		{APIAgent, "/services/data/v62.0/agentforce/limits"},
	}
	for _, tc := range cases {
		resp, err := client.Call(context.Background(), Request{Method: "GET", APIType: tc.apiType, Service: "limits"})
		require.NoError(t, err, "apiType %s", tc.apiType)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, tc.want, gotPath.Load(), "apiType %s", tc.apiType)
	}
}

func TestCallSendsAuthorizationAndQueryParams(t *testing.T) {
	var gotAuth, gotQuery atomic.Value
	client, _, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
		gotQuery.Store(r.URL.Query().Get("q"))
		_, _ = w.Write([]byte(`{"records":[]}`))
	}, false)

	_, err := client.Call(context.Background(), Request{
		Method:  "GET",
		APIType: APIRest,
		Service: "/query",
		Options: Options{QueryParams: map[string]string{"q": "SELECT Id FROM Account"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-original-000", gotAuth.Load())
	assert.Equal(t, "SELECT Id FROM Account", gotQuery.Load())
}

func TestCallCachesGETResponses(t *testing.T) {
	var hits atomic.Int64
	client, _, _, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"n":1}`))
	}, true)

	req := Request{Method: "GET", APIType: APIRest, Service: "/limits"}

	first, err := client.Call(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := client.Call(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Data, second.Data)
	// Raw survives the cache so gjson-parsing callers see the same
	// document on a hit as on a fresh response.
	assert.Equal(t, first.Raw, second.Raw)
	assert.NotEmpty(t, second.Raw)
	assert.Equal(t, int64(1), hits.Load())
}

func TestCallBypassCacheSkipsCache(t *testing.T) {
	var hits atomic.Int64
	client, _, _, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{}`))
	}, true)

	req := Request{Method: "GET", APIType: APIRest, Service: "/limits", Options: Options{BypassCache: true}}
	for i := 0; i < 2; i++ {
		_, err := client.Call(context.Background(), req)
		require.NoError(t, err)
	}
	assert.Equal(t, int64(2), hits.Load())
	assert.Zero(t, client.CacheSize())
}

func TestCallWritePurgesCache(t *testing.T) {
	client, _, _, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}, true)

	_, err := client.Call(context.Background(), Request{Method: "GET", APIType: APIRest, Service: "/limits"})
	require.NoError(t, err)
	require.Equal(t, 1, client.CacheSize())

	_, err = client.Call(context.Background(), Request{
		Method: "POST", APIType: APIRest, Service: "/sobjects/Account",
		Body: map[string]any{"Name": "Acme"},
	})
	require.NoError(t, err)
	assert.Zero(t, client.CacheSize())
}

func TestCallRefreshesTokenOnInvalidSession(t *testing.T) {
	var requests atomic.Int64
	client, st, runner, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if r.Header.Get("Authorization") != "Bearer tok-refreshed-111" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`[{"errorCode":"INVALID_SESSION_ID","message":"Session expired or invalid"}]`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}, false)

	resp, err := client.Call(context.Background(), Request{Method: "GET", APIType: APIRest, Service: "/limits"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(2), requests.Load())
	assert.Equal(t, int64(1), runner.calls.Load())

	org, ok := st.Org()
	require.True(t, ok)
	assert.Equal(t, "tok-refreshed-111", org.AccessToken)
}

func TestCallReturnsAuthErrorWhenRefreshDoesNotHelp(t *testing.T) {
	client, _, runner, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`[{"errorCode":"INVALID_SESSION_ID","message":"Session expired or invalid"}]`))
	}, false)

	_, err := client.Call(context.Background(), Request{Method: "GET", APIType: APIRest, Service: "/limits"})
	assert.ErrorIs(t, err, ErrAuth)
	assert.Equal(t, int64(1), runner.calls.Load())
}

func TestCallMapsUpstreamFailures(t *testing.T) {
	client, _, _, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`[{"errorCode":"NOT_FOUND","message":"The requested resource does not exist"}]`))
	}, false)

	_, err := client.Call(context.Background(), Request{Method: "GET", APIType: APIRest, Service: "/sobjects/Bogus__c/describe"})
	assert.ErrorIs(t, err, ErrUpstream)
	assert.Contains(t, err.Error(), "404")
}

func TestCallTransportError(t *testing.T) {
	st := newTestState("https://127.0.0.1:1") // nothing listens here
	client := NewClient(st, &fakeRunner{}, ClientConfig{
		StrictSSL:  true,
		HTTPClient: &http.Client{Timeout: 200 * time.Millisecond},
	})
	defer client.Close()

	_, err := client.Call(context.Background(), Request{Method: "GET", APIType: APIRest, Service: "/limits"})
	assert.ErrorIs(t, err, ErrTransport)
}

func TestResponseCacheTTLAndSweep(t *testing.T) {
	cache := newResponseCache()
	current := time.Now()
	cache.now = func() time.Time { return current }

	key := cacheKey{OrgID: "org", Method: "GET", APIType: APIRest, Endpoint: "/x"}
	cache.set(key, "value", []byte(`"value"`), 0)

	got, raw, ok := cache.get(key)
	require.True(t, ok)
	assert.Equal(t, "value", got)
	assert.Equal(t, []byte(`"value"`), raw)

	current = current.Add(DefaultCacheTTL + time.Second)
	_, _, ok = cache.get(key)
	assert.False(t, ok)

	cache.set(key, "value", nil, time.Minute)
	current = current.Add(2 * time.Minute)
	cache.sweep()
	assert.Zero(t, cache.len())
}

func TestEscapeSOQLString(t *testing.T) {
	assert.Equal(t, `O\'Brien`, EscapeSOQLString("O'Brien"))
	assert.Equal(t, `a\\b`, EscapeSOQLString(`a\b`))
	assert.Equal(t, "plain", EscapeSOQLString("plain"))
}

func TestEscapeSOQLLiterals(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			"doubled quote inside literal",
			`SELECT Id FROM Contact WHERE LastName = 'O''Brien'`,
			`SELECT Id FROM Contact WHERE LastName = 'O\'Brien'`,
		},
		{
			"structural quotes untouched",
			`SELECT Id FROM Account WHERE Name = 'Acme' AND Type = 'Customer'`,
			`SELECT Id FROM Account WHERE Name = 'Acme' AND Type = 'Customer'`,
		},
		{
			"already escaped literal passes through",
			`SELECT Id FROM Contact WHERE LastName = 'O\'Brien'`,
			`SELECT Id FROM Contact WHERE LastName = 'O\'Brien'`,
		},
		{
			"no literals",
			`SELECT Id FROM Account ORDER BY CreatedDate DESC`,
			`SELECT Id FROM Account ORDER BY CreatedDate DESC`,
		},
		{
			"doubled quote in second literal only",
			`SELECT Id FROM C WHERE A = 'x' AND B = 'it''s'`,
			`SELECT Id FROM C WHERE A = 'x' AND B = 'it\'s'`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, EscapeSOQLLiterals(tc.in))
		})
	}
}

func TestQueryRejectsEmptySOQL(t *testing.T) {
	client, _, _, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}, false)

	_, err := client.Query(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrValidation)
}
