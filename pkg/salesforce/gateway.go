// SPDX-FileCopyrightText: Copyright 2026 forcedev authors
// SPDX-License-Identifier: Apache-2.0

// Package salesforce is the gateway for all HTTPS traffic to a Salesforce
// org. It owns endpoint construction for the five API families, the
// response cache with write invalidation, and the token-refresh retry
// loop backed by the Salesforce CLI.
package salesforce

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/forcedev/sfmcp/pkg/cliexec"
	"github.com/forcedev/sfmcp/pkg/logger"
	"github.com/forcedev/sfmcp/pkg/state"
	"github.com/forcedev/sfmcp/pkg/telemetry"
)

// APIType selects one of the Salesforce HTTP API families.
type APIType string

// Supported API families.
const (
	APIRest    APIType = "REST"
	APITooling APIType = "TOOLING"
	APIUI      APIType = "UI"
	APIApex    APIType = "APEX"
	APIAgent   APIType = "AGENT"
)

// invalidSessionSentinel appears in error bodies when the access token has
// expired or been revoked.
const invalidSessionSentinel = "INVALID_SESSION_ID"

// maxCallAttempts bounds the token-refresh retry loop: the original
// request plus one retry with a freshly minted token.
const maxCallAttempts = 2

var validMethods = map[string]struct{}{
	http.MethodGet:    {},
	http.MethodPost:   {},
	http.MethodPut:    {},
	http.MethodPatch:  {},
	http.MethodDelete: {},
}

var validAPITypes = map[APIType]struct{}{
	APIRest:    {},
	APITooling: {},
	APIUI:      {},
	APIApex:    {},
	APIAgent:   {},
}

// Options tune a single gateway call.
type Options struct {
	// BaseURL overrides endpoint construction entirely when set.
	BaseURL string

	// QueryParams are appended to the endpoint.
	QueryParams map[string]string

	// Headers are merged over the defaults.
	Headers map[string]string

	// CacheTTL overrides DefaultCacheTTL for this call.
	CacheTTL time.Duration

	// BypassCache skips the cache for this call even when globally enabled.
	BypassCache bool

	// CacheKeyExtra disambiguates calls that share an endpoint but differ
	// in body.
	CacheKeyExtra string
}

// Request describes one gateway call.
type Request struct {
	Method  string
	APIType APIType
	Service string
	Body    any
	Options Options
}

// Response is the decoded result of a successful call.
type Response struct {
	StatusCode int
	// Data is the parsed JSON body, or the raw text when the body is not
	// JSON.
	Data any
	Raw  []byte
	// Cached reports whether the value came from the response cache.
	Cached bool
}

// Client is the Salesforce API gateway.
type Client struct {
	st  *state.ServerState
	cli cliexec.Runner

	httpClient   *http.Client
	cacheEnabled bool
	strictSSL    bool
	relaxOnce    sync.Once

	cache *responseCache

	sweepStop chan struct{}
	sweepOnce sync.Once
}

// ClientConfig carries the construction-time settings of the gateway.
type ClientConfig struct {
	// CacheEnabled globally enables GET response caching.
	CacheEnabled bool

	// StrictSSL disables the TLS relaxation latch when true.
	StrictSSL bool

	// HTTPClient overrides the default client; used by tests.
	HTTPClient *http.Client
}

// NewClient creates the gateway bound to the shared server state and the
// CLI runner used for token refresh.
func NewClient(st *state.ServerState, cli cliexec.Runner, cfg ClientConfig) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	return &Client{
		st:           st,
		cli:          cli,
		httpClient:   httpClient,
		cacheEnabled: cfg.CacheEnabled,
		strictSSL:    cfg.StrictSSL,
		cache:        newResponseCache(),
		sweepStop:    make(chan struct{}),
	}
}

// StartCacheSweeper launches the hourly expired-entry sweep. Idempotent
// via Close; safe to skip in tests.
func (c *Client) StartCacheSweeper() {
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.cache.sweep()
			case <-c.sweepStop:
				return
			}
		}
	}()
}

// Close stops the cache sweeper.
func (c *Client) Close() {
	c.sweepOnce.Do(func() { close(c.sweepStop) })
}

// ClearCache drops every cached response.
func (c *Client) ClearCache() {
	c.cache.purge()
}

// CacheSize reports the number of live cache entries.
func (c *Client) CacheSize() int {
	return c.cache.len()
}

// Call executes one request against the org bound in server state.
//
// GET responses are cached (when globally enabled and not bypassed); any
// successful non-GET purges the whole cache before returning, so
// invalidation happens-before the response that triggered it. A response
// carrying INVALID_SESSION_ID triggers one CLI token refresh and a single
// retry; exhaustion yields ErrAuth.
func (c *Client) Call(ctx context.Context, req Request) (*Response, error) {
	method := strings.ToUpper(req.Method)
	if _, ok := validMethods[method]; !ok {
		return nil, fmt.Errorf("%w: unsupported HTTP method %q", ErrValidation, req.Method)
	}
	if _, ok := validAPITypes[req.APIType]; !ok {
		return nil, fmt.Errorf("%w: unsupported API type %q", ErrValidation, req.APIType)
	}
	if req.Service == "" && req.Options.BaseURL == "" {
		return nil, fmt.Errorf("%w: service path is required", ErrValidation)
	}

	org, ok := c.st.Org()
	if !ok || org.ID == "" || org.InstanceURL == "" || org.AccessToken == "" {
		return nil, ErrNotInitialized
	}

	endpoint, err := c.endpoint(org, req)
	if err != nil {
		return nil, err
	}

	key := cacheKey{
		OrgID:    org.ID,
		Method:   method,
		APIType:  req.APIType,
		Endpoint: endpoint,
		Extra:    req.Options.CacheKeyExtra,
	}

	cacheable := method == http.MethodGet && c.cacheEnabled && !req.Options.BypassCache
	if cacheable {
		if data, raw, hit := c.cache.get(key); hit {
			telemetry.RecordCacheLookup("hit")
			return &Response{StatusCode: http.StatusOK, Data: data, Raw: raw, Cached: true}, nil
		}
		telemetry.RecordCacheLookup("miss")
	}

	attempt := 0
	operation := func() (*Response, error) {
		attempt++
		resp, err := c.do(ctx, method, endpoint, req.Body, req.Options.Headers)
		if err == nil {
			return resp, nil
		}
		if errors.Is(err, errInvalidSession) {
			logger.Warnf("Salesforce session invalid (attempt %d/%d), refreshing access token via CLI", attempt, maxCallAttempts)
			token, refreshErr := cliexec.RefreshAccessToken(ctx, c.cli)
			if refreshErr != nil {
				return nil, backoff.Permanent(fmt.Errorf("%w: token refresh failed: %v", ErrAuth, refreshErr))
			}
			c.st.SetAccessToken(token)
			return nil, err // retryable
		}
		return nil, backoff.Permanent(err)
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 100 * time.Millisecond

	resp, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxTries(maxCallAttempts),
	)
	if err != nil {
		if errors.Is(err, errInvalidSession) {
			// Retry budget exhausted with the session still invalid.
			return nil, fmt.Errorf("%w: session remained invalid after token refresh; re-authenticate with `sf org login`", ErrAuth)
		}
		return nil, err
	}

	if cacheable {
		c.cache.set(key, resp.Data, resp.Raw, req.Options.CacheTTL)
	}
	if method != http.MethodGet {
		c.cache.purge()
	}
	return resp, nil
}

// endpoint builds the request URL: instanceUrl + per-apiType prefix +
// service, unless BaseURL overrides, plus query parameters.
func (c *Client) endpoint(org state.OrgIdentity, req Request) (string, error) {
	var base string
	if req.Options.BaseURL != "" {
		base = req.Options.BaseURL
	} else {
		instance := strings.TrimRight(org.InstanceURL, "/")
		prefix, err := apiPrefix(req.APIType, org.APIVersion)
		if err != nil {
			return "", err
		}
		service := req.Service
		if !strings.HasPrefix(service, "/") {
			service = "/" + service
		}
		base = instance + prefix + service
	}

	if len(req.Options.QueryParams) == 0 {
		return base, nil
	}
	values := url.Values{}
	for k, v := range req.Options.QueryParams {
		values.Set(k, v)
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + values.Encode(), nil
}

func apiPrefix(apiType APIType, apiVersion string) (string, error) {
	data := "/services/data/v" + apiVersion
	switch apiType {
	case APIRest:
		return data, nil
	case APITooling:
		return data + "/tooling", nil
	case APIUI:
		return data + "/ui-api", nil
	case APIApex:
		return "/services/apexrest", nil
	case APIAgent:
		return data + "/agentforce", nil
	default:
		return "", fmt.Errorf("%w: unsupported API type %q", ErrValidation, apiType)
	}
}

// do executes a single HTTP exchange with the current access token.
func (c *Client) do(ctx context.Context, method, endpoint string, body any, headers map[string]string) (*Response, error) {
	c.relaxTLSIfConfigured()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to encode request body: %v", ErrValidation, err)
		}
		// Salesforce accepts GET-with-body on some endpoints; net/http
		// sends it as-is, so no special client is needed.
		reader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	org, _ := c.st.Org()
	httpReq.Header.Set("Authorization", "Bearer "+org.AccessToken)
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		telemetry.RecordGatewayRequest(string(apiTypeForMetric(endpoint)), method, "transport_error")
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response body: %v", ErrTransport, err)
	}

	telemetry.RecordGatewayRequest(string(apiTypeForMetric(endpoint)), method, statusClass(httpResp.StatusCode))

	if httpResp.StatusCode >= 200 && httpResp.StatusCode < 300 {
		return &Response{
			StatusCode: httpResp.StatusCode,
			Data:       decodeBody(raw),
			Raw:        raw,
		}, nil
	}

	if bytes.Contains(raw, []byte(invalidSessionSentinel)) {
		return nil, fmt.Errorf("%w: %s", errInvalidSession, invalidSessionSentinel)
	}
	return nil, fmt.Errorf("%w: HTTP %d: %s", ErrUpstream, httpResp.StatusCode, bodyTail(raw))
}

// relaxTLSIfConfigured disables certificate verification on first use when
// strict SSL is off. The relaxation latches for the process lifetime; it
// is never re-tightened at runtime.
func (c *Client) relaxTLSIfConfigured() {
	if c.strictSSL {
		return
	}
	c.relaxOnce.Do(func() {
		logger.Warn("Strict SSL disabled: Salesforce certificate verification is off for the rest of this process")
		transport, ok := c.httpClient.Transport.(*http.Transport)
		if !ok || transport == nil {
			transport = http.DefaultTransport.(*http.Transport).Clone()
		}
		if transport.TLSClientConfig == nil {
			transport.TLSClientConfig = &tls.Config{} // #nosec G402 -- relaxation is explicit opt-in
		}
		transport.TLSClientConfig.InsecureSkipVerify = true
		c.httpClient.Transport = transport
	})
}

func decodeBody(raw []byte) any {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return map[string]any{}
	}
	var data any
	if err := json.Unmarshal(trimmed, &data); err != nil {
		return string(trimmed)
	}
	return data
}

func bodyTail(raw []byte) string {
	const max = 1024
	s := strings.TrimSpace(string(raw))
	if len(s) > max {
		s = s[:max] + "…"
	}
	return s
}

func statusClass(code int) string {
	return fmt.Sprintf("%dxx", code/100)
}

// apiTypeForMetric derives a coarse API family label from the endpoint so
// metrics stay low-cardinality.
func apiTypeForMetric(endpoint string) APIType {
	switch {
	case strings.Contains(endpoint, "/tooling"):
		return APITooling
	case strings.Contains(endpoint, "/ui-api"):
		return APIUI
	case strings.Contains(endpoint, "/apexrest"):
		return APIApex
	case strings.Contains(endpoint, "/agentforce"):
		return APIAgent
	default:
		return APIRest
	}
}
