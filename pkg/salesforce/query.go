// SPDX-FileCopyrightText: Copyright 2026 forcedev authors
// SPDX-License-Identifier: Apache-2.0

package salesforce

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// EscapeSOQLString escapes a value for embedding inside single quotes in a
// SOQL string literal.
func EscapeSOQLString(s string) string {
	replacer := strings.NewReplacer(
		`\`, `\\`,
		`'`, `\'`,
	)
	return replacer.Replace(s)
}

// EscapeSOQLLiterals normalizes quote escaping inside the string literals
// of a whole SOQL query, leaving everything outside literals untouched.
// Within a literal a backslash escape passes through unchanged and a
// SQL-style doubled quote is rewritten to a backslash escape; a lone
// quote closes the literal.
func EscapeSOQLLiterals(query string) string {
	var b strings.Builder
	b.Grow(len(query))
	inLiteral := false
	for i := 0; i < len(query); i++ {
		ch := query[i]
		switch {
		case !inLiteral:
			if ch == '\'' {
				inLiteral = true
			}
			b.WriteByte(ch)
		case ch == '\\' && i+1 < len(query):
			b.WriteByte(ch)
			i++
			b.WriteByte(query[i])
		case ch == '\'':
			if i+1 < len(query) && query[i+1] == '\'' {
				b.WriteString(`\'`)
				i++
			} else {
				inLiteral = false
				b.WriteByte(ch)
			}
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}

// Query runs a SOQL query through the REST query endpoint.
func (c *Client) Query(ctx context.Context, soql string) (*Response, error) {
	return c.query(ctx, APIRest, soql, 0)
}

// ToolingQuery runs a SOQL query through the Tooling query endpoint.
func (c *Client) ToolingQuery(ctx context.Context, soql string) (*Response, error) {
	return c.query(ctx, APITooling, soql, 0)
}

// QueryWithTTL is Query with a per-call cache TTL override.
func (c *Client) QueryWithTTL(ctx context.Context, soql string, ttl time.Duration) (*Response, error) {
	return c.query(ctx, APIRest, soql, ttl)
}

func (c *Client) query(ctx context.Context, apiType APIType, soql string, ttl time.Duration) (*Response, error) {
	soql = strings.TrimSpace(soql)
	if soql == "" {
		return nil, fmt.Errorf("%w: SOQL query is empty", ErrValidation)
	}
	return c.Call(ctx, Request{
		Method:  http.MethodGet,
		APIType: apiType,
		Service: "/query",
		Options: Options{
			QueryParams: map[string]string{"q": soql},
			CacheTTL:    ttl,
		},
	})
}

// Describe fetches the full describe for an SObject.
func (c *Client) Describe(ctx context.Context, sObjectName string) (*Response, error) {
	if sObjectName == "" {
		return nil, fmt.Errorf("%w: sObject name is required", ErrValidation)
	}
	return c.Call(ctx, Request{
		Method:  http.MethodGet,
		APIType: APIRest,
		Service: "/sobjects/" + sObjectName + "/describe",
	})
}
