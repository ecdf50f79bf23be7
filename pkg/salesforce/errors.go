// SPDX-FileCopyrightText: Copyright 2026 forcedev authors
// SPDX-License-Identifier: Apache-2.0

package salesforce

import "errors"

// Error taxonomy for gateway failures. Callers use errors.Is to decide
// whether to surface, retry or translate.
var (
	// ErrValidation marks bad parameters rejected before any network I/O:
	// unknown method, unknown API type, empty service path.
	ErrValidation = errors.New("validation error")

	// ErrNotInitialized means the server state lacks org identity
	// (id, instanceUrl, accessToken); the caller should retry after
	// initialization completes.
	ErrNotInitialized = errors.New("salesforce gateway not initialized")

	// ErrAuth means the session was invalid and the token-refresh retry
	// budget is exhausted; the user must re-authenticate through the CLI.
	ErrAuth = errors.New("salesforce authentication failed")

	// ErrTransport covers DNS, connect, TLS and timeout failures before
	// an HTTP status was received.
	ErrTransport = errors.New("salesforce transport error")

	// ErrUpstream covers Salesforce 4xx/5xx responses.
	ErrUpstream = errors.New("salesforce API error")

	// errInvalidSession is the internal marker for the INVALID_SESSION_ID
	// sentinel; it never escapes Call.
	errInvalidSession = errors.New("invalid session id")
)
