// Package ldap provides the server side of the ldap v3 protocol: message
// encoding for the operations a bind proxy needs, and a connection-oriented
// server that dispatches requests to a Handler.
package ldap

import (
	"context"

	"github.com/go-logr/logr"
)

// contextKey is the context key type
type contextKey int

// contextKey values.
const (
	sessionKey contextKey = iota
)

// SessionID returns the context's session id.
func SessionID(ctx context.Context) string {
	s, ok := ctx.Value(sessionKey).(*session)
	if !ok {
		return ""
	}
	return s.id
}

// Logger returns the context's logger, carrying the session's values.
func Logger(ctx context.Context) logr.Logger {
	return logr.FromContextOrDiscard(ctx)
}
