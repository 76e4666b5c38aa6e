/*
Package auth implements the authentication gate of the routes requiring
an authenticated caller.

The gate accepts an HMAC signed JWT in the Authorization header, with
the Bearer scheme. The subject of the token identifies the user. The
proxy forwards it to the upstream in the X-User-ID header.

Rejected requests are answered with 401 Unauthorized by the proxy. The
reject reason is logged on debug level.
*/
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	authHeaderName   = "Authorization"
	authHeaderPrefix = "Bearer "

	// UserIDHeader carries the authenticated user to the upstream.
	UserIDHeader = "X-User-ID"
)

// RejectReason is the short, loggable reason of a failed authentication.
type RejectReason string

const (
	missingBearerToken RejectReason = "missing-bearer-token"
	invalidToken       RejectReason = "invalid-token"
	expiredToken       RejectReason = "expired-token"
	invalidIssuer      RejectReason = "invalid-issuer"
	invalidSub         RejectReason = "invalid-sub-in-token"
)

// ErrUnauthorized is the cause of every rejected authentication.
var ErrUnauthorized = errors.New("unauthorized")

// Error is returned by the gate when a request is rejected.
type Error struct {
	Reason RejectReason
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("unauthorized: %s", e.Reason)
	}

	return fmt.Sprintf("unauthorized: %s: %v", e.Reason, e.Err)
}

func (e *Error) Is(target error) bool { return target == ErrUnauthorized }

func (e *Error) Unwrap() error { return e.Err }

func reject(reason RejectReason, err error) error {
	return &Error{Reason: reason, Err: err}
}

// Principal is the authenticated caller.
type Principal struct {
	UserID    string
	Issuer    string
	ExpiresAt time.Time
}

// Gate authenticates requests of the routes requiring authentication.
type Gate interface {
	Authenticate(*http.Request) (*Principal, error)
}

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal stored by WithPrincipal.
func FromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}

// UserID returns the ID of the authenticated user, or an empty string.
func UserID(ctx context.Context) string {
	if p, ok := FromContext(ctx); ok {
		return p.UserID
	}

	return ""
}

func getToken(r *http.Request) (string, error) {
	h := r.Header.Get(authHeaderName)
	if !strings.HasPrefix(h, authHeaderPrefix) {
		return "", reject(missingBearerToken, nil)
	}

	t := strings.TrimSpace(h[len(authHeaderPrefix):])
	if t == "" {
		return "", reject(missingBearerToken, nil)
	}

	return t, nil
}
