// Package identity consumes the external identity contract: a stable user
// id or the anonymous sentinel, plus a best-effort client address.
package identity

import (
	"net"
	"net/http"
	"strings"
)

// Anonymous is the sentinel id for unauthenticated callers.
const Anonymous = "anonymous"

// Caller is a resolved request identity.
type Caller struct {
	UserID string
	Origin string
}

// IsAnonymous reports whether the caller could not be identified.
func (c Caller) IsAnonymous() bool {
	return c.UserID == "" || c.UserID == Anonymous
}

// Resolver yields a Caller for an inbound HTTP request.
type Resolver interface {
	Resolve(r *http.Request) Caller
}

// HeaderResolver trusts an upstream gateway to have authenticated the
// session and to forward the stable id in a header.
type HeaderResolver struct {
	UserHeader string
}

// NewHeaderResolver returns a HeaderResolver reading X-User-ID by default.
func NewHeaderResolver() *HeaderResolver {
	return &HeaderResolver{UserHeader: "X-User-ID"}
}

func (h *HeaderResolver) Resolve(r *http.Request) Caller {
	id := strings.TrimSpace(r.Header.Get(h.UserHeader))
	if id == "" {
		id = Anonymous
	}
	return Caller{UserID: id, Origin: clientAddr(r)}
}

// clientAddr is best effort only; the value is informational and never used
// for authorization.
func clientAddr(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
