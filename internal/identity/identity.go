// Package identity resolves the stable user id for each request.
// Authentication itself lives outside this service: a fronting proxy
// verifies credentials and forwards the identity.
package identity

import (
	"errors"
	"net/http"
	"strings"
)

// ErrNoIdentity means the request carried no usable identity.
var ErrNoIdentity = errors.New("request carries no user identity")

// Provider supplies a stable user id per request.
type Provider interface {
	UserID(r *http.Request) (string, error)
}

// DefaultHeader is the header the fronting auth proxy sets.
const DefaultHeader = "X-User-ID"

// HeaderProvider trusts a configured request header.
type HeaderProvider struct {
	header string
}

// NewHeaderProvider creates a provider reading the given header.
// An empty name selects DefaultHeader.
func NewHeaderProvider(header string) *HeaderProvider {
	if header == "" {
		header = DefaultHeader
	}
	return &HeaderProvider{header: header}
}

// UserID returns the trimmed header value.
func (p *HeaderProvider) UserID(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.Header.Get(p.header))
	if id == "" {
		return "", ErrNoIdentity
	}
	return id, nil
}
