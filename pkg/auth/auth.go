// Package auth provides the authenticators applied to outgoing connect requests.
package auth

import "net/http"

// Authenticator defines the interface for applying authentication to HTTP requests.
type Authenticator interface {
	Apply(req *http.Request) error
	Type() Type
}

// HeaderAuth represents authentication via custom HTTP headers.
type HeaderAuth struct {
	Headers map[string]string
}

// Chain applies several authenticators in order, stopping at the first failure.
type Chain []Authenticator

// Type represents the type of authentication.
type Type string

// Authentication types.
const (
	// HeaderAuthType represents custom header-based authentication.
	HeaderAuthType Type = "header"
	// SignatureAuthType represents the signed connect header set.
	SignatureAuthType Type = "signature"
	// ChainAuthType represents a sequence of authenticators.
	ChainAuthType Type = "chain"
)

// Apply adds custom headers to the HTTP request.
func (h HeaderAuth) Apply(req *http.Request) error {
	for k, v := range h.Headers {
		req.Header.Set(k, v)
	}
	return nil
}

// Type returns the authentication type (HeaderAuthType).
func (h HeaderAuth) Type() Type { return HeaderAuthType }

// Apply runs every authenticator of the chain. Nil entries are skipped.
func (c Chain) Apply(req *http.Request) error {
	for _, a := range c {
		if a == nil {
			continue
		}
		if err := a.Apply(req); err != nil {
			return err
		}
	}
	return nil
}

// Type returns the authentication type (ChainAuthType).
func (c Chain) Type() Type { return ChainAuthType }
