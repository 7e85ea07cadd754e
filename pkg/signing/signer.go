// Package signing builds the signed header set that proves an instance's identity
// to the connect server.
package signing

import (
	"crypto/sha1" //nolint:gosec // SHA-1 is kept for servers that still negotiate it
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"errors"
	"fmt"
	"hash"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/glorpus-work/pkgconnect/pkg/auth"
	"github.com/glorpus-work/pkgconnect/pkg/errutils"
	"github.com/glorpus-work/pkgconnect/pkg/identity"
)

// Signed request headers.
const (
	HeaderClientID      = "X-Connect-Client-Id"
	HeaderTechnicalID   = "X-Connect-Technical-Id"
	HeaderTimestamp     = "X-Connect-Timestamp"
	HeaderDigest        = "X-Connect-Digest"
	HeaderDigestMethod  = "X-Connect-Digest-Method"
	HeaderClientVersion = "X-Connect-Client-Version"
)

// DefaultDigestMethod is the digest announced when none is configured.
const DefaultDigestMethod = "SHA-256"

var (
	digestsMu sync.RWMutex
	digests   = map[string]func() hash.Hash{
		"SHA-256": sha256.New,
		"SHA-512": sha512.New,
		"SHA-1":   sha1.New,
	}
)

// RegisterDigest makes a digest available under name.
func RegisterDigest(name string, fn func() hash.Hash) {
	digestsMu.Lock()
	defer digestsMu.Unlock()
	digests[name] = fn
}

// DigestMethods returns the registered digest names, sorted.
func DigestMethods() []string {
	digestsMu.RLock()
	defer digestsMu.RUnlock()
	names := make([]string, 0, len(digests))
	for name := range digests {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func lookupDigest(name string) (func() hash.Hash, error) {
	digestsMu.RLock()
	defer digestsMu.RUnlock()
	fn, ok := digests[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", errutils.ErrDigestUnavailable, name)
	}
	return fn, nil
}

// Digest computes base64(hash(id2 + technicalID + timestamp)) with the named method.
func Digest(method, id2, technicalID, timestamp string) (string, error) {
	newHash, err := lookupDigest(method)
	if err != nil {
		return "", err
	}
	h := newHash()
	h.Write([]byte(id2 + technicalID + timestamp))
	return base64.StdEncoding.EncodeToString(h.Sum(nil)), nil
}

// IdentitySource provides the current logical identity.
type IdentitySource interface {
	Current() (identity.LogicalID, bool)
}

// Signer produces signed connect headers. It implements auth.Authenticator.
type Signer struct {
	identities    IdentitySource
	technicalID   fmt.Stringer
	method        string
	clientVersion string
	testMode      bool
	now           func() time.Time
}

// Option configures a Signer.
type Option func(*Signer)

// WithDigestMethod selects the digest by its registered name.
func WithDigestMethod(name string) Option {
	return func(s *Signer) {
		if name != "" {
			s.method = name
		}
	}
}

// WithClientVersion sets the version announced in HeaderClientVersion.
func WithClientVersion(v string) Option {
	return func(s *Signer) { s.clientVersion = v }
}

// WithTestMode lets unregistered instances send unsigned requests.
func WithTestMode(enabled bool) Option {
	return func(s *Signer) { s.testMode = enabled }
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Signer) { s.now = now }
}

// NewSigner creates a signer over the given identity source and technical id.
func NewSigner(identities IdentitySource, technicalID fmt.Stringer, opts ...Option) *Signer {
	s := &Signer{
		identities:  identities,
		technicalID: technicalID,
		method:      DefaultDigestMethod,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DigestMethod returns the configured digest name.
func (s *Signer) DigestMethod() string {
	return s.method
}

// Headers builds the full signed header set.
// It fails with a signing ConnectSecurityError when no identity is registered or the digest is unknown.
func (s *Signer) Headers() (map[string]string, error) {
	if s.identities == nil {
		return nil, errutils.NewSigningError(errutils.ErrNotRegistered)
	}
	id, ok := s.identities.Current()
	if !ok {
		return nil, errutils.NewSigningError(errutils.ErrNotRegistered)
	}

	techID := ""
	if s.technicalID != nil {
		techID = s.technicalID.String()
	}
	timestamp := strconv.FormatInt(s.now().UnixMilli(), 10)

	digest, err := Digest(s.method, id.ID2, techID, timestamp)
	if err != nil {
		return nil, errutils.NewSigningError(err)
	}

	return map[string]string{
		HeaderClientID:      id.String(),
		HeaderTechnicalID:   techID,
		HeaderTimestamp:     timestamp,
		HeaderDigest:        digest,
		HeaderDigestMethod:  s.method,
		HeaderClientVersion: s.clientVersion,
	}, nil
}

// Apply sets the signed headers on req.
func (s *Signer) Apply(req *http.Request) error {
	headers, err := s.Headers()
	if err != nil {
		if s.testMode && errors.Is(err, errutils.ErrNotRegistered) {
			req.Header.Set(HeaderClientVersion, s.clientVersion)
			return nil
		}
		return err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return nil
}

// Type returns auth.SignatureAuthType.
func (s *Signer) Type() auth.Type { return auth.SignatureAuthType }
