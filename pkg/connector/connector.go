// Package connector talks to the connect server: it builds request URLs, signs requests,
// classifies responses into typed errors and caches list responses on disk.
package connector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/glorpus-work/pkgconnect/internal/logger"
	"github.com/glorpus-work/pkgconnect/pkg/auth"
	"github.com/glorpus-work/pkgconnect/pkg/cache"
	"github.com/glorpus-work/pkgconnect/pkg/errutils"
	pkghttp "github.com/glorpus-work/pkgconnect/pkg/http"
	"github.com/glorpus-work/pkgconnect/pkg/identity"
	"github.com/glorpus-work/pkgconnect/pkg/metrics"
	"github.com/glorpus-work/pkgconnect/pkg/model"
	"github.com/glorpus-work/pkgconnect/pkg/signing"
)

// maxBodySize bounds how much of a response is read into memory.
const maxBodySize = 32 << 20

// Config holds the connector settings.
type Config struct {
	BaseURL string
	// ServerUnreachable disables every outbound call.
	ServerUnreachable bool
	ClientVersion     string

	CacheEnabled bool
	// MaxAge bounds the age of cached download lists.
	MaxAge time.Duration
	// ShortMaxAge caps MaxAge for lists of ShortPackageType.
	ShortMaxAge      time.Duration
	ShortPackageType string
	StatusMaxAge     time.Duration
}

// IdentityStore persists identities issued by the server.
type IdentityStore interface {
	Save(id identity.LogicalID) error
}

// Response is the success envelope of a call.
type Response struct {
	StatusCode int
	Body       []byte
	// NoData is set for 204 and 404 answers.
	NoData bool
	// FromCache is set when the body came from the file cache.
	FromCache bool
}

// Connector issues calls to the connect server.
type Connector struct {
	cfg        Config
	base       *url.URL
	client     pkghttp.Doer
	auth       auth.Authenticator
	cache      cache.Manager
	serializer Serializer
	metrics    *metrics.Metrics
	store      IdentityStore
	techID     fmt.Stringer

	lastStatus atomic.Pointer[model.SubscriptionStatus]
}

// Option configures a Connector.
type Option func(*Connector)

// WithAuthenticator sets the authenticator applied to every request, usually a signing.Signer.
func WithAuthenticator(a auth.Authenticator) Option {
	return func(c *Connector) { c.auth = a }
}

// WithCache sets the response cache. Without it nothing is cached.
func WithCache(m cache.Manager) Option {
	return func(c *Connector) { c.cache = m }
}

// WithSerializer replaces the JSON payload serializer.
func WithSerializer(s Serializer) Option {
	return func(c *Connector) { c.serializer = s }
}

// WithMetrics records call metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Connector) { c.metrics = m }
}

// WithIdentityStore persists identities returned by RegisterInstance.
func WithIdentityStore(s IdentityStore) Option {
	return func(c *Connector) { c.store = s }
}

// WithTechnicalID sets the fingerprint sent with registrations.
func WithTechnicalID(id fmt.Stringer) Option {
	return func(c *Connector) { c.techID = id }
}

// New creates a connector for cfg.BaseURL sending requests through client.
func New(cfg Config, client pkghttp.Doer, opts ...Option) (*Connector, error) {
	base, err := parseBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	c := &Connector{
		cfg:        cfg,
		base:       base,
		client:     client,
		serializer: JSONSerializer{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func parseBaseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errutils.ErrInvalidBaseURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q must be an absolute http(s) URL", errutils.ErrInvalidBaseURL, raw)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u, nil
}

// BaseURL returns the normalized base URL, always ending in a slash.
func (c *Connector) BaseURL() *url.URL {
	u := *c.base
	return &u
}

// ResolveURL resolves ref against the base URL. Absolute references are returned unchanged.
func (c *Connector) ResolveURL(ref string) (*url.URL, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return nil, errutils.Wrapf(err, "invalid location %q", ref)
	}
	if u.IsAbs() {
		return u, nil
	}
	return c.base.ResolveReference(u), nil
}

// request describes one call.
type request struct {
	method  string
	suffix  string
	headers map[string]string
	body    []byte
	// cacheFor enables the file cache for this call with the given max age.
	cacheFor time.Duration
	// anonymous calls go out unsigned while the instance has no identity.
	anonymous bool
}

// Call sends an uncached request to suffix, relative to the base URL.
func (c *Connector) Call(ctx context.Context, method, suffix string, headers map[string]string, body []byte) (*Response, error) {
	return c.call(ctx, request{method: method, suffix: suffix, headers: headers, body: body})
}

func (c *Connector) cacheKey(suffix string) cache.Key {
	port, _ := strconv.Atoi(c.base.Port())
	if port == 0 {
		port = 80
		if c.base.Scheme == "https" {
			port = 443
		}
	}
	return cache.Key{Host: c.base.Hostname(), Port: port, Path: c.base.Path, Suffix: suffix}
}

func operationName(suffix string) string {
	name, _, _ := strings.Cut(strings.Trim(suffix, "/"), "/")
	return name
}

func (c *Connector) call(ctx context.Context, r request) (*Response, error) {
	op := operationName(r.suffix)

	if c.cfg.ServerUnreachable {
		c.metrics.ObserveCall(op, "unreachable", 0)
		return nil, errutils.ErrCanNotReachConnectServer
	}

	cached := r.cacheFor > 0 && c.cfg.CacheEnabled && c.cache != nil
	if cached {
		data, hit := c.cache.Get(c.cacheKey(r.suffix), r.cacheFor)
		c.metrics.CacheLookup(op, hit)
		if hit {
			logger.Debug("Serving response from cache", logger.Fields{"operation": op})
			c.metrics.ObserveCall(op, "cache", 0)
			return &Response{StatusCode: http.StatusOK, Body: data, FromCache: true}, nil
		}
	}

	start := time.Now()
	resp, err := c.send(ctx, r)
	elapsed := time.Since(start)
	if err != nil {
		c.metrics.ObserveCall(op, outcome(err), elapsed)
		return nil, err
	}
	c.metrics.ObserveCall(op, "ok", elapsed)

	if cached && !resp.NoData && len(resp.Body) > 0 {
		if err := c.cache.Put(c.cacheKey(r.suffix), resp.Body); err != nil {
			logger.Warn("Cannot write response cache", logger.Fields{"operation": op, "error": err.Error()})
		}
	}
	return resp, nil
}

func (c *Connector) send(ctx context.Context, r request) (*Response, error) {
	target, err := c.ResolveURL(strings.TrimPrefix(r.suffix, "/"))
	if err != nil {
		return nil, err
	}

	var body io.Reader = http.NoBody
	if r.body != nil {
		body = bytes.NewReader(r.body)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, target.String(), body)
	if err != nil {
		return nil, errutils.Wrap(err, "failed to create request")
	}
	req.Header.Set("Accept", c.serializer.ContentType())
	if r.body != nil {
		req.Header.Set("Content-Type", c.serializer.ContentType())
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}
	if c.auth != nil {
		if err := c.auth.Apply(req); err != nil {
			if !r.anonymous || !errors.Is(err, errutils.ErrNotRegistered) {
				return nil, err
			}
			logger.Debug("Sending unsigned request", logger.Fields{"suffix": r.suffix})
			if c.cfg.ClientVersion != "" {
				req.Header.Set(signing.HeaderClientVersion, c.cfg.ClientVersion)
			}
		}
	}

	logger.Debug("Calling connect server", logger.Fields{"method": r.method, "url": target.Redacted()})
	resp, err := c.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !pkghttp.IsTimeout(err) {
			return nil, ctxErr
		}
		return nil, errutils.NewUnreachableError(err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, errutils.NewUnreachableError(err)
	}

	noData, err := classify(resp.StatusCode, data, c.serializer)
	if err != nil {
		logger.Debug("Connect server refused request", logger.Fields{"status": resp.StatusCode, "error": err.Error()})
		return nil, err
	}
	return &Response{StatusCode: resp.StatusCode, Body: data, NoData: noData}, nil
}

func outcome(err error) string {
	var sec *errutils.ConnectSecurityError
	if errors.As(err, &sec) {
		return "security_" + string(sec.Reason)
	}
	if kind := errutils.KindOf(err); kind != "" {
		return string(kind)
	}
	return "error"
}

// FlushCache deletes every cached response.
func (c *Connector) FlushCache() error {
	if c.cache == nil {
		return nil
	}
	return c.cache.Flush()
}
