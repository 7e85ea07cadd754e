package proxy

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/spf13/afero"

	"github.com/glorpus-work/pkgconnect/internal/logger"
	"github.com/glorpus-work/pkgconnect/pkg/metrics"
)

const maxPACSize = 1 << 20

type pacEntry struct {
	url       string
	body      string
	fetchedAt time.Time
}

// Resolver computes a Decision per request. It never fails: every error degrades to Direct.
type Resolver struct {
	settings  Settings
	evaluator PacEvaluator
	client    *http.Client
	fs        afero.Fs
	now       func() time.Time
	metrics   *metrics.Metrics

	pac atomic.Pointer[pacEntry]
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithEvaluator overrides the PAC backend selected from Settings.Engine.
func WithEvaluator(e PacEvaluator) Option {
	return func(r *Resolver) { r.evaluator = e }
}

// WithHTTPClient sets the client used to fetch http(s) PAC URLs.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Resolver) { r.client = c }
}

// WithFs sets the filesystem used for file:// PAC URLs.
func WithFs(fs afero.Fs) Option {
	return func(r *Resolver) { r.fs = fs }
}

// WithClock replaces the time source of the PAC cache.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// WithMetrics records PAC outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// NewResolver creates a resolver for settings.
func NewResolver(settings Settings, opts ...Option) *Resolver {
	r := &Resolver{
		settings: settings,
		// PAC fetches never go through a proxy themselves.
		client: &http.Client{Timeout: 10 * time.Second, Transport: &http.Transport{Proxy: nil}},
		fs:     afero.NewOsFs(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.evaluator == nil {
		r.evaluator = NewEvaluator(settings.Engine, nil)
	}
	if settings.staticConfigured() && r.settings.Port <= 0 {
		r.settings.Port = DefaultPort
	}
	return r
}

// Settings returns the effective settings.
func (r *Resolver) Settings() Settings {
	return r.settings
}

// Resolve returns the routing decision for target.
func (r *Resolver) Resolve(ctx context.Context, target *url.URL) Decision {
	if target == nil {
		return Direct
	}

	if r.settings.staticConfigured() {
		return r.withCredentials(Decision{Host: strings.TrimSpace(r.settings.Host), Port: r.settings.Port})
	}

	if !r.settings.pacConfigured() {
		return Direct
	}

	body, err := r.pacBody(ctx)
	if err != nil {
		logger.Warn("Cannot load PAC script, connecting directly", logger.Fields{
			"pac_url": r.settings.PACURL,
			"error":   err.Error(),
		})
		r.metrics.PACResult("fetch_error")
		return Direct
	}

	result, err := r.evaluator.Evaluate(ctx, body, target.String(), target.Hostname())
	if err != nil {
		logger.Warn("PAC evaluation failed, connecting directly", logger.Fields{
			"pac_url": r.settings.PACURL,
			"target":  target.Redacted(),
			"error":   err.Error(),
		})
		r.metrics.PACResult("eval_error")
		return Direct
	}

	d, ok := ParseDirective(result)
	if !ok {
		logger.Debug("PAC returned no usable proxy", logger.Fields{"result": result, "target": target.Host})
		r.metrics.PACResult("direct")
		return Direct
	}
	r.metrics.PACResult("proxy")
	return r.withCredentials(d)
}

// ProxyFunc adapts the resolver to http.Transport.Proxy.
// A decision already attached to the request context by NTLMTransport is reused.
func (r *Resolver) ProxyFunc() func(*http.Request) (*url.URL, error) {
	return func(req *http.Request) (*url.URL, error) {
		if d, ok := decisionFrom(req.Context()); ok {
			return d.URL(), nil
		}
		return r.Resolve(req.Context(), req.URL).URL(), nil
	}
}

type decisionKey struct{}

func withDecision(ctx context.Context, d Decision) context.Context {
	return context.WithValue(ctx, decisionKey{}, d)
}

func decisionFrom(ctx context.Context) (Decision, bool) {
	d, ok := ctx.Value(decisionKey{}).(Decision)
	return d, ok
}

// InvalidatePAC drops the cached PAC body.
func (r *Resolver) InvalidatePAC() {
	r.pac.Store(nil)
}

func (r *Resolver) withCredentials(d Decision) Decision {
	d.Credentials = r.settings.credentials()
	return d
}

// pacBody returns the cached PAC script, fetching it when absent, expired or configured for another URL.
// Concurrent callers may fetch redundantly; the last store wins.
func (r *Resolver) pacBody(ctx context.Context) (string, error) {
	now := r.now()
	pacURL := strings.TrimSpace(r.settings.PACURL)
	if e := r.pac.Load(); e != nil && e.url == pacURL && now.Sub(e.fetchedAt) <= r.settings.pacTTL() {
		return e.body, nil
	}

	body, err := r.fetchPAC(ctx, pacURL)
	if err != nil {
		return "", err
	}
	r.pac.Store(&pacEntry{url: pacURL, body: body, fetchedAt: now})
	logger.Debug("Fetched PAC script", logger.Fields{"pac_url": pacURL, "bytes": len(body)})
	return body, nil
}

func (r *Resolver) fetchPAC(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid PAC URL %q: %w", rawURL, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "file":
		path := u.Path
		if path == "" {
			path = u.Opaque
		}
		f, err := r.fs.Open(path)
		if err != nil {
			return "", err
		}
		defer f.Close()
		data, err := io.ReadAll(io.LimitReader(f, maxPACSize))
		if err != nil {
			return "", err
		}
		return string(data), nil

	case "http", "https":
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return "", err
		}
		resp, err := r.client.Do(req)
		if err != nil {
			return "", err
		}
		defer func() {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}()
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("PAC server returned status %d", resp.StatusCode)
		}
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxPACSize))
		if err != nil {
			return "", err
		}
		return string(data), nil

	default:
		return "", fmt.Errorf("unsupported PAC URL scheme %q", u.Scheme)
	}
}
