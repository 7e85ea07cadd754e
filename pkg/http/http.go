// Package http builds the HTTP clients used for connect API calls and package downloads.
package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/glorpus-work/pkgconnect/pkg/proxy"
)

// DefaultUserAgent is sent when Options.UserAgent is empty.
const DefaultUserAgent = "pkgconnect/1.0"

// Default timeouts.
const (
	DefaultTimeout         = 30 * time.Second
	DefaultIdleConnTimeout = 90 * time.Second
	DefaultConnectTimeout  = 30 * time.Second
	DefaultReadTimeout     = 5 * time.Minute
)

// Options configure client construction.
type Options struct {
	// Timeout bounds a whole API call. Ignored by download clients.
	Timeout time.Duration
	// IdleConnTimeout is the TTL of idle keep-alive connections.
	IdleConnTimeout time.Duration
	// ConnectTimeout bounds dialing for download clients.
	ConnectTimeout time.Duration
	// ReadTimeout bounds each read of a download body and the wait for response headers.
	ReadTimeout time.Duration
	UserAgent   string
	// Resolver routes requests through proxies. Nil means direct connections.
	Resolver *proxy.Resolver
}

// HTTPClient sends requests with a fixed user agent.
type HTTPClient struct {
	client    *http.Client
	userAgent string
}

// NewAPIClient creates the client for connect API calls.
func NewAPIClient(opts Options) *HTTPClient {
	transport := &http.Transport{
		IdleConnTimeout:     durationOr(opts.IdleConnTimeout, DefaultIdleConnTimeout),
		TLSHandshakeTimeout: 10 * time.Second,
	}
	return &HTTPClient{
		client: &http.Client{
			Timeout:   durationOr(opts.Timeout, DefaultTimeout),
			Transport: withProxy(transport, opts.Resolver),
		},
		userAgent: userAgentOr(opts.UserAgent),
	}
}

// NewDownloadClient creates the client for package payloads: a connect timeout and a per-read
// timeout instead of an overall deadline, since bundles can take long to stream.
func NewDownloadClient(opts Options) *HTTPClient {
	readTimeout := durationOr(opts.ReadTimeout, DefaultReadTimeout)
	dialer := &net.Dialer{
		Timeout:   durationOr(opts.ConnectTimeout, DefaultConnectTimeout),
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			return &deadlineConn{Conn: conn, timeout: readTimeout}, nil
		},
		IdleConnTimeout:       durationOr(opts.IdleConnTimeout, DefaultIdleConnTimeout),
		TLSHandshakeTimeout:   dialer.Timeout,
		ResponseHeaderTimeout: readTimeout,
	}
	return &HTTPClient{
		client:    &http.Client{Transport: withProxy(transport, opts.Resolver)},
		userAgent: userAgentOr(opts.UserAgent),
	}
}

// NewHTTPClient wraps an existing client, e.g. one pointed at a test server.
func NewHTTPClient(client *http.Client, userAgent string) *HTTPClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPClient{client: client, userAgent: userAgentOr(userAgent)}
}

// Do sends req, setting the User-Agent header when the caller did not.
func (hc *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", hc.userAgent)
	}
	return hc.client.Do(req)
}

// StandardClient returns the underlying *http.Client.
func (hc *HTTPClient) StandardClient() *http.Client {
	return hc.client
}

// CloseIdleConnections closes keep-alive connections of the underlying transport.
func (hc *HTTPClient) CloseIdleConnections() {
	hc.client.CloseIdleConnections()
}

// IsTimeout reports whether err is a client, dial or read timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func withProxy(transport *http.Transport, resolver *proxy.Resolver) http.RoundTripper {
	if resolver == nil {
		return transport
	}
	transport.Proxy = resolver.ProxyFunc()
	return &proxy.NTLMTransport{Base: transport, Resolver: resolver}
}

func durationOr(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}

func userAgentOr(ua string) string {
	if ua == "" {
		return DefaultUserAgent
	}
	return ua
}

// deadlineConn renews the read deadline before every Read.
type deadlineConn struct {
	net.Conn
	timeout time.Duration
}

func (c *deadlineConn) Read(b []byte) (int, error) {
	if c.timeout > 0 {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Read(b)
}
