// Package client assembles a ready-to-use connect client from a configuration:
// identity, signing, proxy resolution, HTTP clients, the response cache, the connector
// and the download engine. A Client replaces process-wide state; Reset tears it down so
// the next Init starts from the configuration again.
package client

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"

	"github.com/glorpus-work/pkgconnect/internal/logger"
	"github.com/glorpus-work/pkgconnect/pkg/auth"
	"github.com/glorpus-work/pkgconnect/pkg/cache"
	"github.com/glorpus-work/pkgconnect/pkg/config"
	"github.com/glorpus-work/pkgconnect/pkg/connector"
	"github.com/glorpus-work/pkgconnect/pkg/download"
	"github.com/glorpus-work/pkgconnect/pkg/errutils"
	"github.com/glorpus-work/pkgconnect/pkg/fsutil"
	pkghttp "github.com/glorpus-work/pkgconnect/pkg/http"
	"github.com/glorpus-work/pkgconnect/pkg/identity"
	"github.com/glorpus-work/pkgconnect/pkg/metrics"
	"github.com/glorpus-work/pkgconnect/pkg/pool"
	"github.com/glorpus-work/pkgconnect/pkg/proxy"
	"github.com/glorpus-work/pkgconnect/pkg/signing"
	"github.com/glorpus-work/pkgconnect/pkg/update"
)

// DefaultVersion is announced when no client version is configured.
const DefaultVersion = "0.0.0-dev"

// ErrNotInitialized is returned by accessors used before Init.
var ErrNotInitialized = fmt.Errorf("client is not initialized")

// Client owns every component of one connect client.
type Client struct {
	cfg        *config.Config
	fs         afero.Fs
	version    string
	probe      identity.HardwareProbe
	host       proxy.HostFunctions
	packageDir string
	updates    update.Service
	metrics    *metrics.Metrics

	mu          sync.Mutex
	initialized bool
	identities  *identity.Store
	techID      *identity.TechnicalID
	signer      *signing.Signer
	resolver    *proxy.Resolver
	apiClient   *pkghttp.HTTPClient
	dlClient    *pkghttp.HTTPClient
	cache       *cache.FileCache
	connector   *connector.Connector
	engine      *download.Engine
}

// Option configures a Client.
type Option func(*Client)

// WithFs replaces the OS filesystem.
func WithFs(fsys afero.Fs) Option {
	return func(c *Client) { c.fs = fsys }
}

// WithVersion sets the client version announced to the server.
func WithVersion(v string) Option {
	return func(c *Client) { c.version = v }
}

// WithRegisterer registers the client metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *Client) { c.metrics = metrics.New(reg) }
}

// WithHardwareProbe replaces the host probe behind the technical id.
func WithHardwareProbe(p identity.HardwareProbe) Option {
	return func(c *Client) { c.probe = p }
}

// WithHostFunctions replaces the DNS callbacks available to PAC scripts.
func WithHostFunctions(h proxy.HostFunctions) Option {
	return func(c *Client) { c.host = h }
}

// WithPackageDir sets where accepted bundles are stored.
func WithPackageDir(dir string) Option {
	return func(c *Client) { c.packageDir = dir }
}

// WithUpdateService replaces the local package store bundles are handed to.
func WithUpdateService(s update.Service) Option {
	return func(c *Client) { c.updates = s }
}

// New creates an uninitialized client for cfg.
func New(cfg *config.Config, opts ...Option) *Client {
	c := &Client{
		cfg:     cfg,
		fs:      afero.NewOsFs(),
		version: DefaultVersion,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = metrics.New(nil)
	}
	return c
}

// Init builds every component from the configuration. Calling it again is a no-op until Reset.
func (c *Client) Init(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.cfg.Validate(); err != nil {
		return err
	}
	if !slices.Contains(signing.DigestMethods(), c.cfg.Signing.DigestMethod) {
		return fmt.Errorf("%w: %q, available: %v", errutils.ErrDigestUnavailable, c.cfg.Signing.DigestMethod, signing.DigestMethods())
	}

	dirs, err := c.directories()
	if err != nil {
		return err
	}
	if err := fsutil.EnsureDirs(c.fs, dirs.cache, dirs.downloads, dirs.packages); err != nil {
		return errutils.Wrap(err, "failed to create client directories")
	}

	c.identities = identity.NewStore(c.fs, dirs.identity, c.cfg.Identity.Encoded)
	c.techID = identity.NewTechnicalID(dirs.install, c.probe)
	clientVersion := c.clientVersion()
	c.signer = signing.NewSigner(c.identities, c.techID,
		signing.WithDigestMethod(c.cfg.Signing.DigestMethod),
		signing.WithClientVersion(clientVersion),
		signing.WithTestMode(c.cfg.Connect.TestMode),
	)

	settings := c.cfg.ProxySettings()
	c.resolver = proxy.NewResolver(settings,
		proxy.WithEvaluator(proxy.NewEvaluator(settings.Engine, c.host)),
		proxy.WithFs(c.fs),
		proxy.WithMetrics(c.metrics),
	)

	userAgent := fmt.Sprintf("%s/%s", fsutil.AppName, clientVersion)
	c.apiClient = pkghttp.NewAPIClient(c.cfg.APIClientOptions(userAgent, c.resolver))
	c.dlClient = pkghttp.NewDownloadClient(c.cfg.DownloadClientOptions(userAgent, c.resolver))
	c.cache = cache.NewManager(c.fs, dirs.cache)

	authenticator := auth.Chain{c.cfg.HeaderAuthenticator(), c.signer}
	conn, err := connector.New(c.cfg.ConnectorConfig(clientVersion), c.apiClient,
		connector.WithAuthenticator(authenticator),
		connector.WithCache(c.cache),
		connector.WithMetrics(c.metrics),
		connector.WithIdentityStore(c.identities),
		connector.WithTechnicalID(c.techID),
	)
	if err != nil {
		return err
	}
	c.connector = conn

	updates := c.updates
	if updates == nil {
		updates = update.NewFileStore(c.fs, dirs.packages)
	}
	c.engine = download.NewEngine(c.fs, dirs.downloads, c.dlClient, conn, updates,
		download.WithPool(pool.New(c.cfg.PoolOptions())),
		download.WithMetrics(c.metrics),
		download.WithAuthenticator(authenticator),
	)

	if _, err := c.identities.Load(); err != nil && !errors.Is(err, errutils.ErrNotRegistered) {
		logger.Warn("Ignoring unreadable identity file", logger.Fields{"path": dirs.identity, "error": err.Error()})
	}

	c.initialized = true
	logger.Debug("Connect client initialized", logger.Fields{
		"base_url":  conn.BaseURL().String(),
		"test_mode": c.cfg.Connect.TestMode,
		"cache_dir": dirs.cache,
	})
	return nil
}

// Reset aborts running downloads, closes idle connections and forgets every component.
// Files on disk are kept. The next Init rebuilds the client from the configuration.
func (c *Client) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized {
		return
	}
	c.engine.Close()
	c.engine.Wait()
	c.apiClient.CloseIdleConnections()
	c.dlClient.CloseIdleConnections()
	c.identities.Reset()

	c.identities = nil
	c.techID = nil
	c.signer = nil
	c.resolver = nil
	c.apiClient = nil
	c.dlClient = nil
	c.cache = nil
	c.connector = nil
	c.engine = nil
	c.initialized = false
	logger.Debug("Connect client reset")
}

// Config returns the configuration the client was created with.
func (c *Client) Config() *config.Config {
	return c.cfg
}

// Metrics returns the client metrics.
func (c *Client) Metrics() *metrics.Metrics {
	return c.metrics
}

// Connector returns the connect server connector.
func (c *Client) Connector() (*connector.Connector, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.initialized {
		return nil, ErrNotInitialized
	}
	return c.connector, nil
}

// Downloads returns the download engine.
func (c *Client) Downloads() (*download.Engine, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.initialized {
		return nil, ErrNotInitialized
	}
	return c.engine, nil
}

// Identity returns the logical identity store.
func (c *Client) Identity() (*identity.Store, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.initialized {
		return nil, ErrNotInitialized
	}
	return c.identities, nil
}

// TechnicalID returns the installation fingerprint.
func (c *Client) TechnicalID() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.initialized {
		return "", ErrNotInitialized
	}
	return c.techID.String(), nil
}

// Resolver returns the proxy resolver.
func (c *Client) Resolver() (*proxy.Resolver, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.initialized {
		return nil, ErrNotInitialized
	}
	return c.resolver, nil
}

// Cache returns the response cache.
func (c *Client) Cache() (*cache.FileCache, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.initialized {
		return nil, ErrNotInitialized
	}
	return c.cache, nil
}

type directories struct {
	cache     string
	downloads string
	packages  string
	identity  string
	install   string
}

func (c *Client) directories() (directories, error) {
	var d directories
	var err error

	if d.cache, err = orDefault(c.cfg.Cache.Dir, fsutil.GetResponseCacheDir); err != nil {
		return d, errutils.Wrap(err, "failed to determine cache directory")
	}
	if d.downloads, err = orDefault(c.cfg.Download.Dir, fsutil.GetDownloadDir); err != nil {
		return d, errutils.Wrap(err, "failed to determine download directory")
	}
	if d.packages, err = orDefault(c.packageDir, fsutil.GetPackageStoreDir); err != nil {
		return d, errutils.Wrap(err, "failed to determine package directory")
	}
	if d.identity, err = orDefault(c.cfg.Identity.File, fsutil.GetIdentityPath); err != nil {
		return d, errutils.Wrap(err, "failed to determine identity file")
	}
	if d.install, err = orDefault(c.cfg.Identity.InstallPath, executableDir); err != nil {
		return d, errutils.Wrap(err, "failed to determine install path")
	}
	return d, nil
}

func (c *Client) clientVersion() string {
	if c.cfg.Connect.ClientVersion != "" {
		return c.cfg.Connect.ClientVersion
	}
	return c.version
}

func orDefault(value string, fallback func() (string, error)) (string, error) {
	if value != "" {
		return value, nil
	}
	return fallback()
}

func executableDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.Dir(exe), nil
}
