// Package config provides configuration management for the pkgconnect client.
// It handles loading, validating and saving the YAML configuration file and overlays
// environment switches on top of it. Defaults are sensible for a production installation.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/glorpus-work/pkgconnect/pkg/errutils"
	"github.com/glorpus-work/pkgconnect/pkg/fsutil"
	"github.com/glorpus-work/pkgconnect/pkg/proxy"
	"github.com/glorpus-work/pkgconnect/pkg/signing"
)

const (
	// DefaultBaseURL is the production connect endpoint.
	DefaultBaseURL = "https://connect.glorpus.work/api/v1/"
	// TestBaseURL replaces the base URL when test mode is on.
	TestBaseURL = "http://127.0.0.1:8089/connect/"

	// DefaultMaxAge bounds the age of cached download lists.
	DefaultMaxAge = 24 * time.Hour
	// DefaultShortMaxAge caps the max age for lists of the short package type.
	DefaultShortMaxAge = time.Hour
	// DefaultShortPackageType is the package type whose lists go stale quickly.
	DefaultShortPackageType = "hotfix"
	// DefaultStatusMaxAge bounds the age of a cached subscription status.
	DefaultStatusMaxAge = 10 * time.Minute

	// DefaultHTTPTimeout bounds a whole API call.
	DefaultHTTPTimeout = 30 * time.Second
	// DefaultIdleConnTTL is how long idle keep-alive connections are kept.
	DefaultIdleConnTTL = 90 * time.Second

	// DefaultDownloadWorkers is the number of concurrent downloads.
	DefaultDownloadWorkers = 2
	// DefaultQueueSize is the number of downloads waiting for a worker.
	DefaultQueueSize = 64
	// DefaultConnectTimeout bounds dialing the download host.
	DefaultConnectTimeout = 30 * time.Second
	// DefaultReadTimeout bounds each read of a download body.
	DefaultReadTimeout = 5 * time.Minute

	// DefaultPACTTL is how long a fetched PAC script is reused.
	DefaultPACTTL = proxy.DefaultPACCacheTTL
	// DefaultProxyPort is used when a proxy host is given without a port.
	DefaultProxyPort = proxy.DefaultPort

	// ConfigFileName is the name of the configuration file inside the config directory.
	ConfigFileName = "config.yaml"
)

// Config represents the client configuration.
type Config struct {
	Connect  ConnectConfig  `yaml:"connect"`
	HTTP     HTTPConfig     `yaml:"http"`
	Cache    CacheConfig    `yaml:"cache"`
	Proxy    ProxyConfig    `yaml:"proxy"`
	Download DownloadConfig `yaml:"download"`
	Identity IdentityConfig `yaml:"identity"`
	Signing  SigningConfig  `yaml:"signing"`

	// General settings
	Settings Settings `yaml:"settings"`
}

// ConnectConfig locates the connect server.
type ConnectConfig struct {
	BaseURL string `yaml:"base_url"`
	// ServerUnreachable disables every outbound call.
	ServerUnreachable bool `yaml:"server_unreachable"`
	// TestMode points the client at a local server and relaxes signing.
	TestMode      bool   `yaml:"test_mode"`
	ClientVersion string `yaml:"client_version,omitempty"`
	// Headers are added to every request, e.g. for an API gateway in front of the server.
	Headers map[string]string `yaml:"headers,omitempty"`
}

// HTTPConfig tunes the API client.
type HTTPConfig struct {
	Timeout     time.Duration `yaml:"timeout"`
	IdleConnTTL time.Duration `yaml:"idle_conn_ttl"`
}

// CacheConfig controls the response cache.
type CacheConfig struct {
	Enabled          bool          `yaml:"enabled"`
	Dir              string        `yaml:"dir,omitempty"`
	MaxAge           time.Duration `yaml:"max_age"`
	ShortMaxAge      time.Duration `yaml:"short_max_age"`
	ShortPackageType string        `yaml:"short_package_type"`
	StatusMaxAge     time.Duration `yaml:"status_max_age"`
}

// ProxyConfig holds the static proxy and PAC settings.
type ProxyConfig struct {
	Host       string        `yaml:"host,omitempty"`
	Port       int           `yaml:"port"`
	Login      string        `yaml:"login,omitempty"`
	Password   string        `yaml:"password,omitempty"`
	NTLMHost   string        `yaml:"ntlm_host,omitempty"`
	NTLMDomain string        `yaml:"ntlm_domain,omitempty"`
	PACURL     string        `yaml:"pac_url,omitempty"`
	PACTTL     time.Duration `yaml:"pac_ttl"`
	PACEngine  string        `yaml:"pac_engine"`
}

// DownloadConfig tunes the download engine.
type DownloadConfig struct {
	Dir            string        `yaml:"dir,omitempty"`
	Workers        int           `yaml:"workers"`
	QueueSize      int           `yaml:"queue_size"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
}

// IdentityConfig locates the instance identity.
type IdentityConfig struct {
	File string `yaml:"file,omitempty"`
	// Encoded stores the identity file base64-encoded.
	Encoded bool `yaml:"encoded"`
	// InstallPath feeds the technical fingerprint. Empty means the executable's directory.
	InstallPath string `yaml:"install_path,omitempty"`
}

// SigningConfig selects the request digest.
type SigningConfig struct {
	DigestMethod string `yaml:"digest_method"`
}

// Settings represents general application settings.
type Settings struct {
	LogLevel  string `yaml:"log_level"`  // debug, info, warn, error
	LogFormat string `yaml:"log_format"` // text, json
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Connect: ConnectConfig{
			BaseURL: DefaultBaseURL,
		},
		HTTP: HTTPConfig{
			Timeout:     DefaultHTTPTimeout,
			IdleConnTTL: DefaultIdleConnTTL,
		},
		Cache: CacheConfig{
			Enabled:          true,
			MaxAge:           DefaultMaxAge,
			ShortMaxAge:      DefaultShortMaxAge,
			ShortPackageType: DefaultShortPackageType,
			StatusMaxAge:     DefaultStatusMaxAge,
		},
		Proxy: ProxyConfig{
			Port:      DefaultProxyPort,
			PACTTL:    DefaultPACTTL,
			PACEngine: string(proxy.EngineTengo),
		},
		Download: DownloadConfig{
			Workers:        DefaultDownloadWorkers,
			QueueSize:      DefaultQueueSize,
			ConnectTimeout: DefaultConnectTimeout,
			ReadTimeout:    DefaultReadTimeout,
		},
		Signing: SigningConfig{
			DigestMethod: signing.DefaultDigestMethod,
		},
		Settings: Settings{
			LogLevel:  "info",
			LogFormat: "text",
		},
	}
}

// LoadConfig loads configuration from a file. A missing file yields the defaults.
func LoadConfig(fsys afero.Fs, path string) (*Config, error) {
	if path == "" {
		return nil, errutils.ErrEmptyConfigPath
	}
	file, err := fsys.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return DefaultConfig(), nil
		}
		return nil, errutils.Wrapf(err, "failed to open config file %s", path)
	}
	defer file.Close()

	return LoadConfigFromReader(file)
}

// LoadConfigFromReader loads configuration from an io.Reader.
func LoadConfigFromReader(reader io.Reader) (*Config, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, errutils.Wrap(err, "failed to read config data")
	}

	// Keys missing from the file keep their default values, booleans included.
	config := DefaultConfig()
	if len(bytes.TrimSpace(data)) > 0 {
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("%w: %w", errutils.ErrConfigParse, err)
		}
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// SaveConfig writes the configuration to path through a temporary file.
func (c *Config) SaveConfig(fsys afero.Fs, path string) error {
	if path == "" {
		return errutils.ErrEmptyConfigPath
	}
	data, err := c.ToYAML()
	if err != nil {
		return err
	}
	if err := fsutil.EnsureDirMode(fsys, filepath.Dir(path), fsutil.DirModeSecure); err != nil {
		return fmt.Errorf("%w: %w", errutils.ErrConfigDirectory, err)
	}
	if err := fsutil.WriteFileAtomic(fsys, path, data, fsutil.FileModeSecure); err != nil {
		return fmt.Errorf("%w: %w", errutils.ErrConfigFileCreate, err)
	}
	return nil
}

// ToYAML converts the config to YAML bytes.
func (c *Config) ToYAML() ([]byte, error) {
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(c); err != nil {
		return nil, fmt.Errorf("%w: %w", errutils.ErrConfigMarshal, err)
	}
	if err := encoder.Close(); err != nil {
		return nil, fmt.Errorf("%w: %w", errutils.ErrConfigEncode, err)
	}
	return buf.Bytes(), nil
}

// EffectiveBaseURL returns the base URL requests go to, honoring test mode.
func (c *Config) EffectiveBaseURL() string {
	if c.Connect.TestMode {
		return TestBaseURL
	}
	return c.Connect.BaseURL
}

// applyDefaults replaces zero values with defaults. Booleans are left alone.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()

	if c.Connect.BaseURL == "" {
		c.Connect.BaseURL = defaults.Connect.BaseURL
	}
	if c.HTTP.Timeout == 0 {
		c.HTTP.Timeout = defaults.HTTP.Timeout
	}
	if c.HTTP.IdleConnTTL == 0 {
		c.HTTP.IdleConnTTL = defaults.HTTP.IdleConnTTL
	}
	if c.Cache.MaxAge == 0 {
		c.Cache.MaxAge = defaults.Cache.MaxAge
	}
	if c.Cache.ShortMaxAge == 0 {
		c.Cache.ShortMaxAge = defaults.Cache.ShortMaxAge
	}
	if c.Cache.ShortPackageType == "" {
		c.Cache.ShortPackageType = defaults.Cache.ShortPackageType
	}
	if c.Cache.StatusMaxAge == 0 {
		c.Cache.StatusMaxAge = defaults.Cache.StatusMaxAge
	}
	if c.Proxy.Port == 0 {
		c.Proxy.Port = defaults.Proxy.Port
	}
	if c.Proxy.PACTTL == 0 {
		c.Proxy.PACTTL = defaults.Proxy.PACTTL
	}
	if c.Proxy.PACEngine == "" {
		c.Proxy.PACEngine = defaults.Proxy.PACEngine
	}
	if c.Download.Workers == 0 {
		c.Download.Workers = defaults.Download.Workers
	}
	if c.Download.QueueSize == 0 {
		c.Download.QueueSize = defaults.Download.QueueSize
	}
	if c.Download.ConnectTimeout == 0 {
		c.Download.ConnectTimeout = defaults.Download.ConnectTimeout
	}
	if c.Download.ReadTimeout == 0 {
		c.Download.ReadTimeout = defaults.Download.ReadTimeout
	}
	if c.Signing.DigestMethod == "" {
		c.Signing.DigestMethod = defaults.Signing.DigestMethod
	}
	if c.Settings.LogLevel == "" {
		c.Settings.LogLevel = defaults.Settings.LogLevel
	}
	if c.Settings.LogFormat == "" {
		c.Settings.LogFormat = defaults.Settings.LogFormat
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := c.validateConnect(); err != nil {
		return err
	}
	if err := c.validateDurations(); err != nil {
		return err
	}
	if c.Download.Workers < 1 {
		return fmt.Errorf("%w: got %d", errutils.ErrMaxConcurrentInvalid, c.Download.Workers)
	}
	if c.Download.QueueSize < 0 {
		return fmt.Errorf("%w: download.queue_size cannot be negative", errutils.ErrConfigValidation)
	}
	if c.Proxy.Port < 0 || c.Proxy.Port > 65535 {
		return fmt.Errorf("%w: proxy.port %d out of range", errutils.ErrConfigValidation, c.Proxy.Port)
	}
	switch proxy.Engine(strings.ToLower(c.Proxy.PACEngine)) {
	case proxy.EngineTengo, proxy.EngineDirect:
	default:
		return fmt.Errorf("%w: unknown proxy.pac_engine %q, must be one of: %s, %s",
			errutils.ErrConfigValidation, c.Proxy.PACEngine, proxy.EngineTengo, proxy.EngineDirect)
	}
	return c.validateSettings()
}

func (c *Config) validateConnect() error {
	u, err := url.Parse(strings.TrimSpace(c.Connect.BaseURL))
	if err != nil {
		return fmt.Errorf("%w: %w", errutils.ErrInvalidBaseURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q must be an absolute http(s) URL", errutils.ErrInvalidBaseURL, c.Connect.BaseURL)
	}
	return nil
}

func (c *Config) validateDurations() error {
	timeouts := map[string]time.Duration{
		"http.timeout":             c.HTTP.Timeout,
		"http.idle_conn_ttl":       c.HTTP.IdleConnTTL,
		"download.connect_timeout": c.Download.ConnectTimeout,
		"download.read_timeout":    c.Download.ReadTimeout,
		"proxy.pac_ttl":            c.Proxy.PACTTL,
	}
	for key, d := range timeouts {
		if d < 0 {
			return fmt.Errorf("%w: %s", errutils.ErrHTTPTimeoutNegative, key)
		}
	}
	ages := map[string]time.Duration{
		"cache.max_age":        c.Cache.MaxAge,
		"cache.short_max_age":  c.Cache.ShortMaxAge,
		"cache.status_max_age": c.Cache.StatusMaxAge,
	}
	for key, d := range ages {
		if d < 0 {
			return fmt.Errorf("%w: %s", errutils.ErrCacheTTLNegative, key)
		}
	}
	return nil
}

func (c *Config) validateSettings() error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLogLevels[strings.ToLower(c.Settings.LogLevel)] {
		return fmt.Errorf("%w: %q, must be one of: debug, info, warn, error", errutils.ErrInvalidLogLevel, c.Settings.LogLevel)
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Settings.LogFormat)] {
		return fmt.Errorf("%w: %q, must be one of: text, json", errutils.ErrInvalidLogFormat, c.Settings.LogFormat)
	}
	return nil
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() (string, error) {
	dir, err := fsutil.GetConfigDir()
	if err != nil {
		return "", errutils.Wrap(err, "failed to get user config directory")
	}
	return filepath.Join(dir, ConfigFileName), nil
}
