package config

import (
	"strings"

	"github.com/glorpus-work/pkgconnect/pkg/auth"
	"github.com/glorpus-work/pkgconnect/pkg/connector"
	pkghttp "github.com/glorpus-work/pkgconnect/pkg/http"
	"github.com/glorpus-work/pkgconnect/pkg/pool"
	"github.com/glorpus-work/pkgconnect/pkg/proxy"
)

// HeaderAuthenticator returns the authenticator adding connect.headers to every request,
// or nil when no headers are configured.
func (c *Config) HeaderAuthenticator() auth.Authenticator {
	if len(c.Connect.Headers) == 0 {
		return nil
	}
	headers := make(map[string]string, len(c.Connect.Headers))
	for k, v := range c.Connect.Headers {
		headers[k] = v
	}
	return auth.HeaderAuth{Headers: headers}
}

// ProxySettings converts the proxy section for the proxy resolver.
func (c *Config) ProxySettings() proxy.Settings {
	return proxy.Settings{
		Host:        c.Proxy.Host,
		Port:        c.Proxy.Port,
		Login:       c.Proxy.Login,
		Password:    c.Proxy.Password,
		NTLMHost:    c.Proxy.NTLMHost,
		NTLMDomain:  c.Proxy.NTLMDomain,
		PACURL:      c.Proxy.PACURL,
		PACCacheTTL: c.Proxy.PACTTL,
		Engine:      proxy.Engine(strings.ToLower(c.Proxy.PACEngine)),
	}
}

// ConnectorConfig converts the connect and cache sections for the connector.
func (c *Config) ConnectorConfig(clientVersion string) connector.Config {
	if c.Connect.ClientVersion != "" {
		clientVersion = c.Connect.ClientVersion
	}
	return connector.Config{
		BaseURL:           c.EffectiveBaseURL(),
		ServerUnreachable: c.Connect.ServerUnreachable,
		ClientVersion:     clientVersion,
		CacheEnabled:      c.Cache.Enabled,
		MaxAge:            c.Cache.MaxAge,
		ShortMaxAge:       c.Cache.ShortMaxAge,
		ShortPackageType:  c.Cache.ShortPackageType,
		StatusMaxAge:      c.Cache.StatusMaxAge,
	}
}

// APIClientOptions returns the options for the API client.
func (c *Config) APIClientOptions(userAgent string, resolver *proxy.Resolver) pkghttp.Options {
	return pkghttp.Options{
		Timeout:         c.HTTP.Timeout,
		IdleConnTimeout: c.HTTP.IdleConnTTL,
		UserAgent:       userAgent,
		Resolver:        resolver,
	}
}

// DownloadClientOptions returns the options for the bundle download client.
func (c *Config) DownloadClientOptions(userAgent string, resolver *proxy.Resolver) pkghttp.Options {
	return pkghttp.Options{
		IdleConnTimeout: c.HTTP.IdleConnTTL,
		ConnectTimeout:  c.Download.ConnectTimeout,
		ReadTimeout:     c.Download.ReadTimeout,
		UserAgent:       userAgent,
		Resolver:        resolver,
	}
}

// PoolOptions returns the download worker pool options.
func (c *Config) PoolOptions() pool.Options {
	return pool.Options{
		MaxWorkers: c.Download.Workers,
		QueueSize:  c.Download.QueueSize,
	}
}
