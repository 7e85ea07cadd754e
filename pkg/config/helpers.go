package config

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/glorpus-work/pkgconnect/pkg/errutils"
)

// fields maps every scalar configuration key to the field holding its value.
func (c *Config) fields() map[string]any {
	return map[string]any{
		"connect.base_url":           &c.Connect.BaseURL,
		"connect.server_unreachable": &c.Connect.ServerUnreachable,
		"connect.test_mode":          &c.Connect.TestMode,
		"connect.client_version":     &c.Connect.ClientVersion,
		"http.timeout":               &c.HTTP.Timeout,
		"http.idle_conn_ttl":         &c.HTTP.IdleConnTTL,
		"cache.enabled":              &c.Cache.Enabled,
		"cache.dir":                  &c.Cache.Dir,
		"cache.max_age":              &c.Cache.MaxAge,
		"cache.short_max_age":        &c.Cache.ShortMaxAge,
		"cache.short_package_type":   &c.Cache.ShortPackageType,
		"cache.status_max_age":       &c.Cache.StatusMaxAge,
		"proxy.host":                 &c.Proxy.Host,
		"proxy.port":                 &c.Proxy.Port,
		"proxy.login":                &c.Proxy.Login,
		"proxy.password":             &c.Proxy.Password,
		"proxy.ntlm_host":            &c.Proxy.NTLMHost,
		"proxy.ntlm_domain":          &c.Proxy.NTLMDomain,
		"proxy.pac_url":              &c.Proxy.PACURL,
		"proxy.pac_ttl":              &c.Proxy.PACTTL,
		"proxy.pac_engine":           &c.Proxy.PACEngine,
		"download.dir":               &c.Download.Dir,
		"download.workers":           &c.Download.Workers,
		"download.queue_size":        &c.Download.QueueSize,
		"download.connect_timeout":   &c.Download.ConnectTimeout,
		"download.read_timeout":      &c.Download.ReadTimeout,
		"identity.file":              &c.Identity.File,
		"identity.encoded":           &c.Identity.Encoded,
		"identity.install_path":      &c.Identity.InstallPath,
		"signing.digest_method":      &c.Signing.DigestMethod,
		"settings.log_level":         &c.Settings.LogLevel,
		"settings.log_format":        &c.Settings.LogFormat,
	}
}

// Keys returns every settable configuration key in sorted order.
func Keys() []string {
	var c Config
	keys := make([]string, 0, len(c.fields()))
	for k := range c.fields() {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SetValue sets a configuration value by its dotted key, e.g. "proxy.port".
// The result is not validated; call Validate afterwards.
func (c *Config) SetValue(key, value string) error {
	field, ok := c.fields()[key]
	if !ok {
		return fmt.Errorf("%w: unknown configuration key: %s", errutils.ErrValidation, key)
	}
	switch p := field.(type) {
	case *string:
		*p = value
	case *bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%w: invalid boolean value for %s: %s", errutils.ErrValidation, key, value)
		}
		*p = b
	case *int:
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w: invalid integer value for %s: %s", errutils.ErrValidation, key, value)
		}
		*p = n
	case *time.Duration:
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%w: invalid duration value for %s: %s", errutils.ErrValidation, key, value)
		}
		*p = d
	}
	return nil
}

// GetValue returns the value of a dotted configuration key as a string.
func (c *Config) GetValue(key string) (string, error) {
	field, ok := c.fields()[key]
	if !ok {
		return "", fmt.Errorf("%w: unknown configuration key: %s", errutils.ErrValidation, key)
	}
	return format(field), nil
}

// ToMap flattens the configuration into dotted keys. Secrets are masked.
// This is useful for displaying the configuration.
func (c *Config) ToMap() map[string]string {
	result := make(map[string]string)
	for key, field := range c.fields() {
		value := format(field)
		if key == "proxy.password" && value != "" {
			value = "********"
		}
		result[key] = value
	}
	return result
}

func format(field any) string {
	switch p := field.(type) {
	case *string:
		return *p
	case *bool:
		return strconv.FormatBool(*p)
	case *int:
		return strconv.Itoa(*p)
	case *time.Duration:
		return p.String()
	default:
		return fmt.Sprintf("%v", field)
	}
}
