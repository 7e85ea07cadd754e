package config

import (
	"strings"

	"github.com/spf13/viper"

	"github.com/glorpus-work/pkgconnect/internal/logger"
)

// EnvPrefix prefixes the environment name of every configuration key.
const EnvPrefix = "PKGCONNECT"

// legacyEnv lists the older environment names still honored for some keys.
// The current PKGCONNECT_* name wins when both are set.
var legacyEnv = map[string][]string{
	"proxy.host":        {"CONNECT_PROXY_HOST"},
	"proxy.port":        {"CONNECT_PROXY_PORT"},
	"proxy.login":       {"CONNECT_PROXY_LOGIN", "CONNECT_PROXY_USER"},
	"proxy.password":    {"CONNECT_PROXY_PASSWORD"},
	"proxy.ntlm_host":   {"CONNECT_PROXY_NTLM_HOST"},
	"proxy.ntlm_domain": {"CONNECT_PROXY_NTLM_DOMAIN"},
	"proxy.pac_url":     {"CONNECT_PROXY_PAC_URL", "CONNECT_PROXY_PAC"},
	"proxy.pac_ttl":     {"CONNECT_PROXY_PAC_TTL"},
	"proxy.pac_engine":  {"CONNECT_PROXY_PAC_ENGINE"},
}

// EnvName returns the current environment variable name of a configuration key,
// e.g. PKGCONNECT_PROXY_HOST for proxy.host.
func EnvName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// EnvNames returns every environment variable name bound to key, current name first.
func EnvNames(key string) []string {
	return append([]string{EnvName(key)}, legacyEnv[key]...)
}

// ApplyEnv overlays environment variables on the configuration and validates the result.
// Empty variables are ignored.
func (c *Config) ApplyEnv() error {
	v := viper.New()
	if err := bindEnvVars(v); err != nil {
		return err
	}

	for _, key := range Keys() {
		if !v.IsSet(key) {
			continue
		}
		if err := c.SetValue(key, v.GetString(key)); err != nil {
			return err
		}
		logger.Debug("Configuration overridden from environment", logger.Fields{"key": key})
	}

	return c.Validate()
}

// bindEnvVars explicitly binds the environment names of every key.
func bindEnvVars(v *viper.Viper) error {
	for _, key := range Keys() {
		if err := v.BindEnv(append([]string{key}, EnvNames(key)...)...); err != nil {
			return err
		}
	}
	return nil
}
