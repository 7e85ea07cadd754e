// Package proxy decides whether and how a request reaches the connect server through a proxy,
// from static settings or from a PAC script evaluated in a restricted tengo runtime.
package proxy

import (
	"strings"
	"time"
)

// DefaultPort is used when a proxy host is given without a port.
const DefaultPort = 80

// DefaultPACCacheTTL is how long a fetched PAC body is reused.
const DefaultPACCacheTTL = 5 * time.Minute

// Engine selects the PAC evaluation backend.
type Engine string

// PAC engines.
const (
	EngineTengo  Engine = "tengo"
	EngineDirect Engine = "direct"
)

// Settings is the proxy configuration.
type Settings struct {
	Host        string
	Port        int
	Login       string
	Password    string
	NTLMHost    string
	NTLMDomain  string
	PACURL      string
	PACCacheTTL time.Duration
	Engine      Engine
}

// IsConfigured reports whether v holds a real value rather than nothing or an
// unexpanded ${...} / @...@ template placeholder.
func IsConfigured(v string) bool {
	v = strings.TrimSpace(v)
	if v == "" {
		return false
	}
	if strings.HasPrefix(v, "${") && strings.HasSuffix(v, "}") {
		return false
	}
	if len(v) >= 2 && strings.HasPrefix(v, "@") && strings.HasSuffix(v, "@") {
		return false
	}
	return true
}

func (s Settings) staticConfigured() bool {
	return IsConfigured(s.Host)
}

func (s Settings) pacConfigured() bool {
	return IsConfigured(s.PACURL)
}

func (s Settings) pacTTL() time.Duration {
	if s.PACCacheTTL <= 0 {
		return DefaultPACCacheTTL
	}
	return s.PACCacheTTL
}

// credentials applies the credential policy: Basic when a login is configured,
// NTLM instead when an NTLM host and domain are configured as well.
func (s Settings) credentials() Credentials {
	if !IsConfigured(s.Login) {
		return Credentials{Kind: CredentialsNone}
	}
	if IsConfigured(s.NTLMHost) && IsConfigured(s.NTLMDomain) {
		return Credentials{
			Kind:        CredentialsNTLM,
			Username:    s.Login,
			Password:    s.Password,
			Domain:      s.NTLMDomain,
			Workstation: s.NTLMHost,
		}
	}
	return Credentials{Kind: CredentialsBasic, Username: s.Login, Password: s.Password}
}
