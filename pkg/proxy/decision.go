package proxy

import (
	"net"
	"net/url"
	"strconv"
	"strings"
)

// CredentialKind is the proxy authentication scheme.
type CredentialKind string

// Credential kinds.
const (
	CredentialsNone  CredentialKind = "none"
	CredentialsBasic CredentialKind = "basic"
	CredentialsNTLM  CredentialKind = "ntlm"
)

// Credentials authenticate against the proxy.
type Credentials struct {
	Kind        CredentialKind
	Username    string
	Password    string
	Domain      string
	Workstation string
}

// Decision is the per-request routing outcome. An empty Host means no proxy.
type Decision struct {
	Host        string
	Port        int
	Credentials Credentials
}

// Direct is the "no proxy" decision.
var Direct = Decision{}

// IsDirect reports whether the request goes to the server without a proxy.
func (d Decision) IsDirect() bool {
	return d.Host == ""
}

// Address returns host:port of the proxy.
func (d Decision) Address() string {
	if d.IsDirect() {
		return ""
	}
	return net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
}

// URL returns the proxy URL for http.Transport, or nil for a direct connection.
// Basic credentials travel as user-info; NTLM credentials are handled by NTLMTransport.
func (d Decision) URL() *url.URL {
	if d.IsDirect() {
		return nil
	}
	u := &url.URL{Scheme: "http", Host: d.Address()}
	if d.Credentials.Kind == CredentialsBasic {
		u.User = url.UserPassword(d.Credentials.Username, d.Credentials.Password)
	}
	return u
}

// String renders the decision without secrets.
func (d Decision) String() string {
	if d.IsDirect() {
		return "DIRECT"
	}
	s := "PROXY " + d.Address()
	if d.Credentials.Kind != "" && d.Credentials.Kind != CredentialsNone {
		s += " (" + string(d.Credentials.Kind) + ")"
	}
	return s
}

// ParseDirective interprets the first ";"-separated entry of a FindProxyForURL result.
// Only "PROXY host[:port]" yields a proxy; DIRECT and everything else mean no proxy.
func ParseDirective(result string) (Decision, bool) {
	first, _, _ := strings.Cut(result, ";")
	fields := strings.Fields(first)
	if len(fields) != 2 || !strings.EqualFold(fields[0], "PROXY") {
		return Direct, false
	}

	host, port, ok := splitHostPort(fields[1])
	if !ok {
		return Direct, false
	}
	return Decision{Host: host, Port: port}, true
}

func splitHostPort(hostport string) (string, int, bool) {
	if hostport == "" {
		return "", 0, false
	}
	if !strings.Contains(hostport, ":") || (strings.HasPrefix(hostport, "[") && strings.HasSuffix(hostport, "]")) {
		host := strings.TrimSuffix(strings.TrimPrefix(hostport, "["), "]")
		return host, DefaultPort, host != ""
	}
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil || host == "" {
		return "", 0, false
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return "", 0, false
	}
	return host, port, true
}
