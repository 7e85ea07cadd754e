package proxy

import (
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Azure/go-ntlmssp"

	"github.com/glorpus-work/pkgconnect/internal/logger"
)

const (
	headerProxyAuthenticate = "Proxy-Authenticate"
	headerProxyAuthorize    = "Proxy-Authorization"
	ntlmScheme              = "NTLM"
)

// NTLMTransport answers a 407 NTLM challenge from the proxy chosen by Resolver.
// The negotiate/challenge/authenticate exchange is done for plain-HTTP targets only;
// HTTPS requests tunnel through CONNECT, which net/http does not let a RoundTripper authenticate.
type NTLMTransport struct {
	Base     http.RoundTripper
	Resolver *Resolver
}

// RoundTrip implements http.RoundTripper.
func (t *NTLMTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	if t.Resolver == nil || req.URL.Scheme != "http" || t.Resolver.settings.credentials().Kind != CredentialsNTLM {
		return base.RoundTrip(req)
	}

	// Resolve once; the base transport's Proxy func picks the decision up from the context.
	decision := t.Resolver.Resolve(req.Context(), req.URL)
	req = req.WithContext(withDecision(req.Context(), decision))
	if decision.IsDirect() {
		return base.RoundTrip(req)
	}
	creds := decision.Credentials

	first, err := rewindable(req)
	if err != nil {
		return nil, err
	}
	resp, err := base.RoundTrip(first)
	if err != nil || resp.StatusCode != http.StatusProxyAuthRequired || !offersNTLM(resp.Header) {
		return resp, err
	}
	discard(resp)

	negotiate, err := ntlmssp.NewNegotiateMessage(creds.Domain, creds.Workstation)
	if err != nil {
		return nil, fmt.Errorf("building NTLM negotiate message: %w", err)
	}
	second, err := withProxyAuth(req, negotiate)
	if err != nil {
		return nil, err
	}
	resp, err = base.RoundTrip(second)
	if err != nil || resp.StatusCode != http.StatusProxyAuthRequired {
		return resp, err
	}

	challenge, ok := ntlmChallenge(resp.Header)
	if !ok {
		return resp, nil
	}
	discard(resp)

	authenticate, err := ntlmssp.ProcessChallenge(challenge, creds.Username, creds.Password, creds.Domain != "")
	if err != nil {
		return nil, fmt.Errorf("answering NTLM challenge: %w", err)
	}
	third, err := withProxyAuth(req, authenticate)
	if err != nil {
		return nil, err
	}

	logger.Debug("Completed NTLM proxy handshake", logger.Fields{"proxy": decision.Address(), "domain": creds.Domain})
	return base.RoundTrip(third)
}

func rewindable(req *http.Request) (*http.Request, error) {
	clone := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return clone, nil
	}
	if req.GetBody == nil {
		return nil, fmt.Errorf("NTLM proxy authentication needs a replayable request body")
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	clone.Body = body
	return clone, nil
}

func withProxyAuth(req *http.Request, msg []byte) (*http.Request, error) {
	clone, err := rewindable(req)
	if err != nil {
		return nil, err
	}
	clone.Header.Set(headerProxyAuthorize, ntlmScheme+" "+base64.StdEncoding.EncodeToString(msg))
	return clone, nil
}

func offersNTLM(h http.Header) bool {
	for _, v := range h.Values(headerProxyAuthenticate) {
		if strings.EqualFold(strings.TrimSpace(v), ntlmScheme) || strings.HasPrefix(strings.ToUpper(v), ntlmScheme+" ") {
			return true
		}
	}
	return false
}

func ntlmChallenge(h http.Header) ([]byte, bool) {
	for _, v := range h.Values(headerProxyAuthenticate) {
		scheme, token, found := strings.Cut(strings.TrimSpace(v), " ")
		if !found || !strings.EqualFold(scheme, ntlmScheme) {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(token))
		if err != nil || len(data) == 0 {
			continue
		}
		return data, true
	}
	return nil, false
}

func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
