package proxy

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// challengeMessage builds a minimal NTLM type 2 message with an empty target info list.
func challengeMessage() []byte {
	const headerLen = 48
	var b bytes.Buffer
	b.WriteString("NTLMSSP\x00")
	_ = binary.Write(&b, binary.LittleEndian, uint32(2))
	// TargetName: empty
	_ = binary.Write(&b, binary.LittleEndian, uint16(0))
	_ = binary.Write(&b, binary.LittleEndian, uint16(0))
	_ = binary.Write(&b, binary.LittleEndian, uint32(headerLen))
	// Unicode | NTLM | extended session security | target info
	_ = binary.Write(&b, binary.LittleEndian, uint32(0x00000001|0x00000200|0x00080000|0x00800000))
	b.Write([]byte{1, 2, 3, 4, 5, 6, 7, 8}) // server challenge
	b.Write(make([]byte, 8))                // reserved
	// TargetInfo: MsvAvEOL only
	_ = binary.Write(&b, binary.LittleEndian, uint16(4))
	_ = binary.Write(&b, binary.LittleEndian, uint16(4))
	_ = binary.Write(&b, binary.LittleEndian, uint32(headerLen))
	b.Write([]byte{0, 0, 0, 0})
	return b.Bytes()
}

func ntlmMessageType(header string) uint32 {
	token := strings.TrimSpace(strings.TrimPrefix(header, "NTLM "))
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil || len(raw) < 12 {
		return 0
	}
	return binary.LittleEndian.Uint32(raw[8:12])
}

func ntlmProxy(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var rounds atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rounds.Add(1)
		switch ntlmMessageType(r.Header.Get("Proxy-Authorization")) {
		case 1:
			w.Header().Set("Proxy-Authenticate", "NTLM "+base64.StdEncoding.EncodeToString(challengeMessage()))
			w.WriteHeader(http.StatusProxyAuthRequired)
		case 3:
			_, _ = w.Write([]byte("proxied " + r.URL.String()))
		default:
			w.Header().Add("Proxy-Authenticate", "NTLM")
			w.Header().Add("Proxy-Authenticate", "Basic realm=\"corp\"")
			w.WriteHeader(http.StatusProxyAuthRequired)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &rounds
}

func TestNTLMTransport_Handshake(t *testing.T) {
	srv, rounds := ntlmProxy(t)
	host, portStr, err := net.SplitHostPort(strings.TrimPrefix(srv.URL, "http://"))
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	resolver := NewResolver(Settings{Host: host, Port: port, Login: "bob", Password: "pw", NTLMHost: "WS01", NTLMDomain: "CORP"})
	client := &http.Client{Transport: &NTLMTransport{
		Base:     &http.Transport{Proxy: resolver.ProxyFunc()},
		Resolver: resolver,
	}}

	resp, err := client.Get("http://connect.example/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), rounds.Load())
}

func TestNTLMTransport_PassThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Proxy-Authorization"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	resolver := NewResolver(Settings{Login: "bob", NTLMHost: "WS01", NTLMDomain: "CORP"})
	client := &http.Client{Transport: &NTLMTransport{Resolver: resolver}}

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestNTLMChallengeParsing(t *testing.T) {
	h := http.Header{}
	h.Add("Proxy-Authenticate", "Basic realm=x")
	h.Add("Proxy-Authenticate", "NTLM "+base64.StdEncoding.EncodeToString([]byte("challenge")))

	assert.True(t, offersNTLM(h))
	data, ok := ntlmChallenge(h)
	require.True(t, ok)
	assert.Equal(t, "challenge", string(data))

	_, ok = ntlmChallenge(http.Header{"Proxy-Authenticate": []string{"NTLM"}})
	assert.False(t, ok)
}

type countingEvaluator struct {
	result string
	calls  atomic.Int32
}

func (c *countingEvaluator) Evaluate(context.Context, string, string, string) (string, error) {
	c.calls.Add(1)
	return c.result, nil
}

func TestNTLMTransport_EvaluatesPACOncePerRequest(t *testing.T) {
	proxySrv, rounds := ntlmProxy(t)
	pac, _ := pacServer(t, "FindProxyForURL := func(url, host) { return \"DIRECT\" }")
	eval := &countingEvaluator{result: "PROXY " + strings.TrimPrefix(proxySrv.URL, "http://")}

	resolver := NewResolver(Settings{PACURL: pac.URL, Login: "bob", Password: "pw", NTLMHost: "WS01", NTLMDomain: "CORP"},
		WithEvaluator(eval))
	client := &http.Client{Transport: &NTLMTransport{
		Base:     &http.Transport{Proxy: resolver.ProxyFunc()},
		Resolver: resolver,
	}}

	resp, err := client.Get("http://connect.example/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), rounds.Load(), "three handshake legs through the proxy")
	assert.Equal(t, int32(1), eval.calls.Load())
}

func TestNTLMTransport_SkipsResolutionWithoutNTLMCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	pac, _ := pacServer(t, "unused")
	eval := &countingEvaluator{result: "DIRECT"}
	resolver := NewResolver(Settings{PACURL: pac.URL, Login: "bob", Password: "pw"}, WithEvaluator(eval))
	client := &http.Client{Transport: &NTLMTransport{
		Base:     &http.Transport{Proxy: resolver.ProxyFunc()},
		Resolver: resolver,
	}}

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, int32(1), eval.calls.Load(), "only the transport's Proxy func resolves")
}
