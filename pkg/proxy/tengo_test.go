package proxy

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHost struct {
	records map[string]string
	myIP    string
}

func (f fakeHost) DNSResolve(_ context.Context, host string) (string, bool) {
	ip, ok := f.records[host]
	return ip, ok
}

func (f fakeHost) MyIPAddress(context.Context) string {
	return f.myIP
}

const corporatePAC = `
FindProxyForURL := func(url, host) {
	if isPlainHostName(host) || dnsDomainIs(host, ".corp.example") {
		return "DIRECT"
	}
	if isInNet(dnsResolve(host), "10.0.0.0", "255.0.0.0") {
		return "DIRECT"
	}
	if isInNet(myIpAddress(), "192.168.0.0", "255.255.0.0") {
		return "PROXY branch-proxy:3128; DIRECT"
	}
	if shExpMatch(url, "*/downloads/*") {
		return "PROXY bulk-proxy:8080"
	}
	return "PROXY proxy.corp.example"
}
`

func TestTengoEvaluator(t *testing.T) {
	host := fakeHost{
		records: map[string]string{"internal.example": "10.2.3.4", "connect.example": "203.0.113.7"},
		myIP:    "172.16.0.5",
	}

	tests := []struct {
		name string
		url  string
		host string
		myIP string
		want string
	}{
		{name: "plain host", url: "http://intranet/", host: "intranet", want: "DIRECT"},
		{name: "corp domain", url: "https://wiki.corp.example/", host: "wiki.corp.example", want: "DIRECT"},
		{name: "private net", url: "https://internal.example/", host: "internal.example", want: "DIRECT"},
		{name: "branch office", url: "https://connect.example/api", host: "connect.example", myIP: "192.168.4.4", want: "PROXY branch-proxy:3128; DIRECT"},
		{name: "bulk downloads", url: "https://connect.example/downloads/core.zip", host: "connect.example", want: "PROXY bulk-proxy:8080"},
		{name: "default", url: "https://connect.example/api/status", host: "connect.example", want: "PROXY proxy.corp.example"},
		{name: "unresolvable host", url: "https://nowhere.example/", host: "nowhere.example", want: "PROXY proxy.corp.example"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := host
			if tt.myIP != "" {
				h.myIP = tt.myIP
			}
			got, err := NewTengoEvaluator(h).Evaluate(context.Background(), corporatePAC, tt.url, tt.host)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTengoEvaluator_Errors(t *testing.T) {
	tests := []struct {
		name   string
		script string
	}{
		{name: "syntax error", script: `FindProxyForURL := func(url, host) { return "DIRECT"`},
		{name: "missing function", script: `x := 1`},
		{name: "runtime error", script: `FindProxyForURL := func(url, host) { return undefined_helper(host) }`},
		{name: "imports are not available", script: "os := import(\"os\")\nFindProxyForURL := func(url, host) { return os.getenv(\"PROXY\") }"},
		{name: "non-string result", script: `FindProxyForURL := func(url, host) { return 42 }`},
		{name: "no result", script: `FindProxyForURL := func(url, host) { }`},
		{name: "wrong helper arity", script: `FindProxyForURL := func(url, host) { return isPlainHostName() ? "DIRECT" : "PROXY p" }`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTengoEvaluator(fakeHost{}).Evaluate(context.Background(), tt.script, "http://a/", "a")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrPACEvaluation)
		})
	}
}

func TestTengoEvaluator_Timeout(t *testing.T) {
	script := `
FindProxyForURL := func(url, host) {
	for {}
	return "DIRECT"
}`
	start := time.Now()
	_, err := NewTengoEvaluator(fakeHost{}).WithTimeout(50*time.Millisecond).
		Evaluate(context.Background(), script, "http://a/", "a")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestTengoEvaluator_AllocationCap(t *testing.T) {
	script := `
FindProxyForURL := func(url, host) {
	s := []
	for i := 0; i < 10000000; i++ { s = append(s, "x" + host) }
	return "DIRECT"
}`
	_, err := NewTengoEvaluator(fakeHost{}).Evaluate(context.Background(), script, "http://a/", "a")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "allocation") || strings.Contains(err.Error(), "deadline"), err.Error())
}

func TestDirectEvaluator(t *testing.T) {
	got, err := NewEvaluator(EngineDirect, nil).Evaluate(context.Background(), "anything at all", "http://a/", "a")
	require.NoError(t, err)
	assert.Equal(t, "DIRECT", got)
	assert.IsType(t, &TengoEvaluator{}, NewEvaluator("", nil))
}
