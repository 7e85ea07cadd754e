package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glorpus-work/pkgconnect/pkg/proxy"
)

func TestAPIClient_UserAgent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.Header.Get("User-Agent")))
	}))
	defer srv.Close()

	tests := []struct {
		name   string
		client *HTTPClient
		preset string
		want   string
	}{
		{name: "default", client: NewAPIClient(Options{}), want: DefaultUserAgent},
		{name: "custom", client: NewAPIClient(Options{UserAgent: "ci-agent/2"}), want: "ci-agent/2"},
		{name: "caller wins", client: NewAPIClient(Options{}), preset: "mine/1", want: "mine/1"},
		{name: "with resolver", client: NewAPIClient(Options{Resolver: proxy.NewResolver(proxy.Settings{})}), want: DefaultUserAgent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
			require.NoError(t, err)
			if tt.preset != "" {
				req.Header.Set("User-Agent", tt.preset)
			}
			resp, err := tt.client.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			assert.Equal(t, tt.want, string(body))
		})
	}
}

func TestAPIClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	client := NewAPIClient(Options{Timeout: 50 * time.Millisecond})
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	_, err := client.Do(req)
	require.Error(t, err)
	assert.True(t, IsTimeout(err))
}

func TestDownloadClient_ReadTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Length", "1000")
		_, _ = w.Write([]byte("partial"))
		w.(http.Flusher).Flush()
		<-release
	}))
	defer srv.Close()
	defer close(release)

	client := NewDownloadClient(Options{ReadTimeout: 100 * time.Millisecond})
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	_, err = io.ReadAll(resp.Body)
	require.Error(t, err)
	assert.True(t, IsTimeout(err), "stalled body must fail with a timeout, got %v", err)
}

func TestIsTimeout(t *testing.T) {
	assert.False(t, IsTimeout(nil))
	assert.False(t, IsTimeout(errors.New("connection reset by peer")))
	assert.True(t, IsTimeout(context.DeadlineExceeded))
}

func TestNewHTTPClient(t *testing.T) {
	hc := NewHTTPClient(nil, "")
	assert.Same(t, http.DefaultClient, hc.StandardClient())
	assert.NotPanics(t, hc.CloseIdleConnections)
}
