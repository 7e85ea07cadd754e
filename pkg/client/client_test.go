package client_test

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glorpus-work/pkgconnect/pkg/client"
	"github.com/glorpus-work/pkgconnect/pkg/config"
	"github.com/glorpus-work/pkgconnect/pkg/download"
	"github.com/glorpus-work/pkgconnect/pkg/errutils"
	"github.com/glorpus-work/pkgconnect/pkg/identity"
	"github.com/glorpus-work/pkgconnect/pkg/model"
	"github.com/glorpus-work/pkgconnect/pkg/signing"
	"github.com/glorpus-work/pkgconnect/test/testutil"
)

type staticProbe struct{}

func (staticProbe) OSName(context.Context) (string, error) { return "linux", nil }

func (staticProbe) HardwareAddrs(context.Context) ([]string, error) {
	return []string{"00:11:22:33:44:55"}, nil
}

func testConfig(baseURL string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Connect.BaseURL = baseURL
	cfg.Cache.Dir = "/data/cache"
	cfg.Download.Dir = "/data/downloads"
	cfg.Identity.File = "/data/instance.clid"
	cfg.Identity.InstallPath = "/opt/pkgconnect"
	return cfg
}

func newClient(t *testing.T, cfg *config.Config, fs afero.Fs) *client.Client {
	t.Helper()
	c := client.New(cfg,
		client.WithFs(fs),
		client.WithVersion("2.4.0"),
		client.WithHardwareProbe(staticProbe{}),
		client.WithPackageDir("/data/packages"),
		client.WithRegisterer(prometheus.NewRegistry()),
	)
	t.Cleanup(c.Reset)
	return c
}

func TestClient_NotInitialized(t *testing.T) {
	c := newClient(t, testConfig("https://connect.example.com/api/"), afero.NewMemMapFs())

	_, err := c.Connector()
	assert.ErrorIs(t, err, client.ErrNotInitialized)
	_, err = c.Downloads()
	assert.ErrorIs(t, err, client.ErrNotInitialized)
	_, err = c.TechnicalID()
	assert.ErrorIs(t, err, client.ErrNotInitialized)
	assert.NotNil(t, c.Metrics())
}

func TestClient_InitRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *config.Config)
		wantErr error
	}{
		{
			name:    "unknown digest",
			mutate:  func(cfg *config.Config) { cfg.Signing.DigestMethod = "MD4" },
			wantErr: errutils.ErrDigestUnavailable,
		},
		{
			name:    "relative base url",
			mutate:  func(cfg *config.Config) { cfg.Connect.BaseURL = "connect/api" },
			wantErr: errutils.ErrInvalidBaseURL,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig("https://connect.example.com/api/")
			tt.mutate(cfg)
			err := newClient(t, cfg, afero.NewMemMapFs()).Init(context.Background())
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestClient_SignedStatus(t *testing.T) {
	srv := testutil.NewConnectServer(t)
	srv.Handle(http.MethodGet, "status", http.StatusOK, model.SubscriptionStatus{Active: true, Plan: "enterprise"})

	fs := afero.NewMemMapFs()
	cfg := testConfig(srv.BaseURL())
	cfg.Connect.Headers = map[string]string{"X-Gateway-Key": "gw"}
	c := newClient(t, cfg, fs)
	require.NoError(t, c.Init(context.Background()))
	require.NoError(t, c.Init(context.Background()), "a second Init is a no-op")

	for _, dir := range []string{"/data/cache", "/data/downloads", "/data/packages"} {
		ok, err := afero.DirExists(fs, dir)
		require.NoError(t, err)
		assert.True(t, ok, dir)
	}

	store, err := c.Identity()
	require.NoError(t, err)
	require.NoError(t, store.Save(identity.LogicalID{ID1: "client", ID2: "key", Description: "ci"}))

	conn, err := c.Connector()
	require.NoError(t, err)
	status, err := conn.Status(context.Background())
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.Equal(t, "enterprise", status.Plan)

	techID, err := c.TechnicalID()
	require.NoError(t, err)
	req := srv.LastRequest()
	assert.Equal(t, "client--key", req.Header.Get(signing.HeaderClientID))
	assert.Equal(t, techID, req.Header.Get(signing.HeaderTechnicalID))
	assert.Equal(t, "2.4.0", req.Header.Get(signing.HeaderClientVersion))
	assert.Equal(t, "gw", req.Header.Get("X-Gateway-Key"))
	assert.Contains(t, req.Header.Get("User-Agent"), "pkgconnect/2.4.0")
}

func TestClient_ResetReloadsIdentity(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/data/instance.clid", []byte("one\ntwo\nbuild box\n"), 0o640))

	c := newClient(t, testConfig("https://connect.example.com/api/"), fs)
	require.NoError(t, c.Init(context.Background()))
	store, err := c.Identity()
	require.NoError(t, err)
	id, ok := store.Current()
	require.True(t, ok)
	assert.Equal(t, "one--two", id.String())

	require.NoError(t, afero.WriteFile(fs, "/data/instance.clid", []byte("three\nfour\n"), 0o640))
	c.Reset()
	_, err = c.Identity()
	assert.ErrorIs(t, err, client.ErrNotInitialized)

	require.NoError(t, c.Init(context.Background()))
	store, err = c.Identity()
	require.NoError(t, err)
	id, ok = store.Current()
	require.True(t, ok)
	assert.Equal(t, "three--four", id.String())
}

func TestClient_DownloadIntoPackageStore(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("manifest.json")
	require.NoError(t, err)
	_, err = w.Write([]byte(`{"id":"core"}`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	srv := testutil.NewConnectServer(t)
	srv.Handle(http.MethodGet, "files/core-4.2.zip", http.StatusOK, buf.Bytes())

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/data/instance.clid", []byte("client\nkey\n"), 0o640))
	c := newClient(t, testConfig(srv.BaseURL()), fs)
	require.NoError(t, c.Init(context.Background()))

	engine, err := c.Downloads()
	require.NoError(t, err)
	dp, err := engine.StoreDownloadedBundle(context.Background(), model.PackageDescriptor{
		ID:      "core-4.2",
		Version: "4.2",
		URL:     "files/core-4.2.zip",
		Size:    int64(buf.Len()),
	})
	require.NoError(t, err)

	select {
	case <-dp.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("download did not complete")
	}
	assert.Equal(t, download.StateDownloaded, dp.State())
	assert.Equal(t, 100, dp.Progress())

	req := srv.LastRequest()
	assert.Equal(t, "client--key", req.Header.Get(signing.HeaderClientID))
	assert.NotEmpty(t, req.Header.Get(signing.HeaderDigest), "package downloads are signed")

	stored, err := afero.ReadFile(fs, "/data/packages/core-4.2.zip")
	require.NoError(t, err)
	assert.Equal(t, buf.Bytes(), stored)
}
