package connector

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glorpus-work/pkgconnect/pkg/cache"
	"github.com/glorpus-work/pkgconnect/pkg/errutils"
	"github.com/glorpus-work/pkgconnect/pkg/identity"
	"github.com/glorpus-work/pkgconnect/pkg/metrics"
	"github.com/glorpus-work/pkgconnect/pkg/model"
	"github.com/glorpus-work/pkgconnect/pkg/signing"
	connecttest "github.com/glorpus-work/pkgconnect/test/testutil"
)

const cacheDir = "/cache/responses"

type fixedID string

func (f fixedID) String() string { return string(f) }

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

type fixture struct {
	server  *connecttest.ConnectServer
	conn    *Connector
	fs      afero.Fs
	clock   *fakeClock
	metrics *metrics.Metrics
	store   *identity.Store
}

func newFixture(t *testing.T, mutate func(*Config)) *fixture {
	t.Helper()
	srv := connecttest.NewConnectServer(t)
	fs := afero.NewMemMapFs()
	clk := &fakeClock{now: time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)}
	m := metrics.New(prometheus.NewRegistry())
	store := identity.NewStore(fs, "/data/instance.clid", false)

	cfg := Config{
		BaseURL:          srv.BaseURL(),
		ClientVersion:    "2.3.0",
		CacheEnabled:     true,
		MaxAge:           time.Hour,
		ShortMaxAge:      5 * time.Minute,
		ShortPackageType: "nightly",
		StatusMaxAge:     10 * time.Minute,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	tech := fixedID("linux-aaaa-bbbb")
	conn, err := New(cfg, srv.Client(),
		WithCache(cache.NewManager(fs, cacheDir, cache.WithClock(clk.Now))),
		WithAuthenticator(signing.NewSigner(store, tech, signing.WithClientVersion(cfg.ClientVersion))),
		WithMetrics(m),
		WithIdentityStore(store),
		WithTechnicalID(tech),
	)
	require.NoError(t, err)
	return &fixture{server: srv, conn: conn, fs: fs, clock: clk, metrics: m, store: store}
}

func (f *fixture) register(t *testing.T) {
	t.Helper()
	require.NoError(t, f.store.Save(identity.LogicalID{ID1: "client", ID2: "secret"}))
}

// stampCache sets the mtime of the cache entry for suffix to the fake clock's now.
func (f *fixture) stampCache(t *testing.T, suffix string) time.Time {
	t.Helper()
	path := filepath.Join(cacheDir, f.conn.cacheKey(suffix).FileName())
	require.NoError(t, f.fs.Chtimes(path, f.clock.now, f.clock.now))
	return f.clock.now
}

func TestNew_BaseURL(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{name: "adds trailing slash", raw: "https://connect.example.com/api/v1", want: "https://connect.example.com/api/v1/"},
		{name: "keeps trailing slash", raw: "http://127.0.0.1:8089/connect/", want: "http://127.0.0.1:8089/connect/"},
		{name: "relative", raw: "/connect/", wantErr: true},
		{name: "unsupported scheme", raw: "ftp://example.com/", wantErr: true},
		{name: "empty", raw: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(Config{BaseURL: tt.raw}, http.DefaultClient)
			if tt.wantErr {
				assert.ErrorIs(t, err, errutils.ErrInvalidBaseURL)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.BaseURL().String())
		})
	}
}

func TestResolveURL(t *testing.T) {
	c, err := New(Config{BaseURL: "https://connect.example.com/api/v1"}, http.DefaultClient)
	require.NoError(t, err)

	tests := map[string]string{
		"packages/core.zip":                   "https://connect.example.com/api/v1/packages/core.zip",
		"/files/core.zip":                     "https://connect.example.com/files/core.zip",
		"https://cdn.example.com/core.zip?x=1": "https://cdn.example.com/core.zip?x=1",
	}
	for ref, want := range tests {
		u, err := c.ResolveURL(ref)
		require.NoError(t, err)
		assert.Equal(t, want, u.String())
	}
}

func TestCall_Classification(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       any
		wantNoData bool
		wantKind   errutils.ErrorKind
		wantReason errutils.SecurityReason
		wantMsg    string
	}{
		{name: "ok", status: http.StatusOK, body: `{"active":true}`},
		{name: "no content", status: http.StatusNoContent, wantNoData: true},
		{name: "not found", status: http.StatusNotFound, wantNoData: true},
		{name: "unauthorized", status: http.StatusUnauthorized, wantReason: errutils.ReasonAuth},
		{name: "proxy auth", status: http.StatusProxyAuthRequired, wantReason: errutils.ReasonProxyAuth},
		{name: "request timeout", status: http.StatusRequestTimeout, wantKind: errutils.KindTimeout},
		{name: "gateway timeout", status: http.StatusGatewayTimeout, wantKind: errutils.KindTimeout},
		{
			name: "closed kind tag", status: http.StatusConflict,
			body:     map[string]string{"kind": "client_version", "message": "upgrade required"},
			wantKind: errutils.KindClientVersion, wantMsg: "upgrade required",
		},
		{
			name: "legacy error class", status: http.StatusInternalServerError,
			body:     map[string]string{"errorClass": "NotFound", "message": "no such project"},
			wantKind: errutils.KindNotFound, wantMsg: "no such project",
		},
		{
			name: "security kind", status: http.StatusForbidden,
			body:       map[string]string{"kind": "security", "message": "license revoked"},
			wantReason: errutils.ReasonAuth, wantMsg: "license revoked",
		},
		{
			name: "unknown class with message", status: http.StatusBadRequest,
			body:     map[string]string{"errorClass": "SomethingElse", "message": "bad input"},
			wantKind: errutils.KindServer, wantMsg: "bad input",
		},
		{name: "undecodable body", status: http.StatusBadGateway, body: "<html>bad gateway</html>", wantKind: errutils.KindServer, wantMsg: "unexpected response status 502"},
		{name: "empty body", status: http.StatusServiceUnavailable, wantKind: errutils.KindServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.register(t)
			f.server.Handle(http.MethodGet, "probe", tt.status, tt.body)

			resp, err := f.conn.Call(context.Background(), http.MethodGet, "probe", nil, nil)
			switch {
			case tt.wantReason != "":
				require.Error(t, err)
				assert.ErrorIs(t, err, &errutils.ConnectSecurityError{Reason: tt.wantReason})
				assert.Contains(t, err.Error(), tt.wantMsg)
			case tt.wantKind != "":
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, errutils.KindOf(err))
				assert.Contains(t, err.Error(), tt.wantMsg)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.status, resp.StatusCode)
				assert.Equal(t, tt.wantNoData, resp.NoData)
			}
		})
	}
}

func TestCall_SignsRequests(t *testing.T) {
	f := newFixture(t, nil)
	f.register(t)
	f.server.Handle(http.MethodGet, "status", http.StatusOK, model.SubscriptionStatus{Active: true})

	_, err := f.conn.Call(context.Background(), http.MethodGet, "status", map[string]string{"X-Trace": "abc"}, nil)
	require.NoError(t, err)

	req := f.server.LastRequest()
	assert.Equal(t, "client--secret", req.Header.Get(signing.HeaderClientID))
	assert.Equal(t, "linux-aaaa-bbbb", req.Header.Get(signing.HeaderTechnicalID))
	assert.Equal(t, "SHA-256", req.Header.Get(signing.HeaderDigestMethod))
	assert.Equal(t, "2.3.0", req.Header.Get(signing.HeaderClientVersion))
	assert.NotEmpty(t, req.Header.Get(signing.HeaderDigest))
	assert.Equal(t, "abc", req.Header.Get("X-Trace"))
}

func TestCall_UnregisteredFailsBeforeNetwork(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.conn.Status(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, &errutils.ConnectSecurityError{Reason: errutils.ReasonSigning})
	assert.ErrorIs(t, err, errutils.ErrNotRegistered)
	assert.Equal(t, 0, f.server.RequestCount())
}

func TestServerUnreachableSwitch(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.ServerUnreachable = true })
	f.register(t)
	ctx := context.Background()

	calls := map[string]func() error{
		"status":    func() error { _, err := f.conn.Status(ctx); return err },
		"downloads": func() error { _, err := f.conn.Downloads(ctx, "bundle"); return err },
		"download":  func() error { _, err := f.conn.Download(ctx, "core"); return err },
		"renew":     func() error { _, err := f.conn.RenewRegistration(ctx); return err },
		"projects":  func() error { _, err := f.conn.AvailableProjects(ctx); return err },
		"register":  func() error { _, err := f.conn.RegisterInstance(ctx, "p1", "", ""); return err },
		"trial":     func() error { return f.conn.SubmitTrialRegistration(ctx, model.TrialRegistration{Email: "a@b.c"}) },
	}
	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			err := call()
			require.Error(t, err)
			assert.ErrorIs(t, err, errutils.ErrCanNotReachConnectServer)
		})
	}
	assert.Equal(t, 0, f.server.RequestCount(), "no network I/O while the server is marked unreachable")
}

func TestStatus_CacheFreshness(t *testing.T) {
	f := newFixture(t, nil)
	f.register(t)
	f.server.Handle(http.MethodGet, "status", http.StatusOK, model.SubscriptionStatus{Active: true, Plan: "pro"})
	ctx := context.Background()

	status, err := f.conn.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "pro", status.Plan)
	require.Equal(t, 1, f.server.RequestCount())
	written := f.stampCache(t, SuffixStatus)

	f.clock.now = written.Add(10*time.Minute - time.Nanosecond)
	status, err = f.conn.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "pro", status.Plan)
	assert.Equal(t, 1, f.server.RequestCount(), "fresh entry is served without a network call")

	f.clock.now = written.Add(10*time.Minute + time.Nanosecond)
	_, err = f.conn.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, f.server.RequestCount(), "expired entry triggers a network call")

	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.CacheLookups.WithLabelValues("status", "hit")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(f.metrics.CacheLookups.WithLabelValues("status", "miss")), 0)
}

func TestStatus_CacheDisabled(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.CacheEnabled = false })
	f.register(t)
	f.server.Handle(http.MethodGet, "status", http.StatusOK, model.SubscriptionStatus{Active: true})

	for i := 0; i < 2; i++ {
		_, err := f.conn.Status(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, 2, f.server.RequestCount())
}

func TestStatus_StaleOnUnreachable(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.StatusMaxAge = 0 })
	f.register(t)
	f.server.Handle(http.MethodGet, "status", http.StatusOK, model.SubscriptionStatus{Active: true, Plan: "pro"})
	ctx := context.Background()

	_, err := f.conn.Status(ctx)
	require.NoError(t, err)

	f.server.Close()
	status, err := f.conn.Status(ctx)
	require.NoError(t, err, "last known status is served while the server is unreachable")
	assert.Equal(t, "pro", status.Plan)
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.StaleStatusServed), 0)

	// other cached calls do not fall back
	_, err = f.conn.Downloads(ctx, "bundle")
	assert.True(t, errutils.IsUnreachable(err))
}

func TestStatus_NoStaleCopyWithoutCaching(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.CacheEnabled = false })
	f.register(t)
	f.server.Handle(http.MethodGet, "status", http.StatusOK, model.SubscriptionStatus{Active: true})

	_, err := f.conn.Status(context.Background())
	require.NoError(t, err)
	f.server.Close()

	_, err = f.conn.Status(context.Background())
	assert.ErrorIs(t, err, errutils.ErrCanNotReachConnectServer)
}

func TestStatus_ServerErrorIsNotMasked(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.StatusMaxAge = 0 })
	f.register(t)
	f.server.Handle(http.MethodGet, "status", http.StatusOK, model.SubscriptionStatus{Active: true})
	_, err := f.conn.Status(context.Background())
	require.NoError(t, err)

	f.server.HandleError(http.MethodGet, "status", http.StatusInternalServerError, "server", "maintenance")
	_, err = f.conn.Status(context.Background())
	require.Error(t, err)
	assert.Equal(t, errutils.KindServer, errutils.KindOf(err))
}

func TestDownloads_CacheMaxAge(t *testing.T) {
	f := newFixture(t, nil)
	f.register(t)
	list := []model.PackageDescriptor{{ID: "core-4.2", Name: "core", Version: "4.2", URL: "packages/core-4.2.zip"}}
	f.server.Handle(http.MethodGet, "getDownloads/bundle", http.StatusOK, list)
	f.server.Handle(http.MethodGet, "getDownloads/nightly", http.StatusOK, list)
	ctx := context.Background()

	got, err := f.conn.Downloads(ctx, "bundle")
	require.NoError(t, err)
	assert.Equal(t, list, got)
	_, err = f.conn.Downloads(ctx, "nightly")
	require.NoError(t, err)
	require.Equal(t, 2, f.server.RequestCount())

	bundleWritten := f.stampCache(t, SuffixDownloads+"bundle")
	f.stampCache(t, SuffixDownloads+"nightly")

	f.clock.now = bundleWritten.Add(30 * time.Minute)
	_, err = f.conn.Downloads(ctx, "bundle")
	require.NoError(t, err)
	assert.Equal(t, 2, f.server.RequestCount(), "regular lists use MaxAge")

	_, err = f.conn.Downloads(ctx, "nightly")
	require.NoError(t, err)
	assert.Equal(t, 3, f.server.RequestCount(), "the short-lived type is capped by ShortMaxAge")

	require.NoError(t, f.conn.FlushCache())
	_, err = f.conn.Downloads(ctx, "bundle")
	require.NoError(t, err)
	assert.Equal(t, 4, f.server.RequestCount())
}

func TestDownloads_Validation(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.conn.Downloads(context.Background(), " ")
	assert.ErrorIs(t, err, errutils.ErrValidation)
	_, err = f.conn.Download(context.Background(), "")
	assert.ErrorIs(t, err, errutils.ErrValidation)
}

func TestDownload(t *testing.T) {
	f := newFixture(t, nil)
	f.register(t)
	f.server.Handle(http.MethodGet, "getDownload/core-4.2", http.StatusOK, model.PackageDescriptor{ID: "core-4.2", Size: 42})
	ctx := context.Background()

	desc, err := f.conn.Download(ctx, "core-4.2")
	require.NoError(t, err)
	assert.Equal(t, int64(42), desc.Size)

	desc, err = f.conn.Download(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, desc, "404 means no data")

	_, err = f.conn.Download(ctx, "core-4.2")
	require.NoError(t, err)
	assert.Equal(t, 3, f.server.RequestCount(), "single downloads are never cached")
}

func TestDownload_MalformedPayload(t *testing.T) {
	f := newFixture(t, nil)
	f.register(t)
	f.server.Handle(http.MethodGet, "getDownload/x", http.StatusOK, "{not json")

	_, err := f.conn.Download(context.Background(), "x")
	require.Error(t, err)
	assert.Equal(t, errutils.KindServer, errutils.KindOf(err))
}

func TestRegisterInstance(t *testing.T) {
	f := newFixture(t, nil)
	f.server.Handle(http.MethodGet, "getAvailableProjectsForRegistration", http.StatusOK,
		[]model.Project{{ID: "p1", Name: "Payments"}})
	f.server.Handle(http.MethodPost, "remoteRegisterInstance", http.StatusOK,
		model.RegistrationResponse{ID1: "issued", ID2: "key", InstanceType: "preprod"})
	f.server.Handle(http.MethodGet, "status", http.StatusOK, model.SubscriptionStatus{Active: true})
	ctx := context.Background()

	projects, err := f.conn.AvailableProjects(ctx)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Empty(t, f.server.LastRequest().Header.Get(signing.HeaderClientID), "unregistered instances call unsigned")
	assert.Equal(t, "2.3.0", f.server.LastRequest().Header.Get(signing.HeaderClientVersion))

	id, err := f.conn.RegisterInstance(ctx, "p1", "ci runner", identity.TypePreprod)
	require.NoError(t, err)
	assert.Equal(t, "issued--key", id.String())
	assert.Equal(t, identity.TypePreprod, id.Type)

	var sent model.RegistrationRequest
	require.NoError(t, JSONSerializer{}.Unmarshal(f.server.LastRequest().Body, &sent))
	assert.Equal(t, "p1", sent.ProjectID)
	assert.Equal(t, "linux-aaaa-bbbb", sent.TechnicalID)
	assert.Equal(t, "preprod", sent.InstanceType)
	assert.Equal(t, "application/json", f.server.LastRequest().Header.Get("Content-Type"))

	persisted, ok := f.store.Current()
	require.True(t, ok)
	assert.Equal(t, id, persisted)

	_, err = f.conn.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "issued--key", f.server.LastRequest().Header.Get(signing.HeaderClientID))
}

func TestRegisterInstance_Failures(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.conn.RegisterInstance(ctx, "", "", "")
	assert.ErrorIs(t, err, errutils.ErrValidation)

	_, err = f.conn.RegisterInstance(ctx, "unknown", "", "")
	assert.Equal(t, errutils.KindNotFound, errutils.KindOf(err))

	f.server.Handle(http.MethodPost, "remoteRegisterInstance", http.StatusOK, model.RegistrationResponse{ID1: "only-one"})
	_, err = f.conn.RegisterInstance(ctx, "p1", "", "")
	assert.Equal(t, errutils.KindServer, errutils.KindOf(err))
	_, ok := f.store.Current()
	assert.False(t, ok, "invalid identities are not persisted")
}

func TestRenewRegistration(t *testing.T) {
	f := newFixture(t, nil)
	f.register(t)
	f.server.Handle(http.MethodPost, "remoteRenewRegistration", http.StatusOK, model.RenewalResponse{Renewed: true, ExpiresAt: "2027-01-01"})

	renewal, err := f.conn.RenewRegistration(context.Background())
	require.NoError(t, err)
	assert.True(t, renewal.Renewed)
	assert.Equal(t, "2027-01-01", renewal.ExpiresAt)

	f.server.Handle(http.MethodPost, "remoteRenewRegistration", http.StatusNoContent, nil)
	renewal, err = f.conn.RenewRegistration(context.Background())
	require.NoError(t, err)
	assert.True(t, renewal.Renewed)
}

func TestSubmitTrialRegistration(t *testing.T) {
	f := newFixture(t, nil)
	f.server.Handle(http.MethodPost, "submitTrialRegistration", http.StatusNoContent, nil)

	assert.ErrorIs(t, f.conn.SubmitTrialRegistration(context.Background(), model.TrialRegistration{}), errutils.ErrValidation)
	require.NoError(t, f.conn.SubmitTrialRegistration(context.Background(), model.TrialRegistration{Email: "dev@example.com"}))

	var sent model.TrialRegistration
	require.NoError(t, JSONSerializer{}.Unmarshal(f.server.LastRequest().Body, &sent))
	assert.Equal(t, "dev@example.com", sent.Email)
}

func TestCheckClientVersion(t *testing.T) {
	tests := []struct {
		name    string
		client  string
		minimum string
		wantErr bool
	}{
		{name: "newer client", client: "2.3.0", minimum: "2.0"},
		{name: "equal", client: "2.3.0", minimum: "2.3.0"},
		{name: "older client", client: "2.3.0", minimum: "2.4.1", wantErr: true},
		{name: "no requirement", client: "2.3.0"},
		{name: "unparsable client", client: "dev", minimum: "9.0"},
		{name: "unparsable minimum", client: "1.0", minimum: "latest"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(Config{BaseURL: "http://localhost/", ClientVersion: tt.client}, http.DefaultClient)
			require.NoError(t, err)
			err = c.CheckClientVersion(&model.SubscriptionStatus{MinClientVersion: tt.minimum})
			if tt.wantErr {
				assert.Equal(t, errutils.KindClientVersion, errutils.KindOf(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestCall_TransportFailureIsUnreachable(t *testing.T) {
	f := newFixture(t, nil)
	f.register(t)
	f.server.Close()

	_, err := f.conn.Call(context.Background(), http.MethodGet, "status", nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errutils.ErrCanNotReachConnectServer)
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.CallsTotal.WithLabelValues("status", "unreachable")), 0)
}
