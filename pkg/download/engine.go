// Package download runs package downloads on a bounded worker pool and hands finished
// bundles to the local update service.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"github.com/glorpus-work/pkgconnect/internal/logger"
	"github.com/glorpus-work/pkgconnect/pkg/auth"
	"github.com/glorpus-work/pkgconnect/pkg/errutils"
	"github.com/glorpus-work/pkgconnect/pkg/fsutil"
	pkghttp "github.com/glorpus-work/pkgconnect/pkg/http"
	"github.com/glorpus-work/pkgconnect/pkg/metrics"
	"github.com/glorpus-work/pkgconnect/pkg/model"
	"github.com/glorpus-work/pkgconnect/pkg/pool"
	"github.com/glorpus-work/pkgconnect/pkg/update"
)

// Download outcomes recorded in metrics.
const (
	outcomeSuccess     = "success"
	outcomeNotFound    = "not_found"
	outcomeServerError = "server_error"
	outcomeTimeout     = "timeout"
	outcomeSecurity    = "security"
)

// Engine implements Manager.
type Engine struct {
	fs       afero.Fs
	dir      string
	client   pkghttp.Doer
	resolver URLResolver
	updates  update.Service
	pool     *pool.Pool
	metrics  *metrics.Metrics
	auth     auth.Authenticator

	// beforeEnqueue runs between publishing a unit and handing its task to the pool.
	beforeEnqueue func(*DownloadingPackage)

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	units map[string]*DownloadingPackage
}

var _ Manager = (*Engine)(nil)

// Option configures an Engine.
type Option func(*Engine)

// WithPool replaces the default worker pool.
func WithPool(p *pool.Pool) Option {
	return func(e *Engine) { e.pool = p }
}

// WithMetrics records download metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithAuthenticator signs download requests aimed at the connect server, usually with
// the connector's authenticator. Packages hosted elsewhere are fetched without it.
func WithAuthenticator(a auth.Authenticator) Option {
	return func(e *Engine) { e.auth = a }
}

// NewEngine creates an engine that writes packages to dir using client, which should be
// a download client (pkghttp.NewDownloadClient) rather than the API client.
func NewEngine(fsys afero.Fs, dir string, client pkghttp.Doer, resolver URLResolver, updates update.Service, opts ...Option) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		fs:       fsys,
		dir:      dir,
		client:   client,
		resolver: resolver,
		updates:  updates,
		ctx:      ctx,
		cancel:   cancel,
		units:    make(map[string]*DownloadingPackage),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.pool == nil {
		e.pool = pool.New(pool.Options{})
	}
	return e
}

// Close aborts running downloads. Downloads submitted afterwards fail immediately.
func (e *Engine) Close() {
	e.cancel()
	e.pool.Close()
}

// Wait blocks until the pool workers have exited. Call Close first when no further
// downloads may be submitted.
func (e *Engine) Wait() {
	e.pool.Wait()
}

func (e *Engine) ListDownloadingPackages() []*DownloadingPackage {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*DownloadingPackage, 0, len(e.units))
	for _, u := range e.units {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

func (e *Engine) GetDownloadingPackage(id string) *DownloadingPackage {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.units[id]
}

func (e *Engine) RemoveDownloadingPackage(id string) bool {
	e.mu.Lock()
	u, ok := e.units[id]
	delete(e.units, id)
	e.mu.Unlock()
	if !ok {
		return false
	}

	if task := u.task.Load(); task != nil && task.Cancel() {
		logger.Debug("Cancelled queued download", logger.Fields{"id": id})
		u.complete()
	}
	return true
}

func (e *Engine) StoreDownloadedBundle(ctx context.Context, desc model.PackageDescriptor) (*DownloadingPackage, error) {
	if desc.ID == "" {
		return nil, fmt.Errorf("%w: package descriptor has no id", errutils.ErrValidation)
	}
	if filepath.Base(desc.ID) != desc.ID {
		return nil, fmt.Errorf("%w: package id %q is not a plain name", errutils.ErrValidation, desc.ID)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	if existing, ok := e.units[desc.ID]; ok {
		e.mu.Unlock()
		logger.Debug("Download already tracked", logger.Fields{"id": desc.ID})
		return existing, nil
	}
	u := newDownloadingPackage(e.fs, desc, filepath.Join(e.dir, desc.ID))
	task := pool.NewTask(func() { e.run(u) })
	u.task.Store(task)
	e.units[desc.ID] = u
	e.mu.Unlock()

	logger.Info("Scheduling package download", logger.Fields{"id": desc.ID, "version": desc.Version})

	if e.beforeEnqueue != nil {
		e.beforeEnqueue(u)
	}
	if err := e.pool.Enqueue(task); err != nil {
		e.abandon(u, err)
	}
	return u, nil
}

// abandon fails a unit whose task the pool refused. A unit removed in the meantime
// has already completed.
func (e *Engine) abandon(u *DownloadingPackage, err error) {
	e.mu.Lock()
	tracked := e.units[u.ID()] == u
	if tracked {
		delete(e.units, u.ID())
	}
	e.mu.Unlock()
	if !tracked {
		return
	}
	u.fail(fmt.Errorf("%w: %s: %w", errutils.ErrDownloadFailed, u.ID(), err), false)
	logger.Warn("Package download rejected", logger.Fields{"id": u.ID(), "error": err.Error()})
	u.complete()
}

func (e *Engine) run(u *DownloadingPackage) {
	e.metrics.DownloadStarted()
	outcome, written := outcomeServerError, int64(0)
	defer func() {
		e.mu.Lock()
		if e.units[u.ID()] == u {
			delete(e.units, u.ID())
		}
		e.mu.Unlock()
		e.metrics.DownloadFinished(outcome, written)
		u.complete()
	}()

	u.setState(StateRemote)
	outcome, written = e.fetch(e.ctx, u)
	if outcome != outcomeSuccess {
		_ = fsutil.RemoveIfExists(e.fs, u.Path())
		logger.Warn("Package download failed", logger.Fields{
			"id": u.ID(), "error": u.LastError(), "server_error": u.ServerError(),
		})
		return
	}

	u.setState(StateDownloaded)
	logger.Info("Package downloaded", logger.Fields{"id": u.ID(), "bytes": written})
	e.register(u)
}

func (e *Engine) fetch(ctx context.Context, u *DownloadingPackage) (string, int64) {
	src, err := e.resolver.ResolveURL(u.desc.URL)
	if err != nil {
		u.fail(errutils.Wrapf(err, "resolving download location of %s", u.ID()), true)
		return outcomeServerError, 0
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.String(), http.NoBody)
	if err != nil {
		u.fail(errutils.Wrap(err, "failed to create request"), true)
		return outcomeServerError, 0
	}
	if e.auth != nil && e.onConnectServer(src) {
		if err := e.auth.Apply(req); err != nil {
			u.fail(fmt.Errorf("%w: %s: %w", errutils.ErrDownloadFailed, u.ID(), err), false)
			return outcomeSecurity, 0
		}
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return e.ioFailure(u, err), 0
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound, http.StatusForbidden, http.StatusUnauthorized:
		u.fail(errutils.NewServerError(errutils.KindNotFound, resp.StatusCode,
			fmt.Sprintf("package %s not found or not accessible at %s", u.ID(), src.Redacted())), false)
		return outcomeNotFound, 0
	default:
		u.fail(errutils.NewServerError(errutils.KindServer, resp.StatusCode,
			fmt.Sprintf("unexpected status %d downloading package %s", resp.StatusCode, u.ID())), true)
		return outcomeServerError, 0
	}

	u.setExpectedSize(resp.ContentLength)
	u.setState(StateDownloading)

	written, err := e.writeBody(u.Path(), resp.Body)
	if err != nil {
		return e.ioFailure(u, err), written
	}
	u.setExpectedSize(written)
	return outcomeSuccess, written
}

// onConnectServer reports whether src lives on the connect server the descriptors came from.
func (e *Engine) onConnectServer(src *url.URL) bool {
	base, err := e.resolver.ResolveURL("")
	if err != nil {
		return false
	}
	return strings.EqualFold(base.Scheme, src.Scheme) && strings.EqualFold(base.Host, src.Host)
}

func (e *Engine) writeBody(path string, body io.Reader) (int64, error) {
	if err := fsutil.EnsureDirMode(e.fs, filepath.Dir(path), fsutil.DirModeSecure); err != nil {
		return 0, errutils.Wrap(err, "could not create download dir")
	}
	f, err := e.fs.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, fsutil.FileModeDefault)
	if err != nil {
		return 0, errutils.Wrap(err, "could not create file")
	}
	n, err := io.Copy(f, body)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = errutils.Wrap(cerr, "could not close file")
	}
	return n, err
}

// ioFailure records a transport failure. Timeouts and aborts carry only a message;
// every other I/O failure is flagged as a server error.
func (e *Engine) ioFailure(u *DownloadingPackage, err error) string {
	wrapped := fmt.Errorf("%w: %s: %w", errutils.ErrDownloadFailed, u.ID(), err)
	if pkghttp.IsTimeout(err) || errors.Is(err, context.Canceled) {
		u.fail(wrapped, false)
		return outcomeTimeout
	}
	u.fail(wrapped, true)
	return outcomeServerError
}

// register hands the bundle to the update service. Failures are logged only: the bytes
// are on disk and a retry would not change the outcome.
func (e *Engine) register(u *DownloadingPackage) {
	if e.updates == nil {
		return
	}
	pkg, err := e.updates.AddPackage(e.ctx, u.Path())
	switch {
	case err == nil:
		logger.Debug("Package registered with update service", logger.Fields{"id": u.ID(), "path": pkg.Path})
	case errors.Is(err, update.ErrAlreadyExists):
		logger.Info("Package already present in local store", logger.Fields{"id": u.ID()})
	default:
		logger.Error("Update service rejected package", logger.Fields{"id": u.ID(), "error": err.Error()})
	}
}
