package identity

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/glorpus-work/pkgconnect/internal/logger"
	"github.com/glorpus-work/pkgconnect/pkg/errutils"
	"github.com/glorpus-work/pkgconnect/pkg/fsutil"
)

// FileName is the default name of the identity file.
const FileName = "instance.clid"

// Store owns the current logical identity and its persisted copy.
// It replaces process-wide identity state: each client holds its own Store.
type Store struct {
	fs      afero.Fs
	path    string
	encoded bool

	mu      sync.RWMutex
	current *LogicalID
	loaded  bool
}

// NewStore creates a store backed by the file at path. When encoded is set, saved files are base64-encoded.
func NewStore(fsys afero.Fs, path string, encoded bool) *Store {
	return &Store{fs: fsys, path: path, encoded: encoded}
}

// Path returns the identity file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the identity file, replacing the in-memory identity.
// It returns errutils.ErrNotRegistered when no file exists.
func (s *Store) Load() (LogicalID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.loaded = true
	s.current = nil

	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return LogicalID{}, errutils.ErrNotRegistered
		}
		return LogicalID{}, errutils.Wrapf(err, "reading identity file %s", s.path)
	}

	id, err := ParseLogicalID(data)
	if err != nil {
		return LogicalID{}, errutils.Wrapf(err, "parsing identity file %s", s.path)
	}
	s.current = &id
	logger.Debug("Loaded instance identity", logger.Fields{"client_id": id.String(), "type": id.Type})
	return id, nil
}

// Current returns the in-memory identity, loading the file on first use.
func (s *Store) Current() (LogicalID, bool) {
	s.mu.RLock()
	if s.loaded {
		defer s.mu.RUnlock()
		if s.current == nil {
			return LogicalID{}, false
		}
		return *s.current, true
	}
	s.mu.RUnlock()

	id, err := s.Load()
	if err != nil {
		if !errors.Is(err, errutils.ErrNotRegistered) {
			logger.Warn("Ignoring unreadable identity file", logger.Fields{"path": s.path, "error": err.Error()})
		}
		return LogicalID{}, false
	}
	return id, true
}

// Save validates id, writes it to disk and makes it the current identity.
func (s *Store) Save(id LogicalID) error {
	if id.Type == "" {
		id.Type = TypeProd
	}
	if err := id.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := fsutil.WriteFileAtomic(s.fs, s.path, id.Marshal(s.encoded), fsutil.FileModeSecure); err != nil {
		return errutils.Wrapf(err, "writing identity file %s", s.path)
	}

	s.current = &id
	s.loaded = true
	logger.Info("Instance identity saved", logger.Fields{"client_id": id.String(), "path": s.path})
	return nil
}

// Reset forgets the in-memory identity. The next Current call reloads it from disk.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
	s.loaded = false
}

// Remove deletes the identity file and forgets the in-memory identity.
func (s *Store) Remove() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
	s.loaded = true
	if err := s.fs.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errutils.Wrapf(err, "removing identity file %s", s.path)
	}
	return nil
}

// RegisterLocal creates and saves a locally generated identity without contacting the server.
// Only dev instances may register locally.
func (s *Store) RegisterLocal(description string, instanceType InstanceType) (LogicalID, error) {
	if instanceType == "" {
		instanceType = TypeDev
	}
	if instanceType != TypeDev {
		return LogicalID{}, fmt.Errorf("%w: local registration is only allowed for %s instances, got %s",
			errutils.ErrInvalidIdentity, TypeDev, instanceType)
	}

	id := LogicalID{
		ID1:         "local-" + uuid.NewString(),
		ID2:         strings.ReplaceAll(uuid.NewString(), "-", ""),
		Description: description,
		Type:        instanceType,
	}
	if err := s.Save(id); err != nil {
		return LogicalID{}, err
	}
	return id, nil
}
