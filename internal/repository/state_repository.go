package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/raffihsieh/update-experimental/internal/domain"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const (
	// StateSchemaVersion is bumped whenever RunState changes incompatibly
	StateSchemaVersion   = "1.0.0"
	StateFilePermissions = 0600
	StateDirPermissions  = 0700
	// LockTimeout bounds the wait for a session file lock
	LockTimeout = 30 * time.Second
	// LockRetryInterval is the polling interval of flock's TryLockContext
	LockRetryInterval = 100 * time.Millisecond
	// DefaultStateDir is where run state is kept when no directory is configured
	DefaultStateDir = ".experimental-state"

	latestFile = "latest.txt"
)

var (
	// ErrStateNotFound is returned for sessions without a state file
	ErrStateNotFound = errors.New("state not found")
	// ErrStateCorrupted is returned when a state file fails its schema or checksum check
	ErrStateCorrupted = errors.New("state file corrupted")
)

// StateRepository persists run state so a failed run can be rolled back later
type StateRepository interface {
	Save(ctx context.Context, state *domain.RunState) error
	Load(ctx context.Context, sessionID string) (*domain.RunState, error)
	LoadLatest(ctx context.Context) (*domain.RunState, error)
	Delete(ctx context.Context, sessionID string) error
	Exists(ctx context.Context, sessionID string) (bool, error)
}

// sessionFile is the on-disk envelope of a run state
type sessionFile struct {
	Schema   string           `json:"schema_version"`
	Checksum string           `json:"checksum"`
	SavedAt  time.Time        `json:"saved_at"`
	Session  *domain.RunState `json:"session"`
}

// JSONStateRepository keeps one JSON file per session under stateDir and
// records the most recently saved session in latest.txt.
type JSONStateRepository struct {
	fs       afero.Fs
	stateDir string
	lockDir  string
	logger   *zap.Logger
}

// StateOption customizes a JSONStateRepository
type StateOption func(*JSONStateRepository)

// WithLockDir keeps lock files in dir. flock works on the OS filesystem, so a
// repository over an in-memory fs needs a real directory for its locks.
func WithLockDir(dir string) StateOption {
	return func(r *JSONStateRepository) {
		r.lockDir = dir
	}
}

// NewJSONStateRepository creates a state repository rooted at stateDir on fs
func NewJSONStateRepository(fs afero.Fs, stateDir string, logger *zap.Logger, opts ...StateOption) StateRepository {
	if stateDir == "" {
		stateDir = DefaultStateDir
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &JSONStateRepository{
		fs:       fs,
		stateDir: stateDir,
		lockDir:  stateDir,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Save writes the session atomically and marks it as the latest one
func (r *JSONStateRepository) Save(ctx context.Context, state *domain.RunState) error {
	if state == nil || state.SessionID == "" {
		return fmt.Errorf("cannot save state without a session id")
	}
	if err := r.fs.MkdirAll(r.stateDir, StateDirPermissions); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	return r.withSessionLock(ctx, state.SessionID, true, func() error {
		checksum, err := checksumOf(state)
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(sessionFile{
			Schema:   StateSchemaVersion,
			Checksum: checksum,
			SavedAt:  time.Now().UTC(),
			Session:  state,
		}, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal state: %w", err)
		}
		if err := r.writeAtomic(r.sessionPath(state.SessionID), data); err != nil {
			return err
		}
		if err := r.writeAtomic(r.latestPath(), []byte(state.SessionID)); err != nil {
			return fmt.Errorf("failed to record latest session: %w", err)
		}
		r.logger.Debug("state saved",
			zap.String("session_id", state.SessionID),
			zap.String("status", string(state.Status)))
		return nil
	})
}

// Load reads a session and verifies its schema version and checksum
func (r *JSONStateRepository) Load(ctx context.Context, sessionID string) (*domain.RunState, error) {
	var state *domain.RunState
	err := r.withSessionLock(ctx, sessionID, false, func() error {
		data, err := afero.ReadFile(r.fs, r.sessionPath(sessionID))
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w for session %s", ErrStateNotFound, sessionID)
		}
		if err != nil {
			return fmt.Errorf("failed to read state file: %w", err)
		}
		var file sessionFile
		if err := json.Unmarshal(data, &file); err != nil {
			return fmt.Errorf("%w: %w", ErrStateCorrupted, err)
		}
		if file.Schema != StateSchemaVersion {
			return fmt.Errorf("%w: schema version %q, expected %s", ErrStateCorrupted, file.Schema, StateSchemaVersion)
		}
		if file.Session == nil {
			return fmt.Errorf("%w: no session data", ErrStateCorrupted)
		}
		checksum, err := checksumOf(file.Session)
		if err != nil {
			return err
		}
		if checksum != file.Checksum {
			return fmt.Errorf("%w: checksum mismatch for session %s", ErrStateCorrupted, sessionID)
		}
		state = file.Session
		return nil
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

// LoadLatest loads the session recorded by the most recent Save
func (r *JSONStateRepository) LoadLatest(ctx context.Context) (*domain.RunState, error) {
	data, err := afero.ReadFile(r.fs, r.latestPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: no session has been saved", ErrStateNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read latest session: %w", err)
	}
	sessionID := strings.TrimSpace(string(data))
	if sessionID == "" {
		return nil, fmt.Errorf("%w: empty latest session pointer", ErrStateCorrupted)
	}
	return r.Load(ctx, sessionID)
}

// Delete removes a session and clears the latest pointer when it names that session
func (r *JSONStateRepository) Delete(ctx context.Context, sessionID string) error {
	err := r.withSessionLock(ctx, sessionID, true, func() error {
		if err := r.fs.Remove(r.sessionPath(sessionID)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to delete state file: %w", err)
		}
		latest, err := afero.ReadFile(r.fs, r.latestPath())
		if err == nil && strings.TrimSpace(string(latest)) == sessionID {
			if err := r.fs.Remove(r.latestPath()); err != nil {
				r.logger.Warn("failed to clear latest session", zap.Error(err))
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := os.Remove(r.lockPath(sessionID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		r.logger.Warn("failed to remove state lock file", zap.Error(err))
	}
	return nil
}

// Exists reports whether a state file exists for the session
func (r *JSONStateRepository) Exists(_ context.Context, sessionID string) (bool, error) {
	ok, err := afero.Exists(r.fs, r.sessionPath(sessionID))
	if err != nil {
		return false, fmt.Errorf("failed to check state file: %w", err)
	}
	return ok, nil
}

// withSessionLock runs fn while holding the session's file lock, shared for readers
func (r *JSONStateRepository) withSessionLock(ctx context.Context, sessionID string, exclusive bool, fn func() error) error {
	if err := os.MkdirAll(r.lockDir, StateDirPermissions); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	lock := flock.New(r.lockPath(sessionID))
	lockCtx, cancel := context.WithTimeout(ctx, LockTimeout)
	defer cancel()
	var (
		locked bool
		err    error
	)
	if exclusive {
		locked, err = lock.TryLockContext(lockCtx, LockRetryInterval)
	} else {
		locked, err = lock.TryRLockContext(lockCtx, LockRetryInterval)
	}
	if err != nil {
		return fmt.Errorf("failed to lock session %s: %w", sessionID, err)
	}
	if !locked {
		return fmt.Errorf("could not lock session %s within %s", sessionID, LockTimeout)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			r.logger.Warn("failed to unlock state file", zap.Error(err))
		}
	}()
	return fn()
}

// writeAtomic writes through a temp file and a rename
func (r *JSONStateRepository) writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := afero.WriteFile(r.fs, tmp, data, StateFilePermissions); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := r.fs.Rename(tmp, path); err != nil {
		if removeErr := r.fs.Remove(tmp); removeErr != nil {
			r.logger.Warn("failed to remove temp file", zap.String("path", tmp), zap.Error(removeErr))
		}
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

func (r *JSONStateRepository) sessionPath(sessionID string) string {
	return filepath.Join(r.stateDir, "state-"+sessionID+".json")
}

func (r *JSONStateRepository) lockPath(sessionID string) string {
	return filepath.Join(r.lockDir, ".state-"+sessionID+".lock")
}

func (r *JSONStateRepository) latestPath() string {
	return filepath.Join(r.stateDir, latestFile)
}

func checksumOf(state *domain.RunState) (string, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("failed to marshal state for checksum: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
