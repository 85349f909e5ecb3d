package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"
)

const runLockFile = "run.lock"

// ErrRunInProgress is returned when another run holds the workspace lock.
var ErrRunInProgress = errors.New("another update-experimental run is in progress")

// RunLock serializes runs against the same workspace.
type RunLock interface {
	Acquire(ctx context.Context, timeout time.Duration) error
	Release() error
}

type fileRunLock struct {
	dir    string
	lock   *flock.Flock
	logger *zap.Logger
}

// NewRunLock returns a lock backed by <dir>/run.lock on the OS filesystem.
func NewRunLock(dir string, logger *zap.Logger) RunLock {
	if dir == "" {
		dir = DefaultStateDir
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &fileRunLock{
		dir:    dir,
		lock:   flock.New(filepath.Join(dir, runLockFile)),
		logger: logger,
	}
}

func (l *fileRunLock) Acquire(ctx context.Context, timeout time.Duration) error {
	if err := os.MkdirAll(l.dir, StateDirPermissions); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	lockCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	locked, err := l.lock.TryLockContext(lockCtx, LockRetryInterval)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrRunInProgress
		}
		return fmt.Errorf("failed to acquire run lock: %w", err)
	}
	if !locked {
		return ErrRunInProgress
	}
	l.logger.Debug("acquired run lock", zap.String("path", l.lock.Path()))
	return nil
}

func (l *fileRunLock) Release() error {
	if !l.lock.Locked() {
		return nil
	}
	if err := l.lock.Unlock(); err != nil {
		return fmt.Errorf("failed to release run lock: %w", err)
	}
	l.logger.Debug("released run lock", zap.String("path", l.lock.Path()))
	return nil
}
