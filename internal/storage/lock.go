package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/starford/mindforge/internal/apperr"
	"github.com/starford/mindforge/internal/models"
)

type lockRecord struct {
	Owner    string    `json:"owner"`
	PID      int       `json:"pid"`
	Acquired time.Time `json:"acquired"`
}

// Lock is a held store-wide advisory lock. It must be released with
// Release; releasing more than once is a no-op.
type Lock struct {
	path  string
	owner string
	once  sync.Once
	err   error
}

// Acquire takes the store-wide lock marker. A marker older than the lock
// TTL is removed first. It returns apperr.ErrLockContended when a live
// marker belongs to someone else.
func (f *FS) Acquire() (*Lock, error) {
	path := filepath.Join(f.root, models.LockFile)

	if info, err := os.Lstat(path); err == nil && f.now().Sub(info.ModTime()) > f.lockTTL {
		if rmErr := os.Remove(path); rmErr == nil {
			f.logger.Info("storage: removed stale lock",
				slog.String("path", path),
				slog.Duration("age", f.now().Sub(info.ModTime())))
		}
	}

	fh, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, apperr.ErrLockContended
		}
		return nil, fmt.Errorf("storage: create lock: %w", err)
	}

	rec := lockRecord{Owner: f.owner, PID: os.Getpid(), Acquired: f.now().UTC()}
	encErr := json.NewEncoder(fh).Encode(rec)
	closeErr := fh.Close()
	if encErr != nil || closeErr != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("storage: write lock: %w", errors.Join(encErr, closeErr))
	}
	return &Lock{path: path, owner: f.owner}, nil
}

// Release removes the lock marker if it still carries this lock's owner.
// A marker that was taken over after being declared stale is left alone.
func (l *Lock) Release() error {
	l.once.Do(func() {
		data, err := os.ReadFile(l.path)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				l.err = fmt.Errorf("storage: read lock: %w", err)
			}
			return
		}
		var rec lockRecord
		if json.Unmarshal(data, &rec) == nil && rec.Owner != l.owner {
			return
		}
		if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			l.err = fmt.Errorf("storage: remove lock: %w", err)
		}
	})
	return l.err
}
