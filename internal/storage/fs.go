package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/starford/mindforge/internal/apperr"
	"github.com/starford/mindforge/internal/models"
)

// DefaultLockTTL is how old a lock marker must be before it is treated as stale.
const DefaultLockTTL = 30 * time.Second

// FS implements Provider backed by the local file system.
type FS struct {
	root    string // absolute path to the store directory
	owner   string
	lockTTL time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// FSOption configures an FS.
type FSOption func(*FS)

// WithLockTTL sets the staleness threshold of the store lock.
func WithLockTTL(ttl time.Duration) FSOption {
	return func(f *FS) {
		if ttl > 0 {
			f.lockTTL = ttl
		}
	}
}

// WithLogger sets the logger used for lock and write diagnostics.
func WithLogger(l *slog.Logger) FSOption {
	return func(f *FS) {
		if l != nil {
			f.logger = l
		}
	}
}

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string, opts ...FSOption) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	f := &FS{
		root:    abs,
		owner:   uuid.NewString(),
		lockTTL: DefaultLockTTL,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Root returns the absolute store root.
func (f *FS) Root() string { return f.root }

// Owner returns the identifier this provider writes into the lock marker.
func (f *FS) Owner() string { return f.owner }

// safePath resolves a relative path against the store root and rejects
// any result that escapes it (directory traversal).
func (f *FS) safePath(rel string) (string, error) {
	if rel == "" {
		return f.root, nil
	}
	cleaned := filepath.Clean(rel)
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("storage: absolute paths not allowed: %s: %w", rel, apperr.ErrOutsideRoot)
	}
	joined := filepath.Join(f.root, cleaned)
	abs, err := filepath.Abs(joined)
	if err != nil {
		return "", fmt.Errorf("storage: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) && abs != f.root {
		return "", fmt.Errorf("storage: %s: %w", rel, apperr.ErrOutsideRoot)
	}
	return abs, nil
}

// resolve maps a logical document name to its absolute path.
func (f *FS) resolve(name string) (string, error) {
	abs, err := f.safePath(name)
	if err != nil {
		return "", err
	}
	if !models.IsDocument(name) {
		return "", fmt.Errorf("storage: %q: %w", name, apperr.ErrInvalidName)
	}
	return abs, nil
}

// Read returns the content of a document. A symlink in the document's
// place is reported as absent and never followed.
func (f *FS) Read(name string) ([]byte, bool, error) {
	abs, err := f.resolve(name)
	if err != nil {
		return nil, false, err
	}
	return readRegular(abs)
}

func readRegular(abs string) ([]byte, bool, error) {
	info, err := os.Lstat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("storage: stat %s: %w", filepath.Base(abs), err)
	}
	if !info.Mode().IsRegular() {
		return nil, false, nil
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("storage: read %s: %w", filepath.Base(abs), err)
	}
	return data, true, nil
}

// Stat returns the modification fingerprint of a document.
func (f *FS) Stat(name string) (Stamp, error) {
	abs, err := f.resolve(name)
	if err != nil {
		return Stamp{}, err
	}
	info, err := os.Lstat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Stamp{}, nil
		}
		return Stamp{}, fmt.Errorf("storage: stat %s: %w", name, err)
	}
	if !info.Mode().IsRegular() {
		return Stamp{}, nil
	}
	return Stamp{ModTime: info.ModTime().UnixNano(), Size: info.Size()}, nil
}

// Update takes the store lock, reads the document, applies fn, and
// atomically replaces the document with the result. When the lock is
// held elsewhere the mutation still runs and the outcome is marked as
// contended. The lock is released on every path.
func (f *FS) Update(name string, fn MutateFunc) (Outcome, error) {
	abs, err := f.resolve(name)
	if err != nil {
		return Outcome{}, err
	}

	var out Outcome
	guard, lockErr := f.Acquire()
	if lockErr != nil {
		out.Contended = true
		f.logger.Warn("storage: writing without lock",
			slog.String("path", name),
			slog.String("error", lockErr.Error()))
	} else {
		defer func() {
			if relErr := guard.Release(); relErr != nil {
				f.logger.Warn("storage: release lock failed", slog.String("error", relErr.Error()))
			}
		}()
	}

	current, exists, err := readRegular(abs)
	if err != nil {
		return out, err
	}
	next, err := fn(current, exists)
	if err != nil {
		return out, err
	}
	if err := writeAtomic(abs, next); err != nil {
		return out, err
	}
	return out, nil
}

// Write atomically replaces a document.
func (f *FS) Write(name string, content []byte) (Outcome, error) {
	return f.Update(name, func([]byte, bool) ([]byte, error) {
		return content, nil
	})
}

// Append reads the current content, concatenates, and atomically replaces.
func (f *FS) Append(name string, content []byte) (Outcome, error) {
	return f.Update(name, func(current []byte, _ bool) ([]byte, error) {
		next := make([]byte, 0, len(current)+len(content))
		next = append(next, current...)
		return append(next, content...), nil
	})
}

// writeAtomic writes content: tmp file → fsync → rename.
func writeAtomic(abs string, content []byte) error {
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(abs)+".tmp-*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	// Clean up on any failure path.
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		return fmt.Errorf("storage: chmod temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return nil
}
