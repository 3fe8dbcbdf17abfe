// Package diag keeps a size-capped JSON-lines log of failures inside the
// store root, separate from the operational log on stderr.
package diag

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/starford/mindforge/internal/models"
)

// DefaultMaxBytes caps the log file.
const DefaultMaxBytes = 512 << 10

// Categories used by the server.
const (
	CategoryTool      = "tool"
	CategoryPanic     = "panic"
	CategoryLock      = "lock"
	CategoryTransport = "transport"
)

// Log records diagnostics entries. A nil *Log discards everything.
type Log struct {
	logger *slog.Logger
	w      *cappedWriter
}

// Open returns a Log writing to the diagnostics file under root.
// maxBytes <= 0 selects DefaultMaxBytes.
func Open(root string, maxBytes int64) *Log {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	w := &cappedWriter{path: filepath.Join(root, models.DiagnosticsFile), max: maxBytes}
	return &Log{
		logger: slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})),
		w:      w,
	}
}

// Path returns the log file location.
func (l *Log) Path() string {
	if l == nil {
		return ""
	}
	return l.w.path
}

// Record appends one entry. Failures to write are dropped.
func (l *Log) Record(category, msg string, attrs ...slog.Attr) {
	if l == nil {
		return
	}
	all := make([]slog.Attr, 0, len(attrs)+1)
	all = append(all, slog.String("category", category))
	all = append(all, attrs...)
	l.logger.LogAttrs(context.Background(), slog.LevelError, msg, all...)
}

// cappedWriter appends to a file, starting it afresh when the next write
// would push it past max. A symlink at path disables writing.
type cappedWriter struct {
	path string
	max  int64
	mu   sync.Mutex
}

func (w *cappedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if int64(len(p)) > w.max {
		return len(p), nil
	}

	flag := os.O_WRONLY | os.O_CREATE | os.O_APPEND
	info, err := os.Lstat(w.path)
	switch {
	case err == nil && !info.Mode().IsRegular():
		return len(p), nil
	case err == nil && info.Size()+int64(len(p)) > w.max:
		flag = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	case err != nil && !os.IsNotExist(err):
		return 0, fmt.Errorf("diag: stat: %w", err)
	}

	f, err := os.OpenFile(w.path, flag, fs.FileMode(0o644))
	if err != nil {
		return 0, fmt.Errorf("diag: open: %w", err)
	}
	n, werr := f.Write(p)
	cerr := f.Close()
	if werr != nil {
		return n, fmt.Errorf("diag: write: %w", werr)
	}
	return n, cerr
}

var _ io.Writer = (*cappedWriter)(nil)
