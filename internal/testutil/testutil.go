// Package testutil provides shared test helpers for setting up stores.
package testutil

import (
	"log/slog"
	"os"
	"testing"

	"github.com/starford/mindforge/internal/storage"
)

// TestStore creates a temporary store root with a storage.FS.
func TestStore(t *testing.T, opts ...storage.FSOption) (string, *storage.FS) {
	t.Helper()
	root := t.TempDir()
	store, err := storage.NewFS(root, append([]storage.FSOption{storage.WithLogger(QuietLogger())}, opts...)...)
	if err != nil {
		t.Fatal(err)
	}
	return root, store
}

// QuietLogger returns a logger that only reports errors.
func QuietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// ReadDoc returns the content of a document, failing the test on error.
func ReadDoc(t *testing.T, store storage.Provider, name string) string {
	t.Helper()
	data, _, err := store.Read(name)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

// WriteDoc replaces a document, failing the test on error.
func WriteDoc(t *testing.T, store storage.Provider, name, content string) {
	t.Helper()
	if _, err := store.Write(name, []byte(content)); err != nil {
		t.Fatal(err)
	}
}
