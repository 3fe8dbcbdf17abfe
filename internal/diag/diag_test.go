package diag

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func readEntries(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	var out []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var m map[string]any
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("bad line %q: %v", sc.Text(), err)
		}
		out = append(out, m)
	}
	return out
}

func TestRecord_WritesJSONLines(t *testing.T) {
	root := t.TempDir()
	l := Open(root, 0)
	l.Record(CategoryTool, "handler failed", slog.String("tool", "memory_status"))
	l.Record(CategoryLock, "lock contended")

	entries := readEntries(t, l.Path())
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0]["category"] != CategoryTool || entries[0]["msg"] != "handler failed" || entries[0]["tool"] != "memory_status" {
		t.Errorf("entry = %v", entries[0])
	}
	if entries[1]["level"] != "ERROR" {
		t.Errorf("level = %v", entries[1]["level"])
	}
}

func TestRecord_TruncatesWhenFull(t *testing.T) {
	root := t.TempDir()
	l := Open(root, 400)
	for i := 0; i < 20; i++ {
		l.Record(CategoryTool, strings.Repeat("x", 50))
	}
	info, err := os.Stat(l.Path())
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() > 400 {
		t.Errorf("log grew to %d bytes, cap 400", info.Size())
	}
	if len(readEntries(t, l.Path())) == 0 {
		t.Error("log is empty after truncation")
	}
}

func TestRecord_SymlinkNotFollowed(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(t.TempDir(), "elsewhere.log")
	if err := os.WriteFile(target, []byte("keep\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	l := Open(root, 0)
	if err := os.Symlink(target, l.Path()); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	l.Record(CategoryTool, "should be dropped")

	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "keep\n" {
		t.Errorf("symlink target written: %q", data)
	}
}

func TestRecord_NilLog(t *testing.T) {
	var l *Log
	l.Record(CategoryPanic, "ignored")
	if l.Path() != "" {
		t.Error("nil log has a path")
	}
}
