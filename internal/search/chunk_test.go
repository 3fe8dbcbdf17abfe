package search

import (
	"fmt"
	"strings"
	"testing"
)

func numberedLines(n int) string {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = fmt.Sprintf("line %02d with enough text to index", i+1)
	}
	return strings.Join(lines, "\n")
}

func TestChunk_OverlapIsExact(t *testing.T) {
	chunks := Chunk("PROGRESS.md", numberedLines(50), DefaultChunkOptions)
	if len(chunks) < 2 {
		t.Fatalf("chunks = %d", len(chunks))
	}
	if chunks[0].StartLine != 1 || chunks[0].EndLine != 15 {
		t.Errorf("first chunk = %d-%d", chunks[0].StartLine, chunks[0].EndLine)
	}
	for i := 1; i < len(chunks); i++ {
		prev, cur := chunks[i-1], chunks[i]
		if overlap := prev.EndLine - cur.StartLine + 1; overlap != 3 {
			t.Errorf("chunks %d-%d and %d-%d overlap by %d lines",
				prev.StartLine, prev.EndLine, cur.StartLine, cur.EndLine, overlap)
		}
	}
	if last := chunks[len(chunks)-1]; last.EndLine != 50 {
		t.Errorf("last chunk ends at %d", last.EndLine)
	}
	if chunks[1].ID != "PROGRESS.md:13-27" {
		t.Errorf("ID = %q", chunks[1].ID)
	}
}

func TestChunk_NoTailWindowAfterEOF(t *testing.T) {
	chunks := Chunk("PROGRESS.md", numberedLines(50), DefaultChunkOptions)
	var ids []string
	for _, c := range chunks {
		ids = append(ids, c.ID)
	}
	want := []string{"PROGRESS.md:1-15", "PROGRESS.md:13-27", "PROGRESS.md:25-39", "PROGRESS.md:37-50"}
	if strings.Join(ids, ",") != strings.Join(want, ",") {
		t.Errorf("ids = %v, want %v", ids, want)
	}
}

func TestChunk_DropsShortWindows(t *testing.T) {
	content := "# T\n\n\n\n\n\n\n\n\n\n\n\n\n\n\n" + strings.Repeat("\n", 20) + "a long enough line of text here"
	for _, c := range Chunk("X.md", content, DefaultChunkOptions) {
		if len(strings.TrimSpace(c.Text)) < 20 {
			t.Errorf("short chunk kept: %q", c.Text)
		}
	}
}

func TestChunk_Empty(t *testing.T) {
	if got := Chunk("X.md", "  \n\n", DefaultChunkOptions); got != nil {
		t.Errorf("got %+v", got)
	}
}
