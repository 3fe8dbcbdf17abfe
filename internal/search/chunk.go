package search

import (
	"fmt"
	"strings"
)

// ChunkOptions control how files are split into windows.
type ChunkOptions struct {
	Lines    int
	Overlap  int
	MinChars int
}

// DefaultChunkOptions are 15-line windows overlapping by 3 lines.
var DefaultChunkOptions = ChunkOptions{Lines: 15, Overlap: 3, MinChars: 20}

// Chunk splits content into overlapping line windows. Line numbers are
// 1-based and inclusive. Windows whose trimmed text is shorter than
// MinChars are dropped. The last window is the first one that reaches
// the end of the file: with the defaults a 50-line file yields 1-15,
// 13-27, 25-39 and 37-50, and no separate 49-50 tail window made only of
// lines 37-50 already covers.
func Chunk(file, content string, opts ChunkOptions) []Source {
	if strings.TrimSpace(content) == "" {
		return nil
	}
	size := max(opts.Lines, 1)
	step := size - opts.Overlap
	if step < 1 {
		step = 1
	}

	lines := strings.Split(content, "\n")
	var out []Source
	for i := 0; i < len(lines); i += step {
		end := min(i+size, len(lines))
		text := strings.TrimSpace(strings.Join(lines[i:end], "\n"))
		if len(text) >= opts.MinChars {
			out = append(out, Source{
				Doc: Doc{
					ID:        fmt.Sprintf("%s:%d-%d", file, i+1, end),
					File:      file,
					StartLine: i + 1,
					EndLine:   end,
					Excerpt:   text,
				},
				Text: text,
			})
		}
		if end == len(lines) {
			break
		}
	}
	return out
}
