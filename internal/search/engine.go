// Package search ranks memory document content with TF-IDF over whole
// files and line windows, merged with a plain substring scan.
package search

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/starford/mindforge/internal/models"
	"github.com/starford/mindforge/internal/storage"
)

// Result sources.
const (
	SourceSemantic = "semantic"
	SourceKeyword  = "keyword"
)

const (
	// DefaultMinScore drops weak semantic matches.
	DefaultMinScore = 0.01
	// DefaultMaxFileBytes skips documents too large to index.
	DefaultMaxFileBytes = 10 << 20

	wholeExcerptBytes = 600
	snippetBytes      = 500
)

// Options configure an Engine. Zero fields take defaults.
type Options struct {
	Chunk        ChunkOptions
	MinScore     float64
	MaxFileBytes int64
}

// Result is one merged search hit.
type Result struct {
	File      string  `json:"file"`
	StartLine int     `json:"line_start"`
	EndLine   int     `json:"line_end"`
	Score     float64 `json:"score"`
	Source    string  `json:"source"`
	Snippet   string  `json:"snippet"`
}

// Fingerprint is the stamp of every tracked document, in document order.
type Fingerprint []storage.Stamp

// Engine owns the cached index of one store. The cache is rebuilt from
// scratch whenever the fingerprint differs from the one it was built at.
type Engine struct {
	store  storage.Provider
	opts   Options
	logger *slog.Logger

	mu     sync.Mutex
	index  *Index
	fp     Fingerprint
	builds int
}

// NewEngine returns an Engine over store.
func NewEngine(store storage.Provider, opts Options, logger *slog.Logger) *Engine {
	if opts.Chunk.Lines <= 0 {
		opts.Chunk = DefaultChunkOptions
	}
	if opts.MinScore <= 0 {
		opts.MinScore = DefaultMinScore
	}
	if opts.MaxFileBytes <= 0 {
		opts.MaxFileBytes = DefaultMaxFileBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, opts: opts, logger: logger}
}

// Builds returns how many times the index has been built.
func (e *Engine) Builds() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.builds
}

// Index returns the current index, rebuilding it when any tracked
// document changed since the last build.
func (e *Engine) Index() (*Index, error) {
	fp, err := e.fingerprint()
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.index != nil && slices.Equal(fp, e.fp) {
		return e.index, nil
	}

	e.index = Build(e.sources(fp))
	e.fp = fp
	e.builds++
	e.logger.Debug("search: index built",
		slog.Int("documents", e.index.Len()),
		slog.Int("builds", e.builds))
	return e.index, nil
}

func (e *Engine) fingerprint() (Fingerprint, error) {
	fp := make(Fingerprint, len(models.Documents))
	for i, name := range models.Documents {
		st, err := e.store.Stat(name)
		if err != nil {
			return nil, fmt.Errorf("search: stat %s: %w", name, err)
		}
		fp[i] = st
	}
	return fp, nil
}

func (e *Engine) sources(fp Fingerprint) []Source {
	var out []Source
	for i, name := range models.Documents {
		if fp[i].Size > e.opts.MaxFileBytes {
			e.logger.Warn("search: document too large to index",
				slog.String("document", name),
				slog.Int64("size", fp[i].Size))
			continue
		}
		data, ok, err := e.store.Read(name)
		if err != nil {
			e.logger.Warn("search: read failed", slog.String("document", name), slog.String("error", err.Error()))
			continue
		}
		if !ok {
			continue
		}
		content := string(data)
		out = append(out, Source{
			Doc: Doc{
				ID:        name,
				File:      name,
				StartLine: 1,
				EndLine:   strings.Count(content, "\n") + 1,
				Excerpt:   truncate(content, wholeExcerptBytes),
			},
			Text: content,
		})
		out = append(out, Chunk(name, content, e.opts.Chunk)...)
	}
	return out
}

// Hybrid runs a semantic search for twice limit, then a case-insensitive
// substring scan with one line of context. Keyword hits on a line a
// semantic hit already covers are skipped. At most limit results.
func (e *Engine) Hybrid(query string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 10
	}
	ix, err := e.Index()
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var merged []Result
	for _, h := range ix.Search(query, limit*2, e.opts.MinScore) {
		key := fmt.Sprintf("%s:%d", h.File, h.StartLine)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		merged = append(merged, Result{
			File:      h.File,
			StartLine: h.StartLine,
			EndLine:   h.EndLine,
			Score:     h.Score,
			Source:    SourceSemantic,
			Snippet:   truncate(h.Excerpt, snippetBytes),
		})
	}

	keywords, err := e.keyword(query)
	if err != nil {
		return nil, err
	}
	for _, k := range keywords {
		key := fmt.Sprintf("%s:%d", k.File, k.StartLine)
		if _, dup := seen[key]; dup || covered(merged, k) {
			continue
		}
		seen[key] = struct{}{}
		merged = append(merged, k)
	}

	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}

// keyword reads every document fresh and reports each matching line.
func (e *Engine) keyword(query string) ([]Result, error) {
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return nil, nil
	}
	var out []Result
	for _, name := range models.Documents {
		data, ok, err := e.store.Read(name)
		if err != nil {
			return nil, fmt.Errorf("search: read %s: %w", name, err)
		}
		if !ok {
			continue
		}
		lines := strings.Split(string(data), "\n")
		for i, line := range lines {
			if !strings.Contains(strings.ToLower(line), needle) {
				continue
			}
			from, to := max(i-1, 0), min(i+2, len(lines))
			out = append(out, Result{
				File:      name,
				StartLine: i + 1,
				EndLine:   i + 1,
				Source:    SourceKeyword,
				Snippet:   truncate(strings.Join(lines[from:to], "\n"), snippetBytes),
			})
		}
	}
	return out, nil
}

func covered(merged []Result, k Result) bool {
	for _, m := range merged {
		if m.Source == SourceSemantic && m.File == k.File && k.StartLine >= m.StartLine && k.StartLine <= m.EndLine {
			return true
		}
	}
	return false
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// Format renders results the way the search tool reports them.
func Format(query string, results []Result) string {
	if len(results) == 0 {
		return fmt.Sprintf("No results for \"%s\" in .mind/ files.", query)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Search results for \"%s\" (%d matches):\n", query, len(results))
	for _, r := range results {
		b.WriteString("\n")
		if r.Source == SourceSemantic {
			fmt.Fprintf(&b, "--- %s:%d-%d [semantic %.3f] ---\n", r.File, r.StartLine, r.EndLine, r.Score)
		} else {
			fmt.Fprintf(&b, "--- %s:%d [keyword] ---\n", r.File, r.StartLine)
		}
		b.WriteString(r.Snippet)
		b.WriteString("\n")
	}
	return b.String()
}
