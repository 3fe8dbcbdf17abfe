package search

import (
	"cmp"
	"math"
	"slices"
)

// Doc is one unit of indexed text: a whole file or a window of its lines.
type Doc struct {
	ID        string
	File      string
	StartLine int
	EndLine   int
	// Excerpt is the text reported when the document matches.
	Excerpt string
}

// Hit is a scored document.
type Hit struct {
	Doc
	Score float64
}

type entry struct {
	doc Doc
	tf  map[string]float64
}

// Index is an immutable TF-IDF index. Build a new one instead of
// changing an existing one.
type Index struct {
	entries []entry
	idf     map[string]float64
}

// Source is the text of one document to index.
type Source struct {
	Doc
	Text string
}

// Build indexes sources. Sources without any terms are skipped.
func Build(sources []Source) *Index {
	ix := &Index{idf: make(map[string]float64)}
	df := make(map[string]int)
	for _, src := range sources {
		terms := Tokenize(src.Text)
		if len(terms) == 0 {
			continue
		}
		counts := make(map[string]int, len(terms))
		for _, t := range terms {
			counts[t]++
		}
		tf := make(map[string]float64, len(counts))
		for t, c := range counts {
			tf[t] = float64(c) / float64(len(terms))
			df[t]++
		}
		ix.entries = append(ix.entries, entry{doc: src.Doc, tf: tf})
	}

	n := float64(len(ix.entries))
	for t, c := range df {
		ix.idf[t] = math.Log(1 + n/float64(c))
	}
	return ix
}

// Len returns the number of indexed documents.
func (ix *Index) Len() int { return len(ix.entries) }

// Search scores every document against query and returns up to limit
// hits scoring at least minScore, best first. Ties keep index order.
func (ix *Index) Search(query string, limit int, minScore float64) []Hit {
	terms := Tokenize(query)
	if len(terms) == 0 || limit <= 0 {
		return nil
	}

	var hits []Hit
	for _, e := range ix.entries {
		score := 0.0
		for _, t := range terms {
			score += e.tf[t] * ix.idf[t]
		}
		if score >= minScore {
			hits = append(hits, Hit{Doc: e.doc, Score: score})
		}
	}
	slices.SortStableFunc(hits, func(a, b Hit) int { return cmp.Compare(b.Score, a.Score) })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}
