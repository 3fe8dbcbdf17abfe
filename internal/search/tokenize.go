package search

import (
	"strings"
	"unicode"
)

var stopWords = func() map[string]struct{} {
	words := strings.Fields(`
		a an the and or but in on at to for of with by from is are was were be been
		being have has had do does did will would could should may might shall can
		need must it its this that these those i me my we our you your he she they
		them their what which who when where why how all each every both few more
		most other some such no not only same so than too very just about above
		after again also any because before between down during here if into like
		new now then there through under up out over`)
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}()

// Longest first. The order is significant: the first match wins.
var suffixes = []string{
	"ational", "tional", "ization", "fulness", "ousness", "iveness",
	"ement", "ment", "ness", "ance", "ence", "able", "ible",
	"ting", "ing", "ied", "ies", "ous", "ive", "ful", "ism",
	"ist", "ity", "ent", "ant", "ion", "ate", "ize",
	"ly", "er", "ed", "es", "al",
}

const minStem = 4

// Stem strips one common English suffix. It is a heuristic: distinct
// words may share a stem and the output is not a dictionary root.
func Stem(word string) string {
	if len(word) < minStem {
		return word
	}
	for _, suf := range suffixes {
		if !strings.HasSuffix(word, suf) || len(word)-len(suf) < minStem {
			continue
		}
		stem := word[:len(word)-len(suf)]
		if n := len(stem); n >= 3 && stem[n-1] == stem[n-2] && !isVowel(stem[n-1]) {
			stem = stem[:n-1]
		}
		return stem
	}
	if strings.HasSuffix(word, "s") && !strings.HasSuffix(word, "ss") && len(word) > 3 {
		return word[:len(word)-1]
	}
	return word
}

func isVowel(c byte) bool {
	switch c {
	case 'a', 'e', 'i', 'o', 'u':
		return true
	}
	return false
}

// Tokenize lowercases text, keeps ASCII letters, digits and hyphens,
// drops short and stop words and stems the rest.
func Tokenize(text string) []string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			return r
		case unicode.IsSpace(r):
			return r
		}
		return ' '
	}, strings.ToLower(text))

	fields := strings.Fields(cleaned)
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 2 {
			continue
		}
		if _, stop := stopWords[f]; stop {
			continue
		}
		terms = append(terms, Stem(f))
	}
	return terms
}
