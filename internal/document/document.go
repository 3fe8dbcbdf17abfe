// Package document parses memory documents into heading-delimited
// sections and writes them back without disturbing what it does not touch.
package document

import "strings"

// Section is a heading and the lines that follow it up to the next heading.
type Section struct {
	Level   int
	Heading string
	Line    string
	Body    []string
}

// Document is an optional preamble followed by ordered sections.
// String(Parse(s)) == s for every input.
type Document struct {
	Preamble []string
	Sections []Section
}

type parseState int

const (
	statePreamble parseState = iota
	stateInSection
)

// Parse splits content in a single forward scan. Heading-looking lines
// inside fenced code blocks are body content.
func Parse(content string) *Document {
	doc := &Document{}
	state := statePreamble
	inFence := false

	for _, line := range strings.Split(content, "\n") {
		if isFence(line) {
			inFence = !inFence
		} else if !inFence {
			if level, text, ok := headingOf(line); ok {
				doc.Sections = append(doc.Sections, Section{Level: level, Heading: text, Line: line})
				state = stateInSection
				continue
			}
		}

		switch state {
		case statePreamble:
			doc.Preamble = append(doc.Preamble, line)
		case stateInSection:
			last := &doc.Sections[len(doc.Sections)-1]
			last.Body = append(last.Body, line)
		}
	}
	return doc
}

// String renders the document back to text.
func (d *Document) String() string {
	lines := make([]string, 0, len(d.Preamble)+len(d.Sections)*4)
	lines = append(lines, d.Preamble...)
	for _, s := range d.Sections {
		lines = append(lines, s.Line)
		lines = append(lines, s.Body...)
	}
	return strings.Join(lines, "\n")
}

// Find returns the index of the first section whose heading equals text,
// ignoring case. level 0 matches any heading level.
func (d *Document) Find(text string, level int) int {
	for i, s := range d.Sections {
		if level != 0 && s.Level != level {
			continue
		}
		if strings.EqualFold(s.Heading, strings.TrimSpace(text)) {
			return i
		}
	}
	return -1
}

// AppendSection adds a section at the end, separated from the previous
// content by a blank line.
func (d *Document) AppendSection(level int, heading string, body []string) {
	d.ensureTrailingBlank()
	d.Sections = append(d.Sections, Section{
		Level:   level,
		Heading: heading,
		Line:    strings.Repeat("#", level) + " " + heading,
		Body:    body,
	})
}

func (d *Document) ensureTrailingBlank() {
	if len(d.Sections) == 0 && strings.TrimSpace(strings.Join(d.Preamble, "\n")) == "" {
		d.Preamble = nil
		return
	}
	tail := &d.Preamble
	if n := len(d.Sections); n > 0 {
		tail = &d.Sections[n-1].Body
	}
	if len(*tail) == 0 || (*tail)[len(*tail)-1] != "" {
		*tail = append(*tail, "")
	}
}

// headingOf recognises ATX headings: one to six '#' followed by a space
// and non-empty text.
func headingOf(line string) (int, string, bool) {
	level := 0
	for level < len(line) && line[level] == '#' {
		level++
	}
	if level == 0 || level > 6 || level >= len(line) || line[level] != ' ' {
		return 0, "", false
	}
	text := strings.TrimSpace(line[level:])
	if text == "" {
		return 0, "", false
	}
	return level, text, true
}

func isFence(line string) bool {
	t := strings.TrimSpace(line)
	return strings.HasPrefix(t, "```") || strings.HasPrefix(t, "~~~")
}

// SingleLine flattens line breaks so a value cannot start a new heading.
func SingleLine(s string) string {
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	return strings.TrimSpace(s)
}

// Normalize collapses runs of three or more newlines to a single blank
// line and ensures exactly one trailing newline.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	newlines := 0
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c == '\n' {
			newlines++
			if newlines > 2 {
				continue
			}
		} else {
			newlines = 0
		}
		b.WriteByte(c)
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}
