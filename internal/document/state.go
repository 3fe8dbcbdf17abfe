package document

import (
	"strings"
	"time"

	"github.com/starford/mindforge/internal/models"
)

// Status document headings, in template order.
const (
	HeadingPhase       = "Current Phase"
	HeadingStatus      = "Current Status"
	HeadingActiveWork  = "Active Work"
	HeadingBlockers    = "Blocked Items"
	HeadingNextAction  = "Next Action"
	HeadingLastUpdated = "Last Updated"
)

// TimestampLayout is the format of the Last Updated section.
const TimestampLayout = "2006-01-02 15:04:05"

const (
	stateTitle   = "# Project State"
	notSet       = "Not set"
	emptyList    = "None"
	stateHeading = 2
)

// Field is a replacement body for a level-2 section.
type Field struct {
	Heading string
	Body    string
}

// StateFields returns the fields a status update supplies, always ending
// with the Last Updated timestamp.
func StateFields(u models.StateUpdate, now time.Time) []Field {
	var fields []Field
	if u.Phase != nil {
		fields = append(fields, Field{HeadingPhase, scalar(*u.Phase)})
	}
	if u.Status != nil {
		fields = append(fields, Field{HeadingStatus, scalar(*u.Status)})
	}
	if u.ActiveWork != nil {
		fields = append(fields, Field{HeadingActiveWork, list(*u.ActiveWork)})
	}
	if u.Blockers != nil {
		fields = append(fields, Field{HeadingBlockers, list(*u.Blockers)})
	}
	if u.NextAction != nil {
		fields = append(fields, Field{HeadingNextAction, scalar(*u.NextAction)})
	}
	return append(fields, Field{HeadingLastUpdated, now.UTC().Format(TimestampLayout)})
}

// MergeState applies a status update to existing content. Sections the
// update does not name, including unknown ones, keep their text and
// position. An empty document is synthesized from the template.
func MergeState(existing string, u models.StateUpdate, now time.Time) string {
	fields := StateFields(u, now)
	if strings.TrimSpace(existing) == "" {
		return stateTemplate(fields)
	}
	doc := Parse(existing)
	doc.Upsert(fields)
	return Normalize(doc.String())
}

// Upsert replaces the body of the first level-2 section matching each
// field and appends sections for fields that match nothing. A replaced
// body keeps the blank lines that trailed the old one.
func (d *Document) Upsert(fields []Field) {
	var missing []Field
	for _, f := range fields {
		i := d.Find(f.Heading, stateHeading)
		if i < 0 {
			missing = append(missing, f)
			continue
		}
		d.Sections[i].Body = replaceBody(d.Sections[i].Body, f.Body)
	}
	for _, f := range missing {
		d.AppendSection(stateHeading, f.Heading, bodyLines(f.Body))
	}
}

func stateTemplate(supplied []Field) string {
	values := map[string]string{
		HeadingPhase:      notSet,
		HeadingStatus:     notSet,
		HeadingActiveWork: emptyList,
		HeadingBlockers:   emptyList,
		HeadingNextAction: notSet,
	}
	for _, f := range supplied {
		values[f.Heading] = f.Body
	}

	doc := Parse(stateTitle + "\n")
	order := []string{HeadingPhase, HeadingStatus, HeadingActiveWork, HeadingBlockers, HeadingNextAction, HeadingLastUpdated}
	for _, h := range order {
		doc.AppendSection(stateHeading, h, bodyLines(values[h]))
	}
	return Normalize(doc.String())
}

// replaceBody swaps the content lines of old for body, keeping the
// blank lines that led and trailed the old content.
func replaceBody(old []string, body string) []string {
	lead, trail := 0, 0
	for lead < len(old) && strings.TrimSpace(old[lead]) == "" {
		lead++
	}
	if lead == len(old) {
		lead, trail = 0, len(old)
	} else {
		for i := len(old) - 1; strings.TrimSpace(old[i]) == ""; i-- {
			trail++
		}
	}
	lines := make([]string, 0, lead+trail+1)
	lines = append(lines, old[:lead]...)
	lines = append(lines, strings.Split(body, "\n")...)
	return append(lines, old[len(old)-trail:]...)
}

func bodyLines(body string) []string {
	return append(strings.Split(body, "\n"), "")
}

func scalar(v string) string {
	v = SingleLine(v)
	if v == "" {
		return notSet
	}
	return v
}

func list(items []string) string {
	var lines []string
	for _, item := range items {
		if item = SingleLine(item); item != "" {
			lines = append(lines, "- "+item)
		}
	}
	if len(lines) == 0 {
		return emptyList
	}
	return strings.Join(lines, "\n")
}

// SectionText returns the trimmed body of the first level-2 section
// named heading, or "" when there is none.
func SectionText(content, heading string) string {
	doc := Parse(content)
	i := doc.Find(heading, stateHeading)
	if i < 0 {
		return ""
	}
	return strings.TrimSpace(strings.Join(doc.Sections[i].Body, "\n"))
}
