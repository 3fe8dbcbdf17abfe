package document

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/starford/mindforge/internal/models"
)

// Entry heading prefixes of numbered documents.
const (
	DecisionPrefix = "## DEC-"
	SessionPrefix  = "## Session "
)

// Document titles used when a numbered or checklist document is created.
const (
	DecisionsTitle = "# Decision Log\n"
	SessionTitle   = "# Session Log\n"
	ProgressTitle  = "# Progress Tracker\n"
)

const dateLayout = "2006-01-02"

// NextNumber returns one more than the largest entry number found after
// prefix at the start of a line. Gaps are ignored and numbers never reused.
func NextNumber(content, prefix string) int {
	highest := 0
	for _, line := range strings.Split(content, "\n") {
		rest, ok := strings.CutPrefix(line, prefix)
		if !ok {
			continue
		}
		end := 0
		for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
			end++
		}
		if end == 0 {
			continue
		}
		n, err := strconv.Atoi(rest[:end])
		// Numbers with no successor are ignored.
		if err == nil && n > highest && n < math.MaxInt {
			highest = n
		}
	}
	return highest + 1
}

// DecisionID formats a decision number as DEC-001.
func DecisionID(n int) string {
	return fmt.Sprintf("DEC-%03d", n)
}

// DecisionEntry renders one decision block, starting with a blank line.
func DecisionEntry(n int, d models.Decision, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n## %s: %s\n", DecisionID(n), SingleLine(d.Title))
	fmt.Fprintf(&b, "- **Date:** %s\n", now.UTC().Format(dateLayout))
	fmt.Fprintf(&b, "- **Decided by:** %s\n", orDefault(d.DecidedBy, "agent"))
	fmt.Fprintf(&b, "- **Decision:** %s\n", SingleLine(d.Decision))
	fmt.Fprintf(&b, "- **Rationale:** %s\n", orDefault(d.Rationale, "Not specified"))
	fmt.Fprintf(&b, "- **Status:** %s\n", orDefault(d.Status, "Final"))
	return b.String()
}

// SessionEntry renders one session block, starting with a blank line.
func SessionEntry(n int, s models.Session, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n## Session %d — %s\n", n, now.UTC().Format(TimestampLayout))
	fmt.Fprintf(&b, "- **Summary:** %s\n", SingleLine(s.Summary))
	if len(s.Completed) > 0 {
		fmt.Fprintf(&b, "- **Completed:** %s\n", joinList(s.Completed))
	}
	if len(s.Decisions) > 0 {
		fmt.Fprintf(&b, "- **Decisions:** %s\n", joinList(s.Decisions))
	}
	if len(s.Blockers) > 0 {
		fmt.Fprintf(&b, "- **Blockers:** %s\n", joinList(s.Blockers))
	}
	if next := SingleLine(s.Next); next != "" {
		fmt.Fprintf(&b, "- **Next session:** %s\n", next)
	}
	return b.String()
}

// AppendEntry appends entry to content, starting from title when the
// document is empty. Existing bytes are kept as they are.
func AppendEntry(content, title, entry string) string {
	if strings.TrimSpace(content) == "" {
		content = title
	}
	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return content + entry
}

func joinList(items models.StringList) string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = SingleLine(item); item != "" {
			out = append(out, item)
		}
	}
	return strings.Join(out, ", ")
}

func orDefault(v, def string) string {
	if v = SingleLine(v); v == "" {
		return def
	}
	return v
}
