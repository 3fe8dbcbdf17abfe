package document

import (
	"errors"
	"strings"
	"time"
)

// ErrTaskNotFound is returned when no open task matches.
var ErrTaskNotFound = errors.New("no open task matches")

const (
	openBox = "- [ ] "
	doneBox = "- [x] "
)

// CompleteTask marks the first open task whose text equals task as done.
// Failing that, the first open task containing task (ignoring case) is
// used. It returns the updated content and the text of the matched task.
func CompleteTask(content, task string, now time.Time) (string, string, error) {
	task = SingleLine(task)
	lines := strings.Split(content, "\n")

	match := -1
	for i, line := range lines {
		if text, ok := openTask(line); ok && text == task {
			match = i
			break
		}
	}
	if match < 0 {
		needle := strings.ToLower(task)
		for i, line := range lines {
			if text, ok := openTask(line); ok && strings.Contains(strings.ToLower(text), needle) {
				match = i
				break
			}
		}
	}
	if match < 0 {
		return content, "", ErrTaskNotFound
	}

	line := lines[match]
	indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
	text, _ := openTask(line)
	lines[match] = indent + doneBox + text + " (completed " + now.UTC().Format(dateLayout) + ")"
	return strings.Join(lines, "\n"), text, nil
}

// AddTask inserts a checklist line directly under the first heading named
// section, or appends a new "### section" block when there is none.
func AddTask(content, section, task string, done bool) string {
	if strings.TrimSpace(content) == "" {
		content = ProgressTitle
	}
	section = SingleLine(section)
	box := openBox
	if done {
		box = doneBox
	}
	entry := box + SingleLine(task)

	doc := Parse(content)
	if i := doc.Find(section, 0); i >= 0 {
		body := doc.Sections[i].Body
		doc.Sections[i].Body = append([]string{entry}, body...)
	} else {
		doc.AppendSection(3, section, []string{entry, ""})
	}

	out := doc.String()
	if !strings.HasSuffix(out, "\n") {
		out += "\n"
	}
	return out
}

func openTask(line string) (string, bool) {
	rest, ok := strings.CutPrefix(strings.TrimLeft(line, " \t"), openBox)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(rest), true
}
