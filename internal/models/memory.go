// Package models defines the domain types for mindforge.
package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Logical document names inside the store root.
const (
	StateDoc     = "STATE.md"
	ProgressDoc  = "PROGRESS.md"
	DecisionsDoc = "DECISIONS.md"
	SessionDoc   = "SESSION-LOG.md"
	ArchiveDoc   = "ARCHIVE.md"
)

// Files in the store root that are not documents.
const (
	LockFile        = ".mcp-lock"
	DiagnosticsFile = ".mcp-errors.log"
)

// Documents lists every document the store knows about, in search order.
var Documents = []string{StateDoc, ProgressDoc, DecisionsDoc, SessionDoc, ArchiveDoc}

// IsDocument reports whether name is one of the known logical documents.
func IsDocument(name string) bool {
	for _, d := range Documents {
		if d == name {
			return true
		}
	}
	return false
}

// Progress actions.
const (
	ActionAdd      = "add"
	ActionComplete = "complete"
)

// StringList accepts either a JSON string or an array of strings.
type StringList []string

// UnmarshalJSON implements json.Unmarshaler.
func (l *StringList) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*l = nil
		return nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = StringList{s}
		return nil
	}
	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("expected a string or a list of strings")
	}
	*l = items
	return nil
}

// SearchArgs are the arguments of memory_search.
type SearchArgs struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

// StateUpdate are the arguments of memory_update_state. Nil fields are
// left untouched in the status document.
type StateUpdate struct {
	Phase      *string   `json:"phase,omitempty"`
	Status     *string   `json:"status,omitempty"`
	ActiveWork *[]string `json:"active_work,omitempty"`
	Blockers   *[]string `json:"blockers,omitempty"`
	NextAction *string   `json:"next_action,omitempty"`
}

// Decision are the arguments of memory_save_decision.
type Decision struct {
	Title     string `json:"title"`
	Decision  string `json:"decision"`
	Rationale string `json:"rationale,omitempty"`
	DecidedBy string `json:"decided_by,omitempty"`
	Status    string `json:"status,omitempty"`
}

// ProgressTask are the arguments of memory_save_progress.
type ProgressTask struct {
	Task      string `json:"task"`
	Action    string `json:"action,omitempty"`
	Section   string `json:"section,omitempty"`
	Completed bool   `json:"completed,omitempty"`
}

// Session are the arguments of memory_save_session.
type Session struct {
	Summary   string     `json:"summary"`
	Completed StringList `json:"completed,omitempty"`
	Decisions StringList `json:"decisions,omitempty"`
	Blockers  StringList `json:"blockers,omitempty"`
	Next      string     `json:"next,omitempty"`
}
