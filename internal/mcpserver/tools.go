package mcpserver

import (
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/mindforge/internal/models"
)

// Tool names.
const (
	ToolStatus       = "memory_status"
	ToolSearch       = "memory_search"
	ToolUpdateState  = "memory_update_state"
	ToolSaveDecision = "memory_save_decision"
	ToolSaveProgress = "memory_save_progress"
	ToolSaveSession  = "memory_save_session"
)

// MaxSearchLimit caps the limit argument of memory_search.
const MaxSearchLimit = 50

var stringItems = map[string]any{"type": "string"}

// sessionSchema is written by hand because list fields accept either a
// string or an array of strings.
const sessionSchema = `{
  "type": "object",
  "properties": {
    "summary": {"type": "string", "description": "What happened this session (1-3 sentences)"},
    "completed": {"oneOf": [{"type": "string"}, {"type": "array", "items": {"type": "string"}}], "description": "What was completed"},
    "decisions": {"oneOf": [{"type": "string"}, {"type": "array", "items": {"type": "string"}}], "description": "Decisions made"},
    "blockers": {"oneOf": [{"type": "string"}, {"type": "array", "items": {"type": "string"}}], "description": "Current blockers"},
    "next": {"type": "string", "description": "What the next session should do"}
  },
  "required": ["summary"]
}`

func catalog() []mcp.Tool {
	return []mcp.Tool{
		mcp.NewTool(ToolStatus,
			mcp.WithDescription("Read the current project state from .mind/STATE.md. Call this first to understand where the project is."),
		),
		mcp.NewTool(ToolSearch,
			mcp.WithDescription("Search across all .mind/ files (STATE.md, PROGRESS.md, DECISIONS.md, SESSION-LOG.md, ARCHIVE.md). "+
				"Ranks passages by relevance and adds exact line matches with context."),
			mcp.WithString("query", mcp.Required(), mcp.Description("Search terms (case-insensitive)")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 10)"), mcp.Min(1), mcp.Max(MaxSearchLimit)),
		),
		mcp.NewTool(ToolUpdateState,
			mcp.WithDescription("Update .mind/STATE.md with the current phase, status, active work, blockers and next action. "+
				"Only provide fields you want to change; all other sections are preserved."),
			mcp.WithString("phase", mcp.Description(`Current phase (e.g. "Phase 2: API Development")`)),
			mcp.WithString("status", mcp.Description("Brief status summary (1-2 sentences)")),
			mcp.WithArray("active_work", mcp.Items(stringItems), mcp.Description("Active work items (replaces the existing list)")),
			mcp.WithArray("blockers", mcp.Items(stringItems), mcp.Description("Blockers (replaces the existing list)")),
			mcp.WithString("next_action", mcp.Description("What should happen next")),
		),
		mcp.NewTool(ToolSaveDecision,
			mcp.WithDescription("Record a decision in .mind/DECISIONS.md with rationale. Auto-numbered (DEC-001, DEC-002, ...)."),
			mcp.WithString("title", mcp.Required(), mcp.Description(`Decision title (e.g. "Use PostgreSQL over SQLite")`)),
			mcp.WithString("decision", mcp.Required(), mcp.Description("What was decided")),
			mcp.WithString("rationale", mcp.Description("Why this was decided")),
			mcp.WithString("decided_by", mcp.Description(`Who decided (default: "agent")`)),
			mcp.WithString("status", mcp.Description(`Decision status (default: "Final")`)),
		),
		mcp.NewTool(ToolSaveProgress,
			mcp.WithDescription("Add a task to .mind/PROGRESS.md or mark an existing task as complete."),
			mcp.WithString("task", mcp.Required(), mcp.Description("Task description (matched against open tasks for completion)")),
			mcp.WithString("action", mcp.Enum(models.ActionAdd, models.ActionComplete),
				mcp.Description(`"add" to create a new task, "complete" to check off an existing one`)),
			mcp.WithString("section", mcp.Description(`Section name for new tasks (default: "In Progress")`)),
			mcp.WithBoolean("completed", mcp.Description(`If true without an action, completes the task; with "add", adds it already checked`)),
		),
		mcp.NewToolWithRawSchema(ToolSaveSession,
			"Append a session summary to .mind/SESSION-LOG.md. Call this at the end of each work session.",
			json.RawMessage(sessionSchema),
		),
	}
}
