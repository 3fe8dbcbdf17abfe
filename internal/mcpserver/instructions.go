package mcpserver

// Instructions is returned in the handshake so clients know how the
// memory documents are meant to be used.
const Instructions = `mindforge keeps project memory in plain Markdown under .mind/.

Workflow:

1. Call memory_status at the start of a session to see the current phase,
   active work, blockers and next action.
2. Use memory_search to find earlier decisions, tasks or session notes.
   Results mix ranked passages ([semantic]) with exact line matches ([keyword]).
3. Keep STATE.md current with memory_update_state. Only the fields you pass
   change; every other section, including ones you added by hand, is kept.
4. Record decisions with memory_save_decision (numbered DEC-001, DEC-002, ...).
5. Track tasks with memory_save_progress: add them, then complete them by
   their text. Completion matches exact text first, then a case-insensitive
   substring.
6. Finish each session with memory_save_session.

Documents:

- STATE.md        current phase, status, active work, blockers, next action
- PROGRESS.md     checklist of tasks ("- [ ]" open, "- [x]" done)
- DECISIONS.md    decision log
- SESSION-LOG.md  one entry per working session
- ARCHIVE.md      older entries moved out by external tools (search only)

Other processes may rewrite these files between calls; every call reads
them fresh. Values are written on a single line.`
