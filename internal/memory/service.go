// Package memory implements the memory tools over the document store and
// the search engine. Every call re-reads documents from disk.
package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/starford/mindforge/internal/apperr"
	"github.com/starford/mindforge/internal/diag"
	"github.com/starford/mindforge/internal/document"
	"github.com/starford/mindforge/internal/models"
	"github.com/starford/mindforge/internal/search"
	"github.com/starford/mindforge/internal/storage"
)

// ContentionWarning is appended to the result of a write that ran while
// another process held the store lock.
const ContentionWarning = "(warning: another writer held the store lock; write proceeded without it)"

const (
	defaultSection = "In Progress"
	missingState   = "No STATE.md found. Create one with memory_update_state."
)

// Service coordinates storage, document edits and search.
type Service struct {
	store        storage.Provider
	engine       *search.Engine
	diag         *diag.Log
	logger       *slog.Logger
	now          func() time.Time
	defaultLimit int
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithDefaultLimit sets the search limit used when a call gives none.
func WithDefaultLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.defaultLimit = n
		}
	}
}

// NewService creates a new memory service.
func NewService(store storage.Provider, engine *search.Engine, dlog *diag.Log, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:        store,
		engine:       engine,
		diag:         dlog,
		logger:       logger,
		now:          time.Now,
		defaultLimit: 10,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Status returns the status document, or a hint when there is none.
func (s *Service) Status(_ context.Context) (string, error) {
	data, ok, err := s.store.Read(models.StateDoc)
	if err != nil {
		return "", err
	}
	if !ok || strings.TrimSpace(string(data)) == "" {
		return missingState, nil
	}
	return string(data), nil
}

// Search runs a hybrid search and renders the hits.
func (s *Service) Search(_ context.Context, args models.SearchArgs) (string, error) {
	query := strings.TrimSpace(args.Query)
	if query == "" {
		return "", apperr.Validation("query is required")
	}
	limit := args.Limit
	if limit <= 0 {
		limit = s.defaultLimit
	}
	results, err := s.engine.Hybrid(query, limit)
	if err != nil {
		return "", err
	}
	return search.Format(query, results), nil
}

// UpdateState merges the supplied fields into the status document.
func (s *Service) UpdateState(_ context.Context, u models.StateUpdate) (string, error) {
	now := s.now()
	var merged string
	out, err := s.store.Update(models.StateDoc, func(current []byte, _ bool) ([]byte, error) {
		merged = document.MergeState(string(current), u, now)
		return []byte(merged), nil
	})
	if err != nil {
		return "", err
	}
	phase := document.SectionText(merged, document.HeadingPhase)
	return s.annotate(out, models.StateDoc, fmt.Sprintf("STATE.md updated. Phase: %s", phase)), nil
}

// SaveDecision appends the next numbered decision.
func (s *Service) SaveDecision(_ context.Context, d models.Decision) (string, error) {
	if err := requireText(map[string]string{"title": d.Title, "decision": d.Decision}); err != nil {
		return "", err
	}
	now := s.now()
	var id string
	out, err := s.store.Update(models.DecisionsDoc, func(current []byte, _ bool) ([]byte, error) {
		content := string(current)
		n := document.NextNumber(content, document.DecisionPrefix)
		id = document.DecisionID(n)
		return []byte(document.AppendEntry(content, document.DecisionsTitle, document.DecisionEntry(n, d, now))), nil
	})
	if err != nil {
		return "", err
	}
	return s.annotate(out, models.DecisionsDoc, fmt.Sprintf("Decision %s saved: %s", id, document.SingleLine(d.Title))), nil
}

// SaveProgress adds a checklist item or completes an open one. completed
// without an action means complete; with action add it adds a done item.
func (s *Service) SaveProgress(_ context.Context, p models.ProgressTask) (string, error) {
	if err := requireText(map[string]string{"task": p.Task}); err != nil {
		return "", err
	}
	action := p.Action
	if action == "" {
		action = models.ActionAdd
		if p.Completed {
			action = models.ActionComplete
		}
	}

	now := s.now()
	var msg string
	out, err := s.store.Update(models.ProgressDoc, func(current []byte, _ bool) ([]byte, error) {
		content := string(current)
		switch action {
		case models.ActionComplete:
			next, matched, err := document.CompleteTask(content, p.Task, now)
			if err != nil {
				return nil, err
			}
			msg = "Marked complete: " + matched
			return []byte(next), nil
		case models.ActionAdd:
			section := strings.TrimSpace(p.Section)
			if section == "" {
				section = defaultSection
			}
			msg = fmt.Sprintf("Added to %s: %s", document.SingleLine(section), document.SingleLine(p.Task))
			return []byte(document.AddTask(content, section, p.Task, p.Completed)), nil
		default:
			return nil, apperr.Validation("action must be one of: %s, %s", models.ActionAdd, models.ActionComplete)
		}
	})
	if errors.Is(err, document.ErrTaskNotFound) {
		return "", apperr.NotFound("No open task matching \"%s\"", document.SingleLine(p.Task))
	}
	if err != nil {
		return "", err
	}
	return s.annotate(out, models.ProgressDoc, msg), nil
}

// SaveSession appends the next numbered session entry.
func (s *Service) SaveSession(_ context.Context, sess models.Session) (string, error) {
	if err := requireText(map[string]string{"summary": sess.Summary}); err != nil {
		return "", err
	}
	now := s.now()
	var n int
	out, err := s.store.Update(models.SessionDoc, func(current []byte, _ bool) ([]byte, error) {
		content := string(current)
		n = document.NextNumber(content, document.SessionPrefix)
		return []byte(document.AppendEntry(content, document.SessionTitle, document.SessionEntry(n, sess, now))), nil
	})
	if err != nil {
		return "", err
	}
	return s.annotate(out, models.SessionDoc, fmt.Sprintf("Session %d logged.", n)), nil
}

func (s *Service) annotate(out storage.Outcome, name, msg string) string {
	if !out.Contended {
		return msg
	}
	s.diag.Record(diag.CategoryLock, "write proceeded without store lock", slog.String("document", name))
	return msg + "\n\n" + ContentionWarning
}

func requireText(fields map[string]string) error {
	var missing []string
	for name, v := range fields {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	slices.Sort(missing)
	return apperr.Validation("%s is required", strings.Join(missing, " and "))
}
