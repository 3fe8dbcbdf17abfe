package mcpserver

import (
	"bytes"
	"encoding/json"
	"slices"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/mindforge/internal/apperr"
	"github.com/starford/mindforge/internal/models"
)

// Limits bound the size of tool arguments.
type Limits struct {
	MaxPayloadBytes int
	MaxFieldBytes   int
}

// Default argument limits.
const (
	DefaultMaxPayloadBytes = 50 * 1024
	DefaultMaxFieldBytes   = 5 * 1024
)

// checkSize rejects oversized arguments before they are decoded into a
// tool's argument type. Every string counts, including list items.
func (l Limits) checkSize(raw json.RawMessage) error {
	if len(raw) > l.MaxPayloadBytes {
		return apperr.Validation("Input too large: %d bytes (max %d)", len(raw), l.MaxPayloadBytes)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return apperr.Validation("Invalid arguments: expected a JSON object")
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		if err := validation.Validate(fields[name], validation.By(l.fieldSize(name))); err != nil {
			return err
		}
	}
	return nil
}

func (l Limits) fieldSize(name string) validation.RuleFunc {
	return func(value any) error {
		var largest int
		switch v := value.(type) {
		case string:
			largest = len(v)
		case []any:
			for _, item := range v {
				if s, ok := item.(string); ok && len(s) > largest {
					largest = len(s)
				}
			}
		}
		if largest > l.MaxFieldBytes {
			return apperr.Validation("Field %q too large: %d bytes (max %d per field)", name, largest, l.MaxFieldBytes)
		}
		return nil
	}
}

// decode strictly decodes raw into dst and runs its rules.
func decode[T any](raw json.RawMessage, dst *T, rules func(*T) error) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(dst); err != nil {
		return apperr.Validation("Invalid arguments: %v", err)
	}
	if rules == nil {
		return nil
	}
	if err := rules(dst); err != nil {
		return apperr.Validation("Invalid arguments: %v", err)
	}
	return nil
}

func searchRules(a *models.SearchArgs) error {
	return validation.ValidateStruct(a,
		validation.Field(&a.Query, validation.Required),
		validation.Field(&a.Limit, validation.Min(1), validation.Max(MaxSearchLimit)),
	)
}

func decisionRules(d *models.Decision) error {
	return validation.ValidateStruct(d,
		validation.Field(&d.Title, validation.Required),
		validation.Field(&d.Decision, validation.Required),
	)
}

func progressRules(p *models.ProgressTask) error {
	return validation.ValidateStruct(p,
		validation.Field(&p.Task, validation.Required),
		validation.Field(&p.Action, validation.In(models.ActionAdd, models.ActionComplete)),
	)
}

func sessionRules(s *models.Session) error {
	return validation.ValidateStruct(s,
		validation.Field(&s.Summary, validation.Required),
	)
}
