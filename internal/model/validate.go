package model

import (
	"fmt"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	maxIDLen    = 64
	maxTitleLen = 500
)

// FieldError is one rule an issue field broke.
type FieldError struct {
	Field   string
	Message string
}

func (fe FieldError) String() string { return fe.Field + ": " + fe.Message }

// ValidationError collects every FieldError found in one issue.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		msgs = append(msgs, fe.String())
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// HasErrors reports whether any rule failed.
func (e *ValidationError) HasErrors() bool { return len(e.Errors) > 0 }

func (e *ValidationError) addf(field, format string, args ...any) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// ValidateID checks that id can serve as a file name, as an element of a
// comma-separated relationship field and as a field of an index row.
func ValidateID(id string) error {
	switch {
	case id == "":
		return fmt.Errorf("id is required")
	case len(id) > maxIDLen:
		return fmt.Errorf("id %q must be %d characters or fewer", id, maxIDLen)
	case strings.HasPrefix(id, "."), strings.HasPrefix(id, "#"):
		return fmt.Errorf("id %q must not start with %q", id, id[:1])
	case strings.ContainsAny(id, ",/\\"), strings.ContainsFunc(id, unicode.IsSpace):
		return fmt.Errorf("id %q contains invalid characters", id)
	}
	return nil
}

// ValidateIssue returns a *ValidationError listing every broken rule, or
// nil.
func ValidateIssue(i *Issue) error {
	var ve ValidationError

	if err := ValidateID(i.ID); err != nil {
		ve.addf("id", "%s", err)
	}

	switch title := strings.TrimSpace(i.Title); {
	case title == "":
		ve.addf(FieldTitle, "is required")
	case utf8.RuneCountInString(title) > maxTitleLen:
		ve.addf(FieldTitle, "must be %d characters or fewer", maxTitleLen)
	case strings.ContainsAny(title, "\r\n"):
		ve.addf(FieldTitle, "must be a single line")
	}

	if !i.Status.IsValid() {
		ve.addf(FieldStatus, "invalid value %q", i.Status)
	}
	if !i.Priority.IsValid() {
		ve.addf(FieldPriority, "invalid value %q", i.Priority)
	}

	for _, r := range Relations {
		ids := i.Related(r)
		if slices.Contains(ids, i.ID) {
			ve.addf(r.Field(), "must not reference the issue itself")
			continue
		}
		if dup, ok := firstDuplicate(ids); ok {
			ve.addf(r.Field(), "lists %s more than once", dup)
		}
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}

func firstDuplicate(ids []string) (string, bool) {
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return id, true
		}
		seen[id] = true
	}
	return "", false
}
