package task

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/vinayprograms/taskapi/errors"
)

// Field limits, counted in characters.
const (
	MaxTitleLen       = 200
	MaxDescriptionLen = 5000
	MaxAssigneeLen    = 255
	MaxTagLen         = 255
)

// Validate checks every field of t and reports all violations at once.
// It returns nil or an *errors.Error with code VALIDATION_ERROR.
func Validate(t *Task) error {
	var v []errors.FieldViolation
	add := func(field, msg string) {
		v = append(v, errors.FieldViolation{Field: field, Message: msg})
	}

	switch n := utf8.RuneCountInString(t.Title); {
	case strings.TrimSpace(t.Title) == "":
		add("title", "title is required")
	case n > MaxTitleLen:
		add("title", fmt.Sprintf("size must be between 1 and %d", MaxTitleLen))
	}
	if utf8.RuneCountInString(t.Description) > MaxDescriptionLen {
		add("description", fmt.Sprintf("size must be at most %d", MaxDescriptionLen))
	}
	if t.Status != "" && !t.Status.Valid() {
		add("status", "must be one of TODO, IN_PROGRESS, DONE, CANCELLED")
	}
	if t.Priority != "" && !t.Priority.Valid() {
		add("priority", "must be one of LOW, MEDIUM, HIGH, URGENT")
	}
	if utf8.RuneCountInString(t.Assignee) > MaxAssigneeLen {
		add("assignee", fmt.Sprintf("size must be at most %d", MaxAssigneeLen))
	}
	for i, tag := range t.Tags {
		if utf8.RuneCountInString(tag) > MaxTagLen {
			add(fmt.Sprintf("tags[%d]", i), fmt.Sprintf("size must be at most %d", MaxTagLen))
		}
	}

	if len(v) > 0 {
		return errors.Validation(v...)
	}
	return nil
}

// ValidateStatus checks a required status value.
func ValidateStatus(s Status) error {
	if s == "" {
		return errors.InvalidField("status", "status is required")
	}
	if !s.Valid() {
		return errors.InvalidField("status", "must be one of TODO, IN_PROGRESS, DONE, CANCELLED")
	}
	return nil
}
