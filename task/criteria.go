package task

import (
	"math"
	"strings"
	"time"

	"github.com/vinayprograms/taskapi/errors"
)

// Paging defaults.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Sort directions.
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// Criteria selects, orders and paginates tasks. Zero values mean "no filter".
type Criteria struct {
	Status    Status
	Priority  Priority
	Assignee  string
	Tag       string
	DueBefore *time.Time // inclusive
	DueAfter  *time.Time // inclusive
	Text      string

	Page      int
	Size      int
	Sort      string
	Direction string
}

// Normalize validates c and returns a copy with paging defaults applied.
// A zero or negative size becomes DefaultPageSize and sizes above
// MaxPageSize are clamped.
func (c Criteria) Normalize() (Criteria, error) {
	var v []errors.FieldViolation
	if c.Page < 0 {
		v = append(v, errors.FieldViolation{Field: "page", Message: "must not be negative"})
	}
	if c.Status != "" && !c.Status.Valid() {
		v = append(v, errors.FieldViolation{Field: "status", Message: "must be one of TODO, IN_PROGRESS, DONE, CANCELLED"})
	}
	if c.Priority != "" && !c.Priority.Valid() {
		v = append(v, errors.FieldViolation{Field: "priority", Message: "must be one of LOW, MEDIUM, HIGH, URGENT"})
	}
	if len(v) > 0 {
		return c, errors.Validation(v...)
	}

	c.Size = ClampSize(c.Size)
	c.Text = strings.TrimSpace(c.Text)
	c.Direction = strings.ToLower(strings.TrimSpace(c.Direction))
	c.Sort = strings.TrimSpace(c.Sort)
	return c, nil
}

// IsDefault reports whether c is the unfiltered first page in default
// order, the one listing that is served from cache.
func (c Criteria) IsDefault() bool {
	if c.Status != "" || c.Priority != "" || c.Assignee != "" || c.Tag != "" ||
		c.DueBefore != nil || c.DueAfter != nil || strings.TrimSpace(c.Text) != "" {
		return false
	}
	if c.Page != 0 || ClampSize(c.Size) != DefaultPageSize {
		return false
	}
	sort := strings.TrimSpace(c.Sort)
	dir := strings.ToLower(strings.TrimSpace(c.Direction))
	if sort == "" {
		return true
	}
	return sort == "createdAt" && dir == SortDesc
}

// ClampSize applies the page size default and ceiling.
func ClampSize(size int) int {
	switch {
	case size <= 0:
		return DefaultPageSize
	case size > MaxPageSize:
		return MaxPageSize
	}
	return size
}

// Offset returns the number of rows before page. ok is false when the
// offset does not fit in an int; such a page lies past any result.
func Offset(page, size int) (offset int, ok bool) {
	if size > 0 && page > (math.MaxInt-size)/size {
		return 0, false
	}
	return page * size, true
}
