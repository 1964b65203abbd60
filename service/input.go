package service

import (
	"time"

	"github.com/vinayprograms/taskapi/task"
)

// CreateInput carries the fields of a new task. Blank status and priority
// take their defaults.
type CreateInput struct {
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Status      task.Status   `json:"status"`
	Priority    task.Priority `json:"priority"`
	DueDate     *time.Time    `json:"dueDate"`
	Assignee    string        `json:"assignee"`
	Tags        []string      `json:"tags"`
}

// task converts the input without applying defaults.
func (in CreateInput) task() *task.Task {
	return &task.Task{
		Title:       in.Title,
		Description: in.Description,
		Status:      in.Status,
		Priority:    in.Priority,
		DueDate:     utc(in.DueDate),
		Assignee:    in.Assignee,
		Tags:        append([]string(nil), in.Tags...),
	}
}

// UpdateInput replaces the mutable fields of a task. Blank status and
// priority keep the current values and nil tags keep the current tags.
// A nil ExpectedVersion means the version read at the start of the update.
type UpdateInput struct {
	Title           string        `json:"title"`
	Description     string        `json:"description"`
	Status          task.Status   `json:"status"`
	Priority        task.Priority `json:"priority"`
	DueDate         *time.Time    `json:"dueDate"`
	Assignee        string        `json:"assignee"`
	Tags            []string      `json:"tags"`
	ExpectedVersion *int64        `json:"version"`
}

// candidate is the input as a task for validation.
func (in UpdateInput) candidate() *task.Task {
	return &task.Task{
		Title:       in.Title,
		Description: in.Description,
		Status:      in.Status,
		Priority:    in.Priority,
		Assignee:    in.Assignee,
		Tags:        in.Tags,
	}
}

// apply writes the input over t.
func (in UpdateInput) apply(t *task.Task) {
	t.Title = in.Title
	t.Description = in.Description
	if in.Status != "" {
		t.Status = in.Status
	}
	if in.Priority != "" {
		t.Priority = in.Priority
	}
	t.DueDate = utc(in.DueDate)
	t.Assignee = in.Assignee
	if in.Tags != nil {
		t.Tags = task.NormalizeTags(in.Tags)
	}
}

// StatusInput changes only the status.
type StatusInput struct {
	Status          task.Status `json:"status"`
	ExpectedVersion *int64      `json:"version"`
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
