package service

import (
	"strconv"
	"strings"

	"github.com/vinayprograms/taskapi/task"
	"github.com/vinayprograms/taskapi/telemetry"
)

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// indexed prefixes a field name with its position in a batch.
func indexed(i int, field string) string {
	return "[" + strconv.Itoa(i) + "]." + field
}

// snapshot serializes t for an event payload. Encoding a task cannot fail;
// an empty object is recorded if it ever does.
func snapshot(t *task.Task) string {
	payload, err := task.SnapshotPayload(t)
	if err != nil {
		return "{}"
	}
	return payload
}

func clonePage(p task.Page[*task.Task]) task.Page[*task.Task] {
	items := make([]*task.Task, len(p.Items))
	for i, t := range p.Items {
		items[i] = t.Clone()
	}
	p.Items = items
	return p
}

func spanOpts(t *task.Task, typ ...task.EventType) telemetry.TaskSpanOptions {
	var opts telemetry.TaskSpanOptions
	if t != nil {
		opts.TaskID = t.ID
		opts.Version = t.Version
	}
	if len(typ) > 0 && t != nil {
		opts.EventType = string(typ[0])
	}
	return opts
}
