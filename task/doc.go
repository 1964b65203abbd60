// Package task defines the task aggregate, its event records and the
// value types shared by the store, query engine and service layers.
//
// # Task
//
// A Task is the unit of optimistic concurrency. Version starts at 0 and
// grows by exactly one per committed write:
//
//	t := &task.Task{Title: "Ship v1", Priority: task.PriorityHigh}
//	t.ApplyDefaults()
//	if err := task.Validate(t); err != nil {
//	    // *errors.Error with code VALIDATION_ERROR, one violation per field
//	}
//
// # Events
//
// Every committed mutation produces one Event. CREATED, UPDATED and DELETED
// carry a JSON snapshot of the task; STATUS_CHANGED carries the old and new
// status:
//
//	payload, _ := task.StatusChangePayload(task.StatusTodo, task.StatusDone)
//	// {"oldStatus":"TODO","newStatus":"DONE"}
//
// # Listing
//
// Criteria describes a filtered, sorted, paginated listing and Page carries
// one page of results with its totals.
package task
