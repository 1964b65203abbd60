package service

import (
	"context"
	"time"

	"github.com/vinayprograms/taskapi/cache"
	"github.com/vinayprograms/taskapi/errors"
	"github.com/vinayprograms/taskapi/idempotency"
	"github.com/vinayprograms/taskapi/logging"
	"github.com/vinayprograms/taskapi/task"
	"github.com/vinayprograms/taskapi/telemetry"
)

// TaskStore persists tasks with optimistic concurrency.
type TaskStore interface {
	Get(ctx context.Context, id string) (*task.Task, error)
	Exists(ctx context.Context, id string) (bool, error)
	Insert(ctx context.Context, t *task.Task) (*task.Task, error)
	Update(ctx context.Context, id string, expectedVersion int64, mutate func(*task.Task) error) (*task.Task, error)
	Delete(ctx context.Context, id string) (*task.Task, error)
}

// EventLog records committed transitions.
type EventLog interface {
	Append(ctx context.Context, taskID string, typ task.EventType, version int64, payload string) (*task.Event, error)
	ListByTask(ctx context.Context, taskID string, page, size int) (task.Page[task.Event], error)
}

// Dispatcher delivers events asynchronously.
type Dispatcher interface {
	Enqueue(ev *task.Event) bool
}

// Lister runs listings.
type Lister interface {
	List(ctx context.Context, c task.Criteria) (task.Page[*task.Task], error)
}

// Indexer keeps the listing index current.
type Indexer interface {
	Put(t *task.Task) error
	Remove(id string) error
}

// Config wires a Service. Store, Events, Lister and Indexer are required.
type Config struct {
	Store      TaskStore
	Events     EventLog
	Dispatcher Dispatcher // nil disables fan-out
	Lister     Lister
	Indexer    Indexer

	// Idempotency enables keyed creation. Nil ignores keys.
	Idempotency    idempotency.Registry
	IdempotencyTTL time.Duration

	Cache  cache.Config
	Logger *logging.Logger
	Tracer *telemetry.Tracer
}

// Service implements the task operations.
type Service struct {
	store      TaskStore
	events     EventLog
	dispatcher Dispatcher
	lister     Lister
	indexer    Indexer
	idem       idempotency.Registry
	idemTTL    time.Duration

	tasks *cache.Cache[*task.Task]
	lists *cache.Cache[task.Page[*task.Task]]
	locks *keyedMutex

	log    *logging.Logger
	tracer *telemetry.Tracer
}

// New creates a Service.
func New(cfg Config) *Service {
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = telemetry.GetTracer()
	}
	return &Service{
		store:      cfg.Store,
		events:     cfg.Events,
		dispatcher: cfg.Dispatcher,
		lister:     cfg.Lister,
		indexer:    cfg.Indexer,
		idem:       cfg.Idempotency,
		idemTTL:    cfg.IdempotencyTTL,
		tasks:      cache.New[*task.Task](cfg.Cache),
		lists:      cache.New[task.Page[*task.Task]](cfg.Cache),
		locks:      newKeyedMutex(),
		log:        cfg.Logger.WithComponent("service"),
		tracer:     cfg.Tracer,
	}
}

// Get returns a task, served from cache when possible.
func (s *Service) Get(ctx context.Context, id string) (t *task.Task, err error) {
	ctx, span := s.tracer.StartTaskSpan(ctx, "get", id)
	defer func() { s.tracer.EndTaskSpan(span, spanOpts(t), err) }()

	t, err = s.tasks.GetOrCompute(cache.TaskKey(id), func() (*task.Task, error) {
		return s.store.Get(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return t.Clone(), nil
}

// Create stores a new task. With a non-blank idempotency key, a repeated
// call returns the task the first call created. A key whose task has since
// been deleted reports NOT_FOUND.
func (s *Service) Create(ctx context.Context, in CreateInput, idempotencyKey string) (t *task.Task, err error) {
	ctx, span := s.tracer.StartTaskSpan(ctx, "create", "")
	defer func() { s.tracer.EndTaskSpan(span, spanOpts(t, task.EventCreated), err) }()

	candidate := in.task()
	if err := task.Validate(candidate); err != nil {
		return nil, err
	}
	candidate.ApplyDefaults()

	keyed := s.idem != nil && !isBlank(idempotencyKey)
	if keyed {
		id, ok, err := s.idem.Lookup(ctx, idempotencyKey)
		if err != nil {
			return nil, err
		}
		if ok {
			s.log.Info("idempotent_replay", map[string]interface{}{"task_id": id})
			return s.Get(ctx, id)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "create task")
	}

	wctx := context.WithoutCancel(ctx)
	t, err = s.insert(wctx, candidate)
	if err != nil {
		return nil, err
	}
	if keyed {
		if err := s.idem.Record(wctx, idempotencyKey, t.ID, s.idemTTL); err != nil {
			s.log.Absorbed("idempotency_record", t.ID, err)
		}
	}
	return t, nil
}

// BulkCreate stores every input in order. All inputs are validated first;
// any violation rejects the whole batch with field names prefixed by the
// input index. Inserts are independent, so a storage failure midway leaves
// the earlier tasks in place.
func (s *Service) BulkCreate(ctx context.Context, ins []CreateInput) (out []*task.Task, err error) {
	ctx, span := s.tracer.StartTaskSpan(ctx, "bulk_create", "")
	defer func() { s.tracer.EndTaskSpan(span, telemetry.TaskSpanOptions{Count: len(out)}, err) }()

	candidates := make([]*task.Task, len(ins))
	var violations []errors.FieldViolation
	for i, in := range ins {
		candidates[i] = in.task()
		if err := task.Validate(candidates[i]); err != nil {
			for _, v := range errors.As(err).Violations() {
				v.Field = indexed(i, v.Field)
				violations = append(violations, v)
			}
		}
		candidates[i].ApplyDefaults()
	}
	if len(violations) > 0 {
		return nil, errors.Validation(violations...)
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "bulk create tasks")
	}

	wctx := context.WithoutCancel(ctx)
	out = make([]*task.Task, 0, len(candidates))
	for _, c := range candidates {
		t, err := s.insert(wctx, c)
		if err != nil {
			return out, err
		}
		out = append(out, t)
	}
	return out, nil
}

// insert writes a new task and runs the post-commit steps. The new id is
// unknown to other callers until it is indexed or recorded, both of which
// happen under the lock taken here.
func (s *Service) insert(ctx context.Context, candidate *task.Task) (*task.Task, error) {
	start := time.Now()
	t, err := s.store.Insert(ctx, candidate)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(t.ID)
	defer unlock()
	s.committed(ctx, t, task.EventCreated, snapshot(t))
	s.log.Mutation("created", t.ID, t.Version, time.Since(start))
	return t.Clone(), nil
}

// Update replaces the mutable fields of a task.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (t *task.Task, err error) {
	ctx, span := s.tracer.StartTaskSpan(ctx, "update", id)
	defer func() { s.tracer.EndTaskSpan(span, spanOpts(t, task.EventUpdated), err) }()

	if err := task.Validate(in.candidate()); err != nil {
		return nil, err
	}

	return s.mutate(ctx, id, in.ExpectedVersion, "updated", func(cur, next *task.Task) (task.EventType, string, error) {
		in.apply(next)
		return task.EventUpdated, "", nil
	})
}

// UpdateStatus changes only the status of a task.
func (s *Service) UpdateStatus(ctx context.Context, id string, in StatusInput) (t *task.Task, err error) {
	ctx, span := s.tracer.StartTaskSpan(ctx, "update_status", id)
	defer func() { s.tracer.EndTaskSpan(span, spanOpts(t, task.EventStatusChanged), err) }()

	if err := task.ValidateStatus(in.Status); err != nil {
		return nil, err
	}

	return s.mutate(ctx, id, in.ExpectedVersion, "status_changed", func(cur, next *task.Task) (task.EventType, string, error) {
		next.Status = in.Status
		payload, err := task.StatusChangePayload(cur.Status, in.Status)
		if err != nil {
			return "", "", errors.Wrap(err, "encode status payload")
		}
		return task.EventStatusChanged, payload, nil
	})
}

// change applies one mutation to next (a copy of cur) and returns the event
// to record. An empty payload means a snapshot of the result.
type change func(cur, next *task.Task) (task.EventType, string, error)

// mutate runs the locked read, check, write sequence shared by updates.
func (s *Service) mutate(ctx context.Context, id string, expected *int64, op string, apply change) (*task.Task, error) {
	unlock := s.locks.Lock(id)
	defer unlock()
	start := time.Now()

	cur, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	version := cur.Version
	if expected != nil {
		if *expected != cur.Version {
			return nil, errors.VersionConflict(id, *expected, cur.Version)
		}
		version = *expected
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "update task")
	}

	wctx := context.WithoutCancel(ctx)
	var (
		typ     task.EventType
		payload string
	)
	updated, err := s.store.Update(wctx, id, version, func(next *task.Task) error {
		var err error
		typ, payload, err = apply(cur, next)
		return err
	})
	if err != nil {
		return nil, err
	}
	if payload == "" {
		payload = snapshot(updated)
	}

	s.committed(wctx, updated, typ, payload)
	s.log.Mutation(op, id, updated.Version, time.Since(start))
	return updated.Clone(), nil
}

// Delete removes a task. A second delete reports NOT_FOUND.
func (s *Service) Delete(ctx context.Context, id string) (err error) {
	ctx, span := s.tracer.StartTaskSpan(ctx, "delete", id)
	defer func() { s.tracer.EndTaskSpan(span, telemetry.TaskSpanOptions{TaskID: id, EventType: string(task.EventDeleted)}, err) }()

	unlock := s.locks.Lock(id)
	defer unlock()
	start := time.Now()

	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "delete task")
	}
	wctx := context.WithoutCancel(ctx)
	removed, err := s.store.Delete(wctx, id)
	if err != nil {
		return err
	}

	// The DELETED event sorts after every earlier event of the task.
	gone := removed.Clone()
	gone.Version = removed.Version + 1
	s.committed(wctx, gone, task.EventDeleted, snapshot(removed))
	s.log.Mutation("deleted", id, gone.Version, time.Since(start))
	return nil
}

// committed runs the steps that follow a durable write: index, cache
// invalidation, event append and dispatch. Nothing here fails the
// operation. The caller holds the task's lock.
func (s *Service) committed(ctx context.Context, t *task.Task, typ task.EventType, payload string) {
	var err error
	if typ == task.EventDeleted {
		err = s.indexer.Remove(t.ID)
	} else {
		err = s.indexer.Put(t)
	}
	if err != nil {
		s.log.Absorbed("index", t.ID, err)
	}

	// After the index so a listing computed past this point sees the write.
	s.tasks.Invalidate(cache.TaskKey(t.ID))
	s.lists.Invalidate(cache.DefaultListKey)

	ev, err := s.events.Append(ctx, t.ID, typ, t.Version, payload)
	if err != nil {
		s.log.Absorbed("event_append", t.ID, err)
		return
	}
	if s.dispatcher != nil {
		s.dispatcher.Enqueue(ev)
	}
}

// List returns one page of tasks. The default listing is cached.
func (s *Service) List(ctx context.Context, c task.Criteria) (p task.Page[*task.Task], err error) {
	ctx, span := s.tracer.StartTaskSpan(ctx, "list", "")
	defer func() {
		s.tracer.EndTaskSpan(span, telemetry.TaskSpanOptions{Count: len(p.Items), Query: c.Text}, err)
	}()

	if c.IsDefault() {
		p, err = s.lists.GetOrCompute(cache.DefaultListKey, func() (task.Page[*task.Task], error) {
			return s.lister.List(ctx, c)
		})
		if err != nil {
			return task.Page[*task.Task]{}, err
		}
		return clonePage(p), nil
	}
	return s.lister.List(ctx, c)
}

// ListEvents returns a task's events, newest first. A task that was deleted
// still has its history; an id with neither a task nor events is
// NOT_FOUND.
func (s *Service) ListEvents(ctx context.Context, id string, page, size int) (p task.Page[task.Event], err error) {
	ctx, span := s.tracer.StartTaskSpan(ctx, "list_events", id)
	defer func() { s.tracer.EndTaskSpan(span, telemetry.TaskSpanOptions{Count: len(p.Items)}, err) }()

	exists, err := s.store.Exists(ctx, id)
	if err != nil {
		return task.Page[task.Event]{}, err
	}
	p, err = s.events.ListByTask(ctx, id, page, size)
	if err != nil {
		return task.Page[task.Event]{}, err
	}
	if !exists && p.TotalElements == 0 {
		return task.Page[task.Event]{}, errors.TaskNotFound(id)
	}
	return p, nil
}
