package query

import (
	"context"

	"github.com/vinayprograms/taskapi/errors"
	"github.com/vinayprograms/taskapi/logging"
	"github.com/vinayprograms/taskapi/task"
)

// rebuildBatch bounds the documents buffered per bleve batch.
const rebuildBatch = 500

// Source is the task store as seen by the engine.
type Source interface {
	ListByIDs(ctx context.Context, ids []string) ([]*task.Task, error)
	Scan(ctx context.Context, fn func(*task.Task) error) error
}

// Engine runs two-phase listings.
type Engine struct {
	index *Index
	src   Source
	log   *logging.Logger
}

// NewEngine creates an engine over index and src.
func NewEngine(index *Index, src Source, log *logging.Logger) *Engine {
	if log == nil {
		log = logging.Nop()
	}
	return &Engine{index: index, src: src, log: log.WithComponent("query")}
}

// Index returns the phase-one index, which the service keeps current.
func (e *Engine) Index() *Index {
	return e.index
}

// List returns one page of tasks matching c. Tasks deleted between the two
// phases are dropped from the page without substitutes; totals come from
// phase one.
func (e *Engine) List(ctx context.Context, c task.Criteria) (task.Page[*task.Task], error) {
	c, err := c.Normalize()
	if err != nil {
		return task.Page[*task.Task]{}, err
	}

	ids, total, err := e.index.Search(ctx, c)
	if err != nil {
		return task.Page[*task.Task]{}, errors.Wrap(err, "select task ids")
	}
	if len(ids) == 0 {
		return task.NewPage[*task.Task](nil, c.Page, c.Size, total), nil
	}

	items, err := e.src.ListByIDs(ctx, ids)
	if err != nil {
		return task.Page[*task.Task]{}, err
	}
	if dropped := len(ids) - len(items); dropped > 0 {
		e.log.Debug("hydration_dropped", map[string]interface{}{"count": dropped})
	}
	return task.NewPage(items, c.Page, c.Size, total), nil
}

// Rebuild indexes every stored task in batches.
func (e *Engine) Rebuild(ctx context.Context) (int, error) {
	b := e.index.idx.NewBatch()
	n := 0
	flush := func() error {
		if b.Size() == 0 {
			return nil
		}
		if err := e.index.idx.Batch(b); err != nil {
			return errors.Wrap(err, "index batch")
		}
		b.Reset()
		return nil
	}

	err := e.src.Scan(ctx, func(t *task.Task) error {
		if err := b.Index(t.ID, document(t)); err != nil {
			return errors.Wrap(err, "index task")
		}
		n++
		if b.Size() >= rebuildBatch {
			return flush()
		}
		return nil
	})
	if err != nil {
		return n, err
	}
	if err := flush(); err != nil {
		return n, err
	}
	e.log.Info("index_rebuilt", map[string]interface{}{"tasks": n})
	return n, nil
}
