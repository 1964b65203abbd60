package eventlog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vinayprograms/taskapi/errors"
	"github.com/vinayprograms/taskapi/store"
	"github.com/vinayprograms/taskapi/task"
)

func newTestLog(t *testing.T, opts ...Option) *Log {
	t.Helper()
	ctx := context.Background()
	s, err := store.Open(ctx, filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	l, err := NewLog(ctx, s.DB(), opts...)
	require.NoError(t, err)
	return l
}

func TestAppend(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := newTestLog(t, WithClock(func() time.Time { return now }))

	ev, err := l.Append(context.Background(), "t1", task.EventCreated, 0, `{"id":"t1"}`)
	require.NoError(t, err)
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, "t1", ev.TaskID)
	assert.Equal(t, task.EventCreated, ev.Type)
	assert.Equal(t, int64(0), ev.TaskVersion)
	assert.Equal(t, `{"id":"t1"}`, ev.Payload)
	assert.True(t, ev.CreatedAt.Equal(now))

	page, err := l.ListByTask(context.Background(), "t1", 0, 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, *ev, page.Items[0])
}

func TestListByTaskNewestFirst(t *testing.T) {
	// Identical timestamps: ordering must come from the task version.
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := newTestLog(t, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	_, err := l.Append(ctx, "t1", task.EventCreated, 0, "{}")
	require.NoError(t, err)
	_, err = l.Append(ctx, "other", task.EventCreated, 0, "{}")
	require.NoError(t, err)
	_, err = l.Append(ctx, "t1", task.EventUpdated, 1, "{}")
	require.NoError(t, err)
	_, err = l.Append(ctx, "t1", task.EventDeleted, 2, "{}")
	require.NoError(t, err)

	page, err := l.ListByTask(ctx, "t1", 0, 20)
	require.NoError(t, err)

	var types []task.EventType
	for _, ev := range page.Items {
		assert.Equal(t, "t1", ev.TaskID)
		types = append(types, ev.Type)
	}
	assert.Equal(t, []task.EventType{task.EventDeleted, task.EventUpdated, task.EventCreated}, types)
	assert.Equal(t, int64(3), page.TotalElements)
}

func TestListByTaskPagination(t *testing.T) {
	l := newTestLog(t)
	ctx := context.Background()
	for v := int64(0); v < 5; v++ {
		_, err := l.Append(ctx, "t1", task.EventUpdated, v, "{}")
		require.NoError(t, err)
	}

	first, err := l.ListByTask(ctx, "t1", 0, 2)
	require.NoError(t, err)
	assert.Len(t, first.Items, 2)
	assert.Equal(t, int64(4), first.Items[0].TaskVersion)
	assert.Equal(t, 3, first.TotalPages)
	assert.True(t, first.First)
	assert.False(t, first.Last)

	last, err := l.ListByTask(ctx, "t1", 2, 2)
	require.NoError(t, err)
	assert.Len(t, last.Items, 1)
	assert.Equal(t, int64(0), last.Items[0].TaskVersion)
	assert.True(t, last.Last)

	beyond, err := l.ListByTask(ctx, "t1", 9, 2)
	require.NoError(t, err)
	assert.Empty(t, beyond.Items)
	assert.Equal(t, int64(5), beyond.TotalElements)
}

func TestListByTaskOffsetOverflow(t *testing.T) {
	l := newTestLog(t)
	ctx := context.Background()
	for v := int64(0); v < 3; v++ {
		_, err := l.Append(ctx, "t1", task.EventUpdated, v, "{}")
		require.NoError(t, err)
	}

	page, err := l.ListByTask(ctx, "t1", 92233720368547759, 100)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Equal(t, int64(3), page.TotalElements)
	assert.Equal(t, 92233720368547759, page.Page)
	assert.True(t, page.Last)
}

func TestListByTaskValidation(t *testing.T) {
	l := newTestLog(t)

	_, err := l.ListByTask(context.Background(), "t1", -1, 10)
	assert.True(t, errors.IsValidation(err))

	page, err := l.ListByTask(context.Background(), "t1", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, task.DefaultPageSize, page.Size)
	assert.NotNil(t, page.Items)
}

func TestPruneBefore(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := now
	l := newTestLog(t, WithClock(func() time.Time { return clock }))
	ctx := context.Background()

	_, err := l.Append(ctx, "t1", task.EventCreated, 0, "{}")
	require.NoError(t, err)
	clock = now.Add(48 * time.Hour)
	_, err = l.Append(ctx, "t1", task.EventUpdated, 1, "{}")
	require.NoError(t, err)

	n, err := Retention{Log: l, MaxAge: 24 * time.Hour}.Sweep(ctx, clock)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	page, err := l.ListByTask(ctx, "t1", 0, 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, task.EventUpdated, page.Items[0].Type)

	n, err = Retention{Log: l}.Sweep(ctx, clock.Add(time.Hour*1000))
	require.NoError(t, err)
	assert.Zero(t, n, "zero max age keeps everything")
}
