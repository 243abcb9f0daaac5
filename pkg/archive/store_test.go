package archive

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valentinpelus/posturewatch/pkg/types"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return newStore(db), mock
}

func TestMigrate(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS feedback_entries").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsert(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return created }

	captured := time.Date(2024, 3, 1, 11, 59, 58, 0, time.UTC)
	entries := []types.FeedbackEntry{
		types.NewEntry(types.BatchIndex(1), []string{"slouching"}),
		types.NewEntry(types.LiveTimestamp(captured), nil),
	}

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO feedback_entries")
	prep.ExpectExec().
		WithArgs(sqlmock.AnyArg(), "session-1", "batch", int64(1), nil, sqlmock.AnyArg(), created).
		WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().
		WithArgs(sqlmock.AnyArg(), "session-1", "live", nil, captured, sqlmock.AnyArg(), created).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, store.Insert(context.Background(), "session-1", entries))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertRollsBackOnError(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO feedback_entries")
	prep.ExpectExec().WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := store.Insert(context.Background(), "session-1", []types.FeedbackEntry{
		types.NewEntry(types.BatchIndex(1), nil),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertNothing(t *testing.T) {
	store, mock := newMockStore(t)
	require.NoError(t, store.Insert(context.Background(), "session-1", nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStats(t *testing.T) {
	store, mock := newMockStore(t)
	latest := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count", "with_issues", "max"}).AddRow(12, 5, latest))
	mock.ExpectQuery("SELECT label, COUNT").
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"label", "count"}).
			AddRow("slouching", 4).
			AddRow("forward head", 2))

	stats, err := store.Stats(context.Background(), 3)
	require.NoError(t, err)

	assert.Equal(t, 12, stats.TotalEntries)
	assert.Equal(t, 5, stats.WithIssues)
	assert.Equal(t, map[string]int{"slouching": 4, "forward head": 2}, stats.ByIssue)
	require.NotNil(t, stats.LatestEntry)
	assert.True(t, latest.Equal(*stats.LatestEntry))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStatsEmptyArchive(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count", "with_issues", "max"}).AddRow(0, 0, nil))
	mock.ExpectQuery("SELECT label, COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"label", "count"}))

	stats, err := store.Stats(context.Background(), 5)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalEntries)
	assert.Nil(t, stats.LatestEntry)
	assert.Empty(t, stats.ByIssue)
}

type memInserter struct {
	mu      sync.Mutex
	batches map[string]int
	fail    bool
	block   chan struct{}
}

func (m *memInserter) Insert(ctx context.Context, sessionID string, entries []types.FeedbackEntry) error {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("unavailable")
	}
	if m.batches == nil {
		m.batches = make(map[string]int)
	}
	m.batches[sessionID] += len(entries)
	return nil
}

func (m *memInserter) Count(sessionID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.batches[sessionID]
}

func TestWriterInsertsQueuedEntries(t *testing.T) {
	ins := &memInserter{}
	w := NewWriter(ins, 8)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	w.Record("a", []types.FeedbackEntry{types.NewEntry(types.BatchIndex(1), nil)})
	w.Record("a", []types.FeedbackEntry{types.NewEntry(types.BatchIndex(2), []string{"slouching"})})
	w.Record("a", nil)

	assert.Eventually(t, func() bool { return ins.Count("a") == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
	assert.Equal(t, uint64(2), w.Written())
	assert.Zero(t, w.Dropped())
}

func TestWriterDropsWhenFull(t *testing.T) {
	ins := &memInserter{}
	w := NewWriter(ins, 1)

	entry := []types.FeedbackEntry{types.NewEntry(types.BatchIndex(1), nil)}
	w.Record("a", entry)
	w.Record("a", entry)
	assert.Equal(t, uint64(1), w.Dropped())

	// cancelled before start: Run only flushes what is queued
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, w.Run(ctx))
	assert.Equal(t, 1, ins.Count("a"))
}

func TestWriterCountsFailedInserts(t *testing.T) {
	ins := &memInserter{fail: true}
	w := NewWriter(ins, 4)

	w.Record("a", []types.FeedbackEntry{types.NewEntry(types.BatchIndex(1), nil), types.NewEntry(types.BatchIndex(2), nil)})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, w.Run(ctx))
	assert.Equal(t, uint64(2), w.Dropped())
	assert.Zero(t, w.Written())
}
