package services

import (
	"context"
	"testing"

	"github.com/gewnthar/areasync/logging"
	"github.com/gewnthar/areasync/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeIndex(t *testing.T) {
	repo := newMemRepo()
	_, err := repo.SaveChildren(context.Background(), []models.AreaItem{item("1", "A"), item("2", "B")}, 0, 1)
	require.NoError(t, err)

	idx := NewCodeIndex()
	n, err := idx.Preload(context.Background(), repo)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, idx.Contains("1"))
	assert.False(t, idx.Contains("3"))

	idx.MarkPresent("3")
	assert.True(t, idx.Contains("3"))

	// Only true flags are stored, so trimming never evicts.
	assert.Equal(t, 0, idx.Trim())
	assert.Equal(t, 3, idx.Len())
}

func TestMemoryGuard(t *testing.T) {
	idx := NewCodeIndex()
	idx.MarkPresent("1")

	used := uint64(70)
	collected := 0
	g := NewMemoryGuard(100, idx, logging.Discard())
	g.Usage = func() uint64 { return used }
	g.Collect = func() { collected++ }

	assert.False(t, g.Check(), "70% is under the threshold")
	used = 80
	assert.False(t, g.Check(), "exactly 80% is not over it")
	used = 81
	assert.True(t, g.Check())
	assert.Equal(t, 1, collected)
	assert.Equal(t, 1, g.Reliefs())
	assert.True(t, idx.Contains("1"), "relief must not lose index entries")
}

func TestBatchSaver_EmptyBatch(t *testing.T) {
	repo := newMemRepo()
	guard := &countingGuard{}
	b := NewBatchSaver(repo, NewCodeIndex(), guard, logging.Discard())

	ids, err := b.SaveBatch(context.Background(), nil, 0, 1)
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Equal(t, 0, repo.saves)
	assert.Equal(t, 0, guard.checks)
}

func TestBatchSaver_MixedBatchMarksIndex(t *testing.T) {
	repo := newMemRepo()
	idx := NewCodeIndex()
	guard := &countingGuard{}
	b := NewBatchSaver(repo, idx, guard, logging.Discard())
	ctx := context.Background()

	first, err := b.SaveBatch(ctx, []models.AreaItem{item("1", "A")}, 0, 1)
	require.NoError(t, err)

	ids, err := b.SaveBatch(ctx, []models.AreaItem{item("2", "B"), item("1", "A"), item("3", "C")}, 0, 1)
	require.NoError(t, err)
	require.Len(t, ids, 3)
	assert.Equal(t, first["1"], ids["1"])
	assert.NotEqual(t, ids["2"], ids["3"])

	assert.True(t, idx.Contains("2"))
	assert.True(t, idx.Contains("3"))
	assert.Equal(t, 2, guard.checks, "memory is checked before every batch")

	inserted, existing := b.Counts()
	assert.Equal(t, int64(3), inserted)
	assert.Equal(t, int64(1), existing)

	// Sort follows the position in the batch the row was inserted from.
	assert.Equal(t, 1, repo.rows["2"].Sort)
	assert.Equal(t, 3, repo.rows["3"].Sort)
}

func TestBatchSaver_FailureLeavesNothing(t *testing.T) {
	repo := newMemRepo()
	repo.fail["bad"] = errDeadlock
	idx := NewCodeIndex()
	b := NewBatchSaver(repo, idx, &countingGuard{}, logging.Discard())

	ids, err := b.SaveBatch(context.Background(), []models.AreaItem{item("ok", "A"), item("bad", "B")}, 0, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, errDeadlock)
	assert.Nil(t, ids)
	assert.Empty(t, repo.rows)
	assert.False(t, idx.Contains("ok"))
}
