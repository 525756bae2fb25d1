package stock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func seeded(t *testing.T, allowNegative bool, stocks map[string]int) *MemoryLedger {
	t.Helper()
	l := NewMemoryLedger(allowNegative)
	for id, s := range stocks {
		l.Seed(id, s)
	}
	return l
}

func stockOf(t *testing.T, l Ledger, id string) int {
	t.Helper()
	s, err := l.Stock(context.Background(), id)
	require.NoError(t, err)
	return s.Stock
}

func TestNetFoldsAndSorts(t *testing.T) {
	got := Net([]Delta{
		{SizeID: "b", Delta: 10},
		{SizeID: "a", Delta: -3},
		{SizeID: "b", Delta: -10},
		{SizeID: "a", Delta: -2},
	})
	assert.Equal(t, []Delta{{SizeID: "a", Delta: -5}, {SizeID: "b", Delta: 0}}, got)
}

func TestApplyBatchCommitsAllDeltas(t *testing.T) {
	ctx := context.Background()
	l := seeded(t, false, map[string]int{"s1": 10, "s2": 5})

	err := l.ApplyBatch(ctx, Batch{Key: "k1", Deltas: []Delta{{"s1", -4}, {"s2", 3}}})
	require.NoError(t, err)

	assert.Equal(t, 6, stockOf(t, l, "s1"))
	assert.Equal(t, 8, stockOf(t, l, "s2"))
	s, _ := l.Stock(ctx, "s1")
	assert.Equal(t, int64(1), s.Version)
}

func TestApplyBatchNegativeRejectsWholeBatch(t *testing.T) {
	ctx := context.Background()
	l := seeded(t, false, map[string]int{"s1": 10, "s2": 1})

	err := l.ApplyBatch(ctx, Batch{Key: "k1", Deltas: []Delta{{"s1", -4}, {"s2", -2}}})
	require.ErrorIs(t, err, ErrNegativeStock)

	var se *SizeError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "s2", se.SizeID)
	assert.Equal(t, 1, se.Stock)

	assert.Equal(t, 10, stockOf(t, l, "s1"), "no delta of a failed batch may land")
	assert.Equal(t, 1, stockOf(t, l, "s2"))

	// the key was not consumed by the failed attempt
	require.NoError(t, l.ApplyBatch(ctx, Batch{Key: "k1", Deltas: []Delta{{"s1", -4}}}))
	assert.Equal(t, 6, stockOf(t, l, "s1"))
}

func TestApplyBatchAllowNegative(t *testing.T) {
	l := seeded(t, true, map[string]int{"s1": 1})
	require.NoError(t, l.ApplyBatch(context.Background(), Batch{Key: "k", Deltas: []Delta{{"s1", -3}}}))
	assert.Equal(t, -2, stockOf(t, l, "s1"))
}

func TestApplyBatchMissingSizeAborts(t *testing.T) {
	l := seeded(t, false, map[string]int{"s1": 10})

	err := l.ApplyBatch(context.Background(), Batch{Key: "k", Deltas: []Delta{{"s1", -1}, {"gone", 1}}})
	require.ErrorIs(t, err, ErrSizeNotFound)
	assert.Equal(t, 10, stockOf(t, l, "s1"))
}

func TestApplyBatchDuplicateKey(t *testing.T) {
	ctx := context.Background()
	l := seeded(t, false, map[string]int{"s1": 10})

	b := Batch{Key: "order:1:create:r0", Deltas: []Delta{{"s1", -2}}}
	require.NoError(t, l.ApplyBatch(ctx, b))
	require.ErrorIs(t, l.ApplyBatch(ctx, b), ErrDuplicateBatch)
	assert.Equal(t, 8, stockOf(t, l, "s1"))
}

func TestRevertReleasesKey(t *testing.T) {
	ctx := context.Background()
	l := seeded(t, false, map[string]int{"s1": 10, "s2": 4})

	b := Batch{Key: "order:1:cancel:r2", Deltas: []Delta{{"s1", 3}, {"s2", -1}, {"s2", 1}}}
	require.NoError(t, l.ApplyBatch(ctx, b))
	require.NoError(t, l.Revert(ctx, b.Key))
	assert.Equal(t, 10, stockOf(t, l, "s1"))
	assert.Equal(t, 4, stockOf(t, l, "s2"))

	require.NoError(t, l.ApplyBatch(ctx, b), "a reverted key is free again")
	assert.Equal(t, 13, stockOf(t, l, "s1"))
	assert.ErrorIs(t, l.ApplyBatch(ctx, b), ErrDuplicateBatch)

	ms, err := l.Movements(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, ms, 3)
	assert.Equal(t, -3, ms[1].Delta)
	assert.Equal(t, b.Key, ms[1].BatchKey)
}

func TestRevertUnknownOrRevertedKey(t *testing.T) {
	ctx := context.Background()
	l := seeded(t, false, map[string]int{"s1": 10})

	assert.ErrorIs(t, l.Revert(ctx, "never"), ErrBatchNotApplied)

	require.NoError(t, l.ApplyBatch(ctx, Batch{Key: "k", Deltas: []Delta{{"s1", -2}}}))
	require.NoError(t, l.Revert(ctx, "k"))
	assert.ErrorIs(t, l.Revert(ctx, "k"), ErrBatchNotApplied)
	assert.Equal(t, 10, stockOf(t, l, "s1"))
}

func TestRevertKeepsKeyWhenStockIsGone(t *testing.T) {
	ctx := context.Background()
	l := seeded(t, false, map[string]int{"s1": 0})

	require.NoError(t, l.ApplyBatch(ctx, Batch{Key: "po:1:approve", Deltas: []Delta{{"s1", 5}}}))
	_, err := l.Adjust(ctx, "s1", -4)
	require.NoError(t, err)

	require.ErrorIs(t, l.Revert(ctx, "po:1:approve"), ErrNegativeStock)
	assert.Equal(t, 1, stockOf(t, l, "s1"))
	assert.ErrorIs(t, l.ApplyBatch(ctx, Batch{Key: "po:1:approve", Deltas: []Delta{{"s1", 5}}}), ErrDuplicateBatch)
}

func TestApplyBatchReverseThenApplyNetsFirst(t *testing.T) {
	// stock 0 after an order took everything; editing 10 -> 8 must pass
	// because the reversal lands in the same batch.
	l := seeded(t, false, map[string]int{"s1": 0})
	err := l.ApplyBatch(context.Background(), Batch{Key: "edit", Deltas: []Delta{{"s1", 10}, {"s1", -8}}})
	require.NoError(t, err)
	assert.Equal(t, 2, stockOf(t, l, "s1"))
}

func TestApplyBatchInvalid(t *testing.T) {
	l := seeded(t, false, map[string]int{"s1": 1})
	ctx := context.Background()
	assert.ErrorIs(t, l.ApplyBatch(ctx, Batch{Deltas: []Delta{{"s1", 1}}}), ErrInvalidBatch)
	assert.ErrorIs(t, l.ApplyBatch(ctx, Batch{Key: "k"}), ErrInvalidBatch)
	assert.ErrorIs(t, l.ApplyBatch(ctx, Batch{Key: "k", Deltas: []Delta{{"", 1}}}), ErrInvalidBatch)
}

func TestAdjustConcurrentNoLostUpdates(t *testing.T) {
	l := seeded(t, false, map[string]int{"s1": 1000})
	var g errgroup.Group
	for i := 0; i < 100; i++ {
		g.Go(func() error {
			_, err := l.Adjust(context.Background(), "s1", -3)
			return err
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, 700, stockOf(t, l, "s1"))
}

func TestMovementsJournal(t *testing.T) {
	ctx := context.Background()
	l := seeded(t, false, map[string]int{"s1": 10})
	for i := 0; i < 3; i++ {
		require.NoError(t, l.ApplyBatch(ctx, Batch{Key: fmt.Sprintf("k%d", i), Deltas: []Delta{{"s1", -1}}}))
	}
	ms, err := l.Movements(ctx, "s1", 2)
	require.NoError(t, err)
	require.Len(t, ms, 2)
	assert.Equal(t, "k1", ms[0].BatchKey)
	assert.Equal(t, 7, ms[1].StockAfter)

	_, err = l.Movements(ctx, "nope", 0)
	assert.ErrorIs(t, err, ErrSizeNotFound)
}

type flakyLedger struct {
	*MemoryLedger
	mu        sync.Mutex
	conflicts int
	calls     int
}

func (f *flakyLedger) ApplyBatch(ctx context.Context, b Batch) error {
	f.mu.Lock()
	f.calls++
	fail := f.calls <= f.conflicts
	f.mu.Unlock()
	if fail {
		return &SizeError{SizeID: "s1", Err: ErrConcurrencyConflict}
	}
	return f.MemoryLedger.ApplyBatch(ctx, b)
}

func TestRetryingResubmitsOnConflict(t *testing.T) {
	inner := &flakyLedger{MemoryLedger: seeded(t, false, map[string]int{"s1": 10}), conflicts: 2}
	r := NewRetrying(inner, 3, time.Millisecond, nil)

	require.NoError(t, r.ApplyBatch(context.Background(), Batch{Key: "k", Deltas: []Delta{{"s1", -1}}}))
	assert.Equal(t, 3, inner.calls)
	assert.Equal(t, 9, stockOf(t, inner, "s1"))
}

func TestRetryingGivesUp(t *testing.T) {
	inner := &flakyLedger{MemoryLedger: seeded(t, false, map[string]int{"s1": 10}), conflicts: 5}
	r := NewRetrying(inner, 2, time.Millisecond, nil)

	err := r.ApplyBatch(context.Background(), Batch{Key: "k", Deltas: []Delta{{"s1", -1}}})
	require.ErrorIs(t, err, ErrConcurrencyConflict)
	assert.Equal(t, 2, inner.calls)
	assert.Equal(t, 10, stockOf(t, inner, "s1"))
}

func TestRetryingDoesNotRetryOtherErrors(t *testing.T) {
	inner := &flakyLedger{MemoryLedger: seeded(t, false, map[string]int{"s1": 1})}
	r := NewRetrying(inner, 5, time.Millisecond, nil)

	err := r.ApplyBatch(context.Background(), Batch{Key: "k", Deltas: []Delta{{"s1", -2}}})
	require.ErrorIs(t, err, ErrNegativeStock)
	assert.Equal(t, 1, inner.calls)
}

func TestRetryingRevert(t *testing.T) {
	inner := &flakyLedger{MemoryLedger: seeded(t, false, map[string]int{"s1": 10})}
	r := NewRetrying(inner, 3, time.Millisecond, nil)
	ctx := context.Background()

	require.NoError(t, r.ApplyBatch(ctx, Batch{Key: "k", Deltas: []Delta{{"s1", -4}}}))
	require.NoError(t, r.Revert(ctx, "k"))
	assert.Equal(t, 10, stockOf(t, inner, "s1"))
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", Outcome(nil))
	assert.Equal(t, "negative_stock", Outcome(&SizeError{Err: ErrNegativeStock}))
	assert.Equal(t, "conflict", Outcome(fmt.Errorf("wrap: %w", ErrConcurrencyConflict)))
	assert.Equal(t, "not_applied", Outcome(fmt.Errorf("%w: k", ErrBatchNotApplied)))
	assert.Equal(t, "error", Outcome(errors.New("boom")))
}
