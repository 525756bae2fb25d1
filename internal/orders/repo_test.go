package orders

import (
	"context"
	"os"
	"testing"

	"github.com/ariefcatur/go-pharma-stock/internal/postgres"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pgPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	pool, err := postgres.Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, postgres.Migrate(ctx, pool))
	return pool
}

func TestRepoRoundTripAndRevisionGuard(t *testing.T) {
	ctx := context.Background()
	r := &Repo{DB: pgPool(t)}

	o := &Order{ID: uuid.NewString(), CustomerID: "c1", Status: StatusNew}
	o.ApplyItems([]OrderItem{item("p1", line("s1", 2, "4.50"))}, decimal.RequireFromString("0.90"))
	require.NoError(t, r.Create(ctx, o))
	assert.Equal(t, int64(1), o.Revision)
	assert.ErrorIs(t, r.Create(ctx, o), ErrAlreadyExists)

	got, err := r.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "9.90", got.TotalAmount.StringFixed(2))
	assert.Equal(t, 2, got.Items[0].Sizes[0].Quantity)

	o.ApplyItems([]OrderItem{item("p1", line("s1", 3, "4.50"))}, decimal.Zero)
	require.NoError(t, r.UpdateItems(ctx, o, 1))
	assert.Equal(t, int64(2), o.Revision)

	o.Status, o.CancelReason = StatusCancelled, "late"
	assert.ErrorIs(t, r.UpdateStatus(ctx, o, 1), ErrConflict)
	require.NoError(t, r.UpdateStatus(ctx, o, 2))

	got, err = r.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
	assert.Equal(t, "late", got.CancelReason)
	assert.Equal(t, int64(3), got.Revision)

	_, err = r.Get(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, r.UpdateStatus(ctx, &Order{ID: uuid.NewString()}, 1), ErrNotFound)
}

func TestInvoiceRepoSyncAndDelete(t *testing.T) {
	ctx := context.Background()
	pool := pgPool(t)
	r := &InvoiceRepo{DB: pool}

	o := &Order{ID: uuid.NewString(), CustomerID: "c1", Status: StatusNew}
	o.ApplyItems([]OrderItem{item("p1", line("s1", 1, "10"))}, decimal.Zero)
	require.NoError(t, r.Sync(ctx, InvoiceFromOrder(o)))

	o.Void = true
	require.NoError(t, r.Sync(ctx, InvoiceFromOrder(o)))
	inv, err := r.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, inv.Void)
	assert.Equal(t, "10.00", inv.TotalAmount.StringFixed(2))

	require.NoError(t, r.Delete(ctx, o.ID))
	_, err = r.Get(ctx, o.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
