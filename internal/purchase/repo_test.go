package purchase

import (
	"context"
	"os"
	"testing"

	"github.com/ariefcatur/go-pharma-stock/internal/orders"
	"github.com/ariefcatur/go-pharma-stock/internal/postgres"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pgRepo(t *testing.T) *Repo {
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
	return &Repo{DB: pool}
}

func TestRepoPurchaseOrderLifecycle(t *testing.T) {
	ctx := context.Background()
	r := pgRepo(t)

	po := &PurchaseOrder{
		ID:       uuid.NewString(),
		VendorID: "vend-1",
		Status:   StatusPending,
		Items: []orders.OrderItem{{ProductID: "p", Sizes: []orders.SizeLine{
			{SizeID: "S", Quantity: 4, UnitPrice: decimal.RequireFromString("1.25")},
		}}},
		HandlingCharges: decimal.Zero,
		FreightCharges:  decimal.Zero,
	}
	require.NoError(t, r.Create(ctx, po))
	assert.ErrorIs(t, r.Create(ctx, po), orders.ErrAlreadyExists)

	first, err := r.NextNumber(ctx)
	require.NoError(t, err)
	second, err := r.NextNumber(ctx)
	require.NoError(t, err)
	assert.Greater(t, second, first)

	po.Status, po.OrderNumber = StatusAccepted, OrderNumber(first)
	require.NoError(t, r.Update(ctx, po, 1))
	po.Status, po.StockReceived = StatusApproved, true
	po.FreightCharges = decimal.RequireFromString("7.00")
	assert.ErrorIs(t, r.Update(ctx, po, 1), orders.ErrConflict)
	require.NoError(t, r.Update(ctx, po, 2))

	got, err := r.Get(ctx, po.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, got.Status)
	assert.True(t, got.StockReceived)
	assert.Equal(t, OrderNumber(first), got.OrderNumber)
	assert.Equal(t, "7.00", got.FreightCharges.StringFixed(2))
	assert.Equal(t, int64(3), got.Revision)

	_, err = r.Get(ctx, uuid.NewString())
	assert.ErrorIs(t, err, orders.ErrNotFound)
}
