package orders

import "context"

// Store persists orders. Updates are guarded by the order revision: they
// succeed only when the stored revision equals expected, and bump it by one.
type Store interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	UpdateItems(ctx context.Context, o *Order, expected int64) error
	UpdateStatus(ctx context.Context, o *Order, expected int64) error
}

type InvoiceStore interface {
	Sync(ctx context.Context, inv Invoice) error
	Get(ctx context.Context, orderID string) (*Invoice, error)
	Delete(ctx context.Context, orderID string) error
}
