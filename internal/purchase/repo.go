package purchase

import (
	"context"
	"errors"
	"fmt"
	"github.com/ariefcatur/go-pharma-stock/internal/orders"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ DB *pgxpool.Pool }

var _ Store = (*Repo)(nil)

func (r *Repo) Create(ctx context.Context, po *PurchaseOrder) error {
	items, err := orders.EncodeItems(po.Items)
	if err != nil {
		return err
	}
	po.Revision = 1
	err = r.DB.QueryRow(ctx, `
		INSERT INTO purchase_orders(id, vendor_id, order_number, status, items,
		                            handling_charges, freight_charges, stock_received, revision)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at, updated_at`,
		po.ID, po.VendorID, po.OrderNumber, string(po.Status), items,
		po.HandlingCharges, po.FreightCharges, po.StockReceived, po.Revision,
	).Scan(&po.CreatedAt, &po.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return orders.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert purchase order: %w", err)
	}
	return nil
}

func (r *Repo) Get(ctx context.Context, id string) (*PurchaseOrder, error) {
	var (
		po     PurchaseOrder
		status string
		items  []byte
	)
	err := r.DB.QueryRow(ctx, `
		SELECT id, vendor_id, order_number, status, items, handling_charges, freight_charges,
		       stock_received, revision, created_at, updated_at
		FROM purchase_orders WHERE id=$1`, id,
	).Scan(&po.ID, &po.VendorID, &po.OrderNumber, &status, &items, &po.HandlingCharges, &po.FreightCharges,
		&po.StockReceived, &po.Revision, &po.CreatedAt, &po.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, orders.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	po.Status = Status(status)
	if po.Items, err = orders.DecodeItems(items); err != nil {
		return nil, err
	}
	return &po, nil
}

func (r *Repo) Update(ctx context.Context, po *PurchaseOrder, expected int64) error {
	err := r.DB.QueryRow(ctx, `
		UPDATE purchase_orders SET order_number=$2, status=$3, handling_charges=$4, freight_charges=$5,
		       stock_received=$6, revision=revision+1, updated_at=now()
		WHERE id=$1 AND revision=$7
		RETURNING revision, updated_at`,
		po.ID, po.OrderNumber, string(po.Status), po.HandlingCharges, po.FreightCharges,
		po.StockReceived, expected,
	).Scan(&po.Revision, &po.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if err := r.DB.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM purchase_orders WHERE id=$1)`, po.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return orders.ErrNotFound
		}
		return orders.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("update purchase order %s: %w", po.ID, err)
	}
	return nil
}

// NextNumber draws from a sequence so numbers stay unique across replicas.
func (r *Repo) NextNumber(ctx context.Context) (int64, error) {
	var n int64
	err := r.DB.QueryRow(ctx, `SELECT nextval('purchase_order_number_seq')`).Scan(&n)
	return n, err
}
