package orders

import (
	"context"
	"errors"
	"fmt"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"time"
)

type Repo struct{ DB *pgxpool.Pool }

var _ Store = (*Repo)(nil)

func (r *Repo) Create(ctx context.Context, o *Order) error {
	items, err := EncodeItems(o.Items)
	if err != nil {
		return err
	}
	o.Revision = 1
	err = r.DB.QueryRow(ctx, `
		INSERT INTO orders(id, customer_id, status, void, items, tax_amount, total_amount, revision)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at, updated_at`,
		o.ID, o.CustomerID, string(o.Status), o.Void, items, o.TaxAmount, o.TotalAmount, o.Revision,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r *Repo) Get(ctx context.Context, id string) (*Order, error) {
	var (
		o      Order
		status string
		items  []byte
	)
	err := r.DB.QueryRow(ctx, `
		SELECT id, customer_id, status, void, void_reason, cancel_reason, items,
		       tax_amount, total_amount, revision, created_at, updated_at
		FROM orders WHERE id=$1`, id,
	).Scan(&o.ID, &o.CustomerID, &status, &o.Void, &o.VoidReason, &o.CancelReason, &items,
		&o.TaxAmount, &o.TotalAmount, &o.Revision, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	o.Status = Status(status)
	if o.Items, err = DecodeItems(items); err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *Repo) UpdateItems(ctx context.Context, o *Order, expected int64) error {
	items, err := EncodeItems(o.Items)
	if err != nil {
		return err
	}
	row := r.DB.QueryRow(ctx, `
		UPDATE orders SET items=$2, tax_amount=$3, total_amount=$4, revision=revision+1, updated_at=now()
		WHERE id=$1 AND revision=$5
		RETURNING revision, updated_at`,
		o.ID, items, o.TaxAmount, o.TotalAmount, expected)
	return r.finishUpdate(ctx, o, row)
}

func (r *Repo) UpdateStatus(ctx context.Context, o *Order, expected int64) error {
	row := r.DB.QueryRow(ctx, `
		UPDATE orders SET status=$2, void=$3, void_reason=$4, cancel_reason=$5,
		       revision=revision+1, updated_at=now()
		WHERE id=$1 AND revision=$6
		RETURNING revision, updated_at`,
		o.ID, string(o.Status), o.Void, o.VoidReason, o.CancelReason, expected)
	return r.finishUpdate(ctx, o, row)
}

func (r *Repo) finishUpdate(ctx context.Context, o *Order, row pgx.Row) error {
	var (
		rev int64
		at  time.Time
	)
	err := row.Scan(&rev, &at)
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if err := r.DB.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE id=$1)`, o.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("update order %s: %w", o.ID, err)
	}
	o.Revision, o.UpdatedAt = rev, at
	return nil
}

type InvoiceRepo struct{ DB *pgxpool.Pool }

var _ InvoiceStore = (*InvoiceRepo)(nil)

func (r *InvoiceRepo) Sync(ctx context.Context, inv Invoice) error {
	items, err := EncodeItems(inv.Items)
	if err != nil {
		return err
	}
	_, err = r.DB.Exec(ctx, `
		INSERT INTO invoices(order_id, invoice_number, items, subtotal, tax_amount,
		                     handling_charges, freight_charges, total_amount, void, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,now())
		ON CONFLICT (order_id) DO UPDATE SET
			invoice_number=EXCLUDED.invoice_number, items=EXCLUDED.items, subtotal=EXCLUDED.subtotal,
			tax_amount=EXCLUDED.tax_amount, handling_charges=EXCLUDED.handling_charges,
			freight_charges=EXCLUDED.freight_charges, total_amount=EXCLUDED.total_amount,
			void=EXCLUDED.void, updated_at=now()`,
		inv.OrderID, inv.InvoiceNumber, items, inv.Subtotal, inv.TaxAmount,
		inv.HandlingCharges, inv.FreightCharges, inv.TotalAmount, inv.Void)
	if err != nil {
		return fmt.Errorf("sync invoice %s: %w", inv.OrderID, err)
	}
	return nil
}

func (r *InvoiceRepo) Get(ctx context.Context, orderID string) (*Invoice, error) {
	var (
		inv   Invoice
		items []byte
	)
	err := r.DB.QueryRow(ctx, `
		SELECT order_id, invoice_number, items, subtotal, tax_amount, handling_charges,
		       freight_charges, total_amount, void, updated_at
		FROM invoices WHERE order_id=$1`, orderID,
	).Scan(&inv.OrderID, &inv.InvoiceNumber, &items, &inv.Subtotal, &inv.TaxAmount, &inv.HandlingCharges,
		&inv.FreightCharges, &inv.TotalAmount, &inv.Void, &inv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if inv.Items, err = DecodeItems(items); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *InvoiceRepo) Delete(ctx context.Context, orderID string) error {
	_, err := r.DB.Exec(ctx, `DELETE FROM invoices WHERE order_id=$1`, orderID)
	return err
}
