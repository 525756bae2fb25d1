package stock

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLedger keeps stock in product_sizes. Each size write is a
// compare-and-swap on product_sizes.version inside the batch transaction.
type PostgresLedger struct {
	DB            *pgxpool.Pool
	AllowNegative bool
}

var _ Ledger = (*PostgresLedger)(nil)

func (l *PostgresLedger) Stock(ctx context.Context, sizeID string) (SizeStock, error) {
	s := SizeStock{SizeID: sizeID}
	err := l.DB.QueryRow(ctx, `SELECT stock, version FROM product_sizes WHERE id=$1`, sizeID).Scan(&s.Stock, &s.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return SizeStock{}, &SizeError{SizeID: sizeID, Err: ErrSizeNotFound}
	}
	return s, err
}

func (l *PostgresLedger) Adjust(ctx context.Context, sizeID string, delta int) (int, error) {
	after, err := l.apply(ctx, Batch{Key: "adjust:" + uuid.NewString(), Deltas: []Delta{{SizeID: sizeID, Delta: delta}}})
	if err != nil {
		return 0, err
	}
	return after[sizeID], nil
}

func (l *PostgresLedger) ApplyBatch(ctx context.Context, b Batch) error {
	_, err := l.apply(ctx, b)
	return err
}

func (l *PostgresLedger) apply(ctx context.Context, b Batch) (map[string]int, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}
	tx, err := l.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// a reverted key may be applied again
	ct, err := tx.Exec(ctx, `
		INSERT INTO stock_batches(key) VALUES ($1)
		ON CONFLICT (key) DO UPDATE SET reverted=false, created_at=now()
		WHERE stock_batches.reverted`, b.Key)
	if err != nil {
		return nil, classify(err)
	}
	if ct.RowsAffected() == 0 {
		return nil, ErrDuplicateBatch
	}

	after, err := l.move(ctx, tx, b.Key, Net(b.Deltas))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, classify(err)
	}
	return after, nil
}

// Revert sums the key's journal rows, which already include any earlier
// revert, and books the inverse under the same key.
func (l *PostgresLedger) Revert(ctx context.Context, key string) error {
	tx, err := l.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ct, err := tx.Exec(ctx, `UPDATE stock_batches SET reverted=true WHERE key=$1 AND NOT reverted`, key)
	if err != nil {
		return classify(err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrBatchNotApplied, key)
	}

	rows, err := tx.Query(ctx, `
		SELECT size_id, SUM(delta)::int FROM stock_movements
		WHERE batch_key=$1 GROUP BY size_id ORDER BY size_id`, key)
	if err != nil {
		return classify(err)
	}
	var net []Delta
	for rows.Next() {
		var d Delta
		if err := rows.Scan(&d.SizeID, &d.Delta); err != nil {
			rows.Close()
			return err
		}
		net = append(net, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return classify(err)
	}

	if _, err := l.move(ctx, tx, key, inverse(net)); err != nil {
		return err
	}
	return classify(tx.Commit(ctx))
}

// move writes net deltas with a version compare-and-swap per size and
// journals each one under key.
func (l *PostgresLedger) move(ctx context.Context, tx pgx.Tx, key string, net []Delta) (map[string]int, error) {
	after := make(map[string]int, len(net))
	for _, d := range net {
		var stock int
		var version int64
		err := tx.QueryRow(ctx, `SELECT stock, version FROM product_sizes WHERE id=$1`, d.SizeID).Scan(&stock, &version)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &SizeError{SizeID: d.SizeID, Delta: d.Delta, Err: ErrSizeNotFound}
		}
		if err != nil {
			return nil, classify(err)
		}

		next, err := checkStock(d.SizeID, stock, d.Delta, l.AllowNegative)
		if err != nil {
			return nil, err
		}

		ct, err := tx.Exec(ctx, `
			UPDATE product_sizes SET stock=$2, version=version+1, updated_at=now()
			WHERE id=$1 AND version=$3`, d.SizeID, next, version)
		if err != nil {
			return nil, classify(err)
		}
		if ct.RowsAffected() != 1 {
			return nil, &SizeError{SizeID: d.SizeID, Stock: stock, Delta: d.Delta, Err: ErrConcurrencyConflict}
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO stock_movements(batch_key, size_id, delta, stock_after)
			VALUES ($1,$2,$3,$4)`, key, d.SizeID, d.Delta, next); err != nil {
			return nil, classify(err)
		}
		after[d.SizeID] = next
	}
	return after, nil
}

func (l *PostgresLedger) Movements(ctx context.Context, sizeID string, limit int) ([]Movement, error) {
	if _, err := l.Stock(ctx, sizeID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 1000
	}
	rows, err := l.DB.Query(ctx, `
		SELECT batch_key, size_id, delta, stock_after, created_at FROM (
			SELECT id, batch_key, size_id, delta, stock_after, created_at
			FROM stock_movements WHERE size_id=$1 ORDER BY id DESC LIMIT $2
		) m ORDER BY id`, sizeID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Movement
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.BatchKey, &m.SizeID, &m.Delta, &m.StockAfter, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// classify maps postgres error codes onto ledger errors.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "40001", "40P01": // serialization_failure, deadlock_detected
		return fmt.Errorf("%w: %s", ErrConcurrencyConflict, pgErr.Message)
	case "23505": // unique_violation on stock_batches.key
		return ErrDuplicateBatch
	case "23503": // foreign_key_violation on size_id
		return fmt.Errorf("%w: %s", ErrSizeNotFound, pgErr.Detail)
	}
	return err
}
