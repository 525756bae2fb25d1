// Package stock owns the per-size stock counters. Every path that changes
// ProductSize.stock goes through a Ledger.
package stock

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
)

var (
	ErrSizeNotFound        = errors.New("size not found")
	ErrConcurrencyConflict = errors.New("stock version conflict")
	ErrNegativeStock       = errors.New("stock would go negative")
	ErrDuplicateBatch      = errors.New("stock batch already applied")
	ErrInvalidBatch        = errors.New("invalid stock batch")
	ErrBatchNotApplied     = errors.New("stock batch not applied")
)

// Delta is a signed change to one size's stock.
type Delta struct {
	SizeID string `json:"size_id"`
	Delta  int    `json:"delta"`
}

// Batch is applied all-or-nothing. Key identifies the business transition
// that produced it; a key is accepted at most once.
type Batch struct {
	Key    string
	Deltas []Delta
}

type SizeStock struct {
	SizeID  string `json:"size_id"`
	Stock   int    `json:"stock"`
	Version int64  `json:"version"`
}

type Movement struct {
	BatchKey   string    `json:"batch_key"`
	SizeID     string    `json:"size_id"`
	Delta      int       `json:"delta"`
	StockAfter int       `json:"stock_after"`
	CreatedAt  time.Time `json:"created_at"`
}

type Ledger interface {
	Stock(ctx context.Context, sizeID string) (SizeStock, error)
	// Adjust applies a single delta as its own batch and returns the new stock.
	Adjust(ctx context.Context, sizeID string, delta int) (int, error)
	ApplyBatch(ctx context.Context, b Batch) error
	// Revert gives back the net effect of an applied batch and releases its
	// key in the same step, so the key can be applied again.
	Revert(ctx context.Context, key string) error
	Movements(ctx context.Context, sizeID string, limit int) ([]Movement, error)
}

// SizeError carries the size that made a batch fail.
type SizeError struct {
	SizeID string
	Stock  int
	Delta  int
	Err    error
}

func (e *SizeError) Error() string {
	if errors.Is(e.Err, ErrNegativeStock) {
		return fmt.Sprintf("size %s: %v (stock=%d delta=%d)", e.SizeID, e.Err, e.Stock, e.Delta)
	}
	return fmt.Sprintf("size %s: %v", e.SizeID, e.Err)
}

func (e *SizeError) Unwrap() error { return e.Err }

// Net folds deltas per size and orders them by size id. Sizes whose deltas
// cancel out are kept with Delta=0 so the size is still checked for existence.
func Net(deltas []Delta) []Delta {
	sum := make(map[string]int, len(deltas))
	for _, d := range deltas {
		sum[d.SizeID] += d.Delta
	}
	out := make([]Delta, 0, len(sum))
	for id, v := range sum {
		out = append(out, Delta{SizeID: id, Delta: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SizeID < out[j].SizeID })
	return out
}

func (b Batch) validate() error {
	if b.Key == "" {
		return fmt.Errorf("%w: missing key", ErrInvalidBatch)
	}
	if len(b.Deltas) == 0 {
		return fmt.Errorf("%w: no deltas", ErrInvalidBatch)
	}
	for _, d := range b.Deltas {
		if d.SizeID == "" {
			return fmt.Errorf("%w: delta without size id", ErrInvalidBatch)
		}
	}
	return nil
}

// inverse negates a batch's net deltas, dropping sizes it left unchanged.
func inverse(net []Delta) []Delta {
	out := make([]Delta, 0, len(net))
	for _, d := range net {
		if d.Delta != 0 {
			out = append(out, Delta{SizeID: d.SizeID, Delta: -d.Delta})
		}
	}
	return out
}

func checkStock(sizeID string, current, delta int, allowNegative bool) (int, error) {
	next := current + delta
	if next < 0 && delta < 0 && !allowNegative {
		return 0, &SizeError{SizeID: sizeID, Stock: current, Delta: delta, Err: ErrNegativeStock}
	}
	return next, nil
}
