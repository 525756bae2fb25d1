package stock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryLedger is a mutex-guarded Ledger for tests and STORE=memory.
type MemoryLedger struct {
	mu            sync.Mutex
	sizes         map[string]*SizeStock
	applied       map[string][]Delta
	movements     map[string][]Movement
	allowNegative bool
}

var _ Ledger = (*MemoryLedger)(nil)

func NewMemoryLedger(allowNegative bool) *MemoryLedger {
	return &MemoryLedger{
		sizes:         map[string]*SizeStock{},
		applied:       map[string][]Delta{},
		movements:     map[string][]Movement{},
		allowNegative: allowNegative,
	}
}

// Seed registers a size with an opening stock, replacing any previous value.
func (l *MemoryLedger) Seed(sizeID string, stock int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sizes[sizeID] = &SizeStock{SizeID: sizeID, Stock: stock}
}

// Remove drops a size, as when it is deleted from the catalog.
func (l *MemoryLedger) Remove(sizeID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.sizes, sizeID)
}

func (l *MemoryLedger) Stock(_ context.Context, sizeID string) (SizeStock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.sizes[sizeID]
	if !ok {
		return SizeStock{}, &SizeError{SizeID: sizeID, Err: ErrSizeNotFound}
	}
	return *s, nil
}

func (l *MemoryLedger) Adjust(ctx context.Context, sizeID string, delta int) (int, error) {
	after, err := l.apply(ctx, Batch{Key: "adjust:" + uuid.NewString(), Deltas: []Delta{{SizeID: sizeID, Delta: delta}}})
	if err != nil {
		return 0, err
	}
	return after[sizeID], nil
}

func (l *MemoryLedger) ApplyBatch(ctx context.Context, b Batch) error {
	_, err := l.apply(ctx, b)
	return err
}

func (l *MemoryLedger) apply(ctx context.Context, b Batch) (map[string]int, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, dup := l.applied[b.Key]; dup {
		return nil, ErrDuplicateBatch
	}

	net := Net(b.Deltas)
	after, err := l.commit(b.Key, net)
	if err != nil {
		return nil, err
	}
	l.applied[b.Key] = net
	return after, nil
}

func (l *MemoryLedger) Revert(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	net, ok := l.applied[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrBatchNotApplied, key)
	}
	if _, err := l.commit(key, inverse(net)); err != nil {
		return err
	}
	delete(l.applied, key)
	return nil
}

// commit checks every size before touching any of them. Callers hold mu.
func (l *MemoryLedger) commit(key string, net []Delta) (map[string]int, error) {
	after := make(map[string]int, len(net))
	for _, d := range net {
		s, ok := l.sizes[d.SizeID]
		if !ok {
			return nil, &SizeError{SizeID: d.SizeID, Delta: d.Delta, Err: ErrSizeNotFound}
		}
		next, err := checkStock(d.SizeID, s.Stock, d.Delta, l.allowNegative)
		if err != nil {
			return nil, err
		}
		after[d.SizeID] = next
	}

	now := time.Now().UTC()
	for _, d := range net {
		s := l.sizes[d.SizeID]
		s.Stock = after[d.SizeID]
		s.Version++
		l.movements[d.SizeID] = append(l.movements[d.SizeID], Movement{
			BatchKey: key, SizeID: d.SizeID, Delta: d.Delta, StockAfter: s.Stock, CreatedAt: now,
		})
	}
	return after, nil
}

func (l *MemoryLedger) Movements(_ context.Context, sizeID string, limit int) ([]Movement, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.sizes[sizeID]; !ok {
		return nil, &SizeError{SizeID: sizeID, Err: ErrSizeNotFound}
	}
	all := l.movements[sizeID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]Movement, len(all))
	copy(out, all)
	return out, nil
}
