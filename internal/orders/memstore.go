package orders

import (
	"context"
	"sync"
	"time"
)

// MemStore keeps orders in memory. It backs tests and STORE=memory.
type MemStore struct {
	mu     sync.RWMutex
	orders map[string]*Order
}

var _ Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{orders: map[string]*Order{}}
}

func (s *MemStore) Create(_ context.Context, o *Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; ok {
		return ErrAlreadyExists
	}
	now := time.Now().UTC()
	o.Revision, o.CreatedAt, o.UpdatedAt = 1, now, now
	s.orders[o.ID] = o.Clone()
	return nil
}

func (s *MemStore) Get(_ context.Context, id string) (*Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return o.Clone(), nil
}

func (s *MemStore) UpdateItems(_ context.Context, o *Order, expected int64) error {
	return s.update(o, expected, func(cur *Order) {
		cur.Items = CloneItems(o.Items)
		cur.TaxAmount = o.TaxAmount
		cur.TotalAmount = o.TotalAmount
	})
}

func (s *MemStore) UpdateStatus(_ context.Context, o *Order, expected int64) error {
	return s.update(o, expected, func(cur *Order) {
		cur.Status = o.Status
		cur.Void = o.Void
		cur.VoidReason = o.VoidReason
		cur.CancelReason = o.CancelReason
	})
}

func (s *MemStore) update(o *Order, expected int64, apply func(cur *Order)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.orders[o.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Revision != expected {
		return ErrConflict
	}
	apply(cur)
	cur.Revision++
	cur.UpdatedAt = time.Now().UTC()
	o.Revision, o.UpdatedAt = cur.Revision, cur.UpdatedAt
	return nil
}

type MemInvoices struct {
	mu       sync.RWMutex
	invoices map[string]Invoice
}

var _ InvoiceStore = (*MemInvoices)(nil)

func NewMemInvoices() *MemInvoices {
	return &MemInvoices{invoices: map[string]Invoice{}}
}

func (s *MemInvoices) Sync(_ context.Context, inv Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv.Items = CloneItems(inv.Items)
	inv.UpdatedAt = time.Now().UTC()
	s.invoices[inv.OrderID] = inv
	return nil
}

func (s *MemInvoices) Get(_ context.Context, orderID string) (*Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.invoices[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	inv.Items = CloneItems(inv.Items)
	return &inv, nil
}

func (s *MemInvoices) Delete(_ context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.invoices, orderID)
	return nil
}
