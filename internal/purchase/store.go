package purchase

import (
	"context"
	"sync"
	"time"

	"github.com/ariefcatur/go-pharma-stock/internal/orders"
)

// Store persists purchase orders with the same revision guard as orders.Store.
type Store interface {
	Create(ctx context.Context, po *PurchaseOrder) error
	Get(ctx context.Context, id string) (*PurchaseOrder, error)
	Update(ctx context.Context, po *PurchaseOrder, expected int64) error
	NextNumber(ctx context.Context) (int64, error)
}

type MemStore struct {
	mu  sync.RWMutex
	pos map[string]*PurchaseOrder
	seq int64
}

var _ Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{pos: map[string]*PurchaseOrder{}}
}

func (s *MemStore) Create(_ context.Context, po *PurchaseOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pos[po.ID]; ok {
		return orders.ErrAlreadyExists
	}
	now := time.Now().UTC()
	po.Revision, po.CreatedAt, po.UpdatedAt = 1, now, now
	s.pos[po.ID] = po.Clone()
	return nil
}

func (s *MemStore) Get(_ context.Context, id string) (*PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	po, ok := s.pos[id]
	if !ok {
		return nil, orders.ErrNotFound
	}
	return po.Clone(), nil
}

func (s *MemStore) Update(_ context.Context, po *PurchaseOrder, expected int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.pos[po.ID]
	if !ok {
		return orders.ErrNotFound
	}
	if cur.Revision != expected {
		return orders.ErrConflict
	}
	next := po.Clone()
	next.Revision = cur.Revision + 1
	next.CreatedAt = cur.CreatedAt
	next.UpdatedAt = time.Now().UTC()
	s.pos[po.ID] = next
	po.Revision, po.UpdatedAt = next.Revision, next.UpdatedAt
	return nil
}

func (s *MemStore) NextNumber(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq, nil
}
