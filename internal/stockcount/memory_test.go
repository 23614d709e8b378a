package stockcount_test

import (
	"context"
	"fmt"
	"sync"

	"github.com/odyssey-erp/odyssey-stock/internal/shared"
	"github.com/odyssey-erp/odyssey-stock/internal/stockcount"
)

type memoryRepo struct {
	mu        sync.Mutex
	counts    map[int64]stockcount.Count
	nextCount int64
	nextItem  int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{counts: make(map[int64]stockcount.Count)}
}

func clone(c stockcount.Count) stockcount.Count {
	items := make([]stockcount.Item, len(c.Items))
	copy(items, c.Items)
	c.Items = items
	return c
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, stockcount.TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	saved := make(map[int64]stockcount.Count, len(m.counts))
	for id, c := range m.counts {
		saved[id] = clone(c)
	}
	nextCount, nextItem := m.nextCount, m.nextItem
	if err := fn(ctx, memoryTx{m}); err != nil {
		m.counts = saved
		m.nextCount, m.nextItem = nextCount, nextItem
		return err
	}
	return nil
}

func (m *memoryRepo) Get(_ context.Context, tenantID, id int64) (stockcount.Count, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memoryTx{m}.find(tenantID, id)
}

type memoryTx struct {
	m *memoryRepo
}

func (t memoryTx) find(tenantID, id int64) (stockcount.Count, error) {
	c, ok := t.m.counts[id]
	if !ok || c.TenantID != tenantID {
		return stockcount.Count{}, shared.NotFound("stock count", id)
	}
	return clone(c), nil
}

func (t memoryTx) GetForUpdate(_ context.Context, tenantID, id int64) (stockcount.Count, error) {
	return t.find(tenantID, id)
}

func (t memoryTx) Insert(_ context.Context, c stockcount.Count) (stockcount.Count, error) {
	t.m.nextCount++
	c.ID = t.m.nextCount
	t.m.counts[c.ID] = clone(c)
	return c, nil
}

func (t memoryTx) UpdateHeader(_ context.Context, c stockcount.Count) error {
	current, ok := t.m.counts[c.ID]
	if !ok {
		return shared.NotFound("stock count", c.ID)
	}
	items := current.Items
	c.Items = items
	t.m.counts[c.ID] = c
	return nil
}

func (t memoryTx) InsertItem(_ context.Context, item stockcount.Item) (stockcount.Item, error) {
	c, ok := t.m.counts[item.CountID]
	if !ok {
		return stockcount.Item{}, shared.NotFound("stock count", item.CountID)
	}
	t.m.nextItem++
	item.ID = t.m.nextItem
	c.Items = append(c.Items, item)
	t.m.counts[c.ID] = c
	return item, nil
}

func (t memoryTx) UpdateItem(_ context.Context, item stockcount.Item) error {
	c, ok := t.m.counts[item.CountID]
	if !ok {
		return shared.NotFound("stock count", item.CountID)
	}
	for i := range c.Items {
		if c.Items[i].ID == item.ID {
			c.Items[i] = item
			return nil
		}
	}
	return shared.NotFound("stock count item", item.ID)
}

type seqNumbers struct {
	mu sync.Mutex
	n  int
}

func (s *seqNumbers) Next(_ context.Context, _ int64, prefix string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("%s-%04d", prefix, s.n), nil
}
