package snapshot

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/abgdnv/shopassist/internal/catalog"
)

// inMemory implements Store using a slice. It is used by tests and the local chat binary.
type inMemory struct {
	mu      sync.RWMutex
	records []Record
	nextID  int64
	now     func() time.Time
}

// NewInMemoryStore creates a new instance of Store
func NewInMemoryStore() Store {
	return &inMemory{nextID: 1, now: time.Now}
}

func (s *inMemory) Record(_ context.Context, batchID, sku string, product catalog.ProductRecord) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := capture(batchID, sku, product)
	r.ID = s.nextID
	r.CreatedAt = s.now()
	s.nextID++
	s.records = append(s.records, r)
	return &r, nil
}

func (s *inMemory) Pending(_ context.Context, batchID string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []Record{}
	for _, r := range s.records {
		if r.BatchID == batchID && !r.Reverted {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *inMemory) MarkReverted(_ context.Context, batchID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for i := range s.records {
		if s.records[i].BatchID == batchID && !s.records[i].Reverted {
			s.records[i].Reverted = true
			n++
		}
	}
	return n, nil
}

func (s *inMemory) Batches(_ context.Context, limit int32) ([]BatchSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byID := map[string]*BatchSummary{}
	for _, r := range s.records {
		b, ok := byID[r.BatchID]
		if !ok {
			b = &BatchSummary{BatchID: r.BatchID, CreatedAt: r.CreatedAt}
			byID[r.BatchID] = b
		}
		b.Rows++
		if !r.Reverted {
			b.Pending++
		}
		if r.CreatedAt.Before(b.CreatedAt) {
			b.CreatedAt = r.CreatedAt
		}
	}
	out := make([]BatchSummary, 0, len(byID))
	for _, b := range byID {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && int(limit) < len(out) {
		out = out[:limit]
	}
	return out, nil
}
