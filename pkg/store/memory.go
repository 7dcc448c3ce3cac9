package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/matzehuels/cppsbom/pkg/errors"
)

// MemoryStore keeps records in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
	now     func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record), now: time.Now}
}

// Save implements Store.
func (s *MemoryStore) Save(ctx context.Context, rec *Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	prepare(rec, s.now)

	s.mu.Lock()
	defer s.mu.Unlock()
	r := *rec
	r.Document = append([]byte(nil), rec.Document...)
	s.records[r.ID] = r
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, id string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return nil, errors.New(errors.ErrCodeNotFound, "sbom %s not found", id)
	}
	return &r, nil
}

// List implements Store.
func (s *MemoryStore) List(ctx context.Context, limit int) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		r.Document = nil
		out = append(out, r)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if n := listLimit(limit); len(out) > n {
		out = out[:n]
	}
	return out, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }
