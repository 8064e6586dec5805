package session

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// MemoryStore keeps records in process with a sliding TTL.
type MemoryStore struct {
	cache *cache.Cache
}

// NewMemoryStore expires idle sessions after ttl and sweeps every ttl/6.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &MemoryStore{cache: cache.New(ttl, ttl/6)}
}

func (s *MemoryStore) Get(_ context.Context, id string) (Record, bool, error) {
	x, found := s.cache.Get(id)
	if !found {
		return Record{}, false, nil
	}
	r := x.(Record)
	r.History = cloneHistory(r.History)
	return r, true, nil
}

func (s *MemoryStore) Put(_ context.Context, id string, r Record) error {
	r.History = cloneHistory(r.History)
	s.cache.Set(id, r, cache.DefaultExpiration)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.cache.Delete(id)
	return nil
}
