package memory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"supportbot/internal/domain"
	"supportbot/internal/vectorstore"
)

// DefaultTopK is used when Search is called with a non-positive k.
const DefaultTopK = 3

// Storage is an in-process chunk store ranked by brute-force cosine similarity.
// Chunks are kept in load order, which is also the tie-break order.
type Storage struct {
	mu        sync.RWMutex
	dimension int
	chunks    []domain.Chunk
	norms     []float64
}

func NewStorage() *Storage { return &Storage{} }

func (s *Storage) Init(_ context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dimension = dimension
	s.chunks = nil
	s.norms = nil
	return nil
}

// Upsert appends chunks after checking each has content and a full-size embedding.
// A rejected batch leaves the store untouched.
func (s *Storage) Upsert(_ context.Context, chunks []domain.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension == 0 {
		return errors.New("storage not initialised")
	}
	norms := make([]float64, len(chunks))
	for i, c := range chunks {
		if c.Content == "" {
			return fmt.Errorf("chunk %d: empty content", i)
		}
		if len(c.Embedding) != s.dimension {
			return fmt.Errorf("chunk %d: %w: got %d, want %d", i, vectorstore.ErrDimensionMismatch, len(c.Embedding), s.dimension)
		}
		norms[i] = norm(c.Embedding)
	}
	s.chunks = append(s.chunks, chunks...)
	s.norms = append(s.norms, norms...)
	return nil
}

// Search returns the min(topK, n) chunks most similar to vector, highest first.
// Equal scores keep load order. An empty store yields an empty result.
func (s *Storage) Search(_ context.Context, vector []float64, topK int) ([]domain.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if topK <= 0 {
		topK = DefaultTopK
	}
	if len(s.chunks) == 0 {
		return []domain.SearchResult{}, nil
	}
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: got %d, want %d", vectorstore.ErrDimensionMismatch, len(vector), s.dimension)
	}

	qn := norm(vector)
	results := make([]domain.SearchResult, len(s.chunks))
	for i, c := range s.chunks {
		results[i] = domain.SearchResult{Chunk: c, Score: cosine(c.Embedding, s.norms[i], vector, qn)}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if topK > len(results) {
		topK = len(results)
	}
	return results[:topK], nil
}

func (s *Storage) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks), nil
}

func (s *Storage) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = nil
	s.norms = nil
	return nil
}

// cosine treats a zero-length vector as orthogonal to everything.
func cosine(a []float64, an float64, b []float64, bn float64) float64 {
	if an == 0 || bn == 0 {
		return 0
	}
	sum := 0.0
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum / (an * bn)
}

func norm(v []float64) float64 {
	sum := 0.0
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}
