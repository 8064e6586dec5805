package vectorstore

import (
	"context"
	"errors"

	"supportbot/internal/domain"
)

// ErrDimensionMismatch is returned when a vector does not match the store's dimension.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Storage holds embedded chunks and ranks them against a query vector.
// Chunks carry their own embeddings.
type Storage interface {
	Init(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, chunks []domain.Chunk) error
	Search(ctx context.Context, vector []float64, topK int) ([]domain.SearchResult, error)
	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
}
