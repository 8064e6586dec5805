package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supportbot/internal/domain"
	"supportbot/internal/vectorstore"
)

func chunk(content string, vec ...float64) domain.Chunk {
	return domain.Chunk{Type: domain.ChunkFAQ, Content: content, Embedding: vec}
}

func newStore(t *testing.T, chunks ...domain.Chunk) *Storage {
	t.Helper()
	s := NewStorage()
	require.NoError(t, s.Init(context.Background(), 2))
	require.NoError(t, s.Upsert(context.Background(), chunks))
	return s
}

func contents(results []domain.SearchResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Chunk.Content
	}
	return out
}

func TestSearch_EmptyStore(t *testing.T) {
	s := newStore(t)
	res, err := s.Search(context.Background(), []float64{1, 0}, 3)
	require.NoError(t, err)
	assert.Empty(t, res)
	assert.NotNil(t, res)
}

func TestSearch_RanksByCosine(t *testing.T) {
	s := newStore(t,
		chunk("east", 1, 0),
		chunk("north", 0, 1),
		chunk("north-east", 3, 3),
	)

	res, err := s.Search(context.Background(), []float64{0, 2}, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"north", "north-east", "east"}, contents(res))
	assert.InDelta(t, 1.0, res[0].Score, 1e-9)
	for i := 1; i < len(res); i++ {
		assert.GreaterOrEqual(t, res[i-1].Score, res[i].Score)
	}
}

func TestSearch_ReturnsMinOfKAndSize(t *testing.T) {
	s := newStore(t, chunk("a", 1, 0), chunk("b", 0, 1))

	res, err := s.Search(context.Background(), []float64{1, 1}, 5)
	require.NoError(t, err)
	assert.Len(t, res, 2)

	res, err = s.Search(context.Background(), []float64{1, 1}, 1)
	require.NoError(t, err)
	assert.Len(t, res, 1)
}

func TestSearch_TiesKeepLoadOrder(t *testing.T) {
	s := newStore(t,
		chunk("first", 1, 0),
		chunk("second", 2, 0),
		chunk("third", 5, 0),
		chunk("other", 0, 1),
	)

	res, err := s.Search(context.Background(), []float64{1, 0}, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "third"}, contents(res))
}

func TestSearch_Idempotent(t *testing.T) {
	s := newStore(t, chunk("a", 1, 2), chunk("b", 2, 1), chunk("c", 1, 1))
	q := []float64{0.3, 0.7}

	first, err := s.Search(context.Background(), q, 2)
	require.NoError(t, err)
	second, err := s.Search(context.Background(), q, 2)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSearch_DimensionMismatch(t *testing.T) {
	s := newStore(t, chunk("a", 1, 0))
	_, err := s.Search(context.Background(), []float64{1, 0, 0}, 1)
	assert.ErrorIs(t, err, vectorstore.ErrDimensionMismatch)
}

func TestUpsert_RejectsInvalidChunks(t *testing.T) {
	s := newStore(t)

	err := s.Upsert(context.Background(), []domain.Chunk{chunk("ok", 1, 0), chunk("short", 1)})
	assert.ErrorIs(t, err, vectorstore.ErrDimensionMismatch)

	err = s.Upsert(context.Background(), []domain.Chunk{chunk("", 1, 0)})
	assert.Error(t, err)

	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUpsert_RequiresInit(t *testing.T) {
	err := NewStorage().Upsert(context.Background(), []domain.Chunk{chunk("a", 1)})
	assert.Error(t, err)
}

func TestClear(t *testing.T) {
	s := newStore(t, chunk("a", 1, 0))
	require.NoError(t, s.Clear(context.Background()))

	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}
