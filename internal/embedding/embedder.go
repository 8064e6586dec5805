package embedding

import "context"

// Embedder converts free text into a numeric vector representation.
// Implementations may require a preparation phase over the corpus.
type Embedder interface {
	Name() string
	Prepare(corpus []string) error
	Dimension() int
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Prefixer tags text as a stored passage or a live query before embedding.
// Asymmetric models such as e5 are trained with these markers.
type Prefixer struct {
	Query   string
	Passage string
}

// QueryText returns the query-side input for text.
func (p Prefixer) QueryText(text string) string { return p.Query + text }

// PassageText returns the passage-side input for text.
func (p Prefixer) PassageText(text string) string { return p.Passage + text }

// EmbedQuery embeds a live user query.
func EmbedQuery(ctx context.Context, e Embedder, p Prefixer, text string) ([]float64, error) {
	return e.Embed(ctx, p.QueryText(text))
}

// EmbedPassages embeds stored passages in order.
func EmbedPassages(ctx context.Context, e Embedder, p Prefixer, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, err := e.Embed(ctx, p.PassageText(t))
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
