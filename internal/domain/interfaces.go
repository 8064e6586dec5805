package domain

import (
	"context"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// Chunk types produced by knowledge ingestion.
const (
	ChunkFAQ     = "faq"
	ChunkProduct = "product"
	ChunkPolicy  = "policy"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Chunk is a unit of retrievable knowledge with its precomputed embedding.
// Chunks are never mutated after they are loaded into a store.
type Chunk struct {
	Type      string    `json:"type"`
	Section   string    `json:"section,omitempty"`
	Category  string    `json:"category,omitempty"`
	Content   string    `json:"content"`
	Embedding []float64 `json:"embedding,omitempty"`
}

// Group returns the grouping label of the chunk, preferring the section.
func (c Chunk) Group() string {
	if c.Section != "" {
		return c.Section
	}
	return c.Category
}

// Label renders the "{Type} - {Section}" heading used in grounding context.
func (c Chunk) Label() string {
	t := capitalize(c.Type)
	if g := c.Group(); g != "" {
		return t + " - " + g
	}
	return t
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}

// Message is a single role-tagged conversation turn or prompt message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SearchResult represents a matching chunk with a relevance score.
type SearchResult struct {
	Chunk Chunk
	Score float64
}

// Escalation is one unanswered question queued for human follow-up.
type Escalation struct {
	Email     string    `json:"email"`
	Question  string    `json:"question"`
	Timestamp time.Time `json:"timestamp"`
}

// EscalationSink persists escalation records. Records are append-only.
type EscalationSink interface {
	Save(ctx context.Context, e Escalation) error
}

// Chunks extracts the chunks from search results, keeping their order.
func Chunks(results []SearchResult) []Chunk {
	out := make([]Chunk, len(results))
	for i, r := range results {
		out[i] = r.Chunk
	}
	return out
}
