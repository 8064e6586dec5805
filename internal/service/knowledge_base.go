package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"supportbot/internal/chunker"
	"supportbot/internal/domain"
	"supportbot/internal/embedding"
	"supportbot/internal/logger"
	"supportbot/internal/vectorstore"
)

const module = "knowledge"

// ErrNoChunks is returned when ingestion produces nothing to embed.
var ErrNoChunks = errors.New("no knowledge chunks produced")

// Paths locates the ingestion outputs.
type Paths struct {
	Chunks   string
	Embedded string
}

// embeddedFile is the persisted form of the embedded chunk set.
// Embedder records which model produced the vectors.
type embeddedFile struct {
	Embedder  string         `json:"embedder"`
	Dimension int            `json:"dimension"`
	Chunks    []domain.Chunk `json:"chunks"`
}

// KnowledgeBase owns the chunk store lifecycle: ingestion, persistence, load and retrieval.
type KnowledgeBase struct {
	chunker  *chunker.KnowledgeChunker
	embedder embedding.Embedder
	prefixer embedding.Prefixer
	store    vectorstore.Storage
	topK     int
	log      logger.ILogger
}

func NewKnowledgeBase(embedder embedding.Embedder, prefixer embedding.Prefixer, store vectorstore.Storage, topK int, log logger.ILogger) *KnowledgeBase {
	if topK <= 0 {
		topK = 3
	}
	return &KnowledgeBase{
		chunker:  chunker.NewKnowledgeChunker(),
		embedder: embedder,
		prefixer: prefixer,
		store:    store,
		topK:     topK,
		log:      log,
	}
}

// Ingest chunks the sources, embeds every passage, writes both output files and fills the store.
func (kb *KnowledgeBase) Ingest(ctx context.Context, src chunker.Sources, paths Paths) (int, error) {
	chunks := kb.chunker.Chunk(src)
	if len(chunks) == 0 {
		return 0, ErrNoChunks
	}
	if paths.Chunks != "" {
		if err := writeJSON(paths.Chunks, chunks); err != nil {
			return 0, err
		}
	}

	if err := kb.embedChunks(ctx, chunks); err != nil {
		return 0, err
	}
	dim := len(chunks[0].Embedding)

	if paths.Embedded != "" {
		file := embeddedFile{Embedder: kb.embedder.Name(), Dimension: dim, Chunks: chunks}
		if err := writeJSON(paths.Embedded, file); err != nil {
			return 0, err
		}
	}

	if err := kb.store.Clear(ctx); err != nil {
		return 0, fmt.Errorf("clear store: %w", err)
	}
	if err := kb.fill(ctx, dim, chunks); err != nil {
		return 0, err
	}
	kb.log.Info(module, "Knowledge ingested", map[string]interface{}{
		"chunks":    len(chunks),
		"dimension": dim,
		"embedder":  kb.embedder.Name(),
	})
	return len(chunks), nil
}

// Load reads the embedded chunk file into the store. Vectors are recomputed
// when the file was produced by a different embedder or lacks embeddings.
func (kb *KnowledgeBase) Load(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read embedded chunks: %w", err)
	}
	file, err := decodeEmbedded(data)
	if err != nil {
		return 0, fmt.Errorf("parse embedded chunks %s: %w", path, err)
	}
	chunks := file.Chunks
	if len(chunks) == 0 {
		kb.log.Warn(module, "Embedded chunk file is empty", map[string]interface{}{"path": path})
		return 0, nil
	}
	for i, c := range chunks {
		if c.Content == "" {
			return 0, fmt.Errorf("chunk %d: empty content", i)
		}
	}

	if file.Embedder != kb.embedder.Name() || !hasEmbeddings(chunks) {
		kb.log.Warn(module, "Re-embedding stored chunks", map[string]interface{}{
			"stored_embedder": file.Embedder,
			"embedder":        kb.embedder.Name(),
		})
		if err := kb.embedChunks(ctx, chunks); err != nil {
			return 0, err
		}
	} else if err := kb.embedder.Prepare(kb.passages(chunks)); err != nil {
		return 0, fmt.Errorf("prepare embedder: %w", err)
	}

	if err := kb.fill(ctx, len(chunks[0].Embedding), chunks); err != nil {
		return 0, err
	}
	kb.log.Info(module, "Knowledge loaded", map[string]interface{}{"chunks": len(chunks), "path": path})
	return len(chunks), nil
}

// Retrieve embeds the question as a query and returns the top-ranked chunks.
func (kb *KnowledgeBase) Retrieve(ctx context.Context, question string) ([]domain.SearchResult, error) {
	vec, err := embedding.EmbedQuery(ctx, kb.embedder, kb.prefixer, question)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return kb.store.Search(ctx, vec, kb.topK)
}

func (kb *KnowledgeBase) embedChunks(ctx context.Context, chunks []domain.Chunk) error {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	if err := kb.embedder.Prepare(kb.passages(chunks)); err != nil {
		return fmt.Errorf("prepare embedder: %w", err)
	}
	vecs, err := embedding.EmbedPassages(ctx, kb.embedder, kb.prefixer, texts)
	if err != nil {
		return fmt.Errorf("embed passages: %w", err)
	}
	for i := range chunks {
		chunks[i].Embedding = vecs[i]
	}
	return nil
}

func (kb *KnowledgeBase) passages(chunks []domain.Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = kb.prefixer.PassageText(c.Content)
	}
	return out
}

func (kb *KnowledgeBase) fill(ctx context.Context, dim int, chunks []domain.Chunk) error {
	if err := kb.store.Init(ctx, dim); err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	if err := kb.store.Upsert(ctx, chunks); err != nil {
		return fmt.Errorf("upsert chunks: %w", err)
	}
	return nil
}

func hasEmbeddings(chunks []domain.Chunk) bool {
	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			return false
		}
	}
	return true
}

// decodeEmbedded accepts the headered form and a bare chunk array.
func decodeEmbedded(data []byte) (embeddedFile, error) {
	var file embeddedFile
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		err := json.Unmarshal(trimmed, &file.Chunks)
		return file, err
	}
	err := json.Unmarshal(trimmed, &file)
	return file, err
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
