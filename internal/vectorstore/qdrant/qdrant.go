package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"supportbot/internal/domain"
)

// pointNamespace seeds deterministic point ids so re-ingesting the same chunk overwrites it.
var pointNamespace = uuid.MustParse("6f1c9a52-3b7e-4d0a-9c1e-5a2b8d4e7f10")

// Storage is a minimal REST client to Qdrant.
// It assumes cosine distance and creates the collection if missing.
type Storage struct {
	url        string
	apiKey     string
	collection string
	dimension  int
	client     *http.Client
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	if cfg.Collection == "" {
		cfg.Collection = "support_chunks"
	}
	return &Storage{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}
}

type payload struct {
	Type     string `json:"type"`
	Section  string `json:"section,omitempty"`
	Category string `json:"category,omitempty"`
	Content  string `json:"content"`
}

type point struct {
	ID      string    `json:"id"`
	Vector  []float64 `json:"vector"`
	Payload payload   `json:"payload"`
}

func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.dimension = dimension
	status, err := s.do(ctx, http.MethodGet, s.collectionURL(), nil, nil)
	if err == nil {
		return nil
	}
	if status != http.StatusNotFound {
		return err
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	_, err = s.do(ctx, http.MethodPut, s.collectionURL(), body, nil)
	return err
}

func (s *Storage) Upsert(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	points := make([]point, len(chunks))
	for i, c := range chunks {
		if c.Content == "" {
			return fmt.Errorf("chunk %d: empty content", i)
		}
		if s.dimension > 0 && len(c.Embedding) != s.dimension {
			return fmt.Errorf("chunk %d: vector dimension mismatch: got %d, want %d", i, len(c.Embedding), s.dimension)
		}
		points[i] = point{
			ID:     PointID(c),
			Vector: c.Embedding,
			Payload: payload{
				Type:     c.Type,
				Section:  c.Section,
				Category: c.Category,
				Content:  c.Content,
			},
		}
	}
	_, err := s.do(ctx, http.MethodPut, s.collectionURL()+"/points?wait=true", map[string]any{"points": points}, nil)
	return err
}

// Search relies on Qdrant's own ordering, which is by descending score.
func (s *Storage) Search(ctx context.Context, vector []float64, topK int) ([]domain.SearchResult, error) {
	if topK <= 0 {
		topK = 3
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			Score   float64 `json:"score"`
			Payload payload `json:"payload"`
		} `json:"result"`
	}
	if _, err := s.do(ctx, http.MethodPost, s.collectionURL()+"/points/search", req, &resp); err != nil {
		return nil, err
	}
	results := make([]domain.SearchResult, 0, len(resp.Result))
	for _, r := range resp.Result {
		results = append(results, domain.SearchResult{
			Chunk: domain.Chunk{
				Type:     r.Payload.Type,
				Section:  r.Payload.Section,
				Category: r.Payload.Category,
				Content:  r.Payload.Content,
			},
			Score: r.Score,
		})
	}
	return results, nil
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	if _, err := s.do(ctx, http.MethodPost, s.collectionURL()+"/points/count", map[string]any{"exact": true}, &resp); err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

// Clear drops the collection. A missing collection is not an error.
func (s *Storage) Clear(ctx context.Context) error {
	status, err := s.do(ctx, http.MethodDelete, s.collectionURL(), nil, nil)
	if status == http.StatusNotFound {
		return nil
	}
	return err
}

// PointID derives a stable UUID for a chunk from its identifying fields.
func PointID(c domain.Chunk) string {
	key := c.Type + "\x00" + c.Group() + "\x00" + c.Content
	return uuid.NewSHA1(pointNamespace, []byte(key)).String()
}

func (s *Storage) collectionURL() string {
	return fmt.Sprintf("%s/collections/%s", s.url, s.collection)
}

func (s *Storage) do(ctx context.Context, method, url string, body, out any) (int, error) {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("qdrant %s %s failed: %s", method, url, resp.Status)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
