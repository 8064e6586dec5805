// Package openai embeds text through an OpenAI-compatible /embeddings endpoint.
// Ollama's native response shape is accepted as well.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"supportbot/internal/logger"
)

const module = "embedding"

// ErrEmptyEmbedding is returned when the endpoint answers without a vector.
var ErrEmptyEmbedding = errors.New("no embedding returned")

// Config configures the embeddings client. The key is read from the APIKeyEnv variable.
type Config struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
	Timeout   time.Duration
	Log       logger.ILogger
}

// Client implements embedding.Embedder against a remote model.
// It is safe for concurrent use.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	http       *http.Client
	log        logger.ILogger
	maxRetries int
	sleep      func(ctx context.Context, d time.Duration) error

	dimension atomic.Int64
}

func NewClient(cfg Config) (*Client, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	log := cfg.Log
	if log == nil {
		log = logger.NewNop()
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     key,
		model:      cfg.Model,
		http:       &http.Client{Timeout: cfg.Timeout},
		log:        log,
		maxRetries: 5,
		sleep:      sleepContext,
	}, nil
}

// Name includes the model so vectors from different models are never mixed.
func (c *Client) Name() string { return "openai:" + c.model }

// Prepare is a no-op; the vector space is fixed by the remote model.
func (c *Client) Prepare([]string) error { return nil }

// Dimension is zero until the first vector has been returned.
func (c *Client) Dimension() int { return int(c.dimension.Load()) }

// Embed returns the vector for text, retrying rate limits and server errors with backoff.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	body, err := json.Marshal(struct {
		Input string `json:"input"`
		Model string `json:"model"`
	}{Input: text, Model: c.model})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, c.backoff(attempt-1, lastErr)); err != nil {
				return nil, err
			}
		}
		vec, retry, err := c.attempt(ctx, body)
		if err == nil {
			return vec, c.checkDimension(vec)
		}
		if !retry || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
		c.log.Warn(module, "Embedding request failed, retrying", map[string]interface{}{
			"attempt": attempt + 1,
			"error":   err.Error(),
		})
	}
	return nil, lastErr
}

// retryAfter carries a server-provided wait.
type retryAfter struct {
	status string
	wait   time.Duration
}

func (e *retryAfter) Error() string { return "openai embeddings failed: " + e.status }

func (c *Client) attempt(ctx context.Context, body []byte) (vec []float64, retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		e := &retryAfter{status: resp.Status}
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
			e.wait = time.Duration(secs) * time.Second
		}
		return nil, true, e
	case resp.StatusCode >= 300:
		return nil, false, fmt.Errorf("openai embeddings failed: %s", resp.Status)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, err
	}
	if v := decodeEmbedding(payload); len(v) > 0 {
		return v, false, nil
	}
	return nil, true, ErrEmptyEmbedding
}

func (c *Client) checkDimension(vec []float64) error {
	n := int64(len(vec))
	if c.dimension.CompareAndSwap(0, n) {
		return nil
	}
	if d := c.dimension.Load(); d != n {
		return fmt.Errorf("embedding dimension changed from %d to %d", d, n)
	}
	return nil
}

func (c *Client) backoff(attempt int, last error) time.Duration {
	var ra *retryAfter
	if errors.As(last, &ra) && ra.wait > 0 {
		return ra.wait
	}
	d := 200 * time.Millisecond << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}

// decodeEmbedding accepts the OpenAI shape first, then the Ollama-native one.
func decodeEmbedding(payload []byte) []float64 {
	var out struct {
		Data []struct {
			Embedding []float64 `json:"embedding"`
		} `json:"data"`
		Embedding []float64 `json:"embedding"`
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil
	}
	if len(out.Data) > 0 && len(out.Data[0].Embedding) > 0 {
		return out.Data[0].Embedding
	}
	return out.Embedding
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
