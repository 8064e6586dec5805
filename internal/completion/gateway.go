// Package completion talks to an OpenAI-compatible chat completions endpoint.
package completion

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"supportbot/internal/domain"
	"supportbot/internal/logger"
)

const module = "completion"

// Config describes the completion endpoint.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	// Timeout bounds the wait for response headers and, on a stream, the
	// silence between two lines; a steadily streaming reply may run longer.
	Timeout time.Duration
}

// Gateway sends composed prompts to the model with bounded retries.
type Gateway struct {
	cfg    Config
	retry  RetryPolicy
	client *http.Client
	log    logger.ILogger
}

func NewGateway(cfg Config, retry RetryPolicy, log logger.ILogger) (*Gateway, error) {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		return nil, errors.New("completion: base url required")
	}
	if cfg.Model == "" {
		return nil, errors.New("completion: model required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ResponseHeaderTimeout: cfg.Timeout,
		TLSHandshakeTimeout:   10 * time.Second,
		IdleConnTimeout:       90 * time.Second,
	}
	return &Gateway{cfg: cfg, retry: retry, client: &http.Client{Transport: tr}, log: log}, nil
}

type chatRequest struct {
	Model       string           `json:"model"`
	Messages    []domain.Message `json:"messages"`
	Temperature float64          `json:"temperature"`
	Stream      bool             `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete returns the whole reply, trimmed.
func (g *Gateway) Complete(ctx context.Context, msgs []domain.Message) (string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	resp, err := g.send(ctx, msgs, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	// The body must arrive within one more Timeout once headers are in.
	var stalled atomic.Bool
	t := time.AfterFunc(g.cfg.Timeout, func() {
		stalled.Store(true)
		cancel()
	})
	defer t.Stop()

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		if stalled.Load() {
			return "", fmt.Errorf("%w: response body timed out after %s", ErrUnavailable, g.cfg.Timeout)
		}
		return "", fmt.Errorf("%w: decode response: %v", ErrRequestFailed, err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", ErrRequestFailed)
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

// Stream opens a streaming completion. The caller must Close the returned stream.
func (g *Gateway) Stream(ctx context.Context, msgs []domain.Message) (*Stream, error) {
	ctx, cancel := context.WithCancel(ctx)
	resp, err := g.send(ctx, msgs, true)
	if err != nil {
		cancel()
		return nil, err
	}
	return newStream(ctx, cancel, resp.Body, g.cfg.Timeout, g.log), nil
}

// send posts the request, retrying 429, 502 and transport failures.
// On success the caller owns resp.Body.
func (g *Gateway) send(ctx context.Context, msgs []domain.Message, stream bool) (*http.Response, error) {
	body, err := json.Marshal(chatRequest{
		Model:       g.cfg.Model,
		Messages:    msgs,
		Temperature: g.cfg.Temperature,
		Stream:      stream,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	attempts := g.retry.attempts()
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		resp, err := g.post(ctx, body, stream)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var httpErr *HTTPError
		if errors.As(err, &httpErr) && !httpErr.retryable() {
			g.log.Error(module, "Completion request rejected", map[string]interface{}{
				"status": httpErr.StatusCode,
				"body":   httpErr.Body,
			})
			return nil, err
		}
		lastErr = err
		g.log.Warn(module, "Transient completion failure", map[string]interface{}{
			"attempt":      attempt,
			"max_attempts": attempts,
			"error":        err.Error(),
		})
		if attempt < attempts {
			if err := g.retry.wait(ctx); err != nil {
				return nil, err
			}
		}
	}
	return nil, lastErr
}

func (g *Gateway) post(ctx context.Context, body []byte, stream bool) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}
	if g.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		_ = resp.Body.Close()
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, nil
}

// newScanner sizes the buffer for long single-line SSE payloads.
func newScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	return sc
}
