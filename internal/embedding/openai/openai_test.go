package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	t.Setenv("TEST_EMBED_KEY", "secret")
	c, err := NewClient(Config{BaseURL: url, APIKeyEnv: "TEST_EMBED_KEY", Model: "e5-base-v2"})
	require.NoError(t, err)
	c.sleep = func(context.Context, time.Duration) error { return nil }
	return c
}

func TestNewClient_MissingKey(t *testing.T) {
	_, err := NewClient(Config{APIKeyEnv: "SUPPORTBOT_DEFINITELY_UNSET"})
	assert.Error(t, err)
}

func TestEmbed_OpenAIShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var body struct {
			Input string `json:"input"`
			Model string `json:"model"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "query: hello", body.Input)
		assert.Equal(t, "e5-base-v2", body.Model)

		_, _ = w.Write([]byte(`{"data":[{"embedding":[0.1,0.2,0.3]}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	v, err := c.Embed(context.Background(), "query: hello")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, v)
	assert.Equal(t, 3, c.Dimension())
	assert.Equal(t, "openai:e5-base-v2", c.Name())
}

func TestEmbed_OllamaShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embedding":[1,0]}`))
	}))
	defer srv.Close()

	v, err := newTestClient(t, srv.URL).Embed(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0}, v)
}

func TestEmbed_RetriesOnRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"data":[{"embedding":[1]}]}`))
	}))
	defer srv.Close()

	v, err := newTestClient(t, srv.URL).Embed(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, []float64{1}, v)
	assert.Equal(t, int32(3), calls.Load())
}

func TestEmbed_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Embed(context.Background(), "x")
	assert.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestEmbed_RetryAfterHeaderIsHonoured(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"data":[{"embedding":[1,2]}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	var waits []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	_, err := c.Embed(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{7 * time.Second}, waits)
}

func TestEmbed_DimensionChangeIsAnError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			_, _ = w.Write([]byte(`{"data":[{"embedding":[1,2]}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":[{"embedding":[1,2,3]}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Embed(context.Background(), "a")
	require.NoError(t, err)
	_, err = c.Embed(context.Background(), "b")
	assert.ErrorContains(t, err, "dimension changed")
	assert.Equal(t, 2, c.Dimension())
}

func TestEmbed_CancelledDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	c.sleep = func(context.Context, time.Duration) error { return context.Canceled }
	_, err := c.Embed(context.Background(), "x")
	assert.ErrorIs(t, err, context.Canceled)
}
