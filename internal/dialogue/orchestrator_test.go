package dialogue

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supportbot/internal/chunker"
	"supportbot/internal/completion"
	"supportbot/internal/domain"
	"supportbot/internal/embedding"
	"supportbot/internal/embedding/tfidf"
	"supportbot/internal/escalation"
	"supportbot/internal/fallback"
	"supportbot/internal/logger"
	"supportbot/internal/prompt"
	"supportbot/internal/service"
	"supportbot/internal/vectorstore/memory"
)

// fakeLLM streams Answer word by word and returns Extraction for non-streaming calls.
type fakeLLM struct {
	mu          sync.Mutex
	Answer      string
	Extraction  string
	Status      int
	streamCalls int
	lastPrompt  []domain.Message
}

func (f *fakeLLM) set(fn func(f *fakeLLM)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeLLM) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streamCalls
}

func (f *fakeLLM) prompt() []domain.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastPrompt
}

func (f *fakeLLM) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Messages []domain.Message `json:"messages"`
		Stream   bool             `json:"stream"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	answer, extraction, status := f.Answer, f.Extraction, f.Status
	if req.Stream {
		f.streamCalls++
		f.lastPrompt = req.Messages
	}
	f.mu.Unlock()

	if status != 0 {
		w.WriteHeader(status)
		return
	}
	if !req.Stream {
		body, _ := json.Marshal(map[string]any{"choices": []any{map[string]any{"message": map[string]any{"content": extraction}}}})
		_, _ = w.Write(body)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	for _, word := range strings.SplitAfter(answer, " ") {
		chunk, _ := json.Marshal(map[string]any{"choices": []any{map[string]any{"delta": map[string]any{"content": word}}}})
		fmt.Fprintf(w, "data: %s\n\n", chunk)
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
}

type failingSink struct{}

func (failingSink) Save(context.Context, domain.Escalation) error { return errors.New("disk full") }

type brokenRetriever struct{}

func (brokenRetriever) Retrieve(context.Context, string) ([]domain.SearchResult, error) {
	return nil, errors.New("embedder offline")
}

type harness struct {
	llm     *fakeLLM
	orch    *Orchestrator
	logPath string
}

func newHarness(t *testing.T, sink domain.EscalationSink) *harness {
	t.Helper()
	llm := &fakeLLM{}
	srv := httptest.NewServer(llm)
	t.Cleanup(srv.Close)

	gw, err := completion.NewGateway(
		completion.Config{BaseURL: srv.URL, Model: "test", Temperature: 0.4},
		completion.RetryPolicy{MaxAttempts: 3, Delay: 5 * time.Second, Sleep: func(context.Context, time.Duration) error { return nil }},
		logger.NewNop(),
	)
	require.NoError(t, err)

	kb := service.NewKnowledgeBase(tfidf.NewEmbedder(), embedding.Prefixer{Query: "query: ", Passage: "passage: "}, memory.NewStorage(), 3, logger.NewNop())
	_, err = kb.Ingest(context.Background(), chunker.Sources{FAQs: []chunker.FAQ{{Question: "What payment methods?", Answer: "We accept Visa and Mastercard."}}}, service.Paths{})
	require.NoError(t, err)

	logPath := filepath.Join(t.TempDir(), "unanswered_queries.jsonl")
	if sink == nil {
		sink = escalation.NewFileSink(logPath, logger.NewNop())
	}
	orch := NewOrchestrator(kb, prompt.NewComposer("Quantum Arc", ""), gw, fallback.NewExtractor(gw, logger.NewNop()), sink, logger.NewNop())
	return &harness{llm: llm, orch: orch, logPath: logPath}
}

func (h *harness) escalations(t *testing.T) []domain.Escalation {
	t.Helper()
	f, err := os.Open(h.logPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	require.NoError(t, err)
	defer f.Close()
	var out []domain.Escalation
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e domain.Escalation
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e))
		out = append(out, e)
	}
	return out
}

func TestRespond_GroundedAnswer(t *testing.T) {
	h := newHarness(t, nil)
	h.llm.set(func(f *fakeLLM) { f.Answer = "We accept Visa and Mastercard." })

	var deltas []string
	reply, state := h.orch.Respond(context.Background(), State{}, "What payment methods do you support?", nil, func(d string) {
		deltas = append(deltas, d)
	})

	assert.Equal(t, "We accept Visa and Mastercard.", reply.Text)
	assert.False(t, reply.FallbackTriggered)
	assert.False(t, reply.Failed)
	assert.Equal(t, State{}, state)
	assert.Equal(t, []domain.Message{
		{Role: domain.RoleUser, Content: "What payment methods do you support?"},
		{Role: domain.RoleAssistant, Content: "We accept Visa and Mastercard."},
	}, reply.History)
	assert.Equal(t, reply.Text, strings.Join(deltas, ""))
	assert.Greater(t, len(deltas), 1)

	require.Len(t, h.llm.prompt(), 3)
	assert.Contains(t, h.llm.prompt()[1].Content, "Q: What payment methods?\nA: We accept Visa and Mastercard.")
}

func TestRespond_FallbackRoundTrip(t *testing.T) {
	h := newHarness(t, nil)
	h.llm.set(func(f *fakeLLM) { f.Answer = prompt.FallbackReply })

	reply, state := h.orch.Respond(context.Background(), State{}, "Is the X200 waterproof?", nil, nil)
	assert.True(t, reply.FallbackTriggered)
	assert.Equal(t, State{AwaitingFallbackInfo: true, PendingQuestion: "Is the X200 waterproof?"}, state)
	require.Len(t, reply.History, 2)

	h.llm.set(func(f *fakeLLM) { f.Extraction = `{"email": "jane@shop.io", "question": "Is the Nova X200 waterproof?"}` })
	second, state := h.orch.Respond(context.Background(), state, "sure, it's jane@shop.io", reply.History, nil)

	assert.Equal(t, State{}, state)
	assert.False(t, second.FallbackTriggered)
	assert.Equal(t, `Thank you! We've noted your question about: "Is the Nova X200 waterproof?" and will contact you at jane@shop.io shortly.`, second.Text)
	require.Len(t, second.History, 4)
	assert.Equal(t, domain.Message{Role: domain.RoleUser, Content: "sure, it's jane@shop.io"}, second.History[2])
	assert.Equal(t, 1, h.llm.calls())

	records := h.escalations(t)
	require.Len(t, records, 1)
	assert.Equal(t, "jane@shop.io", records[0].Email)
	assert.Equal(t, "Is the Nova X200 waterproof?", records[0].Question)
	assert.Equal(t, time.UTC, records[0].Timestamp.Location())
}

func TestRespond_RegexFallbackUsesPendingQuestion(t *testing.T) {
	h := newHarness(t, nil)
	h.llm.set(func(f *fakeLLM) { f.Extraction = "not json at all" })

	state := State{AwaitingFallbackInfo: true, PendingQuestion: "Do you ship to Canada?"}
	reply, next := h.orch.Respond(context.Background(), state, "my email is a@b.com", nil, nil)

	assert.Equal(t, State{}, next)
	assert.Contains(t, reply.Text, `"Do you ship to Canada?"`)
	assert.Contains(t, reply.Text, "a@b.com")
	require.Len(t, h.escalations(t), 1)
}

func TestRespond_IncompleteContactStaysAwaiting(t *testing.T) {
	h := newHarness(t, nil)
	h.llm.set(func(f *fakeLLM) { f.Extraction = `{"email": "", "question": ""}` })

	state := State{AwaitingFallbackInfo: true, PendingQuestion: "Do you ship to Canada?"}
	history := []domain.Message{{Role: domain.RoleAssistant, Content: prompt.FallbackReply}}
	reply, next := h.orch.Respond(context.Background(), state, "a@@b", history, nil)

	assert.Equal(t, IncompleteReply, reply.Text)
	assert.Equal(t, state, next)
	assert.Len(t, reply.History, 3)
	assert.Empty(t, h.escalations(t))
}

func TestRespond_SaveFailureStaysAwaiting(t *testing.T) {
	h := newHarness(t, failingSink{})
	h.llm.set(func(f *fakeLLM) { f.Extraction = `{"email": "a@b.com", "question": "q"}` })

	state := State{AwaitingFallbackInfo: true, PendingQuestion: "q"}
	reply, next := h.orch.Respond(context.Background(), state, "a@b.com", nil, nil)

	assert.Equal(t, SaveFailedReply, reply.Text)
	assert.True(t, reply.Failed)
	assert.Equal(t, state, next)
	assert.Len(t, reply.History, 2)
}

func TestRespond_RateLimitLeavesHistoryUnchanged(t *testing.T) {
	h := newHarness(t, nil)
	h.llm.set(func(f *fakeLLM) { f.Status = http.StatusTooManyRequests })
	history := []domain.Message{
		{Role: domain.RoleUser, Content: "hi"},
		{Role: domain.RoleAssistant, Content: "Hello!"},
	}

	reply, state := h.orch.Respond(context.Background(), State{}, "What payment methods do you support?", history, nil)

	assert.True(t, reply.Failed)
	assert.Equal(t, completion.AdvisoryRateLimited, reply.Text)
	assert.Equal(t, history, reply.History)
	assert.Equal(t, State{}, state)
	assert.Equal(t, 3, h.llm.calls())
}

func TestRespond_RetrievalFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.orch.retriever = brokenRetriever{}

	reply, state := h.orch.Respond(context.Background(), State{}, "anything", nil, nil)
	assert.True(t, reply.Failed)
	assert.Equal(t, completion.AdvisoryTechnical, reply.Text)
	assert.Empty(t, reply.History)
	assert.Equal(t, State{}, state)
	assert.Zero(t, h.llm.calls())
}

func TestRespond_AbandonedStreamLeavesHistoryUnchanged(t *testing.T) {
	h := newHarness(t, nil)
	h.llm.set(func(f *fakeLLM) { f.Answer = prompt.FallbackReply })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reply, state := h.orch.Respond(ctx, State{}, "q", nil, func(string) { cancel() })

	assert.True(t, reply.Failed)
	assert.Empty(t, reply.History)
	assert.Equal(t, State{}, state)
}

func TestRespond_DoesNotMutateCallerHistory(t *testing.T) {
	h := newHarness(t, nil)
	h.llm.set(func(f *fakeLLM) { f.Answer = "ok" })
	history := make([]domain.Message, 1, 10)
	history[0] = domain.Message{Role: domain.RoleUser, Content: "earlier"}

	reply, _ := h.orch.Respond(context.Background(), State{}, "now", history, nil)

	assert.Len(t, history, 1)
	assert.Equal(t, domain.Message{}, history[:2][1])
	assert.Len(t, reply.History, 3)
}
