package fallback

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supportbot/internal/domain"
	"supportbot/internal/logger"
	"supportbot/internal/prompt"
)

type stubModel struct {
	reply string
	err   error
	seen  [][]domain.Message
}

func (s *stubModel) Complete(_ context.Context, msgs []domain.Message) (string, error) {
	s.seen = append(s.seen, msgs)
	return s.reply, s.err
}

func user(s string) domain.Message      { return domain.Message{Role: domain.RoleUser, Content: s} }
func assistant(s string) domain.Message { return domain.Message{Role: domain.RoleAssistant, Content: s} }

func TestExtract_ModelStage(t *testing.T) {
	model := &stubModel{reply: "```json\n{\"email\": \"jane@shop.io\", \"question\": \"Does the Nova X200 support wireless charging?\"}\n```"}
	history := []domain.Message{
		user("does it support wireless charging?"),
		assistant(prompt.FallbackReply),
		user("jane@shop.io"),
	}

	got := NewExtractor(model, logger.NewNop()).Extract(context.Background(), history, "does it support wireless charging?")

	assert.Equal(t, Contact{Email: "jane@shop.io", Question: "Does the Nova X200 support wireless charging?"}, got)
	require.Len(t, model.seen, 1)
	assert.Equal(t, domain.RoleSystem, model.seen[0][0].Role)
	assert.Equal(t, "User: does it support wireless charging?\nAssistant: "+prompt.FallbackReply+"\nUser: jane@shop.io", model.seen[0][1].Content)
}

func TestExtract_ModelBlankQuestionUsesOriginal(t *testing.T) {
	model := &stubModel{reply: `{"email":"a@b.com","question":"  "}`}
	got := NewExtractor(model, logger.NewNop()).Extract(context.Background(), []domain.Message{user("a@b.com")}, "where is my order?")
	assert.Equal(t, Contact{Email: "a@b.com", Question: "where is my order?"}, got)
}

func TestExtract_WindowIsLastFourTurns(t *testing.T) {
	model := &stubModel{err: errors.New("down")}
	history := []domain.Message{user("one"), assistant("two"), user("three"), assistant("four"), user("five")}

	NewExtractor(model, logger.NewNop()).Extract(context.Background(), history, "")

	require.Len(t, model.seen, 1)
	assert.Equal(t, "Assistant: two\nUser: three\nAssistant: four\nUser: five", model.seen[0][1].Content)
}

func TestExtract_RegexStage(t *testing.T) {
	tests := []struct {
		name     string
		model    *stubModel
		history  []domain.Message
		original string
		want     Contact
	}{
		{
			name:    "gateway failure, email inline, no original question",
			model:   &stubModel{err: errors.New("rate limited")},
			history: []domain.Message{user("my email is a@b.com, question about returns")},
			want:    Contact{Email: "a@b.com", Question: "my email is a@b.com, question about returns"},
		},
		{
			name:    "invalid json",
			model:   &stubModel{reply: "I cannot help with that"},
			history: []domain.Message{user("mail: x@y.org")},
			want:    Contact{Email: "x@y.org", Question: "mail: x@y.org"},
		},
		{
			name:     "model email invalid",
			model:    &stubModel{reply: `{"email":"a..b@c.com","question":"q"}`},
			history:  []domain.Message{user("a..b@c.com")},
			original: "warranty length?",
			want:     Contact{Email: "", Question: "warranty length?"},
		},
		{
			name:     "malformed address yields empty email",
			model:    &stubModel{reply: `{"email":"","question":""}`},
			history:  []domain.Message{user("a@@b")},
			original: "is it waterproof?",
			want:     Contact{Email: "", Question: "is it waterproof?"},
		},
		{
			name:  "question skips trigger echo",
			model: &stubModel{err: errors.New("down")},
			history: []domain.Message{
				user("how long is shipping?"),
				assistant(prompt.FallbackReply),
				user("you said: " + prompt.TriggerPhrase),
			},
			want: Contact{Email: "", Question: "how long is shipping?"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewExtractor(tt.model, logger.NewNop()).Extract(context.Background(), tt.history, tt.original)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtract_NothingRecovered(t *testing.T) {
	got := NewExtractor(&stubModel{err: errors.New("down")}, logger.NewNop()).Extract(context.Background(), nil, "")
	assert.True(t, got.Empty())
	assert.False(t, got.Complete())
}

func TestTranscript(t *testing.T) {
	assert.Equal(t, "User: hi\nAssistant: hello", Transcript([]domain.Message{user("hi"), assistant("hello")}))
	assert.Equal(t, "", Transcript(nil))
}
