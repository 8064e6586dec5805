package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supportbot/internal/domain"
)

func TestCompose_Order(t *testing.T) {
	c := NewComposer("Quantum Arc", "a tech retailer")
	chunks := []domain.Chunk{
		{Type: "faq", Section: "Payments", Content: "Q: What payment methods? A: We accept Visa and Mastercard."},
		{Type: "product", Category: "Laptops", Content: "Product: Zen 14"},
		{Type: "policy", Content: "Returns:\n30 days"},
	}
	history := []domain.Message{
		{Role: domain.RoleUser, Content: "hi"},
		{Role: domain.RoleAssistant, Content: "Hello!"},
	}

	msgs := c.Compose("What payment methods do you support?", chunks, history)

	require.Len(t, msgs, 5)
	assert.Equal(t, domain.RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "Quantum Arc")
	assert.Equal(t, domain.Message{Role: domain.RoleSystem, Content: "Support Context:\n" +
		"---\n[Faq - Payments]\nQ: What payment methods? A: We accept Visa and Mastercard.\n" +
		"---\n[Product - Laptops]\nProduct: Zen 14\n" +
		"---\n[Policy]\nReturns:\n30 days"}, msgs[1])
	assert.Equal(t, history, msgs[2:4])
	assert.Equal(t, domain.Message{Role: domain.RoleUser, Content: "What payment methods do you support?"}, msgs[4])
}

func TestCompose_ExactlyOneGroundingMessage(t *testing.T) {
	msgs := NewComposer("X", "").Compose("q", nil, nil)

	grounding := 0
	for _, m := range msgs {
		if m.Role == domain.RoleSystem && strings.HasPrefix(m.Content, contextHeader) {
			grounding++
		}
	}
	assert.Equal(t, 1, grounding)
	assert.Equal(t, domain.RoleUser, msgs[len(msgs)-1].Role)
}

func TestCompose_DoesNotMutateInputs(t *testing.T) {
	history := make([]domain.Message, 1, 8)
	history[0] = domain.Message{Role: domain.RoleUser, Content: "earlier"}
	chunks := []domain.Chunk{{Type: "faq", Content: "c"}}

	NewComposer("X", "").Compose("now", chunks, history)

	assert.Len(t, history, 1)
	assert.Equal(t, "earlier", history[0].Content)
	assert.Equal(t, "c", chunks[0].Content)
	assert.Equal(t, domain.Message{}, history[:2][1])
}

func TestSystemRules_CarriesExactTrigger(t *testing.T) {
	rules := NewComposer("Quantum Arc", "").SystemRules()
	assert.Contains(t, rules, TriggerPhrase)
	assert.Contains(t, rules, FallbackReply)
}
