// Package prompt builds the grounded message list sent to the completion model.
package prompt

import (
	"fmt"
	"strings"

	"supportbot/internal/domain"
)

// TriggerPhrase is the sentence the model must emit when the context cannot answer.
// Fallback detection matches it literally, so it must stay byte-identical.
const TriggerPhrase = "Sorry, I couldn’t find an answer to that in our support database."

// FallbackReply is the full canned reply containing TriggerPhrase.
const FallbackReply = TriggerPhrase + " Could you please share your email address and your question? We’ll get back to you soon."

const contextHeader = "Support Context:\n"

// Composer renders the system rules for a given storefront.
type Composer struct {
	Brand       string
	Description string
}

func NewComposer(brand, description string) *Composer {
	return &Composer{Brand: brand, Description: description}
}

// Compose returns system rules, the grounding context, the prior history and the question, in that order.
// Neither chunks nor history is modified.
func (c *Composer) Compose(question string, chunks []domain.Chunk, history []domain.Message) []domain.Message {
	msgs := make([]domain.Message, 0, len(history)+3)
	msgs = append(msgs,
		domain.Message{Role: domain.RoleSystem, Content: c.SystemRules()},
		domain.Message{Role: domain.RoleSystem, Content: GroundingContext(chunks)},
	)
	msgs = append(msgs, history...)
	msgs = append(msgs, domain.Message{Role: domain.RoleUser, Content: question})
	return msgs
}

// SystemRules is the fixed instruction constraining answers to the supplied context.
func (c *Composer) SystemRules() string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a friendly, professional customer support assistant for **%s**", c.Brand)
	if c.Description != "" {
		fmt.Fprintf(&b, ", %s", c.Description)
	}
	b.WriteString(".\n\n")
	b.WriteString("Answer questions **strictly using the support context provided below**.\n\n")
	b.WriteString("Rules:\n")
	b.WriteString("- Use ONLY the provided context. Do NOT use prior knowledge, training data or any outside information.\n")
	b.WriteString("- Keep answers short, clear and human, like a real support representative.\n")
	b.WriteString("- Never guess, invent or expand beyond the support context.\n")
	b.WriteString("- If the user refers to something vaguely, such as 'its battery' or 'this product', work out what they mean from the chat history.\n")
	b.WriteString("- If the user greets or thanks you, reply politely and warmly.\n\n")
	b.WriteString("If the answer is NOT in the support context, reply **exactly like this**:\n")
	fmt.Fprintf(&b, "%q\n\n", FallbackReply)
	b.WriteString("Do not add disclaimers or general advice.")
	return b.String()
}

// GroundingContext labels each chunk and joins them in ranked order.
func GroundingContext(chunks []domain.Chunk) string {
	parts := make([]string, len(chunks))
	for i, ch := range chunks {
		parts[i] = fmt.Sprintf("---\n[%s]\n%s", ch.Label(), ch.Content)
	}
	return contextHeader + strings.Join(parts, "\n")
}
