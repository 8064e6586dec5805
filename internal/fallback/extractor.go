package fallback

import (
	"context"
	"strings"

	"supportbot/internal/completion"
	"supportbot/internal/domain"
	"supportbot/internal/logger"
)

const module = "fallback"

// Window is how many recent turns the extractor reads.
const Window = 4

const extractionInstruction = "You help a customer support team follow up on unanswered questions.\n" +
	"From the recent chat transcript, extract:\n" +
	"1. The customer's email address (it must be valid, e.g. name@domain.com, with no double dots or invalid characters)\n" +
	"2. The full clarified question (resolve vague references such as 'it' or 'this phone' from the transcript)\n\n" +
	"Respond ONLY with JSON in this format:\n" +
	"{ \"email\": \"...\", \"question\": \"...\" }\n" +
	"If the email or the question is missing or unclear, leave that field blank but still return the JSON."

// Completer is the non-streaming slice of the completion gateway.
type Completer interface {
	Complete(ctx context.Context, msgs []domain.Message) (string, error)
}

// Contact is what the extractor recovered. Either field may be blank.
type Contact struct {
	Email    string `json:"email"`
	Question string `json:"question"`
}

// Empty reports whether nothing usable was recovered.
func (c Contact) Empty() bool { return c.Email == "" && c.Question == "" }

// Complete reports whether the contact can be escalated.
func (c Contact) Complete() bool { return c.Email != "" && c.Question != "" }

// Extractor recovers an email and question from the tail of a conversation.
type Extractor struct {
	model Completer
	log   logger.ILogger
}

func NewExtractor(model Completer, log logger.ILogger) *Extractor {
	return &Extractor{model: model, log: log}
}

// Extract asks the model first and falls back to pattern matching on the latest user turn.
// It never fails: every problem degrades to the next stage, and an empty Contact means neither stage found anything.
func (e *Extractor) Extract(ctx context.Context, history []domain.Message, originalQuestion string) Contact {
	recent := history
	if len(recent) > Window {
		recent = recent[len(recent)-Window:]
	}

	if c, ok := e.fromModel(ctx, recent, originalQuestion); ok {
		return c
	}

	c := Contact{
		Email:    FindEmail(latestUserContent(recent)),
		Question: originalQuestion,
	}
	if c.Question == "" {
		c.Question = latestUserQuestion(recent)
	}
	if c.Empty() {
		e.log.Warn(module, "No contact details recovered", nil)
	}
	return c
}

func (e *Extractor) fromModel(ctx context.Context, recent []domain.Message, originalQuestion string) (Contact, bool) {
	msgs := []domain.Message{
		{Role: domain.RoleSystem, Content: extractionInstruction},
		{Role: domain.RoleUser, Content: Transcript(recent)},
	}
	reply, err := e.model.Complete(ctx, msgs)
	if err != nil {
		e.log.Warn(module, "Model extraction unavailable, using pattern fallback", map[string]interface{}{"error": err.Error()})
		return Contact{}, false
	}
	parsed, err := completion.ExtractJSON[Contact](reply)
	if err != nil {
		e.log.Warn(module, "Model extraction returned invalid JSON", map[string]interface{}{
			"reply": reply,
			"error": err.Error(),
		})
		return Contact{}, false
	}
	email := strings.TrimSpace(parsed.Email)
	if !LooksLikeEmail(email) {
		e.log.Debug(module, "Model extraction gave no valid email", map[string]interface{}{"email": email})
		return Contact{}, false
	}
	question := strings.TrimSpace(parsed.Question)
	if question == "" {
		question = originalQuestion
	}
	return Contact{Email: email, Question: question}, true
}

// Transcript renders turns as "Role: content" lines.
func Transcript(turns []domain.Message) string {
	lines := make([]string, len(turns))
	for i, m := range turns {
		role := m.Role
		if role != "" {
			role = strings.ToUpper(role[:1]) + role[1:]
		}
		lines[i] = role + ": " + m.Content
	}
	return strings.Join(lines, "\n")
}

func latestUserContent(turns []domain.Message) string {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == domain.RoleUser {
			return turns[i].Content
		}
	}
	return ""
}

// latestUserQuestion skips user turns that merely echo the trigger phrase.
func latestUserQuestion(turns []domain.Message) string {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role != domain.RoleUser {
			continue
		}
		if strings.Contains(strings.ToLower(turns[i].Content), lowerTrigger) {
			continue
		}
		return turns[i].Content
	}
	return ""
}
