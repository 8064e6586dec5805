// Package dialogue runs one conversational turn: retrieval, grounded answer,
// fallback detection and contact collection.
package dialogue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"supportbot/internal/completion"
	"supportbot/internal/domain"
	"supportbot/internal/fallback"
	"supportbot/internal/logger"
	"supportbot/internal/prompt"
)

const module = "dialogue"

// Replies used while collecting contact details.
const (
	ConfirmationFormat = "Thank you! We've noted your question about: \"%s\" and will contact you at %s shortly."
	SaveFailedReply    = "Sorry, we couldn’t save your question due to a technical issue. Please try again or contact support directly."
	IncompleteReply    = "Sorry, we couldn't extract a valid email or question. Please provide your email address (e.g., user@example.com) and confirm your question."
)

// State is the per-conversation dialogue state. The zero value is Normal.
type State struct {
	AwaitingFallbackInfo bool
	PendingQuestion      string
}

// Reply is the outcome of one turn.
// Failed marks an advisory rather than an answer.
type Reply struct {
	Text              string
	History           []domain.Message
	FallbackTriggered bool
	Failed            bool
}

// Retriever ranks knowledge chunks for a question.
type Retriever interface {
	Retrieve(ctx context.Context, question string) ([]domain.SearchResult, error)
}

// Model opens a streamed completion.
type Model interface {
	Stream(ctx context.Context, msgs []domain.Message) (*completion.Stream, error)
}

// ContactExtractor recovers an email and question from recent turns.
type ContactExtractor interface {
	Extract(ctx context.Context, history []domain.Message, originalQuestion string) fallback.Contact
}

// Orchestrator is stateless; callers pass State in and keep the State it returns.
type Orchestrator struct {
	retriever Retriever
	composer  *prompt.Composer
	model     Model
	extractor ContactExtractor
	sink      domain.EscalationSink
	log       logger.ILogger
	now       func() time.Time
}

func NewOrchestrator(retriever Retriever, composer *prompt.Composer, model Model, extractor ContactExtractor, sink domain.EscalationSink, log logger.ILogger) *Orchestrator {
	return &Orchestrator{
		retriever: retriever,
		composer:  composer,
		model:     model,
		extractor: extractor,
		sink:      sink,
		log:       log,
		now:       time.Now,
	}
}

// Respond handles one user turn. onDelta, when set, receives answer fragments as they stream.
// The input history is never modified.
func (o *Orchestrator) Respond(ctx context.Context, state State, question string, history []domain.Message, onDelta func(string)) (Reply, State) {
	if state.AwaitingFallbackInfo {
		return o.collectContact(ctx, state, question, history)
	}
	return o.answer(ctx, state, question, history, onDelta)
}

func (o *Orchestrator) answer(ctx context.Context, state State, question string, history []domain.Message, onDelta func(string)) (Reply, State) {
	results, err := o.retriever.Retrieve(ctx, question)
	if err != nil {
		o.log.Error(module, "Retrieval failed", map[string]interface{}{"error": err.Error()})
		return failed(history, completion.AdvisoryTechnical), state
	}

	msgs := o.composer.Compose(question, domain.Chunks(results), history)
	stream, err := o.model.Stream(ctx, msgs)
	if err != nil {
		o.log.Warn(module, "Completion failed, history left unchanged", map[string]interface{}{"error": err.Error()})
		return failed(history, completion.Advisory(err)), state
	}
	defer stream.Close()

	var full strings.Builder
	for stream.Next() {
		full.WriteString(stream.Text())
		if onDelta != nil {
			onDelta(stream.Text())
		}
	}
	if err := stream.Err(); err != nil {
		o.log.Warn(module, "Stream ended early, history left unchanged", map[string]interface{}{"error": err.Error()})
		return failed(history, completion.Advisory(err)), state
	}
	if ctx.Err() != nil {
		return failed(history, completion.AdvisoryTechnical), state
	}

	text := full.String()
	reply := Reply{Text: text, History: appendTurns(history, question, text)}
	if fallback.IsFallbackTriggered(text) {
		reply.FallbackTriggered = true
		state = State{AwaitingFallbackInfo: true, PendingQuestion: question}
		o.log.Info(module, "Fallback triggered", map[string]interface{}{"question": question})
	}
	return reply, state
}

func (o *Orchestrator) collectContact(ctx context.Context, state State, question string, history []domain.Message) (Reply, State) {
	withTurn := append(cloneHistory(history), domain.Message{Role: domain.RoleUser, Content: question})
	contact := o.extractor.Extract(ctx, withTurn, state.PendingQuestion)

	var reply Reply
	if !contact.Complete() {
		reply.Text = IncompleteReply
	} else if err := o.sink.Save(ctx, domain.Escalation{
		Email:     contact.Email,
		Question:  contact.Question,
		Timestamp: o.now().UTC(),
	}); err != nil {
		o.log.Error(module, "Escalation not saved, still awaiting contact info", map[string]interface{}{"error": err.Error()})
		reply.Text = SaveFailedReply
		reply.Failed = true
	} else {
		reply.Text = fmt.Sprintf(ConfirmationFormat, contact.Question, contact.Email)
		state = State{}
	}
	reply.History = appendTurns(history, question, reply.Text)
	return reply, state
}

// failed leaves history as it was.
func failed(history []domain.Message, advisory string) Reply {
	return Reply{Text: advisory, History: cloneHistory(history), Failed: true}
}

func appendTurns(history []domain.Message, question, answer string) []domain.Message {
	out := make([]domain.Message, 0, len(history)+2)
	out = append(out, history...)
	return append(out,
		domain.Message{Role: domain.RoleUser, Content: question},
		domain.Message{Role: domain.RoleAssistant, Content: answer},
	)
}

func cloneHistory(history []domain.Message) []domain.Message {
	out := make([]domain.Message, len(history))
	copy(out, history)
	return out
}
