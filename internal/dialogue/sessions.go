package dialogue

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"supportbot/internal/domain"
	"supportbot/internal/session"
)

// Sessions runs turns for many conversations, keeping each one's state in a session store.
// Turns within one session are serialized; different sessions run concurrently.
type Sessions struct {
	orch  *Orchestrator
	store session.Store

	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func NewSessions(orch *Orchestrator, store session.Store) *Sessions {
	return &Sessions{orch: orch, store: store, locks: make(map[string]*sessionLock)}
}

// NewSessionID returns a fresh random session id.
func NewSessionID() string { return uuid.NewString() }

// Turn answers question within session id. A nil history means "use the stored one".
func (s *Sessions) Turn(ctx context.Context, id, question string, history []domain.Message, onDelta func(string)) (Reply, error) {
	unlock := s.lock(id)
	defer unlock()

	rec, _, err := s.store.Get(ctx, id)
	if err != nil {
		return Reply{}, fmt.Errorf("load session: %w", err)
	}
	if history == nil {
		history = rec.History
	}

	state := State{AwaitingFallbackInfo: rec.AwaitingFallbackInfo, PendingQuestion: rec.PendingQuestion}
	reply, next := s.orch.Respond(ctx, state, question, history, onDelta)

	err = s.store.Put(ctx, id, session.Record{
		AwaitingFallbackInfo: next.AwaitingFallbackInfo,
		PendingQuestion:      next.PendingQuestion,
		History:              reply.History,
	})
	if err != nil {
		return reply, fmt.Errorf("save session: %w", err)
	}
	return reply, nil
}

// State returns the stored dialogue state of a session.
func (s *Sessions) State(ctx context.Context, id string) (State, error) {
	rec, _, err := s.store.Get(ctx, id)
	if err != nil {
		return State{}, err
	}
	return State{AwaitingFallbackInfo: rec.AwaitingFallbackInfo, PendingQuestion: rec.PendingQuestion}, nil
}

// Reset forgets a session.
func (s *Sessions) Reset(ctx context.Context, id string) error {
	unlock := s.lock(id)
	defer unlock()
	return s.store.Delete(ctx, id)
}

func (s *Sessions) lock(id string) func() {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &sessionLock{}
		s.locks[id] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, id)
		}
		s.mu.Unlock()
	}
}
