// Package session keeps per-conversation dialogue state between turns.
package session

import (
	"context"

	"supportbot/internal/domain"
)

// Record is everything persisted for one conversation.
type Record struct {
	AwaitingFallbackInfo bool             `json:"awaiting_fallback_info"`
	PendingQuestion      string           `json:"pending_question,omitempty"`
	History              []domain.Message `json:"history,omitempty"`
}

// Store maps session ids to records. Implementations must be safe for concurrent use.
type Store interface {
	Get(ctx context.Context, id string) (Record, bool, error)
	Put(ctx context.Context, id string, r Record) error
	Delete(ctx context.Context, id string) error
}

func cloneHistory(h []domain.Message) []domain.Message {
	if h == nil {
		return nil
	}
	out := make([]domain.Message, len(h))
	copy(out, h)
	return out
}
