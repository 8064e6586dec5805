package server

import "supportbot/internal/domain"

type MessageDTO struct {
	Role    string `json:"role" validate:"required,oneof=user assistant"`
	Content string `json:"content"`
}

type ChatRequest struct {
	SessionID string `json:"session_id" validate:"omitempty,uuid"`
	Message   string `json:"message" validate:"required,max=4000"`
	// History, when present, replaces the server-side transcript for this turn.
	History []MessageDTO `json:"history" validate:"omitempty,max=200,dive"`
}

type ChatResponse struct {
	SessionID  string       `json:"session_id"`
	Response   string       `json:"response"`
	History    []MessageDTO `json:"history"`
	IsFallback bool         `json:"is_fallback"`
	Failed     bool         `json:"failed"`
}

type DeltaEvent struct {
	Text string `json:"text"`
}

func toDomain(in []MessageDTO) []domain.Message {
	if in == nil {
		return nil
	}
	out := make([]domain.Message, len(in))
	for i, m := range in {
		out[i] = domain.Message{Role: m.Role, Content: m.Content}
	}
	return out
}

func fromDomain(in []domain.Message) []MessageDTO {
	out := make([]MessageDTO, len(in))
	for i, m := range in {
		out[i] = MessageDTO{Role: m.Role, Content: m.Content}
	}
	return out
}
