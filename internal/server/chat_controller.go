package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"supportbot/internal/dialogue"
	"supportbot/internal/logger"
)

type ChatController struct {
	sessions *dialogue.Sessions
	base     context.Context
	log      logger.ILogger
}

// NewChatController serves turns; streamed turns end when base is cancelled.
func NewChatController(sessions *dialogue.Sessions, base context.Context, log logger.ILogger) *ChatController {
	return &ChatController{sessions: sessions, base: base, log: log}
}

func (c *ChatController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/chat/v1")
	h.Post("", c.Chat)
	h.Post("/stream", c.Stream)
	h.Delete("/:session_id", c.Reset)
}

// Chat runs one turn and returns the full reply.
func (c *ChatController) Chat(ctx *fiber.Ctx) error {
	req, err := c.parse(ctx)
	if err != nil {
		return err
	}
	reply, err := c.sessions.Turn(ctx.UserContext(), req.SessionID, req.Message, toDomain(req.History), nil)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "session store unavailable")
	}
	return ctx.JSON(SuccessResponse("ok", toResponse(req.SessionID, reply)))
}

// Stream runs one turn as server-sent events: "delta" per fragment, then a single "done" or "error".
func (c *ChatController) Stream(ctx *fiber.Ctx) error {
	req, err := c.parse(ctx)
	if err != nil {
		return err
	}
	history := toDomain(req.History)

	ctx.Set(fiber.HeaderContentType, "text/event-stream")
	ctx.Set(fiber.HeaderCacheControl, "no-cache")
	ctx.Set(fiber.HeaderConnection, "keep-alive")

	ctx.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		turnCtx, cancel := context.WithCancel(c.base)
		defer cancel()

		onDelta := func(text string) {
			if err := writeEvent(w, "delta", DeltaEvent{Text: text}); err != nil {
				// client went away; abandon the turn so nothing is recorded
				cancel()
			}
		}
		reply, err := c.sessions.Turn(turnCtx, req.SessionID, req.Message, history, onDelta)
		if err != nil {
			c.log.Error(module, "Streamed turn failed", map[string]interface{}{"session_id": req.SessionID, "error": err.Error()})
			_ = writeEvent(w, "error", fiber.Map{"message": "session store unavailable"})
			return
		}
		_ = writeEvent(w, "done", toResponse(req.SessionID, reply))
	})
	return nil
}

// Reset forgets a session's state and transcript.
func (c *ChatController) Reset(ctx *fiber.Ctx) error {
	id := ctx.Params("session_id")
	if err := ValidateRequest(struct {
		ID string `validate:"required,uuid"`
	}{ID: id}); err != nil {
		return err
	}
	if err := c.sessions.Reset(ctx.UserContext(), id); err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "session store unavailable")
	}
	return ctx.JSON(SuccessResponse[any]("session reset", nil))
}

func (c *ChatController) parse(ctx *fiber.Ctx) (ChatRequest, error) {
	var req ChatRequest
	if err := ctx.BodyParser(&req); err != nil {
		return req, fiber.NewError(fiber.StatusBadRequest, "malformed request body")
	}
	if err := ValidateRequest(req); err != nil {
		return req, err
	}
	if req.SessionID == "" {
		req.SessionID = dialogue.NewSessionID()
	}
	return req, nil
}

func toResponse(sessionID string, reply dialogue.Reply) ChatResponse {
	return ChatResponse{
		SessionID:  sessionID,
		Response:   reply.Text,
		History:    fromDomain(reply.History),
		IsFallback: reply.FallbackTriggered,
		Failed:     reply.Failed,
	}
}

func writeEvent(w *bufio.Writer, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	return w.Flush()
}
