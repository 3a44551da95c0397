// Message HTTP handlers.
//
// This file exposes the widget-facing message endpoint:
//   - POST /messages  (persist one chat turn, then relay user turns to the bot)
//
// Handlers are transport-thin:
//   - validate & normalize inputs
//   - delegate to the session service
//   - relay user messages to the automation endpoint out-of-band
//
// Relay semantics: the visitor's message is durable before the relay fires,
// and relay failures never surface to the widget. The bot answers through the
// inbound webhook callback, not through this request's response.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/automize/chat-support-backend/internal/domain"
	"github.com/automize/chat-support-backend/internal/services"
)

// PostMessageRequest is the JSON payload for persisting a chat turn.
//
// Sender is optional; anything other than "bot" is stored as "user".
type PostMessageRequest struct {
	SessionID    string              `json:"session_id" binding:"required" example:"chat_k3j5h2g8f9d0"`
	Message      string              `json:"message" binding:"required,min=1" example:"Do you ship to Belgium?"`
	Sender       string              `json:"sender" example:"user"`
	QuickReplies domain.QuickReplies `json:"quick_replies,omitempty"`
	Payload      string              `json:"payload,omitempty" example:"faq_shipping"`
	PageURL      string              `json:"page_url,omitempty" example:"https://shop.example.com/pricing"`
}

// PostMessageResponse is the JSON envelope for a persisted message.
type PostMessageResponse struct {
	Success bool            `json:"success"`
	Message *domain.Message `json:"message"`
}

// relayTimeout bounds the detached outbound relay call.
const relayTimeout = 10 * time.Second

// nlCollapseRE collapses runs of 3+ newlines to two, preserving paragraphs.
var nlCollapseRE = regexp.MustCompile(`\n{3,}`)

// sanitizeContent normalizes message text for consistent downstream behavior:
//   - converts CRLF/CR to LF,
//   - collapses runs of 3+ LFs to exactly two (paragraph separation),
//   - trims surrounding whitespace.
func sanitizeContent(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = nlCollapseRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// PostMessage godoc
// @ID          postMessage
// @Summary     Save a chat message
// @Description Persists one chat turn for a session, creating the session on
// @Description first contact. User-authored turns are relayed to the
// @Description automation endpoint; the bot's answer arrives via the webhook.
// @Tags        Messages
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.PostMessageRequest  true  "Message payload"
//
// @Success     200  {object}  handlers.PostMessageResponse  "Saved message"
// @Failure     400  {object}  handlers.ErrorResponse        "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse        "Internal error"
// @Router      /messages [post]
func (h *Handlers) PostMessage(c *gin.Context) {
	ctx := c.Request.Context()

	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "session_id and message required")
		return
	}

	content := sanitizeContent(req.Message)
	if content == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message required")
		return
	}

	m, err := h.svc.SaveMessage(ctx, services.SaveMessageInput{
		SessionID:    req.SessionID,
		Sender:       req.Sender,
		Content:      content,
		QuickReplies: req.QuickReplies,
		Payload:      req.Payload,
		Client:       clientInfo(c, req.PageURL),
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidSessionID):
			fail(c, http.StatusBadRequest, ErrCodeInvalidSession, "session id must start with chat_")
		case errors.Is(err, services.ErrEmptyMessage):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message required")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeSaveFailed, err.Error())
		}
		return
	}

	// Relay user turns to the bot after responding; detached from the
	// request context so client disconnects cannot cancel the forward.
	if m.Sender == domain.SenderUser && h.relay != nil && h.relay.Enabled() {
		payload := services.RelayPayload{
			SessionID: m.SessionID,
			Message:   m.Content,
			Payload:   m.Payload,
			PageURL:   req.PageURL,
		}
		go func() {
			rctx, cancel := context.WithTimeout(context.Background(), relayTimeout)
			defer cancel()
			_ = h.relay.Forward(rctx, payload)
		}()
	}

	ok(c, http.StatusOK, PostMessageResponse{Success: true, Message: m})
}
