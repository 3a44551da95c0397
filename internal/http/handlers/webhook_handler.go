// Automation webhook handler.
//
// This file exposes the inbound callback the automation platform (the bot)
// posts to after processing a relayed user message:
//   - POST /webhook
//
// The callback delivers the bot's reply (text, optional follow-up question,
// optional quick replies) and, when the flow captured contact details, a
// visitor_info block that may promote the session to a lead.
//
// Authentication is a shared-secret header (X-Webhook-Secret). When no secret
// is configured the check is skipped, which is only acceptable for local
// development.
package handlers

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/automize/chat-support-backend/internal/domain"
	"github.com/automize/chat-support-backend/internal/services"
)

// WebhookVisitorInfo is the contact block the automation flow may attach.
type WebhookVisitorInfo struct {
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
	Phone  string `json:"phone,omitempty"`
	IsLead bool   `json:"is_lead,omitempty"`
}

// WebhookRequest is the callback payload from the automation platform.
//
// Text carries the bot's answer; Question, when present, is appended on its
// own line so the widget renders answer and follow-up as one bubble.
type WebhookRequest struct {
	SessionID    string              `json:"session_id" binding:"required"`
	Text         string              `json:"text"`
	Question     string              `json:"question,omitempty"`
	QuickReplies domain.QuickReplies `json:"quick_replies,omitempty"`
	VisitorInfo  *WebhookVisitorInfo `json:"visitor_info,omitempty"`
}

// WebhookResponse acknowledges the processed callback.
type WebhookResponse struct {
	Success bool            `json:"success"`
	Message *domain.Message `json:"message,omitempty"`
}

// webhookSecretHeader carries the shared secret on inbound callbacks.
const webhookSecretHeader = "X-Webhook-Secret"

// Webhook godoc
// @ID          automationWebhook
// @Summary     Receive a bot reply callback
// @Description Saves the bot's reply for a session and merges any captured
// @Description visitor contact details, optionally promoting the session to
// @Description lead status.
// @Tags        Webhook
// @Accept      json
// @Produce     json
// @Param       X-Webhook-Secret  header  string  false  "Shared callback secret"
// @Param       body  body  handlers.WebhookRequest  true  "Callback payload"
// @Success     200  {object}  handlers.WebhookResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse  "Bad secret"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /webhook [post]
func (h *Handlers) Webhook(c *gin.Context) {
	if h.webhookSecret != "" {
		got := c.GetHeader(webhookSecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.webhookSecret)) != 1 {
			fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid webhook secret")
			return
		}
	}

	var req WebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "session_id required")
		return
	}

	// Compose the bot bubble: answer text plus the follow-up question on its
	// own line when both are present.
	content := strings.TrimSpace(req.Text)
	if q := strings.TrimSpace(req.Question); q != "" {
		if content != "" {
			content += "\n" + q
		} else {
			content = q
		}
	}

	resp := WebhookResponse{Success: true}
	ctx := c.Request.Context()

	if content == "" && len(req.QuickReplies) > 0 {
		// Quick replies need a carrier message; a bare option list without
		// text is a broken flow.
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "text required with quick_replies")
		return
	}

	if content != "" {
		m, err := h.svc.SaveMessage(ctx, services.SaveMessageInput{
			SessionID:    req.SessionID,
			Sender:       domain.SenderBot,
			Content:      content,
			QuickReplies: req.QuickReplies,
		})
		if err != nil {
			switch {
			case errors.Is(err, services.ErrInvalidSessionID):
				fail(c, http.StatusBadRequest, ErrCodeInvalidSession, "session id must start with chat_")
			case errors.Is(err, services.ErrEmptyMessage):
				fail(c, http.StatusBadRequest, ErrCodeBadRequest, "text or quick_replies required")
			default:
				fail(c, http.StatusInternalServerError, ErrCodeSaveFailed, err.Error())
			}
			return
		}
		resp.Message = m
	}

	if vi := req.VisitorInfo; vi != nil {
		promote := vi.IsLead || vi.Email != "" || vi.Phone != ""
		if err := h.svc.UpdateVisitorInfo(ctx, req.SessionID, vi.Name, vi.Email, vi.Phone, promote); err != nil &&
			!errors.Is(err, services.ErrSessionNotFound) {
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
			return
		}
	}

	ok(c, http.StatusOK, resp)
}
