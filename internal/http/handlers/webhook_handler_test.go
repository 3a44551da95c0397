package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/automize/chat-support-backend/internal/domain"
	"github.com/automize/chat-support-backend/internal/repo"
)

func TestWebhook_SecretRequired(t *testing.T) {
	r, _ := newTestRouter(t, "topsecret")

	w := doJSON(t, r, http.MethodPost, "/webhook", gin.H{
		"session_id": "chat_hook0001",
		"text":       "hi",
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("missing secret: status = %d", w.Code)
	}
	if resp := decode[ErrorResponse](t, w); resp.Code != ErrCodeUnauthorized {
		t.Fatalf("code = %q", resp.Code)
	}
}

func TestWebhook_SecretAccepted(t *testing.T) {
	r, _ := newTestRouter(t, "topsecret")

	req := jsonRequest(t, http.MethodPost, "/webhook", gin.H{
		"session_id": "chat_hook0002",
		"text":       "hello from the bot",
	})
	req.Header.Set("X-Webhook-Secret", "topsecret")
	w := serve(r, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	resp := decode[WebhookResponse](t, w)
	if resp.Message == nil || resp.Message.Sender != domain.SenderBot {
		t.Fatalf("bot message not saved: %s", w.Body.String())
	}
}

func TestWebhook_ComposesTextAndQuestion(t *testing.T) {
	r, db := newTestRouter(t, "")

	w := doJSON(t, r, http.MethodPost, "/webhook", gin.H{
		"session_id": "chat_hook0003",
		"text":       "We ship worldwide.",
		"question":   "Would you like a quote?",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	resp := decode[WebhookResponse](t, w)
	want := "We ship worldwide.\nWould you like a quote?"
	if resp.Message == nil || resp.Message.Content != want {
		t.Fatalf("content = %q, want %q", resp.Message.Content, want)
	}

	msgs, err := repo.ListMessages(context.Background(), db, "chat_hook0003")
	if err != nil || len(msgs) != 1 {
		t.Fatalf("messages: %v len=%d", err, len(msgs))
	}
}

func TestWebhook_QuickRepliesNeedText(t *testing.T) {
	r, _ := newTestRouter(t, "")

	w := doJSON(t, r, http.MethodPost, "/webhook", gin.H{
		"session_id": "chat_hook0004",
		"quick_replies": []gin.H{
			{"label": "Yes", "payload": "yes"},
			{"label": "No", "payload": "no"},
		},
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestWebhook_VisitorInfoPromotesLead(t *testing.T) {
	r, db := newTestRouter(t, "")
	doJSON(t, r, http.MethodPost, "/sessions", gin.H{"session_id": "chat_hook0005"})

	w := doJSON(t, r, http.MethodPost, "/webhook", gin.H{
		"session_id": "chat_hook0005",
		"text":       "Thanks, we will be in touch.",
		"visitor_info": gin.H{
			"name":  "jane doe",
			"email": "jane@example.com",
		},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}

	sess, err := repo.GetSession(context.Background(), db, "chat_hook0005")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if sess.VisitorEmail != "jane@example.com" {
		t.Fatalf("email not merged: %+v", sess)
	}
	if sess.Status != domain.StatusLead {
		t.Fatalf("captured email must promote to lead, status = %q", sess.Status)
	}
}

func TestWebhook_InfoOnlyCallback(t *testing.T) {
	r, db := newTestRouter(t, "")
	doJSON(t, r, http.MethodPost, "/sessions", gin.H{"session_id": "chat_hook0006"})

	// No text at all: just a visitor_info update. No message is created.
	w := doJSON(t, r, http.MethodPost, "/webhook", gin.H{
		"session_id":   "chat_hook0006",
		"visitor_info": gin.H{"name": "Sam"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	resp := decode[WebhookResponse](t, w)
	if resp.Message != nil {
		t.Fatalf("no message expected, got %+v", resp.Message)
	}

	n, err := repo.CountMessages(context.Background(), db, "chat_hook0006")
	if err != nil || n != 0 {
		t.Fatalf("messages = %d err=%v", n, err)
	}
	sess, _ := repo.GetSession(context.Background(), db, "chat_hook0006")
	if sess.VisitorName != "Sam" || sess.Status != domain.StatusActive {
		t.Fatalf("name only must not promote: %+v", sess)
	}
}
