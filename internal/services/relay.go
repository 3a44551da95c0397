// Package services – outbound webhook relay
//
// RelayService forwards saved user messages to the external automation
// endpoint (the bot). Delivery is fire-and-forget: the visitor's message is
// already durable by the time the relay runs, so a delivery failure is logged
// and counted but never surfaced to the sender. The bot answers out-of-band
// through the inbound webhook callback.
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/automize/chat-support-backend/internal/config"
)

// RelayPayload is the JSON body posted to the automation endpoint for each
// user message.
type RelayPayload struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	Payload   string `json:"payload,omitempty"`
	PageURL   string `json:"page_url,omitempty"`
}

// RelayService posts user messages to the configured automation webhook.
// A zero-URL configuration disables the relay entirely.
type RelayService struct {
	cfg    config.WebhookConfig
	client *http.Client
}

// NewRelayService constructs a RelayService with the configured timeout.
func NewRelayService(cfg config.WebhookConfig) *RelayService {
	return &RelayService{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Enabled reports whether an outbound endpoint is configured.
func (r *RelayService) Enabled() bool { return r.cfg.URL != "" }

// Forward posts the payload to the automation endpoint. Failures are logged
// and counted; the error return exists for tests and callers that care, but
// the HTTP layer ignores it.
func (r *RelayService) Forward(ctx context.Context, p RelayPayload) error {
	if !r.Enabled() {
		return nil
	}

	body, err := json.Marshal(p)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if r.cfg.Secret != "" {
		req.Header.Set("X-Webhook-Secret", r.cfg.Secret)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		webhookRelays.WithLabelValues("error").Inc()
		log.Warn().Err(err).Str("session_id", p.SessionID).Msg("webhook relay failed")
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		webhookRelays.WithLabelValues("rejected").Inc()
		log.Warn().Int("status", resp.StatusCode).Str("session_id", p.SessionID).Msg("webhook relay rejected")
		return nil
	}
	webhookRelays.WithLabelValues("ok").Inc()
	return nil
}
