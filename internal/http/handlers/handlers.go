// Package handlers – handler wiring and shared request parsing.
package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/automize/chat-support-backend/internal/repo"
	"github.com/automize/chat-support-backend/internal/services"
	"github.com/automize/chat-support-backend/internal/utils"
)

// Handlers bundles the API endpoints with their service dependencies.
// Construct with New and register routes via the router package.
type Handlers struct {
	svc   *services.SessionService
	relay *services.RelayService

	// webhookSecret guards the inbound automation callback. Empty disables
	// the check (local development).
	webhookSecret string
}

// New constructs the handler set. relay may be nil when no outbound webhook
// is configured.
func New(svc *services.SessionService, relay *services.RelayService, webhookSecret string) *Handlers {
	return &Handlers{svc: svc, relay: relay, webhookSecret: webhookSecret}
}

// Pagination is the standard pagination metadata block for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// clampPagination parses page/per_page from query parameters, applies sane
// defaults and caps, and returns the validated (page, perPage).
func clampPagination(c *gin.Context) (page, perPage int) {
	const (
		defaultPage    = 1
		defaultPerPage = 20
		maxPerPage     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	perPage = utils.AtoiDefault(c.Query("per_page"), defaultPerPage)
	if perPage < 1 {
		perPage = 1
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	return
}

// checkpointLayouts are the accepted `since` formats: RFC3339 (what this API
// emits as server_time) and the legacy space-separated form older dashboard
// builds send.
var checkpointLayouts = []string{time.RFC3339Nano, time.RFC3339, time.DateTime}

// parseCheckpoint parses a change-feed checkpoint. An empty or unparsable
// value yields the zero time, which the service treats as "no checkpoint".
func parseCheckpoint(s string) time.Time {
	for _, layout := range checkpointLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// filterFromQuery builds the session list filter from query parameters.
// date_from/date_to accept a plain date; date_to is extended to the end of
// that day so the bound is inclusive.
func filterFromQuery(c *gin.Context) repo.SessionFilter {
	f := repo.SessionFilter{
		Status: c.Query("status"),
		Search: c.Query("search"),
	}
	if v := c.Query("date_from"); v != "" {
		if t, err := time.Parse(time.DateOnly, v); err == nil {
			f.DateFrom = t.UTC()
		}
	}
	if v := c.Query("date_to"); v != "" {
		if t, err := time.Parse(time.DateOnly, v); err == nil {
			f.DateTo = t.UTC().Add(24*time.Hour - time.Nanosecond)
		}
	}
	return f
}

// clientInfo captures the visitor attributes recorded at session creation.
func clientInfo(c *gin.Context, pageURL string) services.ClientInfo {
	return services.ClientInfo{
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		PageURL:   pageURL,
	}
}
