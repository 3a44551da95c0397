// Session HTTP handlers.
//
// This file exposes REST endpoints for chat sessions:
//   - POST   /sessions               (ensure a session exists)
//   - GET    /sessions               (paginated, filterable listing)
//   - GET    /sessions/:id           (detail with full history)
//   - PUT    /sessions/:id/status    (status transition)
//   - POST   /sessions/:id/location  (GPS/manual location update)
//   - DELETE /sessions               (bulk delete)
//   - GET    /sessions/export        (CSV export of the filtered listing)
//   - GET    /stats                  (dashboard counters)
//
// Handlers are transport-thin: validate inputs, delegate to the session
// service, translate sentinel errors to the standard envelope.
package handlers

import (
	"encoding/csv"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/automize/chat-support-backend/internal/domain"
	"github.com/automize/chat-support-backend/internal/services"
)

//
// DTOs
//

// StartSessionRequest is the JSON payload for announcing a new widget session.
type StartSessionRequest struct {
	SessionID string `json:"session_id" binding:"required" example:"chat_k3j5h2g8f9d0"`
	PageURL   string `json:"page_url,omitempty" example:"https://shop.example.com/pricing"`
}

// StartSessionResponse echoes the ensured session.
type StartSessionResponse struct {
	Success bool            `json:"success"`
	Session *domain.Session `json:"session"`
}

// ListSessionsResponse contains a page of session summaries plus pagination
// metadata.
type ListSessionsResponse struct {
	Sessions   []services.SessionSummary `json:"sessions"`
	Pagination Pagination                `json:"pagination"`
}

// SessionDetailResponse is a session with its full message history.
type SessionDetailResponse struct {
	Session  *domain.Session  `json:"session"`
	Messages []domain.Message `json:"messages"`
}

// UpdateStatusRequest carries a status transition.
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required" example:"completed"`
}

// UpdateStatusResponse echoes the applied status with its display label.
type UpdateStatusResponse struct {
	Success bool   `json:"success"`
	Status  string `json:"status"`
	Label   string `json:"label"`
}

// UpdateLocationRequest carries a location update. Coordinates trigger a
// reverse geocode; named fields are merged as provided.
type UpdateLocationRequest struct {
	Latitude    *float64 `json:"latitude,omitempty" example:"50.8503"`
	Longitude   *float64 `json:"longitude,omitempty" example:"4.3517"`
	Country     *string  `json:"country,omitempty" example:"Belgium"`
	CountryCode *string  `json:"country_code,omitempty" example:"BE"`
	City        *string  `json:"city,omitempty" example:"Brussels"`
	Region      *string  `json:"region,omitempty" example:"Brussels-Capital"`
}

// DeleteSessionsRequest names the sessions to remove.
type DeleteSessionsRequest struct {
	SessionIDs []string `json:"session_ids" binding:"required"`
}

// DeleteSessionsResponse reports how many sessions were removed.
type DeleteSessionsResponse struct {
	Success bool  `json:"success"`
	Deleted int64 `json:"deleted"`
}

//
// Handlers
//

// StartSession godoc
// @ID          startSession
// @Summary     Announce a widget session
// @Description Ensures a session row exists for the token, capturing client
// @Description IP, user agent, page URL, and best-effort geolocation.
// @Tags        Sessions
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.StartSessionRequest  true  "Session payload"
// @Success     200  {object}  handlers.StartSessionResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /sessions [post]
func (h *Handlers) StartSession(c *gin.Context) {
	var req StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "session_id required")
		return
	}

	sess, err := h.svc.StartSession(c.Request.Context(), req.SessionID, clientInfo(c, req.PageURL))
	if err != nil {
		if errors.Is(err, services.ErrInvalidSessionID) {
			fail(c, http.StatusBadRequest, ErrCodeInvalidSession, "session id must start with chat_")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, StartSessionResponse{Success: true, Session: sess})
}

// ListSessions godoc
// @ID          listSessions
// @Summary     List chat sessions
// @Description Returns a paginated session listing, filterable by status,
// @Description free-text search, and start-date range.
// @Tags        Sessions
// @Produce     json
// @Param       page       query  int     false "Page number"     minimum(1) default(1)
// @Param       per_page   query  int     false "Items per page"  minimum(1) maximum(100) default(20)
// @Param       status     query  string  false "Status filter"   Enums(active, completed, lead, abandoned)
// @Param       search     query  string  false "Matches token, name, email, phone"
// @Param       date_from  query  string  false "Start date lower bound (YYYY-MM-DD)"
// @Param       date_to    query  string  false "Start date upper bound (YYYY-MM-DD)"
// @Success     200  {object}  handlers.ListSessionsResponse
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /sessions [get]
func (h *Handlers) ListSessions(c *gin.Context) {
	page, perPage := clampPagination(c)

	sessions, total, err := h.svc.ListSessions(c.Request.Context(), filterFromQuery(c), page, perPage)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	totalPages := int((total + int64(perPage) - 1) / int64(perPage))
	ok(c, http.StatusOK, ListSessionsResponse{
		Sessions: sessions,
		Pagination: Pagination{
			Page:       page,
			PerPage:    perPage,
			Total:      total,
			TotalPages: totalPages,
		},
	})
}

// SessionDetail godoc
// @ID          sessionDetail
// @Summary     Session detail with history
// @Description Returns a session and its full message history, backfilling
// @Description extracted contact details when none are stored yet.
// @Tags        Sessions
// @Produce     json
// @Param       id  path  string  true  "Session token"
// @Success     200  {object}  handlers.SessionDetailResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /sessions/{id} [get]
func (h *Handlers) SessionDetail(c *gin.Context) {
	sess, messages, err := h.svc.SessionDetail(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrSessionNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "session not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, SessionDetailResponse{Session: sess, Messages: messages})
}

// UpdateStatus godoc
// @ID          updateSessionStatus
// @Summary     Update session status
// @Tags        Sessions
// @Accept      json
// @Produce     json
// @Param       id    path  string  true  "Session token"
// @Param       body  body  handlers.UpdateStatusRequest  true  "New status"
// @Success     200  {object}  handlers.UpdateStatusResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid status"
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /sessions/{id}/status [put]
func (h *Handlers) UpdateStatus(c *gin.Context) {
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "status required")
		return
	}

	err := h.svc.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status)
	switch {
	case err == nil:
		ok(c, http.StatusOK, UpdateStatusResponse{
			Success: true,
			Status:  req.Status,
			Label:   domain.StatusLabel(req.Status),
		})
	case errors.Is(err, services.ErrInvalidSessionID):
		fail(c, http.StatusBadRequest, ErrCodeInvalidSession, "session id must start with chat_")
	case errors.Is(err, services.ErrInvalidStatus):
		fail(c, http.StatusBadRequest, ErrCodeInvalidStatus, "status must be one of: active, completed, lead, abandoned")
	case errors.Is(err, services.ErrSessionNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "session not found")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}

// UpdateLocation godoc
// @ID          updateSessionLocation
// @Summary     Update session location
// @Description Merges a location update into the session. Coordinates are
// @Description reverse-geocoded and marked as GPS-sourced, overriding any
// @Description IP-derived values.
// @Tags        Sessions
// @Accept      json
// @Produce     json
// @Param       id    path  string  true  "Session token"
// @Param       body  body  handlers.UpdateLocationRequest  true  "Location payload"
// @Success     200  {object}  map[string]any
// @Failure     400  {object}  handlers.ErrorResponse  "No location data"
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /sessions/{id}/location [post]
func (h *Handlers) UpdateLocation(c *gin.Context) {
	var req UpdateLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid location payload")
		return
	}

	applied, err := h.svc.UpdateLocation(c.Request.Context(), c.Param("id"), services.LocationInput{
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
		Country:     req.Country,
		CountryCode: req.CountryCode,
		City:        req.City,
		Region:      req.Region,
	})
	switch {
	case err == nil:
		ok(c, http.StatusOK, gin.H{"success": true, "location": applied})
	case errors.Is(err, services.ErrInvalidSessionID):
		fail(c, http.StatusBadRequest, ErrCodeInvalidSession, "session id must start with chat_")
	case errors.Is(err, services.ErrNoLocation):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "no location data provided")
	case errors.Is(err, services.ErrSessionNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "session not found")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}

// DeleteSessions godoc
// @ID          deleteSessions
// @Summary     Delete sessions
// @Description Removes the named sessions and their message history. Unknown
// @Description tokens are skipped; the response reports the actual count.
// @Tags        Sessions
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.DeleteSessionsRequest  true  "Session tokens"
// @Success     200  {object}  handlers.DeleteSessionsResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /sessions [delete]
func (h *Handlers) DeleteSessions(c *gin.Context) {
	var req DeleteSessionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "session_ids required")
		return
	}

	deleted, err := h.svc.DeleteSessions(c.Request.Context(), req.SessionIDs)
	if err != nil {
		if errors.Is(err, services.ErrNoSessionIDs) {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "session_ids required")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeDeleteFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, DeleteSessionsResponse{Success: true, Deleted: deleted})
}

// ExportSessionsResponse wraps the export rows (header row first).
type ExportSessionsResponse struct {
	Success bool       `json:"success"`
	Rows    [][]string `json:"rows"`
}

// ExportSessions godoc
// @ID          exportSessions
// @Summary     Export the session listing
// @Description Returns the filtered session listing as export rows (header row
// @Description first). With "Accept: text/csv" the rows are streamed as a CSV
// @Description attachment instead.
// @Tags        Sessions
// @Produce     json
// @Produce     text/csv
// @Param       status     query  string  false "Status filter"
// @Param       search     query  string  false "Free-text search"
// @Param       date_from  query  string  false "Start date lower bound (YYYY-MM-DD)"
// @Param       date_to    query  string  false "Start date upper bound (YYYY-MM-DD)"
// @Success     200  {object}  handlers.ExportSessionsResponse
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /sessions/export [get]
func (h *Handlers) ExportSessions(c *gin.Context) {
	rows, err := h.svc.ExportCSV(c.Request.Context(), filterFromQuery(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeExportFailed, err.Error())
		return
	}

	if !strings.Contains(c.GetHeader("Accept"), "text/csv") {
		ok(c, http.StatusOK, ExportSessionsResponse{Success: true, Rows: rows})
		return
	}

	filename := "chat-sessions-" + time.Now().UTC().Format(time.DateOnly) + ".csv"
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Status(http.StatusOK)

	w := csv.NewWriter(c.Writer)
	if err := w.WriteAll(rows); err != nil {
		// Headers are already out; log via the request logger and stop.
		_ = c.Error(err)
	}
}

// Stats godoc
// @ID          dashboardStats
// @Summary     Dashboard counters
// @Tags        Sessions
// @Produce     json
// @Success     200  {object}  repo.DashboardStats
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /stats [get]
func (h *Handlers) Stats(c *gin.Context) {
	stats, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeStatsFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, stats)
}
