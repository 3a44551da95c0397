// Change-feed HTTP handler.
//
// This file exposes the polling endpoint the dashboard uses instead of a
// push channel:
//   - GET /sessions/changes?since=<checkpoint>&open_session=<token>
//
// Checkpoint discipline: the response carries server_time, and the consumer
// must echo it back as `since` on the next poll. Consumers never substitute
// their own clock; client/server skew would open delivery gaps.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Changes godoc
// @ID          sessionChanges
// @Summary     Poll for session and message changes
// @Description Returns sessions touched since the checkpoint and, when
// @Description open_session is set, that session's messages since the same
// @Description checkpoint. An empty checkpoint covers only the last minute.
// @Tags        Sessions
// @Produce     json
// @Param       since         query  string  false "Checkpoint from the previous response's server_time (RFC3339)"
// @Param       open_session  query  string  false "Session currently open in a detail view"
// @Success     200  {object}  services.ChangeSet
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /sessions/changes [get]
func (h *Handlers) Changes(c *gin.Context) {
	since := parseCheckpoint(c.Query("since"))
	openSession := c.Query("open_session")

	set, err := h.svc.Changes(c.Request.Context(), since, openSession)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeChangesFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, set)
}
