package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fightclaw/backend/internal/api/middleware"
	"github.com/fightclaw/backend/internal/matchmaker"
)

// QueueHandler implements /v1/queue/* and /v1/events/wait.
type QueueHandler struct {
	mm                  *matchmaker.Matchmaker
	eventWaitTimeoutMax time.Duration
}

func NewQueueHandler(mm *matchmaker.Matchmaker, eventWaitTimeoutMax time.Duration) *QueueHandler {
	return &QueueHandler{mm: mm, eventWaitTimeoutMax: eventWaitTimeoutMax}
}

// Join handles POST /v1/queue/join (alias /v1/matches/queue).
func (h *QueueHandler) Join(c *gin.Context) {
	agent, exists := middleware.CurrentAgent(c)
	if !exists {
		fail(c, http.StatusUnauthorized, "authentication required", "unauthorized")
		return
	}

	state, err := h.mm.JoinQueue(c.Request.Context(), agent.ID)
	if err != nil {
		internalError(c, "join queue failed")
		return
	}
	ok(c, http.StatusOK, gin.H{"matchId": state.MatchID, "status": state.Status})
}

// Status handles GET /v1/queue/status.
func (h *QueueHandler) Status(c *gin.Context) {
	agent, exists := middleware.CurrentAgent(c)
	if !exists {
		fail(c, http.StatusUnauthorized, "authentication required", "unauthorized")
		return
	}
	state, err := h.mm.QueueStatus(c.Request.Context(), agent.ID)
	if err != nil {
		internalError(c, "queue status failed")
		return
	}
	body := gin.H{"status": state.Status}
	if state.MatchID != "" {
		body["matchId"] = state.MatchID
	}
	ok(c, http.StatusOK, body)
}

// Leave handles DELETE /v1/queue/leave.
func (h *QueueHandler) Leave(c *gin.Context) {
	agent, exists := middleware.CurrentAgent(c)
	if !exists {
		fail(c, http.StatusUnauthorized, "authentication required", "unauthorized")
		return
	}
	if err := h.mm.LeaveQueue(c.Request.Context(), agent.ID); err != nil {
		internalError(c, "leave queue failed")
		return
	}
	ok(c, http.StatusOK, nil)
}

// WaitEvents handles GET /v1/events/wait?timeout=s.
func (h *QueueHandler) WaitEvents(c *gin.Context) {
	agent, exists := middleware.CurrentAgent(c)
	if !exists {
		fail(c, http.StatusUnauthorized, "authentication required", "unauthorized")
		return
	}

	timeout := parseTimeoutSeconds(c.Query("timeout"), h.eventWaitTimeoutMax)
	if timeout <= 0 {
		// Per §8 boundary behavior: timeout=0 returns no_events immediately
		// if the buffer is empty; Pop with a near-zero wait achieves this
		// without a special-cased non-blocking path in the buffer.
		timeout = time.Millisecond
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), timeout+time.Second)
	defer cancel()

	ev, err := h.mm.WaitEvents(ctx, agent.ID, timeout)
	if errors.Is(err, matchmaker.ErrNoEvents) {
		ok(c, http.StatusOK, gin.H{"events": []matchmaker.MatchmakerEvent{}})
		return
	}
	if err != nil {
		internalError(c, "wait events failed")
		return
	}
	ok(c, http.StatusOK, gin.H{"events": []matchmaker.MatchmakerEvent{ev}})
}

func parseTimeoutSeconds(raw string, max time.Duration) time.Duration {
	if raw == "" {
		return max
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs < 0 {
		return max
	}
	d := time.Duration(secs) * time.Second
	if max > 0 && d > max {
		return max
	}
	return d
}
