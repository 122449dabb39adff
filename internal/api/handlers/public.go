package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/fightclaw/backend/internal/matchmaker"
	"github.com/fightclaw/backend/internal/repository"
)

// PublicHandler implements the unauthenticated read routes: featured, live
// and the leaderboard.
type PublicHandler struct {
	mm    *matchmaker.Matchmaker
	store repository.Store
}

func NewPublicHandler(mm *matchmaker.Matchmaker, store repository.Store) *PublicHandler {
	return &PublicHandler{mm: mm, store: store}
}

// Featured handles GET /v1/featured.
func (h *PublicHandler) Featured(c *gin.Context) {
	body, err := h.mm.Featured(c.Request.Context())
	if err != nil {
		internalError(c, "featured lookup failed")
		return
	}
	ok(c, http.StatusOK, toGinH(body))
}

// Live handles GET /v1/live.
func (h *PublicHandler) Live(c *gin.Context) {
	body, err := h.mm.Live(c.Request.Context())
	if err != nil {
		internalError(c, "live lookup failed")
		return
	}
	ok(c, http.StatusOK, toGinH(body))
}

// Leaderboard handles GET /v1/leaderboard?limit=.
func (h *PublicHandler) Leaderboard(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	rows, err := h.store.Leaderboard(c.Request.Context(), limit)
	if err != nil {
		internalError(c, "leaderboard lookup failed")
		return
	}
	ok(c, http.StatusOK, gin.H{"leaderboard": rows})
}

// EventsSince handles GET /v1/matches/:id/events?since= — the supplemented
// durable-log read endpoint (see SPEC_FULL.md supplemented features).
func (h *PublicHandler) EventsSince(c *gin.Context) {
	matchID := c.Param("id")
	sinceID := int64(0)
	if raw := c.Query("since"); raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			sinceID = n
		}
	}
	limit := 500
	events, err := h.store.LoadEventLog(c.Request.Context(), matchID, sinceID, limit)
	if err != nil {
		internalError(c, "load event log failed")
		return
	}
	ok(c, http.StatusOK, gin.H{"events": events})
}

func toGinH(m map[string]interface{}) gin.H {
	h := gin.H{}
	for k, v := range m {
		h[k] = v
	}
	return h
}
