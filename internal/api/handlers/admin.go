package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fightclaw/backend/internal/matchmaker"
)

// AdminHandler implements the admin-key-gated operations of §6.1/§8
// scenario 6: forcing a match to finish outside the normal turn/terminal
// flow.
type AdminHandler struct {
	registry *matchmaker.Registry
}

func NewAdminHandler(registry *matchmaker.Registry) *AdminHandler {
	return &AdminHandler{registry: registry}
}

type finishRequest struct {
	Reason string `json:"reason"`
}

// Finish handles POST /v1/admin/matches/:id/finish.
func (h *AdminHandler) Finish(c *gin.Context) {
	matchID := c.Param("id")
	actor, exists := h.registry.Get(matchID)
	if !exists {
		notFound(c, "no such match")
		return
	}

	var req finishRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Reason == "" {
		req.Reason = "unspecified"
	}

	if err := actor.Finish(c.Request.Context(), req.Reason); err != nil {
		internalError(c, "finish failed")
		return
	}
	ok(c, http.StatusOK, nil)
}
