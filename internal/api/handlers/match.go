package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fightclaw/backend/internal/api/middleware"
	"github.com/fightclaw/backend/internal/matchactor"
	"github.com/fightclaw/backend/internal/matchmaker"
)

// MatchHandler implements /v1/matches/:id/*.
type MatchHandler struct {
	registry *matchmaker.Registry
}

func NewMatchHandler(registry *matchmaker.Registry) *MatchHandler {
	return &MatchHandler{registry: registry}
}

type submitMoveRequest struct {
	MoveID          string          `json:"moveId"`
	ExpectedVersion int64           `json:"expectedVersion"`
	Move            json.RawMessage `json:"move"`
}

// SubmitMove handles POST /v1/matches/:id/move.
func (h *MatchHandler) SubmitMove(c *gin.Context) {
	agent, exists := middleware.CurrentAgent(c)
	if !exists {
		fail(c, http.StatusUnauthorized, "authentication required", "unauthorized")
		return
	}
	matchID := c.Param("id")
	actor, exists := h.registry.Get(matchID)
	if !exists {
		notFound(c, "no such match")
		return
	}

	var req submitMoveRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.MoveID == "" || len(req.Move) == 0 {
		badRequest(c, "moveId, expectedVersion and move are required")
		return
	}

	outcome, err := actor.SubmitMove(c.Request.Context(), matchactor.MoveRequest{
		AgentID:         agent.ID,
		MoveID:          req.MoveID,
		ExpectedVersion: req.ExpectedVersion,
		Move:            req.Move,
	})
	if err != nil {
		internalError(c, "submit move failed")
		return
	}

	// rejectWith picks fail vs. failCached so a response sourced from the
	// idempotency cache never varies across retries (see failCached).
	rejectWith := fail
	if outcome.FromCache {
		rejectWith = failCached
	}

	switch outcome.Reject {
	case matchactor.RejectNone:
		ok(c, http.StatusOK, gin.H{"state": outcome.State, "stateVersion": outcome.StateVersion, "activeAgentId": outcome.ActiveAgentID})
	case matchactor.RejectNotYourTurn:
		rejectWith(c, http.StatusForbidden, "not your turn", string(outcome.Reject))
	case matchactor.RejectUnauthorized:
		rejectWith(c, http.StatusForbidden, "unauthorized for this match", string(outcome.Reject))
	case matchactor.RejectVersionMismatch:
		body := gin.H{"ok": false, "error": "version mismatch", "code": string(outcome.Reject), "stateVersion": outcome.CurrentVersion}
		if !outcome.FromCache {
			if reqID := middleware.RequestIDFrom(c); reqID != "" {
				body["requestId"] = reqID
			}
		}
		c.JSON(http.StatusConflict, body)
	case matchactor.RejectInvalidSchema:
		rejectWith(c, http.StatusBadRequest, "invalid move schema", string(outcome.Reject))
	case matchactor.RejectIllegalMove:
		rejectWith(c, http.StatusBadRequest, outcome.Reason, string(outcome.Reject))
	case matchactor.RejectTerminal:
		rejectWith(c, http.StatusBadRequest, "match has ended", string(outcome.Reject))
	default:
		internalError(c, "unrecognized rejection")
	}
}

// GetState handles GET /v1/matches/:id/state.
func (h *MatchHandler) GetState(c *gin.Context) {
	matchID := c.Param("id")
	actor, exists := h.registry.Get(matchID)
	if !exists {
		notFound(c, "no such match")
		return
	}
	snap, err := actor.GetState(c.Request.Context())
	if err != nil {
		internalError(c, "get state failed")
		return
	}
	ok(c, http.StatusOK, gin.H{"state": snap})
}
