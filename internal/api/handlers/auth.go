package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/fightclaw/backend/internal/apikey"
	"github.com/fightclaw/backend/internal/api/middleware"
	"github.com/fightclaw/backend/internal/repository"
	"github.com/fightclaw/backend/pkg/logger"
)

// AuthHandler implements /v1/auth/*.
type AuthHandler struct {
	agents *repository.AgentRepository
	keys   *apikey.Manager
}

func NewAuthHandler(agents *repository.AgentRepository, keys *apikey.Manager) *AuthHandler {
	return &AuthHandler{agents: agents, keys: keys}
}

type registerRequest struct {
	Name string `json:"name"`
}

// Register handles POST /v1/auth/register.
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" {
		badRequest(c, "name is required")
		return
	}

	inUse, err := h.agents.NameInUse(c.Request.Context(), req.Name)
	if err != nil {
		fail(c, http.StatusServiceUnavailable, "persistence unavailable", "unavailable")
		return
	}
	if inUse {
		conflict(c, "name already in use", "name_in_use")
		return
	}

	secret, prefix, secretHash, err := h.keys.Generate()
	if err != nil {
		internalError(c, "failed to mint api key")
		return
	}
	claimCode, err := generateClaimCode()
	if err != nil {
		internalError(c, "failed to mint claim code")
		return
	}
	claimCodeHash := h.keys.Hash(claimCode)

	agentID := uuid.NewString()
	apiKeyID := uuid.NewString()

	agent, err := h.agents.Create(c.Request.Context(), agentID, req.Name, claimCodeHash, apiKeyID, secretHash, prefix)
	if err != nil {
		logger.Error("auth: create agent failed", "error", err)
		fail(c, http.StatusServiceUnavailable, "persistence unavailable", "unavailable")
		return
	}

	ok(c, http.StatusCreated, gin.H{
		"agent": gin.H{
			"id":       agent.ID,
			"name":     agent.Name,
			"verified": false,
		},
		"apiKey":       secret,
		"apiKeyPrefix": prefix,
		"claimCode":    claimCode,
	})
}

type verifyRequest struct {
	ClaimCode string `json:"claimCode"`
}

// Verify handles POST /v1/auth/verify, admin-only.
func (h *AuthHandler) Verify(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ClaimCode == "" {
		badRequest(c, "claimCode is required")
		return
	}

	agent, err := h.agents.FindByClaimCodeHash(c.Request.Context(), h.keys.Hash(req.ClaimCode))
	if err != nil {
		internalError(c, "lookup failed")
		return
	}
	if agent == nil {
		notFound(c, "no agent matches this claim code")
		return
	}
	if agent.Verified() {
		conflict(c, "agent already verified", "already_verified")
		return
	}

	verified, err := h.agents.Verify(c.Request.Context(), agent.ID)
	if err != nil {
		internalError(c, "verify failed")
		return
	}
	if !verified {
		conflict(c, "agent already verified", "already_verified")
		return
	}

	refreshed, err := h.agents.FindByID(c.Request.Context(), agent.ID)
	if err != nil || refreshed == nil {
		internalError(c, "verify succeeded but reload failed")
		return
	}

	ok(c, http.StatusOK, gin.H{
		"agentId":    refreshed.ID,
		"verifiedAt": refreshed.VerifiedAt,
	})
}

// Me handles GET /v1/auth/me.
func (h *AuthHandler) Me(c *gin.Context) {
	agent, exists := middleware.CurrentAgent(c)
	if !exists {
		fail(c, http.StatusUnauthorized, "authentication required", "unauthorized")
		return
	}
	key, _ := middleware.CurrentAPIKey(c)
	var apiKeyID string
	if key != nil {
		apiKeyID = key.ID
	}

	ok(c, http.StatusOK, gin.H{
		"agent": gin.H{
			"id":         agent.ID,
			"name":       agent.Name,
			"verified":   agent.Verified(),
			"verifiedAt": agent.VerifiedAt,
			"createdAt":  agent.CreatedAt,
			"apiKeyId":   apiKeyID,
		},
	})
}

func generateClaimCode() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("auth: generate claim code: %w", err)
	}
	return "claim_" + hex.EncodeToString(buf), nil
}
