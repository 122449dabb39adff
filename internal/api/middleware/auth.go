package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/fightclaw/backend/internal/apikey"
	"github.com/fightclaw/backend/internal/models"
	"github.com/fightclaw/backend/internal/repository"
)

// contextAgentKey and contextAPIKeyKey are the gin context keys the
// authenticated agent and its api key row are stored under; handlers read
// them with CurrentAgent and CurrentAPIKey.
const (
	contextAgentKey  = "fightclaw.agent"
	contextAPIKeyKey = "fightclaw.apiKey"
)

// Auth validates the `Authorization: Bearer fc_sk_...` header against
// api_keys.key_hash and stores the resolved agent in the request context.
// It does not itself require verified:true; RequireVerified does that for
// gameplay routes, per the auth rules of §6.1.
func Auth(manager *apikey.Manager, agents *repository.AgentRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		secret, ok := bearerToken(c)
		if !ok {
			respondUnauthorized(c, "missing or malformed bearer token")
			return
		}

		hash := manager.Hash(secret)
		agent, key, err := agents.FindByKeyHash(c.Request.Context(), hash)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "internal_error"})
			c.Abort()
			return
		}
		if agent == nil || key == nil || key.Revoked() {
			respondUnauthorized(c, "invalid api key")
			return
		}

		c.Set(contextAgentKey, agent)
		c.Set(contextAPIKeyKey, key)
		c.Next()
	}
}

// OptionalAuth resolves the bearer token if one is present and valid, but
// never rejects the request when it is missing or invalid — used by the
// stream/ws routes, which accept anonymous spectators and only need the
// agentId to apply the your_turn visibility filter.
func OptionalAuth(manager *apikey.Manager, agents *repository.AgentRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		secret, ok := bearerToken(c)
		if !ok {
			c.Next()
			return
		}
		hash := manager.Hash(secret)
		agent, key, err := agents.FindByKeyHash(c.Request.Context(), hash)
		if err != nil || agent == nil || key == nil || key.Revoked() {
			c.Next()
			return
		}
		c.Set(contextAgentKey, agent)
		c.Set(contextAPIKeyKey, key)
		c.Next()
	}
}

// RequireVerified gates gameplay routes on agent.verifiedAt != null, per
// §6.1's auth rules. Must run after Auth.
func RequireVerified() gin.HandlerFunc {
	return func(c *gin.Context) {
		agent, ok := CurrentAgent(c)
		if !ok {
			respondUnauthorized(c, "authentication required")
			return
		}
		if !agent.Verified() {
			c.JSON(http.StatusForbidden, gin.H{"ok": false, "error": "agent not verified", "code": "forbidden"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// CurrentAgent returns the authenticated agent set by Auth, if any.
func CurrentAgent(c *gin.Context) (*models.Agent, bool) {
	v, ok := c.Get(contextAgentKey)
	if !ok {
		return nil, false
	}
	agent, ok := v.(*models.Agent)
	return agent, ok
}

// CurrentAPIKey returns the authenticated request's api key row set by Auth.
func CurrentAPIKey(c *gin.Context) (*models.ApiKey, bool) {
	v, ok := c.Get(contextAPIKeyKey)
	if !ok {
		return nil, false
	}
	key, ok := v.(*models.ApiKey)
	return key, ok
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func respondUnauthorized(c *gin.Context, msg string) {
	c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "error": msg, "code": "unauthorized"})
	c.Abort()
}
