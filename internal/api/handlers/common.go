// Package handlers implements fightclaw's HTTP surface (§6.1): auth,
// matchmaking queue, match gameplay, public read routes and admin
// operations, all as thin gin handlers over the matchmaker/matchactor/
// repository layers.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fightclaw/backend/internal/api/middleware"
)

// ok writes a 2xx success envelope, always including ok:true.
func ok(c *gin.Context, status int, body gin.H) {
	if body == nil {
		body = gin.H{}
	}
	body["ok"] = true
	c.JSON(status, body)
}

// fail writes the {ok:false, error, code?, requestId?} envelope from §6.1/§7.
func fail(c *gin.Context, status int, msg, code string) {
	failEnvelope(c, status, msg, code, true)
}

// failCached writes the same envelope as fail but never attaches a
// requestId. Use it for responses sourced from an idempotency cache hit:
// spec.md:102 and the round-trip law (§8) require a retried submitMove to
// return its cached response verbatim, and a fresh per-request requestId
// on every retry would break that byte-for-byte equality.
func failCached(c *gin.Context, status int, msg, code string) {
	failEnvelope(c, status, msg, code, false)
}

func failEnvelope(c *gin.Context, status int, msg, code string, attachRequestID bool) {
	body := gin.H{"ok": false, "error": msg}
	if code != "" {
		body["code"] = code
	}
	if attachRequestID {
		if reqID := middleware.RequestIDFrom(c); reqID != "" {
			body["requestId"] = reqID
		}
	}
	c.JSON(status, body)
}

func badRequest(c *gin.Context, msg string)   { fail(c, http.StatusBadRequest, msg, "bad_request") }
func notFound(c *gin.Context, msg string)     { fail(c, http.StatusNotFound, msg, "not_found") }
func conflict(c *gin.Context, msg, code string) { fail(c, http.StatusConflict, msg, code) }
func internalError(c *gin.Context, msg string) { fail(c, http.StatusInternalServerError, msg, "internal_error") }
