package api

import (
	"github.com/gin-gonic/gin"

	"github.com/fightclaw/backend/internal/api/handlers"
	"github.com/fightclaw/backend/internal/api/middleware"
	"github.com/fightclaw/backend/internal/apikey"
	"github.com/fightclaw/backend/internal/config"
	"github.com/fightclaw/backend/internal/matchmaker"
	"github.com/fightclaw/backend/internal/repository"
	"github.com/fightclaw/backend/pkg/ratelimit"
)

// Deps bundles everything SetupRouter needs to wire the handlers. Built
// once in cmd/server/main.go and threaded through for the life of the
// process.
type Deps struct {
	Config  *config.Config
	Agents  *repository.AgentRepository
	Store   repository.Store
	Keys    *apikey.Manager
	MM      *matchmaker.Matchmaker
	Registry *matchmaker.Registry
	Limiter *ratelimit.RedisRateLimiter
}

// SetupRouter wires every route of the HTTP surface onto a gin.Engine.
func SetupRouter(d *Deps) *gin.Engine {
	cfg := d.Config
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger())
	router.Use(middleware.CORS(cfg.CORSOrigin))

	authHandler := handlers.NewAuthHandler(d.Agents, d.Keys)
	queueHandler := handlers.NewQueueHandler(d.MM, cfg.EventWaitTimeoutMax)
	matchHandler := handlers.NewMatchHandler(d.Registry)
	adminHandler := handlers.NewAdminHandler(d.Registry)
	publicHandler := handlers.NewPublicHandler(d.MM, d.Store)
	streamHandler := handlers.NewStreamHandler(d.Registry)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"ok": true, "status": "healthy"})
	})

	authRequired := middleware.Auth(d.Keys, d.Agents)
	verifiedRequired := middleware.RequireVerified()
	optionalAuth := middleware.OptionalAuth(d.Keys, d.Agents)

	v1 := router.Group("/v1")
	{
		registerChain := []gin.HandlerFunc{authHandler.Register}
		joinChain := []gin.HandlerFunc{authRequired, verifiedRequired, queueHandler.Join}
		moveChain := []gin.HandlerFunc{authRequired, verifiedRequired, matchHandler.SubmitMove}
		if d.Limiter != nil {
			registerChain = append([]gin.HandlerFunc{middleware.RedisRegisterRateLimit(d.Limiter)}, registerChain...)
			joinChain = []gin.HandlerFunc{authRequired, middleware.RedisQueueJoinRateLimit(d.Limiter), verifiedRequired, queueHandler.Join}
			moveChain = []gin.HandlerFunc{authRequired, middleware.RedisMoveRateLimit(d.Limiter), verifiedRequired, matchHandler.SubmitMove}
		}

		v1.POST("/auth/register", registerChain...)
		v1.GET("/auth/me", authRequired, authHandler.Me)
		v1.POST("/auth/verify", middleware.RequireAdminKey(cfg.AdminKey), authHandler.Verify)

		v1.POST("/queue/join", joinChain...)
		v1.POST("/matches/queue", joinChain...) // alias
		v1.GET("/queue/status", authRequired, verifiedRequired, queueHandler.Status)
		v1.DELETE("/queue/leave", authRequired, verifiedRequired, queueHandler.Leave)

		v1.GET("/events/wait", authRequired, verifiedRequired, queueHandler.WaitEvents)

		matches := v1.Group("/matches/:id")
		{
			matches.POST("/move", moveChain...)
			matches.GET("/state", matchHandler.GetState)
			matches.GET("/stream", optionalAuth, streamHandler.SSE)
			matches.GET("/ws", optionalAuth, streamHandler.WS)
			matches.GET("/events", publicHandler.EventsSince)
		}

		v1.GET("/featured", publicHandler.Featured)
		v1.GET("/live", publicHandler.Live)
		v1.GET("/leaderboard", publicHandler.Leaderboard)

		admin := v1.Group("/admin")
		admin.Use(middleware.RequireAdminKey(cfg.AdminKey))
		{
			admin.POST("/matches/:id/finish", adminHandler.Finish)
		}
	}

	return router
}
