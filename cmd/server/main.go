package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fightclaw/backend/internal/api"
	"github.com/fightclaw/backend/internal/apikey"
	"github.com/fightclaw/backend/internal/config"
	"github.com/fightclaw/backend/internal/engine"
	"github.com/fightclaw/backend/internal/engine/refengine"
	"github.com/fightclaw/backend/internal/matchactor"
	"github.com/fightclaw/backend/internal/matchmaker"
	"github.com/fightclaw/backend/internal/repository"
	"github.com/fightclaw/backend/internal/scheduler"
	"github.com/fightclaw/backend/pkg/database"
	"github.com/fightclaw/backend/pkg/distributed"
	"github.com/fightclaw/backend/pkg/logger"
	"github.com/fightclaw/backend/pkg/ratelimit"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("starting fightclaw backend", "port", cfg.Port, "env", cfg.Env)

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect to database", "error", err)
	}
	defer db.Close()
	logger.Info("database connection established")

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal("invalid REDIS_URL", "error", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logger.Fatal("failed to connect to redis", "error", err)
	}
	logger.Info("redis connection established")

	keys, err := apikey.NewManager(cfg.APIKeyPepper)
	if err != nil {
		logger.Fatal("failed to initialize api key manager", "error", err)
	}

	agentRepo := repository.NewAgentRepository(db)
	matchRepo := repository.NewMatchRepository(db)

	var eng engine.Engine
	if cfg.EngineGRPCAddr != "" {
		client, err := engine.Dial(cfg.EngineGRPCAddr)
		if err != nil {
			logger.Fatal("failed to dial engine", "addr", cfg.EngineGRPCAddr, "error", err)
		}
		defer client.Close()
		eng = client
		logger.Info("using gRPC engine", "addr", cfg.EngineGRPCAddr)
	} else {
		eng = refengine.New()
		logger.Info("using in-process reference engine")
	}

	actorCfg := matchactor.Config{
		TurnTimeout:       cfg.MatchTurnTimeout,
		DisconnectGrace:   cfg.MatchDisconnectGrace,
		SubscriberBacklog: cfg.SubscriberBacklogMax,
		EloKFactor:        cfg.EloKFactor,
		EloProvisional:    cfg.EloProvisional,
	}

	limiter := ratelimit.NewRedisRateLimiter(ratelimit.RedisRateLimiterConfig{
		Addr:      redisOpts.Addr,
		Password:  redisOpts.Password,
		DB:        redisOpts.DB,
		KeyPrefix: "fightclaw:ratelimit:",
	})

	buffers := matchmaker.NewEventBuffer(redisClient, cfg.PerAgentEventBufferMax)
	registry := matchmaker.NewRegistry()
	mm := matchmaker.New(matchRepo, agentRepo, eng, actorCfg, buffers, registry)
	go mm.Run()
	defer mm.Stop()
	logger.Info("matchmaker started")

	lockManager := distributed.NewRedisLockManager(redisClient)
	sched, err := scheduler.New(scheduler.Config{}, mm, registry, lockManager)
	if err != nil {
		logger.Fatal("failed to build scheduler", "error", err)
	}
	sched.Start()
	defer sched.Stop()
	logger.Info("scheduler started")

	router := api.SetupRouter(&api.Deps{
		Config:   cfg,
		Agents:   agentRepo,
		Store:    matchRepo,
		Keys:     keys,
		MM:       mm,
		Registry: registry,
		Limiter:  limiter,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // long-poll and stream routes hold connections open
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", "error", err)
	}

	logger.Info("server exited")
}
