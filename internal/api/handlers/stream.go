package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/fightclaw/backend/internal/api/middleware"
	"github.com/fightclaw/backend/internal/matchmaker"
	"github.com/fightclaw/backend/pkg/logger"
)

// Timing constants carried over from the arena's websocket client
// (internal/websocket/client.go): ping cadence must stay well under the
// peer's read deadline.
const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// StreamHandler implements the two live-match transports: SSE and
// WebSocket, both draining the same fanout.Subscriber.
type StreamHandler struct {
	registry *matchmaker.Registry
}

func NewStreamHandler(registry *matchmaker.Registry) *StreamHandler {
	return &StreamHandler{registry: registry}
}

func (h *StreamHandler) subscriberAgentID(c *gin.Context) string {
	if agent, exists := middleware.CurrentAgent(c); exists {
		return agent.ID
	}
	return ""
}

// SSE handles GET /v1/matches/:id/stream.
func (h *StreamHandler) SSE(c *gin.Context) {
	matchID := c.Param("id")
	actor, exists := h.registry.Get(matchID)
	if !exists {
		notFound(c, "no such match")
		return
	}

	agentID := h.subscriberAgentID(c)
	sub, cancel, err := actor.Subscribe(c.Request.Context(), agentID)
	if err != nil {
		internalError(c, "subscribe failed")
		return
	}
	defer cancel()
	if agentID != "" {
		_ = actor.SetConnected(c.Request.Context(), agentID, true)
		defer actor.SetConnected(context.Background(), agentID, false)
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	ctx := c.Request.Context()
	for {
		env, err := sub.Next(ctx)
		if err != nil {
			return
		}
		data, err := json.Marshal(env)
		if err != nil {
			logger.Error("stream: encode envelope failed", "matchId", matchID, "error", err)
			continue
		}
		if _, err := c.Writer.Write([]byte("data: ")); err != nil {
			return
		}
		if _, err := c.Writer.Write(data); err != nil {
			return
		}
		if _, err := c.Writer.Write([]byte("\n\n")); err != nil {
			return
		}
		c.Writer.Flush()
	}
}

// WS handles GET /v1/matches/:id/ws.
func (h *StreamHandler) WS(c *gin.Context) {
	matchID := c.Param("id")
	actor, exists := h.registry.Get(matchID)
	if !exists {
		notFound(c, "no such match")
		return
	}

	agentID := h.subscriberAgentID(c)
	sub, cancel, err := actor.Subscribe(c.Request.Context(), agentID)
	if err != nil {
		internalError(c, "subscribe failed")
		return
	}
	defer cancel()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Error("stream: websocket upgrade failed", "matchId", matchID, "error", err)
		return
	}
	defer conn.Close()

	if agentID != "" {
		_ = actor.SetConnected(c.Request.Context(), agentID, true)
		defer actor.SetConnected(context.Background(), agentID, false)
	}

	done := make(chan struct{})
	go wsReadPump(conn, done)

	ctx, cancelPump := context.WithCancel(c.Request.Context())
	defer cancelPump()
	go func() {
		select {
		case <-done:
			cancelPump()
		case <-ctx.Done():
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	results := make(chan struct {
		env interface{}
		err error
	})
	go func() {
		for {
			env, err := sub.Next(ctx)
			select {
			case results <- struct {
				env interface{}
				err error
			}{env, err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case r := <-results:
			if r.err != nil {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(r.env); err != nil {
				return
			}
		}
	}
}

// wsReadPump discards client frames (this is a one-way broadcast, per the
// teacher's client.readPump) but still drains pings/closes so the
// connection is detected as dead promptly.
func wsReadPump(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
