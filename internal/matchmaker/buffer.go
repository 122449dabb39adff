package matchmaker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fightclaw/backend/pkg/logger"
)

// ErrNoEvents is returned by Pop when the wait timeout elapses with nothing
// delivered.
var ErrNoEvents = errors.New("matchmaker: no events before timeout")

// EventBuffer holds each agent's bounded, drop-oldest FIFO of matchmaking
// notifications (match_found) behind long-poll waitEvents calls, so an
// agent that is mid-request when it gets paired never misses the
// notification. Adapted from the teacher's RedisQueue (pkg/distributed/
// redis_queue.go): same client+key-prefix wrapper shape and error-sentinel
// style, but RPUSH/LTRIM/BLPOP in place of the ZADD/ZPOPMIN priority queue,
// since matchmaking events need strict arrival order and a hard cap, not
// priority scheduling.
type EventBuffer struct {
	client   *redis.Client
	cap      int
	keyPrefix string
}

func NewEventBuffer(client *redis.Client, capPerAgent int) *EventBuffer {
	if capPerAgent <= 0 {
		capPerAgent = 25
	}
	return &EventBuffer{client: client, cap: capPerAgent, keyPrefix: "fightclaw:mm:events:"}
}

func (b *EventBuffer) key(agentID string) string {
	return b.keyPrefix + agentID
}

// Push appends ev to agentID's buffer and trims it to the last cap entries,
// dropping the oldest first.
func (b *EventBuffer) Push(agentID string, ev MatchmakerEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		logger.Error("matchmaker: encode event failed", "agentId", agentID, "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	key := b.key(agentID)
	pipe := b.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, int64(-b.cap), -1)
	pipe.Expire(ctx, key, 24*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Error("matchmaker: push event failed", "agentId", agentID, "error", err)
	}
}

// Pop blocks up to timeout for the next event in agentID's buffer (FIFO:
// oldest first), returning ErrNoEvents on expiry.
func (b *EventBuffer) Pop(ctx context.Context, agentID string, timeout time.Duration) (MatchmakerEvent, error) {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	result, err := b.client.BLPop(ctx, timeout, b.key(agentID)).Result()
	if errors.Is(err, redis.Nil) {
		return MatchmakerEvent{}, ErrNoEvents
	}
	if err != nil {
		return MatchmakerEvent{}, fmt.Errorf("matchmaker: pop event: %w", err)
	}
	// BLPop returns [key, value].
	if len(result) != 2 {
		return MatchmakerEvent{}, ErrNoEvents
	}
	var ev MatchmakerEvent
	if err := json.Unmarshal([]byte(result[1]), &ev); err != nil {
		return MatchmakerEvent{}, fmt.Errorf("matchmaker: decode event: %w", err)
	}
	return ev, nil
}
