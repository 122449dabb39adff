package matchmaker

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/fightclaw/backend/internal/engine/refengine"
	"github.com/fightclaw/backend/internal/matchactor"
	"github.com/fightclaw/backend/internal/models"
	"github.com/fightclaw/backend/internal/repository"
)

type fakeStore struct{}

func (f *fakeStore) RecordMatchCreated(ctx context.Context, matchID string, seed int64) error {
	return nil
}
func (f *fakeStore) RecordMatchPlayers(ctx context.Context, matchID string, players []repository.PlayerSeat) error {
	return nil
}
func (f *fakeStore) AppendEvent(ctx context.Context, matchID string, turn int64, eventType string, payload []byte) error {
	return nil
}
func (f *fakeStore) RecordMatchResult(ctx context.Context, result models.MatchResult, deltas map[string]repository.RatingUpdate, finalStateVersion int64) error {
	return nil
}
func (f *fakeStore) LoadEventLog(ctx context.Context, matchID string, sinceID int64, limit int) ([]models.MatchEvent, error) {
	return nil, nil
}
func (f *fakeStore) GetRating(ctx context.Context, agentID string) (float64, error) {
	return models.DefaultStartingRating, nil
}
func (f *fakeStore) GetGamesPlayed(ctx context.Context, agentID string) (int, error) {
	return 0, nil
}
func (f *fakeStore) Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardRow, error) {
	return nil, nil
}

var _ repository.Store = (*fakeStore)(nil)

func newTestMatchmaker(t *testing.T) *Matchmaker {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	buffers := NewEventBuffer(client, 25)
	registry := NewRegistry()
	mm := New(&fakeStore{}, nil, refengine.New(), matchactor.Config{
		TurnTimeout:       time.Second,
		DisconnectGrace:   time.Second,
		SubscriberBacklog: 8,
	}, buffers, registry)
	go mm.Run()
	t.Cleanup(mm.Stop)
	return mm
}

func TestJoinQueue_FirstAgentWaits(t *testing.T) {
	mm := newTestMatchmaker(t)
	ctx := context.Background()

	state, err := mm.JoinQueue(ctx, "alpha")
	if err != nil {
		t.Fatalf("join queue: %v", err)
	}
	if state.Status != StatusWaiting {
		t.Fatalf("expected waiting, got %v", state.Status)
	}
}

func TestJoinQueue_SecondAgentPairs(t *testing.T) {
	mm := newTestMatchmaker(t)
	ctx := context.Background()

	first, err := mm.JoinQueue(ctx, "alpha")
	if err != nil {
		t.Fatalf("join queue: %v", err)
	}
	second, err := mm.JoinQueue(ctx, "beta")
	if err != nil {
		t.Fatalf("join queue: %v", err)
	}
	if second.Status != StatusReady {
		t.Fatalf("expected ready, got %v", second.Status)
	}
	if second.MatchID != first.MatchID {
		t.Fatalf("expected both agents paired into the same match")
	}

	// Both agents should find their match_found notification waiting.
	evA, err := mm.WaitEvents(ctx, "alpha", time.Second)
	if err != nil {
		t.Fatalf("wait events alpha: %v", err)
	}
	if evA.Event != "match_found" || evA.MatchID != first.MatchID {
		t.Fatalf("unexpected event for alpha: %+v", evA)
	}

	evB, err := mm.WaitEvents(ctx, "beta", time.Second)
	if err != nil {
		t.Fatalf("wait events beta: %v", err)
	}
	if evB.Event != "match_found" || evB.MatchID != first.MatchID {
		t.Fatalf("unexpected event for beta: %+v", evB)
	}
}

func TestJoinQueue_SameAgentTwiceStaysWaiting(t *testing.T) {
	mm := newTestMatchmaker(t)
	ctx := context.Background()

	first, _ := mm.JoinQueue(ctx, "alpha")
	second, err := mm.JoinQueue(ctx, "alpha")
	if err != nil {
		t.Fatalf("join queue: %v", err)
	}
	if second.Status != StatusWaiting || second.MatchID != first.MatchID {
		t.Fatalf("expected same pending slot returned, got %+v", second)
	}
}

func TestLeaveQueue_ClearsPendingSlot(t *testing.T) {
	mm := newTestMatchmaker(t)
	ctx := context.Background()

	if _, err := mm.JoinQueue(ctx, "alpha"); err != nil {
		t.Fatalf("join queue: %v", err)
	}
	if err := mm.LeaveQueue(ctx, "alpha"); err != nil {
		t.Fatalf("leave queue: %v", err)
	}
	status, err := mm.QueueStatus(ctx, "alpha")
	if err != nil {
		t.Fatalf("queue status: %v", err)
	}
	if status.Status != StatusIdle {
		t.Fatalf("expected idle after leaving, got %v", status.Status)
	}
}

func TestWaitEvents_TimesOutWithoutEvents(t *testing.T) {
	mm := newTestMatchmaker(t)
	ctx := context.Background()

	_, err := mm.WaitEvents(ctx, "nobody", 100*time.Millisecond)
	if err != ErrNoEvents {
		t.Fatalf("expected ErrNoEvents, got %v", err)
	}
}
