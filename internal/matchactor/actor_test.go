package matchactor

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/fightclaw/backend/internal/engine/refengine"
	"github.com/fightclaw/backend/internal/models"
	"github.com/fightclaw/backend/internal/repository"
)

// fakeStore is an in-memory Store double so actor tests don't need Postgres.
type fakeStore struct {
	events  []string
	results []models.MatchResult
}

func (f *fakeStore) RecordMatchCreated(ctx context.Context, matchID string, seed int64) error {
	return nil
}
func (f *fakeStore) RecordMatchPlayers(ctx context.Context, matchID string, players []repository.PlayerSeat) error {
	return nil
}
func (f *fakeStore) AppendEvent(ctx context.Context, matchID string, turn int64, eventType string, payload []byte) error {
	f.events = append(f.events, eventType)
	return nil
}
func (f *fakeStore) RecordMatchResult(ctx context.Context, result models.MatchResult, deltas map[string]repository.RatingUpdate, finalStateVersion int64) error {
	f.results = append(f.results, result)
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

func newTestActor(t *testing.T) (*Actor, *fakeStore, string, string) {
	t.Helper()
	store := &fakeStore{}
	a := New("m1", refengine.New(), store, Config{
		TurnTimeout:       200 * time.Millisecond,
		DisconnectGrace:   200 * time.Millisecond,
		SubscriberBacklog: 8,
	})
	go a.Run()
	t.Cleanup(a.Stop)

	if err := a.Init(context.Background(), 1, [2]string{"alpha", "beta"}, [2]float64{1500, 1500}, [2]int{0, 0}); err != nil {
		t.Fatalf("init: %v", err)
	}
	return a, store, "alpha", "beta"
}

func passMove() json.RawMessage {
	return json.RawMessage(`{"action":"pass"}`)
}

func TestSubmitMove_RejectsWrongTurn(t *testing.T) {
	a, _, alpha, beta := newTestActor(t)
	snap, _ := a.GetState(context.Background())
	nonActive := alpha
	if snap.ActiveAgentID == alpha {
		nonActive = beta
	}

	outcome, err := a.SubmitMove(context.Background(), MoveRequest{
		AgentID: nonActive, MoveID: "u1", ExpectedVersion: 0, Move: passMove(),
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if outcome.Reject != RejectNotYourTurn {
		t.Fatalf("expected not_your_turn, got %v", outcome.Reject)
	}
}

func TestSubmitMove_AcceptsAndAdvancesVersion(t *testing.T) {
	a, _, _, _ := newTestActor(t)
	snap, _ := a.GetState(context.Background())

	outcome, err := a.SubmitMove(context.Background(), MoveRequest{
		AgentID: snap.ActiveAgentID, MoveID: "u1", ExpectedVersion: 0, Move: passMove(),
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if outcome.Reject != RejectNone {
		t.Fatalf("expected accepted move, got reject %v", outcome.Reject)
	}
	if outcome.StateVersion != 1 {
		t.Fatalf("expected stateVersion 1, got %d", outcome.StateVersion)
	}
}

func TestSubmitMove_IdempotentRetry(t *testing.T) {
	a, _, _, _ := newTestActor(t)
	snap, _ := a.GetState(context.Background())
	req := MoveRequest{AgentID: snap.ActiveAgentID, MoveID: "u1", ExpectedVersion: 0, Move: passMove()}

	first, err := a.SubmitMove(context.Background(), req)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	second, err := a.SubmitMove(context.Background(), req)
	if err != nil {
		t.Fatalf("submit retry: %v", err)
	}

	firstJSON, _ := json.Marshal(first)
	secondJSON, _ := json.Marshal(second)
	if string(firstJSON) != string(secondJSON) {
		t.Fatalf("retry response mismatch:\n%s\n%s", firstJSON, secondJSON)
	}

	after, _ := a.GetState(context.Background())
	if after.StateVersion != 1 {
		t.Fatalf("expected exactly one state transition, stateVersion=%d", after.StateVersion)
	}
}

func TestSubmitMove_VersionMismatch(t *testing.T) {
	a, _, _, _ := newTestActor(t)
	snap, _ := a.GetState(context.Background())

	outcome, err := a.SubmitMove(context.Background(), MoveRequest{
		AgentID: snap.ActiveAgentID, MoveID: "u2", ExpectedVersion: 5, Move: passMove(),
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if outcome.Reject != RejectVersionMismatch {
		t.Fatalf("expected version_mismatch, got %v", outcome.Reject)
	}
	if outcome.CurrentVersion != 0 {
		t.Fatalf("expected currentVersion 0, got %d", outcome.CurrentVersion)
	}
}

func TestSubmitMove_InvalidSchemaRejected(t *testing.T) {
	a, _, _, _ := newTestActor(t)
	snap, _ := a.GetState(context.Background())

	outcome, err := a.SubmitMove(context.Background(), MoveRequest{
		AgentID: snap.ActiveAgentID, MoveID: "u3", ExpectedVersion: 0,
		Move: json.RawMessage(`{"action":"teleport"}`),
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if outcome.Reject != RejectInvalidSchema {
		t.Fatalf("expected invalid_move_schema, got %v", outcome.Reject)
	}
}

func TestSubscribe_ReceivesInitialStateSnapshot(t *testing.T) {
	a, _, _, _ := newTestActor(t)
	sub, cancel, err := a.Subscribe(context.Background(), "")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	ctx, done := context.WithTimeout(context.Background(), time.Second)
	defer done()
	env, err := sub.Next(ctx)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if env.Event != "state" {
		t.Fatalf("expected initial state event, got %v", env.Event)
	}
}

func TestSubmitMove_TerminalAfterEnd(t *testing.T) {
	a, store, _, _ := newTestActor(t)
	if err := a.Finish(context.Background(), "forfeit"); err != nil {
		t.Fatalf("finish: %v", err)
	}
	snap, _ := a.GetState(context.Background())
	if !snap.Terminal {
		t.Fatalf("expected terminal after finish")
	}
	if len(store.results) != 1 {
		t.Fatalf("expected exactly one match_results row, got %d", len(store.results))
	}

	outcome, err := a.SubmitMove(context.Background(), MoveRequest{
		AgentID: "alpha", MoveID: "after-end", ExpectedVersion: 0, Move: passMove(),
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if outcome.Reject != RejectTerminal {
		t.Fatalf("expected terminal rejection, got %v", outcome.Reject)
	}

	// Finish is idempotent: a second call does not write a second result row.
	if err := a.Finish(context.Background(), "forfeit"); err != nil {
		t.Fatalf("second finish: %v", err)
	}
	if len(store.results) != 1 {
		t.Fatalf("expected finish to remain idempotent, got %d result rows", len(store.results))
	}
}
