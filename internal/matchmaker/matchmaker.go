// Package matchmaker implements the process-wide singleton actor that
// pairs agents into matches, spawns their MatchActor, and buffers/delivers
// per-agent pairing notifications.
package matchmaker

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/fightclaw/backend/internal/engine"
	"github.com/fightclaw/backend/internal/matchactor"
	"github.com/fightclaw/backend/internal/models"
	"github.com/fightclaw/backend/internal/repository"
	"github.com/fightclaw/backend/pkg/logger"
)

var ErrAgentRequired = errors.New("matchmaker: agent_required")

// Status is the wire status of a queue slot.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusWaiting Status = "waiting"
	StatusReady   Status = "ready"
)

// QueueState is the result of joinQueue/queueStatus.
type QueueState struct {
	MatchID string `json:"matchId,omitempty"`
	Status  Status `json:"status"`
}

// pendingSlot models the two-state machine of §4.1: Empty (nil) or
// Holding(matchId, agentId).
type pendingSlot struct {
	matchID string
	agentID string
}

// Matchmaker is the singleton pairing actor. All queue operations are
// serialized through its mailbox; it never touches MatchState.
type Matchmaker struct {
	store     repository.Store
	agents    *repository.AgentRepository
	eng       engine.Engine
	actorCfg  matchactor.Config
	buffers   *EventBuffer
	registry  *Registry

	mailbox chan func()
	stopCh  chan struct{}

	pending       *pendingSlot
	latestMatchID string
	featuredMatch string
}

// New builds a Matchmaker. Call Run in its own goroutine before serving
// traffic.
func New(store repository.Store, agents *repository.AgentRepository, eng engine.Engine, actorCfg matchactor.Config, buffers *EventBuffer, registry *Registry) *Matchmaker {
	return &Matchmaker{
		store:    store,
		agents:   agents,
		eng:      eng,
		actorCfg: actorCfg,
		buffers:  buffers,
		registry: registry,
		mailbox:  make(chan func(), 128),
		stopCh:   make(chan struct{}),
	}
}

func (m *Matchmaker) Run() {
	for {
		select {
		case op, ok := <-m.mailbox:
			if !ok {
				return
			}
			op()
		case <-m.stopCh:
			return
		}
	}
}

func (m *Matchmaker) Stop() {
	select {
	case <-m.stopCh:
	default:
		close(m.stopCh)
	}
}

func (m *Matchmaker) send(ctx context.Context, op func()) error {
	select {
	case m.mailbox <- op:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-m.stopCh:
		return errors.New("matchmaker: stopped")
	}
}

// JoinQueue implements the pairing protocol of §4.1 step 2.
func (m *Matchmaker) JoinQueue(ctx context.Context, agentID string) (QueueState, error) {
	if agentID == "" {
		return QueueState{}, ErrAgentRequired
	}
	resultCh := make(chan QueueState, 1)
	err := m.send(ctx, func() {
		resultCh <- m.joinQueueLocked(agentID)
	})
	if err != nil {
		return QueueState{}, err
	}
	return <-resultCh, nil
}

func (m *Matchmaker) joinQueueLocked(agentID string) QueueState {
	if m.pending != nil && m.pending.agentID == agentID {
		return QueueState{MatchID: m.pending.matchID, Status: StatusWaiting}
	}

	if m.pending != nil && m.pending.agentID != agentID {
		opponent := m.pending.agentID
		matchID := m.pending.matchID
		m.pending = nil
		m.latestMatchID = matchID
		m.featuredMatch = matchID

		m.pairLocked(matchID, opponent, agentID)

		m.buffers.Push(opponent, MatchmakerEvent{Event: "match_found", MatchID: matchID, Opponent: agentID})
		m.buffers.Push(agentID, MatchmakerEvent{Event: "match_found", MatchID: matchID, Opponent: opponent})

		return QueueState{MatchID: matchID, Status: StatusReady}
	}

	matchID := uuid.NewString()
	m.pending = &pendingSlot{matchID: matchID, agentID: agentID}
	if err := m.store.RecordMatchCreated(context.Background(), matchID, rand.Int63()); err != nil {
		logger.Error("matchmaker: record match created failed", "matchId", matchID, "error", err)
	}
	return QueueState{MatchID: matchID, Status: StatusWaiting}
}

// pairLocked spawns and initializes the MatchActor for two paired agents.
// Persistence and init failures are logged, not rolled back: the in-memory
// pairing already happened and both agents already own the matchId.
func (m *Matchmaker) pairLocked(matchID, agentA, agentB string) {
	seed := rand.Int63()
	players := [2]string{agentA, agentB}

	ratingA, err := m.store.GetRating(context.Background(), agentA)
	if err != nil {
		logger.Error("matchmaker: get rating failed", "agentId", agentA, "error", err)
		ratingA = models.DefaultStartingRating
	}
	ratingB, err := m.store.GetRating(context.Background(), agentB)
	if err != nil {
		logger.Error("matchmaker: get rating failed", "agentId", agentB, "error", err)
		ratingB = models.DefaultStartingRating
	}

	gamesA, err := m.store.GetGamesPlayed(context.Background(), agentA)
	if err != nil {
		logger.Error("matchmaker: get games played failed", "agentId", agentA, "error", err)
		gamesA = 0
	}
	gamesB, err := m.store.GetGamesPlayed(context.Background(), agentB)
	if err != nil {
		logger.Error("matchmaker: get games played failed", "agentId", agentB, "error", err)
		gamesB = 0
	}

	if err := m.store.RecordMatchPlayers(context.Background(), matchID, []repository.PlayerSeat{
		{AgentID: agentA, Seat: 0, StartingRating: ratingA},
		{AgentID: agentB, Seat: 1, StartingRating: ratingB},
	}); err != nil {
		logger.Error("matchmaker: record match players failed", "matchId", matchID, "error", err)
	}

	actor := matchactor.New(matchID, m.eng, m.store, m.actorCfg)
	m.registry.Put(matchID, actor)
	go actor.Run()

	if err := actor.Init(context.Background(), seed, players, [2]float64{ratingA, ratingB}, [2]int{gamesA, gamesB}); err != nil {
		logger.Error("matchmaker: init failed, ending match", "matchId", matchID, "error", err)
		_ = actor.Finish(context.Background(), string(models.ReasonInitFailed))
		return
	}
}

// QueueStatus returns the current pending state for agentID, or idle.
func (m *Matchmaker) QueueStatus(ctx context.Context, agentID string) (QueueState, error) {
	resultCh := make(chan QueueState, 1)
	err := m.send(ctx, func() {
		if m.pending != nil && m.pending.agentID == agentID {
			resultCh <- QueueState{MatchID: m.pending.matchID, Status: StatusWaiting}
			return
		}
		resultCh <- QueueState{Status: StatusIdle}
	})
	if err != nil {
		return QueueState{}, err
	}
	return <-resultCh, nil
}

// LeaveQueue clears the pending slot for agentID if held. Never cancels an
// already-started match.
func (m *Matchmaker) LeaveQueue(ctx context.Context, agentID string) error {
	return m.send(ctx, func() {
		if m.pending != nil && m.pending.agentID == agentID {
			m.pending = nil
		}
	})
}

// WaitEvents pops the front of agentID's buffer, or suspends up to
// timeout and returns no_events on expiry.
func (m *Matchmaker) WaitEvents(ctx context.Context, agentID string, timeout time.Duration) (MatchmakerEvent, error) {
	return m.buffers.Pop(ctx, agentID, timeout)
}

// Featured returns the matchId of the most recently paired match, if any.
// The match's status and players are not included.
func (m *Matchmaker) Featured(ctx context.Context) (map[string]interface{}, error) {
	resultCh := make(chan string, 1)
	err := m.send(ctx, func() { resultCh <- m.featuredMatch })
	if err != nil {
		return nil, err
	}
	matchID := <-resultCh
	if matchID == "" {
		return map[string]interface{}{}, nil
	}
	return map[string]interface{}{"matchId": matchID}, nil
}

// Live returns the current live match's state, fetched from its actor.
func (m *Matchmaker) Live(ctx context.Context) (map[string]interface{}, error) {
	resultCh := make(chan string, 1)
	err := m.send(ctx, func() { resultCh <- m.latestMatchID })
	if err != nil {
		return nil, err
	}
	matchID := <-resultCh
	if matchID == "" {
		return map[string]interface{}{}, nil
	}
	actor, ok := m.registry.Get(matchID)
	if !ok {
		return map[string]interface{}{"matchId": matchID}, nil
	}
	snap, err := actor.GetState(ctx)
	if err != nil {
		return map[string]interface{}{"matchId": matchID}, nil
	}
	return map[string]interface{}{"matchId": matchID, "state": snap}, nil
}

// EvictStalePending clears the pending slot if it has been held longer than
// maxAge, so an abandoned solo agent does not block pairing forever. Called
// periodically by the scheduler; see Scheduler.sweepPendingSlot.
func (m *Matchmaker) EvictStalePending(ctx context.Context, maxAge time.Duration, heldSince map[string]time.Time) error {
	return m.send(ctx, func() {
		if m.pending == nil {
			return
		}
		since, ok := heldSince[m.pending.agentID]
		if !ok || time.Since(since) < maxAge {
			return
		}
		logger.Warn("matchmaker: evicting stale pending slot", "agentId", m.pending.agentID, "matchId", m.pending.matchID)
		m.pending = nil
	})
}

// PendingAgent returns the agentId holding the pending slot, or "" if the
// slot is empty, so the scheduler can time the staleness sweep without
// reaching into actor state.
func (m *Matchmaker) PendingAgent(ctx context.Context) (string, error) {
	resultCh := make(chan string, 1)
	err := m.send(ctx, func() {
		if m.pending == nil {
			resultCh <- ""
			return
		}
		resultCh <- m.pending.agentID
	})
	if err != nil {
		return "", err
	}
	return <-resultCh, nil
}

// MatchmakerEvent is the wire shape delivered by WaitEvents.
type MatchmakerEvent struct {
	Event    string `json:"event"`
	MatchID  string `json:"matchId,omitempty"`
	Opponent string `json:"opponent,omitempty"`
}

func (e MatchmakerEvent) MarshalBinary() ([]byte, error) { return json.Marshal(e) }
