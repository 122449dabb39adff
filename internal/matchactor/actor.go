// Package matchactor implements the per-match single-writer task: it owns
// authoritative engine state, applies moves with optimistic-concurrency and
// idempotency guarantees, arms turn/disconnect timers, and fans events out
// to subscribers. One Actor exists per matchId.
package matchactor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fightclaw/backend/internal/engine"
	"github.com/fightclaw/backend/internal/fanout"
	"github.com/fightclaw/backend/internal/models"
	"github.com/fightclaw/backend/internal/rating"
	"github.com/fightclaw/backend/internal/repository"
	"github.com/fightclaw/backend/pkg/logger"
)

var (
	ErrActorStopped = errors.New("matchactor: actor stopped")
)

// RejectCode enumerates submitMove rejection reasons.
type RejectCode string

const (
	RejectNone            RejectCode = ""
	RejectUnauthorized    RejectCode = "unauthorized"
	RejectNotYourTurn     RejectCode = "not_your_turn"
	RejectVersionMismatch RejectCode = "version_mismatch"
	RejectInvalidSchema   RejectCode = "invalid_move_schema"
	RejectIllegalMove     RejectCode = "illegal_move"
	RejectTerminal        RejectCode = "terminal"
)

// knownActions are the move discriminants the core recognizes structurally;
// the action-specific fields beyond the discriminant are opaque to it.
var knownActions = map[string]struct{}{
	"move": {}, "attack": {}, "recruit": {}, "fortify": {},
	"upgrade": {}, "end_turn": {}, "pass": {},
}

// MoveRequest is the input to SubmitMove.
type MoveRequest struct {
	AgentID         string
	MoveID          string
	ExpectedVersion int64
	Move            json.RawMessage
}

// MoveOutcome is the cached, idempotent result of a move submission.
type MoveOutcome struct {
	Reject         RejectCode      `json:"reject,omitempty"`
	State          json.RawMessage `json:"state,omitempty"`
	StateVersion   int64           `json:"stateVersion"`
	ActiveAgentID  string          `json:"activeAgentId,omitempty"`
	CurrentVersion int64           `json:"currentVersion,omitempty"`
	Reason         string          `json:"reason,omitempty"`

	// FromCache reports whether this outcome was served from the
	// idempotency table rather than freshly computed. Never serialized:
	// callers use it to decide whether a per-request requestId belongs
	// on the HTTP envelope, not to shape the envelope body itself.
	FromCache bool `json:"-"`
}

// StateSnapshot is the result of GetState.
type StateSnapshot struct {
	State         json.RawMessage `json:"state"`
	StateVersion  int64           `json:"stateVersion"`
	Turn          int64           `json:"turn"`
	ActiveAgentID string          `json:"activeAgentId"`
	Terminal      bool            `json:"terminal,omitempty"`
	Winner        *string         `json:"winner,omitempty"`
	Reason        string          `json:"reason,omitempty"`
}

// Config tunes actor timers and backpressure, per spec §6.3.
type Config struct {
	TurnTimeout       time.Duration
	DisconnectGrace   time.Duration
	SubscriberBacklog int
	EloKFactor        float64
	EloProvisional    bool
}

// Actor owns one match's authoritative state.
type Actor struct {
	matchID string
	eng     engine.Engine
	store   repository.Store
	elo     *rating.Service
	cfg     Config
	hub     *fanout.Hub

	mailbox chan func()
	stopCh  chan struct{}

	// actor-owned state; touched only from the run() goroutine.
	state         engine.State
	stateVersion  int64
	turn          int64
	activeAgentID string
	players       [2]string
	seatOf        map[string]int
	ratings       map[string]float64
	gamesPlayed   map[string]int
	terminal      bool
	winner        *string
	endReason     string

	idempotency map[string]MoveOutcome

	turnTimer        *time.Timer
	turnTimerVersion int64

	disconnectTimers   map[string]*time.Timer
	disconnectDeadline map[string]time.Time

	// openConns counts live streaming connections per agentId across both
	// transports (SSE and WebSocket). armDisconnectTimer only fires once
	// this drops to zero, per spec.md:118 ("both streaming connections...
	// have been closed").
	openConns map[string]int
}

// New constructs an Actor for matchID. Call Init before serving traffic.
func New(matchID string, eng engine.Engine, store repository.Store, cfg Config) *Actor {
	if cfg.SubscriberBacklog <= 0 {
		cfg.SubscriberBacklog = 256
	}
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = 30 * time.Second
	}
	if cfg.DisconnectGrace <= 0 {
		cfg.DisconnectGrace = 60 * time.Second
	}
	return &Actor{
		matchID:            matchID,
		eng:                eng,
		store:              store,
		elo:                rating.NewService(cfg.EloKFactor, cfg.EloProvisional),
		cfg:                cfg,
		hub:                fanout.NewHub(),
		mailbox:            make(chan func(), 64),
		stopCh:             make(chan struct{}),
		seatOf:             make(map[string]int, 2),
		ratings:            make(map[string]float64, 2),
		gamesPlayed:        make(map[string]int, 2),
		idempotency:        make(map[string]MoveOutcome),
		disconnectTimers:   make(map[string]*time.Timer),
		disconnectDeadline: make(map[string]time.Time),
		openConns:          make(map[string]int),
	}
}

// Run starts the actor's mailbox loop. Call in its own goroutine.
func (a *Actor) Run() {
	for {
		select {
		case op, ok := <-a.mailbox:
			if !ok {
				return
			}
			op()
		case <-a.stopCh:
			return
		}
	}
}

// Stop terminates the mailbox loop without ending the match; used when the
// scheduler evicts an idle actor after end + grace.
func (a *Actor) Stop() {
	select {
	case <-a.stopCh:
	default:
		close(a.stopCh)
	}
	a.hub.CloseAll()
}

// send enqueues op on the mailbox and blocks until it runs or ctx/stop wins.
func (a *Actor) send(ctx context.Context, op func()) error {
	select {
	case a.mailbox <- op:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-a.stopCh:
		return ErrActorStopped
	}
}

// Init seeds the actor's state from the engine. Seat 0/1 map to players[0]/[1].
// startingGamesPlayed carries each player's completed-match count at pairing
// time, so the Elo provisional tier (Config.EloProvisional) can tell a
// returning agent from a brand-new one instead of always seeing zero.
func (a *Actor) Init(ctx context.Context, seed int64, players [2]string, startingRatings [2]float64, startingGamesPlayed [2]int) error {
	resultCh := make(chan error, 1)
	err := a.send(ctx, func() {
		st, err := a.eng.InitialState(context.Background(), seed, players)
		if err != nil {
			resultCh <- fmt.Errorf("matchactor: init failed: %w", err)
			return
		}
		a.state = st
		a.players = players
		a.seatOf[players[0]] = 0
		a.seatOf[players[1]] = 1
		a.ratings[players[0]] = startingRatings[0]
		a.ratings[players[1]] = startingRatings[1]
		a.gamesPlayed[players[0]] = startingGamesPlayed[0]
		a.gamesPlayed[players[1]] = startingGamesPlayed[1]

		active, err := a.eng.CurrentPlayer(context.Background(), st)
		if err != nil {
			resultCh <- fmt.Errorf("matchactor: init failed: %w", err)
			return
		}
		a.activeAgentID = active
		a.armTurnTimer()
		resultCh <- nil
	})
	if err != nil {
		return err
	}
	return <-resultCh
}

// GetState returns a snapshot of the current authoritative state.
func (a *Actor) GetState(ctx context.Context) (StateSnapshot, error) {
	resultCh := make(chan StateSnapshot, 1)
	err := a.send(ctx, func() {
		resultCh <- a.snapshotLocked()
	})
	if err != nil {
		return StateSnapshot{}, err
	}
	return <-resultCh, nil
}

func (a *Actor) snapshotLocked() StateSnapshot {
	return StateSnapshot{
		State:         a.state,
		StateVersion:  a.stateVersion,
		Turn:          a.turn,
		ActiveAgentID: a.activeAgentID,
		Terminal:      a.terminal,
		Winner:        a.winner,
		Reason:        a.endReason,
	}
}

// Subscribe registers a live subscriber and immediately delivers a state
// snapshot, per the subscription contract. agentID is empty for spectators.
func (a *Actor) Subscribe(ctx context.Context, agentID string) (*fanout.Subscriber, func(), error) {
	type result struct {
		sub    *fanout.Subscriber
		cancel func()
	}
	resultCh := make(chan result, 1)
	err := a.send(ctx, func() {
		sub := fanout.NewSubscriber(agentID, a.cfg.SubscriberBacklog)
		cancel := a.hub.Subscribe(sub)
		snap := a.snapshotLocked()
		sub.Prime(fanout.Envelope{
			EventVersion: 1,
			Event:        fanout.EventState,
			MatchID:      a.matchID,
			State:        snap.State,
			StateVersion: snap.StateVersion,
		})
		resultCh <- result{sub: sub, cancel: cancel}
	})
	if err != nil {
		return nil, nil, err
	}
	r := <-resultCh
	return r.sub, r.cancel, nil
}

// SubmitMove runs the full §4.2.2 algorithm, serialized against every other
// operation on this actor.
func (a *Actor) SubmitMove(ctx context.Context, req MoveRequest) (MoveOutcome, error) {
	resultCh := make(chan MoveOutcome, 1)
	err := a.send(ctx, func() {
		resultCh <- a.submitMoveLocked(req)
	})
	if err != nil {
		return MoveOutcome{}, err
	}
	return <-resultCh, nil
}

func (a *Actor) cacheAndReturn(moveID string, outcome MoveOutcome) MoveOutcome {
	a.idempotency[moveID] = outcome
	return outcome
}

func (a *Actor) submitMoveLocked(req MoveRequest) MoveOutcome {
	// 1. Idempotency check.
	if cached, ok := a.idempotency[req.MoveID]; ok {
		cached.FromCache = true
		return cached
	}

	// 2. Terminal check.
	if a.terminal {
		return a.cacheAndReturn(req.MoveID, MoveOutcome{Reject: RejectTerminal, StateVersion: a.stateVersion})
	}

	// 3. Authorization.
	if req.AgentID != a.activeAgentID {
		return a.cacheAndReturn(req.MoveID, MoveOutcome{
			Reject: RejectNotYourTurn, ActiveAgentID: a.activeAgentID, StateVersion: a.stateVersion,
		})
	}

	// 4. Version check.
	if req.ExpectedVersion != a.stateVersion {
		return a.cacheAndReturn(req.MoveID, MoveOutcome{
			Reject: RejectVersionMismatch, CurrentVersion: a.stateVersion, StateVersion: a.stateVersion,
		})
	}

	// 5. Schema check.
	var discriminant struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal(req.Move, &discriminant); err != nil {
		return a.cacheAndReturn(req.MoveID, MoveOutcome{Reject: RejectInvalidSchema, StateVersion: a.stateVersion})
	}
	if _, ok := knownActions[discriminant.Action]; !ok {
		return a.cacheAndReturn(req.MoveID, MoveOutcome{Reject: RejectInvalidSchema, StateVersion: a.stateVersion})
	}

	// 6. Legality / engine application.
	newState, events, err := a.eng.Apply(context.Background(), a.state, req.Move)
	if err != nil {
		return a.cacheAndReturn(req.MoveID, MoveOutcome{
			Reject: RejectIllegalMove, Reason: err.Error(), StateVersion: a.stateVersion,
		})
	}

	// 6a-c. Commit new state.
	prevActive := a.activeAgentID
	a.state = newState
	a.stateVersion++
	a.turn++
	newActive, err := a.eng.CurrentPlayer(context.Background(), newState)
	if err != nil {
		logger.Error("matchactor: currentPlayer failed post-apply", "matchId", a.matchID, "error", err)
	} else {
		a.activeAgentID = newActive
	}

	// 6b. Best-effort append to the durable log.
	payload, err := repository.EncodePayload(map[string]interface{}{
		"move":         json.RawMessage(req.Move),
		"engineEvents": events,
		"agentId":      req.AgentID,
		"moveId":       req.MoveID,
		"stateVersion": a.stateVersion,
	})
	if err != nil {
		logger.Error("matchactor: encode move_applied payload failed", "matchId", a.matchID, "error", err)
	} else if err := a.store.AppendEvent(context.Background(), a.matchID, a.turn, "move_applied", payload); err != nil {
		logger.Error("matchactor: append event failed", "matchId", a.matchID, "error", err)
	}

	// 6d. Rearm the turn timer.
	a.cancelTurnTimer()

	// 6e. Broadcast state, then engine events, then your_turn if it changed.
	a.hub.Broadcast(fanout.Envelope{
		EventVersion: 1, Event: fanout.EventState, MatchID: a.matchID,
		State: a.state, StateVersion: a.stateVersion,
	})
	if len(events) > 0 {
		a.hub.Broadcast(fanout.Envelope{
			EventVersion: 1, Event: fanout.EventEngineEvents, MatchID: a.matchID,
			StateVersion: a.stateVersion, AgentID: req.AgentID, MoveID: req.MoveID,
			Move: req.Move, EngineEvents: events,
		})
	}
	outcome := MoveOutcome{State: a.state, StateVersion: a.stateVersion, ActiveAgentID: a.activeAgentID}

	// 6f. Terminal transition, else arm the next turn timer.
	term, err := a.eng.IsTerminal(context.Background(), a.state)
	if err != nil {
		logger.Error("matchactor: isTerminal failed", "matchId", a.matchID, "error", err)
	}
	if err == nil && term.Ended {
		a.terminateLocked(term.Winner, models.ReasonTerminal)
	} else {
		if a.activeAgentID != prevActive {
			a.hub.Broadcast(fanout.Envelope{
				EventVersion: 1, Event: fanout.EventYourTurn, MatchID: a.matchID,
				AgentID: a.activeAgentID, StateVersion: a.stateVersion,
			})
		}
		a.armTurnTimer()
	}

	// 7. Response caching.
	return a.cacheAndReturn(req.MoveID, outcome)
}

// Finish is the admin-only bypass of turn/auth gates. Idempotent.
func (a *Actor) Finish(ctx context.Context, reason string) error {
	return a.send(ctx, func() {
		if a.terminal {
			return
		}
		a.terminateLocked("", models.EndReason("admin_finish_"+reason))
	})
}

// terminateLocked writes the result, updates ratings, broadcasts
// game_ended and closes all subscriptions. winner is "" for a draw/forfeit
// with no winner.
func (a *Actor) terminateLocked(winner string, reason models.EndReason) {
	a.terminal = true
	a.endReason = string(reason)
	if winner != "" {
		w := winner
		a.winner = &w
	}

	result := models.MatchResult{MatchID: a.matchID, Reason: reason}
	deltas := map[string]repository.RatingUpdate{}
	if len(a.players) == 2 && a.players[0] != "" {
		outcome := rating.Draw
		var loser string
		if winner == a.players[0] {
			outcome = rating.Win
			loser = a.players[1]
		} else if winner == a.players[1] {
			outcome = rating.Loss
			loser = a.players[0]
		}
		if winner != "" {
			w := winner
			result.WinnerAgentID = &w
		}
		if loser != "" {
			l := loser
			result.LoserAgentID = &l
		}

		rA, rB := a.elo.Update(
			a.ratings[a.players[0]], a.gamesPlayed[a.players[0]],
			a.ratings[a.players[1]], a.gamesPlayed[a.players[1]],
			outcome,
		)
		deltas[a.players[0]] = toRatingUpdate(rA, a.players[0], winner, loser)
		deltas[a.players[1]] = toRatingUpdate(rB, a.players[1], winner, loser)
		a.gamesPlayed[a.players[0]]++
		a.gamesPlayed[a.players[1]]++
	}

	// spec.md:168 — a persistence failure here must not block the match
	// from ending in memory, so retries are bounded and failure falls
	// through to the broadcast below rather than returning early.
	retryCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err := retryWithBackoff(retryCtx, 3, 100*time.Millisecond, func() error {
		return a.store.RecordMatchResult(context.Background(), result, deltas, a.stateVersion)
	})
	cancel()
	if err != nil {
		logger.Error("matchactor: record match result failed after retries", "matchId", a.matchID, "error", err)
	}

	a.cancelTurnTimer()
	a.cancelAllDisconnectTimers()

	a.hub.Broadcast(fanout.Envelope{
		EventVersion: 1, Event: fanout.EventGameEnded, MatchID: a.matchID,
		Winner: a.winner, Reason: a.endReason, FinalStateVersion: a.stateVersion,
	})
	a.hub.CloseAll()
}

func toRatingUpdate(r rating.Result, agentID, winner, loser string) repository.RatingUpdate {
	upd := repository.RatingUpdate{NewRating: r.NewRating}
	switch agentID {
	case winner:
		upd.WonDelta = 1
	case loser:
		upd.LostDelta = 1
	}
	return upd
}
