package matchactor

import (
	"context"
	"time"

	"github.com/fightclaw/backend/internal/models"
	"github.com/fightclaw/backend/pkg/logger"
)

// armTurnTimer arms a single deadline timer for the current active agent.
// Must be called from the mailbox goroutine. There is never more than one
// armed turn timer per match: cancelTurnTimer always precedes a rearm.
func (a *Actor) armTurnTimer() {
	if a.terminal {
		return
	}
	version := a.stateVersion
	agentID := a.activeAgentID
	a.turnTimerVersion = version
	a.turnTimer = time.AfterFunc(a.cfg.TurnTimeout, func() {
		a.postOp(func() {
			a.onTurnTimeout(agentID, version)
		})
	})
}

// cancelTurnTimer stops the armed turn timer, if any. Safe to call when
// none is armed.
func (a *Actor) cancelTurnTimer() {
	if a.turnTimer != nil {
		a.turnTimer.Stop()
		a.turnTimer = nil
	}
}

// onTurnTimeout runs inside the mailbox goroutine. It ignores stale fires:
// a timer whose version no longer matches the current stateVersion was
// already superseded by an accepted move or a prior termination.
func (a *Actor) onTurnTimeout(agentID string, version int64) {
	if a.terminal || a.stateVersion != version || a.activeAgentID != agentID {
		return
	}
	other := a.opponentOf(agentID)
	logger.Warn("matchactor: turn timeout forfeit", "matchId", a.matchID, "agentId", agentID)
	a.terminateLocked(other, models.ReasonTurnTimeout)
}

// opponentOf returns the other seat's agentId.
func (a *Actor) opponentOf(agentID string) string {
	seat, ok := a.seatOf[agentID]
	if !ok {
		return ""
	}
	return a.players[1-seat]
}

// SetConnected reports one transport (SSE or WebSocket) belonging to
// agentID connecting or disconnecting. Both transports call this
// independently and may overlap, so open connections are refcounted per
// agent: the disconnect-grace timer only arms once the count reaches zero,
// per spec.md:118 ("when both streaming connections for an agent have
// been closed"), and is disarmed again the moment any connection reopens.
func (a *Actor) SetConnected(ctx context.Context, agentID string, connected bool) error {
	return a.send(ctx, func() {
		if connected {
			a.openConns[agentID]++
			a.cancelDisconnectTimer(agentID)
			return
		}
		if a.openConns[agentID] > 0 {
			a.openConns[agentID]--
		}
		if a.openConns[agentID] == 0 {
			delete(a.openConns, agentID)
			a.armDisconnectTimer(agentID)
		}
	})
}

func (a *Actor) armDisconnectTimer(agentID string) {
	if a.terminal {
		return
	}
	if _, ok := a.seatOf[agentID]; !ok {
		return
	}
	a.cancelDisconnectTimer(agentID)
	deadline := time.Now().Add(a.cfg.DisconnectGrace)
	a.disconnectDeadline[agentID] = deadline
	a.disconnectTimers[agentID] = time.AfterFunc(a.cfg.DisconnectGrace, func() {
		a.postOp(func() {
			a.onDisconnectTimeout(agentID)
		})
	})
}

func (a *Actor) cancelDisconnectTimer(agentID string) {
	if t, ok := a.disconnectTimers[agentID]; ok {
		t.Stop()
		delete(a.disconnectTimers, agentID)
	}
	delete(a.disconnectDeadline, agentID)
}

func (a *Actor) cancelAllDisconnectTimers() {
	for agentID := range a.disconnectTimers {
		a.cancelDisconnectTimer(agentID)
	}
}

// onDisconnectTimeout runs inside the mailbox goroutine. Per the documented
// simultaneous-disconnect rule: the first agent to exceed the grace period
// loses; if the opponent's deadline has also already passed by the time
// this fires, the match ends in a draw instead.
func (a *Actor) onDisconnectTimeout(agentID string) {
	if a.terminal {
		return
	}
	if _, armed := a.disconnectTimers[agentID]; !armed {
		return // already canceled (agent reconnected)
	}
	delete(a.disconnectTimers, agentID)
	delete(a.disconnectDeadline, agentID)

	other := a.opponentOf(agentID)
	now := time.Now()
	if otherDeadline, otherDisconnected := a.disconnectDeadline[other]; otherDisconnected && !otherDeadline.After(now) {
		logger.Warn("matchactor: simultaneous disconnect timeout, draw", "matchId", a.matchID)
		a.cancelDisconnectTimer(other)
		a.terminateLocked("", models.ReasonDisconnectTimeout)
		return
	}

	logger.Warn("matchactor: disconnect timeout forfeit", "matchId", a.matchID, "agentId", agentID)
	a.terminateLocked(other, models.ReasonDisconnectTimeout)
}

// postOp enqueues op on the mailbox; used from timer callbacks, which run on
// their own goroutine outside actor serialization. It blocks while the
// mailbox is full; if the actor has stopped, the op is dropped.
func (a *Actor) postOp(op func()) {
	select {
	case a.mailbox <- op:
	case <-a.stopCh:
	}
}
