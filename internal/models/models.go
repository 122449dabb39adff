// Package models holds the persisted shapes of the arena: agents, matches,
// the append-only event log, results and leaderboard rows.
package models

import "time"

// Agent is an identity that submits moves, authenticated by an API key.
type Agent struct {
	ID         string     `db:"id" json:"id"`
	Name       string     `db:"name" json:"name"`
	CreatedAt  time.Time  `db:"created_at" json:"createdAt"`
	VerifiedAt *time.Time `db:"verified_at" json:"verifiedAt,omitempty"`
}

// Verified reports whether the agent may enter the queue or submit moves.
func (a *Agent) Verified() bool {
	return a != nil && a.VerifiedAt != nil
}

// ApiKey is a hashed bearer credential belonging to one agent.
type ApiKey struct {
	ID        string     `db:"id" json:"id"`
	AgentID   string     `db:"agent_id" json:"agentId"`
	KeyHash   string     `db:"key_hash" json:"-"`
	KeyPrefix string     `db:"key_prefix" json:"keyPrefix"`
	CreatedAt time.Time  `db:"created_at" json:"createdAt"`
	RevokedAt *time.Time `db:"revoked_at" json:"revokedAt,omitempty"`
}

// Revoked reports whether the key may no longer authenticate.
func (k *ApiKey) Revoked() bool {
	return k != nil && k.RevokedAt != nil
}

// MatchStatus is the lifecycle state of a Match row.
type MatchStatus string

const (
	MatchActive MatchStatus = "active"
	MatchEnded  MatchStatus = "ended"
)

// EndReason enumerates why a match terminated.
type EndReason string

const (
	ReasonTerminal         EndReason = "terminal"
	ReasonForfeit          EndReason = "forfeit"
	ReasonTurnTimeout      EndReason = "turn_timeout"
	ReasonDisconnectTimeout EndReason = "disconnect_timeout"
	ReasonIllegalMove      EndReason = "illegal_move"
	ReasonInitFailed       EndReason = "init_failed"
	ReasonAdminFinish      EndReason = "admin_finish"
)

// Match is one instance of a game between two agents.
type Match struct {
	ID                string      `db:"id" json:"id"`
	Status            MatchStatus `db:"status" json:"status"`
	Seed              int64       `db:"seed" json:"seed"`
	CreatedAt         time.Time   `db:"created_at" json:"createdAt"`
	EndedAt           *time.Time  `db:"ended_at" json:"endedAt,omitempty"`
	WinnerAgentID     *string     `db:"winner_agent_id" json:"winnerAgentId,omitempty"`
	EndReason         *EndReason  `db:"end_reason" json:"endReason,omitempty"`
	FinalStateVersion *int64      `db:"final_state_version" json:"finalStateVersion,omitempty"`
}

// MatchPlayer is one seat in a match, with the rating captured at pairing time.
type MatchPlayer struct {
	MatchID         string  `db:"match_id" json:"matchId"`
	AgentID         string  `db:"agent_id" json:"agentId"`
	Seat            int     `db:"seat" json:"seat"`
	StartingRating  float64 `db:"starting_rating" json:"startingRating"`
	PromptVersionID *string `db:"prompt_version_id" json:"promptVersionId,omitempty"`
}

// MatchEvent is one append-only row of the per-match event log.
type MatchEvent struct {
	ID        int64     `db:"id" json:"id"`
	MatchID   string    `db:"match_id" json:"matchId"`
	Turn      int64     `db:"turn" json:"turn"`
	Ts        time.Time `db:"ts" json:"ts"`
	EventType string    `db:"event_type" json:"eventType"`
	Payload   []byte    `db:"payload_json" json:"payload"`
}

// MatchResult is written once at end-of-match.
type MatchResult struct {
	MatchID       string    `db:"match_id" json:"matchId"`
	WinnerAgentID *string   `db:"winner_agent_id" json:"winnerAgentId,omitempty"`
	LoserAgentID  *string   `db:"loser_agent_id" json:"loserAgentId,omitempty"`
	Reason        EndReason `db:"reason" json:"reason"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
}

// LeaderboardRow is one agent's standing, updated atomically with its MatchResult.
type LeaderboardRow struct {
	AgentID     string    `db:"agent_id" json:"agentId"`
	Rating      float64   `db:"rating" json:"rating"`
	Wins        int       `db:"wins" json:"wins"`
	Losses      int       `db:"losses" json:"losses"`
	GamesPlayed int       `db:"games_played" json:"gamesPlayed"`
	UpdatedAt   time.Time `db:"updated_at" json:"updatedAt"`
}

const DefaultStartingRating = 1500
