// Package repository is the persistence adapter: a narrow,
// operation-specific surface over Postgres, following the teacher's
// raw-SQL repository style (FindByID-style lookups translate sql.ErrNoRows
// into a nil, nil result rather than an error).
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/fightclaw/backend/internal/models"
	"github.com/fightclaw/backend/pkg/database"
)

// Store is the persistence adapter the match actor and matchmaker depend
// on. It exposes exactly the operations they need; nothing more.
type Store interface {
	RecordMatchCreated(ctx context.Context, matchID string, seed int64) error
	RecordMatchPlayers(ctx context.Context, matchID string, players []PlayerSeat) error
	AppendEvent(ctx context.Context, matchID string, turn int64, eventType string, payload []byte) error
	RecordMatchResult(ctx context.Context, result models.MatchResult, ratingDeltas map[string]RatingUpdate, finalStateVersion int64) error
	LoadEventLog(ctx context.Context, matchID string, sinceID int64, limit int) ([]models.MatchEvent, error)
	GetRating(ctx context.Context, agentID string) (float64, error)
	GetGamesPlayed(ctx context.Context, agentID string) (int, error)
	Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardRow, error)
}

// PlayerSeat is one seat passed to RecordMatchPlayers.
type PlayerSeat struct {
	AgentID        string
	Seat           int
	StartingRating float64
}

// RatingUpdate is the post-match rating and outcome counters for one agent,
// applied atomically with its MatchResult.
type RatingUpdate struct {
	NewRating float64
	WonDelta  int
	LostDelta int
}

// MatchRepository is the Postgres-backed Store implementation.
type MatchRepository struct {
	db *database.DB
}

func NewMatchRepository(db *database.DB) *MatchRepository {
	return &MatchRepository{db: db}
}

var _ Store = (*MatchRepository)(nil)

func (r *MatchRepository) RecordMatchCreated(ctx context.Context, matchID string, seed int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO matches (id, status, seed)
		VALUES ($1, 'active', $2)
		ON CONFLICT (id) DO NOTHING
	`, matchID, seed)
	if err != nil {
		return fmt.Errorf("repository: record match created: %w", err)
	}
	return nil
}

func (r *MatchRepository) RecordMatchPlayers(ctx context.Context, matchID string, players []PlayerSeat) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("repository: record match players: %w", err)
	}
	defer tx.Rollback()

	for _, p := range players {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO match_players (match_id, agent_id, seat, starting_rating)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (match_id, seat) DO NOTHING
		`, matchID, p.AgentID, p.Seat, p.StartingRating)
		if err != nil {
			return fmt.Errorf("repository: record match players: %w", err)
		}
	}
	return tx.Commit()
}

// AppendEvent is strictly append-only: ids are assigned by the autoincrement
// primary key and are therefore strictly increasing per matchId.
func (r *MatchRepository) AppendEvent(ctx context.Context, matchID string, turn int64, eventType string, payload []byte) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO match_events (match_id, turn, event_type, payload_json)
		VALUES ($1, $2, $3, $4)
	`, matchID, turn, eventType, payload)
	if err != nil {
		return fmt.Errorf("repository: append event: %w", err)
	}
	return nil
}

// RecordMatchResult writes the result row, updates both players' leaderboard
// rows and marks the match ended, all inside one transaction.
func (r *MatchRepository) RecordMatchResult(ctx context.Context, result models.MatchResult, ratingDeltas map[string]RatingUpdate, finalStateVersion int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("repository: record match result: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO match_results (match_id, winner_agent_id, loser_agent_id, reason)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (match_id) DO NOTHING
	`, result.MatchID, result.WinnerAgentID, result.LoserAgentID, result.Reason)
	if err != nil {
		return fmt.Errorf("repository: insert match_results: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE matches
		SET status = 'ended', ended_at = NOW(), winner_agent_id = $2, end_reason = $3, final_state_version = $4
		WHERE id = $1
	`, result.MatchID, result.WinnerAgentID, result.Reason, finalStateVersion)
	if err != nil {
		return fmt.Errorf("repository: update match status: %w", err)
	}

	for agentID, upd := range ratingDeltas {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO leaderboard (agent_id, rating, wins, losses, games_played, updated_at)
			VALUES ($1, $2, $3, $4, 1, NOW())
			ON CONFLICT (agent_id) DO UPDATE SET
				rating = $2,
				wins = leaderboard.wins + $3,
				losses = leaderboard.losses + $4,
				games_played = leaderboard.games_played + 1,
				updated_at = NOW()
		`, agentID, upd.NewRating, upd.WonDelta, upd.LostDelta)
		if err != nil {
			return fmt.Errorf("repository: update leaderboard for %s: %w", agentID, err)
		}
	}

	return tx.Commit()
}

func (r *MatchRepository) LoadEventLog(ctx context.Context, matchID string, sinceID int64, limit int) ([]models.MatchEvent, error) {
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, match_id, turn, ts, event_type, payload_json
		FROM match_events
		WHERE match_id = $1 AND id > $2
		ORDER BY id ASC
		LIMIT $3
	`, matchID, sinceID, limit)
	if err != nil {
		return nil, fmt.Errorf("repository: load event log: %w", err)
	}
	defer rows.Close()

	var events []models.MatchEvent
	for rows.Next() {
		var ev models.MatchEvent
		if err := rows.Scan(&ev.ID, &ev.MatchID, &ev.Turn, &ev.Ts, &ev.EventType, &ev.Payload); err != nil {
			return nil, fmt.Errorf("repository: scan event: %w", err)
		}
		events = append(events, ev)
	}
	return events, nil
}

func (r *MatchRepository) GetRating(ctx context.Context, agentID string) (float64, error) {
	var rating float64
	err := r.db.QueryRowContext(ctx, `SELECT rating FROM leaderboard WHERE agent_id = $1`, agentID).Scan(&rating)
	if err == sql.ErrNoRows {
		return models.DefaultStartingRating, nil
	}
	if err != nil {
		return 0, fmt.Errorf("repository: get rating: %w", err)
	}
	return rating, nil
}

// GetGamesPlayed returns the agent's completed-match count, used to seed
// the Elo provisional-tier decision at pairing time (0 for an agent with
// no leaderboard row yet).
func (r *MatchRepository) GetGamesPlayed(ctx context.Context, agentID string) (int, error) {
	var games int
	err := r.db.QueryRowContext(ctx, `SELECT games_played FROM leaderboard WHERE agent_id = $1`, agentID).Scan(&games)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("repository: get games played: %w", err)
	}
	return games, nil
}

func (r *MatchRepository) Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardRow, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT agent_id, rating, wins, losses, games_played, updated_at
		FROM leaderboard
		ORDER BY rating DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("repository: leaderboard: %w", err)
	}
	defer rows.Close()

	var out []models.LeaderboardRow
	for rows.Next() {
		var row models.LeaderboardRow
		if err := rows.Scan(&row.AgentID, &row.Rating, &row.Wins, &row.Losses, &row.GamesPlayed, &row.UpdatedAt); err != nil {
			return nil, fmt.Errorf("repository: scan leaderboard row: %w", err)
		}
		out = append(out, row)
	}
	return out, nil
}

// EncodePayload is a small helper the match actor uses before calling
// AppendEvent, kept here so callers don't each re-implement it.
func EncodePayload(v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("repository: encode payload: %w", err)
	}
	return b, nil
}
