package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fightclaw/backend/internal/models"
	"github.com/fightclaw/backend/pkg/database"
)

// AgentRepository is the agent/API-key directory. The match core depends on
// it indirectly: pairing needs an agent to exist and be verified before it
// can claim a seat, and seat bookkeeping needs a starting rating.
type AgentRepository struct {
	db *database.DB
}

func NewAgentRepository(db *database.DB) *AgentRepository {
	return &AgentRepository{db: db}
}

// Create inserts a new, unverified agent with its first API key and claim
// code hash in one transaction.
func (r *AgentRepository) Create(ctx context.Context, id, name, claimCodeHash, apiKeyID, apiKeyHash, apiKeyPrefix string) (*models.Agent, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("repository: create agent: %w", err)
	}
	defer tx.Rollback()

	agent := &models.Agent{}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO agents (id, name, api_key_hash, claim_code_hash)
		VALUES ($1, $2, $3, $4)
		RETURNING id, name, created_at, verified_at
	`, id, name, apiKeyHash, claimCodeHash).Scan(&agent.ID, &agent.Name, &agent.CreatedAt, &agent.VerifiedAt)
	if err != nil {
		return nil, fmt.Errorf("repository: insert agent: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO api_keys (id, agent_id, key_hash, key_prefix)
		VALUES ($1, $2, $3, $4)
	`, apiKeyID, id, apiKeyHash, apiKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("repository: insert api_key: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("repository: create agent: %w", err)
	}
	return agent, nil
}

// FindByID returns nil, nil if no agent has this id.
func (r *AgentRepository) FindByID(ctx context.Context, id string) (*models.Agent, error) {
	agent := &models.Agent{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, created_at, verified_at FROM agents WHERE id = $1
	`, id).Scan(&agent.ID, &agent.Name, &agent.CreatedAt, &agent.VerifiedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repository: find agent: %w", err)
	}
	return agent, nil
}

// FindByClaimCodeHash returns nil, nil if no agent matches. Already-verified
// agents are returned too, so the caller can tell them apart.
func (r *AgentRepository) FindByClaimCodeHash(ctx context.Context, claimCodeHash string) (*models.Agent, error) {
	agent := &models.Agent{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, created_at, verified_at FROM agents WHERE claim_code_hash = $1
	`, claimCodeHash).Scan(&agent.ID, &agent.Name, &agent.CreatedAt, &agent.VerifiedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repository: find agent by claim code: %w", err)
	}
	return agent, nil
}

// Verify sets verified_at to now; it is a no-op (returns false) if the
// agent is already verified.
func (r *AgentRepository) Verify(ctx context.Context, agentID string) (verified bool, err error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE agents SET verified_at = NOW() WHERE id = $1 AND verified_at IS NULL
	`, agentID)
	if err != nil {
		return false, fmt.Errorf("repository: verify agent: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("repository: verify agent: %w", err)
	}
	return n == 1, nil
}

// FindByKeyHash resolves a bearer key's hash to its owning agent and key
// record. Returns nil, nil, nil if no active key matches.
func (r *AgentRepository) FindByKeyHash(ctx context.Context, keyHash string) (*models.Agent, *models.ApiKey, error) {
	key := &models.ApiKey{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, agent_id, key_hash, key_prefix, created_at, revoked_at
		FROM api_keys WHERE key_hash = $1 AND revoked_at IS NULL
	`, keyHash).Scan(&key.ID, &key.AgentID, &key.KeyHash, &key.KeyPrefix, &key.CreatedAt, &key.RevokedAt)
	if err == sql.ErrNoRows {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("repository: find api key: %w", err)
	}
	agent, err := r.FindByID(ctx, key.AgentID)
	if err != nil {
		return nil, nil, err
	}
	return agent, key, nil
}

// NameInUse reports whether an agent already holds this name.
func (r *AgentRepository) NameInUse(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM agents WHERE name = $1)`, name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("repository: check name: %w", err)
	}
	return exists, nil
}
