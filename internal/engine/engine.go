// Package engine defines the pure game-rules collaborator the match actor
// drives. Fightclaw treats rules as an external concern: this package holds
// the interface, a gRPC-backed client for an out-of-process engine, and
// (in the refengine subpackage) a small in-process implementation used as
// the default and in tests.
package engine

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrIllegalMove is returned by Apply when the engine rejects a move.
var ErrIllegalMove = errors.New("illegal move")

// State is an opaque engine state value. The core never inspects it beyond
// persisting and re-handing it back to the engine.
type State = json.RawMessage

// Move is a tagged, opaque value validated structurally (known discriminant)
// before it ever reaches Apply.
type Move = json.RawMessage

// EngineEvent is an opaque value emitted alongside a state transition and
// forwarded verbatim to subscribers.
type EngineEvent = json.RawMessage

// Terminal describes whether a state ends the match.
type Terminal struct {
	Ended  bool
	Winner string // agentId, empty if no winner (draw) or not ended
	Reason string
}

// Engine is the pure-function collaborator: initialState, legalMoves, apply,
// isTerminal and currentPlayer. Implementations must be deterministic given
// the same seed and move sequence.
type Engine interface {
	InitialState(ctx context.Context, seed int64, players [2]string) (State, error)
	LegalMoves(ctx context.Context, state State) ([]Move, error)
	Apply(ctx context.Context, state State, move Move) (State, []EngineEvent, error)
	IsTerminal(ctx context.Context, state State) (Terminal, error)
	CurrentPlayer(ctx context.Context, state State) (string, error)
}
