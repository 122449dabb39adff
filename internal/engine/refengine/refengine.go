// Package refengine is a small deterministic two-player engine satisfying
// the engine.Engine interface, used by default when no external engine
// process is configured and by the match actor's own tests. Its field and
// scoring constants come from the arena's original seeded Pong environment.
package refengine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fightclaw/backend/internal/engine"
)

// Field and scoring constants, carried over from the arena's seeded Pong
// environment config.
const (
	FieldWidth   = 800
	FieldHeight  = 400
	PaddleHeight = 80
	PaddleWidth  = 12
	BallRadius   = 8
	MaxScore     = 11
	PaddleStep   = 20
	BallStep     = 10
)

type gameState struct {
	BallX          int   `json:"ballX"`
	BallY          int   `json:"ballY"`
	BallVX         int   `json:"ballVX"`
	BallVY         int   `json:"ballVY"`
	PaddleY        [2]int `json:"paddleY"`
	Score          [2]int `json:"score"`
	ActiveSeat     int    `json:"activeSeat"`
	Players        [2]string `json:"players"`
	Turn           int64  `json:"turn"`
}

type move struct {
	Action    string `json:"action"`
	Direction string `json:"direction,omitempty"`
}

// Engine implements engine.Engine over the in-process Pong-derived state.
type Engine struct{}

func New() *Engine { return &Engine{} }

var _ engine.Engine = (*Engine)(nil)

func (e *Engine) InitialState(_ context.Context, seed int64, players [2]string) (engine.State, error) {
	vx := 1
	if seed%2 == 0 {
		vx = -1
	}
	st := gameState{
		BallX:      FieldWidth / 2,
		BallY:      FieldHeight / 2,
		BallVX:     vx,
		BallVY:     1,
		PaddleY:    [2]int{FieldHeight/2 - PaddleHeight/2, FieldHeight/2 - PaddleHeight/2},
		Score:      [2]int{0, 0},
		ActiveSeat: 0,
		Players:    players,
		Turn:       0,
	}
	return marshal(st)
}

func (e *Engine) LegalMoves(_ context.Context, state engine.State) ([]engine.Move, error) {
	if _, err := unmarshal(state); err != nil {
		return nil, err
	}
	moves := []move{
		{Action: "move", Direction: "up"},
		{Action: "move", Direction: "down"},
		{Action: "pass"},
	}
	out := make([]engine.Move, 0, len(moves))
	for _, m := range moves {
		b, err := json.Marshal(m)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func (e *Engine) Apply(_ context.Context, state engine.State, rawMove engine.Move) (engine.State, []engine.EngineEvent, error) {
	st, err := unmarshal(state)
	if err != nil {
		return nil, nil, err
	}
	var m move
	if err := json.Unmarshal(rawMove, &m); err != nil {
		return nil, nil, fmt.Errorf("%w: invalid move payload", engine.ErrIllegalMove)
	}

	switch m.Action {
	case "move":
		switch m.Direction {
		case "up":
			st.PaddleY[st.ActiveSeat] = clamp(st.PaddleY[st.ActiveSeat]-PaddleStep, 0, FieldHeight-PaddleHeight)
		case "down":
			st.PaddleY[st.ActiveSeat] = clamp(st.PaddleY[st.ActiveSeat]+PaddleStep, 0, FieldHeight-PaddleHeight)
		default:
			return nil, nil, fmt.Errorf("%w: unknown direction %q", engine.ErrIllegalMove, m.Direction)
		}
	case "pass", "end_turn":
		// no paddle movement this turn
	default:
		return nil, nil, fmt.Errorf("%w: unknown action %q", engine.ErrIllegalMove, m.Action)
	}

	var events []engine.EngineEvent
	scorer, scored := stepBall(&st)
	if scored {
		st.Score[scorer]++
		ev, _ := json.Marshal(map[string]interface{}{"type": "score", "seat": scorer, "score": st.Score})
		events = append(events, ev)
	}
	st.Turn++
	st.ActiveSeat = 1 - st.ActiveSeat

	newState, err := marshal(st)
	if err != nil {
		return nil, nil, err
	}
	return newState, events, nil
}

// stepBall advances the ball one tick, bouncing off walls and paddles.
// It returns the scoring seat and whether a point was scored this tick.
func stepBall(st *gameState) (int, bool) {
	st.BallX += st.BallVX * BallStep
	st.BallY += st.BallVY * BallStep

	if st.BallY <= BallRadius || st.BallY >= FieldHeight-BallRadius {
		st.BallVY = -st.BallVY
	}

	if st.BallX <= PaddleWidth+BallRadius {
		if inPaddle(st.BallY, st.PaddleY[0]) {
			st.BallVX = -st.BallVX
		} else {
			resetBall(st, 1)
			return 1, true
		}
	} else if st.BallX >= FieldWidth-PaddleWidth-BallRadius {
		if inPaddle(st.BallY, st.PaddleY[1]) {
			st.BallVX = -st.BallVX
		} else {
			resetBall(st, 0)
			return 0, true
		}
	}
	return 0, false
}

func inPaddle(ballY, paddleY int) bool {
	return ballY >= paddleY && ballY <= paddleY+PaddleHeight
}

func resetBall(st *gameState, servingSeat int) {
	st.BallX = FieldWidth / 2
	st.BallY = FieldHeight / 2
	if servingSeat == 0 {
		st.BallVX = -1
	} else {
		st.BallVX = 1
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (e *Engine) IsTerminal(_ context.Context, state engine.State) (engine.Terminal, error) {
	st, err := unmarshal(state)
	if err != nil {
		return engine.Terminal{}, err
	}
	if st.Score[0] >= MaxScore {
		return engine.Terminal{Ended: true, Winner: st.Players[0], Reason: "terminal"}, nil
	}
	if st.Score[1] >= MaxScore {
		return engine.Terminal{Ended: true, Winner: st.Players[1], Reason: "terminal"}, nil
	}
	return engine.Terminal{}, nil
}

func (e *Engine) CurrentPlayer(_ context.Context, state engine.State) (string, error) {
	st, err := unmarshal(state)
	if err != nil {
		return "", err
	}
	return st.Players[st.ActiveSeat], nil
}

func marshal(st gameState) (engine.State, error) {
	return json.Marshal(st)
}

func unmarshal(state engine.State) (gameState, error) {
	var st gameState
	if err := json.Unmarshal(state, &st); err != nil {
		return gameState{}, fmt.Errorf("refengine: decode state: %w", err)
	}
	return st, nil
}
