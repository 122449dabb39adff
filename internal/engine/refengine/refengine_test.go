package refengine

import (
	"context"
	"encoding/json"
	"testing"
)

func TestInitialState_Deterministic(t *testing.T) {
	e := New()
	ctx := context.Background()
	players := [2]string{"alpha", "beta"}

	a, err := e.InitialState(ctx, 7, players)
	if err != nil {
		t.Fatalf("initial state: %v", err)
	}
	b, err := e.InitialState(ctx, 7, players)
	if err != nil {
		t.Fatalf("initial state: %v", err)
	}
	if string(a) != string(b) {
		t.Fatalf("same seed produced different states:\n%s\n%s", a, b)
	}
}

func TestInitialState_ActiveSeatIsPlayerZero(t *testing.T) {
	e := New()
	ctx := context.Background()
	players := [2]string{"alpha", "beta"}

	st, err := e.InitialState(ctx, 1, players)
	if err != nil {
		t.Fatalf("initial state: %v", err)
	}
	current, err := e.CurrentPlayer(ctx, st)
	if err != nil {
		t.Fatalf("current player: %v", err)
	}
	if current != "alpha" {
		t.Fatalf("expected alpha to move first, got %s", current)
	}
}

func TestApply_PassAlternatesTurn(t *testing.T) {
	e := New()
	ctx := context.Background()
	players := [2]string{"alpha", "beta"}

	st, _ := e.InitialState(ctx, 1, players)
	next, _, err := e.Apply(ctx, st, json.RawMessage(`{"action":"pass"}`))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	current, err := e.CurrentPlayer(ctx, next)
	if err != nil {
		t.Fatalf("current player: %v", err)
	}
	if current != "beta" {
		t.Fatalf("expected beta to move next, got %s", current)
	}
}

func TestApply_UnknownActionIsIllegal(t *testing.T) {
	e := New()
	ctx := context.Background()
	players := [2]string{"alpha", "beta"}

	st, _ := e.InitialState(ctx, 1, players)
	_, _, err := e.Apply(ctx, st, json.RawMessage(`{"action":"teleport"}`))
	if err == nil {
		t.Fatalf("expected illegal move error")
	}
}

func TestApply_UnknownDirectionIsIllegal(t *testing.T) {
	e := New()
	ctx := context.Background()
	players := [2]string{"alpha", "beta"}

	st, _ := e.InitialState(ctx, 1, players)
	_, _, err := e.Apply(ctx, st, json.RawMessage(`{"action":"move","direction":"sideways"}`))
	if err == nil {
		t.Fatalf("expected illegal move error")
	}
}

func TestApply_PaddleClampsToField(t *testing.T) {
	e := New()
	ctx := context.Background()
	players := [2]string{"alpha", "beta"}

	st, _ := e.InitialState(ctx, 1, players)
	for i := 0; i < 50; i++ {
		action := "up"
		if i%2 == 1 {
			action = "down" // alternate so the correct seat always moves
		}
		var err error
		st, _, err = e.Apply(ctx, st, json.RawMessage(`{"action":"move","direction":"`+action+`"}`))
		if err != nil {
			t.Fatalf("apply at step %d: %v", i, err)
		}
	}
	var decoded gameState
	if err := json.Unmarshal(st, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for seat, y := range decoded.PaddleY {
		if y < 0 || y > FieldHeight-PaddleHeight {
			t.Fatalf("seat %d paddle out of bounds: %d", seat, y)
		}
	}
}

func TestIsTerminal_NotEndedInitially(t *testing.T) {
	e := New()
	ctx := context.Background()
	st, _ := e.InitialState(ctx, 1, [2]string{"alpha", "beta"})
	term, err := e.IsTerminal(ctx, st)
	if err != nil {
		t.Fatalf("is terminal: %v", err)
	}
	if term.Ended {
		t.Fatalf("expected fresh match to not be terminal")
	}
}

func TestIsTerminal_EndsAtMaxScore(t *testing.T) {
	st := gameState{
		BallX: FieldWidth / 2, BallY: FieldHeight / 2,
		Score:   [2]int{MaxScore, 3},
		Players: [2]string{"alpha", "beta"},
	}
	raw, err := marshal(st)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	e := New()
	term, err := e.IsTerminal(context.Background(), raw)
	if err != nil {
		t.Fatalf("is terminal: %v", err)
	}
	if !term.Ended || term.Winner != "alpha" {
		t.Fatalf("expected alpha to have won, got %+v", term)
	}
}

func TestLegalMoves_IncludesPass(t *testing.T) {
	e := New()
	ctx := context.Background()
	st, _ := e.InitialState(ctx, 1, [2]string{"alpha", "beta"})
	moves, err := e.LegalMoves(ctx, st)
	if err != nil {
		t.Fatalf("legal moves: %v", err)
	}
	found := false
	for _, m := range moves {
		var decoded move
		if err := json.Unmarshal(m, &decoded); err == nil && decoded.Action == "pass" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected pass among legal moves, got %s", moves)
	}
}
