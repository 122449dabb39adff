// Package rating computes post-match Elo adjustments for the leaderboard.
package rating

import "math"

// Service computes Elo rating deltas. Default K-factor is flat per spec;
// the arena's original provisional-K idea (new agents converge faster) is
// kept as an opt-in.
type Service struct {
	kFactor     float64
	provisional bool
}

// NewService builds a Service with the given default K-factor. When
// provisional is true, Update uses a dynamic K-factor based on games
// played instead of kFactor.
func NewService(kFactor float64, provisional bool) *Service {
	if kFactor <= 0 {
		kFactor = 32
	}
	return &Service{kFactor: kFactor, provisional: provisional}
}

// kFactorFor returns the K-factor to apply for an agent with gamesPlayed
// completed matches so far, honoring the provisional opt-in.
func (s *Service) kFactorFor(gamesPlayed int) float64 {
	if !s.provisional {
		return s.kFactor
	}
	switch {
	case gamesPlayed < 10:
		return 40
	case gamesPlayed < 20:
		return 32
	default:
		return 24
	}
}

// Outcome is the score awarded to the first agent: 1 win, 0.5 draw, 0 loss.
type Outcome float64

const (
	Win  Outcome = 1.0
	Draw Outcome = 0.5
	Loss Outcome = 0.0
)

// Result is one agent's updated rating after Update.
type Result struct {
	NewRating float64
	Delta     float64
}

// Update computes new ratings for both agents given their starting ratings,
// games played so far, and the outcome (scored from a's perspective).
func (s *Service) Update(aRating float64, aGamesPlayed int, bRating float64, bGamesPlayed int, outcome Outcome) (a, b Result) {
	expectedA := expectedScore(aRating, bRating)
	expectedB := 1.0 - expectedA

	kA := s.kFactorFor(aGamesPlayed)
	kB := s.kFactorFor(bGamesPlayed)

	newA := aRating + kA*(float64(outcome)-expectedA)
	newB := bRating + kB*((1.0-float64(outcome))-expectedB)

	return Result{NewRating: newA, Delta: newA - aRating}, Result{NewRating: newB, Delta: newB - bRating}
}

func expectedScore(ratingA, ratingB float64) float64 {
	return 1.0 / (1.0 + math.Pow(10, (ratingB-ratingA)/400.0))
}
