package services

import (
	"math"

	"debate-arena/internal/status"
	"debate-arena/models"
)

// EloK is the fixed K-factor for all rating updates.
const EloK = 32

// RatingService computes post-debate Elo ratings. It is pure computation;
// persistence happens at settlement in the debate service.
type RatingService struct{}

func NewRatingService() *RatingService {
	return &RatingService{}
}

// ExpectedScore returns the probability of the first rating beating the
// second under the Elo model.
func (r *RatingService) ExpectedScore(rating, opponent int) float64 {
	return 1.0 / (1.0 + math.Pow(10, float64(opponent-rating)/400.0))
}

// NewRating applies one game result. score is 1 for a win, 0.5 for a
// draw, 0 for a loss. Results round half away from zero and never drop
// below zero.
func (r *RatingService) NewRating(rating, opponent int, score float64) int {
	expected := r.ExpectedScore(rating, opponent)
	updated := int(math.Round(float64(rating) + EloK*(score-expected)))
	if updated < 0 {
		return 0
	}
	return updated
}

// RatingOutcome is the rating movement for one participant.
type RatingOutcome struct {
	Before int
	After  int
	Change int
	Result string // "win", "loss", "draw"
}

// SettleRatings computes new ratings for a finished two-sided debate.
// winnerID is empty for a draw. Only exactly two participants are
// supported; anything else returns status.ErrUnsupportedCardinality.
func (r *RatingService) SettleRatings(participants []models.Participant, winnerID string) (map[string]RatingOutcome, error) {
	if len(participants) != 2 {
		return nil, status.ErrUnsupportedCardinality
	}

	a, b := participants[0], participants[1]

	scoreA, resultA, resultB := 0.5, "draw", "draw"
	switch winnerID {
	case a.UserID:
		scoreA, resultA, resultB = 1, "win", "loss"
	case b.UserID:
		scoreA, resultA, resultB = 0, "loss", "win"
	}

	return map[string]RatingOutcome{
		a.UserID: {
			Before: a.Rating,
			After:  r.NewRating(a.Rating, b.Rating, scoreA),
			Change: r.NewRating(a.Rating, b.Rating, scoreA) - a.Rating,
			Result: resultA,
		},
		b.UserID: {
			Before: b.Rating,
			After:  r.NewRating(b.Rating, a.Rating, 1-scoreA),
			Change: r.NewRating(b.Rating, a.Rating, 1-scoreA) - b.Rating,
			Result: resultB,
		},
	}, nil
}
