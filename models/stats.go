package models

import (
	"encoding/json"
	"time"
)

// UserStats is the per-user aggregate updated at settlement. Documents
// live in the user_debate_stats collection keyed by user id.
type UserStats struct {
	UserID      string    `json:"user_id"`
	Rating      int       `json:"rating"`
	Wins        int       `json:"wins"`
	Losses      int       `json:"losses"`
	Draws       int       `json:"draws"`
	WinRate     float64   `json:"win_rate"`
	LastUpdated time.Time `json:"last_updated"`
}

// Record applies one debate outcome and recomputes the win rate.
func (s *UserStats) Record(newRating int, outcome string) {
	s.Rating = newRating
	switch outcome {
	case "win":
		s.Wins++
	case "loss":
		s.Losses++
	default:
		s.Draws++
	}
	if games := s.Wins + s.Losses + s.Draws; games > 0 {
		s.WinRate = float64(s.Wins) / float64(games)
	}
	s.LastUpdated = time.Now()
}

func (s *UserStats) ToDocument() (map[string]any, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func UserStatsFromDocument(doc map[string]any) (*UserStats, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var s UserStats
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
