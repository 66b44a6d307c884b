package models

import (
	"encoding/json"
	"time"
)

// Challenge statuses. Everything but pending is terminal.
const (
	ChallengePending  = "pending"
	ChallengeAccepted = "accepted"
	ChallengeDeclined = "declined"
	ChallengeExpired  = "expired"
)

// Challenge is a direct invitation from one user to another to debate a
// topic. Pending challenges that outlive ExpiresAt are closed by the
// periodic sweep.
type Challenge struct {
	ID           string    `json:"id"`
	FromUserID   string    `json:"from_user_id"`
	FromUsername string    `json:"from_username"`
	FromRating   int       `json:"from_rating"`
	ToUserID     string    `json:"to_user_id"`
	TopicID      string    `json:"topic_id"`
	Status       string    `json:"status"`
	DebateID     string    `json:"debate_id"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    int64     `json:"expires_at"`
	Version      int64     `json:"version"`
}

// Open reports whether the challenge can still be accepted or declined.
func (c *Challenge) Open(now time.Time) bool {
	return c.Status == ChallengePending && now.Unix() < c.ExpiresAt
}

// ToDocument converts the challenge to the store's document shape.
func (c *Challenge) ToDocument() (map[string]any, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	delete(doc, "id")
	return doc, nil
}

// ChallengeFromDocument decodes a store document back into a Challenge.
func ChallengeFromDocument(id string, doc map[string]any) (*Challenge, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var c Challenge
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, err
	}
	c.ID = id
	return &c, nil
}
