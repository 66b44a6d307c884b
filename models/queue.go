package models

import (
	"time"
)

// QueueEntry is a user's standing request to be matched on a topic.
// At most one unmatched entry per (user, topic) should exist at a time;
// duplicates left behind by crashed clients are reconciled by the sweep.
type QueueEntry struct {
	ID       string    `json:"id"`
	UserID   string    `json:"user_id"`
	Username string    `json:"username"`
	TopicID  string    `json:"topic_id"`
	Rating   int       `json:"rating"`
	JoinedAt time.Time `json:"joined_at"`
	Matched  bool      `json:"matched"`
}

// Valid reports whether the entry has all required fields. Entries that
// fail this check are deleted by the stale sweep.
func (e QueueEntry) Valid() bool {
	return e.UserID != "" && e.Username != "" && e.TopicID != "" && !e.JoinedAt.IsZero()
}

type PoolStats struct {
	Waiting   int            `json:"waiting"`
	Matched   int            `json:"matched"`
	ByTopic   map[string]int `json:"by_topic"`
	UpdatedAt time.Time      `json:"updated_at"`
}
