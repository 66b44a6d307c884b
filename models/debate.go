package models

import (
	"encoding/json"
	"strings"
	"time"
)

// Debate statuses. completed and abandoned are terminal.
const (
	StatusWaiting   = "waiting"
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusAbandoned = "abandoned"
)

// End reasons recorded on the completed→ terminal transition.
const (
	EndReasonRounds       = "rounds_exhausted"
	EndReasonManual       = "manual"
	EndReasonInsufficient = "insufficient_arguments"
	EndReasonError        = "error"
)

const (
	StancePro = "pro"
	StanceCon = "con"
)

// AutoArgumentContent is the placeholder appended when a turn times out.
const AutoArgumentContent = "[no argument submitted]"

// AIOpponentID is the fixed participant id of the machine side in a
// practice session.
const AIOpponentID = "ai_opponent"

// Participant is a debate member. The liveness flags are advisory,
// presentation-only state mirrored from Redis; they carry no authority
// over turn order or completion.
type Participant struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Stance      string `json:"stance"`
	Rating      int    `json:"rating"`
	IsAI        bool   `json:"is_ai"`
	IsOnline    bool   `json:"is_online"`
	IsTyping    bool   `json:"is_typing"`
	LastSeen    int64  `json:"last_seen"`
}

// Argument is one turn's submission. Immutable once appended.
type Argument struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Content     string    `json:"content"`
	Round       int       `json:"round"`
	WordCount   int       `json:"word_count"`
	SubmittedAt time.Time `json:"submitted_at"`
	Auto        bool      `json:"auto"`
}

// Judgment is set at most once, at completion. An empty Winner means draw.
type Judgment struct {
	Winner     string              `json:"winner"`
	Scores     map[string]float64  `json:"scores"`
	Feedback   map[string][]string `json:"feedback"`
	Reasoning  string              `json:"reasoning"`
	Highlights []string            `json:"highlights"`
}

// Debate is one debate session document, the sole shared mutable resource.
// Version backs the conditional-write guard: every mutation goes
// read → compute → UpdateIf(version), so concurrent clients collide
// detectably instead of silently overwriting each other.
type Debate struct {
	ID            string         `json:"id"`
	Topic         string         `json:"topic"`
	TopicID       string         `json:"topic_id"`
	Participants  []Participant  `json:"participants"`
	Arguments     []Argument     `json:"arguments"`
	Status        string         `json:"status"`
	CurrentTurn   string         `json:"current_turn"`
	CurrentRound  int            `json:"current_round"`
	TurnOrder     []string       `json:"turn_order"`
	MaxRounds     int            `json:"max_rounds"`
	TimePerTurn   int            `json:"time_per_turn"`
	ExpectedCount int            `json:"expected_count"`
	TurnDeadline  int64          `json:"turn_deadline"`
	Ratings       map[string]int `json:"ratings"`
	RatingChanges map[string]int `json:"rating_changes"`
	Judgment      *Judgment      `json:"judgment"`
	AIPersonality string         `json:"ai_personality"`
	EndReason     string         `json:"end_reason"`
	AbandonedBy   string         `json:"abandoned_by"`
	CreatedAt     time.Time      `json:"created_at"`
	StartedAt     *time.Time     `json:"started_at"`
	EndedAt       *time.Time     `json:"ended_at"`
	Version       int64          `json:"version"`
}

// Participant returns the member with the given user id, or nil.
func (d *Debate) Participant(userID string) *Participant {
	for i := range d.Participants {
		if d.Participants[i].UserID == userID {
			return &d.Participants[i]
		}
	}
	return nil
}

// Practice reports whether the roster includes a machine participant.
// Practice sessions are judged at completion but never rated.
func (d *Debate) Practice() bool {
	for i := range d.Participants {
		if d.Participants[i].IsAI {
			return true
		}
	}
	return false
}

// Terminal reports whether no further arguments are accepted.
func (d *Debate) Terminal() bool {
	return d.Status == StatusCompleted || d.Status == StatusAbandoned
}

// NextTurn returns the participant after userID in the cyclical turn order.
func (d *Debate) NextTurn(userID string) string {
	for i, id := range d.TurnOrder {
		if id == userID {
			return d.TurnOrder[(i+1)%len(d.TurnOrder)]
		}
	}
	return ""
}

// InterleaveByStance builds the cyclical turn order: pro, con, pro, con, …
// padding with whichever side has more members once the other is exhausted.
func InterleaveByStance(participants []Participant) []string {
	var pro, con []string
	for _, p := range participants {
		if p.Stance == StancePro {
			pro = append(pro, p.UserID)
		} else {
			con = append(con, p.UserID)
		}
	}

	order := make([]string, 0, len(pro)+len(con))
	for i := 0; i < len(pro) || i < len(con); i++ {
		if i < len(pro) {
			order = append(order, pro[i])
		}
		if i < len(con) {
			order = append(order, con[i])
		}
	}
	return order
}

// CountWords counts whitespace-separated tokens.
func CountWords(content string) int {
	return len(strings.Fields(content))
}

// ToDocument converts the debate to the schemaless map shape the store
// collaborator works with.
func (d *Debate) ToDocument() (map[string]any, error) {
	raw, err := json.Marshal(d)
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

// DebateFromDocument decodes a store document back into a Debate.
func DebateFromDocument(id string, doc map[string]any) (*Debate, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var d Debate
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, err
	}
	d.ID = id
	return &d, nil
}

// ToDocument converts the queue entry to the store's document shape.
func (e *QueueEntry) ToDocument() (map[string]any, error) {
	raw, err := json.Marshal(e)
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

// QueueEntryFromDocument decodes a store document back into a QueueEntry.
func QueueEntryFromDocument(id string, doc map[string]any) (*QueueEntry, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var e QueueEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, err
	}
	e.ID = id
	return &e, nil
}
