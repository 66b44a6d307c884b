package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"debate-arena/internal/status"
	"debate-arena/internal/store"
	"debate-arena/models"
)

// Orchestrator composes matchmaking output into debate sessions: room
// creation for matched pairs, open rooms anyone can join, and pair-based
// room discovery for the waiting side of a match.
type Orchestrator struct {
	store   store.Store
	debates *DebateService
}

func NewOrchestrator(st store.Store, debates *DebateService) *Orchestrator {
	return &Orchestrator{store: st, debates: debates}
}

// CreateMatchedSession builds a 1v1 room for a matched pair with
// randomly assigned complementary stances. The roster is complete at
// creation; the session activates when the first participant enters the
// room.
func (o *Orchestrator) CreateMatchedSession(ctx context.Context, topicID string, a, b models.QueueEntry) (string, error) {
	topic, err := o.topicTitle(ctx, topicID)
	if err != nil {
		return "", err
	}

	aStance, bStance := models.StancePro, models.StanceCon
	if rand.IntN(2) == 0 {
		aStance, bStance = models.StanceCon, models.StancePro
	}

	d := &models.Debate{
		Topic:   topic,
		TopicID: topicID,
		Participants: []models.Participant{
			{UserID: a.UserID, DisplayName: a.Username, Stance: aStance, Rating: a.Rating},
			{UserID: b.UserID, DisplayName: b.Username, Stance: bStance, Rating: b.Rating},
		},
		Ratings:       map[string]int{a.UserID: a.Rating, b.UserID: b.Rating},
		ExpectedCount: 2,
	}

	id, err := o.debates.Create(ctx, d)
	if err != nil {
		return "", err
	}

	slog.Info("matched session created",
		"debate_id", id, "topic_id", topicID,
		"pro", proSide(d), "con", conSide(d))
	return id, nil
}

// CreateOpenSession builds a joinable room seeded with its creator.
// expectedCount above two produces a team debate; its ratings are not
// settled at completion.
func (o *Orchestrator) CreateOpenSession(ctx context.Context, topicID string, creator models.Participant, maxRounds, timePerTurn, expectedCount int) (string, error) {
	topic, err := o.topicTitle(ctx, topicID)
	if err != nil {
		return "", err
	}

	d := &models.Debate{
		Topic:         topic,
		TopicID:       topicID,
		MaxRounds:     maxRounds,
		TimePerTurn:   timePerTurn,
		ExpectedCount: expectedCount,
	}
	id, err := o.debates.Create(ctx, d)
	if err != nil {
		return "", err
	}

	if _, err := o.debates.RegisterParticipant(ctx, id, creator); err != nil {
		return "", fmt.Errorf("seed open session %s: %w", id, err)
	}
	return id, nil
}

// CreatePracticeSession builds a 1v1 room against the machine opponent.
// The machine side takes the stance complementary to the human's and the
// room activates immediately, so the opening turn fires without waiting
// for a second joiner.
func (o *Orchestrator) CreatePracticeSession(ctx context.Context, topicID string, human models.Participant, personality string, maxRounds, timePerTurn int) (string, error) {
	topic, err := o.topicTitle(ctx, topicID)
	if err != nil {
		return "", err
	}

	if human.Stance == "" {
		human.Stance = models.StancePro
	}
	aiStance := models.StanceCon
	if human.Stance == models.StanceCon {
		aiStance = models.StancePro
	}

	machine := models.Participant{
		UserID:      models.AIOpponentID,
		DisplayName: "AI Opponent",
		Stance:      aiStance,
		Rating:      1200,
		IsAI:        true,
		IsOnline:    true,
	}

	d := &models.Debate{
		Topic:         topic,
		TopicID:       topicID,
		Participants:  []models.Participant{machine},
		Ratings:       map[string]int{machine.UserID: machine.Rating},
		AIPersonality: personality,
		MaxRounds:     maxRounds,
		TimePerTurn:   timePerTurn,
		ExpectedCount: 2,
	}

	id, err := o.debates.Create(ctx, d)
	if err != nil {
		return "", err
	}

	if _, err := o.debates.RegisterParticipant(ctx, id, human); err != nil {
		return "", fmt.Errorf("seed practice session %s: %w", id, err)
	}

	slog.Info("practice session created",
		"debate_id", id, "topic_id", topicID,
		"user_id", human.UserID, "user_stance", human.Stance)
	return id, nil
}

// FindSessionForPair returns the id of a non-terminal session containing
// both users, or "" when none exists. The waiting side of a match polls
// this while the other side creates the room.
func (o *Orchestrator) FindSessionForPair(ctx context.Context, userA, userB string) (string, error) {
	for _, st := range []string{models.StatusWaiting, models.StatusActive} {
		results, err := o.store.Query(ctx, store.CollectionDebates, []store.Filter{
			{Field: "status", Op: "=", Value: st},
		})
		if err != nil {
			return "", fmt.Errorf("find session for pair: %w", err)
		}
		for _, result := range results {
			d, err := models.DebateFromDocument(result.ID, result.Doc)
			if err != nil {
				continue
			}
			if d.Participant(userA) != nil && d.Participant(userB) != nil {
				return result.ID, nil
			}
		}
	}
	return "", nil
}

// RecoverDeadlines re-registers every active session with the timeout
// manager. Run once at startup so deadlines survive a restart.
func (o *Orchestrator) RecoverDeadlines(ctx context.Context) error {
	results, err := o.store.Query(ctx, store.CollectionDebates, []store.Filter{
		{Field: "status", Op: "=", Value: models.StatusActive},
	})
	if err != nil {
		return fmt.Errorf("recover deadlines: %w", err)
	}

	recovered := 0
	for _, result := range results {
		d, err := models.DebateFromDocument(result.ID, result.Doc)
		if err != nil {
			continue
		}
		o.debates.ScheduleActiveDeadline(ctx, d)
		recovered++
	}

	if recovered > 0 {
		slog.Info("recovered turn deadlines", "count", recovered)
	}
	return nil
}

func (o *Orchestrator) topicTitle(ctx context.Context, topicID string) (string, error) {
	doc, err := o.store.Get(ctx, store.CollectionTopics, topicID)
	if err != nil {
		if errors.Is(err, status.ErrNotFound) {
			return "", fmt.Errorf("topic %s: %w", topicID, status.ErrNotFound)
		}
		return "", fmt.Errorf("load topic %s: %w", topicID, err)
	}
	title, _ := doc["title"].(string)
	if title == "" {
		return "", fmt.Errorf("topic %s has no title", topicID)
	}
	return title, nil
}

func proSide(d *models.Debate) []string {
	return side(d, models.StancePro)
}

func conSide(d *models.Debate) []string {
	return side(d, models.StanceCon)
}

func side(d *models.Debate, stance string) []string {
	var ids []string
	for _, p := range d.Participants {
		if p.Stance == stance {
			ids = append(ids, p.UserID)
		}
	}
	return ids
}
