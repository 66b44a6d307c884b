package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"debate-arena/internal/realtime"
	"debate-arena/internal/status"
	"debate-arena/internal/store"
	"debate-arena/models"
	"debate-arena/monitoring"
	"debate-arena/utils"
)

// ChallengeService manages direct invitations: one user challenges a
// specific opponent on a topic, the opponent accepts into a matched
// room or declines, and pending challenges that run past their expiry
// are closed by the periodic sweep.
type ChallengeService struct {
	store    store.Store
	sessions SessionCreator
	notifier realtime.Notifier
	monitor  *monitoring.Monitor
	ttl      time.Duration
}

func NewChallengeService(st store.Store, sessions SessionCreator, notifier realtime.Notifier, monitor *monitoring.Monitor, ttl time.Duration) *ChallengeService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &ChallengeService{
		store:    st,
		sessions: sessions,
		notifier: notifier,
		monitor:  monitor,
		ttl:      ttl,
	}
}

// Create issues a pending challenge to the target. One open challenge
// per (challenger, target, topic) at a time.
func (s *ChallengeService) Create(ctx context.Context, fromUserID, fromUsername string, fromRating int, toUserID, topicID string) (*models.Challenge, error) {
	if fromUserID == toUserID {
		return nil, status.ErrSelfChallenge
	}

	now := time.Now().UTC()
	existing, err := s.store.Query(ctx, store.CollectionChallenges, []store.Filter{
		{Field: "from_user_id", Op: "=", Value: fromUserID},
		{Field: "to_user_id", Op: "=", Value: toUserID},
		{Field: "topic_id", Op: "=", Value: topicID},
		{Field: "status", Op: "=", Value: models.ChallengePending},
	})
	if err != nil {
		return nil, fmt.Errorf("check open challenges from %s: %w", fromUserID, err)
	}
	for _, result := range existing {
		c, err := models.ChallengeFromDocument(result.ID, result.Doc)
		if err == nil && c.Open(now) {
			return nil, status.ErrChallengePending
		}
	}

	c := &models.Challenge{
		FromUserID:   fromUserID,
		FromUsername: fromUsername,
		FromRating:   fromRating,
		ToUserID:     toUserID,
		TopicID:      topicID,
		Status:       models.ChallengePending,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.ttl).Unix(),
	}

	doc, err := c.ToDocument()
	if err != nil {
		return nil, err
	}
	c.ID = utils.NewRecordID()
	if err := s.store.Set(ctx, store.CollectionChallenges, c.ID, doc); err != nil {
		s.monitor.TrackChallenge("create", "error")
		return nil, fmt.Errorf("create challenge from %s to %s: %w", fromUserID, toUserID, err)
	}

	s.monitor.TrackChallenge("create", "success")
	s.notifier.PublishToUser(toUserID, map[string]any{
		"type":          "challenge_received",
		"challenge_id":  c.ID,
		"from_user_id":  fromUserID,
		"from_username": fromUsername,
		"topic_id":      topicID,
		"expires_at":    c.ExpiresAt,
	})
	slog.Info("challenge created",
		"challenge_id", c.ID, "from", fromUserID, "to", toUserID, "topic_id", topicID)
	return c, nil
}

// Accept closes the challenge and opens a matched room for the pair.
// Only the challenged user can accept, only while the challenge is
// pending and unexpired. The version guard closes the challenge before
// the room exists, so a double accept cannot create two rooms.
func (s *ChallengeService) Accept(ctx context.Context, challengeID, userID, username string, rating int) (string, error) {
	c, err := s.challenge(ctx, challengeID)
	if err != nil {
		return "", err
	}
	if c.ToUserID != userID {
		return "", status.ErrNotChallengeTarget
	}
	if c.Status != models.ChallengePending {
		return "", status.ErrChallengeClosed
	}

	now := time.Now().UTC()
	if !c.Open(now) {
		if err := s.close(ctx, c, models.ChallengeExpired); err != nil {
			slog.Warn("failed to expire challenge on accept", "challenge_id", c.ID, "error", err)
		}
		return "", status.ErrChallengeExpired
	}

	if err := s.store.UpdateIf(ctx, store.CollectionChallenges, c.ID, c.Version, store.Document{
		"status": models.ChallengeAccepted,
	}); err != nil {
		if errors.Is(err, status.ErrConflict) {
			return "", status.ErrChallengeClosed
		}
		return "", fmt.Errorf("accept challenge %s: %w", c.ID, err)
	}

	challenger := models.QueueEntry{
		UserID:   c.FromUserID,
		Username: c.FromUsername,
		TopicID:  c.TopicID,
		Rating:   c.FromRating,
		JoinedAt: c.CreatedAt,
	}
	acceptor := models.QueueEntry{
		UserID:   userID,
		Username: username,
		TopicID:  c.TopicID,
		Rating:   rating,
		JoinedAt: now,
	}

	debateID, err := s.sessions.CreateMatchedSession(ctx, c.TopicID, challenger, acceptor)
	if err != nil {
		s.monitor.TrackChallenge("accept", "error")
		return "", fmt.Errorf("open room for challenge %s: %w", c.ID, err)
	}

	if err := s.store.Update(ctx, store.CollectionChallenges, c.ID, store.Document{
		"debate_id": debateID,
	}); err != nil {
		slog.Warn("failed to record debate on challenge", "challenge_id", c.ID, "error", err)
	}

	s.monitor.TrackChallenge("accept", "success")
	s.notifier.PublishToUser(c.FromUserID, map[string]any{
		"type":         "challenge_accepted",
		"challenge_id": c.ID,
		"debate_id":    debateID,
		"topic_id":     c.TopicID,
	})
	slog.Info("challenge accepted",
		"challenge_id", c.ID, "debate_id", debateID, "from", c.FromUserID, "to", userID)
	return debateID, nil
}

// Decline closes the challenge without a room. Target-only.
func (s *ChallengeService) Decline(ctx context.Context, challengeID, userID string) error {
	c, err := s.challenge(ctx, challengeID)
	if err != nil {
		return err
	}
	if c.ToUserID != userID {
		return status.ErrNotChallengeTarget
	}
	if c.Status != models.ChallengePending {
		return status.ErrChallengeClosed
	}

	if err := s.close(ctx, c, models.ChallengeDeclined); err != nil {
		return err
	}

	s.monitor.TrackChallenge("decline", "success")
	s.notifier.PublishToUser(c.FromUserID, map[string]any{
		"type":         "challenge_declined",
		"challenge_id": c.ID,
	})
	slog.Info("challenge declined", "challenge_id", c.ID, "to", userID)
	return nil
}

// Incoming lists the open challenges addressed to the user.
func (s *ChallengeService) Incoming(ctx context.Context, userID string) ([]*models.Challenge, error) {
	results, err := s.store.Query(ctx, store.CollectionChallenges, []store.Filter{
		{Field: "to_user_id", Op: "=", Value: userID},
		{Field: "status", Op: "=", Value: models.ChallengePending},
	})
	if err != nil {
		return nil, fmt.Errorf("list challenges for %s: %w", userID, err)
	}

	now := time.Now().UTC()
	challenges := make([]*models.Challenge, 0, len(results))
	for _, result := range results {
		c, err := models.ChallengeFromDocument(result.ID, result.Doc)
		if err != nil {
			slog.Warn("skipping malformed challenge", "challenge_id", result.ID, "error", err)
			continue
		}
		if c.Open(now) {
			challenges = append(challenges, c)
		}
	}
	return challenges, nil
}

// SweepExpired closes pending challenges past their expiry and notifies
// each challenger. Runs on the same ticker as the queue sweep.
func (s *ChallengeService) SweepExpired(ctx context.Context) (int, error) {
	results, err := s.store.Query(ctx, store.CollectionChallenges, []store.Filter{
		{Field: "status", Op: "=", Value: models.ChallengePending},
		{Field: "expires_at", Op: "<=", Value: time.Now().Unix()},
	})
	if err != nil {
		return 0, fmt.Errorf("sweep challenges: %w", err)
	}

	swept := 0
	for _, result := range results {
		c, err := models.ChallengeFromDocument(result.ID, result.Doc)
		if err != nil {
			continue
		}
		if err := s.close(ctx, c, models.ChallengeExpired); err != nil {
			slog.Warn("failed to expire challenge", "challenge_id", c.ID, "error", err)
			continue
		}
		s.notifier.PublishToUser(c.FromUserID, map[string]any{
			"type":         "challenge_expired",
			"challenge_id": c.ID,
		})
		swept++
	}

	if swept > 0 {
		s.monitor.TrackChallenge("expire", "success")
		slog.Info("expired stale challenges", "count", swept)
	}
	return swept, nil
}

// close flips a pending challenge to a terminal status. A version
// conflict means a concurrent responder already closed it.
func (s *ChallengeService) close(ctx context.Context, c *models.Challenge, to string) error {
	err := s.store.UpdateIf(ctx, store.CollectionChallenges, c.ID, c.Version, store.Document{
		"status": to,
	})
	if errors.Is(err, status.ErrConflict) {
		return status.ErrChallengeClosed
	}
	return err
}

func (s *ChallengeService) challenge(ctx context.Context, challengeID string) (*models.Challenge, error) {
	doc, err := s.store.Get(ctx, store.CollectionChallenges, challengeID)
	if err != nil {
		return nil, err
	}
	return models.ChallengeFromDocument(challengeID, doc)
}
