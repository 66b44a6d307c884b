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

// SessionCreator is the slice of the orchestrator matchmaking needs:
// creating a room for a matched pair and discovering a room the other
// side of the pair already created.
type SessionCreator interface {
	CreateMatchedSession(ctx context.Context, topicID string, a, b models.QueueEntry) (string, error)
	FindSessionForPair(ctx context.Context, userA, userB string) (string, error)
}

// MatchmakingConfig tunes the search loop. Zero values get defaults from
// DefaultMatchmakingConfig.
type MatchmakingConfig struct {
	RatingWindow      int
	PollInterval      time.Duration
	ClaimWaitAttempts int
	ClaimWaitInterval time.Duration
	StaleAfter        time.Duration
}

func DefaultMatchmakingConfig() MatchmakingConfig {
	return MatchmakingConfig{
		RatingWindow:      100,
		PollInterval:      2 * time.Second,
		ClaimWaitAttempts: 15,
		ClaimWaitInterval: time.Second,
		StaleAfter:        10 * time.Minute,
	}
}

// MatchmakingService manages the waiting pool: joining, leaving, and the
// polling search that pairs users by rating proximity on a shared topic.
type MatchmakingService struct {
	store    store.Store
	sessions SessionCreator
	notifier realtime.Notifier
	monitor  *monitoring.Monitor
	cfg      MatchmakingConfig
}

func NewMatchmakingService(st store.Store, sessions SessionCreator, notifier realtime.Notifier, monitor *monitoring.Monitor, cfg MatchmakingConfig) *MatchmakingService {
	def := DefaultMatchmakingConfig()
	if cfg.RatingWindow <= 0 {
		cfg.RatingWindow = def.RatingWindow
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.ClaimWaitAttempts <= 0 {
		cfg.ClaimWaitAttempts = def.ClaimWaitAttempts
	}
	if cfg.ClaimWaitInterval <= 0 {
		cfg.ClaimWaitInterval = def.ClaimWaitInterval
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = def.StaleAfter
	}

	return &MatchmakingService{
		store:    st,
		sessions: sessions,
		notifier: notifier,
		monitor:  monitor,
		cfg:      cfg,
	}
}

// Join adds the user to the pool. A user with a live unmatched entry
// cannot join again.
func (s *MatchmakingService) Join(ctx context.Context, userID, username, topicID string, rating int) (string, error) {
	existing, err := s.store.Query(ctx, store.CollectionQueue, []store.Filter{
		{Field: "user_id", Op: "=", Value: userID},
		{Field: "matched", Op: "=", Value: false},
	})
	if err != nil {
		return "", fmt.Errorf("check queue for user %s: %w", userID, err)
	}
	if len(existing) > 0 {
		return "", status.ErrAlreadyQueued
	}

	entry := models.QueueEntry{
		UserID:   userID,
		Username: username,
		TopicID:  topicID,
		Rating:   rating,
		JoinedAt: time.Now().UTC(),
	}
	if !entry.Valid() {
		return "", fmt.Errorf("incomplete queue entry for user %s", userID)
	}

	doc, err := entry.ToDocument()
	if err != nil {
		return "", err
	}

	queueID := utils.NewRecordID()
	if err := s.store.Set(ctx, store.CollectionQueue, queueID, doc); err != nil {
		s.monitor.TrackMatchmaking("join", "error")
		return "", fmt.Errorf("enqueue user %s: %w", userID, err)
	}

	s.monitor.TrackMatchmaking("join", "success")
	slog.Info("user joined matchmaking queue", "user_id", userID, "topic_id", topicID, "rating", rating)
	return queueID, nil
}

// Leave removes a queue entry. Removing an already-gone entry is fine.
func (s *MatchmakingService) Leave(ctx context.Context, queueID string) error {
	if err := s.store.Delete(ctx, store.CollectionQueue, queueID); err != nil {
		return fmt.Errorf("leave queue %s: %w", queueID, err)
	}
	s.monitor.TrackMatchmaking("leave", "success")
	return nil
}

// FindMatch returns the unmatched entry on the same topic whose rating is
// closest to the caller's, within the rating window. status.ErrNoMatch
// when the pool has no candidate.
func (s *MatchmakingService) FindMatch(ctx context.Context, userID, topicID string, rating int) (*models.QueueEntry, error) {
	minRating := rating - s.cfg.RatingWindow
	if minRating < 0 {
		minRating = 0
	}

	results, err := s.store.Query(ctx, store.CollectionQueue, []store.Filter{
		{Field: "user_id", Op: "!=", Value: userID},
		{Field: "topic_id", Op: "=", Value: topicID},
		{Field: "rating", Op: ">=", Value: minRating},
		{Field: "rating", Op: "<=", Value: rating + s.cfg.RatingWindow},
		{Field: "matched", Op: "=", Value: false},
	})
	if err != nil {
		return nil, fmt.Errorf("find match for user %s: %w", userID, err)
	}
	if len(results) == 0 {
		return nil, status.ErrNoMatch
	}

	var best *models.QueueEntry
	for _, result := range results {
		entry, err := models.QueueEntryFromDocument(result.ID, result.Doc)
		if err != nil {
			slog.Warn("skipping malformed queue entry", "queue_id", result.ID, "error", err)
			continue
		}
		if best == nil || abs(entry.Rating-rating) < abs(best.Rating-rating) {
			best = entry
		}
	}
	if best == nil {
		return nil, status.ErrNoMatch
	}
	return best, nil
}

// MarkMatched flags the live entries of both users so no third searcher
// pairs with either of them.
func (s *MatchmakingService) MarkMatched(ctx context.Context, userIDs ...string) error {
	for _, userID := range userIDs {
		results, err := s.store.Query(ctx, store.CollectionQueue, []store.Filter{
			{Field: "user_id", Op: "=", Value: userID},
			{Field: "matched", Op: "=", Value: false},
		})
		if err != nil {
			return fmt.Errorf("mark matched %s: %w", userID, err)
		}
		for _, result := range results {
			if err := s.store.Update(ctx, store.CollectionQueue, result.ID, store.Document{"matched": true}); err != nil {
				return fmt.Errorf("mark matched %s: %w", userID, err)
			}
		}
	}
	return nil
}

// Search runs the full matchmaking flow: enqueue, poll for a candidate,
// and converge both sides onto one room. The side with the
// lexicographically smaller user id creates the room; the other waits
// for it to appear. Returns the debate id. Cancelling ctx leaves the
// queue and returns ctx.Err().
func (s *MatchmakingService) Search(ctx context.Context, userID, username, topicID string, rating int) (string, error) {
	queueID, err := s.Join(ctx, userID, username, topicID, rating)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := s.Leave(context.WithoutCancel(ctx), queueID); err != nil {
			slog.Warn("failed to leave queue after search", "queue_id", queueID, "error", err)
		}
	}()

	for {
		match, err := s.FindMatch(ctx, userID, topicID, rating)
		if err != nil {
			if errors.Is(err, status.ErrNoMatch) {
				if err := sleepCtx(ctx, s.cfg.PollInterval); err != nil {
					return "", err
				}
				continue
			}
			// collaborator failure ends this search; the caller retries
			// by starting a new one
			s.monitor.TrackMatchmaking("search", "error")
			return "", err
		}

		debateID, err := s.claimOrAwaitSession(ctx, userID, topicID, *match)
		if err != nil {
			s.monitor.TrackMatchmaking("search", "error")
			return "", err
		}

		s.monitor.TrackMatchmaking("search", "success")
		return debateID, nil
	}
}

func (s *MatchmakingService) claimOrAwaitSession(ctx context.Context, userID, topicID string, match models.QueueEntry) (string, error) {
	existing, err := s.sessions.FindSessionForPair(ctx, userID, match.UserID)
	if err != nil {
		return "", err
	}
	if existing != "" {
		return existing, nil
	}

	if userID < match.UserID {
		return s.createSession(ctx, userID, topicID, match)
	}
	return s.awaitSession(ctx, userID, match.UserID)
}

func (s *MatchmakingService) createSession(ctx context.Context, userID, topicID string, match models.QueueEntry) (string, error) {
	mine, err := s.ownEntry(ctx, userID)
	if err != nil {
		return "", err
	}

	// Flip both entries out of the pool before the room exists so a
	// concurrent searcher cannot pair against either side; the version
	// guard makes the early mark safe to race.
	if err := s.MarkMatched(ctx, userID, match.UserID); err != nil {
		return "", fmt.Errorf("mark matched pair %s vs %s: %w", userID, match.UserID, err)
	}

	debateID, err := s.sessions.CreateMatchedSession(ctx, topicID, *mine, match)
	if err != nil {
		return "", fmt.Errorf("create session for %s vs %s: %w", userID, match.UserID, err)
	}

	for _, uid := range []string{userID, match.UserID} {
		s.notifier.PublishToUser(uid, map[string]any{
			"type":      "match_found",
			"debate_id": debateID,
			"topic_id":  topicID,
		})
	}

	slog.Info("match found, session created",
		"debate_id", debateID, "user_id", userID, "opponent_id", match.UserID)
	return debateID, nil
}

// awaitSession polls for the room the lower-id side is creating.
func (s *MatchmakingService) awaitSession(ctx context.Context, userID, opponentID string) (string, error) {
	for attempt := 0; attempt < s.cfg.ClaimWaitAttempts; attempt++ {
		if err := sleepCtx(ctx, s.cfg.ClaimWaitInterval); err != nil {
			return "", err
		}
		debateID, err := s.sessions.FindSessionForPair(ctx, userID, opponentID)
		if err != nil {
			return "", err
		}
		if debateID != "" {
			return debateID, nil
		}
	}
	return "", status.ErrClaimTimeout
}

func (s *MatchmakingService) ownEntry(ctx context.Context, userID string) (*models.QueueEntry, error) {
	results, err := s.store.Query(ctx, store.CollectionQueue, []store.Filter{
		{Field: "user_id", Op: "=", Value: userID},
		{Field: "matched", Op: "=", Value: false},
	})
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, status.ErrNotFound
	}
	return models.QueueEntryFromDocument(results[0].ID, results[0].Doc)
}

// SweepStale drops pool entries older than the configured age. Matched
// entries are swept too; their owners are already in a room.
func (s *MatchmakingService) SweepStale(ctx context.Context) (int, error) {
	results, err := s.store.Query(ctx, store.CollectionQueue, nil)
	if err != nil {
		return 0, fmt.Errorf("sweep queue: %w", err)
	}

	cutoff := time.Now().Add(-s.cfg.StaleAfter)
	swept := 0
	for _, result := range results {
		entry, err := models.QueueEntryFromDocument(result.ID, result.Doc)
		if err != nil || entry.JoinedAt.Before(cutoff) {
			if err := s.store.Delete(ctx, store.CollectionQueue, result.ID); err != nil {
				slog.Warn("failed to sweep queue entry", "queue_id", result.ID, "error", err)
				continue
			}
			swept++
		}
	}

	if swept > 0 {
		slog.Info("swept stale queue entries", "count", swept)
	}
	return swept, nil
}

// PoolStats snapshots the pool for the admin surface and metrics.
func (s *MatchmakingService) PoolStats(ctx context.Context) (*models.PoolStats, error) {
	results, err := s.store.Query(ctx, store.CollectionQueue, nil)
	if err != nil {
		return nil, fmt.Errorf("pool stats: %w", err)
	}

	stats := &models.PoolStats{
		ByTopic:   make(map[string]int),
		UpdatedAt: time.Now().UTC(),
	}
	for _, result := range results {
		entry, err := models.QueueEntryFromDocument(result.ID, result.Doc)
		if err != nil {
			continue
		}
		if entry.Matched {
			stats.Matched++
			continue
		}
		stats.Waiting++
		stats.ByTopic[entry.TopicID]++
	}

	for topicID, count := range stats.ByTopic {
		s.monitor.SetQueueWaiting(topicID, count)
	}
	return stats, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
