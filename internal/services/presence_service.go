package services

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Presence TTLs. Online state outlives the heartbeat interval; typing
// decays quickly on its own so a stop event is optional.
const (
	onlineTTL = 30 * time.Second
	typingTTL = 5 * time.Second
)

// Presence is the advisory liveness snapshot for one participant. It
// never affects turn order or completion.
type Presence struct {
	Online bool `json:"online"`
	Typing bool `json:"typing"`
}

// PresenceService keeps per-debate liveness flags in Redis under short
// TTLs, so a vanished client simply ages out.
type PresenceService struct {
	redis *redis.Client
}

func NewPresenceService(redisClient *redis.Client) *PresenceService {
	return &PresenceService{redis: redisClient}
}

func onlineKey(debateID, userID string) string {
	return fmt.Sprintf("presence:online:%s:%s", debateID, userID)
}

func typingKey(debateID, userID string) string {
	return fmt.Sprintf("presence:typing:%s:%s", debateID, userID)
}

// Heartbeat refreshes the caller's online flag.
func (s *PresenceService) Heartbeat(ctx context.Context, debateID, userID string) error {
	return s.redis.Set(ctx, onlineKey(debateID, userID), "1", onlineTTL).Err()
}

// SetTyping flips the typing flag. Clearing is explicit on false and
// automatic via TTL otherwise.
func (s *PresenceService) SetTyping(ctx context.Context, debateID, userID string, typing bool) error {
	if typing {
		return s.redis.Set(ctx, typingKey(debateID, userID), "1", typingTTL).Err()
	}
	return s.redis.Del(ctx, typingKey(debateID, userID)).Err()
}

// Snapshot reads both flags for each listed participant.
func (s *PresenceService) Snapshot(ctx context.Context, debateID string, userIDs []string) (map[string]Presence, error) {
	out := make(map[string]Presence, len(userIDs))
	for _, userID := range userIDs {
		online, err := s.redis.Exists(ctx, onlineKey(debateID, userID)).Result()
		if err != nil {
			return nil, fmt.Errorf("presence snapshot %s: %w", debateID, err)
		}
		typing, err := s.redis.Exists(ctx, typingKey(debateID, userID)).Result()
		if err != nil {
			return nil, fmt.Errorf("presence snapshot %s: %w", debateID, err)
		}
		out[userID] = Presence{Online: online > 0, Typing: typing > 0}
	}
	return out, nil
}
