package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"

	"debate-arena/internal/services"
)

type LeaderboardHandler struct {
	app         *pocketbase.PocketBase
	leaderboard *services.LeaderboardService
}

func NewLeaderboardHandler(app *pocketbase.PocketBase, leaderboard *services.LeaderboardService) *LeaderboardHandler {
	return &LeaderboardHandler{app: app, leaderboard: leaderboard}
}

// Top returns the highest-rated debaters. Defaults to 20, capped at 100.
func (h *LeaderboardHandler) Top(e *core.RequestEvent) error {
	limit := int64(20)
	if raw := e.Request.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > 100 {
		limit = 100
	}

	entries, err := h.leaderboard.Top(e.Request.Context(), limit)
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, map[string]any{"entries": entries})
}

// Me returns the caller's rank, or 404 if they have no settled debates.
func (h *LeaderboardHandler) Me(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	entry, err := h.leaderboard.Rank(e.Request.Context(), e.Auth.Id)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return apis.NewNotFoundError("No ranked debates yet", err)
		}
		return apiError(err)
	}
	return e.JSON(http.StatusOK, entry)
}

// Stats returns one user's aggregate record.
func (h *LeaderboardHandler) Stats(e *core.RequestEvent) error {
	userID := e.Request.PathValue("userId")

	record, err := h.app.FindRecordById("user_debate_stats", userID)
	if err != nil {
		return apis.NewNotFoundError("No stats for this user", err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"user_id":  userID,
		"rating":   record.GetInt("rating"),
		"wins":     record.GetInt("wins"),
		"losses":   record.GetInt("losses"),
		"draws":    record.GetInt("draws"),
		"win_rate": record.GetFloat("win_rate"),
	})
}
