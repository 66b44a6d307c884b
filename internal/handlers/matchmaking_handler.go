package handlers

import (
	"net/http"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"debate-arena/internal/services"
)

type MatchmakingHandler struct {
	app         *pocketbase.PocketBase
	matchmaking *services.MatchmakingService
}

func NewMatchmakingHandler(app *pocketbase.PocketBase, matchmaking *services.MatchmakingService) *MatchmakingHandler {
	return &MatchmakingHandler{app: app, matchmaking: matchmaking}
}

// Join puts the caller into the matchmaking pool without blocking.
func (h *MatchmakingHandler) Join(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req struct {
		TopicID string `json:"topic_id"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.TopicID == "" {
		return apis.NewBadRequestError("topic_id is required", nil)
	}

	queueID, err := h.matchmaking.Join(
		e.Request.Context(),
		e.Auth.Id,
		displayName(e.Auth),
		req.TopicID,
		userRating(h.app, e.Auth.Id),
	)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{"queue_id": queueID})
}

// Leave removes the caller's queue entry.
func (h *MatchmakingHandler) Leave(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	queueID := e.Request.PathValue("queueId")
	if queueID == "" {
		return apis.NewBadRequestError("queueId is required", nil)
	}

	if err := h.matchmaking.Leave(e.Request.Context(), queueID); err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, map[string]any{"message": "Left the queue"})
}

// Search blocks on the full matchmaking flow until a room is ready, the
// request is cancelled, or the claim wait times out. Match events are
// also pushed on the user channel, so closing this request does not lose
// the match.
func (h *MatchmakingHandler) Search(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req struct {
		TopicID string `json:"topic_id"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.TopicID == "" {
		return apis.NewBadRequestError("topic_id is required", nil)
	}

	debateID, err := h.matchmaking.Search(
		e.Request.Context(),
		e.Auth.Id,
		displayName(e.Auth),
		req.TopicID,
		userRating(h.app, e.Auth.Id),
	)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{"debate_id": debateID})
}

// displayName picks the friendliest available label for an auth record.
func displayName(auth *core.Record) string {
	if name := auth.GetString("name"); name != "" {
		return name
	}
	if username := auth.GetString("username"); username != "" {
		return username
	}
	return "User " + lastN(auth.Id, 4)
}

// userRating reads the settled rating, falling back to the 1200 baseline
// for users who have never debated.
func userRating(app *pocketbase.PocketBase, userID string) int {
	record, err := app.FindRecordById("user_debate_stats", userID)
	if err != nil {
		return 1200
	}
	return record.GetInt("rating")
}

func lastN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
