package handlers

import (
	"net/http"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"debate-arena/internal/services"
)

type ChallengeHandler struct {
	app        *pocketbase.PocketBase
	challenges *services.ChallengeService
}

func NewChallengeHandler(app *pocketbase.PocketBase, challenges *services.ChallengeService) *ChallengeHandler {
	return &ChallengeHandler{app: app, challenges: challenges}
}

// Create issues a direct challenge to a specific user.
func (h *ChallengeHandler) Create(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req struct {
		ToUserID string `json:"to_user_id"`
		TopicID  string `json:"topic_id"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.ToUserID == "" || req.TopicID == "" {
		return apis.NewBadRequestError("to_user_id and topic_id are required", nil)
	}

	c, err := h.challenges.Create(
		e.Request.Context(),
		e.Auth.Id,
		displayName(e.Auth),
		userRating(h.app, e.Auth.Id),
		req.ToUserID,
		req.TopicID,
	)
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, c)
}

// Accept opens a matched room for the challenge pair.
func (h *ChallengeHandler) Accept(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	debateID, err := h.challenges.Accept(
		e.Request.Context(),
		e.Request.PathValue("challengeId"),
		e.Auth.Id,
		displayName(e.Auth),
		userRating(h.app, e.Auth.Id),
	)
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, map[string]any{"debate_id": debateID})
}

// Decline closes the challenge without a debate.
func (h *ChallengeHandler) Decline(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	if err := h.challenges.Decline(e.Request.Context(), e.Request.PathValue("challengeId"), e.Auth.Id); err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, map[string]any{"message": "Challenge declined"})
}

// Incoming lists the caller's open challenges.
func (h *ChallengeHandler) Incoming(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	challenges, err := h.challenges.Incoming(e.Request.Context(), e.Auth.Id)
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, challenges)
}
