package handlers

import (
	"net/http"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"debate-arena/internal/services"
	"debate-arena/models"
)

type DebateHandler struct {
	app          *pocketbase.PocketBase
	debates      *services.DebateService
	orchestrator *services.Orchestrator
	presence     *services.PresenceService
}

func NewDebateHandler(app *pocketbase.PocketBase, debates *services.DebateService, orchestrator *services.Orchestrator, presence *services.PresenceService) *DebateHandler {
	return &DebateHandler{
		app:          app,
		debates:      debates,
		orchestrator: orchestrator,
		presence:     presence,
	}
}

// CreateOpen starts a joinable session with the caller as its first
// participant.
func (h *DebateHandler) CreateOpen(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req struct {
		TopicID       string `json:"topic_id"`
		MaxRounds     int    `json:"max_rounds"`
		TimePerTurn   int    `json:"time_per_turn"`
		ExpectedCount int    `json:"expected_count"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.TopicID == "" {
		return apis.NewBadRequestError("topic_id is required", nil)
	}

	debateID, err := h.orchestrator.CreateOpenSession(
		e.Request.Context(),
		req.TopicID,
		models.Participant{
			UserID:      e.Auth.Id,
			DisplayName: displayName(e.Auth),
			Rating:      userRating(h.app, e.Auth.Id),
		},
		req.MaxRounds,
		req.TimePerTurn,
		req.ExpectedCount,
	)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{"debate_id": debateID})
}

// CreatePractice starts a session against the machine opponent. The
// room activates immediately and the first turn fires without waiting
// for another joiner.
func (h *DebateHandler) CreatePractice(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req struct {
		TopicID     string `json:"topic_id"`
		Stance      string `json:"stance"`
		Personality string `json:"personality"`
		MaxRounds   int    `json:"max_rounds"`
		TimePerTurn int    `json:"time_per_turn"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.TopicID == "" {
		return apis.NewBadRequestError("topic_id is required", nil)
	}
	if req.Stance != "" && req.Stance != models.StancePro && req.Stance != models.StanceCon {
		return apis.NewBadRequestError("stance must be pro or con", nil)
	}

	debateID, err := h.orchestrator.CreatePracticeSession(
		e.Request.Context(),
		req.TopicID,
		models.Participant{
			UserID:      e.Auth.Id,
			DisplayName: displayName(e.Auth),
			Stance:      req.Stance,
			Rating:      userRating(h.app, e.Auth.Id),
		},
		req.Personality,
		req.MaxRounds,
		req.TimePerTurn,
	)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{"debate_id": debateID})
}

// Get returns the full session document.
func (h *DebateHandler) Get(e *core.RequestEvent) error {
	debateID := e.Request.PathValue("debateId")

	d, err := h.debates.Session(e.Request.Context(), debateID)
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, d)
}

// Join registers the caller in the room, activating the session once the
// roster is complete. Stance is optional; omitted stances are balanced
// across sides.
func (h *DebateHandler) Join(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req struct {
		Stance string `json:"stance"`
	}
	// body is optional; joining without one gets a balanced stance
	_ = e.BindBody(&req)
	if req.Stance != "" && req.Stance != models.StancePro && req.Stance != models.StanceCon {
		return apis.NewBadRequestError("stance must be pro or con", nil)
	}

	d, err := h.debates.RegisterParticipant(e.Request.Context(), e.Request.PathValue("debateId"), models.Participant{
		UserID:      e.Auth.Id,
		DisplayName: displayName(e.Auth),
		Stance:      req.Stance,
		Rating:      userRating(h.app, e.Auth.Id),
	})
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, d)
}

// Submit appends the caller's argument for the current turn.
func (h *DebateHandler) Submit(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req struct {
		Content string `json:"content"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	d, err := h.debates.SubmitArgument(e.Request.Context(), e.Request.PathValue("debateId"), e.Auth.Id, req.Content)
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, d)
}

// End is the manual termination path, valid only after the final round.
func (h *DebateHandler) End(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	debateID := e.Request.PathValue("debateId")
	if err := h.debates.EndDebate(e.Request.Context(), debateID); err != nil {
		return apiError(err)
	}

	d, err := h.debates.Session(e.Request.Context(), debateID)
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, d)
}

// Leave abandons the session on the caller's behalf.
func (h *DebateHandler) Leave(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	if err := h.debates.LeaveDebate(e.Request.Context(), e.Request.PathValue("debateId"), e.Auth.Id); err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, map[string]any{"message": "Left the debate"})
}

// Heartbeat refreshes the caller's online flag.
func (h *DebateHandler) Heartbeat(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	if err := h.presence.Heartbeat(e.Request.Context(), e.Request.PathValue("debateId"), e.Auth.Id); err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, map[string]any{"message": "ok"})
}

// Typing flips the caller's typing flag.
func (h *DebateHandler) Typing(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req struct {
		Typing bool `json:"typing"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	if err := h.presence.SetTyping(e.Request.Context(), e.Request.PathValue("debateId"), e.Auth.Id, req.Typing); err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, map[string]any{"message": "ok"})
}

// Presence returns advisory liveness flags for the whole roster.
func (h *DebateHandler) Presence(e *core.RequestEvent) error {
	debateID := e.Request.PathValue("debateId")

	d, err := h.debates.Session(e.Request.Context(), debateID)
	if err != nil {
		return apiError(err)
	}

	userIDs := make([]string, 0, len(d.Participants))
	for _, p := range d.Participants {
		userIDs = append(userIDs, p.UserID)
	}

	snapshot, err := h.presence.Snapshot(e.Request.Context(), debateID, userIDs)
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, snapshot)
}
