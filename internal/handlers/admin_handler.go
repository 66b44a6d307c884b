package handlers

import (
	"net/http"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"debate-arena/internal/services"
	"debate-arena/internal/store"
)

type AdminHandler struct {
	store       store.Store
	matchmaking *services.MatchmakingService
}

func NewAdminHandler(st store.Store, matchmaking *services.MatchmakingService) *AdminHandler {
	return &AdminHandler{store: st, matchmaking: matchmaking}
}

func (h *AdminHandler) requireSuperuser(e *core.RequestEvent) error {
	if e.Auth == nil || !e.Auth.IsSuperuser() {
		return apis.NewForbiddenError("Superuser access required", nil)
	}
	return nil
}

// QueueStats reports the matchmaking pool breakdown.
func (h *AdminHandler) QueueStats(e *core.RequestEvent) error {
	if err := h.requireSuperuser(e); err != nil {
		return err
	}

	stats, err := h.matchmaking.PoolStats(e.Request.Context())
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, stats)
}

// SweepQueue drops stale and malformed queue entries on demand. The same
// sweep also runs periodically in the background.
func (h *AdminHandler) SweepQueue(e *core.RequestEvent) error {
	if err := h.requireSuperuser(e); err != nil {
		return err
	}

	removed, err := h.matchmaking.SweepStale(e.Request.Context())
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, map[string]any{"removed": removed})
}

// ActiveDebates lists sessions currently in play.
func (h *AdminHandler) ActiveDebates(e *core.RequestEvent) error {
	if err := h.requireSuperuser(e); err != nil {
		return err
	}

	results, err := h.store.Query(e.Request.Context(), store.CollectionDebates, []store.Filter{
		{Field: "status", Op: "=", Value: "active"},
	})
	if err != nil {
		return apiError(err)
	}

	debates := make([]map[string]any, 0, len(results))
	for _, res := range results {
		debates = append(debates, map[string]any{
			"id":            res.ID,
			"topic_id":      res.Doc["topic_id"],
			"current_round": res.Doc["current_round"],
			"current_turn":  res.Doc["current_turn"],
			"turn_deadline": res.Doc["turn_deadline"],
		})
	}
	return e.JSON(http.StatusOK, map[string]any{
		"count":   len(debates),
		"debates": debates,
	})
}
