package handlers

import (
	"errors"

	"github.com/pocketbase/pocketbase/apis"

	"debate-arena/internal/status"
)

// apiError maps domain errors onto HTTP responses. Anything unmapped is
// a collaborator failure and surfaces as a generic 400 without internal
// detail.
func apiError(err error) error {
	switch {
	case errors.Is(err, status.ErrNotFound):
		return apis.NewNotFoundError("Not found", err)
	case errors.Is(err, status.ErrConflict):
		return apis.NewApiError(409, "Conflicting update, please retry", err)
	case errors.Is(err, status.ErrNotParticipant):
		return apis.NewForbiddenError("You are not a participant of this debate", err)
	case errors.Is(err, status.ErrNotYourTurn),
		errors.Is(err, status.ErrEmptyArgument),
		errors.Is(err, status.ErrDebateNotActive),
		errors.Is(err, status.ErrDebateCompleted),
		errors.Is(err, status.ErrDebateFull),
		errors.Is(err, status.ErrRoundsRemaining),
		errors.Is(err, status.ErrAlreadyQueued),
		errors.Is(err, status.ErrSelfChallenge),
		errors.Is(err, status.ErrChallengePending):
		return apis.NewBadRequestError(err.Error(), err)
	case errors.Is(err, status.ErrNotChallengeTarget):
		return apis.NewForbiddenError("This challenge is not addressed to you", err)
	case errors.Is(err, status.ErrChallengeClosed),
		errors.Is(err, status.ErrChallengeExpired):
		return apis.NewApiError(409, err.Error(), err)
	case errors.Is(err, status.ErrClaimTimeout):
		return apis.NewApiError(504, "Matched opponent did not open a room in time", err)
	default:
		return apis.NewBadRequestError("Request failed", err)
	}
}
