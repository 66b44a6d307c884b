package status

import "errors"

var (
	// Validation errors: rejected synchronously, no state mutated.
	ErrNotYourTurn     = errors.New("debate: not your turn")
	ErrEmptyArgument   = errors.New("debate: argument content must not be empty")
	ErrDebateNotActive = errors.New("debate: debate is not active")
	ErrDebateCompleted = errors.New("debate: debate already completed")
	ErrDebateFull      = errors.New("debate: debate already has all participants")
	ErrNotParticipant  = errors.New("debate: user is not a participant")
	ErrRoundsRemaining = errors.New("debate: debate still has rounds remaining")

	ErrAlreadyQueued = errors.New("matchmaking: user already has an open queue entry for this topic")
	ErrNoMatch       = errors.New("matchmaking: no compatible opponent found")
	ErrClaimTimeout  = errors.New("matchmaking: timed out waiting for opponent to create the debate")

	ErrSelfChallenge      = errors.New("challenge: cannot challenge yourself")
	ErrChallengePending   = errors.New("challenge: an open challenge to this user already exists")
	ErrChallengeClosed    = errors.New("challenge: challenge is no longer open")
	ErrChallengeExpired   = errors.New("challenge: challenge has expired")
	ErrNotChallengeTarget = errors.New("challenge: only the challenged user can respond")

	// ErrConflict reports that a conditional write lost against a concurrent
	// update. Callers retry with fresh state, bounded.
	ErrConflict = errors.New("store: conflicting update")
	ErrNotFound = errors.New("store: document not found")

	// ErrUnsupportedCardinality is the rating engine's documented 1v1-only
	// limitation. Team debates skip settlement entirely.
	ErrUnsupportedCardinality = errors.New("rating: settlement supports exactly two participants")

	ErrMalformedJudgment = errors.New("judge: no parseable judgment in model output")
)
