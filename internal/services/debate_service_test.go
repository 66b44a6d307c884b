package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"debate-arena/internal/realtime"
	"debate-arena/internal/status"
	"debate-arena/internal/store"
	"debate-arena/models"
	"debate-arena/monitoring"
)

const winningJudgment = `{"winner":"alice","scores":{"alice":8.5,"bob":6.0},"feedback":{"alice":["strong"],"bob":["weak"]},"reasoning":"Alice carried evidence.","highlights":["opening"]}`

type debateFixture struct {
	svc       *DebateService
	store     *store.Memory
	completer *fakeCompleter
}

func newDebateFixture(t *testing.T, cfg DebateConfig) *debateFixture {
	t.Helper()

	st := store.NewMemory()
	completer := &fakeCompleter{response: winningJudgment}
	db, _ := redismock.NewClientMock()

	svc := NewDebateService(
		st,
		NewRatingService(),
		NewJudgeService(completer),
		realtime.Noop{},
		&monitoring.Monitor{},
		db,
		cfg,
	)
	return &debateFixture{svc: svc, store: st, completer: completer}
}

// activePair creates a 1v1 session and registers both sides, activating it.
func (f *debateFixture) activePair(t *testing.T) *models.Debate {
	t.Helper()
	ctx := context.Background()

	d := &models.Debate{
		Topic:   "School uniforms should be mandatory",
		TopicID: "t1",
		Participants: []models.Participant{
			{UserID: "alice", DisplayName: "Alice", Stance: models.StancePro, Rating: 1200},
			{UserID: "bob", DisplayName: "Bob", Stance: models.StanceCon, Rating: 1200},
		},
		Ratings:       map[string]int{"alice": 1200, "bob": 1200},
		ExpectedCount: 2,
	}
	_, err := f.svc.Create(ctx, d)
	require.NoError(t, err)

	active, err := f.svc.RegisterParticipant(ctx, d.ID, models.Participant{UserID: "alice"})
	require.NoError(t, err)
	require.Equal(t, models.StatusActive, active.Status)
	return active
}

func TestDebateService_CreateAndActivate(t *testing.T) {
	f := newDebateFixture(t, DebateConfig{MaxRounds: 2, TimePerTurn: 60 * time.Second})
	ctx := context.Background()

	d := &models.Debate{Topic: "Open topic", TopicID: "t1", ExpectedCount: 2}
	_, err := f.svc.Create(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, models.StatusWaiting, d.Status)
	assert.Equal(t, 2, d.MaxRounds)

	// first joiner: still waiting, gets the pro side and holds the turn
	joined, err := f.svc.RegisterParticipant(ctx, d.ID, models.Participant{UserID: "alice", DisplayName: "Alice", Rating: 1200})
	require.NoError(t, err)
	assert.Equal(t, models.StatusWaiting, joined.Status)
	assert.Equal(t, models.StancePro, joined.Participants[0].Stance)
	assert.Equal(t, "alice", joined.CurrentTurn)

	// second joiner balances to con and activates the session
	active, err := f.svc.RegisterParticipant(ctx, d.ID, models.Participant{UserID: "bob", DisplayName: "Bob", Rating: 1180})
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, active.Status)
	assert.Equal(t, models.StanceCon, active.Participants[1].Stance)
	assert.Equal(t, []string{"alice", "bob"}, active.TurnOrder)
	assert.Equal(t, "alice", active.CurrentTurn)
	assert.Equal(t, 1, active.CurrentRound)
	assert.NotNil(t, active.StartedAt)
	assert.Greater(t, active.TurnDeadline, time.Now().Unix())

	// a third joiner bounces
	_, err = f.svc.RegisterParticipant(ctx, d.ID, models.Participant{UserID: "carol"})
	assert.True(t, errors.Is(err, status.ErrNotParticipant) || errors.Is(err, status.ErrDebateNotActive))
}

func TestDebateService_FirstJoinerHoldsTurnWhileWaiting(t *testing.T) {
	f := newDebateFixture(t, DebateConfig{})
	ctx := context.Background()

	d := &models.Debate{Topic: "Team topic", TopicID: "t1", ExpectedCount: 4}
	_, err := f.svc.Create(ctx, d)
	require.NoError(t, err)

	first, err := f.svc.RegisterParticipant(ctx, d.ID, models.Participant{UserID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, "alice", first.CurrentTurn)

	second, err := f.svc.RegisterParticipant(ctx, d.ID, models.Participant{UserID: "bob"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusWaiting, second.Status)
	assert.Equal(t, "alice", second.CurrentTurn, "later joiners do not take the turn")
}

func TestDebateService_RegisterValidation(t *testing.T) {
	f := newDebateFixture(t, DebateConfig{})
	ctx := context.Background()

	d := f.activePair(t)

	// re-registering a roster member just refreshes presence
	again, err := f.svc.RegisterParticipant(ctx, d.ID, models.Participant{UserID: "bob"})
	require.NoError(t, err)
	assert.True(t, again.Participant("bob").IsOnline)
	assert.Len(t, again.Participants, 2)

	// outsiders cannot enter an active session
	_, err = f.svc.RegisterParticipant(ctx, d.ID, models.Participant{UserID: "mallory"})
	assert.True(t, errors.Is(err, status.ErrDebateNotActive))
}

func TestDebateService_SubmitValidation(t *testing.T) {
	f := newDebateFixture(t, DebateConfig{MaxRounds: 2})
	ctx := context.Background()
	d := f.activePair(t)

	_, err := f.svc.SubmitArgument(ctx, d.ID, "alice", "   ")
	assert.True(t, errors.Is(err, status.ErrEmptyArgument))

	_, err = f.svc.SubmitArgument(ctx, d.ID, "bob", "out of turn")
	assert.True(t, errors.Is(err, status.ErrNotYourTurn))

	_, err = f.svc.SubmitArgument(ctx, d.ID, "mallory", "not in this debate")
	assert.True(t, errors.Is(err, status.ErrNotParticipant))
}

func TestDebateService_TurnAndRoundAdvancement(t *testing.T) {
	f := newDebateFixture(t, DebateConfig{MaxRounds: 3})
	ctx := context.Background()
	d := f.activePair(t)

	after, err := f.svc.SubmitArgument(ctx, d.ID, "alice", "Uniforms reduce bullying.")
	require.NoError(t, err)
	assert.Equal(t, "bob", after.CurrentTurn)
	assert.Equal(t, 1, after.CurrentRound, "round holds until the cycle wraps")

	after, err = f.svc.SubmitArgument(ctx, d.ID, "bob", "Uniforms suppress expression.")
	require.NoError(t, err)
	assert.Equal(t, "alice", after.CurrentTurn)
	assert.Equal(t, 2, after.CurrentRound, "round advances when the last speaker finishes")

	require.Len(t, after.Arguments, 2)
	assert.Equal(t, 1, after.Arguments[0].Round)
	assert.Equal(t, 3, after.Arguments[0].WordCount)
	assert.False(t, after.Arguments[0].Auto)
}

func TestDebateService_FullLifecycle(t *testing.T) {
	f := newDebateFixture(t, DebateConfig{MaxRounds: 2})
	ctx := context.Background()
	d := f.activePair(t)

	arguments := []struct{ user, content string }{
		{"alice", "Uniforms reduce bullying."},
		{"bob", "Uniforms suppress expression."},
		{"alice", "Studies support the reduction."},
		{"bob", "Expression matters more."},
	}
	var final *models.Debate
	var err error
	for _, a := range arguments {
		final, err = f.svc.SubmitArgument(ctx, d.ID, a.user, a.content)
		require.NoError(t, err)
	}

	assert.Equal(t, models.StatusCompleted, final.Status)
	assert.Equal(t, models.EndReasonRounds, final.EndReason)
	assert.NotNil(t, final.EndedAt)
	require.NotNil(t, final.Judgment)
	assert.Equal(t, "alice", final.Judgment.Winner)

	// equal 1200s, K=32: winner +16, loser -16
	assert.Equal(t, 1216, final.Ratings["alice"])
	assert.Equal(t, 1184, final.Ratings["bob"])
	assert.Equal(t, 16, final.RatingChanges["alice"])
	assert.Equal(t, -16, final.RatingChanges["bob"])

	// stats settled once
	doc, err := f.store.Get(ctx, store.CollectionStats, "alice")
	require.NoError(t, err)
	stats, err := models.UserStatsFromDocument(doc)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Wins)
	assert.Equal(t, 1216, stats.Rating)

	// no submissions after the terminal transition
	_, err = f.svc.SubmitArgument(ctx, d.ID, "alice", "one more")
	assert.True(t, errors.Is(err, status.ErrDebateCompleted))
}

func TestDebateService_PracticeSessionIsUnrated(t *testing.T) {
	f := newDebateFixture(t, DebateConfig{MaxRounds: 1})
	ctx := context.Background()

	d := &models.Debate{
		Topic:   "School uniforms should be mandatory",
		TopicID: "t1",
		Participants: []models.Participant{
			{UserID: "alice", DisplayName: "Alice", Stance: models.StancePro, Rating: 1200},
			{UserID: models.AIOpponentID, DisplayName: "AI Opponent", Stance: models.StanceCon, Rating: 1200, IsAI: true},
		},
		Ratings:       map[string]int{"alice": 1200, models.AIOpponentID: 1200},
		ExpectedCount: 2,
	}
	_, err := f.svc.Create(ctx, d)
	require.NoError(t, err)
	active, err := f.svc.RegisterParticipant(ctx, d.ID, models.Participant{UserID: "alice"})
	require.NoError(t, err)
	require.Equal(t, models.StatusActive, active.Status)

	_, err = f.svc.SubmitArgument(ctx, d.ID, "alice", "Uniforms reduce bullying.")
	require.NoError(t, err)
	final, err := f.svc.SubmitArgument(ctx, d.ID, models.AIOpponentID, "Uniforms suppress expression.")
	require.NoError(t, err)

	assert.Equal(t, models.StatusCompleted, final.Status)
	require.NotNil(t, final.Judgment, "practice sessions are still judged")
	assert.Empty(t, final.RatingChanges, "practice sessions never move ratings")
	assert.Equal(t, 1200, final.Ratings["alice"])

	_, err = f.store.Get(ctx, store.CollectionStats, "alice")
	assert.True(t, errors.Is(err, status.ErrNotFound), "no stats settle for practice")
}

func TestDebateService_EndDebate(t *testing.T) {
	f := newDebateFixture(t, DebateConfig{MaxRounds: 2})
	ctx := context.Background()
	d := f.activePair(t)

	t.Run("refuses while rounds remain", func(t *testing.T) {
		err := f.svc.EndDebate(ctx, d.ID)
		assert.True(t, errors.Is(err, status.ErrRoundsRemaining))
	})

	t.Run("manual end once rounds are exhausted", func(t *testing.T) {
		// simulate a session whose automatic completion did not land
		require.NoError(t, f.store.Update(ctx, store.CollectionDebates, d.ID, store.Document{
			"current_round": 3,
			"arguments": []map[string]any{
				{"id": "a1", "user_id": "alice", "content": "x", "round": 1},
				{"id": "a2", "user_id": "bob", "content": "y", "round": 1},
			},
		}))

		require.NoError(t, f.svc.EndDebate(ctx, d.ID))

		final, err := f.svc.Session(ctx, d.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusCompleted, final.Status)
		assert.Equal(t, models.EndReasonManual, final.EndReason)
		require.NotNil(t, final.Judgment)
	})

	t.Run("ending a completed session is a no-op", func(t *testing.T) {
		require.NoError(t, f.svc.EndDebate(ctx, d.ID))
	})
}

func TestDebateService_InsufficientArguments(t *testing.T) {
	f := newDebateFixture(t, DebateConfig{MaxRounds: 2})
	ctx := context.Background()
	d := f.activePair(t)

	require.NoError(t, f.store.Update(ctx, store.CollectionDebates, d.ID, store.Document{
		"current_round": 3,
		"arguments": []map[string]any{
			{"id": "a1", "user_id": "alice", "content": "only one", "round": 1},
		},
	}))

	require.NoError(t, f.svc.EndDebate(ctx, d.ID))

	final, err := f.svc.Session(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, final.Status)
	assert.Equal(t, models.EndReasonInsufficient, final.EndReason)
	assert.Nil(t, final.Judgment)
	assert.Empty(t, final.RatingChanges)
	assert.Equal(t, 1200, final.Ratings["alice"], "ratings untouched without judgment")
}

func TestDebateService_JudgeProseCompletesWithError(t *testing.T) {
	f := newDebateFixture(t, DebateConfig{MaxRounds: 1})
	ctx := context.Background()
	d := f.activePair(t)
	f.completer.response = "A fine debate, everyone did great."

	_, err := f.svc.SubmitArgument(ctx, d.ID, "alice", "Uniforms reduce bullying.")
	require.NoError(t, err)
	final, err := f.svc.SubmitArgument(ctx, d.ID, "bob", "Uniforms suppress expression.")
	require.NoError(t, err)

	assert.Equal(t, models.StatusCompleted, final.Status)
	assert.Equal(t, models.EndReasonError, final.EndReason)
	assert.Nil(t, final.Judgment)
	assert.Empty(t, final.RatingChanges)
	assert.Equal(t, 1200, final.Ratings["alice"])
}

func TestDebateService_IdempotentSettlement(t *testing.T) {
	f := newDebateFixture(t, DebateConfig{MaxRounds: 1})
	ctx := context.Background()
	d := f.activePair(t)

	_, err := f.svc.SubmitArgument(ctx, d.ID, "alice", "Uniforms reduce bullying.")
	require.NoError(t, err)
	_, err = f.svc.SubmitArgument(ctx, d.ID, "bob", "Uniforms suppress expression.")
	require.NoError(t, err)

	// a second finalizer racing in must not re-apply deltas
	require.NoError(t, f.svc.finalize(ctx, d.ID, models.EndReasonRounds))
	require.NoError(t, f.svc.finalize(ctx, d.ID, models.EndReasonManual))

	doc, err := f.store.Get(ctx, store.CollectionStats, "alice")
	require.NoError(t, err)
	stats, err := models.UserStatsFromDocument(doc)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Wins)
	assert.Equal(t, 1216, stats.Rating)

	final, err := f.svc.Session(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EndReasonRounds, final.EndReason, "first completion wins")
}

func TestDebateService_TimeoutAutoSubmits(t *testing.T) {
	f := newDebateFixture(t, DebateConfig{MaxRounds: 3})
	ctx := context.Background()
	d := f.activePair(t)

	past := time.Now().Add(-time.Minute).Unix()
	require.NoError(t, f.store.Update(ctx, store.CollectionDebates, d.ID, store.Document{
		"turn_deadline": past,
	}))

	f.svc.enforceDeadline(ctx, d.ID, time.Now().Unix())

	after, err := f.svc.Session(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, after.Arguments, 1)
	assert.Equal(t, "alice", after.Arguments[0].UserID)
	assert.Equal(t, models.AutoArgumentContent, after.Arguments[0].Content)
	assert.True(t, after.Arguments[0].Auto)
	assert.Equal(t, "bob", after.CurrentTurn)
}

func TestDebateService_TimeoutSkipsFreshDeadline(t *testing.T) {
	f := newDebateFixture(t, DebateConfig{MaxRounds: 3})
	ctx := context.Background()
	d := f.activePair(t)

	// deadline is in the future: the sweep must not fire
	f.svc.enforceDeadline(ctx, d.ID, time.Now().Unix())

	after, err := f.svc.Session(ctx, d.ID)
	require.NoError(t, err)
	assert.Empty(t, after.Arguments)
	assert.Equal(t, "alice", after.CurrentTurn)
}

func TestDebateService_LeaveDebate(t *testing.T) {
	f := newDebateFixture(t, DebateConfig{})
	ctx := context.Background()
	d := f.activePair(t)

	err := f.svc.LeaveDebate(ctx, d.ID, "mallory")
	assert.True(t, errors.Is(err, status.ErrNotParticipant))

	require.NoError(t, f.svc.LeaveDebate(ctx, d.ID, "bob"))

	after, err := f.svc.Session(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAbandoned, after.Status)
	assert.Equal(t, "bob", after.AbandonedBy)
	assert.NotNil(t, after.EndedAt)

	// leaving again is a no-op, and the session stays abandoned
	require.NoError(t, f.svc.LeaveDebate(ctx, d.ID, "bob"))

	_, err = f.svc.SubmitArgument(ctx, d.ID, "alice", "anyone there?")
	assert.True(t, errors.Is(err, status.ErrDebateCompleted))
}

func TestDebateService_ConflictRetry(t *testing.T) {
	f := newDebateFixture(t, DebateConfig{MaxRounds: 3})
	ctx := context.Background()
	d := f.activePair(t)

	wrapped := &conflictOnceStore{Store: f.store}
	f.svc.store = wrapped

	after, err := f.svc.SubmitArgument(ctx, d.ID, "alice", "Uniforms reduce bullying.")
	require.NoError(t, err, "one conflict must be absorbed by the retry")
	assert.Equal(t, "bob", after.CurrentTurn)
	assert.Equal(t, 1, wrapped.conflicts)
}

// conflictOnceStore fails the first conditional write to exercise the
// retry path.
type conflictOnceStore struct {
	store.Store
	conflicts int
}

func (c *conflictOnceStore) UpdateIf(ctx context.Context, collection, id string, expectedVersion int64, fields store.Document) error {
	if c.conflicts == 0 {
		c.conflicts++
		return status.ErrConflict
	}
	return c.Store.UpdateIf(ctx, collection, id, expectedVersion, fields)
}
