package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"debate-arena/models"
)

type aiOpponentFixture struct {
	*debateFixture
	opponent  *AIOpponentService
	generator *fakeCompleter
}

func newAIOpponentFixture(t *testing.T, cfg DebateConfig) *aiOpponentFixture {
	t.Helper()

	base := newDebateFixture(t, cfg)
	generator := &fakeCompleter{response: "Uniforms erase individuality and teach conformity over character."}
	return &aiOpponentFixture{
		debateFixture: base,
		opponent:      NewAIOpponentService(generator, base.svc),
		generator:     generator,
	}
}

// activePractice builds an active 1v1 session where the machine argues
// con against alice.
func (f *aiOpponentFixture) activePractice(t *testing.T) *models.Debate {
	t.Helper()
	ctx := context.Background()

	d := &models.Debate{
		Topic:   "School uniforms should be mandatory",
		TopicID: "t1",
		Participants: []models.Participant{
			{UserID: models.AIOpponentID, DisplayName: "AI Opponent", Stance: models.StanceCon, Rating: 1200, IsAI: true},
		},
		Ratings:       map[string]int{models.AIOpponentID: 1200},
		ExpectedCount: 2,
	}
	_, err := f.svc.Create(ctx, d)
	require.NoError(t, err)

	active, err := f.svc.RegisterParticipant(ctx, d.ID, models.Participant{
		UserID: "alice", DisplayName: "Alice", Stance: models.StancePro, Rating: 1200,
	})
	require.NoError(t, err)
	require.Equal(t, models.StatusActive, active.Status)
	return active
}

func TestAIOpponentService_RespondsOnMachineTurn(t *testing.T) {
	f := newAIOpponentFixture(t, DebateConfig{MaxRounds: 3})
	ctx := context.Background()
	d := f.activePractice(t)

	after, err := f.svc.SubmitArgument(ctx, d.ID, "alice", "Uniforms reduce bullying.")
	require.NoError(t, err)
	require.Equal(t, models.AIOpponentID, after.CurrentTurn)

	f.opponent.MaybeRespond(ctx, after)

	final, err := f.svc.Session(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, final.Arguments, 2)
	assert.Equal(t, models.AIOpponentID, final.Arguments[1].UserID)
	assert.Equal(t, f.generator.response, final.Arguments[1].Content)
	assert.False(t, final.Arguments[1].Auto)
	assert.Equal(t, "alice", final.CurrentTurn)

	assert.Contains(t, f.generator.prompt, "School uniforms should be mandatory")
	assert.Contains(t, f.generator.prompt, "Uniforms reduce bullying.")
	assert.Contains(t, f.generator.prompt, "CON")
	assert.Contains(t, f.generator.prompt, defaultAIPersonality)
}

func TestAIOpponentService_IgnoresHumanTurn(t *testing.T) {
	f := newAIOpponentFixture(t, DebateConfig{MaxRounds: 3})
	ctx := context.Background()
	d := f.activePractice(t)
	require.Equal(t, "alice", d.CurrentTurn)

	f.opponent.MaybeRespond(ctx, d)

	after, err := f.svc.Session(ctx, d.ID)
	require.NoError(t, err)
	assert.Empty(t, after.Arguments)
	assert.Empty(t, f.generator.prompt, "no generation on a human turn")
}

func TestAIOpponentService_FallbackOnGenerationFailure(t *testing.T) {
	f := newAIOpponentFixture(t, DebateConfig{MaxRounds: 3})
	ctx := context.Background()
	d := f.activePractice(t)

	f.generator.err = errors.New("provider down")

	after, err := f.svc.SubmitArgument(ctx, d.ID, "alice", "Uniforms reduce bullying.")
	require.NoError(t, err)
	f.opponent.MaybeRespond(ctx, after)

	final, err := f.svc.Session(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, final.Arguments, 2)
	assert.Equal(t, aiFallbackArgument, final.Arguments[1].Content)
	assert.Equal(t, "alice", final.CurrentTurn, "the turn still advances")
}

func TestAIOpponentService_PersonalityShapesPrompt(t *testing.T) {
	f := newAIOpponentFixture(t, DebateConfig{MaxRounds: 3})
	ctx := context.Background()
	d := f.activePractice(t)

	after, err := f.svc.SubmitArgument(ctx, d.ID, "alice", "Uniforms reduce bullying.")
	require.NoError(t, err)
	after.AIPersonality = "Aggressive and direct"

	f.opponent.MaybeRespond(ctx, after)
	assert.Contains(t, f.generator.prompt, "Aggressive and direct")
}

func TestAIOpponentService_DrivenByTurnListener(t *testing.T) {
	f := newAIOpponentFixture(t, DebateConfig{MaxRounds: 3})
	ctx := context.Background()

	f.svc.AttachTurnListener(func(d *models.Debate) {
		f.opponent.MaybeRespond(ctx, d)
	})

	d := f.activePractice(t)

	// the machine answers in the same turn-change cycle
	after, err := f.svc.SubmitArgument(ctx, d.ID, "alice", "Uniforms reduce bullying.")
	require.NoError(t, err)
	require.Equal(t, models.AIOpponentID, after.CurrentTurn)

	final, err := f.svc.Session(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, final.Arguments, 2)
	assert.Equal(t, models.AIOpponentID, final.Arguments[1].UserID)
	assert.Equal(t, "alice", final.CurrentTurn)
}

func TestAIOpponentService_OpensWhenMachineSpeaksFirst(t *testing.T) {
	f := newAIOpponentFixture(t, DebateConfig{MaxRounds: 3})
	ctx := context.Background()

	f.svc.AttachTurnListener(func(d *models.Debate) {
		f.opponent.MaybeRespond(ctx, d)
	})

	// machine takes pro, so it opens the debate at activation
	d := &models.Debate{
		Topic:   "School uniforms should be mandatory",
		TopicID: "t1",
		Participants: []models.Participant{
			{UserID: models.AIOpponentID, DisplayName: "AI Opponent", Stance: models.StancePro, Rating: 1200, IsAI: true},
		},
		Ratings:       map[string]int{models.AIOpponentID: 1200},
		ExpectedCount: 2,
	}
	_, err := f.svc.Create(ctx, d)
	require.NoError(t, err)

	_, err = f.svc.RegisterParticipant(ctx, d.ID, models.Participant{
		UserID: "alice", DisplayName: "Alice", Stance: models.StanceCon, Rating: 1200,
	})
	require.NoError(t, err)

	after, err := f.svc.Session(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, after.Arguments, 1)
	assert.Equal(t, models.AIOpponentID, after.Arguments[0].UserID)
	assert.Equal(t, "alice", after.CurrentTurn)
	assert.Contains(t, f.generator.prompt, "strongest argument")
}
