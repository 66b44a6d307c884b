package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"debate-arena/internal/status"
	"debate-arena/models"
)

type fakeCompleter struct {
	response string
	err      error
	prompt   string
}

func (f *fakeCompleter) Complete(_ context.Context, prompt string) (string, error) {
	f.prompt = prompt
	return f.response, f.err
}

func judgeTestDebate() *models.Debate {
	return &models.Debate{
		ID:    "d1",
		Topic: "School uniforms should be mandatory",
		Participants: []models.Participant{
			{UserID: "alice", DisplayName: "Alice", Stance: models.StancePro, Rating: 1200},
			{UserID: "bob", DisplayName: "Bob", Stance: models.StanceCon, Rating: 1200},
		},
		Arguments: []models.Argument{
			{UserID: "alice", Content: "Uniforms reduce bullying.", Round: 1},
			{UserID: "bob", Content: "Uniforms suppress expression.", Round: 1},
		},
	}
}

func TestJudgeService_Judge_DirectJSON(t *testing.T) {
	completer := &fakeCompleter{
		response: `{"winner":"alice","scores":{"alice":8.5,"bob":6.0},"feedback":{"alice":["strong"],"bob":["weak"]},"reasoning":"Alice carried evidence.","highlights":["round 1 rebuttal"]}`,
	}
	j := NewJudgeService(completer)

	judgment, err := j.Judge(context.Background(), judgeTestDebate())
	require.NoError(t, err)

	assert.Equal(t, "alice", judgment.Winner)
	assert.InDelta(t, 8.5, judgment.Scores["alice"], 1e-9)
	assert.InDelta(t, 6.0, judgment.Scores["bob"], 1e-9)
	assert.Equal(t, "Alice carried evidence.", judgment.Reasoning)

	// prompt carries topic, ids, and transcript
	assert.Contains(t, completer.prompt, "School uniforms should be mandatory")
	assert.Contains(t, completer.prompt, "id: alice")
	assert.Contains(t, completer.prompt, "Uniforms suppress expression.")
}

func TestJudgeService_Judge_MarkdownCodeBlock(t *testing.T) {
	completer := &fakeCompleter{
		response: "Here is my verdict:\n```json\n{\"winner\":\"bob\",\"scores\":{\"alice\":5.0,\"bob\":7.2},\"feedback\":{},\"reasoning\":\"Bob rebutted better.\",\"highlights\":[]}\n```\nThanks!",
	}
	j := NewJudgeService(completer)

	judgment, err := j.Judge(context.Background(), judgeTestDebate())
	require.NoError(t, err)
	assert.Equal(t, "bob", judgment.Winner)
	assert.InDelta(t, 7.2, judgment.Scores["bob"], 1e-9)
}

func TestJudgeService_Judge_BraceSpanFallback(t *testing.T) {
	completer := &fakeCompleter{
		response: `After careful deliberation I conclude {"winner":null,"scores":{"alice":6.0,"bob":6.0},"feedback":{},"reasoning":"Even match.","highlights":[]} which settles it.`,
	}
	j := NewJudgeService(completer)

	judgment, err := j.Judge(context.Background(), judgeTestDebate())
	require.NoError(t, err)
	assert.Equal(t, "", judgment.Winner)
}

func TestJudgeService_Judge_PlainProse(t *testing.T) {
	completer := &fakeCompleter{response: "A fine debate was had by all, well done everyone."}
	j := NewJudgeService(completer)

	_, err := j.Judge(context.Background(), judgeTestDebate())
	assert.True(t, errors.Is(err, status.ErrMalformedJudgment))
}

func TestJudgeService_Judge_CompleterFailure(t *testing.T) {
	completer := &fakeCompleter{err: errors.New("upstream timeout")}
	j := NewJudgeService(completer)

	_, err := j.Judge(context.Background(), judgeTestDebate())
	require.Error(t, err)
	assert.False(t, errors.Is(err, status.ErrMalformedJudgment))
}

func TestJudgeService_Judge_ClampsScores(t *testing.T) {
	completer := &fakeCompleter{
		response: `{"winner":"alice","scores":{"alice":14.37,"bob":-3},"feedback":{},"reasoning":"r","highlights":[]}`,
	}
	j := NewJudgeService(completer)

	judgment, err := j.Judge(context.Background(), judgeTestDebate())
	require.NoError(t, err)
	assert.InDelta(t, 10.0, judgment.Scores["alice"], 1e-9)
	assert.InDelta(t, 1.0, judgment.Scores["bob"], 1e-9)
}

func TestJudgeService_Judge_NonParticipantWinnerIsDraw(t *testing.T) {
	completer := &fakeCompleter{
		response: `{"winner":"mallory","scores":{"alice":6.0,"bob":6.0},"feedback":{},"reasoning":"r","highlights":[]}`,
	}
	j := NewJudgeService(completer)

	judgment, err := j.Judge(context.Background(), judgeTestDebate())
	require.NoError(t, err)
	assert.Equal(t, "", judgment.Winner)
}
