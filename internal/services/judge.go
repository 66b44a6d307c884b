package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"debate-arena/internal/ai"
	"debate-arena/internal/status"
	"debate-arena/models"
)

var codeBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")

// JudgeService turns a finished debate into a Judgment via the AI
// collaborator. The model's output is untrusted text; extraction is
// best-effort and a malformed response surfaces as ErrMalformedJudgment
// so the caller can complete the debate without a judgment.
type JudgeService struct {
	completer ai.Completer
}

func NewJudgeService(completer ai.Completer) *JudgeService {
	return &JudgeService{completer: completer}
}

// rawJudgment is the wire shape requested from the model. Scores decode
// through decimal so "8.70" and 8.7 compare and clamp exactly.
type rawJudgment struct {
	Winner     *string                    `json:"winner"`
	Scores     map[string]decimal.Decimal `json:"scores"`
	Feedback   map[string][]string        `json:"feedback"`
	Reasoning  string                     `json:"reasoning"`
	Highlights []string                   `json:"highlights"`
}

// Judge prompts the model with the full transcript and parses its verdict.
func (j *JudgeService) Judge(ctx context.Context, debate *models.Debate) (*models.Judgment, error) {
	prompt := j.buildPrompt(debate)

	response, err := j.completer.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("judge debate %s: %w", debate.ID, err)
	}

	raw, ok := extractJudgmentJSON(response)
	if !ok {
		slog.Warn("judge returned no parseable verdict", "debate_id", debate.ID)
		return nil, status.ErrMalformedJudgment
	}

	return j.normalize(debate, raw), nil
}

func (j *JudgeService) buildPrompt(debate *models.Debate) string {
	var sb strings.Builder

	sb.WriteString("You are an expert debate judge evaluating a complete competitive debate.\n\n")
	fmt.Fprintf(&sb, "TOPIC: %s\n\nPARTICIPANTS:\n", debate.Topic)
	for _, p := range debate.Participants {
		fmt.Fprintf(&sb, "- %s (id: %s, %s)\n", p.DisplayName, p.UserID, strings.ToUpper(p.Stance))
	}

	sb.WriteString("\nDEBATE ARGUMENTS:\n")
	for _, arg := range debate.Arguments {
		stance := ""
		if p := debate.Participant(arg.UserID); p != nil {
			stance = strings.ToUpper(p.Stance)
		}
		fmt.Fprintf(&sb, "\nROUND %d - %s (%s):\n%q\n", arg.Round, stance, arg.UserID, arg.Content)
	}

	sb.WriteString(`
Provide a comprehensive judgment as ONE JSON object with exactly these fields:

{
  "winner": "<user id of the winner, or null for a draw>",
  "scores": {"<user id>": <overall score 1-10, one decimal>},
  "feedback": {"<user id>": ["<strength>", "<weakness>", "<improvement>"]},
  "reasoning": "<explanation of the decision>",
  "highlights": ["<notable moment>", "<notable moment>"]
}

IMPORTANT:
- Refer to participants by their user id, never by display name.
- If no substantive arguments were made, set winner to null with equal scores.
- Provide a score for every participant.
- The JSON must be valid and parseable. Do not omit any field.

Evaluation criteria: argument strength and logical coherence, evidence,
rebuttal effectiveness, clarity, and overall persuasiveness.
`)

	return sb.String()
}

// normalize clamps scores into [1,10] at one decimal and resolves the
// winner against the roster. A winner id that is not a participant is
// treated as a draw rather than rejected.
func (j *JudgeService) normalize(debate *models.Debate, raw *rawJudgment) *models.Judgment {
	winner := ""
	if raw.Winner != nil && *raw.Winner != "" && !strings.EqualFold(*raw.Winner, "draw") {
		if debate.Participant(*raw.Winner) != nil {
			winner = *raw.Winner
		} else {
			slog.Warn("judge named a non-participant winner, recording draw",
				"debate_id", debate.ID, "winner", *raw.Winner)
		}
	}

	lo, hi := decimal.NewFromInt(1), decimal.NewFromInt(10)
	scores := make(map[string]float64, len(raw.Scores))
	for userID, score := range raw.Scores {
		clamped := decimal.Max(lo, decimal.Min(hi, score)).Round(1)
		scores[userID], _ = clamped.Float64()
	}

	return &models.Judgment{
		Winner:     winner,
		Scores:     scores,
		Feedback:   raw.Feedback,
		Reasoning:  raw.Reasoning,
		Highlights: raw.Highlights,
	}
}

// extractJudgmentJSON pulls the verdict object out of untrusted model
// output: direct parse, then a markdown code block, then the outermost
// brace span.
func extractJudgmentJSON(response string) (*rawJudgment, bool) {
	var raw rawJudgment
	if err := json.Unmarshal([]byte(strings.TrimSpace(response)), &raw); err == nil {
		return &raw, true
	}

	if matches := codeBlockRe.FindStringSubmatch(response); len(matches) > 1 {
		raw = rawJudgment{}
		if err := json.Unmarshal([]byte(strings.TrimSpace(matches[1])), &raw); err == nil {
			return &raw, true
		}
	}

	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start >= 0 && end > start {
		raw = rawJudgment{}
		if err := json.Unmarshal([]byte(response[start:end+1]), &raw); err == nil {
			return &raw, true
		}
	}

	return nil, false
}
