package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"debate-arena/internal/ai"
	"debate-arena/models"
)

// defaultAIPersonality is used when a practice session is created
// without a personality.
const defaultAIPersonality = "Balanced and analytical"

// aiFallbackArgument is submitted when generation fails, so the
// machine's turn always resolves instead of burning the full deadline.
const aiFallbackArgument = "I understand your point, but I must respectfully disagree. " +
	"The evidence suggests a different conclusion that supports my position."

// AIOpponentService drives the machine side of practice sessions. It
// listens for turn changes and, when the turn lands on the machine
// participant, generates an argument through the completer and submits
// it like any other speaker.
type AIOpponentService struct {
	completer ai.Completer
	debates   *DebateService
}

func NewAIOpponentService(completer ai.Completer, debates *DebateService) *AIOpponentService {
	return &AIOpponentService{completer: completer, debates: debates}
}

// MaybeRespond submits a generated argument if the debate's current
// turn belongs to a machine participant, and is a no-op otherwise.
// Safe to call on every turn change.
func (s *AIOpponentService) MaybeRespond(ctx context.Context, d *models.Debate) {
	if d.Status != models.StatusActive {
		return
	}
	p := d.Participant(d.CurrentTurn)
	if p == nil || !p.IsAI {
		return
	}

	content, err := s.completer.Complete(ctx, s.buildPrompt(d, p))
	if err != nil {
		slog.Warn("argument generation failed, submitting fallback",
			"debate_id", d.ID, "round", d.CurrentRound, "error", err)
		content = aiFallbackArgument
	}
	content = strings.TrimSpace(content)
	if content == "" {
		content = aiFallbackArgument
	}

	if _, err := s.debates.SubmitArgument(ctx, d.ID, p.UserID, content); err != nil {
		slog.Error("failed to submit generated argument",
			"debate_id", d.ID, "error", err)
	}
}

func (s *AIOpponentService) buildPrompt(d *models.Debate, p *models.Participant) string {
	personality := d.AIPersonality
	if personality == "" {
		personality = defaultAIPersonality
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "You are a skilled debater with a %s debate style.\n\n", personality)
	fmt.Fprintf(&sb, "TOPIC: %s\n", d.Topic)
	fmt.Fprintf(&sb, "YOUR STANCE: %s\n", strings.ToUpper(p.Stance))
	fmt.Fprintf(&sb, "ROUND: %d of %d\n", d.CurrentRound, d.MaxRounds)

	if last := lastOpponentArgument(d, p.UserID); last != "" {
		fmt.Fprintf(&sb, "\nYOUR OPPONENT'S LATEST ARGUMENT:\n%q\n", last)
		sb.WriteString("\nRebut their argument while advancing your own position.")
	} else {
		sb.WriteString("\nOpen the debate with your strongest argument for your stance.")
	}

	sb.WriteString(" Respond with a persuasive debate argument of 100-200 words. " +
		"Return only the argument text, with no preamble or labels.")
	return sb.String()
}

func lastOpponentArgument(d *models.Debate, selfID string) string {
	for i := len(d.Arguments) - 1; i >= 0; i-- {
		if d.Arguments[i].UserID != selfID && !d.Arguments[i].Auto {
			return d.Arguments[i].Content
		}
	}
	return ""
}
