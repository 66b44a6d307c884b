// Package ai holds the clients for the external judging models. Both
// providers expose the same Completer surface: prompt in, raw text out.
// Prompt construction and response parsing live in the judge service.
package ai

import (
	"context"
	"fmt"
	"time"
)

// Completer is the external AI collaborator. Implementations must respect
// ctx cancellation and surface provider failures as errors.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

const maxRetries = 3

func defaultBackoff(attempt int) time.Duration {
	return time.Duration(1<<uint(attempt)) * time.Second
}

// Provider names accepted by New.
const (
	ProviderGemini   = "gemini"
	ProviderDeepSeek = "deepseek"
	ProviderGroq     = "groq"
)

// New builds a Completer for the configured provider. DeepSeek and Groq
// both speak the OpenAI chat-completions dialect, so they share a client.
func New(provider, apiKey, model string) (Completer, error) {
	switch provider {
	case ProviderGemini:
		return NewGemini(apiKey, model), nil
	case ProviderDeepSeek:
		return NewChat(apiKey, "https://api.deepseek.com/v1", model), nil
	case ProviderGroq:
		return NewChat(apiKey, "https://api.groq.com/openai/v1", model), nil
	default:
		return nil, fmt.Errorf("unknown ai provider %q", provider)
	}
}
