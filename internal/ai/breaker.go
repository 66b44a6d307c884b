package ai

import (
	"context"

	"debate-arena/utils"
)

type breakerCompleter struct {
	inner   Completer
	breaker *utils.CircuitBreaker
}

// WithCircuitBreaker stops hammering the provider once it is failing
// consistently; callers see the breaker error instead of slow timeouts.
func WithCircuitBreaker(inner Completer, breaker *utils.CircuitBreaker) Completer {
	return &breakerCompleter{inner: inner, breaker: breaker}
}

func (b *breakerCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	result, err := b.breaker.Execute(ctx, func() (any, error) {
		return b.inner.Complete(ctx, prompt)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}
