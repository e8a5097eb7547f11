package auth

import (
	"context"
	"errors"

	"github.com/jonwraymond/jatpclient/autherr"
)

// Chain tries verifiers in order. It moves to the next verifier only when
// the current one could not reach a verdict: its keys or the service were
// unavailable. A verdict on the token itself, valid or not, is final.
type Chain struct {
	verifiers []TokenVerifier
}

// NewChain creates a chain, typically a local Verifier followed by a
// RemoteVerifier.
func NewChain(verifiers ...TokenVerifier) *Chain {
	return &Chain{verifiers: verifiers}
}

// Verify returns the first verdict, or the last error when no verifier
// reached one.
func (c *Chain) Verify(ctx context.Context, token string) (*Identity, error) {
	if len(c.verifiers) == 0 {
		return nil, ErrNoVerifiers.Clone()
	}

	var lastErr error
	for _, v := range c.verifiers {
		id, err := v.Verify(ctx, token)
		if err == nil {
			return id, nil
		}
		lastErr = err
		if !inconclusive(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

func inconclusive(err error) bool {
	return autherr.IsConnection(err) ||
		errors.Is(err, autherr.ErrNotFound) ||
		errors.Is(err, autherr.ErrRateLimit) ||
		errors.Is(err, autherr.ErrInternal)
}

// Ensure Chain implements TokenVerifier
var _ TokenVerifier = (*Chain)(nil)
