package llm

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/docpipe/api/internal/config"
	"github.com/docpipe/api/internal/model"
)

// Policy fixes the retry discipline for one provider family.
type Policy struct {
	// MaxAttempts caps total call attempts, the first one included.
	MaxAttempts int
	// RateLimitDelay is the wait after a rate-limit error when the
	// provider does not suggest one.
	RateLimitDelay time.Duration
	// TimeoutDelay is the wait after a transient timeout.
	TimeoutDelay time.Duration
	// CallTimeout is the wall-clock budget for a single attempt.
	CallTimeout time.Duration
}

// PolicyFor derives the family policy from config. Gemini-style providers
// are quota limited (shorter default wait, lower cap); OpenAI-style
// providers hand out hard 429s (longer wait, higher cap).
func PolicyFor(family model.Provider, rc config.RetryConfig) Policy {
	p := Policy{
		TimeoutDelay: rc.TimeoutDelay,
		CallTimeout:  rc.CallTimeout,
	}
	switch family {
	case model.ProviderGemini:
		p.MaxAttempts = rc.GeminiMaxAttempts
		p.RateLimitDelay = rc.QuotaDelay
	default:
		p.MaxAttempts = rc.OpenAIMaxAttempts
		p.RateLimitDelay = rc.RateLimitDelay
	}
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	return p
}

// Caller wraps a Generator with the uniform retry discipline. Every provider
// call in the system goes through a Caller.
type Caller struct {
	gen    Generator
	policy Policy

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewCaller creates a retrying wrapper around gen.
func NewCaller(gen Generator, policy Policy) *Caller {
	return &Caller{
		gen:    gen,
		policy: policy,
		sleep:  sleepCtx,
	}
}

// Generator returns the wrapped provider.
func (c *Caller) Generator() Generator { return c.gen }

// Generate performs one logical completion, retrying rate limits and
// transient timeouts per policy. Empty responses and fatal errors are
// surfaced immediately. Exhausting the attempt cap yields an error matching
// ErrRetriesExhausted that still carries the last underlying failure.
func (c *Caller) Generate(ctx context.Context, system, user string) (string, Usage, error) {
	var lastErr error

	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		callCtx := ctx
		var cancel context.CancelFunc
		if c.policy.CallTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, c.policy.CallTimeout)
		}
		text, usage, err := c.gen.Generate(callCtx, system, user)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return text, usage, nil
		}
		lastErr = err

		var delay time.Duration
		switch Classify(err) {
		case KindEmptyResponse, KindFatal:
			return "", Usage{}, err
		case KindRateLimited:
			delay = c.policy.RateLimitDelay
			if suggested, ok := SuggestedDelay(err); ok {
				delay = suggested
			}
		case KindTimeout:
			delay = c.policy.TimeoutDelay
		}

		if attempt == c.policy.MaxAttempts {
			break
		}
		log.Printf("%s call failed (attempt %d/%d), retrying in %s: %v",
			c.gen.Family(), attempt, c.policy.MaxAttempts, delay, err)
		if err := c.sleep(ctx, delay); err != nil {
			return "", Usage{}, err
		}
	}

	return "", Usage{}, fmt.Errorf("%w after %d attempts: %v",
		ErrRetriesExhausted, c.policy.MaxAttempts, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
