package ai

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/mealingabout/menu-pipeline/internal/cost"
	"github.com/mealingabout/menu-pipeline/internal/resilience"
)

// Step is one provider in the chain and the policy for retrying it before
// escalating to the next.
type Step struct {
	Provider Provider
	Policy   resilience.RetryPolicy
}

// PrimaryPolicy retries malformed output right away, parseRetries times.
// Any other error escalates immediately.
func PrimaryPolicy(parseRetries int) resilience.RetryPolicy {
	return resilience.Immediate(parseRetries+1, IsMalformed)
}

// SecondaryPolicy retries once after a rate limit whose hint is at most maxWait.
func SecondaryPolicy(maxWait time.Duration) resilience.RetryPolicy {
	return resilience.AfterHint(2, maxWait)
}

// TertiaryPolicy makes a single attempt.
func TertiaryPolicy() resilience.RetryPolicy {
	return resilience.Once()
}

// AllProvidersFailedError is returned when every step of the chain failed.
type AllProvidersFailedError struct {
	Last error
}

func (e *AllProvidersFailedError) Error() string {
	return "All AI providers failed. Last error: " + e.Last.Error()
}

func (e *AllProvidersFailedError) Unwrap() error {
	return e.Last
}

// ChainOption configures a Chain.
type ChainOption func(*Chain)

// WithCalculator attributes cost to each successful analysis.
func WithCalculator(calc *cost.Calculator) ChainOption {
	return func(c *Chain) { c.calc = calc }
}

// WithSleep replaces the wait used between retries of every step.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) ChainOption {
	return func(c *Chain) { c.sleep = sleep }
}

// Chain tries providers in order; the first success wins.
type Chain struct {
	steps   []Step
	timeout time.Duration
	calc    *cost.Calculator
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewChain creates a Chain. timeout bounds each provider call, not the
// whole chain.
func NewChain(timeout time.Duration, steps []Step, opts ...ChainOption) *Chain {
	c := &Chain{steps: steps, timeout: timeout}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Providers returns the provider names in chain order.
func (c *Chain) Providers() []string {
	names := make([]string, len(c.steps))
	for i, s := range c.steps {
		names[i] = s.Provider.Name()
	}
	return names
}

// Analyze classifies menuText with the first provider that succeeds. Every
// retry and every escalation is logged before it happens.
func (c *Chain) Analyze(ctx context.Context, menuText string) (*Result, error) {
	if len(c.steps) == 0 {
		return nil, eris.New("ai: no providers configured")
	}

	var lastErr error
	for i, step := range c.steps {
		p := step.Provider
		policy := step.Policy
		if policy.OnRetry == nil {
			policy.OnRetry = resilience.RetryLogger(p.Name(), "analyze")
		}
		if policy.Sleep == nil && c.sleep != nil {
			policy.Sleep = c.sleep
		}

		res, err := resilience.DoVal(ctx, policy, func(ctx context.Context) (*Result, error) {
			if c.timeout <= 0 {
				return p.Analyze(ctx, menuText)
			}
			callCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()
			return p.Analyze(callCtx, menuText)
		})
		if err == nil {
			if c.calc != nil {
				res.Usage = c.calc.Usage(res.Provider, res.Model, res.Usage.InputTokens, res.Usage.OutputTokens)
			}
			return res, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "ai: analyze")
		}

		if i+1 < len(c.steps) {
			zap.L().Warn("ai: provider failed, escalating",
				zap.String("provider", p.Name()),
				zap.String("next", c.steps[i+1].Provider.Name()),
				zap.Error(err),
			)
		}
	}

	return nil, &AllProvidersFailedError{Last: lastErr}
}
