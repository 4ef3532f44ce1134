package errors

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// DefaultRateLimitMultiplier scales the base delay after a 429.
const DefaultRateLimitMultiplier = 5.0

// RetryConfig configures retry behavior.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration

	// MaxDelay caps every computed delay before jitter.
	MaxDelay time.Duration

	// ExponentialBase is the growth factor per attempt.
	ExponentialBase float64

	// JitterFraction spreads each delay uniformly over delay ± delay*JitterFraction.
	JitterFraction float64

	// RateLimitMultiplier scales BaseDelay for rate-limited failures.
	RateLimitMultiplier float64

	// Classify maps failures to a Kind. Nil means Classify.
	Classify Classifier
}

// DefaultRetryConfig returns sensible default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:         3,
		BaseDelay:           1 * time.Second,
		MaxDelay:            30 * time.Second,
		ExponentialBase:     2.0,
		JitterFraction:      0.1,
		RateLimitMultiplier: DefaultRateLimitMultiplier,
		Classify:            Classify,
	}
}

// Validate checks the configuration for impossible values.
func (c RetryConfig) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1, got %d", c.MaxAttempts)
	}
	if c.BaseDelay < 0 || c.MaxDelay < 0 {
		return fmt.Errorf("delays must be non-negative")
	}
	if c.MaxDelay < c.BaseDelay {
		return fmt.Errorf("max_delay (%s) must not be below base_delay (%s)", c.MaxDelay, c.BaseDelay)
	}
	if c.ExponentialBase < 1 {
		return fmt.Errorf("exponential_base must be >= 1, got %f", c.ExponentialBase)
	}
	if c.JitterFraction < 0 || c.JitterFraction > 1 {
		return fmt.Errorf("jitter_fraction must be between 0 and 1, got %f", c.JitterFraction)
	}
	if c.RateLimitMultiplier < 1 {
		return fmt.Errorf("rate_limit_multiplier must be >= 1, got %f", c.RateLimitMultiplier)
	}
	return nil
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Retrier executes operations with classified exponential backoff.
// A Retrier holds no per-call state and is safe for concurrent use.
type Retrier struct {
	cfg    RetryConfig
	random func() float64
	sleep  Sleeper
}

// RetrierOption configures a Retrier.
type RetrierOption func(*Retrier)

// WithRandom replaces the jitter source. f must return values in [0, 1).
func WithRandom(f func() float64) RetrierOption {
	return func(r *Retrier) {
		r.random = f
	}
}

// WithSleeper replaces the inter-attempt wait.
func WithSleeper(s Sleeper) RetrierOption {
	return func(r *Retrier) {
		r.sleep = s
	}
}

// NewRetrier validates cfg and returns a Retrier.
func NewRetrier(cfg RetryConfig, opts ...RetrierOption) (*Retrier, error) {
	if cfg.RateLimitMultiplier == 0 {
		cfg.RateLimitMultiplier = DefaultRateLimitMultiplier
	}
	if cfg.ExponentialBase == 0 {
		cfg.ExponentialBase = 2.0
	}
	if err := cfg.Validate(); err != nil {
		return nil, New(ErrCodeConfigInvalid, "invalid retry configuration", err)
	}
	if cfg.Classify == nil {
		cfg.Classify = Classify
	}

	r := &Retrier{
		cfg:    cfg,
		random: rand.Float64,
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// MustRetrier is NewRetrier for configurations known to be valid.
func MustRetrier(cfg RetryConfig, opts ...RetrierOption) *Retrier {
	r, err := NewRetrier(cfg, opts...)
	if err != nil {
		panic(err)
	}
	return r
}

// Config returns a copy of the retrier's configuration.
func (r *Retrier) Config() RetryConfig {
	return r.cfg
}

// Backoff returns the unjittered delay after the failed attempt with
// zero-based index attempt.
func (r *Retrier) Backoff(attempt int, kind Kind) time.Duration {
	base := float64(r.cfg.BaseDelay)
	if kind == KindRateLimited {
		base *= r.cfg.RateLimitMultiplier
	}
	d := base * math.Pow(r.cfg.ExponentialBase, float64(attempt))
	if ceiling := float64(r.cfg.MaxDelay); d > ceiling || math.IsInf(d, 1) {
		d = ceiling
	}
	return time.Duration(d)
}

// Delay returns Backoff with symmetric jitter applied, never negative.
func (r *Retrier) Delay(attempt int, kind Kind) time.Duration {
	d := float64(r.Backoff(attempt, kind))
	if r.cfg.JitterFraction > 0 {
		spread := d * r.cfg.JitterFraction
		d += (r.random()*2 - 1) * spread
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// Outcome is the ordered record of failures for one logical operation.
type Outcome struct {
	// Errors holds every failed attempt in order.
	Errors []error
	// Attempts is the number of times the operation ran.
	Attempts int
	// Kind is the classification of the last error.
	Kind Kind
	// FirstAttempt and LastAttempt bracket the attempts.
	FirstAttempt time.Time
	LastAttempt  time.Time

	succeeded bool
}

// Succeeded reports whether the final attempt returned no error.
func (o Outcome) Succeeded() bool {
	return o.succeeded
}

// Err returns the terminal error, or nil on success.
func (o Outcome) Err() error {
	if o.succeeded || len(o.Errors) == 0 {
		return nil
	}
	return o.Errors[len(o.Errors)-1]
}

// Execute runs op until it succeeds, fails permanently, or runs out of
// attempts. On failure the zero value is returned together with every
// error seen. Cancellation of ctx during a wait ends the loop and the
// context error is recorded as the final, permanent failure.
func Execute[T any](ctx context.Context, r *Retrier, op func(context.Context) (T, error)) (T, Outcome) {
	var zero T
	var out Outcome

	for attempt := 0; attempt < r.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			out.Errors = append(out.Errors, err)
			out.Kind = KindPermanent
			return zero, out
		}

		now := time.Now()
		if attempt == 0 {
			out.FirstAttempt = now
		}
		out.LastAttempt = now
		out.Attempts++

		result, err := op(ctx)
		if err == nil {
			out.succeeded = true
			return result, out
		}

		out.Errors = append(out.Errors, err)
		out.Kind = r.cfg.Classify(err)

		if out.Kind == KindPermanent || attempt == r.cfg.MaxAttempts-1 {
			break
		}

		if err := r.sleep(ctx, r.Delay(attempt, out.Kind)); err != nil {
			out.Errors = append(out.Errors, err)
			out.Kind = KindPermanent
			break
		}
	}

	return zero, out
}

// Retry is Execute for operations without a result.
func Retry(ctx context.Context, r *Retrier, op func(context.Context) error) Outcome {
	_, out := Execute(ctx, r, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return out
}
