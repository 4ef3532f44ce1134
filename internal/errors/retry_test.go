package errors

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSleeper captures requested delays without waiting.
type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func testConfig(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:     attempts,
		BaseDelay:       100 * time.Millisecond,
		MaxDelay:        2 * time.Second,
		ExponentialBase: 2.0,
		JitterFraction:  0.2,
	}
}

func TestExecute_PermanentErrorMakesOneAttempt(t *testing.T) {
	// Given: an operation that always fails permanently
	sleeper := &recordingSleeper{}
	r := MustRetrier(testConfig(5), WithSleeper(sleeper.sleep))
	calls := 0

	// When: executing it
	result, out := Execute(context.Background(), r, func(context.Context) (string, error) {
		calls++
		return "", Permanent(stderrors.New("bad request"))
	})

	// Then: exactly one attempt, no waits, permanent outcome
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, out.Attempts)
	assert.Len(t, out.Errors, 1)
	assert.Equal(t, KindPermanent, out.Kind)
	assert.Empty(t, result)
	assert.Empty(t, sleeper.delays)
	assert.False(t, out.Succeeded())
}

func TestExecute_TransientExhaustsAllAttempts(t *testing.T) {
	for _, n := range []int{1, 2, 3, 7} {
		// Given: an operation that always fails transiently
		sleeper := &recordingSleeper{}
		r := MustRetrier(testConfig(n), WithSleeper(sleeper.sleep))

		// When: executing it
		result, out := Execute(context.Background(), r, func(context.Context) (*int, error) {
			return nil, Transient(stderrors.New("timeout"))
		})

		// Then: n recorded errors, nil result, n-1 waits
		assert.Nil(t, result, "n=%d", n)
		assert.Len(t, out.Errors, n, "n=%d", n)
		assert.Equal(t, n, out.Attempts)
		assert.Equal(t, KindTransient, out.Kind)
		assert.Len(t, sleeper.delays, n-1)
		assert.Error(t, out.Err())
	}
}

func TestExecute_SucceedsAfterTransientErrors(t *testing.T) {
	// Given: an operation that fails twice then succeeds
	sleeper := &recordingSleeper{}
	r := MustRetrier(testConfig(5), WithSleeper(sleeper.sleep))
	calls := 0

	// When: executing it
	result, out := Execute(context.Background(), r, func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, Transient(stderrors.New("flaky"))
		}
		return 42, nil
	})

	// Then: the value is returned with the accumulated errors
	assert.Equal(t, 42, result)
	assert.True(t, out.Succeeded())
	assert.NoError(t, out.Err())
	assert.Len(t, out.Errors, 2)
	assert.Equal(t, 3, out.Attempts)
	assert.False(t, out.FirstAttempt.After(out.LastAttempt))
}

func TestBackoff_NonDecreasingUpToMaxDelay(t *testing.T) {
	// Given: a retrier with a low ceiling
	r := MustRetrier(testConfig(10))

	// When: computing unjittered delays for successive attempts
	var prev time.Duration
	for attempt := 0; attempt < 12; attempt++ {
		d := r.Backoff(attempt, KindTransient)

		// Then: each delay is >= the last and never above MaxDelay
		assert.GreaterOrEqual(t, d, prev)
		assert.LessOrEqual(t, d, 2*time.Second)
		prev = d
	}
	assert.Equal(t, 100*time.Millisecond, r.Backoff(0, KindTransient))
	assert.Equal(t, 400*time.Millisecond, r.Backoff(2, KindTransient))
	assert.Equal(t, 2*time.Second, r.Backoff(11, KindTransient))
}

func TestBackoff_RateLimitedUsesLongerBase(t *testing.T) {
	// Given: a retrier with default multiplier
	r := MustRetrier(testConfig(3))

	// Then: rate-limited delays start five times higher
	assert.Equal(t, 500*time.Millisecond, r.Backoff(0, KindRateLimited))
	assert.Equal(t, 1*time.Second, r.Backoff(1, KindRateLimited))
	assert.Equal(t, 2*time.Second, r.Backoff(5, KindRateLimited))
}

func TestDelay_WithinJitterBounds(t *testing.T) {
	tests := []struct {
		name   string
		random float64
	}{
		{"lowest", 0.0},
		{"middle", 0.5},
		{"highest", 0.999999},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given: a fixed jitter source
			r := MustRetrier(testConfig(5), WithRandom(func() float64 { return tt.random }))

			for attempt := 0; attempt < 6; attempt++ {
				// When: computing the jittered delay
				base := float64(r.Backoff(attempt, KindTransient))
				d := float64(r.Delay(attempt, KindTransient))

				// Then: it stays within ±20% of the unjittered delay
				assert.GreaterOrEqual(t, d, base*0.8-1)
				assert.LessOrEqual(t, d, base*1.2+1)
			}
		})
	}
}

func TestDelay_ZeroJitterIsExact(t *testing.T) {
	cfg := testConfig(3)
	cfg.JitterFraction = 0
	r := MustRetrier(cfg, WithRandom(func() float64 { return 0.9 }))

	assert.Equal(t, r.Backoff(1, KindTransient), r.Delay(1, KindTransient))
}

func TestExecute_UsesComputedDelays(t *testing.T) {
	// Given: no jitter and a rate-limited failure followed by transient ones
	cfg := testConfig(4)
	cfg.JitterFraction = 0
	sleeper := &recordingSleeper{}
	r := MustRetrier(cfg, WithSleeper(sleeper.sleep))
	calls := 0

	// When: executing
	Retry(context.Background(), r, func(context.Context) error {
		calls++
		if calls == 1 {
			return &HTTPError{Op: "GET", URL: "u", StatusCode: 429}
		}
		return &HTTPError{Op: "GET", URL: "u", StatusCode: 503}
	})

	// Then: the waits follow the classification of each failure
	require.Len(t, sleeper.delays, 3)
	assert.Equal(t, 500*time.Millisecond, sleeper.delays[0])
	assert.Equal(t, 200*time.Millisecond, sleeper.delays[1])
	assert.Equal(t, 400*time.Millisecond, sleeper.delays[2])
}

func TestExecute_CancelledDuringWait(t *testing.T) {
	// Given: a context cancelled by the first failure
	ctx, cancel := context.WithCancel(context.Background())
	r := MustRetrier(testConfig(5), WithSleeper(sleepContext))
	calls := 0

	// When: executing
	out := Retry(ctx, r, func(context.Context) error {
		calls++
		cancel()
		return Transient(stderrors.New("flaky"))
	})

	// Then: no second attempt; the cancellation is the terminal error
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, out.Err(), context.Canceled)
	assert.Equal(t, KindPermanent, out.Kind)
}

func TestExecute_ConcurrentUse(t *testing.T) {
	// Given: one retrier shared by many goroutines
	sleeper := &recordingSleeper{}
	r := MustRetrier(testConfig(3), WithSleeper(sleeper.sleep))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, out := Execute(context.Background(), r, func(context.Context) (int, error) {
				return 0, Transient(stderrors.New("x"))
			})
			assert.Len(t, out.Errors, 3)
		}()
	}
	wg.Wait()

	// Then: every operation waited independently
	assert.Len(t, sleeper.delays, 40)
}

func TestNewRetrier_RejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RetryConfig)
	}{
		{"zero attempts", func(c *RetryConfig) { c.MaxAttempts = 0 }},
		{"max below base", func(c *RetryConfig) { c.MaxDelay = c.BaseDelay / 2 }},
		{"jitter above one", func(c *RetryConfig) { c.JitterFraction = 1.5 }},
		{"shrinking base", func(c *RetryConfig) { c.ExponentialBase = 0.5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(3)
			tt.mutate(&cfg)

			_, err := NewRetrier(cfg)

			require.Error(t, err)
			assert.Equal(t, ErrCodeConfigInvalid, GetCode(err))
		})
	}
}
