package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"
)

// Strategy selects how the delay grows between attempts.
type Strategy int

const (
	// Exponential grows the delay by Multiplier each attempt.
	Exponential Strategy = iota
	// Linear grows the delay as BaseDelay * attempt number.
	Linear
)

// Config configures retry behavior.
type Config struct {
	MaxRetries int           // retry attempts after the first try
	BaseDelay  time.Duration // delay before the first retry
	MaxDelay   time.Duration // upper bound on any single delay
	Multiplier float64       // exponential growth factor (ignored for Linear)
	Strategy   Strategy
	Jitter     bool // add up to 10% random jitter
	LogRetries bool
}

// Result records what happened across all attempts.
type Result struct {
	Attempts      int
	TotalDuration time.Duration
	LastError     error
	Success       bool
}

// TransportConfig returns the profile used for code-host API calls:
// up to 2 retries with a linearly increasing delay. Only transient
// server-side failures should be retried under this config; the
// caller classifies retryability from the response status before
// handing the operation to Do.
func TransportConfig() Config {
	return Config{
		MaxRetries: 2,
		BaseDelay:  1500 * time.Millisecond,
		MaxDelay:   10 * time.Second,
		Strategy:   Linear,
		LogRetries: true,
	}
}

// LLMConfig returns the profile used for language-model requests, which
// can be slow and benefit from longer waits.
func LLMConfig() Config {
	return Config{
		MaxRetries: 3,
		BaseDelay:  2 * time.Second,
		MaxDelay:   60 * time.Second,
		Multiplier: 2.5,
		Strategy:   Exponential,
		Jitter:     true,
		LogRetries: true,
	}
}

// Do executes op with retries per config. A nil error from op stops the
// loop immediately; context cancellation is honored both during op
// scheduling and while sleeping between attempts.
func Do(ctx context.Context, config Config, op func() error) Result {
	start := time.Now()
	result := Result{}

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		result.Attempts = attempt + 1

		err := op()
		if err == nil {
			result.Success = true
			result.TotalDuration = time.Since(start)
			if config.LogRetries && attempt > 0 {
				log.Debug().Int("attempts", result.Attempts).
					Dur("total", result.TotalDuration).
					Msg("operation succeeded after retry")
			}
			return result
		}

		result.LastError = err
		if attempt >= config.MaxRetries {
			break
		}
		if ctx.Err() != nil {
			result.LastError = ctx.Err()
			break
		}

		delay := delayFor(config, attempt)
		if config.LogRetries {
			log.Warn().Err(err).
				Int("attempt", attempt+1).
				Int("max_attempts", config.MaxRetries+1).
				Dur("delay", delay).
				Msg("operation failed, retrying")
		}

		select {
		case <-ctx.Done():
			result.LastError = ctx.Err()
			result.TotalDuration = time.Since(start)
			return result
		case <-time.After(delay):
		}
	}

	result.TotalDuration = time.Since(start)
	if config.LogRetries {
		log.Error().Err(result.LastError).
			Int("attempts", result.Attempts).
			Msg("operation failed after all attempts")
	}
	return result
}

func delayFor(config Config, attempt int) time.Duration {
	var delay float64
	switch config.Strategy {
	case Linear:
		delay = float64(config.BaseDelay) * float64(attempt+1)
	default:
		delay = float64(config.BaseDelay) * math.Pow(config.Multiplier, float64(attempt))
	}

	if delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}

	if config.Jitter {
		jitterRange := delay * 0.1
		delay += (rand.Float64() - 0.5) * 2 * jitterRange
		if delay < 0 {
			delay = float64(config.BaseDelay)
		}
	}

	return time.Duration(delay)
}
