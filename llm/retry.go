package llm

import "time"

// RetryConfig controls how often a single endpoint is retried before the
// client moves on to the next model in the fallback chain.
type RetryConfig struct {
	MaxAttempts       int
	BackoffBase       time.Duration
	BackoffMultiplier float64
	MaxBackoff        time.Duration
}

// DefaultRetryConfig returns the retry settings used by NewClient.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		BackoffBase:       2 * time.Second,
		BackoffMultiplier: 2.0,
		MaxBackoff:        30 * time.Second,
	}
}

// NoRetry makes every endpoint a single attempt. Handy in tests and for
// interactive commands where the fallback chain is enough.
func NoRetry() RetryConfig {
	return RetryConfig{
		MaxAttempts:       1,
		BackoffBase:       0,
		BackoffMultiplier: 1.0,
		MaxBackoff:        0,
	}
}
