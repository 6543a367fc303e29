package engine

import (
	"encoding/json"
	"fmt"
	"time"
)

// BackoffStrategy selects how the wait between attempts grows.
type BackoffStrategy string

const (
	// BackoffExponential waits BaseDelay * 2^attempt.
	BackoffExponential BackoffStrategy = "exponential"

	// BackoffLinear waits BaseDelay * (attempt+1).
	BackoffLinear BackoffStrategy = "linear"

	// BackoffFixed always waits BaseDelay.
	BackoffFixed BackoffStrategy = "fixed"
)

// Validate checks if the strategy is valid.
func (s BackoffStrategy) Validate() error {
	switch s {
	case BackoffExponential, BackoffLinear, BackoffFixed:
		return nil
	default:
		return fmt.Errorf("invalid backoff strategy: %s", s)
	}
}

// Default retry settings.
const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = time.Second
	DefaultMaxDelay   = time.Minute
)

// RetryConfig is the bounded retry policy applied to every node of a run
// unless the node carries its own override.
type RetryConfig struct {
	// MaxRetries is the total number of attempts a node gets before it is failed.
	MaxRetries int `json:"max_retries"`

	// Strategy selects the backoff function.
	Strategy BackoffStrategy `json:"strategy"`

	// BaseDelay is the unit the strategy scales.
	BaseDelay time.Duration `json:"base_delay"`

	// MaxDelay caps exponential and linear delays. Zero means uncapped.
	MaxDelay time.Duration `json:"max_delay"`
}

// DefaultRetryConfig returns three exponential attempts starting at one second, capped at one minute.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: DefaultMaxRetries,
		Strategy:   BackoffExponential,
		BaseDelay:  DefaultBaseDelay,
		MaxDelay:   DefaultMaxDelay,
	}
}

// Validate checks the retry configuration.
func (c RetryConfig) Validate() error {
	if c.MaxRetries < 1 {
		return fmt.Errorf("max_retries must be at least 1, got %d", c.MaxRetries)
	}
	if err := c.Strategy.Validate(); err != nil {
		return err
	}
	if c.BaseDelay < 0 {
		return fmt.Errorf("base_delay must not be negative, got %s", c.BaseDelay)
	}
	if c.MaxDelay < 0 {
		return fmt.Errorf("max_delay must not be negative, got %s", c.MaxDelay)
	}
	return nil
}

// Delay returns the wait before the attempt following the given failed attempt count.
// It is a pure function of its input.
func (c RetryConfig) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	var delay time.Duration
	switch c.Strategy {
	case BackoffFixed:
		return c.BaseDelay
	case BackoffLinear:
		delay = c.BaseDelay * time.Duration(attempt+1)
		if c.BaseDelay > 0 && delay/c.BaseDelay != time.Duration(attempt+1) {
			return c.capped(maxDuration)
		}
	default:
		// Shifting past 62 bits overflows int64 nanoseconds.
		if attempt >= 62 {
			return c.capped(maxDuration)
		}
		factor := time.Duration(1) << uint(attempt)
		delay = c.BaseDelay * factor
		if c.BaseDelay > 0 && delay/factor != c.BaseDelay {
			return c.capped(maxDuration)
		}
	}
	return c.capped(delay)
}

const maxDuration = time.Duration(1<<63 - 1)

func (c RetryConfig) capped(d time.Duration) time.Duration {
	if c.MaxDelay > 0 && d > c.MaxDelay {
		return c.MaxDelay
	}
	return d
}

// MarshalJSON renders delays as Go duration strings.
func (c RetryConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		MaxRetries int             `json:"max_retries"`
		Strategy   BackoffStrategy `json:"strategy"`
		BaseDelay  string          `json:"base_delay"`
		MaxDelay   string          `json:"max_delay"`
	}{c.MaxRetries, c.Strategy, c.BaseDelay.String(), c.MaxDelay.String()})
}
