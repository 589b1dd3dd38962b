package config

import (
	"fmt"
	"strings"
	"time"
)

type ResilienceConfig struct {
	Retry          RetryConfig          `koanf:"retry"`
	CircuitBreaker CircuitBreakerConfig `koanf:"circuitbreaker"`
	Pacing         PacingConfig         `koanf:"pacing"`
}

// RetryConfig controls how throttled catalog calls are retried.
type RetryConfig struct {
	MaxRetries        int           `koanf:"maxretries"`
	JitterMin         time.Duration `koanf:"jittermin"`
	JitterMax         time.Duration `koanf:"jittermax"`
	DefaultRetryAfter time.Duration `koanf:"defaultretryafter"`
}

type CircuitBreakerConfig struct {
	ConsecutiveFailures uint32        `koanf:"consecutivefailures"`
	ErrorRatePercent    int           `koanf:"errorratepercent"`
	OpenTimeout         time.Duration `koanf:"opentimeout"`
}

// PacingConfig is the jittered delay placed around every mutation inside a batch.
type PacingConfig struct {
	Min time.Duration `koanf:"min"`
	Max time.Duration `koanf:"max"`
}

// String returns a string representation of the ResilienceConfig.
func (c *ResilienceConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- Retry ---\n")
	b.WriteString(fmt.Sprintf("  maxretries: %d\n", c.Retry.MaxRetries))
	b.WriteString(fmt.Sprintf("  jittermin: %v\n", c.Retry.JitterMin))
	b.WriteString(fmt.Sprintf("  jittermax: %v\n", c.Retry.JitterMax))
	b.WriteString(fmt.Sprintf("  defaultretryafter: %v\n", c.Retry.DefaultRetryAfter))
	b.WriteString("\n--- Circuit Breaker ---\n")
	b.WriteString(fmt.Sprintf("  consecutivefailures: %d\n", c.CircuitBreaker.ConsecutiveFailures))
	b.WriteString(fmt.Sprintf("  errorratepercent: %d\n", c.CircuitBreaker.ErrorRatePercent))
	b.WriteString(fmt.Sprintf("  opentimeout: %v\n", c.CircuitBreaker.OpenTimeout))
	b.WriteString("\n--- Pacing ---\n")
	b.WriteString(fmt.Sprintf("  min: %v\n", c.Pacing.Min))
	b.WriteString(fmt.Sprintf("  max: %v\n", c.Pacing.Max))
	return b.String()
}

func (c *ResilienceConfig) Validate() error {
	if c.Retry.MaxRetries <= 0 {
		return fmt.Errorf("retry.max_retries must be greater than 0")
	}
	if c.Retry.JitterMin < 0 || c.Retry.JitterMax < c.Retry.JitterMin {
		return fmt.Errorf("retry jitter range is invalid: [%v, %v]", c.Retry.JitterMin, c.Retry.JitterMax)
	}
	if c.Retry.DefaultRetryAfter <= 0 {
		return fmt.Errorf("retry.default_retry_after must be greater than 0")
	}
	if c.CircuitBreaker.ConsecutiveFailures <= 0 {
		return fmt.Errorf("circuit_breaker.consecutive_failures must be greater than 0")
	}
	if c.CircuitBreaker.ErrorRatePercent < 0 || c.CircuitBreaker.ErrorRatePercent > 100 {
		return fmt.Errorf("circuit_breaker.error_rate_percent must be between 0 and 100")
	}
	if c.CircuitBreaker.OpenTimeout <= 0 {
		return fmt.Errorf("circuit_breaker.open_timeout must be greater than 0")
	}
	if c.Pacing.Min < 0 || c.Pacing.Max < c.Pacing.Min {
		return fmt.Errorf("pacing range is invalid: [%v, %v]", c.Pacing.Min, c.Pacing.Max)
	}
	return nil
}
