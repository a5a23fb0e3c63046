package retry

import (
	"fmt"
	"time"
)

const (
	StrategyFixed       = "fixed"
	StrategyExponential = "exponential"
)

type Config struct {
	MaxAttempts       int           `yaml:"max_attempts" env:"MAX_ATTEMPTS"`
	Strategy          string        `yaml:"strategy" env:"STRATEGY"`
	InitialBackoff    time.Duration `yaml:"initial_backoff" env:"INITIAL_BACKOFF"`
	MaxBackoff        time.Duration `yaml:"max_backoff" env:"MAX_BACKOFF"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier" env:"BACKOFF_MULTIPLIER"`
	JitterFactor      float64       `yaml:"jitter_factor" env:"JITTER_FACTOR"` // 0.0-1.0, percentage of jitter to add
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:       3,
		Strategy:          StrategyExponential,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
		JitterFactor:      0.2,
	}
}

func (c Config) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1, got %d", c.MaxAttempts)
	}
	switch c.Strategy {
	case StrategyFixed, StrategyExponential:
	default:
		return fmt.Errorf("unknown backoff strategy %q", c.Strategy)
	}
	if c.InitialBackoff < 0 || c.MaxBackoff < 0 {
		return fmt.Errorf("backoff durations must not be negative")
	}
	if c.JitterFactor < 0 || c.JitterFactor > 1 {
		return fmt.Errorf("jitter_factor must be within 0.0-1.0, got %f", c.JitterFactor)
	}
	return nil
}
