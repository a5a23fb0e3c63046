package breaker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
)

// ErrOpen is returned, without invoking the protected call, while the
// breaker is open or its half-open trial budget is in use.
var ErrOpen = errors.New("circuit breaker open")

type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

type Config struct {
	// FailureRateThreshold is the failure ratio (0.0-1.0) within Window that trips the breaker.
	FailureRateThreshold float64       `yaml:"failure_rate_threshold" env:"FAILURE_RATE_THRESHOLD"`
	MinimumCalls         uint32        `yaml:"minimum_calls" env:"MINIMUM_CALLS"`
	Window               time.Duration `yaml:"window" env:"WINDOW"`
	CoolDown             time.Duration `yaml:"cool_down" env:"COOL_DOWN"`
	HalfOpenMaxCalls     uint32        `yaml:"half_open_max_calls" env:"HALF_OPEN_MAX_CALLS"`
}

func DefaultConfig() Config {
	return Config{
		FailureRateThreshold: 0.5,
		MinimumCalls:         5,
		Window:               time.Minute,
		CoolDown:             30 * time.Second,
		HalfOpenMaxCalls:     1,
	}
}

func (c Config) Validate() error {
	if c.FailureRateThreshold <= 0 || c.FailureRateThreshold > 1 {
		return fmt.Errorf("failure_rate_threshold must be within (0.0, 1.0], got %f", c.FailureRateThreshold)
	}
	if c.MinimumCalls == 0 {
		return fmt.Errorf("minimum_calls must be at least 1")
	}
	if c.CoolDown <= 0 {
		return fmt.Errorf("cool_down must be positive")
	}
	if c.HalfOpenMaxCalls == 0 {
		return fmt.Errorf("half_open_max_calls must be at least 1")
	}
	return nil
}

// Breaker guards one dependency. All goroutines calling through the same
// Breaker share its state.
type Breaker struct {
	name string
	cb   *gobreaker.CircuitBreaker[struct{}]
}

func New(name string, cfg Config) *Breaker {
	return &Breaker{
		name: name,
		cb: gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
			Name:        name,
			MaxRequests: cfg.HalfOpenMaxCalls,
			Interval:    cfg.Window,
			Timeout:     cfg.CoolDown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				if counts.Requests < cfg.MinimumCalls {
					return false
				}
				rate := float64(counts.TotalFailures) / float64(counts.Requests)
				return rate >= cfg.FailureRateThreshold
			},
			IsSuccessful: func(err error) bool {
				// Cancellation by our own caller says nothing about the dependency.
				return err == nil || errors.Is(err, context.Canceled)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				slog.Warn("circuit breaker state changed",
					slog.String("code", "CB_STATE"),
					slog.String("breaker", name),
					slog.String("from", string(mapState(from))),
					slog.String("to", string(mapState(to))),
				)
			},
		}),
	}
}

// Execute runs fn unless the breaker rejects the call. Rejections wrap ErrOpen.
func (b *Breaker) Execute(fn func() error) error {
	_, err := b.cb.Execute(func() (struct{}, error) {
		return struct{}{}, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %s: %v", ErrOpen, b.name, err)
	}
	return err
}

func (b *Breaker) Name() string {
	return b.name
}

func (b *Breaker) State() State {
	return mapState(b.cb.State())
}

func mapState(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}
