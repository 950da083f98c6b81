package retry

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"git.home.luguber.info/inful/memobackup/internal/config"
)

// Policy encapsulates retry/backoff settings for failed uploads.
// It is immutable after construction.
type Policy struct {
	Mode        config.RetryMode // fixed|linear|exponential
	Delay       time.Duration    // base delay
	MaxDelay    time.Duration    // cap for growth
	MaxAttempts int              // total attempts per intent, including the first
}

// DefaultPolicy returns three attempts with a fixed 5s delay.
func DefaultPolicy() Policy {
	return Policy{
		Mode:        config.RetryFixed,
		Delay:       config.DefaultRetryDelay,
		MaxDelay:    config.DefaultRetryMaxDelay,
		MaxAttempts: config.DefaultMaxAttempts,
	}
}

// NewPolicy builds a policy from config; zero/invalid values fall back to defaults.
func NewPolicy(cfg config.RetryConfig) Policy {
	p := DefaultPolicy()
	if cfg.MaxAttempts > 0 {
		p.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.Delay > 0 {
		p.Delay = cfg.Delay
	}
	if cfg.MaxDelay > 0 {
		p.MaxDelay = cfg.MaxDelay
	}
	switch cfg.Mode {
	case config.RetryFixed, config.RetryLinear, config.RetryExponential:
		p.Mode = cfg.Mode
	default:
		// unknown -> keep default
	}
	if p.Delay > p.MaxDelay {
		p.Delay = p.MaxDelay
	}
	return p
}

// NewBackOff returns a fresh delay sequence for one intent. The first call
// to NextBackOff yields the delay before the second attempt.
func (p Policy) NewBackOff() backoff.BackOff {
	switch p.Mode {
	case config.RetryExponential:
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = p.Delay
		b.MaxInterval = p.MaxDelay
		b.Multiplier = 2
		b.RandomizationFactor = 0
		b.Reset()
		return b
	case config.RetryLinear:
		return &linearBackOff{step: p.Delay, max: p.MaxDelay}
	default:
		return backoff.NewConstantBackOff(p.Delay)
	}
}

// Allows reports whether another attempt is allowed after attempts have been made.
func (p Policy) Allows(attempts int) bool {
	return attempts < p.MaxAttempts
}

// Validate ensures invariants; returns error if policy impossible to apply.
func (p Policy) Validate() error {
	if p.Delay <= 0 {
		return fmt.Errorf("delay must be >0")
	}
	if p.MaxDelay <= 0 {
		return fmt.Errorf("max delay must be >0")
	}
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1")
	}
	return nil
}

// linearBackOff grows by step on every call, capped at max.
type linearBackOff struct {
	step time.Duration
	max  time.Duration
	n    int
}

func (l *linearBackOff) NextBackOff() time.Duration {
	l.n++
	d := time.Duration(l.n) * l.step
	if d > l.max {
		return l.max
	}
	return d
}

func (l *linearBackOff) Reset() { l.n = 0 }
