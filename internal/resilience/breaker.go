// Package resilience keeps a conversation turn alive when the dialogue
// model misbehaves.
//
// [Breaker] is a three-state circuit breaker (closed → open → half-open)
// that stops hammering a backend that is clearly down. [CannedFallback]
// wraps an [llm.Provider] with a breaker and substitutes a configured
// canned reply when the model fails, so the avatar always says something
// instead of the turn erroring out.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrBreakerOpen is returned by [Breaker.Do] while the breaker is open and
// the cooldown has not elapsed.
var ErrBreakerOpen = errors.New("resilience: breaker open")

// State is the operating mode of a [Breaker].
type State int

const (
	// StateClosed forwards all calls.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrBreakerOpen] until the cooldown
	// elapses.
	StateOpen

	// StateHalfOpen lets a single probe call through. Success closes the
	// breaker, failure re-opens it.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a [Breaker]. Zero fields take defaults.
type BreakerConfig struct {
	// Name labels log messages.
	Name string

	// MaxFailures is the consecutive-failure count that trips the breaker.
	// Default: 3.
	MaxFailures int

	// Cooldown is how long the breaker stays open before allowing a probe.
	// Default: 15s.
	Cooldown time.Duration
}

// Breaker is a minimal three-state circuit breaker with a single half-open
// probe.
type Breaker struct {
	name        string
	maxFailures int
	cooldown    time.Duration
	log         *slog.Logger

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
}

// NewBreaker creates a [Breaker] from cfg.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 15 * time.Second
	}
	return &Breaker{
		name:        cfg.Name,
		maxFailures: cfg.MaxFailures,
		cooldown:    cfg.Cooldown,
		log:         slog.Default(),
		state:       StateClosed,
	}
}

// Do runs fn unless the breaker is open. While half-open, only one probe
// call is admitted at a time; concurrent callers get [ErrBreakerOpen].
func (b *Breaker) Do(fn func() error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := fn()
	b.settle(err)
	return err
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if time.Since(b.openedAt) < b.cooldown {
			return ErrBreakerOpen
		}
		b.state = StateHalfOpen
		b.log.Info("breaker half-open", "name", b.name)
		fallthrough
	case StateHalfOpen:
		if b.probing {
			return ErrBreakerOpen
		}
		b.probing = true
	}
	return nil
}

func (b *Breaker) settle(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	wasProbe := b.probing
	b.probing = false

	if err == nil {
		if b.state == StateHalfOpen {
			b.log.Info("breaker closed after probe", "name", b.name)
		}
		b.state = StateClosed
		b.failures = 0
		return
	}

	if wasProbe {
		b.state = StateOpen
		b.openedAt = time.Now()
		b.log.Warn("breaker re-opened, probe failed", "name", b.name)
		return
	}

	b.failures++
	if b.failures >= b.maxFailures {
		b.state = StateOpen
		b.openedAt = time.Now()
		b.log.Warn("breaker opened",
			"name", b.name,
			"consecutive_failures", b.failures)
	}
}

// State returns the breaker's current mode. An open breaker whose cooldown
// has elapsed reports [StateHalfOpen]; the transition itself happens on the
// next [Breaker.Do].
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && time.Since(b.openedAt) >= b.cooldown {
		return StateHalfOpen
	}
	return b.state
}

// Reset forces the breaker closed and clears failure accounting.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.probing = false
}
