// Package provider holds the text-generation backends and the wrappers
// shared by all of them.
package provider

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vidasmart/coachgw/internal/domain"
)

// Generator produces an assistant reply for a system prompt, history and
// user message.
type Generator interface {
	Generate(ctx context.Context, systemPrompt string, history []domain.ChatMessage, userMessage string) (string, error)
}

// BreakerConfig configures the circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before the
	// circuit opens.
	FailureThreshold int `koanf:"failure_threshold"`

	// RecoveryTimeout is how long the circuit stays open before a probe
	// request is let through.
	RecoveryTimeout time.Duration `koanf:"recovery_timeout"`

	// HalfOpenRequests is how many probes may run while half-open.
	HalfOpenRequests int `koanf:"half_open_requests"`
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
		HalfOpenRequests: 1,
	}
}

// BreakerState is the circuit state.
type BreakerState string

const (
	StateClosed   BreakerState = "closed"
	StateOpen     BreakerState = "open"
	StateHalfOpen BreakerState = "half_open"
)

// Breaker wraps a Generator and fails fast after repeated failures.
type Breaker struct {
	next     Generator
	cfg      BreakerConfig
	now      func() time.Time
	onChange func(BreakerState)

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
	probes   int
}

// BreakerOption configures a Breaker.
type BreakerOption func(*Breaker)

// WithBreakerClock sets the time source.
func WithBreakerClock(now func() time.Time) BreakerOption {
	return func(b *Breaker) { b.now = now }
}

// WithStateListener is called after every state change, outside the lock.
func WithStateListener(fn func(BreakerState)) BreakerOption {
	return func(b *Breaker) { b.onChange = fn }
}

// NewBreaker wraps next.
func NewBreaker(next Generator, cfg BreakerConfig, opts ...BreakerOption) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultBreakerConfig().FailureThreshold
	}
	if cfg.HalfOpenRequests <= 0 {
		cfg.HalfOpenRequests = 1
	}
	b := &Breaker{next: next, cfg: cfg, now: time.Now, state: StateClosed}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// State returns the current circuit state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Generate calls the wrapped generator unless the circuit is open.
func (b *Breaker) Generate(ctx context.Context, systemPrompt string, history []domain.ChatMessage, userMessage string) (string, error) {
	if err := b.acquire(); err != nil {
		return "", err
	}

	reply, err := b.next.Generate(ctx, systemPrompt, history, userMessage)
	b.release(err)
	return reply, err
}

func (b *Breaker) acquire() error {
	b.mu.Lock()
	changed := false
	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cfg.RecoveryTimeout {
			b.mu.Unlock()
			return domain.ErrUnavailable("generation circuit is open").WithCode(domain.ErrorCodeCircuitOpen)
		}
		b.state = StateHalfOpen
		b.probes = 0
		changed = true
		fallthrough
	case StateHalfOpen:
		if b.probes >= b.cfg.HalfOpenRequests {
			b.mu.Unlock()
			b.notify(changed, StateHalfOpen)
			return domain.ErrUnavailable("generation circuit is half-open").WithCode(domain.ErrorCodeCircuitOpen)
		}
		b.probes++
	}
	state := b.state
	b.mu.Unlock()
	b.notify(changed, state)
	return nil
}

func (b *Breaker) release(err error) {
	b.mu.Lock()
	before := b.state

	if b.state == StateHalfOpen {
		b.probes--
	}

	switch {
	case inconclusive(err):
		// The caller gave up; nothing was learned about the upstream.
	case !countsAsFailure(err):
		b.failures = 0
		b.state = StateClosed
	case b.state == StateHalfOpen:
		b.state = StateOpen
		b.openedAt = b.now()
	default:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.state = StateOpen
			b.openedAt = b.now()
		}
	}

	after := b.state
	b.mu.Unlock()
	b.notify(before != after, after)
}

func (b *Breaker) notify(changed bool, state BreakerState) {
	if changed && b.onChange != nil {
		b.onChange(state)
	}
}

// inconclusive reports outcomes that neither open nor close the circuit.
func inconclusive(err error) bool {
	return errors.Is(err, context.Canceled)
}

// countsAsFailure ignores client errors: the upstream answered.
func countsAsFailure(err error) bool {
	if err == nil {
		return false
	}
	if apiErr, ok := domain.AsAPIError(err); ok {
		return apiErr.Type != domain.ErrorTypeInvalidRequest
	}
	return true
}
