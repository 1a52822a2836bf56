package scheduler

import (
	"sync"
	"time"
)

// CircuitState is the per-provider breaker state.
type CircuitState string

// Breaker states.
const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half_open"
)

// BreakerConfig tunes the circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens
	// the circuit.
	FailureThreshold int
	// Cooldown is the initial open window. Each failed half-open trial
	// doubles it, up to MaxCooldown.
	Cooldown    time.Duration
	MaxCooldown time.Duration
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 3
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 60 * time.Second
	}
	if c.MaxCooldown <= 0 {
		c.MaxCooldown = 8 * c.Cooldown
	}
	return c
}

// BreakerSet tracks one circuit per classification key (typically a provider
// name). It is shared process-wide so that a real provider outage observed by
// one job protects every other job.
type BreakerSet struct {
	mu       sync.Mutex
	cfg      BreakerConfig
	breakers map[string]*breaker
	now      func() time.Time
}

type breaker struct {
	state               CircuitState
	consecutiveFailures int
	openedAt            time.Time
	cooldown            time.Duration
	trialInFlight       bool
}

// NewBreakerSet creates a breaker set with the given configuration.
func NewBreakerSet(cfg BreakerConfig) *BreakerSet {
	return &BreakerSet{
		cfg:      cfg.withDefaults(),
		breakers: make(map[string]*breaker),
		now:      time.Now,
	}
}

func (s *BreakerSet) get(key string) *breaker {
	b, ok := s.breakers[key]
	if !ok {
		b = &breaker{state: CircuitClosed, cooldown: s.cfg.Cooldown}
		s.breakers[key] = b
	}
	return b
}

// Allow reports whether a call for key may proceed. While open it fails fast
// with a CircuitOpenError; once the cooldown elapses it moves to half-open
// and admits exactly one trial call.
func (s *BreakerSet) Allow(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.get(key)
	switch b.state {
	case CircuitClosed:
		return nil
	case CircuitOpen:
		elapsed := s.now().Sub(b.openedAt)
		if elapsed < b.cooldown {
			return &CircuitOpenError{Key: key, RetryAfter: b.cooldown - elapsed}
		}
		b.state = CircuitHalfOpen
		b.trialInFlight = true
		return nil
	default: // half-open
		if b.trialInFlight {
			return &CircuitOpenError{Key: key, RetryAfter: b.cooldown}
		}
		b.trialInFlight = true
		return nil
	}
}

// Record feeds the outcome of a permitted call back into the breaker.
func (s *BreakerSet) Record(key string, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.get(key)
	if success {
		// A half-open trial success closes the circuit and resets the
		// cooldown to its initial value.
		b.state = CircuitClosed
		b.consecutiveFailures = 0
		b.cooldown = s.cfg.Cooldown
		b.trialInFlight = false
		return
	}

	switch b.state {
	case CircuitHalfOpen:
		// Failed trial: reopen with the cooldown doubled, bounded.
		b.cooldown *= 2
		if b.cooldown > s.cfg.MaxCooldown {
			b.cooldown = s.cfg.MaxCooldown
		}
		b.state = CircuitOpen
		b.openedAt = s.now()
		b.trialInFlight = false
	case CircuitClosed:
		b.consecutiveFailures++
		if b.consecutiveFailures >= s.cfg.FailureThreshold {
			b.state = CircuitOpen
			b.openedAt = s.now()
		}
	case CircuitOpen:
		// Late completion of a call that started before the circuit
		// opened; nothing to update.
	}
}

// State returns the current state for a key. Keys never seen are closed.
func (s *BreakerSet) State(key string) CircuitState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.breakers[key]; ok {
		return b.state
	}
	return CircuitClosed
}

// setClock overrides the time source for tests.
func (s *BreakerSet) setClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}
