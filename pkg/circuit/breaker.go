package circuit

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State of a breaker.
type State int

const (
	StateClosed   State = iota // requests pass through
	StateOpen                  // requests fail fast
	StateHalfOpen              // limited probes allowed
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// Config defines breaker thresholds.
type Config struct {
	Threshold        int           // consecutive failures before opening
	Timeout          time.Duration // open duration before probing
	SuccessThreshold int           // successes needed to close from half-open
	MaxHalfOpen      int           // max concurrent probes in half-open
}

func DefaultConfig() Config {
	return Config{
		Threshold:        5,
		Timeout:          30 * time.Second,
		SuccessThreshold: 2,
		MaxHalfOpen:      2,
	}
}

// Breaker guards one upstream host. A run of failures opens it; after
// Timeout a few probe requests decide whether it closes again.
type Breaker struct {
	mu          sync.RWMutex
	state       State
	failures    int
	successes   int
	probes      int
	lastFailure time.Time
	config      Config
	logger      *zap.Logger
	name        string
}

func NewBreaker(name string, config Config, logger *zap.Logger) *Breaker {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Breaker{
		state:  StateClosed,
		config: config,
		logger: logger,
		name:   name,
	}
}

// Execute runs fn under breaker control.
func (b *Breaker) Execute(fn func() error) error {
	if err := b.Allow(); err != nil {
		return err
	}

	err := fn()
	b.Record(err)
	return err
}

// Allow reports whether a request may proceed right now.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if time.Since(b.lastFailure) >= b.config.Timeout {
			b.transitionTo(StateHalfOpen)
			b.probes = 1
			return nil
		}
		return ErrCircuitOpen

	case StateHalfOpen:
		if b.probes >= b.config.MaxHalfOpen {
			return ErrTooManyRequests
		}
		b.probes++
		return nil

	default:
		return nil
	}
}

// Record feeds the outcome of a request back into the breaker.
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.onFailure()
	} else {
		b.onSuccess()
	}
}

func (b *Breaker) onFailure() {
	b.failures++
	b.successes = 0
	b.lastFailure = time.Now()

	switch b.state {
	case StateClosed:
		if b.failures >= b.config.Threshold {
			b.transitionTo(StateOpen)
		}
	case StateHalfOpen:
		// a single failed probe reopens the circuit
		b.transitionTo(StateOpen)
	}
}

func (b *Breaker) onSuccess() {
	b.failures = 0

	if b.state == StateHalfOpen {
		b.successes++
		if b.successes >= b.config.SuccessThreshold {
			b.transitionTo(StateClosed)
		}
	}
}

func (b *Breaker) transitionTo(newState State) {
	oldState := b.state
	b.state = newState
	b.probes = 0

	if newState == StateClosed {
		b.failures = 0
		b.successes = 0
	}

	b.logger.Info("Circuit breaker state changed",
		zap.String("name", b.name),
		zap.String("from", oldState.String()),
		zap.String("to", newState.String()),
	)
}

func (b *Breaker) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

func (b *Breaker) IsOpen() bool {
	return b.State() == StateOpen
}

// Stats exposes breaker internals for the health endpoint.
func (b *Breaker) Stats() map[string]interface{} {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return map[string]interface{}{
		"name":      b.name,
		"state":     b.state.String(),
		"failures":  b.failures,
		"threshold": b.config.Threshold,
	}
}

// Reset forces the breaker closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = StateClosed
	b.failures = 0
	b.successes = 0
	b.probes = 0
}

// BreakerRegistry holds one breaker per upstream host.
type BreakerRegistry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	config   Config
	logger   *zap.Logger
}

func NewBreakerRegistry(config Config, logger *zap.Logger) *BreakerRegistry {
	return &BreakerRegistry{
		breakers: make(map[string]*Breaker),
		config:   config,
		logger:   logger,
	}
}

// GetOrCreate returns the breaker for a name, creating it on first use.
func (r *BreakerRegistry) GetOrCreate(name string) *Breaker {
	r.mu.RLock()
	breaker, exists := r.breakers[name]
	r.mu.RUnlock()

	if exists {
		return breaker
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if breaker, exists = r.breakers[name]; exists {
		return breaker
	}

	breaker = NewBreaker(name, r.config, r.logger)
	r.breakers[name] = breaker
	return breaker
}

// Stats returns stats for all registered breakers.
func (r *BreakerRegistry) Stats() map[string]interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := make(map[string]interface{}, len(r.breakers))
	for name, breaker := range r.breakers {
		stats[name] = breaker.Stats()
	}
	return stats
}
