package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/jonwraymond/jatpclient/autherr"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed lets every call through.
	StateClosed State = iota
	// StateOpen rejects calls until ResetTimeout has passed.
	StateOpen
	// StateHalfOpen admits a limited number of probe calls.
	StateHalfOpen
)

var stateNames = map[State]string{
	StateClosed:   "closed",
	StateOpen:     "open",
	StateHalfOpen: "half-open",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// CircuitBreakerConfig configures the circuit breaker.
type CircuitBreakerConfig struct {
	// MaxFailures is the number of consecutive connection failures that
	// open the circuit.
	// Default: 5
	MaxFailures int

	// ResetTimeout is how long the circuit stays open before probing.
	// Default: 30 seconds
	ResetTimeout time.Duration

	// HalfOpenMaxRequests is how many probes may run while half-open.
	// Default: 1
	HalfOpenMaxRequests int

	// OnStateChange observes transitions. It runs after the breaker's lock
	// is released, so it may call back into the breaker.
	OnStateChange func(from, to State)

	// IsFailure decides whether an outcome counts against the service.
	// Default: autherr.IsConnection. Wire errors such as AUTH_FAILED prove
	// the service is reachable and do not trip the breaker.
	IsFailure func(err error) bool

	// Now is the clock used for the reset timeout.
	// Default: time.Now
	Now func() time.Time
}

// CircuitBreakerMetrics is a point-in-time view of a breaker.
type CircuitBreakerMetrics struct {
	State       State
	Failures    int
	Successes   int
	LastFailure time.Time
	// RetryAt is when an open circuit admits its next probe.
	RetryAt time.Time
}

// CircuitBreaker stops calls to an auth service that keeps failing at the
// transport level, then probes it again after ResetTimeout.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu          sync.Mutex
	state       State
	failures    int
	successes   int
	probes      int
	lastFailure time.Time
	openedAt    time.Time
}

// NewCircuitBreaker creates a closed circuit breaker.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.MaxFailures <= 0 {
		config.MaxFailures = 5
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = 30 * time.Second
	}
	if config.HalfOpenMaxRequests <= 0 {
		config.HalfOpenMaxRequests = 1
	}
	if config.IsFailure == nil {
		config.IsFailure = autherr.IsConnection
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &CircuitBreaker{cfg: config}
}

// Execute runs op unless the circuit rejects it. A rejection returns
// ErrCircuitOpen carrying a retry_after detail in seconds.
func (cb *CircuitBreaker) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	err := op(ctx)
	cb.record(err)
	return err
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() State {
	return cb.Metrics().State
}

// Metrics returns current circuit breaker metrics.
func (cb *CircuitBreaker) Metrics() CircuitBreakerMetrics {
	cb.mu.Lock()
	var moves []transition
	cb.tickLocked(&moves)
	m := CircuitBreakerMetrics{
		State:       cb.state,
		Failures:    cb.failures,
		Successes:   cb.successes,
		LastFailure: cb.lastFailure,
	}
	if cb.state == StateOpen {
		m.RetryAt = cb.openedAt.Add(cb.cfg.ResetTimeout)
	}
	cb.mu.Unlock()

	cb.notify(moves)
	return m
}

// Reset closes the circuit and forgets past failures.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	var moves []transition
	cb.moveLocked(StateClosed, &moves)
	cb.failures, cb.successes, cb.probes = 0, 0, 0
	cb.mu.Unlock()

	cb.notify(moves)
}

type transition struct{ from, to State }

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	var moves []transition
	cb.tickLocked(&moves)

	var err error
	switch cb.state {
	case StateOpen:
		err = cb.rejectionLocked()
	case StateHalfOpen:
		if cb.probes >= cb.cfg.HalfOpenMaxRequests {
			err = cb.rejectionLocked()
		} else {
			cb.probes++
		}
	}
	cb.mu.Unlock()

	cb.notify(moves)
	return err
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	var moves []transition

	if cb.cfg.IsFailure(err) {
		now := cb.cfg.Now()
		cb.lastFailure = now
		cb.failures++
		if cb.state == StateHalfOpen || cb.failures >= cb.cfg.MaxFailures {
			cb.openedAt = now
			cb.moveLocked(StateOpen, &moves)
		}
	} else {
		cb.successes++
		cb.failures = 0
		if cb.state == StateHalfOpen {
			cb.successes = 0
			cb.moveLocked(StateClosed, &moves)
		}
	}
	cb.mu.Unlock()

	cb.notify(moves)
}

// tickLocked moves an open circuit to half-open once the timeout passed.
func (cb *CircuitBreaker) tickLocked(moves *[]transition) {
	if cb.state != StateOpen {
		return
	}
	if cb.cfg.Now().Sub(cb.openedAt) >= cb.cfg.ResetTimeout {
		cb.probes = 0
		cb.moveLocked(StateHalfOpen, moves)
	}
}

func (cb *CircuitBreaker) moveLocked(to State, moves *[]transition) {
	if cb.state == to {
		return
	}
	*moves = append(*moves, transition{cb.state, to})
	cb.state = to
}

func (cb *CircuitBreaker) rejectionLocked() error {
	wait := cb.openedAt.Add(cb.cfg.ResetTimeout).Sub(cb.cfg.Now())
	secs := int64(wait.Round(time.Second) / time.Second)
	return autherr.Wrap(autherr.KindConnection, ErrCircuitOpen, "").WithDetails(map[string]any{
		"retry_after": max(secs, 0),
	})
}

func (cb *CircuitBreaker) notify(moves []transition) {
	if cb.cfg.OnStateChange == nil {
		return
	}
	for _, m := range moves {
		cb.cfg.OnStateChange(m.from, m.to)
	}
}
