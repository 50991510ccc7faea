package eventbus

import (
	"context"
	"log"
	"sync"
	"time"
)

// =============================================================================
// LOGGING ROUTER
// =============================================================================

// LoggingRouter is a Router that logs every dispatch that passes
// through it.
type LoggingRouter struct {
	order int
}

// NewLoggingRouter creates a LoggingRouter at the given chain position.
func NewLoggingRouter(order int) *LoggingRouter {
	return &LoggingRouter{order: order}
}

func (r *LoggingRouter) Order() int { return r.order }

func (r *LoggingRouter) Route(ctx context.Context, ev RouterEvent, forward ForwardFunc) ([]HandlerResult, error) {
	log.Printf("eventbus: dispatch address=%v queued=%v", ev.Address, ev.Queued)
	results, err := forward(ctx, ev.Args)
	if err != nil {
		log.Printf("eventbus: dispatch address=%v failed: %v", ev.Address, err)
	} else {
		log.Printf("eventbus: dispatch address=%v completed with %d result(s)", ev.Address, len(results))
	}
	return results, err
}

// =============================================================================
// CIRCUIT BREAKER ROUTER
// =============================================================================

type circuitState struct {
	failures    int
	lastFailure time.Time
	state       string // "closed", "open", "half-open"
}

// CircuitBreakerRouter protects an address from cascading handler
// failures: a dispatch fails when forwarding returns an error or any
// handler's HandlerResult carries one. After failureThreshold
// consecutive failed dispatches it opens and
// blocks further dispatch to that address until resetTimeout elapses,
// then allows one half-open trial before closing again.
type CircuitBreakerRouter struct {
	order            int
	failureThreshold int
	resetTimeout     time.Duration
	excluded         map[any]struct{}

	mu     sync.Mutex
	states map[any]*circuitState
}

// NewCircuitBreakerRouter creates a CircuitBreakerRouter. excludedAddresses
// bypass the breaker entirely.
func NewCircuitBreakerRouter(order, failureThreshold int, resetTimeout time.Duration, excludedAddresses ...any) *CircuitBreakerRouter {
	excluded := make(map[any]struct{}, len(excludedAddresses))
	for _, a := range excludedAddresses {
		excluded[a] = struct{}{}
	}
	return &CircuitBreakerRouter{
		order:            order,
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		excluded:         excluded,
		states:           make(map[any]*circuitState),
	}
}

func (r *CircuitBreakerRouter) Order() int { return r.order }

func (r *CircuitBreakerRouter) stateFor(address any) *circuitState {
	s, ok := r.states[address]
	if !ok {
		s = &circuitState{state: "closed"}
		r.states[address] = s
	}
	return s
}

func (r *CircuitBreakerRouter) Route(ctx context.Context, ev RouterEvent, forward ForwardFunc) ([]HandlerResult, error) {
	if _, skip := r.excluded[ev.Address]; skip {
		return forward(ctx, ev.Args)
	}

	r.mu.Lock()
	s := r.stateFor(ev.Address)
	now := time.Now()
	if s.state == "open" {
		if now.Sub(s.lastFailure) >= r.resetTimeout {
			s.state = "half-open"
		} else {
			r.mu.Unlock()
			return nil, nil
		}
	}
	r.mu.Unlock()

	results, err := forward(ctx, ev.Args)
	failed := err != nil
	for _, res := range results {
		if res.Err != nil {
			failed = true
			break
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	s = r.stateFor(ev.Address)
	if failed {
		s.failures++
		s.lastFailure = time.Now()
		if s.state == "half-open" {
			s.state = "open"
		} else if r.failureThreshold > 0 && s.failures >= r.failureThreshold {
			s.state = "open"
		}
	} else {
		if s.state == "half-open" {
			s.state = "closed"
		}
		s.failures = 0
	}
	return results, err
}

// States returns the current breaker state per address, for
// introspection and tests.
func (r *CircuitBreakerRouter) States() map[any]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[any]string, len(r.states))
	for k, v := range r.states {
		out[k] = v.state
	}
	return out
}

// Reset clears breaker state for address, or for every address if
// address is nil.
func (r *CircuitBreakerRouter) Reset(address any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if address == nil {
		r.states = make(map[any]*circuitState)
		return
	}
	delete(r.states, address)
}
