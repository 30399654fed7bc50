package circuitbreaker

import (
	"sync"
	"time"
)

// Registry hands out one breaker per tracking sender.
type Registry struct {
	mutex         sync.RWMutex
	breakers      map[string]*CircuitBreaker
	threshold     int
	timeout       time.Duration
	onStateChange StateChangeFunc
}

func NewRegistry(threshold int, timeout time.Duration) *Registry {
	return &Registry{
		breakers:  make(map[string]*CircuitBreaker),
		threshold: threshold,
		timeout:   timeout,
	}
}

// OnStateChange sets the observer installed on breakers created afterwards.
func (r *Registry) OnStateChange(fn StateChangeFunc) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.onStateChange = fn
}

func (r *Registry) GetBreaker(name string) *CircuitBreaker {
	r.mutex.RLock()
	cb, exists := r.breakers[name]
	r.mutex.RUnlock()

	if exists {
		return cb
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	// another goroutine may have created it
	if cb, exists = r.breakers[name]; exists {
		return cb
	}

	cb = NewCircuitBreaker(name, r.threshold, r.timeout)
	cb.onStateChange = r.onStateChange
	r.breakers[name] = cb
	return cb
}

func (r *Registry) Stats() map[string]State {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	stats := make(map[string]State, len(r.breakers))
	for name, cb := range r.breakers {
		stats[name] = cb.State()
	}
	return stats
}
