package database

import (
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerPolicy decides when a dependency breaker opens and how long it stays
// open. Deep-health probes and outcome publishing fail fast while open.
type BreakerPolicy struct {
	// Failures is the number of consecutive failures that opens the breaker.
	Failures uint32
	// OpenFor is how long the breaker rejects calls before a trial call.
	OpenFor time.Duration
}

// DefaultBreakerPolicy opens after 3 consecutive failures for 30 seconds.
var DefaultBreakerPolicy = BreakerPolicy{Failures: 3, OpenFor: 30 * time.Second}

// NewCircuitBreaker returns a breaker for the named dependency using
// DefaultBreakerPolicy.
func NewCircuitBreaker(name string) *gobreaker.CircuitBreaker {
	return DefaultBreakerPolicy.New(name)
}

// New returns a breaker for the named dependency. A single trial call is let
// through when half-open; state changes are logged at warn.
func (p BreakerPolicy) New(name string) *gobreaker.CircuitBreaker {
	failures := p.Failures
	if failures == 0 {
		failures = DefaultBreakerPolicy.Failures
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     p.OpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("dependency circuit breaker changed state",
				"dependency", name, "from", from.String(), "to", to.String())
		},
	})
}
