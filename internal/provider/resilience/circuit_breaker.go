// Package resilience wraps calls to the geodata and geolocation upstreams
// with circuit breakers, retries and health tracking.
package resilience

import (
	"time"

	"github.com/sony/gobreaker/v2"
)

// TripPolicy decides when a provider's circuit opens.
type TripPolicy struct {
	// MinRequests is the sample size needed before FailureRatio applies.
	MinRequests uint32

	// FailureRatio opens the circuit once this share of requests failed.
	FailureRatio float64

	// ConsecutiveFailures opens the circuit after this many failures in a
	// row regardless of sample size. Zero disables the check.
	ConsecutiveFailures uint32
}

// DefaultTripPolicy suits viewport traffic: a burst of pans produces enough
// samples for the ratio, and a quiet upstream outage still trips on the
// consecutive count.
var DefaultTripPolicy = TripPolicy{
	MinRequests:         5,
	FailureRatio:        0.5,
	ConsecutiveFailures: 5,
}

// ReadyToTrip implements gobreaker's Settings.ReadyToTrip.
func (p TripPolicy) ReadyToTrip(counts gobreaker.Counts) bool {
	if p.ConsecutiveFailures > 0 && counts.ConsecutiveFailures >= p.ConsecutiveFailures {
		return true
	}
	if counts.Requests == 0 || counts.Requests < p.MinRequests {
		return false
	}
	return float64(counts.TotalFailures)/float64(counts.Requests) >= p.FailureRatio
}

// DefaultReadyToTrip applies DefaultTripPolicy.
func DefaultReadyToTrip(counts gobreaker.Counts) bool {
	return DefaultTripPolicy.ReadyToTrip(counts)
}

// CircuitBreakerConfig holds configuration for the circuit breaker.
type CircuitBreakerConfig struct {
	// Name identifies the circuit breaker in logs and health reports.
	Name string

	// MaxRequests is the number of probes allowed while half-open.
	MaxRequests uint32

	// Interval clears the closed-state counts periodically, so failures
	// from an earlier burst do not count against a recovered upstream.
	Interval time.Duration

	// Timeout is how long the circuit stays open before probing.
	Timeout time.Duration

	// ReadyToTrip overrides Policy when set.
	ReadyToTrip func(counts gobreaker.Counts) bool

	// Policy is used when ReadyToTrip is nil.
	Policy TripPolicy

	// OnStateChange is called on every transition, after the registry
	// has recorded it.
	OnStateChange func(name string, from gobreaker.State, to gobreaker.State)
}

// DefaultCircuitBreakerConfig returns the configuration used by the
// upstream clients.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:        name,
		MaxRequests: 1,
		Interval:    2 * time.Minute,
		Timeout:     30 * time.Second,
		Policy:      DefaultTripPolicy,
	}
}

// NewCircuitBreaker creates a circuit breaker from cfg.
func NewCircuitBreaker[T any](cfg CircuitBreakerConfig) *gobreaker.CircuitBreaker[T] {
	readyToTrip := cfg.ReadyToTrip
	if readyToTrip == nil {
		policy := cfg.Policy
		if policy == (TripPolicy{}) {
			policy = DefaultTripPolicy
		}
		readyToTrip = policy.ReadyToTrip
	}

	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:          cfg.Name,
		MaxRequests:   cfg.MaxRequests,
		Interval:      cfg.Interval,
		Timeout:       cfg.Timeout,
		ReadyToTrip:   readyToTrip,
		OnStateChange: cfg.OnStateChange,
	})
}
