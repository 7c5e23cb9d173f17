package routing

import "fmt"

// NoEligibleProviderError means filtering or failover exhausted the
// candidate set. Callers must not attempt payment creation when they see it.
type NoEligibleProviderError struct {
	Reason   string
	Attempts int
}

func (e *NoEligibleProviderError) Error() string {
	if e.Attempts > 0 {
		return fmt.Sprintf("no eligible payment provider after %d attempts: %s", e.Attempts, e.Reason)
	}
	return fmt.Sprintf("no eligible payment provider: %s", e.Reason)
}

// StatsUnavailableError means the usage store backing a stats-driven
// balancing strategy could not be reached. The balancer absorbs it by
// falling back to weighted selection.
type StatsUnavailableError struct {
	Strategy Strategy
	Err      error
}

func (e *StatsUnavailableError) Error() string {
	return fmt.Sprintf("usage stats unavailable for %s strategy: %v", e.Strategy, e.Err)
}

func (e *StatsUnavailableError) Unwrap() error { return e.Err }
