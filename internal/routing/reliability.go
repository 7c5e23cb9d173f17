package routing

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/krishnakrish0052/payment-router/internal/stores"
	"github.com/krishnakrish0052/payment-router/internal/types"
)

// ReliabilityThresholds configures when a provider is considered unreliable.
// A provider is dropped when either threshold is breached.
type ReliabilityThresholds struct {
	MaxConsecutiveFailures int
	MaxFailureRate         float64
	Window                 time.Duration
}

// DefaultReliabilityThresholds: 3 consecutive failures or a 15% failure
// rate over the trailing 30 minutes.
func DefaultReliabilityThresholds() ReliabilityThresholds {
	return ReliabilityThresholds{
		MaxConsecutiveFailures: 3,
		MaxFailureRate:         0.15,
		Window:                 30 * time.Minute,
	}
}

// ReliabilityVerdict is the outcome of evaluating a provider's recent
// health-check history.
type ReliabilityVerdict struct {
	Reliable            bool
	ConsecutiveFailures int
	FailureRate         float64
	Reason              string
}

// EvaluateReliability applies the thresholds to health-check results ordered
// most recent first. It is pure decision logic: fetching the results is the
// caller's concern.
func EvaluateReliability(results []types.HealthCheckResult, thresholds ReliabilityThresholds) ReliabilityVerdict {
	verdict := ReliabilityVerdict{Reliable: true}
	if len(results) == 0 {
		return verdict
	}

	// Trailing failures before the first non-fail result, capped at the
	// threshold; no need to scan further.
	for _, r := range results {
		if !r.Failed() {
			break
		}
		verdict.ConsecutiveFailures++
		if verdict.ConsecutiveFailures >= thresholds.MaxConsecutiveFailures {
			break
		}
	}

	failed := 0
	for _, r := range results {
		if r.Failed() {
			failed++
		}
	}
	verdict.FailureRate = float64(failed) / float64(len(results))

	if verdict.ConsecutiveFailures >= thresholds.MaxConsecutiveFailures {
		verdict.Reliable = false
		verdict.Reason = "consecutive failure threshold breached"
	} else if verdict.FailureRate > thresholds.MaxFailureRate {
		verdict.Reliable = false
		verdict.Reason = "failure rate threshold breached"
	}
	return verdict
}

// ReliabilityFilter drops providers whose recent health-check history
// breaches the reliability thresholds.
type ReliabilityFilter struct {
	store      stores.HealthCheckStore
	thresholds ReliabilityThresholds
	logger     *logrus.Logger
}

func NewReliabilityFilter(store stores.HealthCheckStore, thresholds ReliabilityThresholds, logger *logrus.Logger) *ReliabilityFilter {
	if thresholds.MaxConsecutiveFailures <= 0 {
		thresholds.MaxConsecutiveFailures = DefaultReliabilityThresholds().MaxConsecutiveFailures
	}
	if thresholds.MaxFailureRate <= 0 {
		thresholds.MaxFailureRate = DefaultReliabilityThresholds().MaxFailureRate
	}
	if thresholds.Window <= 0 {
		thresholds.Window = DefaultReliabilityThresholds().Window
	}
	return &ReliabilityFilter{store: store, thresholds: thresholds, logger: logger}
}

// FilterUnreliable returns the candidates whose health-check history passes
// the thresholds. When history cannot be fetched the filter fails open and
// keeps the provider: excluding everything on a store outage would be a
// worse failure than routing to an unverified provider.
func (f *ReliabilityFilter) FilterUnreliable(ctx context.Context, candidates []types.ProviderConfig) []types.ProviderConfig {
	out := candidates[:0:0]
	for _, p := range candidates {
		results, err := f.store.QueryRecent(ctx, p.ID, f.thresholds.Window)
		if err != nil {
			f.logger.WithError(err).WithField("provider", p.ID).
				Warn("Health history unavailable, keeping provider (fail open)")
			out = append(out, p)
			continue
		}

		verdict := EvaluateReliability(results, f.thresholds)
		if !verdict.Reliable {
			f.logger.WithFields(logrus.Fields{
				"provider":             p.ID,
				"consecutive_failures": verdict.ConsecutiveFailures,
				"failure_rate":         verdict.FailureRate,
				"reason":               verdict.Reason,
			}).Info("Provider excluded as unreliable")
			continue
		}
		out = append(out, p)
	}
	return out
}
