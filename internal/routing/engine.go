package routing

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/krishnakrish0052/payment-router/internal/registry"
	"github.com/krishnakrish0052/payment-router/internal/stores"
	"github.com/krishnakrish0052/payment-router/internal/types"
)

// EngineConfig tunes the selection pipeline. Zero values fall back to the
// defaults below.
type EngineConfig struct {
	Strategy Strategy
	// MaxAttempts bounds the total selection attempts, including the first.
	MaxAttempts int
	// RecentFailureWindow bounds how far back the availability check looks
	// for the most recent health result.
	RecentFailureWindow time.Duration
	// SelectionBudget caps the wall time a single GetOptimalProvider call
	// may spend, retries included.
	SelectionBudget time.Duration
}

const (
	DefaultMaxAttempts         = 3
	DefaultRecentFailureWindow = 30 * time.Minute
	DefaultSelectionBudget     = 5 * time.Second
)

func (c EngineConfig) withDefaults() EngineConfig {
	if c.Strategy == "" {
		c.Strategy = DefaultStrategy
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.RecentFailureWindow <= 0 {
		c.RecentFailureWindow = DefaultRecentFailureWindow
	}
	if c.SelectionBudget <= 0 {
		c.SelectionBudget = DefaultSelectionBudget
	}
	return c
}

// selectionState is the explicit state of the failover controller.
type selectionState int

const (
	stateFiltering selectionState = iota
	stateSelecting
	stateCheckingAvailability
	stateConfirmed
	stateRetrying
	stateExhausted
)

// Engine composes the registry, rule engine, reliability filter and load
// balancer into the provider selection pipeline, and owns the bounded
// failover loop around them.
type Engine struct {
	registry    *registry.Registry
	rules       *RuleEngine
	reliability *ReliabilityFilter
	balancer    *Balancer
	health      stores.HealthCheckStore
	usage       stores.UsageStore
	switches    stores.SwitchStore
	clock       stores.Clock
	logger      *logrus.Logger
	cfg         EngineConfig
}

// NewEngine creates an engine with explicit dependencies so tests can
// substitute fakes for every collaborator.
func NewEngine(
	reg *registry.Registry,
	rules *RuleEngine,
	reliability *ReliabilityFilter,
	balancer *Balancer,
	health stores.HealthCheckStore,
	usage stores.UsageStore,
	switches stores.SwitchStore,
	clock stores.Clock,
	logger *logrus.Logger,
	cfg EngineConfig,
) *Engine {
	return &Engine{
		registry:    reg,
		rules:       rules,
		reliability: reliability,
		balancer:    balancer,
		health:      health,
		usage:       usage,
		switches:    switches,
		clock:       clock,
		logger:      logger,
		cfg:         cfg.withDefaults(),
	}
}

// GetOptimalProvider selects the single provider that should handle the
// transaction. Filtering runs once; on availability failures the candidate
// set shrinks and selection retries, bounded by MaxAttempts.
func (e *Engine) GetOptimalProvider(ctx context.Context, tx types.TransactionContext) (types.ProviderConfig, *SelectionDecision, error) {
	start := e.clock.Now()
	ctx, cancel := context.WithTimeout(ctx, e.cfg.SelectionBudget)
	defer cancel()

	decision := &SelectionDecision{
		Strategy:          e.cfg.Strategy,
		RejectedProviders: make(map[string]string),
		Timestamp:         start,
	}

	if err := e.registry.Refresh(ctx, false); err != nil {
		// Empty cache and unreachable store: nothing to select from.
		return types.ProviderConfig{}, nil, err
	}

	var (
		candidates []types.ProviderConfig
		selected   types.ProviderConfig
		previous   string
		attempts   int
	)

	state := stateFiltering
	for {
		if ctx.Err() != nil {
			return types.ProviderConfig{}, nil, &NoEligibleProviderError{
				Reason:   fmt.Sprintf("selection budget exceeded: %v", ctx.Err()),
				Attempts: attempts,
			}
		}

		switch state {
		case stateFiltering:
			active := e.registry.ListActive()
			if len(active) == 0 {
				return types.ProviderConfig{}, nil, &NoEligibleProviderError{Reason: "no active providers configured"}
			}
			candidates = filterSupported(active, tx)
			candidates = e.rules.Apply(ctx, candidates, e.registry.ActiveRules(), tx)
			candidates = e.reliability.FilterUnreliable(ctx, candidates)
			if len(candidates) == 0 {
				return types.ProviderConfig{}, nil, &NoEligibleProviderError{Reason: "all providers filtered out"}
			}
			decision.ConsideredProviders = providerIDs(candidates)
			state = stateSelecting

		case stateSelecting:
			if attempts >= e.cfg.MaxAttempts {
				state = stateExhausted
				continue
			}
			attempts++
			decision.AttemptCount = attempts

			p, err := e.balancer.Select(ctx, candidates, e.cfg.Strategy)
			if err != nil {
				state = stateExhausted
				continue
			}
			selected = p
			state = stateCheckingAvailability

		case stateCheckingAvailability:
			if reason, available := e.checkAvailability(ctx, selected); !available {
				decision.RejectedProviders[selected.ID] = reason
				e.logger.WithFields(logrus.Fields{
					"provider": selected.ID,
					"reason":   reason,
					"attempt":  attempts,
				}).Warn("Selected provider unavailable, failing over")
				state = stateRetrying
				continue
			}
			state = stateConfirmed

		case stateRetrying:
			if previous == "" {
				previous = selected.ID
			}
			candidates = removeProvider(candidates, selected.ID)
			if len(candidates) == 0 {
				state = stateExhausted
				continue
			}
			decision.FailoverUsed = true
			state = stateSelecting

		case stateConfirmed:
			if decision.FailoverUsed {
				e.recordSwitch(ctx, previous, selected.ID, "failover:"+decision.RejectedProviders[previous], tx)
			}
			if err := e.usage.RecordSelection(ctx, selected.ID); err != nil {
				e.logger.WithError(err).WithField("provider", selected.ID).Debug("Failed to record selection")
			}

			decision.SelectedProvider = selected.ID
			decision.ProcessingTime = e.clock.Now().Sub(start)
			decision.Reasoning = append(decision.Reasoning,
				fmt.Sprintf("%s strategy selected %s from %d eligible providers", e.cfg.Strategy, selected.ID, len(decision.ConsideredProviders)))
			if decision.FailoverUsed {
				decision.Reasoning = append(decision.Reasoning,
					fmt.Sprintf("failover engaged after %d attempts", attempts))
			}

			e.logger.WithFields(logrus.Fields{
				"provider":      selected.ID,
				"strategy":      e.cfg.Strategy,
				"attempts":      attempts,
				"failover_used": decision.FailoverUsed,
				"duration_ms":   decision.ProcessingTime.Milliseconds(),
			}).Info("Provider selected")
			return selected, decision, nil

		case stateExhausted:
			return types.ProviderConfig{}, nil, &NoEligibleProviderError{
				Reason:   "no available provider within retry budget",
				Attempts: attempts,
			}
		}
	}
}

// checkAvailability confirms the chosen provider can actually take traffic:
// not in maintenance, and its single most recent health check inside the
// window is not a failure.
func (e *Engine) checkAvailability(ctx context.Context, p types.ProviderConfig) (string, bool) {
	if p.HealthState == types.HealthMaintenance {
		return "maintenance", false
	}

	recent, err := e.health.QueryRecent(ctx, p.ID, e.cfg.RecentFailureWindow)
	if err != nil {
		// Availability cannot be verified; the reliability filter already
		// failed open for the same outage, so selection proceeds.
		e.logger.WithError(err).WithField("provider", p.ID).Warn("Availability check degraded, assuming available")
		return "", true
	}
	if len(recent) > 0 && recent[0].Failed() {
		return "recent_failure", false
	}
	return "", true
}

// RecordProviderSwitch appends a switch event to the audit trail. The event
// is write-only; routing never reads it back.
func (e *Engine) RecordProviderSwitch(ctx context.Context, from, to, reason string, tx types.TransactionContext) {
	e.recordSwitch(ctx, from, to, reason, tx)
}

func (e *Engine) recordSwitch(ctx context.Context, from, to, reason string, tx types.TransactionContext) {
	event := types.ProviderSwitchEvent{
		ID:           uuid.NewString(),
		FromProvider: from,
		ToProvider:   to,
		Reason:       reason,
		Context:      tx,
		OccurredAt:   e.clock.Now(),
	}
	if err := e.switches.AppendSwitchEvent(ctx, event); err != nil {
		e.logger.WithError(err).WithFields(logrus.Fields{
			"from": from,
			"to":   to,
		}).Warn("Failed to record provider switch")
		return
	}
	e.logger.WithFields(logrus.Fields{
		"from":   from,
		"to":     to,
		"reason": reason,
	}).Info("Provider switch recorded")
}

// SwitchStat is one aggregated row of the switching audit trail.
type SwitchStat struct {
	Reason string `json:"reason"`
	Count  int    `json:"count"`
}

// GetSwitchingStats aggregates switch events by reason over a named time
// range ("1h", "24h" or "7d").
func (e *Engine) GetSwitchingStats(ctx context.Context, timeRange string) ([]SwitchStat, error) {
	var window time.Duration
	switch timeRange {
	case "1h":
		window = time.Hour
	case "24h", "":
		window = 24 * time.Hour
	case "7d":
		window = 7 * 24 * time.Hour
	default:
		return nil, fmt.Errorf("unknown time range %q", timeRange)
	}

	reasons, err := e.switches.QuerySwitchReasons(ctx, window)
	if err != nil {
		return nil, fmt.Errorf("failed to query switch reasons: %w", err)
	}

	stats := make([]SwitchStat, 0, len(reasons))
	for reason, count := range reasons {
		stats = append(stats, SwitchStat{Reason: reason, Count: count})
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Count != stats[j].Count {
			return stats[i].Count > stats[j].Count
		}
		return stats[i].Reason < stats[j].Reason
	})
	return stats, nil
}

// filterSupported drops providers whose own currency or country support
// sets exclude the transaction, before any configured rules run.
func filterSupported(candidates []types.ProviderConfig, tx types.TransactionContext) []types.ProviderConfig {
	out := candidates[:0:0]
	for _, p := range candidates {
		if p.SupportsCurrency(tx.Currency) && p.SupportsCountry(tx.Country) {
			out = append(out, p)
		}
	}
	return out
}

func providerIDs(providers []types.ProviderConfig) []string {
	ids := make([]string, len(providers))
	for i, p := range providers {
		ids[i] = p.ID
	}
	return ids
}

func removeProvider(providers []types.ProviderConfig, id string) []types.ProviderConfig {
	out := providers[:0:0]
	for _, p := range providers {
		if p.ID != id {
			out = append(out, p)
		}
	}
	return out
}
