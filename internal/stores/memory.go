package stores

import (
	"context"
	"sync"
	"time"

	"github.com/krishnakrish0052/payment-router/internal/types"
)

// MemoryConfigStore is an in-memory ConfigStore. The production deployment
// feeds it from the YAML config file; tests feed it directly.
type MemoryConfigStore struct {
	mu        sync.RWMutex
	providers []types.ProviderConfig
	rules     []types.RoutingRule
	err       error
}

func NewMemoryConfigStore(providers []types.ProviderConfig, rules []types.RoutingRule) *MemoryConfigStore {
	return &MemoryConfigStore{providers: providers, rules: rules}
}

func (s *MemoryConfigStore) ListActiveProviderConfigs(ctx context.Context) ([]types.ProviderConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return nil, s.err
	}
	out := make([]types.ProviderConfig, 0, len(s.providers))
	for _, p := range s.providers {
		if p.Active {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *MemoryConfigStore) ListActiveRoutingRules(ctx context.Context) ([]types.RoutingRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return nil, s.err
	}
	out := make([]types.RoutingRule, 0, len(s.rules))
	for _, r := range s.rules {
		if r.Active {
			out = append(out, r)
		}
	}
	return out, nil
}

// SetProviders replaces the stored provider set.
func (s *MemoryConfigStore) SetProviders(providers []types.ProviderConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providers = providers
}

// SetRules replaces the stored rule set.
func (s *MemoryConfigStore) SetRules(rules []types.RoutingRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = rules
}

// SetError makes subsequent reads fail, simulating an unreachable store.
func (s *MemoryConfigStore) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// MemoryHealthStore is an append-only in-memory HealthCheckStore.
type MemoryHealthStore struct {
	mu      sync.RWMutex
	results map[string][]types.HealthCheckResult // providerID -> appended order
	clock   Clock
	err     error
}

func NewMemoryHealthStore(clock Clock) *MemoryHealthStore {
	return &MemoryHealthStore{
		results: make(map[string][]types.HealthCheckResult),
		clock:   clock,
	}
}

func (s *MemoryHealthStore) Append(ctx context.Context, result types.HealthCheckResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.results[result.ProviderID] = append(s.results[result.ProviderID], result)
	return nil
}

func (s *MemoryHealthStore) QueryRecent(ctx context.Context, providerID string, window time.Duration) ([]types.HealthCheckResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return nil, s.err
	}
	cutoff := s.clock.Now().Add(-window)
	history := s.results[providerID]
	out := make([]types.HealthCheckResult, 0, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].CheckedAt.Before(cutoff) {
			continue
		}
		out = append(out, history[i])
	}
	return out, nil
}

func (s *MemoryHealthStore) QueryFailureRate(ctx context.Context, providerID string, window time.Duration) (float64, error) {
	recent, err := s.QueryRecent(ctx, providerID, window)
	if err != nil {
		return 0, err
	}
	if len(recent) == 0 {
		return 0, nil
	}
	failed := 0
	for _, r := range recent {
		if r.Failed() {
			failed++
		}
	}
	return float64(failed) / float64(len(recent)), nil
}

// SetError makes subsequent operations fail, simulating an unreachable store.
func (s *MemoryHealthStore) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// MemoryUsageStore tracks selections in memory and derives response times
// from health-check history.
type MemoryUsageStore struct {
	mu         sync.RWMutex
	selections map[string][]time.Time
	health     *MemoryHealthStore
	clock      Clock
	err        error
}

func NewMemoryUsageStore(health *MemoryHealthStore, clock Clock) *MemoryUsageStore {
	return &MemoryUsageStore{
		selections: make(map[string][]time.Time),
		health:     health,
		clock:      clock,
	}
}

func (s *MemoryUsageStore) RecordSelection(ctx context.Context, providerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.selections[providerID] = append(s.selections[providerID], s.clock.Now())
	return nil
}

func (s *MemoryUsageStore) QueryRecentSelectionCounts(ctx context.Context, window time.Duration) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return nil, s.err
	}
	cutoff := s.clock.Now().Add(-window)
	counts := make(map[string]int, len(s.selections))
	for id, times := range s.selections {
		for _, t := range times {
			if !t.Before(cutoff) {
				counts[id]++
			}
		}
	}
	return counts, nil
}

func (s *MemoryUsageStore) QueryRecentAvgResponseTime(ctx context.Context, window time.Duration) (map[string]float64, error) {
	s.mu.RLock()
	err := s.err
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	s.health.mu.RLock()
	defer s.health.mu.RUnlock()
	cutoff := s.clock.Now().Add(-window)
	averages := make(map[string]float64)
	for id, history := range s.health.results {
		var total float64
		var samples int
		for _, r := range history {
			if r.CheckedAt.Before(cutoff) {
				continue
			}
			total += float64(r.ResponseTime.Milliseconds())
			samples++
		}
		if samples > 0 {
			averages[id] = total / float64(samples)
		}
	}
	return averages, nil
}

// SetError makes subsequent operations fail, simulating an unreachable store.
func (s *MemoryUsageStore) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// SegmentThresholds configures the user-segment cutoffs. The dollar amounts
// are historical defaults, not load-bearing business rules.
type SegmentThresholds struct {
	VIPLifetimeAmount     float64
	VIPPaymentCount       int
	RegularLifetimeAmount float64
	RegularPaymentCount   int
}

// DefaultSegmentThresholds mirrors the historical cutoffs: vip at $1000
// lifetime or more than 10 completed payments, regular at $100 or more
// than 2.
func DefaultSegmentThresholds() SegmentThresholds {
	return SegmentThresholds{
		VIPLifetimeAmount:     1000,
		VIPPaymentCount:       10,
		RegularLifetimeAmount: 100,
		RegularPaymentCount:   2,
	}
}

// UserHistory is the per-user aggregate the segment computation reads.
type UserHistory struct {
	LifetimeAmount    float64
	CompletedPayments int
}

// MemoryUserStore derives user segments from recorded payment history.
type MemoryUserStore struct {
	mu         sync.RWMutex
	history    map[string]UserHistory
	thresholds SegmentThresholds
}

func NewMemoryUserStore(thresholds SegmentThresholds) *MemoryUserStore {
	return &MemoryUserStore{
		history:    make(map[string]UserHistory),
		thresholds: thresholds,
	}
}

func (s *MemoryUserStore) GetUserSegment(ctx context.Context, userID string) (types.UserSegment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h := s.history[userID]
	switch {
	case h.LifetimeAmount >= s.thresholds.VIPLifetimeAmount || h.CompletedPayments > s.thresholds.VIPPaymentCount:
		return types.SegmentVIP, nil
	case h.LifetimeAmount >= s.thresholds.RegularLifetimeAmount || h.CompletedPayments > s.thresholds.RegularPaymentCount:
		return types.SegmentRegular, nil
	default:
		return types.SegmentNew, nil
	}
}

// SetHistory records a user's payment aggregate.
func (s *MemoryUserStore) SetHistory(userID string, history UserHistory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[userID] = history
}

// MemorySwitchStore is an in-memory ProviderSwitchEvent audit trail.
type MemorySwitchStore struct {
	mu     sync.RWMutex
	events []types.ProviderSwitchEvent
	clock  Clock
}

func NewMemorySwitchStore(clock Clock) *MemorySwitchStore {
	return &MemorySwitchStore{clock: clock}
}

func (s *MemorySwitchStore) AppendSwitchEvent(ctx context.Context, event types.ProviderSwitchEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *MemorySwitchStore) QuerySwitchReasons(ctx context.Context, window time.Duration) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cutoff := s.clock.Now().Add(-window)
	reasons := make(map[string]int)
	for _, e := range s.events {
		if e.OccurredAt.Before(cutoff) {
			continue
		}
		reasons[e.Reason]++
	}
	return reasons, nil
}

// Events returns a copy of the recorded audit trail.
func (s *MemorySwitchStore) Events() []types.ProviderSwitchEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.ProviderSwitchEvent, len(s.events))
	copy(out, s.events)
	return out
}
