package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/krishnakrish0052/payment-router/internal/stores"
	"github.com/krishnakrish0052/payment-router/internal/types"
)

// DefaultRefreshInterval is how long a cached snapshot stays fresh.
const DefaultRefreshInterval = 5 * time.Minute

// ConfigUnavailableError indicates the config store could not be reached and
// no cached snapshot exists to serve instead.
type ConfigUnavailableError struct {
	Err error
}

func (e *ConfigUnavailableError) Error() string {
	return fmt.Sprintf("provider configuration unavailable: %v", e.Err)
}

func (e *ConfigUnavailableError) Unwrap() error { return e.Err }

// snapshot is an immutable view of the config store, replaced wholesale on
// refresh so readers never observe a partial update.
type snapshot struct {
	providers   []types.ProviderConfig
	rules       []types.RoutingRule
	refreshedAt time.Time
}

// Registry caches active provider configurations and routing rules,
// refreshing them from the config store at a bounded rate. When the store is
// unreachable it keeps serving the last-known-good snapshot.
type Registry struct {
	store    stores.ConfigStore
	clock    stores.Clock
	logger   *logrus.Logger
	interval time.Duration

	mu      sync.RWMutex
	current *snapshot

	group singleflight.Group

	// health states observed by the runner, overlaid on the snapshot
	healthMu     sync.RWMutex
	healthStates map[string]types.HealthState
}

// New creates a registry. A non-positive interval falls back to the default.
func New(store stores.ConfigStore, clock stores.Clock, logger *logrus.Logger, interval time.Duration) *Registry {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &Registry{
		store:        store,
		clock:        clock,
		logger:       logger,
		interval:     interval,
		healthStates: make(map[string]types.HealthState),
	}
}

// Refresh reloads configuration from the store unless the cached snapshot is
// still fresh and force is false. Concurrent refreshes are deduplicated so
// the store sees at most one in-flight load.
func (r *Registry) Refresh(ctx context.Context, force bool) error {
	r.mu.RLock()
	current := r.current
	r.mu.RUnlock()

	if !force && current != nil && r.clock.Now().Sub(current.refreshedAt) < r.interval {
		return nil
	}

	_, err, _ := r.group.Do("refresh", func() (interface{}, error) {
		return nil, r.load(ctx)
	})
	if err == nil {
		return nil
	}

	// Degraded refresh: keep serving the stale snapshot if we have one.
	r.mu.RLock()
	cached := r.current
	r.mu.RUnlock()
	if cached != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{
			"cached_providers": len(cached.providers),
			"cache_age":        r.clock.Now().Sub(cached.refreshedAt).String(),
		}).Warn("Config refresh failed, serving last-known-good provider set")
		return nil
	}
	return &ConfigUnavailableError{Err: err}
}

func (r *Registry) load(ctx context.Context) error {
	providers, err := r.store.ListActiveProviderConfigs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list provider configs: %w", err)
	}
	rules, err := r.store.ListActiveRoutingRules(ctx)
	if err != nil {
		return fmt.Errorf("failed to list routing rules: %w", err)
	}

	// Inactive configs never enter a snapshot, whatever the store returns.
	active := make([]types.ProviderConfig, 0, len(providers))
	for _, p := range providers {
		if p.Active {
			active = append(active, p)
		}
	}

	next := &snapshot{
		providers:   active,
		rules:       rules,
		refreshedAt: r.clock.Now(),
	}

	r.mu.Lock()
	r.current = next
	r.mu.Unlock()

	r.logger.WithFields(logrus.Fields{
		"providers": len(active),
		"rules":     len(rules),
	}).Debug("Provider registry refreshed")
	return nil
}

// ListActive returns the cached active provider configurations with the
// runner's health-state observations applied. The returned slice is a copy.
func (r *Registry) ListActive() []types.ProviderConfig {
	r.mu.RLock()
	current := r.current
	r.mu.RUnlock()
	if current == nil {
		return nil
	}

	out := make([]types.ProviderConfig, len(current.providers))
	copy(out, current.providers)

	r.healthMu.RLock()
	for i := range out {
		if state, ok := r.healthStates[out[i].ID]; ok {
			out[i].HealthState = state
		}
	}
	r.healthMu.RUnlock()
	return out
}

// ActiveRules returns the cached active routing rules. The returned slice is
// a copy.
func (r *Registry) ActiveRules() []types.RoutingRule {
	r.mu.RLock()
	current := r.current
	r.mu.RUnlock()
	if current == nil {
		return nil
	}
	out := make([]types.RoutingRule, len(current.rules))
	copy(out, current.rules)
	return out
}

// UpdateHealthState records the health state observed for a provider. A
// provider placed in maintenance through configuration is not overridden by
// probe results.
func (r *Registry) UpdateHealthState(providerID string, state types.HealthState) {
	r.mu.RLock()
	current := r.current
	r.mu.RUnlock()
	if current != nil {
		for _, p := range current.providers {
			if p.ID == providerID && p.HealthState == types.HealthMaintenance {
				return
			}
		}
	}

	r.healthMu.Lock()
	r.healthStates[providerID] = state
	r.healthMu.Unlock()
}

// LastRefreshed returns when the current snapshot was loaded, or the zero
// time if no snapshot exists yet.
func (r *Registry) LastRefreshed() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.current == nil {
		return time.Time{}
	}
	return r.current.refreshedAt
}
