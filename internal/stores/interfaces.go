package stores

import (
	"context"
	"time"

	"github.com/krishnakrish0052/payment-router/internal/types"
)

// ConfigStore supplies the currently configured providers and routing rules.
// The registry is its only consumer; everything downstream works from the
// registry's cached snapshot.
type ConfigStore interface {
	ListActiveProviderConfigs(ctx context.Context) ([]types.ProviderConfig, error)
	ListActiveRoutingRules(ctx context.Context) ([]types.RoutingRule, error)
}

// HealthCheckStore persists health-check history. Append is called by the
// health-check runner; the query side is read lazily at selection time, so
// readers must tolerate results committed mid-selection not being visible.
type HealthCheckStore interface {
	Append(ctx context.Context, result types.HealthCheckResult) error
	// QueryRecent returns results for the provider inside the trailing
	// window, most recent first.
	QueryRecent(ctx context.Context, providerID string, window time.Duration) ([]types.HealthCheckResult, error)
	QueryFailureRate(ctx context.Context, providerID string, window time.Duration) (float64, error)
}

// UsageStore tracks selection counts and observed response times for the
// least-used and response-time balancing strategies.
type UsageStore interface {
	RecordSelection(ctx context.Context, providerID string) error
	QueryRecentSelectionCounts(ctx context.Context, window time.Duration) (map[string]int, error)
	// QueryRecentAvgResponseTime returns average response time in
	// milliseconds per provider; providers without samples are absent.
	QueryRecentAvgResponseTime(ctx context.Context, window time.Duration) (map[string]float64, error)
}

// UserStore resolves a user to a segment for user_based routing rules.
type UserStore interface {
	GetUserSegment(ctx context.Context, userID string) (types.UserSegment, error)
}

// SwitchStore persists the provider-switch audit trail.
type SwitchStore interface {
	AppendSwitchEvent(ctx context.Context, event types.ProviderSwitchEvent) error
	QuerySwitchReasons(ctx context.Context, window time.Duration) (map[string]int, error)
}

// Clock abstracts time so window arithmetic and time-based rules are
// deterministic in tests.
type Clock interface {
	Now() time.Time
}

// SystemClock is the Clock used outside of tests.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
