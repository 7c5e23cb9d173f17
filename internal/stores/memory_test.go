package stores

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krishnakrish0052/payment-router/internal/types"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 11, 14, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func result(providerID string, status types.CheckStatus, at time.Time) types.HealthCheckResult {
	return types.HealthCheckResult{
		ProviderID: providerID,
		CheckType:  types.CheckConnectivity,
		Status:     status,
		CheckedAt:  at,
	}
}

func TestMemoryConfigStore_FiltersInactive(t *testing.T) {
	store := NewMemoryConfigStore([]types.ProviderConfig{
		{ID: "a", Active: true},
		{ID: "b", Active: false},
	}, []types.RoutingRule{
		{ID: "r1", Active: true},
		{ID: "r2", Active: false},
	})

	providers, err := store.ListActiveProviderConfigs(context.Background())
	require.NoError(t, err)
	require.Len(t, providers, 1)
	assert.Equal(t, "a", providers[0].ID)

	rules, err := store.ListActiveRoutingRules(context.Background())
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "r1", rules[0].ID)
}

func TestMemoryConfigStore_SetError(t *testing.T) {
	store := NewMemoryConfigStore(nil, nil)
	store.SetError(errors.New("down"))

	_, err := store.ListActiveProviderConfigs(context.Background())
	assert.Error(t, err)
	_, err = store.ListActiveRoutingRules(context.Background())
	assert.Error(t, err)
}

func TestMemoryHealthStore_QueryRecentMostRecentFirst(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryHealthStore(clock)
	ctx := context.Background()

	first := clock.Now()
	require.NoError(t, store.Append(ctx, result("p1", types.CheckPass, first)))
	clock.Advance(time.Minute)
	second := clock.Now()
	require.NoError(t, store.Append(ctx, result("p1", types.CheckFail, second)))

	recent, err := store.QueryRecent(ctx, "p1", time.Hour)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, second, recent[0].CheckedAt)
	assert.Equal(t, first, recent[1].CheckedAt)
}

func TestMemoryHealthStore_QueryRecentHonorsWindow(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryHealthStore(clock)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, result("p1", types.CheckFail, clock.Now())))
	clock.Advance(2 * time.Hour)
	require.NoError(t, store.Append(ctx, result("p1", types.CheckPass, clock.Now())))

	recent, err := store.QueryRecent(ctx, "p1", time.Hour)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, types.CheckPass, recent[0].Status)
}

func TestMemoryHealthStore_FailureRate(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryHealthStore(clock)
	ctx := context.Background()

	for _, status := range []types.CheckStatus{
		types.CheckPass, types.CheckPass, types.CheckFail, types.CheckWarn,
	} {
		require.NoError(t, store.Append(ctx, result("p1", status, clock.Now())))
	}

	rate, err := store.QueryFailureRate(ctx, "p1", time.Hour)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, rate, 1e-9, "warn results do not count as failures")

	rate, err = store.QueryFailureRate(ctx, "unknown", time.Hour)
	require.NoError(t, err)
	assert.Zero(t, rate)
}

func TestMemoryUsageStore_SelectionCounts(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryUsageStore(NewMemoryHealthStore(clock), clock)
	ctx := context.Background()

	require.NoError(t, store.RecordSelection(ctx, "a"))
	require.NoError(t, store.RecordSelection(ctx, "a"))
	clock.Advance(2 * time.Hour)
	require.NoError(t, store.RecordSelection(ctx, "b"))

	counts, err := store.QueryRecentSelectionCounts(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, counts["a"], "old selections age out of the window")
	assert.Equal(t, 1, counts["b"])
}

func TestMemoryUsageStore_AvgResponseTimeFromHealthHistory(t *testing.T) {
	clock := newFakeClock()
	health := NewMemoryHealthStore(clock)
	store := NewMemoryUsageStore(health, clock)
	ctx := context.Background()

	for _, ms := range []int64{100, 300} {
		r := result("a", types.CheckPass, clock.Now())
		r.ResponseTime = time.Duration(ms) * time.Millisecond
		require.NoError(t, health.Append(ctx, r))
	}

	averages, err := store.QueryRecentAvgResponseTime(ctx, time.Hour)
	require.NoError(t, err)
	assert.InDelta(t, 200, averages["a"], 1e-9)
	_, measured := averages["b"]
	assert.False(t, measured, "providers without samples have no average")
}

func TestMemoryUserStore_Segments(t *testing.T) {
	store := NewMemoryUserStore(DefaultSegmentThresholds())
	ctx := context.Background()

	store.SetHistory("whale", UserHistory{LifetimeAmount: 5000, CompletedPayments: 3})
	store.SetHistory("frequent", UserHistory{LifetimeAmount: 50, CompletedPayments: 11})
	store.SetHistory("shopper", UserHistory{LifetimeAmount: 150, CompletedPayments: 1})
	store.SetHistory("newcomer", UserHistory{LifetimeAmount: 20, CompletedPayments: 1})

	cases := map[string]types.UserSegment{
		"whale":    types.SegmentVIP,
		"frequent": types.SegmentVIP,
		"shopper":  types.SegmentRegular,
		"newcomer": types.SegmentNew,
		"unknown":  types.SegmentNew,
	}
	for userID, want := range cases {
		segment, err := store.GetUserSegment(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, want, segment, userID)
	}
}

func TestMemorySwitchStore_ReasonCountsHonorWindow(t *testing.T) {
	clock := newFakeClock()
	store := NewMemorySwitchStore(clock)
	ctx := context.Background()

	event := func(reason string) types.ProviderSwitchEvent {
		return types.ProviderSwitchEvent{
			FromProvider: "a",
			ToProvider:   "b",
			Reason:       reason,
			OccurredAt:   clock.Now(),
		}
	}

	require.NoError(t, store.AppendSwitchEvent(ctx, event("failover:maintenance")))
	clock.Advance(25 * time.Hour)
	require.NoError(t, store.AppendSwitchEvent(ctx, event("manual_override")))
	require.NoError(t, store.AppendSwitchEvent(ctx, event("manual_override")))

	reasons, err := store.QuerySwitchReasons(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"manual_override": 2}, reasons)

	assert.Len(t, store.Events(), 3)
}
