package routing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krishnakrish0052/payment-router/internal/stores"
	"github.com/krishnakrish0052/payment-router/internal/types"
)

func newTestBalancer(clock *fakeClock) (*Balancer, *stores.MemoryUsageStore, *stores.MemoryHealthStore) {
	health := stores.NewMemoryHealthStore(clock)
	usage := stores.NewMemoryUsageStore(health, clock)
	return NewBalancer(usage, testLogger(), time.Hour), usage, health
}

func TestBalancer_EmptyCandidates(t *testing.T) {
	b, _, _ := newTestBalancer(newFakeClock())

	_, err := b.Select(context.Background(), nil, StrategyWeighted)
	var noEligible *NoEligibleProviderError
	require.ErrorAs(t, err, &noEligible)
}

func TestBalancer_RoundRobinRotation(t *testing.T) {
	b, _, _ := newTestBalancer(newFakeClock())
	candidates := []types.ProviderConfig{
		testProvider("a", 1), testProvider("b", 1), testProvider("c", 1),
	}

	counts := make(map[string]int)
	var order []string
	for i := 0; i < 9; i++ {
		p, err := b.Select(context.Background(), candidates, StrategyRoundRobin)
		require.NoError(t, err)
		counts[p.ID]++
		order = append(order, p.ID)
	}

	// Each candidate exactly once per full rotation, in stable order.
	assert.Equal(t, 3, counts["a"])
	assert.Equal(t, 3, counts["b"])
	assert.Equal(t, 3, counts["c"])
	assert.Equal(t, order[:3], order[3:6])
	assert.Equal(t, order[:3], order[6:9])
}

func TestBalancer_RoundRobinKeyIgnoresInputOrder(t *testing.T) {
	b, _, _ := newTestBalancer(newFakeClock())
	forward := []types.ProviderConfig{testProvider("a", 1), testProvider("b", 1)}
	reversed := []types.ProviderConfig{testProvider("b", 1), testProvider("a", 1)}

	first, err := b.Select(context.Background(), forward, StrategyRoundRobin)
	require.NoError(t, err)
	second, err := b.Select(context.Background(), reversed, StrategyRoundRobin)
	require.NoError(t, err)

	// Same candidate set, same counter: rotation continues across the calls.
	assert.NotEqual(t, first.ID, second.ID)
}

func TestBalancer_WeightedDistribution(t *testing.T) {
	b, _, _ := newTestBalancer(newFakeClock())
	candidates := []types.ProviderConfig{
		testProvider("heavy", 3),
		testProvider("light", 1),
	}

	const draws = 10000
	counts := make(map[string]int)
	for i := 0; i < draws; i++ {
		p, err := b.Select(context.Background(), candidates, StrategyWeighted)
		require.NoError(t, err)
		counts[p.ID]++
	}

	share := float64(counts["heavy"]) / draws
	assert.InDelta(t, 0.75, share, 0.05, "weight 3 of 4 should win about 75% of draws")
}

func TestBalancer_WeightedRespectsRoutingWeight(t *testing.T) {
	b, _, _ := newTestBalancer(newFakeClock())
	// Priority 10 scaled to nothing by weight vs priority 1 at full weight.
	muted := testProvider("muted", 10)
	muted.Weight = 0.001
	strong := testProvider("strong", 1)

	counts := make(map[string]int)
	for i := 0; i < 2000; i++ {
		p, err := b.Select(context.Background(), []types.ProviderConfig{muted, strong}, StrategyWeighted)
		require.NoError(t, err)
		counts[p.ID]++
	}
	assert.Greater(t, counts["strong"], counts["muted"])
}

func TestBalancer_WeightedZeroTotalFallsBackToFirst(t *testing.T) {
	b, _, _ := newTestBalancer(newFakeClock())
	candidates := []types.ProviderConfig{testProvider("a", 0), testProvider("b", 0)}

	p, err := b.Select(context.Background(), candidates, StrategyWeighted)
	require.NoError(t, err)
	assert.Equal(t, "a", p.ID)
}

func TestBalancer_LeastUsed(t *testing.T) {
	clock := newFakeClock()
	b, usage, _ := newTestBalancer(clock)
	ctx := context.Background()

	require.NoError(t, usage.RecordSelection(ctx, "a"))
	require.NoError(t, usage.RecordSelection(ctx, "a"))
	require.NoError(t, usage.RecordSelection(ctx, "b"))

	candidates := []types.ProviderConfig{testProvider("a", 1), testProvider("b", 1), testProvider("c", 1)}
	p, err := b.Select(ctx, candidates, StrategyLeastUsed)
	require.NoError(t, err)
	assert.Equal(t, "c", p.ID, "provider with zero selections wins")
}

func TestBalancer_LeastUsedTieBreaksByInputOrder(t *testing.T) {
	clock := newFakeClock()
	b, usage, _ := newTestBalancer(clock)
	ctx := context.Background()

	require.NoError(t, usage.RecordSelection(ctx, "a"))
	require.NoError(t, usage.RecordSelection(ctx, "b"))

	candidates := []types.ProviderConfig{testProvider("b", 1), testProvider("a", 1)}
	p, err := b.Select(ctx, candidates, StrategyLeastUsed)
	require.NoError(t, err)
	assert.Equal(t, "b", p.ID)
}

func TestBalancer_LeastUsedStatsFailureFallsBackToWeighted(t *testing.T) {
	clock := newFakeClock()
	b, usage, _ := newTestBalancer(clock)
	usage.SetError(errors.New("stats db down"))

	// Weighted fallback with one dominant provider is deterministic.
	dominant := testProvider("dominant", 10)
	zero := testProvider("zero", 0)

	p, err := b.Select(context.Background(), []types.ProviderConfig{dominant, zero}, StrategyLeastUsed)
	require.NoError(t, err)
	assert.Equal(t, "dominant", p.ID)
}

func TestBalancer_ResponseTimePrefersFastest(t *testing.T) {
	clock := newFakeClock()
	b, _, health := newTestBalancer(clock)
	ctx := context.Background()

	require.NoError(t, health.Append(ctx, types.HealthCheckResult{
		ProviderID: "slow", Status: types.CheckPass, ResponseTime: 900 * time.Millisecond, CheckedAt: clock.Now(),
	}))
	require.NoError(t, health.Append(ctx, types.HealthCheckResult{
		ProviderID: "fast", Status: types.CheckPass, ResponseTime: 80 * time.Millisecond, CheckedAt: clock.Now(),
	}))

	candidates := []types.ProviderConfig{testProvider("slow", 1), testProvider("fast", 1), testProvider("unmeasured", 1)}
	p, err := b.Select(ctx, candidates, StrategyResponseTime)
	require.NoError(t, err)
	assert.Equal(t, "fast", p.ID)
}

func TestBalancer_ResponseTimeUnmeasuredNeverPreferred(t *testing.T) {
	clock := newFakeClock()
	b, _, health := newTestBalancer(clock)
	ctx := context.Background()

	require.NoError(t, health.Append(ctx, types.HealthCheckResult{
		ProviderID: "measured", Status: types.CheckPass, ResponseTime: 5 * time.Second, CheckedAt: clock.Now(),
	}))

	candidates := []types.ProviderConfig{testProvider("unmeasured", 1), testProvider("measured", 1)}
	p, err := b.Select(ctx, candidates, StrategyResponseTime)
	require.NoError(t, err)
	assert.Equal(t, "measured", p.ID, "a slow measurement still beats no measurement")
}

func TestBalancer_ResponseTimeAllUnmeasuredStillSelects(t *testing.T) {
	b, _, _ := newTestBalancer(newFakeClock())

	candidates := []types.ProviderConfig{testProvider("a", 1), testProvider("b", 1)}
	p, err := b.Select(context.Background(), candidates, StrategyResponseTime)
	require.NoError(t, err)
	assert.Contains(t, []string{"a", "b"}, p.ID)
}

func TestBalancer_RandomStaysInSet(t *testing.T) {
	b, _, _ := newTestBalancer(newFakeClock())
	candidates := []types.ProviderConfig{testProvider("a", 1), testProvider("b", 1), testProvider("c", 1)}

	valid := map[string]bool{"a": true, "b": true, "c": true}
	for i := 0; i < 100; i++ {
		p, err := b.Select(context.Background(), candidates, StrategyRandom)
		require.NoError(t, err)
		assert.True(t, valid[p.ID])
	}
}

func TestBalancer_SingleCandidateShortCircuits(t *testing.T) {
	clock := newFakeClock()
	b, usage, _ := newTestBalancer(clock)
	usage.SetError(errors.New("stats db down"))

	p, err := b.Select(context.Background(), []types.ProviderConfig{testProvider("only", 1)}, StrategyLeastUsed)
	require.NoError(t, err)
	assert.Equal(t, "only", p.ID)
}

func TestBalancer_UnknownStrategyUsesWeighted(t *testing.T) {
	b, _, _ := newTestBalancer(newFakeClock())
	dominant := testProvider("dominant", 10)
	zero := testProvider("zero", 0)

	p, err := b.Select(context.Background(), []types.ProviderConfig{dominant, zero}, Strategy("bogus"))
	require.NoError(t, err)
	assert.Equal(t, "dominant", p.ID)
}
