package routing

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/krishnakrish0052/payment-router/internal/stores"
	"github.com/krishnakrish0052/payment-router/internal/types"
)

// Strategy selects how the load balancer picks one provider from the
// eligible set.
type Strategy string

const (
	StrategyRoundRobin   Strategy = "round_robin"
	StrategyWeighted     Strategy = "weighted"
	StrategyLeastUsed    Strategy = "least_used"
	StrategyResponseTime Strategy = "response_time"
	StrategyRandom       Strategy = "random"
)

// DefaultStrategy is used when no strategy is configured and as the
// fallback when a stats-driven strategy cannot reach its store.
const DefaultStrategy = StrategyWeighted

// DefaultUsageWindow bounds the history consulted by the least_used and
// response_time strategies.
const DefaultUsageWindow = time.Hour

// ValidStrategy reports whether s names a known strategy.
func ValidStrategy(s Strategy) bool {
	switch s {
	case StrategyRoundRobin, StrategyWeighted, StrategyLeastUsed, StrategyResponseTime, StrategyRandom:
		return true
	}
	return false
}

// Balancer picks exactly one provider from a candidate set.
type Balancer struct {
	usage  stores.UsageStore
	logger *logrus.Logger
	window time.Duration

	counters *counterStore

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewBalancer creates a balancer. A non-positive window falls back to the
// default usage window.
func NewBalancer(usage stores.UsageStore, logger *logrus.Logger, window time.Duration) *Balancer {
	if window <= 0 {
		window = DefaultUsageWindow
	}
	return &Balancer{
		usage:    usage,
		logger:   logger,
		window:   window,
		counters: newCounterStore(),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Select picks one provider from the candidates using the strategy. A
// stats-driven strategy whose store is unreachable falls back to weighted
// selection instead of erroring; an empty candidate set is the only failure.
func (b *Balancer) Select(ctx context.Context, candidates []types.ProviderConfig, strategy Strategy) (types.ProviderConfig, error) {
	if len(candidates) == 0 {
		return types.ProviderConfig{}, &NoEligibleProviderError{Reason: "empty candidate set"}
	}
	if len(candidates) == 1 {
		return candidates[0], nil
	}

	switch strategy {
	case StrategyRoundRobin:
		return b.selectRoundRobin(candidates), nil
	case StrategyLeastUsed:
		return b.selectLeastUsed(ctx, candidates), nil
	case StrategyResponseTime:
		return b.selectFastest(ctx, candidates), nil
	case StrategyRandom:
		return candidates[b.randN(len(candidates))], nil
	case StrategyWeighted:
		return b.selectWeighted(candidates), nil
	default:
		b.logger.WithField("strategy", strategy).Warn("Unknown balancing strategy, using weighted")
		return b.selectWeighted(candidates), nil
	}
}

func (b *Balancer) selectRoundRobin(candidates []types.ProviderConfig) types.ProviderConfig {
	// Rotation order must not depend on how the caller happened to order
	// the slice.
	ordered := make([]types.ProviderConfig, len(candidates))
	copy(ordered, candidates)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	n := b.counters.next(candidateSetKey(ordered))
	return ordered[n%uint64(len(ordered))]
}

func (b *Balancer) selectWeighted(candidates []types.ProviderConfig) types.ProviderConfig {
	var total float64
	for _, p := range candidates {
		total += p.EffectiveWeight()
	}
	if total <= 0 {
		return candidates[0]
	}

	draw := b.randFloat() * total
	var cumulative float64
	for _, p := range candidates {
		cumulative += p.EffectiveWeight()
		if draw < cumulative {
			return p
		}
	}
	return candidates[len(candidates)-1]
}

func (b *Balancer) selectLeastUsed(ctx context.Context, candidates []types.ProviderConfig) types.ProviderConfig {
	counts, err := b.usage.QueryRecentSelectionCounts(ctx, b.window)
	if err != nil {
		statsErr := &StatsUnavailableError{Strategy: StrategyLeastUsed, Err: err}
		b.logger.WithError(statsErr).Warn("Falling back to weighted selection")
		return b.selectWeighted(candidates)
	}

	// Ties break by input order.
	best := candidates[0]
	bestCount := counts[best.ID]
	for _, p := range candidates[1:] {
		if counts[p.ID] < bestCount {
			best = p
			bestCount = counts[p.ID]
		}
	}
	return best
}

func (b *Balancer) selectFastest(ctx context.Context, candidates []types.ProviderConfig) types.ProviderConfig {
	averages, err := b.usage.QueryRecentAvgResponseTime(ctx, b.window)
	if err != nil {
		statsErr := &StatsUnavailableError{Strategy: StrategyResponseTime, Err: err}
		b.logger.WithError(statsErr).Warn("Falling back to weighted selection")
		return b.selectWeighted(candidates)
	}

	// Providers without a recent sample count as infinitely slow: never
	// preferred over a measured one, still selectable if nothing is
	// measured.
	best := candidates[0]
	bestAvg := math.Inf(1)
	if avg, ok := averages[best.ID]; ok {
		bestAvg = avg
	}
	for _, p := range candidates[1:] {
		avg := math.Inf(1)
		if a, ok := averages[p.ID]; ok {
			avg = a
		}
		if avg < bestAvg {
			best = p
			bestAvg = avg
		}
	}
	return best
}

func (b *Balancer) randN(n int) int {
	b.rngMu.Lock()
	defer b.rngMu.Unlock()
	return b.rng.Intn(n)
}

func (b *Balancer) randFloat() float64 {
	b.rngMu.Lock()
	defer b.rngMu.Unlock()
	return b.rng.Float64()
}
