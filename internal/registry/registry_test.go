package registry

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krishnakrish0052/payment-router/internal/stores"
	"github.com/krishnakrish0052/payment-router/internal/types"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

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

func provider(id string) types.ProviderConfig {
	return types.ProviderConfig{ID: id, Name: id, Type: "stripe", Active: true}
}

func TestRegistry_RefreshLoadsActiveProviders(t *testing.T) {
	store := stores.NewMemoryConfigStore([]types.ProviderConfig{
		provider("a"),
		provider("b"),
		{ID: "c", Name: "c", Type: "stripe", Active: false},
	}, nil)
	clock := newFakeClock()
	reg := New(store, clock, testLogger(), time.Minute)

	require.NoError(t, reg.Refresh(context.Background(), true))

	active := reg.ListActive()
	require.Len(t, active, 2)
	assert.Equal(t, "a", active[0].ID)
	assert.Equal(t, "b", active[1].ID)
	assert.Equal(t, clock.Now(), reg.LastRefreshed())
}

func TestRegistry_FreshSnapshotSkipsStore(t *testing.T) {
	store := stores.NewMemoryConfigStore([]types.ProviderConfig{provider("a")}, nil)
	clock := newFakeClock()
	reg := New(store, clock, testLogger(), time.Minute)

	require.NoError(t, reg.Refresh(context.Background(), true))

	// Changes in the store are invisible until the snapshot goes stale.
	store.SetProviders([]types.ProviderConfig{provider("a"), provider("b")})
	require.NoError(t, reg.Refresh(context.Background(), false))
	assert.Len(t, reg.ListActive(), 1)

	clock.Advance(2 * time.Minute)
	require.NoError(t, reg.Refresh(context.Background(), false))
	assert.Len(t, reg.ListActive(), 2)
}

func TestRegistry_ForceBypassesInterval(t *testing.T) {
	store := stores.NewMemoryConfigStore([]types.ProviderConfig{provider("a")}, nil)
	clock := newFakeClock()
	reg := New(store, clock, testLogger(), time.Minute)

	require.NoError(t, reg.Refresh(context.Background(), true))
	store.SetProviders([]types.ProviderConfig{provider("a"), provider("b")})

	require.NoError(t, reg.Refresh(context.Background(), true))
	assert.Len(t, reg.ListActive(), 2)
}

func TestRegistry_ServesStaleSnapshotOnStoreOutage(t *testing.T) {
	store := stores.NewMemoryConfigStore([]types.ProviderConfig{provider("a")}, nil)
	clock := newFakeClock()
	reg := New(store, clock, testLogger(), time.Minute)

	require.NoError(t, reg.Refresh(context.Background(), true))

	store.SetError(errors.New("connection refused"))
	clock.Advance(2 * time.Minute)

	require.NoError(t, reg.Refresh(context.Background(), false))
	assert.Len(t, reg.ListActive(), 1, "stale snapshot still served")
}

func TestRegistry_EmptyCacheOutageReturnsError(t *testing.T) {
	store := stores.NewMemoryConfigStore(nil, nil)
	store.SetError(errors.New("connection refused"))
	reg := New(store, newFakeClock(), testLogger(), time.Minute)

	err := reg.Refresh(context.Background(), true)
	var unavailable *ConfigUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Nil(t, reg.ListActive())
}

func TestRegistry_ListActiveReturnsCopy(t *testing.T) {
	store := stores.NewMemoryConfigStore([]types.ProviderConfig{provider("a")}, nil)
	reg := New(store, newFakeClock(), testLogger(), time.Minute)
	require.NoError(t, reg.Refresh(context.Background(), true))

	first := reg.ListActive()
	first[0].ID = "mutated"

	second := reg.ListActive()
	assert.Equal(t, "a", second[0].ID)
}

func TestRegistry_ActiveRules(t *testing.T) {
	rules := []types.RoutingRule{
		{ID: "r1", Type: types.RuleAmountBased, ProviderID: "a", Active: true},
		{ID: "r2", Type: types.RuleCountryBased, ProviderID: "a", Active: false},
	}
	store := stores.NewMemoryConfigStore([]types.ProviderConfig{provider("a")}, rules)
	reg := New(store, newFakeClock(), testLogger(), time.Minute)
	require.NoError(t, reg.Refresh(context.Background(), true))

	got := reg.ActiveRules()
	require.Len(t, got, 1)
	assert.Equal(t, "r1", got[0].ID)
}

func TestRegistry_HealthStateOverlay(t *testing.T) {
	store := stores.NewMemoryConfigStore([]types.ProviderConfig{provider("a")}, nil)
	reg := New(store, newFakeClock(), testLogger(), time.Minute)
	require.NoError(t, reg.Refresh(context.Background(), true))

	reg.UpdateHealthState("a", types.HealthUnhealthy)
	active := reg.ListActive()
	require.Len(t, active, 1)
	assert.Equal(t, types.HealthUnhealthy, active[0].HealthState)

	reg.UpdateHealthState("a", types.HealthHealthy)
	assert.Equal(t, types.HealthHealthy, reg.ListActive()[0].HealthState)
}

func TestRegistry_MaintenanceNotOverriddenByProbes(t *testing.T) {
	p := provider("a")
	p.HealthState = types.HealthMaintenance
	store := stores.NewMemoryConfigStore([]types.ProviderConfig{p}, nil)
	reg := New(store, newFakeClock(), testLogger(), time.Minute)
	require.NoError(t, reg.Refresh(context.Background(), true))

	// A passing probe must not pull a provider out of maintenance.
	reg.UpdateHealthState("a", types.HealthHealthy)
	assert.Equal(t, types.HealthMaintenance, reg.ListActive()[0].HealthState)
}

func TestRegistry_NoSnapshotReadsAreEmpty(t *testing.T) {
	store := stores.NewMemoryConfigStore([]types.ProviderConfig{provider("a")}, nil)
	reg := New(store, newFakeClock(), testLogger(), time.Minute)

	assert.Nil(t, reg.ListActive())
	assert.Nil(t, reg.ActiveRules())
	assert.True(t, reg.LastRefreshed().IsZero())
}
