package routing

import (
	"sort"
	"strings"
	"sync"

	"github.com/krishnakrish0052/payment-router/internal/types"
)

// counterStore holds round-robin counters keyed by candidate-set identity.
// Increment-and-read is atomic per key, which is the only synchronization
// the balancer needs; state survives across selection calls so rotation
// stays stable for a given candidate set.
type counterStore struct {
	mu       sync.Mutex
	counters map[string]uint64
}

func newCounterStore() *counterStore {
	return &counterStore{counters: make(map[string]uint64)}
}

// next returns the current counter for the key and advances it.
func (c *counterStore) next(key string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.counters[key]
	c.counters[key] = n + 1
	return n
}

// candidateSetKey derives a stable identity for a candidate set: the sorted
// provider IDs joined with a separator. Order of the input does not matter.
func candidateSetKey(candidates []types.ProviderConfig) string {
	ids := make([]string, len(candidates))
	for i, p := range candidates {
		ids[i] = p.ID
	}
	sort.Strings(ids)
	return strings.Join(ids, "|")
}
