package providers

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
)

// Client is the capability a provider type must implement. The health-check
// runner and the order-creation path look implementations up by type tag
// instead of branching on type strings.
type Client interface {
	// Type returns the provider-type tag the client is registered under.
	Type() string
	// Connect verifies the provider API is reachable at all. Any HTTP
	// response counts as connected; only transport failures are errors.
	Connect(ctx context.Context) error
	// Authenticate verifies the configured credentials are accepted.
	Authenticate(ctx context.Context) error
	// CreateOrder opens a minimal order/intent with the provider. Used by
	// full-transaction health checks in test mode.
	CreateOrder(ctx context.Context, order OrderRequest) (*OrderResult, error)
}

// OrderRequest is the minimal order shape a probe needs.
type OrderRequest struct {
	Amount    decimal.Decimal
	Currency  string
	Reference string
}

// OrderResult carries the provider's identifier for a created order.
type OrderResult struct {
	ProviderOrderID string
	Status          string
}

// Registry maps provider-type tags to their client implementations.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]Client
}

func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]Client)}
}

// Register adds a client under its type tag, replacing any previous
// registration for that tag.
func (r *Registry) Register(client Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[client.Type()] = client
}

// Lookup returns the client registered for the type tag.
func (r *Registry) Lookup(typeTag string) (Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[typeTag]
	return c, ok
}

// Types returns the registered type tags.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.clients))
	for t := range r.clients {
		out = append(out, t)
	}
	return out
}
