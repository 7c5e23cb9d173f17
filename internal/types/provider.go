package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// HealthState is the cached health classification of a provider.
type HealthState string

const (
	HealthHealthy     HealthState = "healthy"
	HealthUnknown     HealthState = "unknown"
	HealthMaintenance HealthState = "maintenance"
	HealthUnhealthy   HealthState = "unhealthy"
)

// ProviderConfig describes a configured payment provider. Configs are owned
// by the registry and replaced wholesale on refresh; the routing path never
// mutates them.
type ProviderConfig struct {
	ID          string      `yaml:"id" json:"id"`
	Name        string      `yaml:"name" json:"name"`
	Type        string      `yaml:"type" json:"type"`
	Priority    int         `yaml:"priority" json:"priority"`
	Active      bool        `yaml:"active" json:"active"`
	TestMode    bool        `yaml:"test_mode" json:"test_mode"`
	Currencies  []string    `yaml:"currencies" json:"currencies"`
	Countries   []string    `yaml:"countries" json:"countries"`
	HealthState HealthState `yaml:"health_state" json:"health_state"`
	// Weight scales priority in weighted selection. Zero means unset and is
	// treated as 1.0.
	Weight float64 `yaml:"weight" json:"weight"`
}

// EffectiveWeight returns priority scaled by the routing weight, with an
// unset weight defaulting to 1.0.
func (p ProviderConfig) EffectiveWeight() float64 {
	w := p.Weight
	if w == 0 {
		w = 1.0
	}
	return float64(p.Priority) * w
}

// SupportsCurrency reports whether the provider accepts the currency. An
// empty currency set means the provider accepts any currency.
func (p ProviderConfig) SupportsCurrency(currency string) bool {
	if len(p.Currencies) == 0 {
		return true
	}
	return containsString(p.Currencies, currency)
}

// SupportsCountry reports whether the provider operates in the country. An
// empty country set means the provider operates everywhere.
func (p ProviderConfig) SupportsCountry(country string) bool {
	if len(p.Countries) == 0 {
		return true
	}
	return containsString(p.Countries, country)
}

// TransactionContext carries the attributes of a single transaction that
// influence provider selection. It is constructed once per selection call
// and never mutated.
type TransactionContext struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Country  string          `json:"country"`
	UserID   string          `json:"user_id,omitempty"`
}

// UserSegment classifies a user by historical transaction volume.
type UserSegment string

const (
	SegmentVIP     UserSegment = "vip"
	SegmentRegular UserSegment = "regular"
	SegmentNew     UserSegment = "new"
)

// ProviderSwitchEvent is an audit record written when selection fails over
// from one provider to another. Write-only; never read on the routing path.
type ProviderSwitchEvent struct {
	ID           string             `json:"id"`
	FromProvider string             `json:"from_provider"`
	ToProvider   string             `json:"to_provider"`
	Reason       string             `json:"reason"`
	Context      TransactionContext `json:"context"`
	OccurredAt   time.Time          `json:"occurred_at"`
}

func containsString(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}
