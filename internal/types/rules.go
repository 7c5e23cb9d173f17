package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// RuleType identifies the predicate a routing rule evaluates.
type RuleType string

const (
	RuleAmountBased      RuleType = "amount_based"
	RuleCountryBased     RuleType = "country_based"
	RuleCurrencyBased    RuleType = "currency_based"
	RuleUserBased        RuleType = "user_based"
	RuleTimeBased        RuleType = "time_based"
	RuleFailureRateBased RuleType = "failure_rate_based"
)

// RoutingRule includes or excludes its target provider from the working
// candidate set. A rule never adds providers that are not already present;
// a rule whose target is absent from the set is a no-op.
type RoutingRule struct {
	ID         string        `yaml:"id" json:"id"`
	Type       RuleType      `yaml:"type" json:"type"`
	Condition  RuleCondition `yaml:"condition" json:"condition"`
	ProviderID string        `yaml:"provider_id" json:"provider_id"`
	Priority   int           `yaml:"priority" json:"priority"`
	Active     bool          `yaml:"active" json:"active"`
}

// RuleCondition is the type-specific condition payload. Only the fields
// relevant to the rule's type are consulted.
type RuleCondition struct {
	// amount_based: inclusive bounds, nil means unbounded on that side.
	MinAmount *decimal.Decimal `yaml:"min_amount,omitempty" json:"min_amount,omitempty"`
	MaxAmount *decimal.Decimal `yaml:"max_amount,omitempty" json:"max_amount,omitempty"`

	// country_based / currency_based: a non-empty allow list restricts the
	// context value to its members; the block list always excludes.
	AllowedCountries  []string `yaml:"allowed_countries,omitempty" json:"allowed_countries,omitempty"`
	BlockedCountries  []string `yaml:"blocked_countries,omitempty" json:"blocked_countries,omitempty"`
	AllowedCurrencies []string `yaml:"allowed_currencies,omitempty" json:"allowed_currencies,omitempty"`
	BlockedCurrencies []string `yaml:"blocked_currencies,omitempty" json:"blocked_currencies,omitempty"`

	// user_based: segments the user must fall into.
	Segments []UserSegment `yaml:"segments,omitempty" json:"segments,omitempty"`

	// time_based: inclusive local-hour range and active weekdays. A nil
	// hour leaves that side unbounded; an empty weekday set allows all days.
	StartHour *int           `yaml:"start_hour,omitempty" json:"start_hour,omitempty"`
	EndHour   *int           `yaml:"end_hour,omitempty" json:"end_hour,omitempty"`
	Weekdays  []time.Weekday `yaml:"weekdays,omitempty" json:"weekdays,omitempty"`

	// failure_rate_based: providers above MaxFailureRate over Window are
	// dropped. Zero values fall back to the engine defaults.
	MaxFailureRate float64       `yaml:"max_failure_rate,omitempty" json:"max_failure_rate,omitempty"`
	Window         time.Duration `yaml:"window,omitempty" json:"window,omitempty"`
}
