package routing

import (
	"context"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/krishnakrish0052/payment-router/internal/stores"
	"github.com/krishnakrish0052/payment-router/internal/types"
)

// Defaults for failure_rate_based rules that leave their condition blank.
const (
	DefaultRuleFailureRateWindow = 24 * time.Hour
	DefaultRuleMaxFailureRate    = 0.10
)

// RuleEngine narrows a candidate set to the providers eligible for a
// transaction by folding routing rules over it in descending priority
// order. Rules only ever remove providers; the output is always a subset of
// the input.
type RuleEngine struct {
	users  stores.UserStore
	health stores.HealthCheckStore
	clock  stores.Clock
	logger *logrus.Logger
}

// NewRuleEngine creates a rule engine with its collaborator stores.
func NewRuleEngine(users stores.UserStore, health stores.HealthCheckStore, clock stores.Clock, logger *logrus.Logger) *RuleEngine {
	return &RuleEngine{users: users, health: health, clock: clock, logger: logger}
}

// Apply evaluates the rules against the candidate set. With no rules it is
// an identity pass-through. A rule whose evaluation needs a store that turns
// out to be unreachable is skipped with a warning rather than failing the
// selection.
func (e *RuleEngine) Apply(ctx context.Context, candidates []types.ProviderConfig, rules []types.RoutingRule, tx types.TransactionContext) []types.ProviderConfig {
	if len(rules) == 0 || len(candidates) == 0 {
		return candidates
	}

	ordered := make([]types.RoutingRule, 0, len(rules))
	for _, r := range rules {
		if r.Active {
			ordered = append(ordered, r)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority > ordered[j].Priority
	})

	working := candidates
	for _, rule := range ordered {
		before := len(working)
		working = e.applyRule(ctx, working, rule, tx)
		if len(working) != before {
			e.logger.WithFields(logrus.Fields{
				"rule_id":   rule.ID,
				"rule_type": rule.Type,
				"before":    before,
				"after":     len(working),
			}).Debug("Routing rule narrowed candidate set")
		}
		if len(working) == 0 {
			break
		}
	}
	return working
}

func (e *RuleEngine) applyRule(ctx context.Context, candidates []types.ProviderConfig, rule types.RoutingRule, tx types.TransactionContext) []types.ProviderConfig {
	switch rule.Type {
	case types.RuleAmountBased:
		return e.applyTargeted(candidates, rule, e.amountEligible(rule, tx))
	case types.RuleCountryBased:
		return e.applyTargeted(candidates, rule, countryEligible(rule.Condition, tx.Country))
	case types.RuleCurrencyBased:
		return e.applyTargeted(candidates, rule, currencyEligible(rule.Condition, tx.Currency))
	case types.RuleUserBased:
		return e.applyUserRule(ctx, candidates, rule, tx)
	case types.RuleTimeBased:
		return e.applyTargeted(candidates, rule, timeEligible(rule.Condition, e.clock.Now()))
	case types.RuleFailureRateBased:
		return e.applyFailureRateRule(ctx, candidates, rule)
	default:
		e.logger.WithFields(logrus.Fields{
			"rule_id":   rule.ID,
			"rule_type": rule.Type,
		}).Warn("Unknown routing rule type, skipping")
		return candidates
	}
}

// applyTargeted drops the rule's target provider when it is not eligible.
// A target absent from the candidate set makes the rule a no-op.
func (e *RuleEngine) applyTargeted(candidates []types.ProviderConfig, rule types.RoutingRule, eligible bool) []types.ProviderConfig {
	if eligible {
		return candidates
	}
	out := candidates[:0:0]
	for _, p := range candidates {
		if p.ID != rule.ProviderID {
			out = append(out, p)
		}
	}
	return out
}

func (e *RuleEngine) amountEligible(rule types.RoutingRule, tx types.TransactionContext) bool {
	cond := rule.Condition
	if cond.MinAmount != nil && tx.Amount.LessThan(*cond.MinAmount) {
		return false
	}
	if cond.MaxAmount != nil && tx.Amount.GreaterThan(*cond.MaxAmount) {
		return false
	}
	return true
}

func countryEligible(cond types.RuleCondition, country string) bool {
	return listEligible(cond.AllowedCountries, cond.BlockedCountries, country)
}

func currencyEligible(cond types.RuleCondition, currency string) bool {
	return listEligible(cond.AllowedCurrencies, cond.BlockedCurrencies, currency)
}

// listEligible: an explicit block always wins; a non-empty allow list
// restricts the value to its members.
func listEligible(allowed, blocked []string, value string) bool {
	for _, b := range blocked {
		if b == value {
			return false
		}
	}
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == value {
			return true
		}
	}
	return false
}

func timeEligible(cond types.RuleCondition, now time.Time) bool {
	if len(cond.Weekdays) > 0 {
		found := false
		for _, d := range cond.Weekdays {
			if d == now.Weekday() {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	hour := now.Hour()
	if cond.StartHour != nil && hour < *cond.StartHour {
		return false
	}
	if cond.EndHour != nil && hour > *cond.EndHour {
		return false
	}
	return true
}

func (e *RuleEngine) applyUserRule(ctx context.Context, candidates []types.ProviderConfig, rule types.RoutingRule, tx types.TransactionContext) []types.ProviderConfig {
	if len(rule.Condition.Segments) == 0 {
		return candidates
	}
	// Anonymous transactions fall into the "new" segment.
	segment := types.SegmentNew
	if tx.UserID != "" {
		resolved, err := e.users.GetUserSegment(ctx, tx.UserID)
		if err != nil {
			e.logger.WithError(err).WithFields(logrus.Fields{
				"rule_id": rule.ID,
				"user_id": tx.UserID,
			}).Warn("User segment lookup failed, skipping user rule")
			return candidates
		}
		segment = resolved
	}

	for _, s := range rule.Condition.Segments {
		if s == segment {
			return candidates
		}
	}
	return e.applyTargeted(candidates, rule, false)
}

// applyFailureRateRule drops every remaining provider whose failure rate
// over the rule's window exceeds the configured maximum. Unlike the targeted
// rules it inspects the whole candidate set.
func (e *RuleEngine) applyFailureRateRule(ctx context.Context, candidates []types.ProviderConfig, rule types.RoutingRule) []types.ProviderConfig {
	window := rule.Condition.Window
	if window <= 0 {
		window = DefaultRuleFailureRateWindow
	}
	maxRate := rule.Condition.MaxFailureRate
	if maxRate <= 0 {
		maxRate = DefaultRuleMaxFailureRate
	}

	out := candidates[:0:0]
	for _, p := range candidates {
		rate, err := e.health.QueryFailureRate(ctx, p.ID, window)
		if err != nil {
			e.logger.WithError(err).WithFields(logrus.Fields{
				"rule_id":  rule.ID,
				"provider": p.ID,
			}).Warn("Failure rate lookup failed, keeping provider")
			out = append(out, p)
			continue
		}
		if rate > maxRate {
			e.logger.WithFields(logrus.Fields{
				"rule_id":      rule.ID,
				"provider":     p.ID,
				"failure_rate": rate,
				"max_rate":     maxRate,
			}).Info("Provider dropped by failure rate rule")
			continue
		}
		out = append(out, p)
	}
	return out
}
