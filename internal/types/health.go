package types

import "time"

// CheckType identifies which aspect of a provider a health check probed.
type CheckType string

const (
	CheckConnectivity    CheckType = "connectivity"
	CheckAuthentication  CheckType = "authentication"
	CheckAPILimits       CheckType = "api_limits"
	CheckWebhook         CheckType = "webhook"
	CheckFullTransaction CheckType = "full_transaction"
)

// CheckStatus is the outcome of a single health check.
type CheckStatus string

const (
	CheckPass CheckStatus = "pass"
	CheckWarn CheckStatus = "warn"
	CheckFail CheckStatus = "fail"
)

// HealthCheckResult records the outcome of one probe against one provider.
// Results are append-only; they are never updated after creation.
type HealthCheckResult struct {
	ID           string        `json:"id"`
	ProviderID   string        `json:"provider_id"`
	CheckType    CheckType     `json:"check_type"`
	Status       CheckStatus   `json:"status"`
	ResponseTime time.Duration `json:"response_time"`
	Error        string        `json:"error,omitempty"`
	CheckedAt    time.Time     `json:"checked_at"`
}

// Failed reports whether the check outcome counts against reliability.
func (r HealthCheckResult) Failed() bool {
	return r.Status == CheckFail
}
