package routing

import (
	"time"
)

// SelectionDecision describes how a provider was chosen, for logging and
// the diagnostics API.
type SelectionDecision struct {
	// The selected provider ID
	SelectedProvider string `json:"selected_provider"`

	// Strategy used for the selection
	Strategy Strategy `json:"strategy"`

	// Human-readable reasoning for the decision
	Reasoning []string `json:"reasoning"`

	// Providers that survived filtering and were considered
	ConsideredProviders []string `json:"considered_providers"`

	// Providers rejected during availability checks, with the reason
	RejectedProviders map[string]string `json:"rejected_providers,omitempty"`

	// Number of selection attempts, including the successful one
	AttemptCount int `json:"attempt_count"`

	// Whether the first choice was discarded and a failover occurred
	FailoverUsed bool `json:"failover_used"`

	// Wall time spent selecting
	ProcessingTime time.Duration `json:"processing_time"`

	// Selection timestamp
	Timestamp time.Time `json:"timestamp"`
}
