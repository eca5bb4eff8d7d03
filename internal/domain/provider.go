package domain

import "time"

// ProviderTag identifies which upstream LLM service produced a response.
type ProviderTag string

const (
	ProviderPrimary  ProviderTag = "primary"
	ProviderFallback ProviderTag = "fallback"
	ProviderNone     ProviderTag = "none"
)

// ProviderStatus is the snapshot returned by the status endpoint.
type ProviderStatus struct {
	ActiveProvider     ProviderTag `json:"activeProvider"`
	PrimaryAvailable   bool        `json:"primaryAvailable"`
	SecondaryAvailable bool        `json:"secondaryAvailable"`
	LastCheckedAt      time.Time   `json:"lastCheckedAt"`
}
