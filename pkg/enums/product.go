package enums

import "fmt"

// EnrichmentStatus tracks how far a product has moved through the AI
// enrichment pipeline.
type EnrichmentStatus string

const (
	EnrichmentCompleted EnrichmentStatus = "completed"
	EnrichmentPending   EnrichmentStatus = "pending"
	EnrichmentFailed    EnrichmentStatus = "failed"
)

var validEnrichmentStatuses = []EnrichmentStatus{
	EnrichmentCompleted,
	EnrichmentPending,
	EnrichmentFailed,
}

// IsValid reports whether the value matches the enrichment_status enum.
func (s EnrichmentStatus) IsValid() bool {
	for _, candidate := range validEnrichmentStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseEnrichmentStatus converts raw input into EnrichmentStatus.
func ParseEnrichmentStatus(value string) (EnrichmentStatus, error) {
	for _, candidate := range validEnrichmentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid enrichment status %q", value)
}
