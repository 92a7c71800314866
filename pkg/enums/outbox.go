package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateBulkUpload OutboxAggregateType = "bulk_upload"
	AggregateProduct    OutboxAggregateType = "product"
	AggregateDraftStock OutboxAggregateType = "draft_stock"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateBulkUpload,
	AggregateProduct,
	AggregateDraftStock,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventUploadCompleted    OutboxEventType = "upload_completed"
	EventUploadFailed       OutboxEventType = "upload_failed"
	EventUploadDeleted      OutboxEventType = "upload_deleted"
	EventDraftsEnriched     OutboxEventType = "drafts_enriched"
	EventProductPublished   OutboxEventType = "product_published"
	EventProductUnpublished OutboxEventType = "product_unpublished"
)

var validOutboxEventTypes = []OutboxEventType{
	EventUploadCompleted,
	EventUploadFailed,
	EventUploadDeleted,
	EventDraftsEnriched,
	EventProductPublished,
	EventProductUnpublished,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
