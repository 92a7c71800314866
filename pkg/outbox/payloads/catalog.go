package payloads

import "github.com/google/uuid"

// UploadCompleted is emitted after a bulk upload finishes ingestion.
type UploadCompleted struct {
	BulkUploadID   uuid.UUID `json:"bulkUploadId"`
	BusinessName   string    `json:"businessName"`
	FileName       string    `json:"fileName"`
	ItemCount      int       `json:"itemCount"`
	PublishedCount int       `json:"publishedCount"`
	DraftCount     int       `json:"draftCount"`
	FailedRowCount int       `json:"failedRowCount"`
}

// UploadFailed is emitted when an upload is rejected before any row survives.
type UploadFailed struct {
	BulkUploadID uuid.UUID `json:"bulkUploadId"`
	BusinessName string    `json:"businessName"`
	Reason       string    `json:"reason"`
}

// UploadDeleted is emitted when a bulk upload and its products are removed.
type UploadDeleted struct {
	BulkUploadID uuid.UUID `json:"bulkUploadId"`
	ProductCount int64     `json:"productCount"`
}

// DraftsEnriched is emitted after an enrichment batch completes.
type DraftsEnriched struct {
	BusinessName string    `json:"businessName"`
	BatchID      uuid.UUID `json:"batchId"`
	Total        int       `json:"total"`
	SavedCount   int       `json:"savedCount"`
	FailedCount  int       `json:"failedCount"`
}

// ProductPublishState is emitted on publish and unpublish transitions.
type ProductPublishState struct {
	ProductID    uuid.UUID `json:"productId"`
	BusinessName string    `json:"businessName"`
	IsPublished  bool      `json:"isPublished"`
}
