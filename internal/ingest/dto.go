package ingest

import (
	"github.com/tochukwuani/pharmalink-backend/pkg/db/models"
)

// IngestRequest is the transport-agnostic input for a bulk upload.
type IngestRequest struct {
	FileName     string `json:"fileName" validate:"required"`
	FileContent  string `json:"fileContent" validate:"required"`
	BusinessName string `json:"businessName" validate:"required"`
	Coordinates  string `json:"coordinates,omitempty" validate:"omitempty"`
}

// IngestSummary reports per-batch row counts.
type IngestSummary struct {
	RowsParsed       int `json:"rowsParsed"`
	InstantPublished int `json:"instantPublished"`
	Drafted          int `json:"drafted"`
	Failed           int `json:"failed"`
}

// IngestResponse is the structured batch result. Callers always get counts
// plus a per-row error list, never a bare success flag.
type IngestResponse struct {
	UploadID      string           `json:"uploadId"`
	Summary       IngestSummary    `json:"summary"`
	SavedProducts []models.Product `json:"savedProducts"`
	Errors        []RowError       `json:"errors"`
}

// DeleteResponse reports what a cascade delete removed.
type DeleteResponse struct {
	DeletedProducts int64 `json:"deletedProducts"`
}
