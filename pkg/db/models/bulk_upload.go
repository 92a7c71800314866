package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/tochukwuani/pharmalink-backend/pkg/enums"
)

// BulkUpload records one upload attempt. Rows are append-only; only the
// status flips on a terminal outcome.
type BulkUpload struct {
	ID             uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BusinessName   string             `gorm:"column:business_name;not null"`
	FileName       string             `gorm:"column:file_name;not null"`
	RawFileContent string             `gorm:"column:raw_file_content;not null"`
	ItemCount      int                `gorm:"column:item_count;not null;default:0"`
	Status         enums.UploadStatus `gorm:"column:status;not null;default:processing"`
	CreatedAt      time.Time          `gorm:"column:created_at;autoCreateTime"`
}
