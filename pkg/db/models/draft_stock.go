package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// DraftStock holds an enriched-but-unpublished candidate product. The
// (item_name, business_name) pair is unique: a business cannot carry two
// drafts under the same declared name.
type DraftStock struct {
	ID                uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ItemName          string          `gorm:"column:item_name;not null;uniqueIndex:ux_draft_stocks_item_business"`
	BusinessName      string          `gorm:"column:business_name;not null;uniqueIndex:ux_draft_stocks_item_business"`
	ActiveIngredient  string          `gorm:"column:active_ingredient;not null;default:''"`
	Category          string          `gorm:"column:category;not null;default:''"`
	Amount            decimal.Decimal `gorm:"column:amount;type:numeric(12,2);not null"`
	AmountInStock     int             `gorm:"column:amount_in_stock;not null;default:0"`
	ImageURL          string          `gorm:"column:image_url;not null;default:''"`
	IsPublished       bool            `gorm:"column:is_published;not null;default:false"`
	POM               bool            `gorm:"column:pom;not null;default:false"`
	Slug              string          `gorm:"column:slug;not null;default:''"`
	Info              string          `gorm:"column:info;not null;default:''"`
	Coordinates       *string         `gorm:"column:coordinates"`
	AIConfidenceScore int             `gorm:"column:ai_confidence_score;not null;default:0"`
	OriginalRawData   datatypes.JSON  `gorm:"column:original_raw_data"`
	BulkUploadID      *uuid.UUID      `gorm:"column:bulk_upload_id;type:uuid"`
	CreatedAt         time.Time       `gorm:"column:created_at;autoCreateTime"`
}
