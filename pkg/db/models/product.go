package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tochukwuani/pharmalink-backend/pkg/enums"
)

// Product is a seller listing, published or draft. Rows are created by the
// instant-publish path (published, enrichment completed) or the draft path
// (unpublished, enrichment pending), then mutated by the enricher and the
// publish validator.
type Product struct {
	ID               uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ItemName         string                 `gorm:"column:item_name;not null"`
	ActiveIngredient string                 `gorm:"column:active_ingredient;not null;default:''"`
	Category         string                 `gorm:"column:category;not null;default:''"`
	Amount           decimal.Decimal        `gorm:"column:amount;type:numeric(12,2);not null"`
	AmountInStock    int                    `gorm:"column:amount_in_stock;not null;default:0"`
	ImageURL         string                 `gorm:"column:image_url;not null;default:''"`
	BusinessName     string                 `gorm:"column:business_name;not null"`
	IsPublished      bool                   `gorm:"column:is_published;not null;default:false"`
	POM              bool                   `gorm:"column:pom;not null;default:false"`
	Slug             string                 `gorm:"column:slug;not null;default:''"`
	Info             string                 `gorm:"column:info;not null;default:''"`
	Coordinates      *string                `gorm:"column:coordinates"`
	BulkUploadID     *uuid.UUID             `gorm:"column:bulk_upload_id;type:uuid"`
	EnrichmentStatus enums.EnrichmentStatus `gorm:"column:enrichment_status;not null;default:pending"`
	CreatedAt        time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}
