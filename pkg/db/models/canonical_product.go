package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// CanonicalProduct is the catalog's ground-truth description of a product.
// Rows are immutable reference data as far as ingestion is concerned.
type CanonicalProduct struct {
	ID               uuid.UUID      `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ItemName         string         `gorm:"column:item_name;not null"`
	ActiveIngredient string         `gorm:"column:active_ingredient;not null"`
	Category         string         `gorm:"column:category;not null"`
	POM              bool           `gorm:"column:pom;not null;default:false"`
	ImageURL         string         `gorm:"column:image_url"`
	Info             string         `gorm:"column:info"`
	Synonyms         pq.StringArray `gorm:"column:synonyms;type:text[]"`
	CreatedAt        time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}
