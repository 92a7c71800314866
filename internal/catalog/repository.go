package catalog

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tochukwuani/pharmalink-backend/pkg/db/models"
)

// Repository provides read access to the canonical product catalog.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// ListAll loads the full catalog, ordered by name for deterministic scans.
func (r *Repository) ListAll(ctx context.Context) ([]models.CanonicalProduct, error) {
	var rows []models.CanonicalProduct
	err := r.db.WithContext(ctx).
		Order("item_name ASC").
		Find(&rows).Error
	return rows, err
}

// FindByID loads a single catalog row.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.CanonicalProduct, error) {
	var row models.CanonicalProduct
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &row, nil
}
