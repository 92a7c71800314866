package ingest

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tochukwuani/pharmalink-backend/pkg/db/models"
	"github.com/tochukwuani/pharmalink-backend/pkg/enums"
)

// Repository persists bulk uploads and the products they spawn.
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

// CreateUpload inserts the upload audit record.
func (r *Repository) CreateUpload(ctx context.Context, upload *models.BulkUpload) error {
	return r.db.WithContext(ctx).Create(upload).Error
}

// FindUpload loads an upload by id.
func (r *Repository) FindUpload(ctx context.Context, id uuid.UUID) (*models.BulkUpload, error) {
	var upload models.BulkUpload
	if err := r.db.WithContext(ctx).First(&upload, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &upload, nil
}

// MarkUploadOutcome flips the upload to its terminal status and records the
// final item count.
func (r *Repository) MarkUploadOutcome(ctx context.Context, id uuid.UUID, status enums.UploadStatus, itemCount int) error {
	return r.db.WithContext(ctx).
		Model(&models.BulkUpload{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     status,
			"item_count": itemCount,
		}).Error
}

// CreateProduct inserts a single materialized product row.
func (r *Repository) CreateProduct(ctx context.Context, product *models.Product) error {
	return r.db.WithContext(ctx).Create(product).Error
}

// DeleteProductsByUploadTx removes every product spawned by the upload and
// reports how many rows were deleted.
func (r *Repository) DeleteProductsByUploadTx(tx *gorm.DB, uploadID uuid.UUID) (int64, error) {
	if tx == nil {
		return 0, errors.New("transaction required")
	}
	result := tx.Where("bulk_upload_id = ?", uploadID).Delete(&models.Product{})
	return result.RowsAffected, result.Error
}

// DeleteUploadTx removes the upload record itself.
func (r *Repository) DeleteUploadTx(tx *gorm.DB, id uuid.UUID) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Where("id = ?", id).Delete(&models.BulkUpload{}).Error
}
