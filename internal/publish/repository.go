package publish

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tochukwuani/pharmalink-backend/pkg/db/models"
)

// placeholderField mirrors what the drafting path writes into descriptive
// fields it could not fill. Rows still carrying it are not publishable.
const placeholderField = "N/A"

// Repository runs the publish-state queries against the products table.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// FindProduct loads a product by id.
func (r *Repository) FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).First(&product, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// completenessScope restricts a query to rows meeting the completeness
// predicate: an image is set and no placeholder descriptive fields are left
// over from the drafting path. Publish state is deliberately not part of the
// scope; an already-published complete row is still "valid", it just does not
// flip again.
func completenessScope(q *gorm.DB) *gorm.DB {
	return q.
		Where("image_url <> ''").
		Where("active_ingredient <> ?", placeholderField).
		Where("category <> ?", placeholderField).
		Where("info <> ?", placeholderField)
}

// ListPublishableTx returns the subset of the given ids that currently meets
// the completeness predicate. Ids that fail the predicate are silently
// dropped.
func (r *Repository) ListPublishableTx(tx *gorm.DB, ids []uuid.UUID) ([]models.Product, error) {
	var products []models.Product
	q := completenessScope(tx.Where("id IN ?", ids))
	if err := q.Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}

// PublishByIDsTx atomically flips the given ids to published. The unpublished
// guard and the completeness predicate are re-checked inside the update, so a
// concurrently published row is skipped rather than double-counted. Returns
// the number of rows actually modified.
func (r *Repository) PublishByIDsTx(tx *gorm.DB, ids []uuid.UUID) (int64, error) {
	result := completenessScope(
		tx.Model(&models.Product{}).
			Where("id IN ?", ids).
			Where("is_published = ?", false),
	).Update("is_published", true)
	return result.RowsAffected, result.Error
}

// SetPublishedTx flips a single row's publish flag, guarded by the current
// state so a redundant flip affects zero rows. Publishing additionally
// requires the completeness predicate.
func (r *Repository) SetPublishedTx(tx *gorm.DB, id uuid.UUID, published bool) (int64, error) {
	q := tx.Model(&models.Product{}).
		Where("id = ?", id).
		Where("is_published = ?", !published)
	if published {
		q = q.
			Where("image_url <> ''").
			Where("active_ingredient <> ?", placeholderField).
			Where("category <> ?", placeholderField).
			Where("info <> ?", placeholderField)
	}
	result := q.Update("is_published", published)
	return result.RowsAffected, result.Error
}
