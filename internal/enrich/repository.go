package enrich

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tochukwuani/pharmalink-backend/pkg/db/models"
	"github.com/tochukwuani/pharmalink-backend/pkg/enums"
)

// Repository persists draft stocks and tracks product enrichment state.
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

// InsertDraft writes one enriched draft. The (item_name, business_name)
// unique index rejects duplicates at the store level.
func (r *Repository) InsertDraft(ctx context.Context, draft *models.DraftStock) error {
	return r.db.WithContext(ctx).Create(draft).Error
}

// ListDraftsByBusiness returns a business's drafts, newest first.
func (r *Repository) ListDraftsByBusiness(ctx context.Context, businessName string, limit int) ([]models.DraftStock, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []models.DraftStock
	err := r.db.WithContext(ctx).
		Where("business_name = ?", businessName).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// ListPendingProducts fetches products still awaiting enrichment, oldest
// first so the sweep drains the backlog in order.
func (r *Repository) ListPendingProducts(ctx context.Context, limit int) ([]models.Product, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []models.Product
	err := r.db.WithContext(ctx).
		Where("enrichment_status = ?", enums.EnrichmentPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// UpdateProductEnrichment applies an enrichment outcome to a pending product.
func (r *Repository) UpdateProductEnrichment(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// MarkProductEnrichmentFailed flips only the status, leaving fields intact
// for a later retry or manual review.
func (r *Repository) MarkProductEnrichmentFailed(ctx context.Context, id uuid.UUID) error {
	return r.UpdateProductEnrichment(ctx, id, map[string]any{
		"enrichment_status": enums.EnrichmentFailed,
	})
}
