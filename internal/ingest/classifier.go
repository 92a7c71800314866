package ingest

import (
	"github.com/google/uuid"

	"github.com/tochukwuani/pharmalink-backend/internal/match"
	"github.com/tochukwuani/pharmalink-backend/pkg/db/models"
	"github.com/tochukwuani/pharmalink-backend/pkg/enums"
)

// placeholderField marks descriptive fields the drafting path could not fill.
// The publish validator refuses to publish rows still carrying it.
const placeholderField = "N/A"

// Classifier decides instant-publish vs draft for each parsed row.
type Classifier struct {
	index     *match.CatalogIndex
	threshold float64
}

// NewClassifier builds a classifier over the given catalog index. A
// non-positive threshold falls back to the instant-publish default.
func NewClassifier(index *match.CatalogIndex, threshold float64) *Classifier {
	if threshold <= 0 {
		threshold = match.InstantPublishThreshold
	}
	return &Classifier{index: index, threshold: threshold}
}

// NewClassifierFromCatalog indexes the catalog rows and wraps them in a
// classifier.
func NewClassifierFromCatalog(catalog []models.CanonicalProduct, threshold float64) *Classifier {
	return NewClassifier(match.NewCatalogIndex(catalog), threshold)
}

// Classify materializes a parsed row as a Product. A best match at or below
// the threshold takes the instant-publish path: the product goes live with
// every descriptive field copied from the catalog, while amount, stock, and
// coordinates still come from the row. Anything else becomes an unpublished
// draft with placeholder fields, awaiting enrichment.
func (c *Classifier) Classify(row RawRow, businessName string, uploadID uuid.UUID, coordinates string) (models.Product, bool) {
	if coordinates == "" {
		coordinates = row.Coordinates
	}
	var coordsPtr *string
	if coordinates != "" {
		coordsPtr = &coordinates
	}

	product := models.Product{
		ID:            uuid.New(),
		ItemName:      row.ItemName,
		Amount:        row.Amount,
		AmountInStock: row.AmountInStock,
		BusinessName:  businessName,
		Coordinates:   coordsPtr,
		BulkUploadID:  &uploadID,
	}

	best, score := c.index.BestMatch(row.ItemName)
	if best != nil && score <= c.threshold {
		product.ItemName = best.ItemName
		product.ActiveIngredient = best.ActiveIngredient
		product.Category = best.Category
		product.POM = best.POM
		product.ImageURL = best.ImageURL
		product.Info = best.Info
		product.IsPublished = true
		product.EnrichmentStatus = enums.EnrichmentCompleted
		product.Slug = Slugify(best.ItemName)
		return product, true
	}

	product.ActiveIngredient = placeholderField
	product.Category = placeholderField
	product.Info = ""
	product.POM = false
	product.IsPublished = false
	product.EnrichmentStatus = enums.EnrichmentPending
	product.Slug = Slugify(row.ItemName)
	return product, false
}
