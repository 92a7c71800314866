package match

import (
	"github.com/tochukwuani/pharmalink-backend/pkg/db/models"
)

// InstantPublishThreshold is the fuzzy score at or below which a row is
// considered an exact catalog hit and published without enrichment.
const InstantPublishThreshold = 0.01

// Candidate is one indexed lookup term pointing back at its catalog product.
type Candidate struct {
	Term    string
	Product *models.CanonicalProduct
}

// CatalogIndex holds the canonical catalog in memory for fuzzy lookup. Both
// the item name and every synonym are indexed as lookup terms, all pointing
// at the same product. The index is built once per ingestion batch and is
// read-only afterwards.
type CatalogIndex struct {
	exact      map[string]*models.CanonicalProduct
	candidates []Candidate
}

// NewCatalogIndex builds an index over the given catalog rows.
func NewCatalogIndex(catalog []models.CanonicalProduct) *CatalogIndex {
	idx := &CatalogIndex{
		exact: make(map[string]*models.CanonicalProduct, len(catalog)),
	}
	for i := range catalog {
		product := &catalog[i]
		idx.addTerm(product.ItemName, product)
		for _, synonym := range product.Synonyms {
			idx.addTerm(synonym, product)
		}
	}
	return idx
}

func (idx *CatalogIndex) addTerm(term string, product *models.CanonicalProduct) {
	normalized := Normalize(term)
	if normalized == "" {
		return
	}
	if _, ok := idx.exact[normalized]; !ok {
		idx.exact[normalized] = product
	}
	idx.candidates = append(idx.candidates, Candidate{Term: normalized, Product: product})
}

// Len reports how many lookup terms are indexed.
func (idx *CatalogIndex) Len() int {
	return len(idx.candidates)
}

// BestMatch returns the catalog product whose indexed term scores lowest
// against the given item name, together with that score. An exact normalized
// hit short-circuits at score 0. Returns (nil, 1) when the index is empty or
// the name normalizes to nothing.
func (idx *CatalogIndex) BestMatch(itemName string) (*models.CanonicalProduct, float64) {
	normalized := Normalize(itemName)
	if normalized == "" || len(idx.candidates) == 0 {
		return nil, 1
	}
	if product, ok := idx.exact[normalized]; ok {
		return product, 0
	}

	var best *models.CanonicalProduct
	bestScore := 1.0
	for _, candidate := range idx.candidates {
		score := Score(normalized, candidate.Term)
		if score < bestScore {
			bestScore = score
			best = candidate.Product
		}
	}
	return best, bestScore
}
