package vector

import (
	"math"
	"sort"

	"github.com/tochukwuani/pharmalink-backend/pkg/db/models"
)

const (
	// TopK is how many nearest neighbors a similarity query returns.
	TopK = 5

	// SimilarityFloor is the minimum cosine similarity for a neighbor to be
	// accepted as a candidate match. At or below the floor the row is treated
	// as having no database match.
	SimilarityFloor = 0.4
)

// Neighbor is one similarity hit against the indexed catalog.
type Neighbor struct {
	Product    *models.CanonicalProduct
	Similarity float64
}

type entry struct {
	product   *models.CanonicalProduct
	embedding []float64
	norm      float64
}

// Index holds catalog name embeddings for cosine-similarity queries. Build it
// once per enrichment batch; it is read-only afterwards.
type Index struct {
	entries []entry
}

// NewIndex pairs catalog rows with their embeddings. Rows whose embedding is
// empty are skipped.
func NewIndex(catalog []models.CanonicalProduct, embeddings [][]float64) *Index {
	idx := &Index{}
	for i := range catalog {
		if i >= len(embeddings) || len(embeddings[i]) == 0 {
			continue
		}
		norm := vectorNorm(embeddings[i])
		if norm == 0 {
			continue
		}
		idx.entries = append(idx.entries, entry{
			product:   &catalog[i],
			embedding: embeddings[i],
			norm:      norm,
		})
	}
	return idx
}

// Len reports how many catalog rows are indexed.
func (idx *Index) Len() int {
	return len(idx.entries)
}

// TopNeighbors returns up to k nearest neighbors for the query embedding,
// ordered by descending similarity.
func (idx *Index) TopNeighbors(query []float64, k int) []Neighbor {
	if len(query) == 0 || len(idx.entries) == 0 || k <= 0 {
		return nil
	}
	queryNorm := vectorNorm(query)
	if queryNorm == 0 {
		return nil
	}

	neighbors := make([]Neighbor, 0, len(idx.entries))
	for _, e := range idx.entries {
		if len(e.embedding) != len(query) {
			continue
		}
		sim := dot(query, e.embedding) / (queryNorm * e.norm)
		neighbors = append(neighbors, Neighbor{Product: e.product, Similarity: sim})
	}
	sort.SliceStable(neighbors, func(i, j int) bool {
		return neighbors[i].Similarity > neighbors[j].Similarity
	})
	if len(neighbors) > k {
		neighbors = neighbors[:k]
	}
	return neighbors
}

// BestCandidate returns the top neighbor when its similarity clears the
// floor, otherwise nil. A non-positive floor falls back to SimilarityFloor.
func (idx *Index) BestCandidate(query []float64, floor float64) *Neighbor {
	if floor <= 0 {
		floor = SimilarityFloor
	}
	neighbors := idx.TopNeighbors(query, TopK)
	if len(neighbors) == 0 {
		return nil
	}
	best := neighbors[0]
	if best.Similarity <= floor {
		return nil
	}
	return &best
}

func dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func vectorNorm(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}
