package vector

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/tochukwuani/pharmalink-backend/pkg/db/models"
	pkgerrors "github.com/tochukwuani/pharmalink-backend/pkg/errors"
	"github.com/tochukwuani/pharmalink-backend/pkg/logger"
	redispkg "github.com/tochukwuani/pharmalink-backend/pkg/redis"
)

type embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float64, error)
}

type embeddingCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

// Matcher builds similarity indexes over catalog names and resolves candidate
// matches for draft item names. Embeddings are cached in Redis keyed by a hash
// of the model and text, so rebuilding an index for an unchanged catalog costs
// no model calls.
type Matcher struct {
	embedder embedder
	cache    embeddingCache
	cacheTTL time.Duration
	floor    float64
	logg     *logger.Logger
}

type MatcherParams struct {
	Embedder        embedder
	Cache           embeddingCache
	CacheTTL        time.Duration
	SimilarityFloor float64
	Logger          *logger.Logger
}

func NewMatcher(params MatcherParams) (*Matcher, error) {
	if params.Embedder == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "embedder is required")
	}
	floor := params.SimilarityFloor
	if floor <= 0 {
		floor = SimilarityFloor
	}
	return &Matcher{
		embedder: params.Embedder,
		cache:    params.Cache,
		cacheTTL: params.CacheTTL,
		floor:    floor,
		logg:     params.Logger,
	}, nil
}

// BuildIndex embeds every catalog item name and returns a queryable index.
func (m *Matcher) BuildIndex(ctx context.Context, catalog []models.CanonicalProduct) (*Index, error) {
	if len(catalog) == 0 {
		return NewIndex(nil, nil), nil
	}
	names := make([]string, len(catalog))
	for i := range catalog {
		names[i] = catalog[i].ItemName
	}
	embeddings, err := m.embedTexts(ctx, names)
	if err != nil {
		return nil, err
	}
	return NewIndex(catalog, embeddings), nil
}

// BestCandidate embeds the item name and queries the index. Returns nil with
// no error when nothing clears the similarity floor.
func (m *Matcher) BestCandidate(ctx context.Context, idx *Index, itemName string) (*Neighbor, error) {
	if idx == nil || idx.Len() == 0 {
		return nil, nil
	}
	embeddings, err := m.embedTexts(ctx, []string{itemName})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 || len(embeddings[0]) == 0 {
		return nil, nil
	}
	return idx.BestCandidate(embeddings[0], m.floor), nil
}

// embedTexts resolves each text from the cache when possible and embeds only
// the misses, preserving input order.
func (m *Matcher) embedTexts(ctx context.Context, texts []string) ([][]float64, error) {
	results := make([][]float64, len(texts))
	missing := make([]int, 0, len(texts))

	for i, text := range texts {
		if cached, ok := m.cachedEmbedding(ctx, text); ok {
			results[i] = cached
			continue
		}
		missing = append(missing, i)
	}

	if len(missing) == 0 {
		return results, nil
	}

	missingTexts := make([]string, len(missing))
	for i, idx := range missing {
		missingTexts[i] = texts[idx]
	}
	embedded, err := m.embedder.EmbedTexts(ctx, missingTexts)
	if err != nil {
		return nil, err
	}
	if len(embedded) != len(missing) {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "embedding count mismatch")
	}

	for i, idx := range missing {
		results[idx] = embedded[i]
		m.storeEmbedding(ctx, texts[idx], embedded[i])
	}
	return results, nil
}

func (m *Matcher) cachedEmbedding(ctx context.Context, text string) ([]float64, bool) {
	if m.cache == nil {
		return nil, false
	}
	raw, err := m.cache.Get(ctx, embeddingCacheKey(text))
	if err != nil {
		if !errors.Is(err, redispkg.Nil) && m.logg != nil {
			m.logg.Warn(m.logg.WithField(ctx, "error", err.Error()), "embedding cache read failed")
		}
		return nil, false
	}
	var embedding []float64
	if err := json.Unmarshal([]byte(raw), &embedding); err != nil {
		return nil, false
	}
	return embedding, true
}

func (m *Matcher) storeEmbedding(ctx context.Context, text string, embedding []float64) {
	if m.cache == nil || len(embedding) == 0 {
		return
	}
	raw, err := json.Marshal(embedding)
	if err != nil {
		return
	}
	if err := m.cache.Set(ctx, embeddingCacheKey(text), string(raw), m.cacheTTL); err != nil && m.logg != nil {
		m.logg.Warn(m.logg.WithField(ctx, "error", err.Error()), "embedding cache write failed")
	}
}

func embeddingCacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return redispkg.EmbeddingKey(hex.EncodeToString(sum[:]))
}
