package catalog

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/tochukwuani/pharmalink-backend/internal/match"
	"github.com/tochukwuani/pharmalink-backend/pkg/db/models"
	pkgerrors "github.com/tochukwuani/pharmalink-backend/pkg/errors"
	"github.com/tochukwuani/pharmalink-backend/pkg/logger"
)

// SuggestionDistanceRatio bounds how far a typed name may drift from a
// candidate before the suggestion is discarded. A suggestion is accepted only
// when the edit distance is strictly below ratio * len(candidate name).
const SuggestionDistanceRatio = 0.6

type catalogLister interface {
	ListAll(ctx context.Context) ([]models.CanonicalProduct, error)
}

// Suggester finds the closest catalog entry for a typed product name. It is a
// linear scan over the catalog; callers with hot paths should cache upstream.
type Suggester struct {
	repo catalogLister
	logg *logger.Logger
}

func NewSuggester(repo catalogLister, logg *logger.Logger) (*Suggester, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "catalog repository is required")
	}
	return &Suggester{repo: repo, logg: logg}, nil
}

// SuggestSimilar scans all catalog rows except excludeID and returns the
// minimum-edit-distance candidate, or nil when no candidate is close enough.
func (s *Suggester) SuggestSimilar(ctx context.Context, itemName string, excludeID uuid.UUID) (*models.CanonicalProduct, error) {
	typed := strings.ToLower(strings.TrimSpace(itemName))
	if typed == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item name is required")
	}

	rows, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing catalog")
	}

	var best *models.CanonicalProduct
	bestDistance := -1
	for i := range rows {
		if rows[i].ID == excludeID {
			continue
		}
		distance := match.Distance(typed, strings.ToLower(rows[i].ItemName))
		if bestDistance < 0 || distance < bestDistance {
			bestDistance = distance
			best = &rows[i]
		}
	}

	if best == nil {
		return nil, nil
	}
	if float64(bestDistance) >= SuggestionDistanceRatio*float64(len(best.ItemName)) {
		return nil, nil
	}

	if s.logg != nil {
		fields := map[string]any{
			"typed_name":    itemName,
			"suggestion":    best.ItemName,
			"edit_distance": bestDistance,
		}
		s.logg.Info(s.logg.WithFields(ctx, fields), "catalog suggestion found")
	}
	return best, nil
}
