package publish

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tochukwuani/pharmalink-backend/pkg/db/models"
	"github.com/tochukwuani/pharmalink-backend/pkg/enums"
	pkgerrors "github.com/tochukwuani/pharmalink-backend/pkg/errors"
	"github.com/tochukwuani/pharmalink-backend/pkg/logger"
	"github.com/tochukwuani/pharmalink-backend/pkg/metrics"
	"github.com/tochukwuani/pharmalink-backend/pkg/outbox"
	"github.com/tochukwuani/pharmalink-backend/pkg/outbox/payloads"
	"github.com/tochukwuani/pharmalink-backend/pkg/validate"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type productRepository interface {
	FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	ListPublishableTx(tx *gorm.DB, ids []uuid.UUID) ([]models.Product, error)
	PublishByIDsTx(tx *gorm.DB, ids []uuid.UUID) (int64, error)
	SetPublishedTx(tx *gorm.DB, id uuid.UUID, published bool) (int64, error)
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// PublishBulkRequest carries the candidate product ids for a bulk publish.
type PublishBulkRequest struct {
	IDs []uuid.UUID `json:"ids" validate:"required,min=1"`
}

// PublishBulkResponse reports how many rows were actually flipped. The count
// may be lower than the input size: ineligible ids are silently excluded and
// concurrently published rows are not counted again.
type PublishBulkResponse struct {
	PublishedCount int64 `json:"publishedCount"`
}

// PublishResult is the single-item publish/unpublish outcome. Changed is
// false when the row was already in the requested state.
type PublishResult struct {
	Product *models.Product `json:"product"`
	Changed bool            `json:"changed"`
}

// Service flips products between draft and published states.
type Service struct {
	tx      txRunner
	repo    productRepository
	emitter outboxEmitter
	logg    *logger.Logger
	metrics *metrics.IngestionMetrics
}

type ServiceParams struct {
	Tx         txRunner
	Repository productRepository
	Outbox     outboxEmitter
	Logger     *logger.Logger
	Metrics    *metrics.IngestionMetrics
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{
		tx:      params.Tx,
		repo:    params.Repository,
		emitter: params.Outbox,
		logg:    params.Logger,
		metrics: params.Metrics,
	}, nil
}

// PublishBulk filters the given ids down to rows meeting the completeness
// predicate and flips the unpublished ones to published in a single atomic
// update. Ids that fail the predicate are dropped without individual errors;
// a set where no id passes the predicate fails the whole call. Repeating the
// call is harmless: valid rows are already published, so it reports a zero
// count without an error.
func (s *Service) PublishBulk(ctx context.Context, req PublishBulkRequest) (*PublishBulkResponse, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}

	start := time.Now()
	var published int64
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		eligible, err := s.repo.ListPublishableTx(tx, req.IDs)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "selecting publishable products")
		}
		if len(eligible) == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "nothing valid to publish")
		}

		toFlip := make([]models.Product, 0, len(eligible))
		for _, product := range eligible {
			if !product.IsPublished {
				toFlip = append(toFlip, product)
			}
		}
		if len(toFlip) == 0 {
			return nil
		}

		flipIDs := make([]uuid.UUID, 0, len(toFlip))
		for _, product := range toFlip {
			flipIDs = append(flipIDs, product.ID)
		}
		published, err = s.repo.PublishByIDsTx(tx, flipIDs)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "publishing products")
		}

		for _, product := range toFlip {
			event := outbox.DomainEvent{
				EventType:     enums.EventProductPublished,
				AggregateType: enums.AggregateProduct,
				AggregateID:   product.ID,
				Data: payloads.ProductPublishState{
					ProductID:    product.ID,
					BusinessName: product.BusinessName,
					IsPublished:  true,
				},
			}
			if err := s.emitter.Emit(ctx, tx, event); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emitting publish event")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveBatchDuration("publish", time.Since(start))
	s.metrics.IncBatchSuccess("publish")
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"requested_count": len(req.IDs),
		"published_count": published,
	})
	s.logg.Info(logCtx, "bulk publish completed")

	return &PublishBulkResponse{PublishedCount: published}, nil
}

// PublishOne publishes a single product. Publishing an already-published row
// is a no-op, not an error. A row failing the completeness predicate is a
// state conflict.
func (s *Service) PublishOne(ctx context.Context, id uuid.UUID) (*PublishResult, error) {
	product, err := s.findProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if product.IsPublished {
		return &PublishResult{Product: product, Changed: false}, nil
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		affected, err := s.repo.SetPublishedTx(tx, id, true)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "publishing product")
		}
		if affected == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "product is not ready to publish")
		}
		return s.emitter.Emit(ctx, tx, publishStateEvent(product, true))
	})
	if err != nil {
		return nil, err
	}

	product.IsPublished = true
	s.logg.Info(s.logg.WithField(ctx, "product_id", id.String()), "product published")
	return &PublishResult{Product: product, Changed: true}, nil
}

// UnpublishOne retracts a published product. Unpublishing an already
// unpublished row is a distinct no-op; a missing row is a not-found error.
func (s *Service) UnpublishOne(ctx context.Context, id uuid.UUID) (*PublishResult, error) {
	product, err := s.findProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if !product.IsPublished {
		return &PublishResult{Product: product, Changed: false}, nil
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		affected, err := s.repo.SetPublishedTx(tx, id, false)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unpublishing product")
		}
		if affected == 0 {
			// concurrent retraction already happened
			return nil
		}
		return s.emitter.Emit(ctx, tx, publishStateEvent(product, false))
	})
	if err != nil {
		return nil, err
	}

	product.IsPublished = false
	s.logg.Info(s.logg.WithField(ctx, "product_id", id.String()), "product unpublished")
	return &PublishResult{Product: product, Changed: true}, nil
}

func (s *Service) findProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	product, err := s.repo.FindProduct(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading product")
	}
	return product, nil
}

func publishStateEvent(product *models.Product, published bool) outbox.DomainEvent {
	eventType := enums.EventProductPublished
	if !published {
		eventType = enums.EventProductUnpublished
	}
	return outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateProduct,
		AggregateID:   product.ID,
		Data: payloads.ProductPublishState{
			ProductID:    product.ID,
			BusinessName: product.BusinessName,
			IsPublished:  published,
		},
	}
}
