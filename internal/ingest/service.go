package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tochukwuani/pharmalink-backend/pkg/db"
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

type catalogLister interface {
	ListAll(ctx context.Context) ([]models.CanonicalProduct, error)
}

type uploadRepository interface {
	CreateUpload(ctx context.Context, upload *models.BulkUpload) error
	FindUpload(ctx context.Context, id uuid.UUID) (*models.BulkUpload, error)
	MarkUploadOutcome(ctx context.Context, id uuid.UUID, status enums.UploadStatus, itemCount int) error
	CreateProduct(ctx context.Context, product *models.Product) error
	DeleteProductsByUploadTx(tx *gorm.DB, uploadID uuid.UUID) (int64, error)
	DeleteUploadTx(tx *gorm.DB, id uuid.UUID) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service runs the ingestion pipeline: parse, classify, materialize.
type Service struct {
	tx        txRunner
	repo      uploadRepository
	catalog   catalogLister
	emitter   outboxEmitter
	logg      *logger.Logger
	metrics   *metrics.IngestionMetrics
	threshold float64
	maxRows   int
}

type ServiceParams struct {
	Tx                      txRunner
	Repository              uploadRepository
	Catalog                 catalogLister
	Outbox                  outboxEmitter
	Logger                  *logger.Logger
	Metrics                 *metrics.IngestionMetrics
	InstantPublishThreshold float64
	MaxRowsPerUpload        int
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("upload repository required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{
		tx:        params.Tx,
		repo:      params.Repository,
		catalog:   params.Catalog,
		emitter:   params.Outbox,
		logg:      params.Logger,
		metrics:   params.Metrics,
		threshold: params.InstantPublishThreshold,
		maxRows:   params.MaxRowsPerUpload,
	}, nil
}

// IngestBulkUpload runs one upload end to end. The upload record is written
// first so a failed batch still leaves an audit trail, then each parsed row
// is classified and persisted independently.
func (s *Service) IngestBulkUpload(ctx context.Context, req IngestRequest) (*IngestResponse, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}

	start := time.Now()
	upload := &models.BulkUpload{
		ID:             uuid.New(),
		BusinessName:   req.BusinessName,
		FileName:       req.FileName,
		RawFileContent: req.FileContent,
		Status:         enums.UploadProcessing,
	}
	if err := s.repo.CreateUpload(ctx, upload); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating upload record")
	}

	ctx = s.logg.WithUploadID(ctx, upload.ID.String())
	ctx = s.logg.WithBusinessName(ctx, req.BusinessName)

	rows, rowErrors, err := ParseRows(req.FileContent)
	if err != nil {
		s.failUpload(ctx, upload, err.Error())
		return nil, err
	}
	if s.maxRows > 0 && len(rows) > s.maxRows {
		reason := fmt.Sprintf("upload exceeds the %d row limit", s.maxRows)
		s.failUpload(ctx, upload, reason)
		return nil, pkgerrors.New(pkgerrors.CodeValidation, reason)
	}

	catalog, err := s.catalog.ListAll(ctx)
	if err != nil {
		s.failUpload(ctx, upload, "loading catalog failed")
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading catalog")
	}
	classifier := NewClassifierFromCatalog(catalog, s.threshold)

	response := &IngestResponse{
		UploadID: upload.ID.String(),
		Errors:   rowErrors,
	}
	response.Summary.RowsParsed = len(rows)
	response.Summary.Failed = len(rowErrors)

	for _, row := range rows {
		product, published := classifier.Classify(row, req.BusinessName, upload.ID, req.Coordinates)
		if err := s.repo.CreateProduct(ctx, &product); err != nil {
			reason := "persisting product failed"
			if db.IsUniqueViolation(err, "") {
				reason = "duplicate product for this business"
			}
			response.Errors = append(response.Errors, RowError{Row: row.Values, Reason: reason})
			response.Summary.Failed++
			continue
		}
		response.SavedProducts = append(response.SavedProducts, product)
		if published {
			response.Summary.InstantPublished++
		} else {
			response.Summary.Drafted++
		}
	}

	saved := len(response.SavedProducts)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.MarkUploadOutcome(ctx, upload.ID, enums.UploadCompleted, saved); err != nil {
			return err
		}
		return s.emitter.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventUploadCompleted,
			AggregateType: enums.AggregateBulkUpload,
			AggregateID:   upload.ID,
			Version:       1,
			Data: payloads.UploadCompleted{
				BulkUploadID:   upload.ID,
				BusinessName:   req.BusinessName,
				FileName:       req.FileName,
				ItemCount:      saved,
				PublishedCount: response.Summary.InstantPublished,
				DraftCount:     response.Summary.Drafted,
				FailedRowCount: response.Summary.Failed,
			},
		})
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "finalizing upload")
	}

	s.metrics.AddRows(metrics.RowOutcomeParsed, response.Summary.RowsParsed)
	s.metrics.AddRows(metrics.RowOutcomeInstantPublished, response.Summary.InstantPublished)
	s.metrics.AddRows(metrics.RowOutcomeDrafted, response.Summary.Drafted)
	s.metrics.AddRows(metrics.RowOutcomeFailed, response.Summary.Failed)
	s.metrics.ObserveBatchDuration("ingest", time.Since(start))
	s.metrics.IncBatchSuccess("ingest")

	fields := map[string]any{
		"rows_parsed":       response.Summary.RowsParsed,
		"instant_published": response.Summary.InstantPublished,
		"drafted":           response.Summary.Drafted,
		"failed":            response.Summary.Failed,
	}
	s.logg.Info(s.logg.WithFields(ctx, fields), "bulk upload ingested")
	return response, nil
}

// DeleteBulkUpload removes the upload's spawned products and then the upload
// record itself. The cascade is an explicit two-step delete inside one
// transaction.
func (s *Service) DeleteBulkUpload(ctx context.Context, id uuid.UUID) (*DeleteResponse, error) {
	if _, err := s.repo.FindUpload(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "bulk upload not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading upload")
	}

	response := &DeleteResponse{}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		deleted, err := s.repo.DeleteProductsByUploadTx(tx, id)
		if err != nil {
			return fmt.Errorf("deleting spawned products: %w", err)
		}
		response.DeletedProducts = deleted

		if err := s.repo.DeleteUploadTx(tx, id); err != nil {
			return fmt.Errorf("deleting upload record: %w", err)
		}

		return s.emitter.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventUploadDeleted,
			AggregateType: enums.AggregateBulkUpload,
			AggregateID:   id,
			Version:       1,
			Data: payloads.UploadDeleted{
				BulkUploadID: id,
				ProductCount: deleted,
			},
		})
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "deleting bulk upload")
	}

	ctx = s.logg.WithUploadID(ctx, id.String())
	s.logg.Info(s.logg.WithField(ctx, "deleted_products", response.DeletedProducts), "bulk upload deleted")
	return response, nil
}

func (s *Service) failUpload(ctx context.Context, upload *models.BulkUpload, reason string) {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.MarkUploadOutcome(ctx, upload.ID, enums.UploadFailed, 0); err != nil {
			return err
		}
		return s.emitter.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventUploadFailed,
			AggregateType: enums.AggregateBulkUpload,
			AggregateID:   upload.ID,
			Version:       1,
			Data: payloads.UploadFailed{
				BulkUploadID: upload.ID,
				BusinessName: upload.BusinessName,
				Reason:       reason,
			},
		})
	})
	if err != nil {
		s.logg.Error(ctx, "marking upload failed", err)
	}
	s.metrics.IncBatchFailure("ingest")
}
