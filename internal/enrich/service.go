package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/tochukwuani/pharmalink-backend/internal/ingest"
	"github.com/tochukwuani/pharmalink-backend/internal/vector"
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

// ImageConfidenceFloor is the minimum model confidence before a candidate's
// catalog image is attached to a draft.
const ImageConfidenceFloor = 50

// DefaultWorkerLimit bounds the per-batch fan-out against the model API.
const DefaultWorkerLimit = 8

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type catalogLister interface {
	ListAll(ctx context.Context) ([]models.CanonicalProduct, error)
}

type draftRepository interface {
	InsertDraft(ctx context.Context, draft *models.DraftStock) error
	ListDraftsByBusiness(ctx context.Context, businessName string, limit int) ([]models.DraftStock, error)
}

type chatCompleter interface {
	ChatJSON(ctx context.Context, system, user string) (json.RawMessage, error)
}

type candidateMatcher interface {
	BuildIndex(ctx context.Context, catalog []models.CanonicalProduct) (*vector.Index, error)
	BestCandidate(ctx context.Context, idx *vector.Index, itemName string) (*vector.Neighbor, error)
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// EnrichRequest is the transport-agnostic input for an enrichment batch.
type EnrichRequest struct {
	RawRows      []map[string]string `json:"rawRows" validate:"required,min=1"`
	BusinessName string              `json:"businessName" validate:"required"`
}

// EnrichResponse aggregates the batch outcome. Per-row failures never abort
// siblings; the caller always sees counts plus the error list.
type EnrichResponse struct {
	Total       int                 `json:"total"`
	SavedCount  int                 `json:"savedDraftCount"`
	SavedDrafts []models.DraftStock `json:"savedDrafts"`
	Errors      []ingest.RowError   `json:"errors"`
}

// Service runs AI enrichment batches under the singleton enrichment lock.
type Service struct {
	tx          txRunner
	repo        draftRepository
	catalog     catalogLister
	matcher     candidateMatcher
	chat        chatCompleter
	lock        Lock
	emitter     outboxEmitter
	logg        *logger.Logger
	metrics     *metrics.IngestionMetrics
	workerLimit int
	imageFloor  int
}

type ServiceParams struct {
	Tx                  txRunner
	Repository          draftRepository
	Catalog             catalogLister
	Matcher             candidateMatcher
	Chat                chatCompleter
	Lock                Lock
	Outbox              outboxEmitter
	Logger              *logger.Logger
	Metrics             *metrics.IngestionMetrics
	WorkerLimit         int
	ImageConfidenceGate int
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("draft repository required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if params.Matcher == nil {
		return nil, fmt.Errorf("vector matcher required")
	}
	if params.Chat == nil {
		return nil, fmt.Errorf("chat completer required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("enrichment lock required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	workerLimit := params.WorkerLimit
	if workerLimit <= 0 {
		workerLimit = DefaultWorkerLimit
	}
	imageFloor := params.ImageConfidenceGate
	if imageFloor <= 0 {
		imageFloor = ImageConfidenceFloor
	}
	return &Service{
		tx:          params.Tx,
		repo:        params.Repository,
		catalog:     params.Catalog,
		matcher:     params.Matcher,
		chat:        params.Chat,
		lock:        params.Lock,
		emitter:     params.Outbox,
		logg:        params.Logger,
		metrics:     params.Metrics,
		workerLimit: workerLimit,
		imageFloor:  imageFloor,
	}, nil
}

// rowOutcome captures one row's enrichment result before persistence.
type rowOutcome struct {
	raw    map[string]string
	draft  *models.DraftStock
	rowErr *ingest.RowError
}

// EnrichAndUpload runs one enrichment batch. The call is refused with a busy
// signal when another batch holds the lock. Rows fan out concurrently with a
// bounded worker limit; each row succeeds or fails on its own.
func (s *Service) EnrichAndUpload(ctx context.Context, req EnrichRequest) (*EnrichResponse, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}

	acquired, err := s.lock.Acquire(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "acquiring enrichment lock")
	}
	if !acquired {
		return nil, pkgerrors.New(pkgerrors.CodeBusy, "an enrichment batch is already in progress")
	}
	defer func() {
		if err := s.lock.Release(ctx); err != nil {
			s.logg.Error(ctx, "releasing enrichment lock", err)
		}
	}()

	start := time.Now()
	batchID := uuid.New()
	ctx = s.logg.WithBatchID(ctx, batchID.String())
	ctx = s.logg.WithBusinessName(ctx, req.BusinessName)

	catalog, err := s.catalog.ListAll(ctx)
	if err != nil {
		s.metrics.IncBatchFailure("enrich")
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading catalog")
	}
	idx, err := s.matcher.BuildIndex(ctx, catalog)
	if err != nil {
		// total vector outage degrades to "no candidates", not a hard failure
		s.logg.Error(ctx, "building vector index, continuing without candidates", err)
		idx = nil
	}

	outcomes := make([]rowOutcome, len(req.RawRows))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.workerLimit)
	for i, raw := range req.RawRows {
		group.Go(func() error {
			outcomes[i] = s.enrichRow(groupCtx, idx, raw, req.BusinessName)
			return nil
		})
	}
	// workers never return errors; failures live in their outcome slot
	_ = group.Wait()

	response := &EnrichResponse{Total: len(req.RawRows)}
	for _, outcome := range outcomes {
		if outcome.rowErr != nil {
			response.Errors = append(response.Errors, *outcome.rowErr)
			continue
		}
		if err := s.repo.InsertDraft(ctx, outcome.draft); err != nil {
			reason := "persisting draft failed"
			if db.IsUniqueViolation(err, "ux_draft_stocks_item_business") {
				reason = "a draft with this name already exists for this business"
			}
			response.Errors = append(response.Errors, ingest.RowError{
				Row:    outcome.raw,
				Reason: reason,
			})
			continue
		}
		response.SavedCount++
		response.SavedDrafts = append(response.SavedDrafts, *outcome.draft)
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.emitter.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventDraftsEnriched,
			AggregateType: enums.AggregateDraftStock,
			AggregateID:   batchID,
			Version:       1,
			Data: payloads.DraftsEnriched{
				BusinessName: req.BusinessName,
				BatchID:      batchID,
				Total:        response.Total,
				SavedCount:   response.SavedCount,
				FailedCount:  len(response.Errors),
			},
		})
	})
	if err != nil {
		s.logg.Error(ctx, "emitting drafts_enriched event", err)
	}

	s.metrics.AddRows(metrics.RowOutcomeEnriched, response.SavedCount)
	s.metrics.AddRows(metrics.RowOutcomeFailed, len(response.Errors))
	s.metrics.ObserveBatchDuration("enrich", time.Since(start))
	s.metrics.IncBatchSuccess("enrich")

	fields := map[string]any{
		"total":  response.Total,
		"saved":  response.SavedCount,
		"failed": len(response.Errors),
	}
	s.logg.Info(s.logg.WithFields(ctx, fields), "enrichment batch completed")
	return response, nil
}

// ListDrafts returns a business's saved drafts, newest first, for manual
// review of rows the batch could not publish.
func (s *Service) ListDrafts(ctx context.Context, businessName string, limit int) ([]models.DraftStock, error) {
	if businessName == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "business name is required")
	}
	drafts, err := s.repo.ListDraftsByBusiness(ctx, businessName, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing drafts")
	}
	return drafts, nil
}

// enrichRow resolves a candidate, calls the model, and builds the draft. All
// failures are captured in the outcome so siblings keep running.
func (s *Service) enrichRow(ctx context.Context, idx *vector.Index, raw map[string]string, businessName string) rowOutcome {
	itemName := ingest.FieldFromValues(raw, ingest.FieldItemName)
	if itemName == "" {
		return rowOutcome{rowErr: &ingest.RowError{Row: raw, Reason: "row is missing an item name"}}
	}

	var candidate *models.CanonicalProduct
	if idx != nil {
		neighbor, err := s.matcher.BestCandidate(ctx, idx, itemName)
		if err != nil {
			// vector failure degrades this row to "no database match found"
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "vector lookup failed")
		} else if neighbor != nil {
			candidate = neighbor.Product
		}
	}

	prompt, err := userPrompt(raw, candidate)
	if err != nil {
		return rowOutcome{rowErr: &ingest.RowError{Row: raw, Reason: err.Error()}}
	}
	payload, err := s.chat.ChatJSON(ctx, systemPrompt, prompt)
	if err != nil {
		return rowOutcome{rowErr: &ingest.RowError{Row: raw, Reason: "model call failed: " + err.Error()}}
	}
	result, err := parseResult(payload)
	if err != nil {
		return rowOutcome{rowErr: &ingest.RowError{Row: raw, Reason: err.Error()}}
	}

	// prefer row-parsed numbers over the model's extraction when resolvable
	if rawAmount := ingest.FieldFromValues(raw, ingest.FieldAmount); rawAmount != "" {
		if amount, err := ingest.ParseAmount(rawAmount); err == nil {
			result.Amount = amount
		}
	}

	draft := &models.DraftStock{
		ID:                uuid.New(),
		ItemName:          result.CleanedName,
		BusinessName:      businessName,
		ActiveIngredient:  result.ActiveIngredient,
		Category:          result.DrugClass,
		Amount:            result.Amount,
		AmountInStock:     result.AmountInStock,
		POM:               result.IsPOM,
		Info:              result.UnitForm,
		Slug:              ingest.Slugify(result.CleanedName),
		AIConfidenceScore: result.ConfidenceScore,
	}
	if candidate != nil && result.ConfidenceScore > s.imageFloor {
		draft.ImageURL = candidate.ImageURL
	}
	if rawJSON, err := json.Marshal(raw); err == nil {
		draft.OriginalRawData = rawJSON
	}
	return rowOutcome{raw: raw, draft: draft}
}
