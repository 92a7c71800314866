package enrich

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tochukwuani/pharmalink-backend/internal/ingest"
	"github.com/tochukwuani/pharmalink-backend/internal/vector"
	"github.com/tochukwuani/pharmalink-backend/pkg/db/models"
	"github.com/tochukwuani/pharmalink-backend/pkg/enums"
	"github.com/tochukwuani/pharmalink-backend/pkg/logger"
	"github.com/tochukwuani/pharmalink-backend/pkg/metrics"
)

// DefaultSweepInterval is how often the sweeper looks for pending products.
const DefaultSweepInterval = 5 * time.Minute

type pendingRepository interface {
	ListPendingProducts(ctx context.Context, limit int) ([]models.Product, error)
	UpdateProductEnrichment(ctx context.Context, id uuid.UUID, updates map[string]any) error
	MarkProductEnrichmentFailed(ctx context.Context, id uuid.UUID) error
}

// Sweeper drains products left in the pending enrichment state by the draft
// ingestion path. Each cycle runs under the same singleton lock as the
// interactive batch, so a sweep never races a caller-driven enrichment.
type Sweeper struct {
	repo        pendingRepository
	catalog     catalogLister
	matcher     candidateMatcher
	chat        chatCompleter
	lock        Lock
	logg        *logger.Logger
	metrics     *metrics.IngestionMetrics
	interval    time.Duration
	batchSize   int
	workerLimit int
	imageFloor  int
}

type SweeperParams struct {
	Repository          pendingRepository
	Catalog             catalogLister
	Matcher             candidateMatcher
	Chat                chatCompleter
	Lock                Lock
	Logger              *logger.Logger
	Metrics             *metrics.IngestionMetrics
	Interval            time.Duration
	BatchSize           int
	WorkerLimit         int
	ImageConfidenceGate int
}

func NewSweeper(params SweeperParams) (*Sweeper, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("pending repository required")
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
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	interval := params.Interval
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	workerLimit := params.WorkerLimit
	if workerLimit <= 0 {
		workerLimit = DefaultWorkerLimit
	}
	imageFloor := params.ImageConfidenceGate
	if imageFloor <= 0 {
		imageFloor = ImageConfidenceFloor
	}
	return &Sweeper{
		repo:        params.Repository,
		catalog:     params.Catalog,
		matcher:     params.Matcher,
		chat:        params.Chat,
		lock:        params.Lock,
		logg:        params.Logger,
		metrics:     params.Metrics,
		interval:    interval,
		batchSize:   batchSize,
		workerLimit: workerLimit,
		imageFloor:  imageFloor,
	}, nil
}

// Run sweeps immediately, then on every tick until the context is canceled.
func (s *Sweeper) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.runCycle(ctx); err != nil {
		s.logg.Error(ctx, "enrichment sweep failed", err)
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "enrichment sweeper context canceled")
			return ctx.Err()
		case <-ticker.C:
			if err := s.runCycle(ctx); err != nil {
				s.logg.Error(ctx, "enrichment sweep failed", err)
			}
		}
	}
}

func (s *Sweeper) runCycle(ctx context.Context) error {
	acquired, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("lock acquire: %w", err)
	}
	if !acquired {
		s.logg.Info(ctx, "enrichment lock held elsewhere; skipping this sweep")
		return nil
	}
	defer func() {
		if relErr := s.lock.Release(ctx); relErr != nil {
			s.logg.Error(ctx, "releasing enrichment lock", relErr)
		}
	}()

	pending, err := s.repo.ListPendingProducts(ctx, s.batchSize)
	if err != nil {
		return fmt.Errorf("listing pending products: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	start := time.Now()
	ctx = s.logg.WithField(ctx, "pending_count", len(pending))
	s.logg.Info(ctx, "enrichment sweep starting")

	catalog, err := s.catalog.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("loading catalog: %w", err)
	}
	idx, err := s.matcher.BuildIndex(ctx, catalog)
	if err != nil {
		s.logg.Error(ctx, "building vector index, continuing without candidates", err)
		idx = nil
	}

	var enriched, failed int
	results := make([]error, len(pending))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.workerLimit)
	for i, product := range pending {
		group.Go(func() error {
			results[i] = s.sweepProduct(groupCtx, idx, product)
			return nil
		})
	}
	_ = group.Wait()

	for i, sweepErr := range results {
		if sweepErr != nil {
			failed++
			rowCtx := s.logg.WithField(ctx, "product_id", pending[i].ID.String())
			s.logg.Error(rowCtx, "product enrichment failed", sweepErr)
			if markErr := s.repo.MarkProductEnrichmentFailed(ctx, pending[i].ID); markErr != nil {
				s.logg.Error(rowCtx, "marking product enrichment failed", markErr)
			}
			continue
		}
		enriched++
	}

	s.metrics.AddRows(metrics.RowOutcomeEnriched, enriched)
	s.metrics.AddRows(metrics.RowOutcomeFailed, failed)
	s.metrics.ObserveBatchDuration("sweep", time.Since(start))
	s.metrics.IncBatchSuccess("sweep")

	fields := map[string]any{"enriched": enriched, "failed": failed}
	s.logg.Info(s.logg.WithFields(ctx, fields), "enrichment sweep complete")
	return nil
}

// sweepProduct enriches one pending product in place. The product's own
// columns stand in for the raw row the interactive path would have.
func (s *Sweeper) sweepProduct(ctx context.Context, idx *vector.Index, product models.Product) error {
	raw := map[string]string{
		ingest.FieldItemName:      product.ItemName,
		ingest.FieldAmount:        product.Amount.String(),
		ingest.FieldAmountInStock: strconv.Itoa(product.AmountInStock),
	}

	var candidate *models.CanonicalProduct
	if idx != nil {
		neighbor, err := s.matcher.BestCandidate(ctx, idx, product.ItemName)
		if err != nil {
			s.logg.Warn(ctx, "vector lookup failed, proceeding without candidate")
		} else if neighbor != nil {
			candidate = neighbor.Product
		}
	}

	prompt, err := userPrompt(raw, candidate)
	if err != nil {
		return err
	}
	payload, err := s.chat.ChatJSON(ctx, systemPrompt, prompt)
	if err != nil {
		return fmt.Errorf("model call failed: %w", err)
	}
	result, err := parseResult(payload)
	if err != nil {
		return err
	}

	updates := map[string]any{
		"item_name":         result.CleanedName,
		"active_ingredient": result.ActiveIngredient,
		"category":          result.DrugClass,
		"info":              result.UnitForm,
		"pom":               result.IsPOM,
		"slug":              ingest.Slugify(result.CleanedName),
		"enrichment_status": enums.EnrichmentCompleted,
	}
	if candidate != nil && result.ConfidenceScore > s.imageFloor {
		updates["image_url"] = candidate.ImageURL
	}
	return s.repo.UpdateProductEnrichment(ctx, product.ID, updates)
}
