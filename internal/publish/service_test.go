package publish

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	dbpkg "github.com/tochukwuani/pharmalink-backend/pkg/db"
	"github.com/tochukwuani/pharmalink-backend/pkg/db/models"
	"github.com/tochukwuani/pharmalink-backend/pkg/enums"
	pkgerrors "github.com/tochukwuani/pharmalink-backend/pkg/errors"
	"github.com/tochukwuani/pharmalink-backend/pkg/logger"
	"github.com/tochukwuani/pharmalink-backend/pkg/outbox"
)

func publishTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	// The models carry postgres-only column defaults, so the sqlite schema
	// is written by hand.
	products := `
CREATE TABLE IF NOT EXISTS products (
  id TEXT PRIMARY KEY,
  item_name TEXT NOT NULL,
  active_ingredient TEXT NOT NULL DEFAULT '',
  category TEXT NOT NULL DEFAULT '',
  amount NUMERIC NOT NULL DEFAULT 0,
  amount_in_stock INTEGER NOT NULL DEFAULT 0,
  image_url TEXT NOT NULL DEFAULT '',
  business_name TEXT NOT NULL,
  is_published INTEGER NOT NULL DEFAULT 0,
  pom INTEGER NOT NULL DEFAULT 0,
  slug TEXT NOT NULL DEFAULT '',
  info TEXT NOT NULL DEFAULT '',
  coordinates TEXT,
  bulk_upload_id TEXT,
  enrichment_status TEXT NOT NULL DEFAULT 'pending',
  created_at DATETIME,
  updated_at DATETIME
);`
	outboxEvents := `
CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`
	for _, ddl := range []string{products, outboxEvents} {
		if err := conn.Exec(ddl).Error; err != nil {
			t.Fatalf("failed to create sqlite schema: %v", err)
		}
	}
	return conn
}

func publishTestService(t *testing.T, conn *gorm.DB) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Tx:         dbpkg.NewFromGorm(conn),
		Repository: NewRepository(conn),
		Outbox:     outbox.NewService(outbox.NewRepository(conn), nil),
		Logger:     logger.New(logger.Options{ServiceName: "test"}),
	})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	return svc
}

func seedProduct(t *testing.T, conn *gorm.DB, mutate func(p *models.Product)) *models.Product {
	t.Helper()
	product := &models.Product{
		ID:               uuid.New(),
		ItemName:         "Paracetamol 500mg",
		ActiveIngredient: "Paracetamol",
		Category:         "Analgesic",
		Amount:           decimal.NewFromInt(500),
		ImageURL:         "https://cdn.example.com/paracetamol.png",
		BusinessName:     "GoodHealth Pharmacy",
		Info:             "Box of 30 tablets",
		EnrichmentStatus: enums.EnrichmentCompleted,
	}
	if mutate != nil {
		mutate(product)
	}
	if err := conn.Create(product).Error; err != nil {
		t.Fatalf("seeding product: %v", err)
	}
	return product
}

func TestPublishBulk_FlipsEligibleAndIsIdempotent(t *testing.T) {
	conn := publishTestDB(t)
	svc := publishTestService(t, conn)

	a := seedProduct(t, conn, nil)
	b := seedProduct(t, conn, func(p *models.Product) { p.ItemName = "Ibuprofen 200mg" })

	resp, err := svc.PublishBulk(context.Background(), PublishBulkRequest{IDs: []uuid.UUID{a.ID, b.ID}})
	if err != nil {
		t.Fatalf("first PublishBulk failed: %v", err)
	}
	if resp.PublishedCount != 2 {
		t.Fatalf("expected 2 published, got %d", resp.PublishedCount)
	}

	var published int64
	if err := conn.Model(&models.Product{}).Where("is_published = ?", true).Count(&published).Error; err != nil {
		t.Fatalf("counting published: %v", err)
	}
	if published != 2 {
		t.Fatalf("expected 2 published rows, got %d", published)
	}

	// repeating the call flips nothing and must not fail
	resp, err = svc.PublishBulk(context.Background(), PublishBulkRequest{IDs: []uuid.UUID{a.ID, b.ID}})
	if err != nil {
		t.Fatalf("second PublishBulk failed: %v", err)
	}
	if resp.PublishedCount != 0 {
		t.Fatalf("expected 0 published on the second call, got %d", resp.PublishedCount)
	}

	var events int64
	if err := conn.Model(&models.OutboxEvent{}).
		Where("event_type = ?", enums.EventProductPublished).
		Count(&events).Error; err != nil {
		t.Fatalf("counting events: %v", err)
	}
	if events != 2 {
		t.Fatalf("expected no extra publish events from the repeat, got %d", events)
	}
}

func TestPublishBulk_SilentlyExcludesIneligible(t *testing.T) {
	conn := publishTestDB(t)
	svc := publishTestService(t, conn)

	good := seedProduct(t, conn, nil)
	noImage := seedProduct(t, conn, func(p *models.Product) {
		p.ItemName = "No Image"
		p.ImageURL = ""
	})
	placeholder := seedProduct(t, conn, func(p *models.Product) {
		p.ItemName = "Placeholder"
		p.ActiveIngredient = "N/A"
		p.Category = "N/A"
	})

	resp, err := svc.PublishBulk(context.Background(), PublishBulkRequest{
		IDs: []uuid.UUID{good.ID, noImage.ID, placeholder.ID},
	})
	if err != nil {
		t.Fatalf("PublishBulk failed: %v", err)
	}
	if resp.PublishedCount != 1 {
		t.Fatalf("expected only the complete row published, got %d", resp.PublishedCount)
	}

	for _, id := range []uuid.UUID{noImage.ID, placeholder.ID} {
		var row models.Product
		if err := conn.First(&row, "id = ?", id).Error; err != nil {
			t.Fatalf("loading row: %v", err)
		}
		if row.IsPublished {
			t.Fatalf("row %s must not be published", row.ItemName)
		}
	}
}

func TestPublishBulk_AllIneligibleFails(t *testing.T) {
	conn := publishTestDB(t)
	svc := publishTestService(t, conn)

	draft := seedProduct(t, conn, func(p *models.Product) {
		p.ActiveIngredient = "N/A"
		p.Category = "N/A"
		p.Info = "N/A"
		p.ImageURL = ""
	})

	_, err := svc.PublishBulk(context.Background(), PublishBulkRequest{IDs: []uuid.UUID{draft.ID}})
	if err == nil {
		t.Fatal("expected error when no row is publishable")
	}
	appErr := pkgerrors.As(err)
	if appErr == nil || appErr.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestPublishBulk_EmitsPublishEvents(t *testing.T) {
	conn := publishTestDB(t)
	svc := publishTestService(t, conn)

	product := seedProduct(t, conn, nil)
	if _, err := svc.PublishBulk(context.Background(), PublishBulkRequest{IDs: []uuid.UUID{product.ID}}); err != nil {
		t.Fatalf("PublishBulk failed: %v", err)
	}

	var eventCount int64
	if err := conn.Model(&models.OutboxEvent{}).
		Where("event_type = ?", enums.EventProductPublished).
		Count(&eventCount).Error; err != nil {
		t.Fatalf("counting events: %v", err)
	}
	if eventCount != 1 {
		t.Fatalf("expected 1 publish event, got %d", eventCount)
	}
}

func TestPublishOne_StateConflictOnIncompleteRow(t *testing.T) {
	conn := publishTestDB(t)
	svc := publishTestService(t, conn)

	draft := seedProduct(t, conn, func(p *models.Product) { p.ImageURL = "" })

	_, err := svc.PublishOne(context.Background(), draft.ID)
	if err == nil {
		t.Fatal("expected error for incomplete row")
	}
	appErr := pkgerrors.As(err)
	if appErr == nil || appErr.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestPublishOne_ThenRepeatIsNoop(t *testing.T) {
	conn := publishTestDB(t)
	svc := publishTestService(t, conn)

	product := seedProduct(t, conn, nil)

	first, err := svc.PublishOne(context.Background(), product.ID)
	if err != nil {
		t.Fatalf("PublishOne failed: %v", err)
	}
	if !first.Changed || !first.Product.IsPublished {
		t.Fatalf("expected publish to apply, got %+v", first)
	}

	second, err := svc.PublishOne(context.Background(), product.ID)
	if err != nil {
		t.Fatalf("repeat PublishOne failed: %v", err)
	}
	if second.Changed {
		t.Fatal("repeat publish must be a no-op")
	}
}

func TestUnpublishOne_DistinguishesNoopFromNotFound(t *testing.T) {
	conn := publishTestDB(t)
	svc := publishTestService(t, conn)

	product := seedProduct(t, conn, func(p *models.Product) { p.IsPublished = true })

	result, err := svc.UnpublishOne(context.Background(), product.ID)
	if err != nil {
		t.Fatalf("UnpublishOne failed: %v", err)
	}
	if !result.Changed || result.Product.IsPublished {
		t.Fatalf("expected unpublish to apply, got %+v", result)
	}

	noop, err := svc.UnpublishOne(context.Background(), product.ID)
	if err != nil {
		t.Fatalf("repeat UnpublishOne failed: %v", err)
	}
	if noop.Changed {
		t.Fatal("repeat unpublish must be a no-op")
	}

	_, err = svc.UnpublishOne(context.Background(), uuid.New())
	appErr := pkgerrors.As(err)
	if appErr == nil || appErr.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPublishBulk_RejectsEmptyInput(t *testing.T) {
	conn := publishTestDB(t)
	svc := publishTestService(t, conn)

	_, err := svc.PublishBulk(context.Background(), PublishBulkRequest{})
	if err == nil {
		t.Fatal("expected validation error")
	}
}
