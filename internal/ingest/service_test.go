package ingest

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	dbpkg "github.com/tochukwuani/pharmalink-backend/pkg/db"
	"github.com/tochukwuani/pharmalink-backend/pkg/db/models"
	"github.com/tochukwuani/pharmalink-backend/pkg/enums"
	pkgerrors "github.com/tochukwuani/pharmalink-backend/pkg/errors"
	"github.com/tochukwuani/pharmalink-backend/pkg/logger"
	"github.com/tochukwuani/pharmalink-backend/pkg/outbox"
)

type stubCatalog struct {
	rows []models.CanonicalProduct
}

func (s *stubCatalog) ListAll(ctx context.Context) ([]models.CanonicalProduct, error) {
	return s.rows, nil
}

func newServiceTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:ingest_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	// The models carry postgres-only column defaults, so the sqlite schema
	// is written by hand.
	bulkUploads := `
CREATE TABLE IF NOT EXISTS bulk_uploads (
  id TEXT PRIMARY KEY,
  business_name TEXT NOT NULL,
  file_name TEXT NOT NULL,
  raw_file_content TEXT NOT NULL,
  item_count INTEGER NOT NULL DEFAULT 0,
  status TEXT NOT NULL DEFAULT 'processing',
  created_at DATETIME
);`
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
	for _, ddl := range []string{bulkUploads, products, outboxEvents} {
		if err := conn.Exec(ddl).Error; err != nil {
			t.Fatalf("failed to create sqlite schema: %v", err)
		}
	}
	return conn
}

func newTestService(t *testing.T, conn *gorm.DB, catalog []models.CanonicalProduct) *Service {
	t.Helper()
	client := dbpkg.NewFromGorm(conn)
	logg := logger.New(logger.Options{ServiceName: "test"})
	svc, err := NewService(ServiceParams{
		Tx:         client,
		Repository: NewRepository(conn),
		Catalog:    &stubCatalog{rows: catalog},
		Outbox:     outbox.NewService(outbox.NewRepository(conn), nil),
		Logger:     logg,
	})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	return svc
}

func exactCatalog() []models.CanonicalProduct {
	return []models.CanonicalProduct{
		{
			ID:               uuid.New(),
			ItemName:         "Paracetamol 500mg",
			ActiveIngredient: "Paracetamol",
			Category:         "Analgesic",
			ImageURL:         "https://cdn.example.com/paracetamol.png",
			Info:             "Box of 30 tablets",
		},
	}
}

func TestIngestBulkUpload_InstantPublishFlow(t *testing.T) {
	conn := newServiceTestDB(t)
	svc := newTestService(t, conn, exactCatalog())

	resp, err := svc.IngestBulkUpload(context.Background(), IngestRequest{
		FileName:     "inventory.csv",
		FileContent:  "item name,price\nParacetamol 500mg,500\n",
		BusinessName: "GoodHealth Pharmacy",
	})
	if err != nil {
		t.Fatalf("IngestBulkUpload failed: %v", err)
	}

	if resp.Summary.RowsParsed != 1 || resp.Summary.InstantPublished != 1 {
		t.Fatalf("unexpected summary %+v", resp.Summary)
	}
	if len(resp.SavedProducts) != 1 {
		t.Fatalf("expected 1 saved product, got %d", len(resp.SavedProducts))
	}

	saved := resp.SavedProducts[0]
	if !saved.IsPublished {
		t.Fatal("expected product to be published")
	}
	if saved.Info != "Box of 30 tablets" {
		t.Fatalf("expected catalog info to be copied, got %q", saved.Info)
	}
	if saved.Amount.String() != "500" {
		t.Fatalf("expected amount 500 from the row, got %s", saved.Amount)
	}

	var upload models.BulkUpload
	if err := conn.First(&upload).Error; err != nil {
		t.Fatalf("loading upload record: %v", err)
	}
	if upload.Status != enums.UploadCompleted {
		t.Fatalf("expected completed upload, got %q", upload.Status)
	}
	if upload.ItemCount != 1 {
		t.Fatalf("expected item count 1, got %d", upload.ItemCount)
	}

	var eventCount int64
	if err := conn.Model(&models.OutboxEvent{}).
		Where("event_type = ?", enums.EventUploadCompleted).
		Count(&eventCount).Error; err != nil {
		t.Fatalf("counting outbox events: %v", err)
	}
	if eventCount != 1 {
		t.Fatalf("expected 1 upload_completed event, got %d", eventCount)
	}
}

func TestIngestBulkUpload_DraftFlow(t *testing.T) {
	conn := newServiceTestDB(t)
	svc := newTestService(t, conn, exactCatalog())

	resp, err := svc.IngestBulkUpload(context.Background(), IngestRequest{
		FileName:     "inventory.csv",
		FileContent:  "item name,price\nObscure Tonic XJ9,1200\n",
		BusinessName: "GoodHealth Pharmacy",
	})
	if err != nil {
		t.Fatalf("IngestBulkUpload failed: %v", err)
	}
	if resp.Summary.Drafted != 1 {
		t.Fatalf("expected 1 draft, got %+v", resp.Summary)
	}

	saved := resp.SavedProducts[0]
	if saved.IsPublished {
		t.Fatal("expected draft to stay unpublished")
	}
	if saved.EnrichmentStatus != enums.EnrichmentPending {
		t.Fatalf("expected pending status, got %q", saved.EnrichmentStatus)
	}
	if saved.ActiveIngredient != "N/A" {
		t.Fatalf("expected N/A placeholder, got %q", saved.ActiveIngredient)
	}
}

func TestIngestBulkUpload_ValidatesRequest(t *testing.T) {
	conn := newServiceTestDB(t)
	svc := newTestService(t, conn, nil)

	_, err := svc.IngestBulkUpload(context.Background(), IngestRequest{
		FileName: "inventory.csv",
	})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation code, got %v", err)
	}
}

func TestIngestBulkUpload_EmptyFileMarksUploadFailed(t *testing.T) {
	conn := newServiceTestDB(t)
	svc := newTestService(t, conn, nil)

	_, err := svc.IngestBulkUpload(context.Background(), IngestRequest{
		FileName:     "inventory.csv",
		FileContent:  "item name,price\n",
		BusinessName: "GoodHealth Pharmacy",
	})
	if err == nil {
		t.Fatal("expected top-level error for an empty file")
	}

	var upload models.BulkUpload
	if err := conn.First(&upload).Error; err != nil {
		t.Fatalf("loading upload record: %v", err)
	}
	if upload.Status != enums.UploadFailed {
		t.Fatalf("expected failed upload, got %q", upload.Status)
	}

	var eventCount int64
	if err := conn.Model(&models.OutboxEvent{}).
		Where("event_type = ?", enums.EventUploadFailed).
		Count(&eventCount).Error; err != nil {
		t.Fatalf("counting outbox events: %v", err)
	}
	if eventCount != 1 {
		t.Fatalf("expected 1 upload_failed event, got %d", eventCount)
	}
}

func TestDeleteBulkUpload_CascadesProducts(t *testing.T) {
	conn := newServiceTestDB(t)
	svc := newTestService(t, conn, exactCatalog())

	resp, err := svc.IngestBulkUpload(context.Background(), IngestRequest{
		FileName:     "inventory.csv",
		FileContent:  "item name,price\nParacetamol 500mg,500\nObscure Tonic XJ9,1200\n",
		BusinessName: "GoodHealth Pharmacy",
	})
	if err != nil {
		t.Fatalf("IngestBulkUpload failed: %v", err)
	}

	uploadID, err := uuid.Parse(resp.UploadID)
	if err != nil {
		t.Fatalf("parsing upload id: %v", err)
	}

	deleted, err := svc.DeleteBulkUpload(context.Background(), uploadID)
	if err != nil {
		t.Fatalf("DeleteBulkUpload failed: %v", err)
	}
	if deleted.DeletedProducts != 2 {
		t.Fatalf("expected 2 deleted products, got %d", deleted.DeletedProducts)
	}

	var productCount int64
	if err := conn.Model(&models.Product{}).Count(&productCount).Error; err != nil {
		t.Fatalf("counting products: %v", err)
	}
	if productCount != 0 {
		t.Fatalf("expected no products left, got %d", productCount)
	}

	var uploadCount int64
	if err := conn.Model(&models.BulkUpload{}).Count(&uploadCount).Error; err != nil {
		t.Fatalf("counting uploads: %v", err)
	}
	if uploadCount != 0 {
		t.Fatalf("expected no uploads left, got %d", uploadCount)
	}
}

func TestDeleteBulkUpload_NotFound(t *testing.T) {
	conn := newServiceTestDB(t)
	svc := newTestService(t, conn, nil)

	_, err := svc.DeleteBulkUpload(context.Background(), uuid.New())
	if err == nil {
		t.Fatal("expected not found error")
	}
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found code, got %v", err)
	}
}
