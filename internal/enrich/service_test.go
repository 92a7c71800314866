package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tochukwuani/pharmalink-backend/internal/vector"
	dbpkg "github.com/tochukwuani/pharmalink-backend/pkg/db"
	"github.com/tochukwuani/pharmalink-backend/pkg/db/models"
	"github.com/tochukwuani/pharmalink-backend/pkg/enums"
	pkgerrors "github.com/tochukwuani/pharmalink-backend/pkg/errors"
	"github.com/tochukwuani/pharmalink-backend/pkg/logger"
	"github.com/tochukwuani/pharmalink-backend/pkg/outbox"
)

type stubChat struct {
	responses map[string]string
	errorsOn  map[string]bool
}

func (s *stubChat) ChatJSON(ctx context.Context, system, user string) (json.RawMessage, error) {
	for needle := range s.errorsOn {
		if strings.Contains(user, needle) {
			return nil, errors.New("model unavailable")
		}
	}
	for needle, response := range s.responses {
		if strings.Contains(user, needle) {
			return json.RawMessage(response), nil
		}
	}
	return nil, fmt.Errorf("no canned response for prompt: %s", user)
}

type stubMatcher struct {
	catalog    []models.CanonicalProduct
	candidates map[string]int // item name -> catalog index
}

func (s *stubMatcher) BuildIndex(ctx context.Context, catalog []models.CanonicalProduct) (*vector.Index, error) {
	embeddings := make([][]float64, len(catalog))
	for i := range embeddings {
		embeddings[i] = []float64{1}
	}
	return vector.NewIndex(catalog, embeddings), nil
}

func (s *stubMatcher) BestCandidate(ctx context.Context, idx *vector.Index, itemName string) (*vector.Neighbor, error) {
	i, ok := s.candidates[itemName]
	if !ok {
		return nil, nil
	}
	return &vector.Neighbor{Product: &s.catalog[i], Similarity: 0.9}, nil
}

type stubCatalog struct {
	rows []models.CanonicalProduct
}

func (s *stubCatalog) ListAll(ctx context.Context) ([]models.CanonicalProduct, error) {
	return s.rows, nil
}

type fakeLock struct {
	held     bool
	acquires int
	releases int
}

func (f *fakeLock) Acquire(ctx context.Context) (bool, error) {
	f.acquires++
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Release(ctx context.Context) error {
	f.releases++
	f.held = false
	return nil
}

func enrichTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	// The models carry postgres-only column defaults, so the sqlite schema
	// is written by hand.
	draftStocks := `
CREATE TABLE IF NOT EXISTS draft_stocks (
  id TEXT PRIMARY KEY,
  item_name TEXT NOT NULL,
  business_name TEXT NOT NULL,
  active_ingredient TEXT NOT NULL DEFAULT '',
  category TEXT NOT NULL DEFAULT '',
  amount NUMERIC NOT NULL DEFAULT 0,
  amount_in_stock INTEGER NOT NULL DEFAULT 0,
  image_url TEXT NOT NULL DEFAULT '',
  is_published INTEGER NOT NULL DEFAULT 0,
  pom INTEGER NOT NULL DEFAULT 0,
  slug TEXT NOT NULL DEFAULT '',
  info TEXT NOT NULL DEFAULT '',
  coordinates TEXT,
  ai_confidence_score INTEGER NOT NULL DEFAULT 0,
  original_raw_data TEXT,
  bulk_upload_id TEXT,
  created_at DATETIME
);`
	draftIndex := `
CREATE UNIQUE INDEX IF NOT EXISTS ux_draft_stocks_item_business
  ON draft_stocks (item_name, business_name);`
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
	for _, ddl := range []string{draftStocks, draftIndex, outboxEvents} {
		if err := conn.Exec(ddl).Error; err != nil {
			t.Fatalf("failed to create sqlite schema: %v", err)
		}
	}
	return conn
}

func modelResponse(name, ingredient string, confidence int) string {
	return fmt.Sprintf(`{
		"cleaned_name": %q,
		"active_ingredient": %q,
		"drug_class": "Analgesic",
		"unit_form": "Box of 30 tablets",
		"is_pom": false,
		"amount": 500,
		"amount_in_stock": 10,
		"confidence_score": %d
	}`, name, ingredient, confidence)
}

func enrichTestService(t *testing.T, conn *gorm.DB, chat chatCompleter, matcher candidateMatcher, catalog []models.CanonicalProduct, lock Lock) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Tx:         dbpkg.NewFromGorm(conn),
		Repository: NewRepository(conn),
		Catalog:    &stubCatalog{rows: catalog},
		Matcher:    matcher,
		Chat:       chat,
		Lock:       lock,
		Outbox:     outbox.NewService(outbox.NewRepository(conn), nil),
		Logger:     logger.New(logger.Options{ServiceName: "test"}),
	})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	return svc
}

func TestEnrichAndUpload_SavesDraftsWithCandidateImage(t *testing.T) {
	conn := enrichTestDB(t)
	catalog := []models.CanonicalProduct{{
		ID:       uuid.New(),
		ItemName: "Paracetamol 500mg",
		ImageURL: "https://cdn.example.com/paracetamol.png",
	}}
	chat := &stubChat{responses: map[string]string{
		"paracetamol": modelResponse("Paracetamol 500mg", "Paracetamol", 90),
	}}
	matcher := &stubMatcher{catalog: catalog, candidates: map[string]int{"paracetamol 500": 0}}
	lock := &fakeLock{}
	svc := enrichTestService(t, conn, chat, matcher, catalog, lock)

	resp, err := svc.EnrichAndUpload(context.Background(), EnrichRequest{
		BusinessName: "GoodHealth Pharmacy",
		RawRows: []map[string]string{
			{"item name": "paracetamol 500", "price": "450"},
		},
	})
	if err != nil {
		t.Fatalf("EnrichAndUpload failed: %v", err)
	}
	if resp.Total != 1 || resp.SavedCount != 1 {
		t.Fatalf("unexpected response %+v", resp)
	}

	draft := resp.SavedDrafts[0]
	if draft.ItemName != "Paracetamol 500mg" {
		t.Fatalf("unexpected cleaned name %q", draft.ItemName)
	}
	if draft.ImageURL != "https://cdn.example.com/paracetamol.png" {
		t.Fatalf("expected candidate image with confidence 90, got %q", draft.ImageURL)
	}
	// row-parsed price wins over the model's extraction
	if draft.Amount.String() != "450" {
		t.Fatalf("expected amount 450 from the row, got %s", draft.Amount)
	}
	if draft.AIConfidenceScore != 90 {
		t.Fatalf("unexpected confidence %d", draft.AIConfidenceScore)
	}
	if len(draft.OriginalRawData) == 0 {
		t.Fatal("expected the raw row to be stored on the draft")
	}
	if lock.releases != 1 {
		t.Fatalf("expected lock release, got %d", lock.releases)
	}

	var eventCount int64
	if err := conn.Model(&models.OutboxEvent{}).
		Where("event_type = ?", enums.EventDraftsEnriched).
		Count(&eventCount).Error; err != nil {
		t.Fatalf("counting outbox events: %v", err)
	}
	if eventCount != 1 {
		t.Fatalf("expected 1 drafts_enriched event, got %d", eventCount)
	}
}

func TestEnrichAndUpload_NoImageWithoutCandidate(t *testing.T) {
	conn := enrichTestDB(t)
	chat := &stubChat{responses: map[string]string{
		"Obscure Tonic XJ9": modelResponse("Obscure Tonic XJ9", "Unknown", 95),
	}}
	matcher := &stubMatcher{candidates: map[string]int{}}
	svc := enrichTestService(t, conn, chat, matcher, nil, &fakeLock{})

	resp, err := svc.EnrichAndUpload(context.Background(), EnrichRequest{
		BusinessName: "GoodHealth Pharmacy",
		RawRows: []map[string]string{
			{"item name": "Obscure Tonic XJ9", "price": "1200"},
		},
	})
	if err != nil {
		t.Fatalf("EnrichAndUpload failed: %v", err)
	}
	if resp.SavedCount != 1 {
		t.Fatalf("expected 1 saved draft, got %+v", resp)
	}
	if resp.SavedDrafts[0].ImageURL != "" {
		t.Fatalf("expected no image without a candidate, got %q", resp.SavedDrafts[0].ImageURL)
	}
	if resp.SavedDrafts[0].Amount.String() != "1200" {
		t.Fatalf("expected amount 1200 preserved, got %s", resp.SavedDrafts[0].Amount)
	}
}

func TestEnrichAndUpload_NoImageBelowConfidenceFloor(t *testing.T) {
	conn := enrichTestDB(t)
	catalog := []models.CanonicalProduct{{
		ID:       uuid.New(),
		ItemName: "Paracetamol 500mg",
		ImageURL: "https://cdn.example.com/paracetamol.png",
	}}
	chat := &stubChat{responses: map[string]string{
		"paracetamol": modelResponse("Paracetamol 500mg", "Paracetamol", 40),
	}}
	matcher := &stubMatcher{catalog: catalog, candidates: map[string]int{"paracetamol 500": 0}}
	svc := enrichTestService(t, conn, chat, matcher, catalog, &fakeLock{})

	resp, err := svc.EnrichAndUpload(context.Background(), EnrichRequest{
		BusinessName: "GoodHealth Pharmacy",
		RawRows: []map[string]string{
			{"item name": "paracetamol 500"},
		},
	})
	if err != nil {
		t.Fatalf("EnrichAndUpload failed: %v", err)
	}
	if resp.SavedDrafts[0].ImageURL != "" {
		t.Fatalf("expected image withheld at confidence 40, got %q", resp.SavedDrafts[0].ImageURL)
	}
}

func TestEnrichAndUpload_BusySignalWhenLockHeld(t *testing.T) {
	conn := enrichTestDB(t)
	svc := enrichTestService(t, conn, &stubChat{}, &stubMatcher{}, nil, &fakeLock{held: true})

	_, err := svc.EnrichAndUpload(context.Background(), EnrichRequest{
		BusinessName: "GoodHealth Pharmacy",
		RawRows:      []map[string]string{{"item name": "anything"}},
	})
	if err == nil {
		t.Fatal("expected busy error")
	}
	appErr := pkgerrors.As(err)
	if appErr == nil || appErr.Code() != pkgerrors.CodeBusy {
		t.Fatalf("expected busy code, got %v", err)
	}
}

func TestEnrichAndUpload_PerRowIsolation(t *testing.T) {
	conn := enrichTestDB(t)
	chat := &stubChat{
		responses: map[string]string{
			"Good Row": modelResponse("Good Row Cleaned", "Paracetamol", 80),
		},
		errorsOn: map[string]bool{"Bad Row": true},
	}
	svc := enrichTestService(t, conn, chat, &stubMatcher{}, nil, &fakeLock{})

	resp, err := svc.EnrichAndUpload(context.Background(), EnrichRequest{
		BusinessName: "GoodHealth Pharmacy",
		RawRows: []map[string]string{
			{"item name": "Good Row", "price": "100"},
			{"item name": "Bad Row", "price": "200"},
			{"price": "300"}, // missing item name
		},
	})
	if err != nil {
		t.Fatalf("EnrichAndUpload failed: %v", err)
	}
	if resp.Total != 3 {
		t.Fatalf("expected total 3, got %d", resp.Total)
	}
	if resp.SavedCount != 1 {
		t.Fatalf("expected 1 saved draft, got %d", resp.SavedCount)
	}
	if len(resp.Errors) != 2 {
		t.Fatalf("expected 2 row errors, got %d", len(resp.Errors))
	}
}

func TestEnrichAndUpload_DuplicateDraftRejectedPerRow(t *testing.T) {
	conn := enrichTestDB(t)
	chat := &stubChat{responses: map[string]string{
		"Tonic A": modelResponse("Same Cleaned Name", "X", 70),
		"Tonic B": modelResponse("Same Cleaned Name", "X", 70),
	}}
	svc := enrichTestService(t, conn, chat, &stubMatcher{}, nil, &fakeLock{})

	resp, err := svc.EnrichAndUpload(context.Background(), EnrichRequest{
		BusinessName: "GoodHealth Pharmacy",
		RawRows: []map[string]string{
			{"item name": "Tonic A"},
			{"item name": "Tonic B"},
		},
	})
	if err != nil {
		t.Fatalf("EnrichAndUpload failed: %v", err)
	}
	if resp.SavedCount != 1 {
		t.Fatalf("expected 1 saved draft despite duplicate, got %d", resp.SavedCount)
	}
	if len(resp.Errors) != 1 {
		t.Fatalf("expected 1 duplicate rejection, got %d", len(resp.Errors))
	}

	var count int64
	if err := conn.Model(&models.DraftStock{}).Count(&count).Error; err != nil {
		t.Fatalf("counting drafts: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 persisted draft, got %d", count)
	}
}

func TestListDrafts_ScopedToBusinessNewestFirst(t *testing.T) {
	conn := enrichTestDB(t)
	repo := NewRepository(conn)
	svc := enrichTestService(t, conn, &stubChat{}, &stubMatcher{}, nil, &fakeLock{})

	base := time.Now().Add(-time.Hour)
	seed := []models.DraftStock{
		{ID: uuid.New(), ItemName: "Older Draft", BusinessName: "GoodHealth Pharmacy", CreatedAt: base},
		{ID: uuid.New(), ItemName: "Newer Draft", BusinessName: "GoodHealth Pharmacy", CreatedAt: base.Add(time.Minute)},
		{ID: uuid.New(), ItemName: "Other Shop Draft", BusinessName: "City Chemist", CreatedAt: base.Add(2 * time.Minute)},
	}
	for i := range seed {
		if err := repo.InsertDraft(context.Background(), &seed[i]); err != nil {
			t.Fatalf("seeding draft: %v", err)
		}
	}

	drafts, err := svc.ListDrafts(context.Background(), "GoodHealth Pharmacy", 10)
	if err != nil {
		t.Fatalf("ListDrafts failed: %v", err)
	}
	if len(drafts) != 2 {
		t.Fatalf("expected 2 drafts for the business, got %d", len(drafts))
	}
	if drafts[0].ItemName != "Newer Draft" || drafts[1].ItemName != "Older Draft" {
		t.Fatalf("expected newest first, got %q then %q", drafts[0].ItemName, drafts[1].ItemName)
	}

	_, err = svc.ListDrafts(context.Background(), "", 10)
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error for empty business name, got %v", err)
	}
}
