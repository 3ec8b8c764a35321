package store

import (
	"context"
	"testing"
	"time"

	"papastore/internal/model"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestStore(t *testing.T) *CatalogStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	s := New(db)
	if err := s.AutoMigrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func seedProduct(t *testing.T, s *CatalogStore, sku, handle string) *model.Product {
	t.Helper()
	skuCopy := sku
	p := &model.Product{
		SupplierSKU: &skuCopy,
		Handle:      handle,
		Title:       "Продукт " + sku,
		Status:      model.StatusDraft,
	}
	if err := s.Upsert(context.Background(), p); err != nil {
		t.Fatalf("seed %s: %v", sku, err)
	}
	return p
}

func TestUpsert_CreateAndFind(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created := seedProduct(t, s, "100", "produkt-100")
	if created.ID == "" {
		t.Fatal("expected generated uuid id")
	}

	found, err := s.FindByExternalSKU(ctx, "100")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found == nil || found.Handle != "produkt-100" {
		t.Fatalf("found = %+v", found)
	}

	byID, err := s.FindByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("find by id: %v", err)
	}
	if byID == nil || byID.Handle != "produkt-100" {
		t.Fatalf("byID = %+v", byID)
	}
}

func TestFindByExternalSKU_Missing(t *testing.T) {
	s := newTestStore(t)

	found, err := s.FindByExternalSKU(context.Background(), "nope")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found != nil {
		t.Fatalf("expected nil, got %+v", found)
	}
}

func TestUpsert_RoundsPrices(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sku := "7"
	base := 15.999
	p := &model.Product{
		SupplierSKU:    &sku,
		Handle:         "p-7",
		Price:          12.345,
		CompareAtPrice: &base,
	}
	if err := s.Upsert(ctx, p); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	found, err := s.FindByExternalSKU(ctx, "7")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found.Price != 12.35 {
		t.Errorf("price = %v, want 12.35", found.Price)
	}
	if found.CompareAtPrice == nil || *found.CompareAtPrice != 16.00 {
		t.Errorf("compare-at = %v, want 16.00", found.CompareAtPrice)
	}
}

func TestUpsert_ConflictOnSKUUpdates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedProduct(t, s, "5", "p-5")

	// 同一编码、无内部 ID 的第二次写入必须转为更新
	sku := "5"
	dup := &model.Product{
		SupplierSKU: &sku,
		Handle:      "p-5",
		Title:       "Обновено заглавие",
		Price:       3.20,
	}
	if err := s.Upsert(ctx, dup); err != nil {
		t.Fatalf("conflicting upsert: %v", err)
	}

	var count int64
	found, err := s.FindByExternalSKU(ctx, "5")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found.Title != "Обновено заглавие" {
		t.Errorf("title = %q", found.Title)
	}
	skus, err := s.FindAllExternalSKUs(ctx)
	if err != nil {
		t.Fatalf("skus: %v", err)
	}
	count = int64(len(skus))
	if count != 1 {
		t.Errorf("sku count = %d, want 1 (no duplicate row)", count)
	}
}

func TestUpdateStockByExternalSKU(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedProduct(t, s, "9", "p-9")

	matched, err := s.UpdateStockByExternalSKU(ctx, "9", 42)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !matched {
		t.Fatal("expected match")
	}

	found, _ := s.FindByExternalSKU(ctx, "9")
	if found.Stock != 42 {
		t.Errorf("stock = %d", found.Stock)
	}
	if found.LastSyncedAt == nil || time.Since(*found.LastSyncedAt) > time.Minute {
		t.Errorf("last_synced_at = %v", found.LastSyncedAt)
	}

	matched, err = s.UpdateStockByExternalSKU(ctx, "unknown", 1)
	if err != nil {
		t.Fatalf("update unknown: %v", err)
	}
	if matched {
		t.Error("expected no match for unknown sku")
	}
}

func TestEnrichmentQueueAndStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedProduct(t, s, "1", "p-1")
	seedProduct(t, s, "2", "p-2")

	// 第三个已补全，不应出现在队列里
	enriched := seedProduct(t, s, "3", "p-3")
	score := 0.9
	enriched.EnrichmentMatchScore = &score
	enriched.EnrichmentSource = "galen.bg"
	if err := s.Upsert(ctx, enriched); err != nil {
		t.Fatalf("upsert enriched: %v", err)
	}

	queue, err := s.EnrichmentQueue(ctx, 10)
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	if len(queue) != 2 {
		t.Fatalf("queue len = %d, want 2", len(queue))
	}

	stats, err := s.GetEnrichmentStats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 3 || stats.Enriched != 1 || stats.Pending != 2 || stats.HighConfidence != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestBulkUpsert_IsolatesFailures(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sku := "1"
	good := &model.Product{SupplierSKU: &sku, Handle: "p-1"}
	// handle 唯一索引冲突且无编码，落库必然失败
	bad := &model.Product{Handle: "p-1"}

	errs := s.BulkUpsert(ctx, []*model.Product{good, bad})
	if errs[0] != nil {
		t.Errorf("good record failed: %v", errs[0])
	}
	if errs[1] == nil {
		t.Error("expected failure for duplicate handle")
	}
}
