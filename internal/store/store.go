package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"papastore/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrPersistence 表示单条记录落库失败。批量操作在条目边界捕获它并继续。
var ErrPersistence = errors.New("catalog store write failed")

// CatalogStore 是目录的持久化访问层。
//
// 同步与补全组件只通过这里的窄接口读写商品，不关心底层查询细节。
type CatalogStore struct {
	db *gorm.DB
}

func New(db *gorm.DB) *CatalogStore {
	return &CatalogStore{db: db}
}

// AutoMigrate 建表/补列。入口启动时调用。
func (s *CatalogStore) AutoMigrate() error {
	if err := s.db.AutoMigrate(&model.Product{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// FindByExternalSKU 按供应商编码查找商品。未找到返回 (nil, nil)。
func (s *CatalogStore) FindByExternalSKU(ctx context.Context, sku string) (*model.Product, error) {
	if sku == "" {
		return nil, nil
	}
	var product model.Product
	err := s.db.WithContext(ctx).Where("supplier_sku = ?", sku).First(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find by supplier sku %s: %w", sku, err)
	}
	return &product, nil
}

// FindByID 按内部 ID 查找商品。未找到返回 (nil, nil)。
func (s *CatalogStore) FindByID(ctx context.Context, id string) (*model.Product, error) {
	var product model.Product
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find by id %s: %w", id, err)
	}
	return &product, nil
}

// FindAllExternalSKUs 返回本地已知的全部供应商编码集合。
//
// 库存批量同步用它在内存中判定“本地是否存在”，避免逐行回查数据库。
func (s *CatalogStore) FindAllExternalSKUs(ctx context.Context) (map[string]struct{}, error) {
	var skus []string
	err := s.db.WithContext(ctx).
		Model(&model.Product{}).
		Where("supplier_sku IS NOT NULL").
		Pluck("supplier_sku", &skus).Error
	if err != nil {
		return nil, fmt.Errorf("load supplier skus: %w", err)
	}
	set := make(map[string]struct{}, len(skus))
	for _, sku := range skus {
		set[sku] = struct{}{}
	}
	return set, nil
}

// FindByExternalSKUs 按供应商编码批量查找，返回 sku→商品 的映射。
//
// 条码导入先用它一次性取出全部命中，避免逐行回查。
func (s *CatalogStore) FindByExternalSKUs(ctx context.Context, skus []string) (map[string]*model.Product, error) {
	if len(skus) == 0 {
		return map[string]*model.Product{}, nil
	}
	var products []model.Product
	err := s.db.WithContext(ctx).
		Where("supplier_sku IN ?", skus).
		Find(&products).Error
	if err != nil {
		return nil, fmt.Errorf("find by supplier skus: %w", err)
	}
	bySKU := make(map[string]*model.Product, len(products))
	for i := range products {
		if products[i].SupplierSKU != nil {
			bySKU[*products[i].SupplierSKU] = &products[i]
		}
	}
	return bySKU, nil
}

// FindSyncable 返回所有带供应商编码的商品，供逐编码的慢速库存同步用。
func (s *CatalogStore) FindSyncable(ctx context.Context) ([]model.Product, error) {
	var products []model.Product
	err := s.db.WithContext(ctx).
		Where("supplier_sku IS NOT NULL").
		Find(&products).Error
	if err != nil {
		return nil, fmt.Errorf("load syncable products: %w", err)
	}
	return products, nil
}

// Upsert 写入一条商品记录。
//
// 已有内部 ID 时整行保存；否则按 supplier_sku 冲突转为更新，
// 保证并发创建同一编码时不会插出重复行。
func (s *CatalogStore) Upsert(ctx context.Context, product *model.Product) error {
	if product == nil {
		return nil
	}
	product.Price = round2(product.Price)
	if product.CompareAtPrice != nil {
		rounded := round2(*product.CompareAtPrice)
		product.CompareAtPrice = &rounded
	}

	db := s.db.WithContext(ctx)
	var err error
	if product.ID != "" {
		err = db.Save(product).Error
	} else {
		err = db.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "supplier_sku"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"title", "supplier_title", "description", "brand",
				"ingredients", "age_range", "barcodes",
				"price", "compare_at_price", "stock",
				"images", "thumbnail",
				"enrichment_match_score", "enrichment_source",
				"last_synced_at", "updated_at",
			}),
		}).Create(product).Error
	}
	if err != nil {
		return fmt.Errorf("%w: upsert product: %v", ErrPersistence, err)
	}
	return nil
}

// BulkUpsert 逐条写入并返回与输入等长的错误切片。
//
// 单条失败不影响其余条目，调用方按下标计数。
func (s *CatalogStore) BulkUpsert(ctx context.Context, products []*model.Product) []error {
	errs := make([]error, len(products))
	for i, product := range products {
		errs[i] = s.Upsert(ctx, product)
	}
	return errs
}

// UpdateStockByExternalSKU 针对单个编码做库存快速更新。
//
// 返回是否命中本地记录。命中时同时刷新 last_synced_at。
func (s *CatalogStore) UpdateStockByExternalSKU(ctx context.Context, sku string, qty int) (bool, error) {
	if sku == "" {
		return false, nil
	}
	now := time.Now()
	res := s.db.WithContext(ctx).
		Model(&model.Product{}).
		Where("supplier_sku = ?", sku).
		Updates(map[string]interface{}{
			"stock":          qty,
			"last_synced_at": now,
		})
	if res.Error != nil {
		return false, fmt.Errorf("%w: update stock for %s: %v", ErrPersistence, sku, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// EnrichmentQueue 返回待补全的商品：没有匹配得分、处于草稿态，按创建时间升序。
func (s *CatalogStore) EnrichmentQueue(ctx context.Context, limit int) ([]model.Product, error) {
	if limit <= 0 {
		limit = 50
	}
	var products []model.Product
	err := s.db.WithContext(ctx).
		Where("enrichment_match_score IS NULL AND status = ?", model.StatusDraft).
		Order("created_at ASC").
		Limit(limit).
		Find(&products).Error
	if err != nil {
		return nil, fmt.Errorf("load enrichment queue: %w", err)
	}
	return products, nil
}

// EnrichmentStats 补全进度统计。
type EnrichmentStats struct {
	Total          int64 `json:"total"`
	Enriched       int64 `json:"enriched"`
	Pending        int64 `json:"pending"`
	HighConfidence int64 `json:"high_confidence"` // score >= 0.8
}

// GetEnrichmentStats 统计补全进度。
func (s *CatalogStore) GetEnrichmentStats(ctx context.Context) (*EnrichmentStats, error) {
	stats := &EnrichmentStats{}
	db := s.db.WithContext(ctx).Model(&model.Product{})

	if err := db.Session(&gorm.Session{}).Count(&stats.Total).Error; err != nil {
		return nil, fmt.Errorf("count products: %w", err)
	}
	if err := db.Session(&gorm.Session{}).
		Where("enrichment_match_score IS NOT NULL").
		Count(&stats.Enriched).Error; err != nil {
		return nil, fmt.Errorf("count enriched: %w", err)
	}
	if err := db.Session(&gorm.Session{}).
		Where("enrichment_match_score >= ?", 0.8).
		Count(&stats.HighConfidence).Error; err != nil {
		return nil, fmt.Errorf("count high confidence: %w", err)
	}
	stats.Pending = stats.Total - stats.Enriched
	return stats, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
