package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"papastore/internal/config"
	"papastore/internal/model"
	"papastore/internal/pkg/metrics"
	"papastore/internal/supplier"
)

// SupplierClient 是对账器依赖的供应商 API 能力子集。
type SupplierClient interface {
	FetchBySearch(ctx context.Context, term string) ([]supplier.Record, error)
	FetchByCode(ctx context.Context, code string) (*supplier.Record, error)
	FetchByCodeRange(ctx context.Context, start, end int) ([]supplier.Record, error)
	FetchByRowRange(ctx context.Context, fromRow, toRow int) ([]supplier.Record, error)
}

// CatalogStore 是对账器依赖的目录持久化能力子集。
type CatalogStore interface {
	FindByExternalSKU(ctx context.Context, sku string) (*model.Product, error)
	FindByExternalSKUs(ctx context.Context, skus []string) (map[string]*model.Product, error)
	FindAllExternalSKUs(ctx context.Context) (map[string]struct{}, error)
	FindSyncable(ctx context.Context) ([]model.Product, error)
	Upsert(ctx context.Context, product *model.Product) error
	UpdateStockByExternalSKU(ctx context.Context, sku string, qty int) (bool, error)
}

// Result 一次同步运行的聚合计数。构造后不再修改，仅用于上报。
//
// 不变式: Created + Updated + Skipped + Errors == Total。
type Result struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
	Total   int `json:"total"`
}

// Reconciler 把供应商记录幂等地合并进本地目录。
//
// 匹配键是供应商编码。批量操作在单条记录边界吞掉失败并计数，
// 仅认证失败或整批拉取失败会让整个操作返回错误。
type Reconciler struct {
	client SupplierClient
	store  CatalogStore
	policy config.SyncConfig
	logger *slog.Logger
}

func NewReconciler(client SupplierClient, store CatalogStore, policy config.SyncConfig, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		client: client,
		store:  store,
		policy: policy,
		logger: logger,
	}
}

// SyncProductByCode 同步单个编码。供应商侧无此编码时返回 (nil, nil)。
func (r *Reconciler) SyncProductByCode(ctx context.Context, code string) (*model.Product, error) {
	record, err := r.client.FetchByCode(ctx, code)
	if errors.Is(err, supplier.ErrNotFound) {
		r.logger.Warn("no supplier record for code", slog.String("code", code))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	product, _, err := r.reconcileRecord(ctx, record)
	if err != nil {
		return nil, err
	}
	return product, nil
}

// SyncByCodeRange 并发拉取一段编码区间后顺序落库。
func (r *Reconciler) SyncByCodeRange(ctx context.Context, startCode, endCode int) (*Result, error) {
	r.logger.Info("starting sync for code range",
		slog.Int("start", startCode), slog.Int("end", endCode))
	start := time.Now()

	records, err := r.client.FetchByCodeRange(ctx, startCode, endCode)
	if err != nil {
		metrics.SyncRunsTotal.WithLabelValues("code_range", "error").Inc()
		return nil, err
	}

	result := r.applyRecords(ctx, records)
	r.finishRun("code_range", result, start)
	return result, nil
}

// SyncByRowRange 用批量端点按行号区间同步，1 起始。
func (r *Reconciler) SyncByRowRange(ctx context.Context, fromRow, toRow int) (*Result, error) {
	r.logger.Info("starting sync for row range",
		slog.Int("from", fromRow), slog.Int("to", toRow))
	start := time.Now()

	records, err := r.client.FetchByRowRange(ctx, fromRow, toRow)
	if err != nil {
		metrics.SyncRunsTotal.WithLabelValues("row_range", "error").Inc()
		return nil, err
	}

	result := r.applyRecords(ctx, records)
	r.finishRun("row_range", result, start)
	return result, nil
}

// SyncAll 用 0-9 十个单数字搜索词扫全量目录。
//
// 同一商品可能被多个数字命中，落库幂等，计数按处理次数累计。
// 单个数字的拉取失败只记日志，不中断扫描。
func (r *Reconciler) SyncAll(ctx context.Context) (*Result, error) {
	r.logger.Info("starting bulk sync of all products")
	start := time.Now()
	result := &Result{}

	for digit := 0; digit <= 9; digit++ {
		if ctx.Err() != nil {
			break
		}
		records, err := r.client.FetchBySearch(ctx, strconv.Itoa(digit))
		if err != nil {
			if errors.Is(err, supplier.ErrAuthentication) {
				metrics.SyncRunsTotal.WithLabelValues("all", "error").Inc()
				return nil, err
			}
			r.logger.Error("fetch products for digit failed",
				slog.Int("digit", digit), slog.String("error", err.Error()))
			continue
		}
		r.logger.Info("digit sweep page",
			slog.Int("digit", digit), slog.Int("records", len(records)))

		partial := r.applyRecords(ctx, records)
		result.Created += partial.Created
		result.Updated += partial.Updated
		result.Skipped += partial.Skipped
		result.Errors += partial.Errors
		result.Total += partial.Total
	}

	r.finishRun("all", result, start)
	return result, nil
}

// SyncStockOnly 逐编码刷新已有商品的库存。慢路径，仅适合小库存量。
func (r *Reconciler) SyncStockOnly(ctx context.Context) (*Result, error) {
	r.logger.Info("starting stock-only sync")
	start := time.Now()

	products, err := r.store.FindSyncable(ctx)
	if err != nil {
		metrics.SyncRunsTotal.WithLabelValues("stock_only", "error").Inc()
		return nil, err
	}

	result := &Result{}
	for _, product := range products {
		if ctx.Err() != nil {
			// 取消后剩余商品不再处理，也不计入 Total
			break
		}
		result.Total++
		sku := ""
		if product.SupplierSKU != nil {
			sku = *product.SupplierSKU
		}

		record, err := r.client.FetchByCode(ctx, sku)
		if errors.Is(err, supplier.ErrNotFound) {
			result.Skipped++
			metrics.SyncProductsTotal.WithLabelValues("skipped").Inc()
			continue
		}
		if errors.Is(err, supplier.ErrAuthentication) {
			metrics.SyncRunsTotal.WithLabelValues("stock_only", "error").Inc()
			return nil, err
		}
		if err != nil {
			r.logger.Error("stock lookup failed",
				slog.String("sku", sku), slog.String("error", err.Error()))
			result.Errors++
			metrics.SyncProductsTotal.WithLabelValues("error").Inc()
			continue
		}

		if _, err := r.store.UpdateStockByExternalSKU(ctx, sku, record.QuantityValue()); err != nil {
			r.logger.Error("stock update failed",
				slog.String("sku", sku), slog.String("error", err.Error()))
			result.Errors++
			metrics.SyncProductsTotal.WithLabelValues("error").Inc()
			continue
		}
		result.Updated++
		metrics.SyncProductsTotal.WithLabelValues("updated").Inc()
	}

	r.finishRun("stock_only", result, start)
	return result, nil
}

// SyncStockBatch 大规模库存快速同步。
//
// 先把本地已知的供应商编码全部载入内存，再按固定分页扫供应商的行区间，
// 对命中的编码做单条库存更新，未知编码直接跳过。扫描行数有硬上限，
// 保证最坏情况下的运行时间有界。
func (r *Reconciler) SyncStockBatch(ctx context.Context) (*Result, error) {
	r.logger.Info("starting fast batch stock sync")
	start := time.Now()

	known, err := r.store.FindAllExternalSKUs(ctx)
	if err != nil {
		metrics.SyncRunsTotal.WithLabelValues("stock_batch", "error").Inc()
		return nil, err
	}
	r.logger.Info("loaded local supplier skus", slog.Int("count", len(known)))

	pageSize := r.policy.StockBatchPageSize
	if pageSize <= 0 {
		pageSize = 1000
	}
	maxRows := r.policy.StockBatchMaxRows
	if maxRows <= 0 {
		maxRows = 50000
	}

	result := &Result{}
	fromRow := 1
	for {
		if ctx.Err() != nil {
			break
		}
		if fromRow > maxRows {
			r.logger.Warn("reached stock batch safety limit", slog.Int("max_rows", maxRows))
			break
		}

		records, err := r.client.FetchByRowRange(ctx, fromRow, fromRow+pageSize-1)
		if err != nil {
			if errors.Is(err, supplier.ErrAuthentication) {
				metrics.SyncRunsTotal.WithLabelValues("stock_batch", "error").Inc()
				return nil, err
			}
			r.logger.Error("fetch stock batch failed",
				slog.Int("from_row", fromRow), slog.String("error", err.Error()))
			// 整页算一个失败单元，保持计数守恒
			result.Total++
			result.Errors++
			fromRow += pageSize // 跳过这一页继续
			continue
		}
		if len(records) == 0 {
			break
		}

		for i := range records {
			if ctx.Err() != nil {
				break
			}
			record := &records[i]
			result.Total++
			if _, ok := known[record.Code]; !ok {
				result.Skipped++
				continue
			}

			matched, err := r.store.UpdateStockByExternalSKU(ctx, record.Code, record.QuantityValue())
			if err != nil {
				r.logger.Error("stock batch update failed",
					slog.String("sku", record.Code), slog.String("error", err.Error()))
				result.Errors++
				metrics.SyncProductsTotal.WithLabelValues("error").Inc()
				continue
			}
			if matched {
				result.Updated++
				metrics.SyncProductsTotal.WithLabelValues("updated").Inc()
			} else {
				result.Skipped++
			}
		}

		r.logger.Info("stock batch page processed",
			slog.Int("from_row", fromRow),
			slog.Int("rows", len(records)),
			slog.Int("updated", result.Updated))
		fromRow += pageSize
	}

	r.finishRun("stock_batch", result, start)
	return result, nil
}

// applyRecords 顺序落库一批供应商记录。写操作绝不并发，避免同一记录的写竞争。
func (r *Reconciler) applyRecords(ctx context.Context, records []supplier.Record) *Result {
	result := &Result{}
	for i := range records {
		if ctx.Err() != nil {
			// 取消后剩余记录不再处理，也不计入 Total
			break
		}
		result.Total++

		_, outcome, err := r.reconcileRecord(ctx, &records[i])
		if err != nil {
			r.logger.Error("sync product failed",
				slog.String("code", records[i].Code),
				slog.String("error", err.Error()))
			result.Errors++
			metrics.SyncProductsTotal.WithLabelValues("error").Inc()
			continue
		}
		switch outcome {
		case outcomeCreated:
			result.Created++
			metrics.SyncProductsTotal.WithLabelValues("created").Inc()
		case outcomeSkipped:
			result.Skipped++
			metrics.SyncProductsTotal.WithLabelValues("skipped").Inc()
		default:
			result.Updated++
			metrics.SyncProductsTotal.WithLabelValues("updated").Inc()
		}
	}
	return result
}

type outcome int

const (
	outcomeCreated outcome = iota
	outcomeUpdated
	outcomeSkipped
)

// reconcileRecord 把一条供应商记录合并到本地目录（单条读-改-写）。
//
// 新记录创建时写入初始标题/handle，默认状态来自策略配置；
// 已有记录始终刷新价格、划线价、库存与同步时间；
// 人工维护的商品按策略决定是否允许覆盖标题等描述性字段，
// 不允许时仅做价格/库存刷新并计为 Skipped。
func (r *Reconciler) reconcileRecord(ctx context.Context, record *supplier.Record) (*model.Product, outcome, error) {
	if record.Code == "" {
		return nil, outcomeSkipped, fmt.Errorf("supplier record without code")
	}

	existing, err := r.store.FindByExternalSKU(ctx, record.Code)
	if err != nil {
		return nil, outcomeSkipped, err
	}

	var (
		product *model.Product
		out     outcome
	)
	if existing == nil {
		sku := record.Code
		product = &model.Product{
			SupplierSKU: &sku,
			Handle:      GenerateHandle(record.Name, record.Code),
			Title:       record.Name,
			Status:      r.createStatus(),
		}
		product.SetBarcodes(record.BarcodeList())
		out = outcomeCreated
	} else {
		product = existing
		out = outcomeUpdated
		if product.ManualEntry && !r.policy.AllowOverwriteManualEntries {
			// 人工条目锁定描述性字段，只收价格与库存
			out = outcomeSkipped
		}
		if product.Barcodes == "" {
			product.SetBarcodes(record.BarcodeList())
		}
	}

	if out != outcomeSkipped {
		// 供应商原始名称每次刷新，展示标题只在创建时取供应商值
		product.SupplierTitle = record.Name
	}

	salesPrice := record.SalesPriceValue()
	product.Price = salesPrice
	// 仅在折前价高于售价时保留划线价，否则清掉
	if record.BaseSalePrice > salesPrice {
		base := record.BaseSalePrice
		product.CompareAtPrice = &base
	} else {
		product.CompareAtPrice = nil
	}
	product.Stock = record.QuantityValue()
	now := time.Now()
	product.LastSyncedAt = &now

	if err := r.store.Upsert(ctx, product); err != nil {
		return nil, outcomeSkipped, err
	}
	return product, out, nil
}

func (r *Reconciler) createStatus() string {
	if r.policy.DefaultStatusOnCreate == model.StatusPublished {
		return model.StatusPublished
	}
	return model.StatusDraft
}

func (r *Reconciler) finishRun(mode string, result *Result, start time.Time) {
	status := "ok"
	if result.Errors > 0 {
		status = "partial"
	}
	metrics.SyncRunsTotal.WithLabelValues(mode, status).Inc()
	metrics.SyncDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
	r.logger.Info("sync completed",
		slog.String("mode", mode),
		slog.Int("created", result.Created),
		slog.Int("updated", result.Updated),
		slog.Int("skipped", result.Skipped),
		slog.Int("errors", result.Errors),
		slog.Int("total", result.Total),
		slog.Duration("elapsed", time.Since(start)))
}
