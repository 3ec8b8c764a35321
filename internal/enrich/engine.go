package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"papastore/internal/model"
	"papastore/internal/pkg/metrics"
)

const (
	// barcodeScore 条码命中的固定置信度。
	barcodeScore = 0.95
	// nameFallbackBelow 条码结果低于该值时追加名称检索。
	nameFallbackBelow = 0.8
	// nameEarlyExit 名称检索达到该值即停止尝试后续源。
	nameEarlyExit = 0.7
	// acceptFloor 低于该值的候选一律弃用。
	acceptFloor = 0.1

	// interItemDelay 批量补全时相邻商品之间的停顿。
	interItemDelay = 500 * time.Millisecond
)

// CatalogStore 是补全引擎需要的商品读写能力。
type CatalogStore interface {
	FindByID(ctx context.Context, id string) (*model.Product, error)
	Upsert(ctx context.Context, p *model.Product) error
}

// ImageUploader 把下载的图片转存到对象存储，返回公开 URL。
type ImageUploader interface {
	Upload(ctx context.Context, data []byte, folder string) (string, error)
}

// Result 是单个商品的补全结果。
type Result struct {
	ProductID   string  `json:"product_id"`
	SupplierSKU string  `json:"supplier_sku,omitempty"`
	Success     bool    `json:"success"`
	Message     string  `json:"message,omitempty"`
	MatchScore  float64 `json:"match_score"`
	Source      string  `json:"source,omitempty"`
	Title       string  `json:"title,omitempty"`
}

// Engine 按优先级在各数据源间做瀑布式检索，补全商品资料。
//
// 数据源严格串行访问，配合 Fetcher 的强制等待把抓取压力
// 控制在最低。
type Engine struct {
	store   CatalogStore
	sources []Source
	fetcher Fetcher
	images  ImageUploader
	logger  *slog.Logger
}

// NewEngine 构造补全引擎。sources 的顺序即检索优先级。
// images 为 nil 时跳过图片转存，只写文本字段。
func NewEngine(store CatalogStore, sources []Source, fetcher Fetcher, images ImageUploader, logger *slog.Logger) *Engine {
	return &Engine{
		store:   store,
		sources: sources,
		fetcher: fetcher,
		images:  images,
		logger:  logger,
	}
}

// EnrichOne 补全单个商品。
//
// 先按条码在各源精确检索（命中记 0.95 并停止），不够可信时再按
// 清洗后的名称模糊检索；最终得分低于 0.1 时放弃候选，但仍落库
// 记分，避免该商品反复回到待补全队列。
func (e *Engine) EnrichOne(ctx context.Context, productID string) (*Result, error) {
	product, err := e.store.FindByID(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("load product %s: %w", productID, err)
	}
	if product == nil {
		return &Result{ProductID: productID, Message: "product not found"}, nil
	}

	res := &Result{ProductID: productID}
	if product.SupplierSKU != nil {
		res.SupplierSKU = *product.SupplierSKU
	}

	best := e.searchBarcodes(ctx, product)
	if best == nil || best.MatchScore < nameFallbackBelow {
		if cand := e.searchByName(ctx, product); cand != nil {
			if best == nil || cand.MatchScore > best.MatchScore {
				best = cand
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	score := 0.0
	if best != nil {
		score = best.MatchScore
	}
	metrics.EnrichMatchScore.Observe(score)

	if best == nil || score < acceptFloor {
		// 低分也落库，让队列不再捞起它；人工重试走显式 enqueue。
		product.EnrichmentMatchScore = &score
		if err := e.store.Upsert(ctx, product); err != nil {
			return nil, fmt.Errorf("persist score: %w", err)
		}
		res.Message = "no confident match"
		metrics.EnrichAttemptsTotal.WithLabelValues("none", "miss").Inc()
		e.logger.Info("enrichment found no match",
			slog.String("product_id", productID),
			slog.String("sku", res.SupplierSKU))
		return res, nil
	}

	e.apply(ctx, product, best)
	product.EnrichmentMatchScore = &score
	product.EnrichmentSource = best.Source
	if err := e.store.Upsert(ctx, product); err != nil {
		metrics.EnrichAttemptsTotal.WithLabelValues(best.Source, "error").Inc()
		return nil, fmt.Errorf("persist enrichment: %w", err)
	}

	metrics.EnrichAttemptsTotal.WithLabelValues(best.Source, "ok").Inc()
	e.logger.Info("product enriched",
		slog.String("product_id", productID),
		slog.String("sku", res.SupplierSKU),
		slog.String("source", best.Source),
		slog.Float64("score", score))

	res.Success = true
	res.MatchScore = score
	res.Source = best.Source
	res.Title = best.Title
	return res, nil
}

// EnrichMany 顺序补全一批商品，单个失败不影响其余。
func (e *Engine) EnrichMany(ctx context.Context, productIDs []string) []Result {
	results := make([]Result, 0, len(productIDs))
	for i, id := range productIDs {
		if ctx.Err() != nil {
			break
		}
		if i > 0 {
			select {
			case <-time.After(interItemDelay):
			case <-ctx.Done():
				return results
			}
		}

		res, err := e.EnrichOne(ctx, id)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				break
			}
			e.logger.Error("enrichment failed",
				slog.String("product_id", id),
				slog.String("error", err.Error()))
			results = append(results, Result{ProductID: id, Message: err.Error()})
			continue
		}
		results = append(results, *res)
	}
	return results
}

// searchBarcodes 条码优先检索：任一源命中即记固定 0.95 并返回。
func (e *Engine) searchBarcodes(ctx context.Context, product *model.Product) *Candidate {
	for _, barcode := range product.BarcodeList() {
		for _, src := range e.sources {
			if ctx.Err() != nil {
				return nil
			}
			cand, err := src.SearchBarcode(ctx, barcode)
			if err != nil {
				e.logSourceError(src.Name(), "barcode", err)
				continue
			}
			if cand == nil || cand.Title == "" {
				continue
			}
			cand.MatchScore = barcodeScore
			return cand
		}
	}
	return nil
}

// searchByName 用清洗后的名称依次检索各源，某个源达到 0.7 即收手。
func (e *Engine) searchByName(ctx context.Context, product *model.Product) *Candidate {
	name := product.SupplierTitle
	if name == "" {
		name = product.Title
	}
	query := CleanSearchQuery(name)
	if query == "" {
		return nil
	}

	var best *Candidate
	for _, src := range e.sources {
		if ctx.Err() != nil {
			break
		}
		cand, err := src.SearchName(ctx, query)
		if err != nil {
			e.logSourceError(src.Name(), "name", err)
			continue
		}
		if cand == nil {
			continue
		}
		if best == nil || cand.MatchScore > best.MatchScore {
			best = cand
		}
		if best.MatchScore >= nameEarlyExit {
			break
		}
	}
	return best
}

// apply 把候选的非空字段写进商品，图片转存到自己的对象存储。
func (e *Engine) apply(ctx context.Context, product *model.Product, cand *Candidate) {
	if cand.Title != "" {
		product.Title = cand.Title
	}
	if cand.Description != "" {
		product.Description = cand.Description
	}
	if cand.Brand != "" {
		product.Brand = cand.Brand
	}
	if cand.Ingredients != "" {
		product.Ingredients = cand.Ingredients
	}
	if cand.AgeRange != "" {
		product.AgeRange = cand.AgeRange
	}

	if e.images == nil || e.fetcher == nil || len(cand.ImageURLs) == 0 {
		return
	}
	var hosted []string
	for _, imgURL := range cand.ImageURLs {
		if ctx.Err() != nil {
			break
		}
		data, err := e.fetcher.GetBytes(ctx, imgURL)
		if err != nil {
			e.logger.Warn("image download failed",
				slog.String("url", imgURL),
				slog.String("error", err.Error()))
			continue
		}
		publicURL, err := e.images.Upload(ctx, data, "products")
		if err != nil {
			e.logger.Warn("image upload failed",
				slog.String("url", imgURL),
				slog.String("error", err.Error()))
			continue
		}
		hosted = append(hosted, publicURL)
	}
	if len(hosted) > 0 {
		product.SetImages(hosted)
		product.Thumbnail = hosted[0]
	}
}

func (e *Engine) logSourceError(source, mode string, err error) {
	if errors.Is(err, ErrRecentlyFetched) {
		e.logger.Debug("source skipped, url in cooldown", slog.String("source", source))
		return
	}
	level := slog.LevelWarn
	if errors.Is(err, ErrBlocked) {
		level = slog.LevelError
	}
	e.logger.Log(context.Background(), level, "source search failed",
		slog.String("source", source),
		slog.String("mode", mode),
		slog.String("error", err.Error()))
}
