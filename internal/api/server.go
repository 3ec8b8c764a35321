package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"papastore/internal/api/middleware"
	"papastore/internal/api/scheduler"
	"papastore/internal/config"
	"papastore/internal/enrich"
	"papastore/internal/pkg/dedup"
	"papastore/internal/pkg/enrichqueue"
	"papastore/internal/pkg/imagestore"
	"papastore/internal/pkg/notify"
	"papastore/internal/pkg/ratelimit"
	"papastore/internal/stock"
	"papastore/internal/store"
	"papastore/internal/supplier"
	catalogsync "papastore/internal/sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

const (
	maxCodeRangeSpan = 50000
	maxRowRangeSpan  = 5000
)

// Server 封装了 API 服务所需的依赖和路由处理。
//
// 它持有数据库连接、Redis 客户端、供应商客户端、同步器、
// 补全引擎以及 Gin 路由引擎。
type Server struct {
	cfg         *config.Config
	logger      *slog.Logger
	db          *gorm.DB
	rdb         *redis.Client
	router      *gin.Engine
	sched       *scheduler.Scheduler
	supplier    *supplier.Client
	reconciler  *catalogsync.Reconciler
	validator   *stock.Validator
	engine      *enrich.Engine
	enrichQueue *enrichqueue.Client
	catalog     *store.CatalogStore
}

// NewServer 初始化 API 服务器。
//
// 它负责：
// 1. 连接 MySQL 数据库并执行自动迁移
// 2. 连接 Redis
// 3. 构建供应商客户端、同步器、补全引擎等组件
// 4. 初始化 Gin 路由引擎
func NewServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := gorm.Open(mysql.Open(cfg.MySQL.DSN), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent), // 关闭GORM调试日志
	})
	if err != nil {
		return nil, err
	}

	catalog := store.New(db)
	if err := catalog.AutoMigrate(); err != nil {
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       0,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	supplierClient := supplier.NewClient(cfg.Supplier, logger)
	reconciler := catalogsync.NewReconciler(supplierClient, catalog, cfg.Sync, logger)
	validator := stock.NewValidator(supplierClient, logger)
	emailNotifier := notify.NewEmailNotifier(&cfg.Email, logger)
	enrichQueue, err := enrichqueue.NewClient(rdb)
	if err != nil {
		return nil, err
	}

	sched := scheduler.NewScheduler(reconciler, enrichQueue, emailNotifier, cfg.Sync, logger)

	engine, err := buildEnrichEngine(ctx, cfg, rdb, catalog, logger)
	if err != nil {
		return nil, err
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))

	s := &Server{
		cfg:         cfg,
		logger:      logger,
		db:          db,
		rdb:         rdb,
		router:      r,
		sched:       sched,
		supplier:    supplierClient,
		reconciler:  reconciler,
		validator:   validator,
		engine:      engine,
		enrichQueue: enrichQueue,
		catalog:     catalog,
	}
	s.registerRoutes()
	return s, nil
}

// buildEnrichEngine 组装补全引擎。
// 对象存储未配置时图片转存降级为关闭，只写文本字段。
func buildEnrichEngine(ctx context.Context, cfg *config.Config, rdb *redis.Client, catalog *store.CatalogStore, logger *slog.Logger) (*enrich.Engine, error) {
	limiter := ratelimit.NewRedisRateLimiter(rdb, logger, "", cfg.Scrape.RateLimit, cfg.Scrape.RateBurst)
	cooldown := dedup.NewDeduplicator(rdb, time.Duration(cfg.Scrape.CooldownWindow)*time.Second)
	fetcher := enrich.NewHTTPFetcher(cfg.Scrape, limiter, cooldown, logger)

	var images enrich.ImageUploader
	if cfg.Storage.Bucket != "" {
		s3Client, err := imagestore.NewS3Client(ctx, cfg.Storage)
		if err != nil {
			return nil, err
		}
		images = imagestore.New(s3Client, cfg.Storage, logger)
	} else {
		logger.Warn("object storage not configured, image re-hosting disabled")
	}

	sources := []enrich.Source{
		enrich.NewGalenSource(fetcher, logger),
		enrich.NewEmagSource(fetcher, logger),
		enrich.NewGladenSource(fetcher, logger),
	}
	return enrich.NewEngine(catalog, sources, fetcher, images, logger), nil
}

// Router 返回 HTTP 路由处理器。
func (s *Server) Router() http.Handler {
	return s.router
}

// StartScheduler 启动定时同步调度器。
func (s *Server) StartScheduler(ctx context.Context) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("PANIC in scheduler", slog.Any("panic", r))
			}
		}()
		s.sched.Run(ctx)
	}()
}

// Close 关闭数据库与缓存连接。
func (s *Server) Close() error {
	var firstErr error
	if s.rdb != nil {
		if err := s.rdb.Close(); err != nil {
			firstErr = err
		}
	}
	if s.db != nil {
		sqlDB, err := s.db.DB()
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
		} else {
			if closeErr := sqlDB.Close(); closeErr != nil {
				if firstErr == nil {
					firstErr = closeErr
				}
			}
		}
	}
	return firstErr
}

// registerRoutes 注册所有的 API 路由。
func (s *Server) registerRoutes() {
	// Prometheus metrics 端点
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/healthz", s.handleHealthz)

	api := s.router.Group("/api")

	stockGroup := api.Group("/stock")
	stockGroup.POST("/check", s.handleStockCheck)
	stockGroup.POST("/validate-cart", s.handleValidateCart)

	admin := api.Group("/admin")

	syncGroup := admin.Group("/sync")
	syncGroup.POST("/test", s.handleSyncTest)
	syncGroup.GET("/products/search", s.handleSearchProducts)
	syncGroup.POST("/products/code/:code", s.handleSyncByCode)
	syncGroup.POST("/products/range", s.handleSyncByCodeRange)
	syncGroup.POST("/products/rows", s.handleSyncByRowRange)
	syncGroup.POST("/products/all", s.handleSyncAll)
	syncGroup.POST("/stock", s.handleSyncStock)
	syncGroup.POST("/stock/batch", s.handleSyncStockBatch)

	enrichGroup := admin.Group("/enrichment")
	enrichGroup.GET("/queue", s.handleEnrichmentQueue)
	enrichGroup.GET("/stats", s.handleEnrichmentStats)
	enrichGroup.POST("/enrich", s.handleEnrichOne)
	enrichGroup.POST("/enrich-batch", s.handleEnrichBatch)

	barcodeGroup := admin.Group("/barcodes")
	barcodeGroup.POST("/upload", s.handleBarcodeUpload)
}

func (s *Server) handleHealthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if s.db == nil || s.rdb == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}

	var one int
	if err := s.db.WithContext(ctx).Raw("SELECT 1").Scan(&one).Error; err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleSyncTest 验证供应商 API 凭据是否可用。
//
// POST /api/admin/sync/test
func (s *Server) handleSyncTest(c *gin.Context) {
	if _, err := s.supplier.Authenticate(c.Request.Context()); err != nil {
		s.logger.Error("supplier auth test failed", slog.String("error", err.Error()))
		c.JSON(http.StatusBadGateway, gin.H{"ok": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// handleSearchProducts 透传供应商搜索结果，用于人工核对数据。
//
// GET /api/admin/sync/products/search?q=...
func (s *Server) handleSearchProducts(c *gin.Context) {
	term := strings.TrimSpace(c.Query("q"))
	if term == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing query parameter q"})
		return
	}

	records, err := s.supplier.FetchBySearch(c.Request.Context(), term)
	if err != nil {
		s.respondSupplierError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(records), "records": records})
}

// handleSyncByCode 同步单个供应商编码。
//
// POST /api/admin/sync/products/code/:code
func (s *Server) handleSyncByCode(c *gin.Context) {
	code := strings.TrimSpace(c.Param("code"))
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing product code"})
		return
	}

	product, err := s.reconciler.SyncProductByCode(c.Request.Context(), code)
	if err != nil {
		s.respondSupplierError(c, err)
		return
	}
	if product == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "product not found at supplier"})
		return
	}
	c.JSON(http.StatusOK, product)
}

type codeRangeRequest struct {
	StartCode int `json:"start_code" binding:"required"`
	EndCode   int `json:"end_code" binding:"required"`
}

// handleSyncByCodeRange 同步一段连续的供应商编码。
//
// POST /api/admin/sync/products/range
func (s *Server) handleSyncByCodeRange(c *gin.Context) {
	var req codeRangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.StartCode <= 0 || req.EndCode < req.StartCode {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid code range"})
		return
	}
	if span := req.EndCode - req.StartCode + 1; span > maxCodeRangeSpan {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code range too large", "max": maxCodeRangeSpan})
		return
	}

	result, err := s.reconciler.SyncByCodeRange(c.Request.Context(), req.StartCode, req.EndCode)
	if err != nil {
		s.respondSupplierError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type rowRangeRequest struct {
	FromRow int `json:"from_row" binding:"required"`
	ToRow   int `json:"to_row" binding:"required"`
}

// handleSyncByRowRange 按行区间批量同步（供应商分页接口）。
//
// POST /api/admin/sync/products/rows
func (s *Server) handleSyncByRowRange(c *gin.Context) {
	var req rowRangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.FromRow < 1 || req.ToRow < req.FromRow {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid row range"})
		return
	}
	if span := req.ToRow - req.FromRow + 1; span > maxRowRangeSpan {
		c.JSON(http.StatusBadRequest, gin.H{"error": "row range too large", "max": maxRowRangeSpan})
		return
	}

	result, err := s.reconciler.SyncByRowRange(c.Request.Context(), req.FromRow, req.ToRow)
	if err != nil {
		s.respondSupplierError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// handleSyncAll 全量同步整个供应商目录。
//
// POST /api/admin/sync/products/all
func (s *Server) handleSyncAll(c *gin.Context) {
	result, err := s.reconciler.SyncAll(c.Request.Context())
	if err != nil {
		s.respondSupplierError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// handleSyncStock 逐个商品刷新库存（慢，但无需批量接口）。
//
// POST /api/admin/sync/stock
func (s *Server) handleSyncStock(c *gin.Context) {
	result, err := s.reconciler.SyncStockOnly(c.Request.Context())
	if err != nil {
		s.respondSupplierError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// handleSyncStockBatch 按行区间分页刷新库存。
//
// POST /api/admin/sync/stock/batch
func (s *Server) handleSyncStockBatch(c *gin.Context) {
	result, err := s.reconciler.SyncStockBatch(c.Request.Context())
	if err != nil {
		s.respondSupplierError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type stockCheckRequest struct {
	SKUs []string `json:"skus" binding:"required"`
}

// handleStockCheck 实时查询一批 SKU 的供应商库存。
//
// POST /api/stock/check
func (s *Server) handleStockCheck(c *gin.Context) {
	var req stockCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.SKUs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "skus is empty"})
		return
	}

	info := s.validator.CheckStockRealTime(c.Request.Context(), req.SKUs)
	c.JSON(http.StatusOK, info)
}

type validateCartRequest struct {
	Items []stock.CartItemCheck `json:"items" binding:"required"`
}

// handleValidateCart 校验购物车各行的可用数量。
//
// POST /api/stock/validate-cart
func (s *Server) handleValidateCart(c *gin.Context) {
	var req validateCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Items) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "items is empty"})
		return
	}

	result := s.validator.ValidateCart(c.Request.Context(), req.Items)
	c.JSON(http.StatusOK, result)
}

// handleEnrichmentQueue 返回等待补全的商品列表。
//
// GET /api/admin/enrichment/queue?limit=50
func (s *Server) handleEnrichmentQueue(c *gin.Context) {
	limit := parseQueryInt(c, "limit", 50)
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	products, err := s.catalog.EnrichmentQueue(c.Request.Context(), limit)
	if err != nil {
		s.logger.Error("load enrichment queue failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load queue failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(products), "products": products})
}

// handleEnrichmentStats 返回补全进度统计。
//
// GET /api/admin/enrichment/stats
func (s *Server) handleEnrichmentStats(c *gin.Context) {
	stats, err := s.catalog.GetEnrichmentStats(c.Request.Context())
	if err != nil {
		s.logger.Error("load enrichment stats failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load stats failed"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

type enrichOneRequest struct {
	ProductID string `json:"product_id" binding:"required"`
}

// handleEnrichOne 同步执行单个商品的补全（调试或人工触发）。
//
// POST /api/admin/enrichment/enrich
func (s *Server) handleEnrichOne(c *gin.Context) {
	var req enrichOneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := s.engine.EnrichOne(c.Request.Context(), req.ProductID)
	if err != nil {
		s.logger.Error("enrich product failed",
			slog.String("product_id", req.ProductID),
			slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

type enrichBatchRequest struct {
	ProductIDs []string `json:"product_ids"`
	Limit      int      `json:"limit"`
}

// handleEnrichBatch 把一批商品推入补全队列，由 enrichworker 消费。
//
// 不带 product_ids 时自动从待补全队列取 limit 个。
//
// POST /api/admin/enrichment/enrich-batch
func (s *Server) handleEnrichBatch(c *gin.Context) {
	var req enrichBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ids := req.ProductIDs
	if len(ids) == 0 {
		limit := req.Limit
		if limit <= 0 || limit > 500 {
			limit = 50
		}
		products, err := s.catalog.EnrichmentQueue(c.Request.Context(), limit)
		if err != nil {
			s.logger.Error("load enrichment queue failed", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "load queue failed"})
			return
		}
		for _, p := range products {
			ids = append(ids, p.ID)
		}
	}

	enqueued, duplicates := 0, 0
	for _, id := range ids {
		err := s.enrichQueue.Push(c.Request.Context(), id)
		switch {
		case err == nil:
			enqueued++
		case errors.Is(err, enrichqueue.ErrTaskExists):
			duplicates++
		default:
			s.logger.Error("push enrichment task failed",
				slog.String("product_id", id),
				slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "enqueue failed"})
			return
		}
	}

	c.JSON(http.StatusAccepted, gin.H{"enqueued": enqueued, "duplicates": duplicates})
}

// handleBarcodeUpload 上传条码 CSV 并合并进目录。
//
// 表单字段 file 为 CSV 文件，列布局可用查询参数覆盖：
// delimiter、has_header、sku_column、name_column、barcode_column、create_missing。
//
// POST /api/admin/barcodes/upload
func (s *Server) handleBarcodeUpload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file"})
		return
	}
	if fileHeader.Size == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is empty"})
		return
	}

	opts := catalogsync.DefaultBarcodeImportOptions()
	if d := c.Query("delimiter"); d != "" {
		opts.Delimiter = rune(d[0])
	}
	opts.HasHeader = parseQueryBool(c, "has_header", true)
	opts.SKUColumn = parseQueryInt(c, "sku_column", opts.SKUColumn)
	opts.NameColumn = parseQueryInt(c, "name_column", opts.NameColumn)
	opts.BarcodeColumn = parseQueryInt(c, "barcode_column", opts.BarcodeColumn)
	opts.CreateMissing = parseQueryBool(c, "create_missing", false)

	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer f.Close()

	result, err := s.reconciler.ImportBarcodes(c.Request.Context(), f, opts)
	if err != nil {
		s.logger.Error("barcode import failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "barcode import failed"})
		return
	}
	c.JSON(http.StatusOK, result)
}

// respondSupplierError 把同步错误映射为合适的 HTTP 状态码。
func (s *Server) respondSupplierError(c *gin.Context, err error) {
	s.logger.Error("sync request failed", slog.String("error", err.Error()))
	switch {
	case errors.Is(err, supplier.ErrAuthentication):
		c.JSON(http.StatusBadGateway, gin.H{"error": "supplier authentication failed"})
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "sync canceled or timed out"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// parseQueryInt 解析查询参数中的整数值。
func parseQueryInt(c *gin.Context, key string, def int) int {
	val := c.Query(key)
	if val == "" {
		return def
	}
	iv, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return iv
}

// parseQueryBool 解析查询参数中的布尔值。
func parseQueryBool(c *gin.Context, key string, def bool) bool {
	val := c.Query(key)
	if val == "" {
		return def
	}
	bv, err := strconv.ParseBool(val)
	if err != nil {
		return def
	}
	return bv
}
