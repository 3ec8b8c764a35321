package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"papastore/internal/config"
	"papastore/internal/enrich"
	"papastore/internal/pkg/dedup"
	"papastore/internal/pkg/enrichqueue"
	"papastore/internal/pkg/imagestore"
	"papastore/internal/pkg/logger"
	"papastore/internal/pkg/metrics"
	"papastore/internal/pkg/ratelimit"
	"papastore/internal/store"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// version 由构建时 -ldflags 注入。
var version = "dev"

// main 是补全 worker 的入口函数。
//
// 它负责：
// 1. 加载配置
// 2. 连接 MySQL 与 Redis
// 3. 组装抓取器、各数据源与补全引擎
// 4. 启动串行消费循环与 Metrics 服务
// 5. 优雅关闭
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	appLogger := logger.NewDefault(cfg.App.LogLevel)
	metrics.InitMetrics(version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := gorm.Open(mysql.Open(cfg.MySQL.DSN), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		appLogger.Error("connect mysql failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	catalog := store.New(db)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       0,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		appLogger.Error("connect redis failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	queue, err := enrichqueue.NewClient(rdb)
	if err != nil {
		appLogger.Error("init enrich queue failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	limiter := ratelimit.NewRedisRateLimiter(rdb, appLogger, "", cfg.Scrape.RateLimit, cfg.Scrape.RateBurst)
	cooldown := dedup.NewDeduplicator(rdb, time.Duration(cfg.Scrape.CooldownWindow)*time.Second)
	fetcher := enrich.NewHTTPFetcher(cfg.Scrape, limiter, cooldown, appLogger)

	var images enrich.ImageUploader
	if cfg.Storage.Bucket != "" {
		s3Client, err := imagestore.NewS3Client(ctx, cfg.Storage)
		if err != nil {
			appLogger.Error("init object storage failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		images = imagestore.New(s3Client, cfg.Storage, appLogger)
	} else {
		appLogger.Warn("object storage not configured, image re-hosting disabled")
	}

	sources := []enrich.Source{
		enrich.NewGalenSource(fetcher, appLogger),
		enrich.NewEmagSource(fetcher, appLogger),
		enrich.NewGladenSource(fetcher, appLogger),
	}
	engine := enrich.NewEngine(catalog, sources, fetcher, images, appLogger)
	worker := enrich.NewWorker(queue, engine, appLogger)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				appLogger.Error("PANIC in enrich worker loop", slog.Any("panic", r))
				os.Exit(1)
			}
		}()
		if err := worker.Run(ctx); err != nil {
			appLogger.Error("enrich worker stopped", slog.String("error", err.Error()))
		}
	}()

	metricsAddr := cfg.App.MetricsAddr
	if metricsAddr == "" {
		metricsAddr = ":2112"
	}
	metricsServer := &http.Server{
		Addr:    metricsAddr,
		Handler: promhttp.Handler(),
	}
	go func() {
		appLogger.Info("enrichworker metrics server started", slog.String("addr", metricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("metrics server stopped with error", slog.String("error", err.Error()))
		}
	}()

	<-ctx.Done()
	appLogger.Info("shutting down enrich worker...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("metrics shutdown error", slog.String("error", err.Error()))
	}
	if err := rdb.Close(); err != nil {
		appLogger.Error("close redis failed", slog.String("error", err.Error()))
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}

	appLogger.Info("enrich worker stopped gracefully")
}
