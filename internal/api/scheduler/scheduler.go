package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"papastore/internal/config"
	"papastore/internal/pkg/enrichqueue"
	"papastore/internal/pkg/metrics"
	"papastore/internal/pkg/notify"
	"papastore/internal/pkg/queue"
	catalogsync "papastore/internal/sync"
)

// Syncer 是调度器触发的同步能力，由 sync.Reconciler 提供。
type Syncer interface {
	SyncStockBatch(ctx context.Context) (*catalogsync.Result, error)
	SyncByRowRange(ctx context.Context, fromRow, toRow int) (*catalogsync.Result, error)
}

// Scheduler 定时触发库存批量同步和全量行扫描。
//
// 两类任务都派发到共享的 Worker Pool 执行，彼此不会并发堆积：
// 池子只有一个 worker，上一轮没跑完时新一轮直接排队。
type Scheduler struct {
	syncer      Syncer
	queue       *queue.Queue
	enrichQueue *enrichqueue.Client
	notifier    notify.Notifier
	cfg         config.SyncConfig
	logger      *slog.Logger
}

func NewScheduler(syncer Syncer, enrichQueue *enrichqueue.Client, notifier notify.Notifier, cfg config.SyncConfig, logger *slog.Logger) *Scheduler {
	// 单 worker：同步任务串行执行，避免库存批量和全量扫描
	// 同时打满供应商接口。
	q := queue.NewQueue(logger, 1, 8)
	q.SetErrorHandler(func(err error, _ queue.Job) {
		logger.Error("scheduled sync failed", slog.String("error", err.Error()))
		if notifier != nil {
			report := &notify.SyncReport{Mode: "scheduled", FailLine: err.Error()}
			if sendErr := notifier.SendSyncReport(context.Background(), report); sendErr != nil {
				logger.Warn("send failure report failed", slog.String("error", sendErr.Error()))
			}
		}
	})

	return &Scheduler{
		syncer:      syncer,
		queue:       q,
		enrichQueue: enrichQueue,
		notifier:    notifier,
		cfg:         cfg,
		logger:      logger,
	}
}

// Run 启动定时循环，阻塞直到 ctx 取消。
//
// 配置未开启定时同步时只跑队列深度探针。
func (s *Scheduler) Run(ctx context.Context) {
	go s.monitorQueueDepth(ctx)

	if !s.cfg.ScheduledEnabled {
		s.logger.Info("scheduled sync disabled")
		<-ctx.Done()
		return
	}

	s.queue.Start(ctx)
	s.logger.Info("scheduler started",
		slog.String("stock_interval", s.cfg.StockInterval.String()),
		slog.String("full_interval", s.cfg.FullInterval.String()))

	stockTicker := time.NewTicker(s.cfg.StockInterval)
	defer stockTicker.Stop()
	fullTicker := time.NewTicker(s.cfg.FullInterval)
	defer fullTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping")
			if err := s.queue.ShutdownWithTimeout(30 * time.Second); err != nil {
				s.logger.Error("queue shutdown timeout", slog.String("error", err.Error()))
			}
			s.logger.Info("scheduler stopped")
			return
		case <-stockTicker.C:
			s.dispatch("stock_batch", s.runStockSync)
		case <-fullTicker.C:
			s.dispatch("full_sweep", s.runFullSweep)
		}
	}
}

// TriggerStockSync 手动触发一次库存批量同步（非阻塞入队）。
func (s *Scheduler) TriggerStockSync() {
	s.dispatch("stock_batch", s.runStockSync)
}

func (s *Scheduler) dispatch(mode string, job func(context.Context) error) {
	if !s.queue.Enqueue(job) {
		s.logger.Warn("sync job dropped, queue full", slog.String("mode", mode))
		return
	}
	s.logger.Info("sync job enqueued", slog.String("mode", mode))
}

func (s *Scheduler) runStockSync(ctx context.Context) error {
	started := time.Now()
	res, err := s.syncer.SyncStockBatch(ctx)
	if err != nil {
		return fmt.Errorf("stock batch sync: %w", err)
	}
	s.report(ctx, "stock_batch", res, time.Since(started))
	return nil
}

// runFullSweep 按行区间分页拉取全量目录，直到供应商返回空页。
func (s *Scheduler) runFullSweep(ctx context.Context) error {
	pageSize := s.cfg.FullSyncPageSize
	if pageSize <= 0 {
		pageSize = 1000
	}
	maxRows := s.cfg.FullSyncMaxRows
	if maxRows <= 0 {
		maxRows = 20000
	}

	started := time.Now()
	total := &catalogsync.Result{}
	for from := 1; from <= maxRows; from += pageSize {
		if ctx.Err() != nil {
			break
		}
		to := from + pageSize - 1
		if to > maxRows {
			to = maxRows
		}

		res, err := s.syncer.SyncByRowRange(ctx, from, to)
		if err != nil {
			return fmt.Errorf("full sweep rows %d-%d: %w", from, to, err)
		}
		total.Created += res.Created
		total.Updated += res.Updated
		total.Skipped += res.Skipped
		total.Errors += res.Errors
		total.Total += res.Total
		if res.Total == 0 {
			break
		}
	}

	s.report(ctx, "full_sweep", total, time.Since(started))
	return nil
}

func (s *Scheduler) report(ctx context.Context, mode string, res *catalogsync.Result, elapsed time.Duration) {
	s.logger.Info("scheduled sync finished",
		slog.String("mode", mode),
		slog.Int("created", res.Created),
		slog.Int("updated", res.Updated),
		slog.Int("skipped", res.Skipped),
		slog.Int("errors", res.Errors),
		slog.Int("total", res.Total),
		slog.Duration("elapsed", elapsed))

	if s.notifier == nil {
		return
	}
	report := &notify.SyncReport{
		Mode:    mode,
		Created: res.Created,
		Updated: res.Updated,
		Skipped: res.Skipped,
		Errors:  res.Errors,
		Total:   res.Total,
		Elapsed: elapsed,
	}
	if err := s.notifier.SendSyncReport(ctx, report); err != nil {
		s.logger.Warn("send sync report failed",
			slog.String("mode", mode),
			slog.String("error", err.Error()))
	}
}

// monitorQueueDepth 周期性上报补全队列深度。
func (s *Scheduler) monitorQueueDepth(ctx context.Context) {
	if s.enrichQueue == nil {
		return
	}
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pending, processing, err := s.enrichQueue.Depth(ctx)
			if err != nil {
				s.logger.Warn("queue depth probe failed", slog.String("error", err.Error()))
				continue
			}
			metrics.EnrichQueueDepth.WithLabelValues("pending").Set(float64(pending))
			metrics.EnrichQueueDepth.WithLabelValues("processing").Set(float64(processing))
		}
	}
}
