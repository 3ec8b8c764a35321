package enrich

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"papastore/internal/pkg/enrichqueue"
)

const (
	popTimeout      = 5 * time.Second
	janitorInterval = 10 * time.Minute
	janitorTimeout  = 30 * time.Minute
)

// Worker 串行消费补全队列。
//
// 抓取受全局速率约束，单 worker 足够；多开实例只会互相
// 抢同一个令牌桶。
type Worker struct {
	queue  *enrichqueue.Client
	engine *Engine
	logger *slog.Logger
}

func NewWorker(queue *enrichqueue.Client, engine *Engine, logger *slog.Logger) *Worker {
	return &Worker{queue: queue, engine: engine, logger: logger}
}

// Run 阻塞消费队列直到 ctx 取消。
//
// 补全出错的任务不做 Ack，留在 processing 队列里等 janitor
// 救回重试；明确的"无匹配"结果视为完成。
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("enrich worker started")
	go w.runJanitor(ctx)

	for {
		if ctx.Err() != nil {
			w.logger.Info("enrich worker stopping")
			return nil
		}

		task, err := w.queue.Pop(ctx, popTimeout)
		if err != nil {
			if errors.Is(err, enrichqueue.ErrNoTask) {
				continue
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			w.logger.Error("pop enrichment task failed", slog.String("error", err.Error()))
			time.Sleep(time.Second)
			continue
		}

		res, err := w.engine.EnrichOne(ctx, task.ProductID)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			w.logger.Error("enrichment task failed",
				slog.String("product_id", task.ProductID),
				slog.String("error", err.Error()))
			continue
		}

		if err := w.queue.Ack(ctx, task); err != nil {
			w.logger.Warn("ack enrichment task failed",
				slog.String("product_id", task.ProductID),
				slog.String("error", err.Error()))
		}
		w.logger.Info("enrichment task done",
			slog.String("product_id", task.ProductID),
			slog.Bool("success", res.Success),
			slog.Float64("score", res.MatchScore))
	}
}

// runJanitor 周期性把卡在 processing 队列里的任务救回待处理队列。
func (w *Worker) runJanitor(ctx context.Context) {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			count, err := w.queue.RescueStuck(ctx, janitorTimeout)
			if err != nil {
				w.logger.Error("janitor rescue failed", slog.String("error", err.Error()))
				continue
			}
			if count > 0 {
				w.logger.Info("janitor rescued stuck tasks", slog.Int("count", count))
			}
		}
	}
}
