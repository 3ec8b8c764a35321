package notify

import (
	"context"
	"time"
)

// SyncReport 一次定时同步运行的汇总，供邮件上报。
type SyncReport struct {
	Mode     string        // 同步模式 (stock_batch / row_range ...)
	Created  int
	Updated  int
	Skipped  int
	Errors   int
	Total    int
	Elapsed  time.Duration
	FailLine string // 整批失败时的错误描述，部分失败时为空
}

// Notifier 定义同步报告的通知接口。
type Notifier interface {
	// SendSyncReport 发送同步结果报告。
	SendSyncReport(ctx context.Context, report *SyncReport) error
}
