package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"papastore/internal/config"

	"gopkg.in/gomail.v2"
)

// EmailNotifier 通过 SMTP 发送同步报告。
type EmailNotifier struct {
	cfg    *config.EmailConfig
	logger *slog.Logger
}

// NewEmailNotifier 创建一个新的邮件通知器。
func NewEmailNotifier(cfg *config.EmailConfig, logger *slog.Logger) *EmailNotifier {
	return &EmailNotifier{
		cfg:    cfg,
		logger: logger,
	}
}

// SendSyncReport 发送同步报告邮件。SMTP 未配置或收件人为空时静默跳过。
func (n *EmailNotifier) SendSyncReport(ctx context.Context, report *SyncReport) error {
	if report == nil {
		return nil
	}
	if n.cfg.SMTPHost == "" || n.cfg.SMTPUser == "" || n.cfg.FromEmail == "" {
		n.logger.Warn("email config missing, skip sync report")
		return nil
	}
	if strings.TrimSpace(n.cfg.ReportTo) == "" {
		n.logger.Warn("report recipient empty, skip sync report")
		return nil
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.cfg.FromEmail)
	m.SetHeader("To", n.cfg.ReportTo)

	subject := fmt.Sprintf("[papastore] 同步报告: %s", report.Mode)
	if report.FailLine != "" || report.Errors > 0 {
		subject = fmt.Sprintf("[papastore] ⚠️ 同步异常: %s", report.Mode)
	}
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", n.buildHTMLBody(report))

	d := gomail.NewDialer(n.cfg.SMTPHost, n.cfg.SMTPPort, n.cfg.SMTPUser, n.cfg.SMTPPass)

	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	n.logger.Info("sync report sent",
		slog.String("to", n.cfg.ReportTo),
		slog.String("mode", report.Mode))
	return nil
}

func (n *EmailNotifier) buildHTMLBody(report *SyncReport) string {
	failBlock := ""
	if report.FailLine != "" {
		failBlock = fmt.Sprintf(`<div class="fail">%s</div>`, report.FailLine)
	}

	template := `
<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8" />
<style>
  body { font-family: Arial, sans-serif; background: #f6f7fb; color: #1f2937; }
  .card { max-width: 560px; margin: 24px auto; background: #ffffff; border-radius: 12px; overflow: hidden; border: 1px solid #e5e7eb; }
  .header { background: #0f172a; color: #ffffff; padding: 16px 20px; font-size: 16px; font-weight: bold; }
  .content { padding: 20px; }
  table { width: 100%%; border-collapse: collapse; }
  td { padding: 8px 4px; border-bottom: 1px solid #e5e7eb; }
  td.num { text-align: right; font-weight: bold; }
  .fail { margin-top: 16px; padding: 12px; background: #fef2f2; color: #b91c1c; border-radius: 8px; font-size: 13px; }
  .footer { margin-top: 20px; font-size: 12px; color: #6b7280; }
</style>
</head>
<body>
  <div class="card">
    <div class="header">目录同步报告 · %s</div>
    <div class="content">
      <table>
        <tr><td>新建</td><td class="num">%d</td></tr>
        <tr><td>更新</td><td class="num">%d</td></tr>
        <tr><td>跳过</td><td class="num">%d</td></tr>
        <tr><td>失败</td><td class="num">%d</td></tr>
        <tr><td>总计</td><td class="num">%d</td></tr>
      </table>
      %s
      <div class="footer">耗时 %s</div>
    </div>
  </div>
</body>
</html>`

	return fmt.Sprintf(template,
		report.Mode,
		report.Created, report.Updated, report.Skipped, report.Errors, report.Total,
		failBlock,
		report.Elapsed.Round(100*time.Millisecond).String())
}
