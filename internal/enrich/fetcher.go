package enrich

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"papastore/internal/config"
	"papastore/internal/pkg/dedup"
	"papastore/internal/pkg/metrics"
	"papastore/internal/pkg/ratelimit"
)

var (
	// ErrBlocked 目标站点返回了反爬拦截页（403/429 或验证码页面）。
	ErrBlocked = errors.New("enrich: blocked by target site")

	// ErrRecentlyFetched 该 URL 在冷却窗口内刚抓取过，本次跳过。
	ErrRecentlyFetched = errors.New("enrich: url fetched recently")
)

// userAgents 轮换的桌面浏览器 UA 池。
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/118.0.0.0 Safari/537.36",
}

// blockMarkers 命中即判定为拦截页的正文特征。
var blockMarkers = []string{
	"captcha",
	"cf-browser-verification",
	"access denied",
	"достъпът е отказан",
}

// Fetcher 抓取 HTML 页面与二进制资源，供各数据源和图片下载复用。
type Fetcher interface {
	// GetDocument 抓取页面并解析为 goquery 文档。
	GetDocument(ctx context.Context, url string) (*goquery.Document, error)
	// GetBytes 抓取二进制资源（图片），不走 URL 冷却。
	GetBytes(ctx context.Context, url string) ([]byte, error)
}

// HTTPFetcher 是 Fetcher 的默认实现。
//
// 每次抓取前强制等待：2~5 秒随机延迟 + Redis 令牌桶配额，
// 两者都过了才发请求。全局配额跨 api 与 enrichworker 两个进程生效。
type HTTPFetcher struct {
	httpClient *http.Client
	limiter    *ratelimit.RateLimiter
	cooldown   *dedup.Deduplicator
	cfg        config.ScrapeConfig
	logger     *slog.Logger

	// mu 串行化本进程内的全部对外抓取，rng 只在持锁时使用。
	mu  sync.Mutex
	rng *rand.Rand
}

func NewHTTPFetcher(cfg config.ScrapeConfig, limiter *ratelimit.RateLimiter, cooldown *dedup.Deduplicator, logger *slog.Logger) *HTTPFetcher {
	return &HTTPFetcher{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		limiter:    limiter,
		cooldown:   cooldown,
		cfg:        cfg,
		logger:     logger,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// GetDocument 抓取并解析 HTML 页面。
//
// 冷却窗口内重复的 URL 返回 ErrRecentlyFetched；抓取失败时释放冷却
// 标记，让下一轮可以重试。
func (f *HTTPFetcher) GetDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	if f.cooldown != nil {
		dup, err := f.cooldown.IsDuplicate(ctx, pageURL)
		if err != nil {
			f.logger.Warn("scrape cooldown check failed", slog.String("error", err.Error()))
		} else if dup {
			return nil, ErrRecentlyFetched
		}
	}

	body, err := f.fetch(ctx, pageURL, "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	if err != nil {
		if f.cooldown != nil {
			if delErr := f.cooldown.Delete(ctx, pageURL); delErr != nil {
				f.logger.Warn("scrape cooldown release failed", slog.String("error", delErr.Error()))
			}
		}
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

func (f *HTTPFetcher) GetBytes(ctx context.Context, url string) ([]byte, error) {
	return f.fetch(ctx, url, "image/avif,image/webp,image/apng,image/*,*/*;q=0.8")
}

func (f *HTTPFetcher) fetch(ctx context.Context, url, accept string) ([]byte, error) {
	// 抓取速率预算是全局的，同一时刻只允许一条抓取链在请求。
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.suspend(ctx); err != nil {
		return nil, err
	}

	source := hostLabel(url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgents[f.rng.Intn(len(userAgents))])
	req.Header.Set("Accept", accept)
	req.Header.Set("Accept-Language", "bg-BG,bg;q=0.9,en;q=0.8")
	req.Header.Set("Referer", "https://www.google.bg/")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		metrics.ScrapeRequestsTotal.WithLabelValues(source, "error").Inc()
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests {
		metrics.ScrapeBlockedTotal.WithLabelValues(source).Inc()
		metrics.ScrapeRequestsTotal.WithLabelValues(source, "blocked").Inc()
		return nil, fmt.Errorf("%w: status %d from %s", ErrBlocked, resp.StatusCode, source)
	}
	if resp.StatusCode != http.StatusOK {
		metrics.ScrapeRequestsTotal.WithLabelValues(source, "error").Inc()
		return nil, fmt.Errorf("fetch %s: unexpected status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		metrics.ScrapeRequestsTotal.WithLabelValues(source, "error").Inc()
		return nil, fmt.Errorf("read body: %w", err)
	}

	if strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html") && looksBlocked(body) {
		metrics.ScrapeBlockedTotal.WithLabelValues(source).Inc()
		metrics.ScrapeRequestsTotal.WithLabelValues(source, "blocked").Inc()
		return nil, fmt.Errorf("%w: challenge page from %s", ErrBlocked, source)
	}

	metrics.ScrapeRequestsTotal.WithLabelValues(source, "ok").Inc()
	return body, nil
}

// suspend 执行强制等待：随机延迟在前，令牌桶在后。
func (f *HTTPFetcher) suspend(ctx context.Context) error {
	delay := f.cfg.MinDelay
	if span := f.cfg.MaxDelay - f.cfg.MinDelay; span > 0 {
		delay += time.Duration(f.rng.Int63n(int64(span)))
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if f.limiter != nil {
		if err := f.limiter.Acquire(ctx); err != nil {
			return fmt.Errorf("scrape budget: %w", err)
		}
	}
	return nil
}

func looksBlocked(body []byte) bool {
	// 只看前 4KB，拦截页的特征都在开头。
	head := body
	if len(head) > 4096 {
		head = head[:4096]
	}
	lower := strings.ToLower(string(head))
	for _, marker := range blockMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func hostLabel(url string) string {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(url, "https://"), "http://")
	trimmed = strings.TrimPrefix(trimmed, "www.")
	if i := strings.IndexByte(trimmed, '/'); i >= 0 {
		trimmed = trimmed[:i]
	}
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
