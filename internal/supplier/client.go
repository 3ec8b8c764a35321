package supplier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"papastore/internal/config"
	"papastore/internal/pkg/metrics"

	"golang.org/x/time/rate"
)

var (
	// ErrAuthentication 令牌交换失败。对当前操作是致命错误，不自动重试。
	ErrAuthentication = errors.New("supplier authentication failed")
	// ErrNotFound 按编码精确查找无结果。不算故障。
	ErrNotFound = errors.New("supplier record not found")
)

type authResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Client 封装对供应商 API 的认证与数据拉取。
//
// 令牌进程内缓存，过期时间取上游声明的 90%，刷新在互斥锁下串行，
// 范围扫描的并发 worker 同时调 Authenticate 时共享同一次交换。
type Client struct {
	cfg        config.SupplierConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewClient(cfg config.SupplierConfig, logger *slog.Logger) *Client {
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		logger:  logger,
	}
}

// Authenticate 返回一个有效的 bearer 令牌。
//
// 缓存未过期直接复用；否则持锁做一次凭证交换，并发调用方等待同一结果。
func (c *Client) Authenticate(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	form := url.Values{}
	form.Set("Username", c.cfg.Username)
	form.Set("Password", c.cfg.Password)
	form.Set("grant_type", "password")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("%w: build token request: %v", ErrAuthentication, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.SupplierTokenRefreshTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("%w: token exchange: %v", ErrAuthentication, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.SupplierTokenRefreshTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("%w: token endpoint returned %d", ErrAuthentication, resp.StatusCode)
	}

	var auth authResponse
	if err := json.NewDecoder(resp.Body).Decode(&auth); err != nil {
		metrics.SupplierTokenRefreshTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("%w: decode token response: %v", ErrAuthentication, err)
	}
	if auth.AccessToken == "" {
		metrics.SupplierTokenRefreshTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("%w: empty access token", ErrAuthentication)
	}

	c.token = auth.AccessToken
	// 过期时间打 9 折，抵消时钟偏差
	c.tokenExpiry = time.Now().Add(time.Duration(float64(auth.ExpiresIn)*0.9) * time.Second)
	metrics.SupplierTokenRefreshTotal.WithLabelValues("ok").Inc()
	c.logger.Info("supplier token refreshed",
		slog.Int64("expires_in", auth.ExpiresIn))
	return c.token, nil
}

// InvalidateToken 丢弃缓存令牌，下次调用强制重新交换。
func (c *Client) InvalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.tokenExpiry = time.Time{}
	c.mu.Unlock()
}

// FetchBySearch 按搜索词拉取商品列表。空结果返回空切片，不返回 nil 错误之外的东西。
func (c *Client) FetchBySearch(ctx context.Context, term string) ([]Record, error) {
	query := url.Values{}
	query.Set("locationid", c.cfg.LocationID)
	query.Set("priceid", c.cfg.PriceID)
	query.Set("search", term)
	return c.fetchList(ctx, "/api/GetAllData", query, "search")
}

// FetchByCode 按编码精确查找：搜索后过滤精确匹配，未命中返回 ErrNotFound。
func (c *Client) FetchByCode(ctx context.Context, code string) (*Record, error) {
	records, err := c.FetchBySearch(ctx, code)
	if err != nil {
		return nil, err
	}
	for i := range records {
		if records[i].Code == code {
			return &records[i], nil
		}
	}
	return nil, fmt.Errorf("%w: code %s", ErrNotFound, code)
}

// FetchByCodeRange 对 [start, end] 的每个编码各发一次搜索，
// 用固定宽度的信号量并发扇出，单个编码失败只记日志并跳过。
//
// 聚合结果的顺序跨运行不保证一致。
func (c *Client) FetchByCodeRange(ctx context.Context, start, end int) ([]Record, error) {
	if start > end {
		return nil, fmt.Errorf("invalid code range %d-%d", start, end)
	}

	workers := c.cfg.FanOutWorkers
	if workers <= 0 {
		workers = 10
	}
	sem := make(chan struct{}, workers)

	var (
		mu      sync.Mutex
		results []Record
		wg      sync.WaitGroup
	)

	for code := start; code <= end; code++ {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(code int) {
			defer wg.Done()
			defer func() { <-sem }()

			records, err := c.FetchBySearch(ctx, strconv.Itoa(code))
			if err != nil {
				c.logger.Warn("fetch code failed",
					slog.Int("code", code),
					slog.String("error", err.Error()))
				return
			}
			if len(records) == 0 {
				return
			}
			mu.Lock()
			results = append(results, records...)
			mu.Unlock()
		}(code)
	}
	wg.Wait()

	c.logger.Info("code range fetched",
		slog.Int("start", start),
		slog.Int("end", end),
		slog.Int("records", len(results)))
	return results, nil
}

// FetchByRowRange 用批量端点按 1 起始的行号区间拉取。
// 大规模同步首选这条路径，远快于逐编码迭代。
func (c *Client) FetchByRowRange(ctx context.Context, fromRow, toRow int) ([]Record, error) {
	if fromRow < 1 || toRow < fromRow {
		return nil, fmt.Errorf("invalid row range %d-%d", fromRow, toRow)
	}
	query := url.Values{}
	query.Set("locationid", c.cfg.LocationID)
	query.Set("priceid", c.cfg.PriceID)
	query.Set("fromrow", strconv.Itoa(fromRow))
	query.Set("torow", strconv.Itoa(toRow))
	return c.fetchList(ctx, "/api/GetAllDataByPart", query, "rows")
}

func (c *Client) fetchList(ctx context.Context, path string, query url.Values, endpoint string) ([]Record, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("supplier rate wait: %w", err)
	}

	token, err := c.Authenticate(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.cfg.BaseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build supplier request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.SupplierRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SupplierRequestsTotal.WithLabelValues(endpoint, "error").Inc()
		return nil, fmt.Errorf("supplier request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		// 令牌被上游提前作废，丢弃缓存，让下一次调用重新认证
		c.InvalidateToken()
		metrics.SupplierRequestsTotal.WithLabelValues(endpoint, "unauthorized").Inc()
		return nil, fmt.Errorf("%w: request rejected with 401", ErrAuthentication)
	}
	if resp.StatusCode != http.StatusOK {
		metrics.SupplierRequestsTotal.WithLabelValues(endpoint, "error").Inc()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("supplier returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var records []Record
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		metrics.SupplierRequestsTotal.WithLabelValues(endpoint, "error").Inc()
		return nil, fmt.Errorf("decode supplier response: %w", err)
	}
	metrics.SupplierRequestsTotal.WithLabelValues(endpoint, "ok").Inc()

	if records == nil {
		records = []Record{}
	}
	return records, nil
}
