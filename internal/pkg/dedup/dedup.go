package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "papastore:scrape:cooldown:"

// Deduplicator 用 Redis SetNX 给抓取过的 URL 记一个冷却窗口，
// 窗口内的重复抓取直接判重跳过，省掉一次对外请求。
type Deduplicator struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewDeduplicator(rdb *redis.Client, ttl time.Duration) *Deduplicator {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Deduplicator{
		rdb: rdb,
		ttl: ttl,
	}
}

// IsDuplicate 返回该 URL 是否仍在冷却窗口内。首次调用会占住窗口。
func (d *Deduplicator) IsDuplicate(ctx context.Context, url string) (bool, error) {
	if d == nil || d.rdb == nil || url == "" {
		return false, nil
	}
	key := keyPrefix + hashURL(url)
	ok, err := d.rdb.SetNX(ctx, key, "1", d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup setnx: %w", err)
	}
	return !ok, nil
}

// Delete 提前解除某个 URL 的冷却（抓取失败后允许重试）。
func (d *Deduplicator) Delete(ctx context.Context, url string) error {
	if d == nil || d.rdb == nil || url == "" {
		return nil
	}
	key := keyPrefix + hashURL(url)
	if err := d.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("dedup del: %w", err)
	}
	return nil
}

func hashURL(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}
