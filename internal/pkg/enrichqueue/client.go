package enrichqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis key 布局。主队列是 List，配一个去重集合和一个处理中 List，
// started hash 记录出队时间供 rescue 判断超时。
const (
	KeyQueue           = "papastore:enrich:queue"
	KeyProcessingQueue = "papastore:enrich:queue:processing"
	KeyPendingSet      = "papastore:enrich:queue:pending"
	KeyStartedHash     = "papastore:enrich:queue:started"
)

var (
	ErrNoTask     = errors.New("no enrichment task available")
	ErrTaskExists = errors.New("product already queued for enrichment")
)

// Task 补全队列里的一条任务。
type Task struct {
	ProductID  string `json:"product_id"`
	EnqueuedAt int64  `json:"enqueued_at"` // unix 秒
}

// Client 基于 Redis List 的补全任务队列。
//
// api 进程批量入队商品 ID，enrichworker 严格串行消费——
// 补全受全局抓取速率约束，并发消费没有意义。
type Client struct {
	rdb *redis.Client
}

func NewClient(rdb *redis.Client) (*Client, error) {
	if rdb == nil {
		return nil, errors.New("redis client is nil")
	}
	return &Client{rdb: rdb}, nil
}

// pushScript 原子执行 SADD + LPUSH，避免中间状态不一致。
// KEYS[1] = pending set, KEYS[2] = queue
// ARGV[1] = product_id, ARGV[2] = task JSON
// 返回: 1 = 成功推送, 0 = 任务已存在
var pushScript = redis.NewScript(`
	local added = redis.call('SADD', KEYS[1], ARGV[1])
	if added == 0 then
		return 0
	end
	redis.call('LPUSH', KEYS[2], ARGV[2])
	return 1
`)

// Push 把一个商品 ID 入队。已在队列中返回 ErrTaskExists。
func (c *Client) Push(ctx context.Context, productID string) error {
	if c == nil || c.rdb == nil {
		return errors.New("redis client is not initialized")
	}
	if productID == "" {
		return errors.New("product id is empty")
	}

	task := Task{ProductID: productID, EnqueuedAt: time.Now().Unix()}
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}

	result, err := pushScript.Run(ctx, c.rdb,
		[]string{KeyPendingSet, KeyQueue},
		productID, string(data),
	).Int()
	if err != nil {
		return fmt.Errorf("push task script: %w", err)
	}
	if result == 0 {
		return ErrTaskExists
	}
	return nil
}

// Pop 阻塞等待一条任务，同时搬进 processing list 并记录开始时间。
// 超时无任务返回 ErrNoTask。
func (c *Client) Pop(ctx context.Context, timeout time.Duration) (*Task, error) {
	if c == nil || c.rdb == nil {
		return nil, errors.New("redis client is not initialized")
	}
	result, err := c.rdb.BRPopLPush(ctx, KeyQueue, KeyProcessingQueue, timeout).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoTask
	}
	if err != nil {
		return nil, fmt.Errorf("brpoplpush task: %w", err)
	}

	var task Task
	if err := json.Unmarshal([]byte(result), &task); err != nil {
		return nil, fmt.Errorf("unmarshal task: %w", err)
	}

	if task.ProductID != "" {
		c.rdb.HSet(ctx, KeyStartedHash, task.ProductID, time.Now().Unix())
	}
	return &task, nil
}

// ackScript 原子性地从 processing list 中删除匹配 product_id 的任务，
// 并清理 pending set 与 started hash。
// KEYS[1] = processing queue, KEYS[2] = pending set, KEYS[3] = started hash
// ARGV[1] = product_id
var ackScript = redis.NewScript(`
	local queue = KEYS[1]
	local pending = KEYS[2]
	local started = KEYS[3]
	local productId = ARGV[1]

	local tasks = redis.call('LRANGE', queue, 0, -1)
	local removed = 0
	for _, task in ipairs(tasks) do
		if string.find(task, '"product_id":"' .. productId .. '"', 1, true) then
			redis.call('LREM', queue, 1, task)
			removed = removed + 1
			break
		end
	end

	redis.call('SREM', pending, productId)
	redis.call('HDEL', started, productId)

	return removed
`)

// Ack 确认一条任务处理完毕（无论成败），允许它在之后被重新入队。
func (c *Client) Ack(ctx context.Context, task *Task) error {
	if c == nil || c.rdb == nil {
		return errors.New("redis client is not initialized")
	}
	if task == nil || task.ProductID == "" {
		return errors.New("task is empty")
	}

	if _, err := ackScript.Run(ctx, c.rdb,
		[]string{KeyProcessingQueue, KeyPendingSet, KeyStartedHash},
		task.ProductID,
	).Int(); err != nil {
		return fmt.Errorf("ack task script: %w", err)
	}
	return nil
}

// Depth 返回待处理与处理中两个队列的长度。
func (c *Client) Depth(ctx context.Context) (int64, int64, error) {
	if c == nil || c.rdb == nil {
		return 0, 0, errors.New("redis client is not initialized")
	}
	pending, err := c.rdb.LLen(ctx, KeyQueue).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("llen queue: %w", err)
	}
	processing, err := c.rdb.LLen(ctx, KeyProcessingQueue).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("llen processing: %w", err)
	}
	return pending, processing, nil
}

// rescueScript 只有当 LREM 成功移除了任务时才 LPUSH 回主队列，
// 防止多个 janitor 重复入队。
// KEYS[1] = processing queue, KEYS[2] = queue, KEYS[3] = started hash
// ARGV[1] = task JSON, ARGV[2] = product_id
var rescueScript = redis.NewScript(`
	local removed = redis.call('LREM', KEYS[1], 1, ARGV[1])
	if removed > 0 then
		redis.call('LPUSH', KEYS[2], ARGV[1])
		redis.call('HDEL', KEYS[3], ARGV[2])
		return 1
	end
	return 0
`)

// RescueStuck 把在 processing list 里滞留超过 timeout 的任务搬回主队列。
// worker 崩溃后任务不会丢，下一轮会被重新消费。
func (c *Client) RescueStuck(ctx context.Context, timeout time.Duration) (int, error) {
	if c == nil || c.rdb == nil {
		return 0, errors.New("redis client is not initialized")
	}

	startedTimes, err := c.rdb.HGetAll(ctx, KeyStartedHash).Result()
	if err != nil {
		return 0, fmt.Errorf("hgetall started: %w", err)
	}
	if len(startedTimes) == 0 {
		return 0, nil
	}

	tasksRaw, err := c.rdb.LRange(ctx, KeyProcessingQueue, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("lrange processing: %w", err)
	}
	if len(tasksRaw) == 0 {
		// processing 已空但 started hash 有残留，清理孤立记录
		for productID := range startedTimes {
			c.rdb.HDel(ctx, KeyStartedHash, productID)
		}
		return 0, nil
	}

	now := time.Now().Unix()
	threshold := int64(timeout.Seconds())
	rescued := 0

	for _, raw := range tasksRaw {
		var task Task
		if err := json.Unmarshal([]byte(raw), &task); err != nil {
			continue
		}
		if task.ProductID == "" {
			continue
		}

		startedStr, ok := startedTimes[task.ProductID]
		if !ok {
			// 没记开始时间，退回到入队时间判断
			if task.EnqueuedAt == 0 || now-task.EnqueuedAt <= threshold {
				continue
			}
		} else {
			var started int64
			if _, err := fmt.Sscanf(startedStr, "%d", &started); err != nil {
				continue
			}
			if now-started <= threshold {
				continue
			}
		}

		result, err := rescueScript.Run(ctx, c.rdb,
			[]string{KeyProcessingQueue, KeyQueue, KeyStartedHash},
			raw, task.ProductID,
		).Int()
		if err != nil {
			continue
		}
		if result == 1 {
			rescued++
		}
	}

	return rescued, nil
}
