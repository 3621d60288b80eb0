package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"LLM-Oracle-Chain/internal/ledger"
)

// RedisQueueConfig 描述 Redis 队列的连接参数。
type RedisQueueConfig struct {
	Address   string
	Password  string
	DB        int
	Queue     string
	Capacity  int
	BlockWait time.Duration
}

// RedisQueue 使用 Redis list 传递通知。LPUSH 入队，BRPOP 出队，保持先进先出。
type RedisQueue struct {
	client   *redis.Client
	queue    string
	capacity int64
	wait     time.Duration
}

// NewRedisQueue 创建 Redis 队列实例并清空残留的旧通知。
func NewRedisQueue(ctx context.Context, cfg RedisQueueConfig) (*RedisQueue, error) {
	if cfg.Address == "" {
		return nil, errors.New("Redis address 不能为空")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return newRedisQueue(ctx, client, cfg)
}

func newRedisQueue(ctx context.Context, client *redis.Client, cfg RedisQueueConfig) (*RedisQueue, error) {
	queue := cfg.Queue
	if queue == "" {
		queue = "oracle:notifications"
	}
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	wait := cfg.BlockWait
	if wait <= 0 {
		wait = 5 * time.Second
	}
	// 上一个周期未处理的通知不再有效，重新订阅会推送最新状态。
	if err := client.Del(ctx, queue).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("清理 Redis 队列失败: %w", err)
	}
	return &RedisQueue{client: client, queue: queue, capacity: int64(capacity), wait: wait}, nil
}

// Publish 将通知序列化后投递到 Redis。队列达到容量时轮询等待。
func (q *RedisQueue) Publish(ctx context.Context, n ledger.ProgramNotification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("序列化通知失败: %w", err)
	}
	for {
		size, err := q.client.LLen(ctx, q.queue).Result()
		if err != nil {
			return fmt.Errorf("Redis 查询队列长度失败: %w", err)
		}
		if size < q.capacity {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
	if err := q.client.LPush(ctx, q.queue, payload).Err(); err != nil {
		return fmt.Errorf("Redis 发布通知失败: %w", err)
	}
	return nil
}

// Consume 通过 BRPOP 顺序获取通知。
func (q *RedisQueue) Consume(ctx context.Context, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		values, err := q.client.BRPop(ctx, q.wait, q.queue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("Redis 取通知失败: %w", err)
		}
		if len(values) != 2 {
			continue
		}
		var n ledger.ProgramNotification
		if err := json.Unmarshal([]byte(values[1]), &n); err != nil {
			// 无法解析的消息与无法解码的账户一样直接丢弃。
			continue
		}
		if err := handler(ctx, n); err != nil {
			return err
		}
	}
}

// Close 删除队列并关闭 Redis 连接。
func (q *RedisQueue) Close() error {
	if q == nil || q.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = q.client.Del(ctx, q.queue).Err()
	return q.client.Close()
}
