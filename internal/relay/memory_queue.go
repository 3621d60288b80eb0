package relay

import (
	"context"
	"errors"
	"sync"

	"LLM-Oracle-Chain/internal/ledger"
)

// DefaultQueueCapacity 是内存队列的默认容量。
const DefaultQueueCapacity = 100

// ErrQueueClosed 表示队列已关闭。
var ErrQueueClosed = errors.New("队列已关闭")

// MemoryQueue 使用有界 channel 连接订阅协程与处理协程，队列满时发布方阻塞。
type MemoryQueue struct {
	ch   chan ledger.ProgramNotification
	done chan struct{}
	once sync.Once
}

// NewMemoryQueue 创建一个内存队列。
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = DefaultQueueCapacity
	}
	return &MemoryQueue{
		ch:   make(chan ledger.ProgramNotification, size),
		done: make(chan struct{}),
	}
}

// Publish 将通知投递到队列。
func (q *MemoryQueue) Publish(ctx context.Context, n ledger.ProgramNotification) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-q.done:
		return ErrQueueClosed
	case q.ch <- n:
		return nil
	}
}

// Consume 顺序处理队列中的通知，直到上下文取消、队列关闭或处理出错。
func (q *MemoryQueue) Consume(ctx context.Context, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.done:
			return ErrQueueClosed
		case n := <-q.ch:
			if err := handler(ctx, n); err != nil {
				return err
			}
		}
	}
}

// Len 返回当前排队的通知数量。
func (q *MemoryQueue) Len() int { return len(q.ch) }

// Close 关闭内存队列，之后的发布与消费都会返回 ErrQueueClosed。
func (q *MemoryQueue) Close() error {
	q.once.Do(func() { close(q.done) })
	return nil
}
