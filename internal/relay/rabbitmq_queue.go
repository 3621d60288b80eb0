package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"LLM-Oracle-Chain/internal/ledger"
)

// RabbitMQConfig 描述 RabbitMQ 队列的连接参数。
type RabbitMQConfig struct {
	URL        string
	Queue      string
	Capacity   int
	Prefetch   int
	Durable    bool
	AutoDelete bool
}

// broker 是队列依赖的 RabbitMQ 能力子集。
type broker interface {
	// publish 投递消息并等待确认，队列已满时返回 false。
	publish(ctx context.Context, queue string, body []byte) (bool, error)
	consume(queue string) (<-chan amqp.Delivery, error)
	purge(queue string) error
	close() error
}

// channelBroker 基于真实连接实现 broker。
type channelBroker struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

func (b *channelBroker) publish(ctx context.Context, queue string, body []byte) (bool, error) {
	confirm, err := b.ch.PublishWithDeferredConfirmWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
	if err != nil {
		return false, err
	}
	return confirm.WaitContext(ctx)
}

func (b *channelBroker) consume(queue string) (<-chan amqp.Delivery, error) {
	return b.ch.Consume(queue, "", false, false, false, false, nil)
}

func (b *channelBroker) purge(queue string) error {
	_, err := b.ch.QueuePurge(queue, false)
	return err
}

func (b *channelBroker) close() error {
	_ = b.ch.Close()
	return b.conn.Close()
}

// RabbitMQQueue 使用 RabbitMQ 传递通知，消费端手动确认。
type RabbitMQQueue struct {
	broker broker
	queue  string
	retry  time.Duration
}

// NewRabbitMQQueue 创建 RabbitMQ 队列实例。队列长度上限通过 x-max-length
// 与 reject-publish 溢出策略实现有界语义。
func NewRabbitMQQueue(cfg RabbitMQConfig) (*RabbitMQQueue, error) {
	if cfg.URL == "" {
		return nil, errors.New("RabbitMQ URL 不能为空")
	}
	queue := cfg.Queue
	if queue == "" {
		queue = "oracle.notifications"
	}
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("连接 RabbitMQ 失败: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("创建 RabbitMQ channel 失败: %w", err)
	}
	b := &channelBroker{conn: conn, ch: ch}
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		b.close()
		return nil, fmt.Errorf("设置 RabbitMQ QOS 失败: %w", err)
	}
	args := amqp.Table{
		"x-max-length": int32(capacity),
		"x-overflow":   "reject-publish",
	}
	if _, err := ch.QueueDeclare(queue, cfg.Durable, cfg.AutoDelete, false, false, args); err != nil {
		b.close()
		return nil, fmt.Errorf("声明 RabbitMQ 队列失败: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		b.close()
		return nil, fmt.Errorf("开启发布确认失败: %w", err)
	}
	return newRabbitMQQueue(b, queue)
}

// newRabbitMQQueue 清空上一个周期残留的通知后返回队列。
func newRabbitMQQueue(b broker, queue string) (*RabbitMQQueue, error) {
	if err := b.purge(queue); err != nil {
		b.close()
		return nil, fmt.Errorf("清理 RabbitMQ 队列失败: %w", err)
	}
	return &RabbitMQQueue{broker: b, queue: queue, retry: 50 * time.Millisecond}, nil
}

// Publish 投递通知并等待 broker 确认；队列已满时 broker 返回 nack，稍后重试。
func (q *RabbitMQQueue) Publish(ctx context.Context, n ledger.ProgramNotification) error {
	if q == nil || q.broker == nil {
		return errors.New("RabbitMQ 队列未初始化")
	}
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("序列化通知失败: %w", err)
	}
	for {
		acked, err := q.broker.publish(ctx, q.queue, body)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("RabbitMQ 发布通知失败: %w", err)
		}
		if acked {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(q.retry):
		}
	}
}

// Consume 顺序消费队列。处理失败的消息不会重新入队。
func (q *RabbitMQQueue) Consume(ctx context.Context, handler Handler) error {
	if q == nil || q.broker == nil {
		return errors.New("RabbitMQ 队列未初始化")
	}
	msgs, err := q.broker.consume(q.queue)
	if err != nil {
		return fmt.Errorf("订阅 RabbitMQ 队列失败: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return errors.New("RabbitMQ 消费通道已关闭")
			}
			var n ledger.ProgramNotification
			if err := json.Unmarshal(msg.Body, &n); err != nil {
				_ = msg.Ack(false)
				continue
			}
			if err := handler(ctx, n); err != nil {
				_ = msg.Nack(false, false)
				return err
			}
			_ = msg.Ack(false)
		}
	}
}

// Close 清空队列并关闭 RabbitMQ 连接。
func (q *RabbitMQQueue) Close() error {
	if q == nil || q.broker == nil {
		return nil
	}
	_ = q.broker.purge(q.queue)
	return q.broker.close()
}
