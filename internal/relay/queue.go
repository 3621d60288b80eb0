package relay

import (
	"context"

	"LLM-Oracle-Chain/internal/ledger"
)

// Handler 处理一条程序账户通知。返回错误会终止消费并交给外层循环重启。
type Handler func(ctx context.Context, n ledger.ProgramNotification) error

// Producer 负责向队列投递通知。
type Producer interface {
	Publish(ctx context.Context, n ledger.ProgramNotification) error
}

// Consumer 以单协程顺序消费通知。
type Consumer interface {
	Consume(ctx context.Context, handler Handler) error
}

// Queue 同时具备生产者与消费者能力。每个运行周期新建一个队列，结束时关闭。
type Queue interface {
	Producer
	Consumer
	Close() error
}

// QueueFactory 为一个运行周期创建队列。
type QueueFactory func(ctx context.Context) (Queue, error)
