package relay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// fakeBroker 模拟带 x-max-length 与 reject-publish 的 RabbitMQ 队列。
type fakeBroker struct {
	mu       sync.Mutex
	capacity int
	queued   [][]byte
	out      chan amqp.Delivery
	nextTag  uint64
	purges   int
	acked    []uint64
	nacked   []uint64
	requeued bool
	closed   bool
}

func newFakeBroker(capacity int, stale ...[]byte) *fakeBroker {
	return &fakeBroker{capacity: capacity, queued: stale}
}

func (b *fakeBroker) publish(_ context.Context, _ string, body []byte) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.out != nil {
		b.deliver(body)
		return true, nil
	}
	if len(b.queued) >= b.capacity {
		return false, nil
	}
	b.queued = append(b.queued, body)
	return true, nil
}

func (b *fakeBroker) deliver(body []byte) {
	b.nextTag++
	b.out <- amqp.Delivery{Acknowledger: b, DeliveryTag: b.nextTag, Body: body}
}

func (b *fakeBroker) consume(string) (<-chan amqp.Delivery, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.out = make(chan amqp.Delivery, 64)
	for _, body := range b.queued {
		b.deliver(body)
	}
	b.queued = nil
	return b.out, nil
}

func (b *fakeBroker) purge(string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.purges++
	b.queued = nil
	return nil
}

func (b *fakeBroker) close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *fakeBroker) Ack(tag uint64, _ bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.acked = append(b.acked, tag)
	return nil
}

func (b *fakeBroker) Nack(tag uint64, _ bool, requeue bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nacked = append(b.nacked, tag)
	b.requeued = b.requeued || requeue
	return nil
}

func (b *fakeBroker) Reject(tag uint64, requeue bool) error {
	return b.Nack(tag, false, requeue)
}

func newTestRabbitMQQueue(t *testing.T, b *fakeBroker) *RabbitMQQueue {
	t.Helper()
	q, err := newRabbitMQQueue(b, "oracle.notifications")
	if err != nil {
		t.Fatalf("rabbitmq queue: %v", err)
	}
	q.retry = 5 * time.Millisecond
	return q
}

func TestRabbitMQQueueDeliversInOrderAndAcks(t *testing.T) {
	b := newFakeBroker(10)
	q := newTestRabbitMQQueue(t, b)
	for slot := uint64(1); slot <= 3; slot++ {
		if err := q.Publish(context.Background(), slotNotification(slot)); err != nil {
			t.Fatalf("publish %d: %v", slot, err)
		}
	}
	got := collectSlots(t, q, 3)
	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("unexpected order %v", got)
	}
	// 第三条由处理函数返回错误结束消费，因此被 nack。
	if len(b.acked) != 2 || len(b.nacked) != 1 || b.requeued {
		t.Fatalf("unexpected acknowledgements: acked=%v nacked=%v requeued=%v", b.acked, b.nacked, b.requeued)
	}
}

func TestRabbitMQQueuePurgesOnCreateAndClose(t *testing.T) {
	b := newFakeBroker(10, []byte(`{"slot":99}`))
	q := newTestRabbitMQQueue(t, b)
	if b.purges != 1 || len(b.queued) != 0 {
		t.Fatalf("stale messages survived creation: purges=%d queued=%d", b.purges, len(b.queued))
	}
	if err := q.Publish(context.Background(), slotNotification(1)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if b.purges != 2 || len(b.queued) != 0 || !b.closed {
		t.Fatalf("close did not purge and close: purges=%d closed=%v", b.purges, b.closed)
	}
}

func TestRabbitMQQueueRetriesWhileFull(t *testing.T) {
	b := newFakeBroker(1)
	q := newTestRabbitMQQueue(t, b)
	if err := q.Publish(context.Background(), slotNotification(1)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := q.Publish(ctx, slotNotification(2)); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected publish to wait for capacity, got %v", err)
	}
	if len(b.queued) != 1 {
		t.Fatalf("rejected message was queued")
	}
}

func TestRabbitMQQueueSkipsUndecodablePayloads(t *testing.T) {
	b := newFakeBroker(10)
	q := newTestRabbitMQQueue(t, b)
	b.queued = append(b.queued, []byte("not json"))
	if err := q.Publish(context.Background(), slotNotification(4)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if got := collectSlots(t, q, 1); got[0] != 4 {
		t.Fatalf("unexpected slot %v", got)
	}
	if len(b.acked) != 1 || b.acked[0] != 1 {
		t.Fatalf("undecodable message should be acked and dropped, acked=%v", b.acked)
	}
}
