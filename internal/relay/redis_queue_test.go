package relay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"LLM-Oracle-Chain/internal/ledger"
)

var errEnough = errors.New("enough notifications")

func slotNotification(slot uint64) ledger.ProgramNotification {
	return ledger.ProgramNotification{
		Pubkey:  ledger.Pubkey{byte(slot)},
		Account: &ledger.Account{Lamports: slot, Data: []byte{byte(slot)}},
		Slot:    slot,
	}
}

// collectSlots 消费 n 条通知后返回它们的 slot。
func collectSlots(t *testing.T, c Consumer, n int) []uint64 {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var slots []uint64
	err := c.Consume(ctx, func(_ context.Context, got ledger.ProgramNotification) error {
		slots = append(slots, got.Slot)
		if len(slots) == n {
			return errEnough
		}
		return nil
	})
	if !errors.Is(err, errEnough) {
		t.Fatalf("consume: %v (got %v)", err, slots)
	}
	return slots
}

func newTestRedisQueue(t *testing.T, capacity int) (*miniredis.Miniredis, *RedisQueue) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	q, err := newRedisQueue(context.Background(), client, RedisQueueConfig{Queue: "test:notifications", Capacity: capacity, BlockWait: time.Second})
	if err != nil {
		t.Fatalf("redis queue: %v", err)
	}
	t.Cleanup(func() { _ = q.Close() })
	return server, q
}

func TestRedisQueueDeliversInOrder(t *testing.T) {
	_, q := newTestRedisQueue(t, 10)
	for slot := uint64(1); slot <= 3; slot++ {
		if err := q.Publish(context.Background(), slotNotification(slot)); err != nil {
			t.Fatalf("publish %d: %v", slot, err)
		}
	}
	got := collectSlots(t, q, 3)
	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("unexpected order %v", got)
	}
}

func TestRedisQueueRoundTripsNotification(t *testing.T) {
	_, q := newTestRedisQueue(t, 10)
	want := slotNotification(9)
	if err := q.Publish(context.Background(), want); err != nil {
		t.Fatalf("publish: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := q.Consume(ctx, func(_ context.Context, got ledger.ProgramNotification) error {
		if got.Pubkey != want.Pubkey || got.Account.Lamports != 9 || len(got.Account.Data) != 1 {
			t.Errorf("unexpected notification %+v", got)
		}
		return errEnough
	})
	if !errors.Is(err, errEnough) {
		t.Fatalf("consume: %v", err)
	}
}

func TestRedisQueuePurgesStaleNotifications(t *testing.T) {
	server := miniredis.RunT(t)
	if _, err := server.Lpush("test:notifications", `{"slot":99}`); err != nil {
		t.Fatalf("seed: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	q, err := newRedisQueue(context.Background(), client, RedisQueueConfig{Queue: "test:notifications", BlockWait: time.Second})
	if err != nil {
		t.Fatalf("redis queue: %v", err)
	}
	if server.Exists("test:notifications") {
		t.Fatalf("stale notifications survived queue creation")
	}

	if err := q.Publish(context.Background(), slotNotification(1)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if server.Exists("test:notifications") {
		t.Fatalf("queue not removed on close")
	}
}

func TestRedisQueueBlocksAtCapacity(t *testing.T) {
	server, q := newTestRedisQueue(t, 1)
	if err := q.Publish(context.Background(), slotNotification(1)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	if err := q.Publish(ctx, slotNotification(2)); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected publish to block until deadline, got %v", err)
	}
	items, err := server.List("test:notifications")
	if err != nil || len(items) != 1 {
		t.Fatalf("expected one queued item, got %v (%v)", items, err)
	}

	// 消费一条后发布方恢复。
	if got := collectSlots(t, q, 1); got[0] != 1 {
		t.Fatalf("unexpected slot %v", got)
	}
	if err := q.Publish(context.Background(), slotNotification(2)); err != nil {
		t.Fatalf("publish after drain: %v", err)
	}
}

func TestRedisQueueSkipsUndecodablePayloads(t *testing.T) {
	server, q := newTestRedisQueue(t, 10)
	if _, err := server.Lpush("test:notifications", "not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := q.Publish(context.Background(), slotNotification(4)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if got := collectSlots(t, q, 1); got[0] != 4 {
		t.Fatalf("unexpected slot %v", got)
	}
}
