package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"live-quiz-service/internal/domain"
)

func TestStateStoreExpiresKeys(t *testing.T) {
	store := NewStateStore()
	ctx := context.Background()

	now := time.Now()
	store.clock = func() time.Time { return now }

	if err := store.Set(ctx, "quiz:active", "snapshot", time.Hour); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := store.Get(ctx, "quiz:active"); err != nil {
		t.Fatalf("get before expiry: %v", err)
	}

	now = now.Add(2 * time.Hour)
	if _, err := store.Get(ctx, "quiz:active"); !errors.Is(err, domain.ErrKeyNotFound) {
		t.Fatalf("expected expiry, got %v", err)
	}

	// No TTL means no expiry.
	if err := store.Set(ctx, "forever", "x", 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	now = now.Add(1000 * time.Hour)
	if _, err := store.Get(ctx, "forever"); err != nil {
		t.Fatalf("key without ttl expired: %v", err)
	}
}

func TestStateStoreHashOperations(t *testing.T) {
	store := NewStateStore()
	ctx := context.Background()

	if err := store.HSet(ctx, "ledger", "0", "A"); err != nil {
		t.Fatalf("hset: %v", err)
	}
	if err := store.HSet(ctx, "ledger", "0", "B"); err != nil {
		t.Fatalf("hset overwrite: %v", err)
	}
	value, err := store.HGet(ctx, "ledger", "0")
	if err != nil || value != "B" {
		t.Fatalf("hget: %q, %v", value, err)
	}
	count, err := store.HLen(ctx, "ledger")
	if err != nil || count != 1 {
		t.Fatalf("hlen: %d, %v", count, err)
	}

	all, err := store.HGetAll(ctx, "ledger")
	if err != nil {
		t.Fatalf("hgetall: %v", err)
	}
	all["0"] = "mutated"
	fresh, _ := store.HGetAll(ctx, "ledger")
	if fresh["0"] != "B" {
		t.Fatalf("HGetAll must return a copy, store now has %q", fresh["0"])
	}

	if err := store.Del(ctx, "ledger"); err != nil {
		t.Fatalf("del: %v", err)
	}
	if n, _ := store.HLen(ctx, "ledger"); n != 0 {
		t.Fatalf("expected empty hash after del, got %d", n)
	}
}

func TestStateStoreCounters(t *testing.T) {
	store := NewStateStore()
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		n, err := store.Incr(ctx, "counter")
		if err != nil || n != want {
			t.Fatalf("incr: %d, %v", n, err)
		}
	}
	n, err := store.HIncrBy(ctx, "scores", "alice", 2)
	if err != nil || n != 2 {
		t.Fatalf("hincrby: %d, %v", n, err)
	}
	n, err = store.HIncrBy(ctx, "scores", "alice", 1)
	if err != nil || n != 3 {
		t.Fatalf("hincrby again: %d, %v", n, err)
	}
}

func TestStateStorePubSub(t *testing.T) {
	store := NewStateStore()
	ctx := context.Background()

	first, cancelFirst, err := store.Subscribe(ctx, "events")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	second, cancelSecond, err := store.Subscribe(ctx, "events")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancelSecond()

	if err := store.Publish(ctx, "events", []byte("one")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	for _, ch := range []<-chan []byte{first, second} {
		select {
		case payload := <-ch:
			if string(payload) != "one" {
				t.Fatalf("unexpected payload %s", payload)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber missed the message")
		}
	}

	cancelFirst()
	if _, open := <-first; open {
		t.Fatalf("canceled subscription should be closed")
	}
	// Publishing after one cancel still reaches the other subscriber.
	if err := store.Publish(ctx, "events", []byte("two")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case payload := <-second:
		if string(payload) != "two" {
			t.Fatalf("unexpected payload %s", payload)
		}
	case <-time.After(time.Second):
		t.Fatalf("remaining subscriber missed the message")
	}
	// Double cancel is a no-op.
	cancelFirst()
}
