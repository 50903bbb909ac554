package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client)
}

func TestRedisStoreHashRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestRedisStore(t)

	if err := s.HashSet(ctx, "pipeline_states", "abc", `{"state":"initialized"}`); err != nil {
		t.Fatalf("HashSet: %v", err)
	}
	v, found, err := s.HashGet(ctx, "pipeline_states", "abc")
	if err != nil || !found {
		t.Fatalf("HashGet: v=%q found=%v err=%v", v, found, err)
	}
	if v != `{"state":"initialized"}` {
		t.Fatalf("unexpected value %q", v)
	}

	if err := s.HashDelete(ctx, "pipeline_states", "abc"); err != nil {
		t.Fatalf("HashDelete: %v", err)
	}
	if _, found, _ := s.HashGet(ctx, "pipeline_states", "abc"); found {
		t.Fatal("expected field to be gone")
	}
}

func TestRedisStoreQueueIsFIFO(t *testing.T) {
	ctx := context.Background()
	s := newTestRedisStore(t)

	for _, v := range []string{"t1", "t2", "t3"} {
		if err := s.ListPushLeft(ctx, "pipeline_queue", v); err != nil {
			t.Fatalf("ListPushLeft(%s): %v", v, err)
		}
	}

	for _, want := range []string{"t1", "t2", "t3"} {
		got, found, err := s.ListPopRight(ctx, "pipeline_queue")
		if err != nil || !found {
			t.Fatalf("ListPopRight: got=%q found=%v err=%v", got, found, err)
		}
		if got != want {
			t.Fatalf("FIFO violated: got %q, want %q", got, want)
		}
	}

	if _, found, _ := s.ListPopRight(ctx, "pipeline_queue"); found {
		t.Fatal("expected empty queue")
	}
}

func TestRedisStoreListPosition(t *testing.T) {
	ctx := context.Background()
	s := newTestRedisStore(t)

	for _, v := range []string{"t1", "t2"} {
		if err := s.ListPushLeft(ctx, "pipeline_queue", v); err != nil {
			t.Fatalf("ListPushLeft: %v", err)
		}
	}
	// list is now [t2, t1] (t2 pushed last, on the left)
	pos, found, err := s.ListPosition(ctx, "pipeline_queue", "t1")
	if err != nil || !found || pos != 1 {
		t.Fatalf("ListPosition(t1) = %d,%v,%v, want 1,true,nil", pos, found, err)
	}
}

func TestRedisStoreCounter(t *testing.T) {
	ctx := context.Background()
	s := newTestRedisStore(t)

	if err := s.CounterSet(ctx, "METAKEGG_WORKER_EXCEPTION_COUNT", 0); err != nil {
		t.Fatalf("CounterSet: %v", err)
	}
	for i := int64(1); i <= 3; i++ {
		v, err := s.CounterIncr(ctx, "METAKEGG_WORKER_EXCEPTION_COUNT")
		if err != nil || v != i {
			t.Fatalf("CounterIncr = %d,%v, want %d,nil", v, err, i)
		}
	}
}

func TestRedisStorePing(t *testing.T) {
	s := newTestRedisStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}
