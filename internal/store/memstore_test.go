package store

import (
	"context"
	"testing"
)

func TestMemStoreHashAndList(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	if err := s.HashSet(ctx, KeyPipelineStates, "tick1", "rec1"); err != nil {
		t.Fatalf("HashSet: %v", err)
	}
	all, err := s.HashGetAll(ctx, KeyPipelineStates)
	if err != nil {
		t.Fatalf("HashGetAll: %v", err)
	}
	if all["tick1"] != "rec1" {
		t.Fatalf("unexpected hash contents: %v", all)
	}

	if err := s.ListPushLeft(ctx, KeyPipelineQueue, "t1"); err != nil {
		t.Fatal(err)
	}
	if err := s.ListPushLeft(ctx, KeyPipelineQueue, "t2"); err != nil {
		t.Fatal(err)
	}
	n, _ := s.ListLength(ctx, KeyPipelineQueue)
	if n != 2 {
		t.Fatalf("ListLength = %d, want 2", n)
	}
	v, found, err := s.ListPopRight(ctx, KeyPipelineQueue)
	if err != nil || !found || v != "t1" {
		t.Fatalf("ListPopRight = %q,%v,%v, want t1,true,nil", v, found, err)
	}
}

func TestMemStoreListRemove(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	for _, v := range []string{"a", "b", "a", "c"} {
		_ = s.ListPushLeft(ctx, "k", v)
	}
	if err := s.ListRemove(ctx, "k", 1, "a"); err != nil {
		t.Fatal(err)
	}
	vals, _ := s.ListRange(ctx, "k", 0, -1)
	count := 0
	for _, v := range vals {
		if v == "a" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one remaining 'a', got %d in %v", count, vals)
	}
}

func TestMemStoreCounter(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	v, err := s.CounterIncr(ctx, "c")
	if err != nil || v != 1 {
		t.Fatalf("CounterIncr = %d,%v", v, err)
	}
	if err := s.CounterSet(ctx, "c", 10); err != nil {
		t.Fatal(err)
	}
	got, _ := s.CounterGet(ctx, "c")
	if got != 10 {
		t.Fatalf("CounterGet = %d, want 10", got)
	}
}
