package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStoreSetGet(t *testing.T) {
	s := NewMemoryStore(0)
	defer s.Close()
	ctx := context.Background()

	if err := s.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	data, ok, err := s.Get(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("Get = (%v, %v); want hit", ok, err)
	}
	if string(data) != "v" {
		t.Errorf("value = %q; want %q", data, "v")
	}
}

func TestMemoryStoreMiss(t *testing.T) {
	s := NewMemoryStore(0)
	defer s.Close()

	_, ok, err := s.Get(context.Background(), "absent")
	if err != nil {
		t.Fatalf("miss must not error: %v", err)
	}
	if ok {
		t.Error("expected miss for absent key")
	}
}

func TestMemoryStoreLazyExpiry(t *testing.T) {
	s := NewMemoryStore(0)
	defer s.Close()
	ctx := context.Background()

	s.Set(ctx, "k", []byte("v"), 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)

	_, ok, _ := s.Get(ctx, "k")
	if ok {
		t.Error("expired entry served")
	}
	if s.Len() != 0 {
		t.Errorf("expired entry not evicted on read, Len = %d", s.Len())
	}
}

func TestMemoryStoreSweep(t *testing.T) {
	s := NewMemoryStore(20 * time.Millisecond)
	defer s.Close()
	ctx := context.Background()

	s.Set(ctx, "short", []byte("v"), 5*time.Millisecond)
	s.Set(ctx, "long", []byte("v"), time.Minute)

	deadline := time.Now().Add(time.Second)
	for s.Len() > 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if s.Len() != 1 {
		t.Errorf("sweep did not evict expired entry, Len = %d", s.Len())
	}
}
