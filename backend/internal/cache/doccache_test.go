package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestDocCache_PutGet(t *testing.T) {
	c := NewDocCache(time.Minute)
	defer c.Close()

	snap := &Snapshot{DocID: "doc1", Content: json.RawMessage(`[]`), Version: 3}
	c.Put("doc1", snap)

	got := c.Get("doc1")
	if got == nil {
		t.Fatalf("Get() = nil, want snapshot")
	}
	// 按引用存储：返回的就是放进去的那一个
	if got != snap {
		t.Fatalf("Get() returned a copy, want the same reference")
	}
}

func TestDocCache_MissingIsNil(t *testing.T) {
	c := NewDocCache(time.Minute)
	defer c.Close()

	if got := c.Get("nope"); got != nil {
		t.Fatalf("Get() = %v, want nil", got)
	}
}

func TestDocCache_ExpiresAfterTTL(t *testing.T) {
	c := NewDocCache(30 * time.Millisecond)
	defer c.Close()

	c.Put("doc1", &Snapshot{DocID: "doc1", Version: 1})
	if c.Get("doc1") == nil {
		t.Fatalf("Get() before TTL = nil, want snapshot")
	}

	time.Sleep(60 * time.Millisecond)
	// 过期条目等同不存在
	if got := c.Get("doc1"); got != nil {
		t.Fatalf("Get() after TTL = %v, want nil", got)
	}
}

func TestDocCache_Invalidate(t *testing.T) {
	c := NewDocCache(time.Minute)
	defer c.Close()

	c.Put("doc1", &Snapshot{DocID: "doc1", Version: 1})
	c.Invalidate("doc1")

	if got := c.Get("doc1"); got != nil {
		t.Fatalf("Get() after Invalidate = %v, want nil", got)
	}
}

func TestDocCache_GetOrFetchCachesResult(t *testing.T) {
	c := NewDocCache(time.Minute)
	defer c.Close()

	fetches := 0
	fetch := func(ctx context.Context) (*Snapshot, error) {
		fetches++
		return &Snapshot{DocID: "doc1", Version: 1}, nil
	}

	for i := 0; i < 3; i++ {
		snap, err := c.GetOrFetch(context.Background(), "doc1", fetch)
		if err != nil {
			t.Fatalf("GetOrFetch() error = %v", err)
		}
		if snap.Version != 1 {
			t.Fatalf("GetOrFetch() version = %d, want 1", snap.Version)
		}
	}
	if fetches != 1 {
		t.Fatalf("fetch calls = %d, want 1 (hits must not refetch)", fetches)
	}
}

func TestDocCache_GetOrFetchErrorNotCached(t *testing.T) {
	c := NewDocCache(time.Minute)
	defer c.Close()

	wantErr := errors.New("store down")
	_, err := c.GetOrFetch(context.Background(), "doc1", func(ctx context.Context) (*Snapshot, error) {
		return nil, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("GetOrFetch() error = %v, want %v", err, wantErr)
	}
	if got := c.Get("doc1"); got != nil {
		t.Fatalf("Get() after failed fetch = %v, want nil", got)
	}
}

func TestDocCache_GetOrFetchAbsentNotCached(t *testing.T) {
	c := NewDocCache(time.Minute)
	defer c.Close()

	fetches := 0
	fetch := func(ctx context.Context) (*Snapshot, error) {
		fetches++
		return nil, nil
	}

	for i := 0; i < 2; i++ {
		snap, err := c.GetOrFetch(context.Background(), "doc1", fetch)
		if err != nil {
			t.Fatalf("GetOrFetch() error = %v", err)
		}
		if snap != nil {
			t.Fatalf("GetOrFetch() = %v, want nil", snap)
		}
	}
	// 不存在不缓存，下次还要回源
	if fetches != 2 {
		t.Fatalf("fetch calls = %d, want 2", fetches)
	}
}

func TestDocCache_ConcurrentAccess(t *testing.T) {
	c := NewDocCache(time.Minute)
	defer c.Close()

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 100; j++ {
				c.Put("doc1", &Snapshot{DocID: "doc1", Version: uint64(j)})
				c.Get("doc1")
				c.Invalidate("doc1")
			}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}
}
